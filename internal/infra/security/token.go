package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ===== Session/JWT primitives =====

var ErrInvalidToken = errors.New("invalid or expired token")

// TokenManager mints and verifies the HS256 bearer tokens the order API
// accepts. Claims carry the user login; the payments core treats the verified
// login as the caller identity.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

type UserClaims struct {
	Login string `json:"login"`
	jwt.RegisteredClaims
}

func (m *TokenManager) Mint(login string) (string, error) {
	now := time.Now()
	claims := UserClaims{
		Login: login,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			Subject:   login,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify parses and validates a bearer token and returns the login it carries.
func (m *TokenManager) Verify(tokenString string) (string, error) {
	var claims UserClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid || claims.Login == "" {
		return "", ErrInvalidToken
	}
	return claims.Login, nil
}
