package payment

import (
	"context"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"backlify-payments/internal/domain"
	"backlify-payments/internal/domain/ports/adapter"
)

// Ensure compile-time conformance
var _ adapter.PaymentGateway = (*EpointGateway)(nil)

// EpointGateway implements adapter.PaymentGateway for the Epoint card
// processing service. The gateway dictates the signature scheme bit-for-bit:
// signature = base64(SHA1(private_key ∥ base64(json) ∥ private_key)).
type EpointGateway struct {
	publicKey  string
	privateKey string
	baseURL    string
	client     *http.Client
}

const requestTimeout = 30 * time.Second

// NewEpointGateway fails fast when either key is missing so misconfiguration
// never surfaces at request time.
func NewEpointGateway(publicKey, privateKey, baseURL string) (*EpointGateway, error) {
	if publicKey == "" || privateKey == "" {
		return nil, domain.ErrMisconfiguredGateway
	}
	if baseURL == "" {
		baseURL = "https://epoint.az/api/1"
	}
	return &EpointGateway{
		publicKey:  publicKey,
		privateKey: privateKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: requestTimeout},
	}, nil
}

func (g *EpointGateway) Name() string { return "epoint" }

// Encode serializes v as canonical JSON and base64-encodes it.
func (g *EpointGateway) Encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Decode reverses Encode. Malformed base64, non-UTF-8 bytes or invalid JSON
// all map to domain.ErrInvalidEnvelope.
func (g *EpointGateway) Decode(data string, into any) error {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return domain.ErrInvalidEnvelope
	}
	if !utf8.Valid(raw) {
		return domain.ErrInvalidEnvelope
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return domain.ErrInvalidEnvelope
	}
	return nil
}

// Sign computes base64(SHA1(private_key ∥ data ∥ private_key)) over the
// already-base64-encoded data string.
func (g *EpointGateway) Sign(data string) string {
	h := sha1.Sum([]byte(g.privateKey + data + g.privateKey))
	return base64.StdEncoding.EncodeToString(h[:])
}

// VerifyCallback reconstructs the expected signature from the received data
// and compares constant-time against the received one.
func (g *EpointGateway) VerifyCallback(data, signature string) error {
	expected := g.Sign(data)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return domain.ErrSignatureMismatch
	}
	return nil
}

func (g *EpointGateway) DecodeCallback(data string) (*adapter.CallbackBody, error) {
	var body adapter.CallbackBody
	if err := g.Decode(data, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

func (g *EpointGateway) envelope(payload any, suffix string) (*adapter.Envelope, error) {
	data, err := g.Encode(payload)
	if err != nil {
		return nil, err
	}
	env := &adapter.Envelope{Data: data, Signature: g.Sign(data)}
	if suffix != "" {
		env.TargetURL = g.baseURL + suffix
	}
	return env, nil
}

// Standard payment: the client is redirected to TargetURL with the envelope.
func (g *EpointGateway) PrepareStandardPayment(req adapter.StandardPaymentRequest) (*adapter.Envelope, error) {
	if req.OrderID == "" || !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	currency := req.Currency
	if currency == "" {
		currency = "AZN"
	}
	language := req.Language
	if language == "" {
		language = "az"
	}
	payload := struct {
		PublicKey   string          `json:"public_key"`
		Amount      decimal.Decimal `json:"amount"`
		Currency    string          `json:"currency"`
		Language    string          `json:"language"`
		OrderID     string          `json:"order_id"`
		Description string          `json:"description,omitempty"`
		SuccessURL  string          `json:"success_redirect_url,omitempty"`
		ErrorURL    string          `json:"error_redirect_url,omitempty"`
	}{g.publicKey, req.Amount, currency, language, req.OrderID, req.Description, req.SuccessURL, req.ErrorURL}
	return g.envelope(payload, "/request")
}

// Saved-card payment: posted server-side, no redirect.
func (g *EpointGateway) PrepareSavedCardPayment(req adapter.SavedCardRequest) (*adapter.Envelope, error) {
	if req.CardID == "" || req.OrderID == "" || !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	payload := struct {
		PublicKey string          `json:"public_key"`
		Language  string          `json:"language"`
		CardID    string          `json:"card_id"`
		OrderID   string          `json:"order_id"`
		Amount    decimal.Decimal `json:"amount"`
		Currency  string          `json:"currency"`
	}{g.publicKey, "az", req.CardID, req.OrderID, req.Amount, "AZN"}
	return g.envelope(payload, "")
}

func (g *EpointGateway) PrepareCardRegistration(req adapter.CardRegistrationRequest) (*adapter.Envelope, error) {
	if req.SuccessURL == "" || req.ErrorURL == "" {
		return nil, domain.ErrInvalidArgument
	}
	language := req.Language
	if language == "" {
		language = "az"
	}
	payload := struct {
		PublicKey  string `json:"public_key"`
		Language   string `json:"language"`
		Refund     int    `json:"refund"`
		SuccessURL string `json:"success_redirect_url"`
		ErrorURL   string `json:"error_redirect_url"`
	}{g.publicKey, language, 0, req.SuccessURL, req.ErrorURL}
	return g.envelope(payload, "/card-registration")
}

func (g *EpointGateway) PreparePreAuth(req adapter.PreAuthRequest) (*adapter.Envelope, error) {
	if req.OrderID == "" || !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	currency := req.Currency
	if currency == "" {
		currency = "AZN"
	}
	language := req.Language
	if language == "" {
		language = "az"
	}
	payload := struct {
		PublicKey  string          `json:"public_key"`
		Amount     decimal.Decimal `json:"amount"`
		Currency   string          `json:"currency"`
		Language   string          `json:"language"`
		OrderID    string          `json:"order_id"`
		SuccessURL string          `json:"success_redirect_url,omitempty"`
		ErrorURL   string          `json:"error_redirect_url,omitempty"`
	}{g.publicKey, req.Amount, currency, language, req.OrderID, req.SuccessURL, req.ErrorURL}
	return g.envelope(payload, "/pre-auth-request")
}

func (g *EpointGateway) CompletePreAuth(ctx context.Context, amount decimal.Decimal, transaction string) (*adapter.GatewayResult, error) {
	if transaction == "" || !amount.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	payload := struct {
		PublicKey   string          `json:"public_key"`
		Amount      decimal.Decimal `json:"amount"`
		Transaction string          `json:"transaction"`
	}{g.publicKey, amount, transaction}
	return g.post(ctx, "/pre-auth-complete", payload)
}

func (g *EpointGateway) Reverse(ctx context.Context, transaction string, amount *decimal.Decimal) (*adapter.GatewayResult, error) {
	if transaction == "" {
		return nil, domain.ErrInvalidArgument
	}
	payload := struct {
		PublicKey   string           `json:"public_key"`
		Language    string           `json:"language"`
		Transaction string           `json:"transaction"`
		Amount      *decimal.Decimal `json:"amount,omitempty"`
	}{g.publicKey, "az", transaction, amount}
	return g.post(ctx, "/reverse", payload)
}

func (g *EpointGateway) CheckStatus(ctx context.Context, transaction string) (*adapter.GatewayResult, error) {
	if transaction == "" {
		return nil, domain.ErrInvalidArgument
	}
	payload := struct {
		PublicKey   string `json:"public_key"`
		Transaction string `json:"transaction"`
	}{g.publicKey, transaction}
	return g.post(ctx, "/get-status", payload)
}

// post sends a signed form-encoded envelope. Single attempt, 30 s timeout;
// retries are the caller's responsibility.
func (g *EpointGateway) post(ctx context.Context, suffix string, payload any) (*adapter.GatewayResult, error) {
	data, err := g.Encode(payload)
	if err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Set("data", data)
	form.Set("signature", g.Sign(data))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+suffix, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrUpstreamUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	var result adapter.GatewayResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w, body: %s", err, string(body))
	}
	result.Raw = json.RawMessage(body)
	return &result, nil
}
