//go:build !integration

// File: internal/domain/model/subscription_test.go
package model_test

import (
	"errors"
	"testing"
	"time"

	"backlify-payments/internal/domain"
	"backlify-payments/internal/domain/model"
)

func TestNextExpiration(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	year := 365 * 24 * time.Hour

	t.Run("no current subscription starts from now", func(t *testing.T) {
		if got, want := model.NextExpiration(nil, now, year), now.Add(year); !got.Equal(want) {
			t.Errorf("NextExpiration() = %v, want %v", got, want)
		}
	})

	t.Run("future expiration is extended, not reset", func(t *testing.T) {
		current := now.Add(30 * 24 * time.Hour)
		if got, want := model.NextExpiration(&current, now, year), current.Add(year); !got.Equal(want) {
			t.Errorf("NextExpiration() = %v, want %v", got, want)
		}
	})

	t.Run("lapsed expiration restarts from now", func(t *testing.T) {
		current := now.Add(-time.Hour)
		if got, want := model.NextExpiration(&current, now, year), now.Add(year); !got.Equal(want) {
			t.Errorf("NextExpiration() = %v, want %v", got, want)
		}
	})
}

func TestNewSubscription(t *testing.T) {
	now := time.Now()

	t.Run("valid", func(t *testing.T) {
		s, err := model.NewSubscription("user-uuid", model.PlanPro, nil, now, now.Add(time.Hour), 7)
		if err != nil {
			t.Fatalf("NewSubscription() error = %v", err)
		}
		if s.Status != model.SubscriptionStatusActive {
			t.Errorf("status = %q, want active", s.Status)
		}
		if s.PaymentOrderID != 7 {
			t.Errorf("payment order id = %d, want 7", s.PaymentOrderID)
		}
	})

	t.Run("expiration must be after start", func(t *testing.T) {
		if _, err := model.NewSubscription("user-uuid", model.PlanPro, nil, now, now, 7); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("error = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("requires a user and funding order", func(t *testing.T) {
		if _, err := model.NewSubscription("", model.PlanPro, nil, now, now.Add(time.Hour), 7); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("empty user: error = %v, want ErrInvalidArgument", err)
		}
		if _, err := model.NewSubscription("user-uuid", model.PlanPro, nil, now, now.Add(time.Hour), 0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("zero order: error = %v, want ErrInvalidArgument", err)
		}
	})
}
