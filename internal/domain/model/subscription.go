package model

import (
	"time"

	"backlify-payments/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription is a user's entitlement for a plan. At most one active row may
// exist per (user, api scope); the partial unique index enforces it.
type Subscription struct {
	ID             int64
	UserID         string // internal user UUID, never the login
	Plan           PlanCode
	APIScope       *string
	Status         SubscriptionStatus
	StartDate      time.Time
	ExpirationDate time.Time
	PaymentOrderID int64 // orders.id that funded this subscription
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewSubscription constructs an active subscription funded by an order.
func NewSubscription(userID string, plan PlanCode, apiScope *string, start, expiration time.Time, paymentOrderID int64) (*Subscription, error) {
	if userID == "" || paymentOrderID == 0 {
		return nil, domain.ErrInvalidArgument
	}
	if !expiration.After(start) {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Subscription{
		UserID:         userID,
		Plan:           plan,
		APIScope:       apiScope,
		Status:         SubscriptionStatusActive,
		StartDate:      start,
		ExpirationDate: expiration,
		PaymentOrderID: paymentOrderID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// NextExpiration computes the expiration of a created or extended subscription:
// the plan period added to whichever is later, now or the current expiration.
func NextExpiration(current *time.Time, now time.Time, period time.Duration) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.Add(period)
}
