package repository

import (
	"context"
	"time"

	"backlify-payments/internal/domain/model"
)

// SubscriptionRepository owns the subscriptions table. The partial unique
// index on (user_id, api_scope) where status='active' backs Upsert.
type SubscriptionRepository interface {
	// FindActiveByUser returns the active subscription for (userID, apiScope),
	// or domain.ErrNotFound. Inside a transaction the row is locked FOR UPDATE.
	FindActiveByUser(ctx context.Context, tx Tx, userID string, apiScope *string) (*model.Subscription, error)

	// Upsert inserts an active subscription; on conflict with the existing
	// active row for the same (user, scope) it updates plan, expiration and
	// funding order instead. The create-or-extend decision is made by the
	// caller, which passes the already-computed expiration.
	Upsert(ctx context.Context, tx Tx, s *model.Subscription) error

	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Subscription, error)

	// ExpireDue flips active rows whose expiration_date has passed to expired.
	// Idempotent; returns the number of rows transitioned.
	ExpireDue(ctx context.Context, tx Tx, now time.Time) (int64, error)
}
