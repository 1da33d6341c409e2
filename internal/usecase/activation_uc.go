// File: internal/usecase/activation_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"backlify-payments/internal/domain"
	"backlify-payments/internal/domain/model"
	"backlify-payments/internal/domain/ports/adapter"
	"backlify-payments/internal/domain/ports/repository"
	"backlify-payments/internal/infra/metrics"
)

// Compile-time check
var _ ActivationUseCase = (*activationUC)(nil)

// ActivationUseCase turns a signature-verified callback into ledger and
// subscription state. The caller has already verified and decoded the
// envelope; raw is the decoded body bytes kept for the audit trail.
type ActivationUseCase interface {
	HandleCallback(ctx context.Context, body *adapter.CallbackBody, raw []byte) error
}

// PlanPeriodFunc maps a plan code to the entitlement duration per paid order.
type PlanPeriodFunc func(plan string) time.Duration

// CallbackLocker is the narrow slice of the redis locker the activator needs.
type CallbackLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

type activationUC struct {
	ledger  OrderUseCase
	subs    repository.SubscriptionRepository
	users   repository.UserRepository
	tm      repository.TransactionManager
	locker  CallbackLocker // optional; nil skips the fast-path lock
	periods PlanPeriodFunc
	log     *zerolog.Logger
}

func NewActivationUseCase(ledger OrderUseCase, subs repository.SubscriptionRepository, users repository.UserRepository, tm repository.TransactionManager, locker CallbackLocker, periods PlanPeriodFunc, logger *zerolog.Logger) *activationUC {
	l := logger.With().Str("component", "ActivationUC").Logger()
	return &activationUC{ledger: ledger, subs: subs, users: users, tm: tm, locker: locker, periods: periods, log: &l}
}

func (u *activationUC) HandleCallback(ctx context.Context, body *adapter.CallbackBody, raw []byte) error {
	if body == nil || body.OrderID == "" {
		return domain.ErrInvalidEnvelope
	}
	switch body.Status {
	case adapter.CallbackStatusSuccess:
		return u.activate(ctx, body, raw)
	case adapter.CallbackStatusFailed:
		return u.ledger.MarkFailed(ctx, repository.NoTX, body.OrderID, body.Message, raw)
	case adapter.CallbackStatusCancelled:
		return u.ledger.MarkCancelled(ctx, repository.NoTX, body.OrderID, raw)
	case adapter.CallbackStatusReversed:
		ref := body.Transaction
		if ref == "" {
			ref = body.BankTransaction
		}
		_, err := u.ledger.MarkReversed(ctx, repository.NoTX, body.OrderID, ref)
		// subscription deliberately NOT revoked on reversal; operator policy
		return err
	default:
		u.log.Warn().Str("order_id", body.OrderID).Str("status", body.Status).Msg("callback with unknown status")
		return domain.ErrInvalidEnvelope
	}
}

// activate runs the settlement sequence for a successful callback: resolve
// order and user, then, in one transaction, upsert the subscription and mark
// the order paid.
func (u *activationUC) activate(ctx context.Context, body *adapter.CallbackBody, raw []byte) error {
	if u.locker != nil {
		// Best-effort serialization of duplicate callbacks; the ledger CAS
		// remains the correctness guarantee.
		if token, err := u.locker.TryLock(ctx, "cb:"+body.OrderID, 10*time.Second); err == nil {
			defer func() { _ = u.locker.Unlock(context.Background(), "cb:"+body.OrderID, token) }()
		}
	}

	order, err := u.ledger.GetByOrderID(ctx, body.OrderID)
	if err != nil {
		return err // ErrUnknownOrder included
	}

	// Replay of an already-settled callback: nothing to do.
	if order.Status == model.OrderStatusPaid {
		if order.TransactionID != nil && *order.TransactionID == body.Transaction {
			return nil
		}
		return domain.ErrConflictingTransaction
	}
	if order.Status != model.OrderStatusPending {
		return domain.ErrIllegalTransition
	}

	user, err := u.users.FindByLogin(ctx, repository.NoTX, order.UserLogin)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			if ferr := u.ledger.MarkFailed(ctx, repository.NoTX, order.OrderID, "user_missing", raw); ferr != nil {
				u.log.Error().Err(ferr).Str("order_id", order.OrderID).Msg("failed to mark orphan order")
			}
			return domain.ErrOrphanOrder
		}
		return err
	}

	kind := "create"
	replay := false
	txErr := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// Row lock on the order serializes concurrent callbacks: the loser
		// blocks here until the winner commits, then sees the settled state.
		locked, err := u.ledger.GetForUpdate(ctx, tx, order.OrderID)
		if err != nil {
			return err
		}
		if locked.Status == model.OrderStatusPaid {
			if locked.TransactionID != nil && *locked.TransactionID == body.Transaction {
				replay = true
				return nil
			}
			return domain.ErrConflictingTransaction
		}
		if locked.Status != model.OrderStatusPending {
			return domain.ErrIllegalTransition
		}

		now := time.Now()
		var current *time.Time
		existing, err := u.subs.FindActiveByUser(ctx, tx, user.ID, order.APIScope)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if existing != nil {
			current = &existing.ExpirationDate
			kind = "extend"
		}

		expiration := model.NextExpiration(current, now, u.periods(string(order.Plan)))
		sub, err := model.NewSubscription(user.ID, order.Plan, order.APIScope, now, expiration, order.ID)
		if err != nil {
			return err
		}
		if err := u.subs.Upsert(ctx, tx, sub); err != nil {
			return err
		}

		_, err = u.ledger.MarkPaid(ctx, tx, order.OrderID, body.Transaction, raw)
		return err
	})
	if txErr != nil {
		// Idempotency conflicts keep their precise shape; everything else is
		// an activation failure after rollback.
		if errors.Is(txErr, domain.ErrConflictingTransaction) || errors.Is(txErr, domain.ErrStaleOrder) {
			return txErr
		}
		u.log.Error().Err(txErr).Str("order_id", order.OrderID).Msg("activation rolled back")
		return domain.ErrActivationFailed
	}

	if replay {
		u.log.Debug().Str("order_id", order.OrderID).Msg("callback replay, already settled")
		return nil
	}

	metrics.IncActivation(kind)
	u.log.Info().Str("order_id", order.OrderID).Str("user_id", user.ID).Str("kind", kind).Msg("subscription activated")
	return nil
}
