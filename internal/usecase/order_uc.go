// File: internal/usecase/order_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"backlify-payments/internal/domain"
	"backlify-payments/internal/domain/model"
	"backlify-payments/internal/domain/ports/repository"
	"backlify-payments/internal/infra/metrics"
)

// Compile-time check
var _ OrderUseCase = (*orderUC)(nil)

// OrderUseCase is the ledger facade over the orders table. Every mutation
// reachable from a gateway callback keys on order_id. Mutations accept a tx
// handle so the activator can fold them into its transaction; pass
// repository.NoTX outside one.
type OrderUseCase interface {
	Create(ctx context.Context, userLogin string, plan model.PlanCode, amount decimal.Decimal, currency, description string, apiScope *string) (*model.Order, error)

	// MarkPaid transitions pending -> paid. Idempotent in txRef: a replay with
	// the same ref returns the paid order; a different ref on a paid order
	// fails with domain.ErrConflictingTransaction.
	MarkPaid(ctx context.Context, tx repository.Tx, orderID, txRef string, rawPayload []byte) (*model.Order, error)
	MarkFailed(ctx context.Context, tx repository.Tx, orderID, reason string, rawPayload []byte) error
	MarkCancelled(ctx context.Context, tx repository.Tx, orderID string, rawPayload []byte) error
	MarkReversed(ctx context.Context, tx repository.Tx, orderID, reversalRef string) (*model.Order, error)

	GetByOrderID(ctx context.Context, orderID string) (*model.Order, error)
	// GetForUpdate reads the order inside tx with a row lock, serializing
	// concurrent callbacks for the same order_id.
	GetForUpdate(ctx context.Context, tx repository.Tx, orderID string) (*model.Order, error)
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	ListForUser(ctx context.Context, userLogin string, f repository.OrderFilter) ([]*model.Order, error)
}

type orderUC struct {
	orders  repository.OrderRepository
	entropy *ulid.MonotonicEntropy
	log     *zerolog.Logger
}

func NewOrderUseCase(orders repository.OrderRepository, logger *zerolog.Logger) *orderUC {
	l := logger.With().Str("component", "OrderUC").Logger()
	return &orderUC{
		orders:  orders,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		log:     &l,
	}
}

// newOrderID generates an opaque, collision-resistant external id. The gateway
// observes nothing about it beyond uniqueness.
func (u *orderUC) newOrderID() string {
	return "SUB-" + ulid.MustNew(ulid.Timestamp(time.Now()), u.entropy).String()
}

func (u *orderUC) Create(ctx context.Context, userLogin string, plan model.PlanCode, amount decimal.Decimal, currency, description string, apiScope *string) (*model.Order, error) {
	o, err := model.NewOrder(u.newOrderID(), userLogin, plan, amount, currency, description, apiScope)
	if err != nil {
		return nil, err
	}
	if err := u.orders.Insert(ctx, repository.NoTX, o); err != nil {
		return nil, err
	}
	metrics.IncOrder(string(model.OrderStatusPending))
	u.log.Info().Str("order_id", o.OrderID).Str("user", userLogin).Str("plan", string(plan)).Msg("order created")
	return o, nil
}

func (u *orderUC) MarkPaid(ctx context.Context, tx repository.Tx, orderID, txRef string, rawPayload []byte) (*model.Order, error) {
	if txRef == "" {
		return nil, domain.ErrInvalidArgument
	}
	// One retry after re-reading: losing the CAS means a concurrent callback
	// got there first, and the second read resolves to the idempotent path.
	for attempt := 0; attempt < 2; attempt++ {
		o, err := u.orders.FindByOrderID(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.ErrUnknownOrder
			}
			return nil, err
		}
		switch o.Status {
		case model.OrderStatusPaid:
			if o.TransactionID != nil && *o.TransactionID == txRef {
				return o, nil
			}
			return nil, domain.ErrConflictingTransaction
		case model.OrderStatusPending:
			ok, err := u.orders.UpdateStatusIf(ctx, tx, orderID, []model.OrderStatus{model.OrderStatusPending}, model.OrderStatusPaid, &txRef, rawPayload)
			if err != nil {
				return nil, err
			}
			if ok {
				o.Status = model.OrderStatusPaid
				o.TransactionID = &txRef
				o.PaymentDetails = rawPayload
				metrics.IncOrder(string(model.OrderStatusPaid))
				return o, nil
			}
			// lost the race; re-read and retry once
		default:
			return nil, domain.ErrIllegalTransition
		}
	}
	return nil, domain.ErrStaleOrder
}

func (u *orderUC) MarkFailed(ctx context.Context, tx repository.Tx, orderID, reason string, rawPayload []byte) error {
	details := rawPayload
	if details == nil && reason != "" {
		details, _ = json.Marshal(map[string]string{"reason": reason})
	}
	if err := u.transition(ctx, tx, orderID, model.OrderStatusPending, model.OrderStatusFailed, nil, details); err != nil {
		return err
	}
	u.log.Info().Str("order_id", orderID).Str("reason", reason).Msg("order failed")
	return nil
}

func (u *orderUC) MarkCancelled(ctx context.Context, tx repository.Tx, orderID string, rawPayload []byte) error {
	return u.transition(ctx, tx, orderID, model.OrderStatusPending, model.OrderStatusCancelled, nil, rawPayload)
}

func (u *orderUC) MarkReversed(ctx context.Context, tx repository.Tx, orderID, reversalRef string) (*model.Order, error) {
	// payment_transaction_id stays untouched: it is immutable once paid. The
	// reversal ref lands in payment_details.
	details, _ := json.Marshal(map[string]string{"reversal_ref": reversalRef})
	if err := u.transition(ctx, tx, orderID, model.OrderStatusPaid, model.OrderStatusReversed, nil, details); err != nil {
		return nil, err
	}
	return u.orders.FindByOrderID(ctx, tx, orderID)
}

// transition runs one CAS step from -> to and maps a guard miss to the precise
// diagnostic: unknown order, stale order, or an illegal transition.
func (u *orderUC) transition(ctx context.Context, tx repository.Tx, orderID string, from, to model.OrderStatus, txRef *string, details []byte) error {
	ok, err := u.orders.UpdateStatusIf(ctx, tx, orderID, []model.OrderStatus{from}, to, txRef, details)
	if err != nil {
		return err
	}
	if !ok {
		o, err := u.orders.FindByOrderID(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrUnknownOrder
			}
			return err
		}
		if o.Status == from {
			return domain.ErrStaleOrder
		}
		return domain.ErrIllegalTransition
	}
	metrics.IncOrder(string(to))
	return nil
}

func (u *orderUC) GetByOrderID(ctx context.Context, orderID string) (*model.Order, error) {
	o, err := u.orders.FindByOrderID(ctx, repository.NoTX, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnknownOrder
		}
		return nil, err
	}
	return o, nil
}

func (u *orderUC) GetForUpdate(ctx context.Context, tx repository.Tx, orderID string) (*model.Order, error) {
	o, err := u.orders.FindByOrderID(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnknownOrder
		}
		return nil, err
	}
	return o, nil
}

func (u *orderUC) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	return u.orders.FindByID(ctx, repository.NoTX, id)
}

func (u *orderUC) ListForUser(ctx context.Context, userLogin string, f repository.OrderFilter) ([]*model.Order, error) {
	return u.orders.ListByUser(ctx, repository.NoTX, userLogin, f)
}
