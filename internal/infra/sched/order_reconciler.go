package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"backlify-payments/internal/domain/ports/repository"
	"backlify-payments/internal/usecase"
)

// OrderReconciler periodically cancels orders that stayed pending past their
// TTL. This covers abandoned checkouts and callbacks that never arrived; an
// order the gateway settles later simply loses the pending->cancelled race
// and the callback is rejected with a precise diagnostic.
type OrderReconciler struct {
	ledger     usecase.OrderUseCase
	orders     repository.OrderRepository
	interval   time.Duration
	staleAfter time.Duration
	log        *zerolog.Logger
}

func NewOrderReconciler(ledger usecase.OrderUseCase, orders repository.OrderRepository, interval, staleAfter time.Duration, logger *zerolog.Logger) *OrderReconciler {
	l := logger.With().Str("component", "OrderReconciler").Logger()
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	return &OrderReconciler{ledger: ledger, orders: orders, interval: interval, staleAfter: staleAfter, log: &l}
}

func (w *OrderReconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *OrderReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.orders.ListPendingOlderThan(ctx, repository.NoTX, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale pending orders")
		return
	}
	for _, o := range pending {
		if err := w.ledger.MarkCancelled(ctx, repository.NoTX, o.OrderID, nil); err != nil {
			// a concurrent callback may have settled it; that is fine
			w.log.Debug().Err(err).Str("order_id", o.OrderID).Msg("stale order not cancelled")
			continue
		}
		w.log.Info().Str("order_id", o.OrderID).Msg("stale pending order cancelled")
	}
}
