package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"backlify-payments/internal/domain/ports/repository"
	"backlify-payments/internal/infra/metrics"
)

// ExpiryWorker periodically flips active subscriptions past their expiration
// to expired. Wall-clock driven and idempotent; reads never expire anything.
type ExpiryWorker struct {
	interval time.Duration
	subs     repository.SubscriptionRepository
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, subs repository.SubscriptionRepository, logger *zerolog.Logger) *ExpiryWorker {
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpiryWorker{interval: interval, subs: subs, log: &l}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.subs.ExpireDue(ctx, repository.NoTX, time.Now())
			if err != nil {
				w.log.Error().Err(err).Msg("expiry sweep error")
				continue
			}
			if n > 0 {
				metrics.AddSubscriptionsExpired(n)
				w.log.Info().Int64("count", n).Msg("subscriptions expired")
			}
		}
	}
}
