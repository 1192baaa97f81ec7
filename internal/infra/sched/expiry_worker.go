package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-ledger/internal/usecase"
)

// ExpiryWorker periodically expires abandoned orders via the use case. The
// update is conditional, so several instances may run it concurrently.
type ExpiryWorker struct {
	interval time.Duration
	orderUC  usecase.OrderUseCase
	now      func() time.Time
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, orderUC usecase.OrderUseCase, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval: interval,
		orderUC:  orderUC,
		now:      time.Now,
		log:      &exprLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ExpiryWorker) tick(ctx context.Context) int {
	n, err := w.orderUC.ExpireStaleOrders(ctx, w.now())
	if err != nil {
		w.log.Error().Err(err).Msg("expiry worker error")
		return 0
	}
	return n
}
