package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"course-ledger/internal/domain/model"
	"course-ledger/internal/infra/metrics"
	red "course-ledger/internal/infra/redis"
	"course-ledger/internal/infra/worker"
	"course-ledger/internal/usecase"
)

const orphanLockKey = "lock:orphan-sweeper"

type healResult struct {
	order   *model.Order
	outcome usecase.OrphanOutcome
	err     error
}

// OrphanSweeper re-queries the gateway for orders that were confirmed there
// but never reached a purchase (crash or timeout between the two steps).
// A Redis lease keeps one instance sweeping at a time; the reconciliation
// itself stays idempotent if two ever overlap.
type OrphanSweeper struct {
	interval time.Duration
	payUC    usecase.PaymentUseCase
	locker   red.Locker
	pool     *worker.Pool
	now      func() time.Time
	log      *zerolog.Logger
}

func NewOrphanSweeper(interval time.Duration, payUC usecase.PaymentUseCase, locker red.Locker, pool *worker.Pool, logger *zerolog.Logger) *OrphanSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "OrphanSweeper").Logger()
	return &OrphanSweeper{interval: interval, payUC: payUC, locker: locker, pool: pool, now: time.Now, log: &l}
}

func (s *OrphanSweeper) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.interval).Msg("Starting orphan sweeper")
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Stopping orphan sweeper")
			return ctx.Err()
		case <-t.C:
			if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error().Err(err).Msg("orphan sweep failed")
			}
		}
	}
}

// Sweep heals one batch and reports outcomes. It returns nil counts when
// another instance holds the lease.
func (s *OrphanSweeper) Sweep(ctx context.Context) (map[usecase.OrphanOutcome]int, error) {
	token, ok, err := s.locker.TryLock(ctx, orphanLockKey, 2*s.interval)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.log.Debug().Msg("sweep skipped: lease held elsewhere")
		return nil, nil
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), orphanLockKey, token); err != nil {
			s.log.Warn().Err(err).Msg("release sweeper lease")
		}
	}()

	orphans, err := s.payUC.ListOrphans(ctx, s.now())
	if err != nil {
		return nil, err
	}

	// Buffered for the whole batch: a task finishing after Sweep returned never blocks.
	results := make(chan healResult, len(orphans))
	submitted := 0
	for _, o := range orphans {
		o := o
		err := s.pool.SubmitWait(ctx, func(ctx context.Context) error {
			outcome, err := s.payUC.HealOrphan(ctx, o)
			results <- healResult{order: o, outcome: outcome, err: err}
			return nil
		})
		if err != nil {
			return nil, err
		}
		submitted++
	}

	counts := map[usecase.OrphanOutcome]int{}
	for i := 0; i < submitted; i++ {
		select {
		case r := <-results:
			metrics.IncOrphan(string(r.outcome))
			if r.err != nil {
				s.log.Warn().Err(r.err).Str("order_id", r.order.ID).Msg("orphan not healed")
			}
			counts[r.outcome]++
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if len(orphans) > 0 {
		s.log.Info().
			Int("orphans", len(orphans)).
			Int("healed", counts[usecase.OrphanHealed]).
			Int("failed", counts[usecase.OrphanFailed]).
			Int("expired", counts[usecase.OrphanExpired]).
			Int("errors", counts[usecase.OrphanError]).
			Msg("orphan sweep finished")
	}
	return counts, nil
}
