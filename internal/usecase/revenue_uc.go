package usecase

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"course-ledger/internal/domain/model"
	"course-ledger/internal/domain/ports/repository"
	"course-ledger/internal/infra/logging"
)

// Compile-time check
var _ RevenueUseCase = (*revenueUC)(nil)

type RevenueUseCase interface {
	// Aggregate recomputes the snapshot from purchase rows created in [from, to).
	Aggregate(ctx context.Context, w model.RevenueWindow) (*model.RevenueSnapshot, error)
	// AggregatePeriod resolves day|week|month|year to a window ending now.
	AggregatePeriod(ctx context.Context, period string) (*model.RevenueSnapshot, error)
}

type revenueUC struct {
	tm        repository.TransactionManager
	purchases repository.PurchaseRepository
	courses   repository.CourseRepository
	currency  string
	now       func() time.Time

	log *zerolog.Logger
}

func NewRevenueUseCase(tm repository.TransactionManager, purchases repository.PurchaseRepository, courses repository.CourseRepository, currency string, logger *zerolog.Logger) *revenueUC {
	return &revenueUC{tm: tm, purchases: purchases, courses: courses, currency: currency, now: time.Now, log: nopLogger(logger)}
}

func (u *revenueUC) Aggregate(ctx context.Context, w model.RevenueWindow) (*model.RevenueSnapshot, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	defer logging.TraceDuration(u.log, "RevenueUseCase.Aggregate")()

	var purchases []*model.Purchase
	err := u.tm.WithTx(ctx, repository.SnapshotTxOptions, func(ctx context.Context, tx repository.Tx) error {
		var err error
		purchases, err = u.purchases.ListCreatedBetween(ctx, tx, w.From, w.To)
		return err
	})
	if err != nil {
		return nil, err
	}

	categories, err := u.courses.Categories(ctx, repository.NoTX, courseIDs(purchases))
	if err != nil {
		return nil, err
	}
	snap := model.ComputeRevenueSnapshot(w, u.currency, purchases, categories)
	return &snap, nil
}

func (u *revenueUC) AggregatePeriod(ctx context.Context, period string) (*model.RevenueSnapshot, error) {
	w, err := model.WindowForPeriod(period, u.now())
	if err != nil {
		return nil, err
	}
	return u.Aggregate(ctx, w)
}

func courseIDs(ps []*model.Purchase) []string {
	seen := make(map[string]struct{}, len(ps))
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		if _, ok := seen[p.CourseID]; ok {
			continue
		}
		seen[p.CourseID] = struct{}{}
		out = append(out, p.CourseID)
	}
	sort.Strings(out)
	return out
}
