package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-ledger/internal/domain"
	"course-ledger/internal/domain/model"
	"course-ledger/internal/domain/ports/adapter"
	"course-ledger/internal/domain/ports/repository"
	"course-ledger/internal/infra/logging"
	"course-ledger/internal/infra/metrics"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

type ReconcileUseCase interface {
	// Reconcile records the purchase for a verified order and confirms the order
	// in one transaction. Concurrent callers for the same order or gateway
	// transaction all receive the single committed purchase; created reports
	// whether this call wrote it.
	Reconcile(ctx context.Context, o *model.Order, gatewayTransactionID string, amount int64) (p *model.Purchase, created bool, err error)
}

type reconcileUC struct {
	tm        repository.TransactionManager
	orders    repository.OrderRepository
	purchases repository.PurchaseRepository
	events    adapter.EventPublisher
	now       func() time.Time

	log *zerolog.Logger
}

func NewReconcileUseCase(tm repository.TransactionManager, orders repository.OrderRepository, purchases repository.PurchaseRepository, events adapter.EventPublisher, logger *zerolog.Logger) *reconcileUC {
	return &reconcileUC{tm: tm, orders: orders, purchases: purchases, events: events, now: time.Now, log: nopLogger(logger)}
}

func (u *reconcileUC) Reconcile(ctx context.Context, o *model.Order, gatewayTransactionID string, amount int64) (*model.Purchase, bool, error) {
	if o.IsExpiredAt(u.now()) {
		metrics.IncReconcile("expired")
		return nil, false, domain.ErrOrderExpired
	}
	p, err := model.NewPurchase(o, gatewayTransactionID, amount, u.now().UTC())
	if err != nil {
		return nil, false, err
	}
	log := logging.With(logging.WithOrderID(ctx, o.ID), u.log)

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.purchases.Insert(ctx, tx, p); err != nil {
			return err
		}
		ok, err := u.orders.UpdateStatusIfPending(ctx, tx, o.ID, model.OrderStatusConfirmed, nil)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrOrderNotPending
		}
		return nil
	})

	switch {
	case err == nil:
		metrics.IncReconcile("created")
		metrics.AddPaymentRevenue(p.Currency, p.Amount)
		log.Info().
			Str("purchase_id", p.ID).
			Str("gateway_transaction_id", p.GatewayTransactionID).
			Int64("amount", p.Amount).
			Msg("purchase recorded")
		publish(ctx, u.events, u.log, adapter.LedgerEvent{
			Type:       adapter.EventPurchaseCompleted,
			OrderID:    o.ID,
			PurchaseID: p.ID,
			UserID:     p.UserID,
			CourseID:   p.CourseID,
			Amount:     p.Amount,
			Currency:   p.Currency,
			OccurredAt: p.CreatedAt,
		})
		return p, true, nil

	case errors.Is(err, domain.ErrDuplicateReconciliation):
		winner, rerr := u.resolveDuplicate(ctx, o.ID, gatewayTransactionID)
		if rerr != nil {
			metrics.IncReconcile("conflict")
			return nil, false, rerr
		}
		metrics.IncReconcile("duplicate")
		log.Debug().Str("purchase_id", winner.ID).Msg("reconciliation lost race, returning existing purchase")
		return winner, false, nil

	case errors.Is(err, domain.ErrOrderNotPending):
		metrics.IncReconcile("not_pending")
		log.Warn().Msg("order left pending state before purchase commit")
		return nil, false, err

	default:
		metrics.IncReconcile("error")
		return nil, false, err
	}
}

// resolveDuplicate re-reads the committed winner. A transaction id already
// bound to a different order is a mismatch, not a duplicate.
func (u *reconcileUC) resolveDuplicate(ctx context.Context, orderID, gatewayTransactionID string) (*model.Purchase, error) {
	existing, err := u.purchases.FindByOrderID(ctx, repository.NoTX, orderID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	other, err := u.purchases.FindByGatewayTransactionID(ctx, repository.NoTX, gatewayTransactionID)
	if err != nil {
		return nil, err
	}
	if other.OrderID != orderID {
		u.log.Warn().
			Str("order_id", orderID).
			Str("bound_order_id", other.OrderID).
			Str("gateway_transaction_id", gatewayTransactionID).
			Msg("gateway transaction already bound to another order")
		return nil, domain.ErrOrderMismatch
	}
	return other, nil
}
