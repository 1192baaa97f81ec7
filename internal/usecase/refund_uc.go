package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-ledger/internal/domain"
	"course-ledger/internal/domain/model"
	"course-ledger/internal/domain/ports/adapter"
	"course-ledger/internal/domain/ports/repository"
	"course-ledger/internal/infra/metrics"
)

// Compile-time check
var _ RefundUseCase = (*refundUC)(nil)

// Refund sources, used for logs and metrics.
const (
	RefundSourceAdmin   = "admin"
	RefundSourceWebhook = "webhook"
	RefundSourceKafka   = "kafka"
)

// RefundUseCase records refunds decided outside this service. Refunds are
// never initiated here; a purchase only moves COMPLETED -> REFUNDED.
type RefundUseCase interface {
	// MarkRefunded is idempotent: a refunded purchase is returned unchanged.
	MarkRefunded(ctx context.Context, purchaseID string, at time.Time, source string) (*model.Purchase, error)
	MarkRefundedByTransaction(ctx context.Context, gatewayTransactionID string, at time.Time, source string) (*model.Purchase, error)
	// RefundFromGateway re-queries the gateway and applies the refund only if it
	// reports the payment as cancelled.
	RefundFromGateway(ctx context.Context, paymentKey string) (*model.Purchase, error)
	ApplyRefundNotice(ctx context.Context, n adapter.RefundNotice) error
}

type refundUC struct {
	tm        repository.TransactionManager
	purchases repository.PurchaseRepository
	gateway   adapter.PaymentGateway
	events    adapter.EventPublisher
	now       func() time.Time

	log *zerolog.Logger
}

func NewRefundUseCase(tm repository.TransactionManager, purchases repository.PurchaseRepository, gateway adapter.PaymentGateway, events adapter.EventPublisher, logger *zerolog.Logger) *refundUC {
	return &refundUC{tm: tm, purchases: purchases, gateway: gateway, events: events, now: time.Now, log: nopLogger(logger)}
}

func (u *refundUC) MarkRefunded(ctx context.Context, purchaseID string, at time.Time, source string) (*model.Purchase, error) {
	if purchaseID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if _, err := uuid.Parse(purchaseID); err != nil {
		return nil, domain.ErrNotFound
	}
	return u.markRefunded(ctx, func(ctx context.Context, tx repository.Tx) (*model.Purchase, error) {
		return u.purchases.FindByID(ctx, tx, purchaseID)
	}, at, source)
}

func (u *refundUC) MarkRefundedByTransaction(ctx context.Context, gatewayTransactionID string, at time.Time, source string) (*model.Purchase, error) {
	if gatewayTransactionID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.markRefunded(ctx, func(ctx context.Context, tx repository.Tx) (*model.Purchase, error) {
		return u.purchases.FindByGatewayTransactionID(ctx, tx, gatewayTransactionID)
	}, at, source)
}

func (u *refundUC) markRefunded(ctx context.Context, find func(context.Context, repository.Tx) (*model.Purchase, error), at time.Time, source string) (*model.Purchase, error) {
	if at.IsZero() {
		at = u.now()
	}
	at = at.UTC()

	var (
		out     *model.Purchase
		changed bool
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := find(ctx, tx)
		if err != nil {
			return err
		}
		if p.IsRefunded() {
			out = p
			return nil
		}
		if !p.IsCompleted() {
			return domain.ErrNotRefundable
		}
		ok, err := u.purchases.MarkRefunded(ctx, tx, p.ID, at)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotRefundable
		}
		p.Status = model.PurchaseStatusRefunded
		p.RefundedAt = &at
		out, changed = p, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		metrics.IncRefund(source)
		u.log.Info().
			Str("purchase_id", out.ID).
			Str("user_id", out.UserID).
			Str("course_id", out.CourseID).
			Str("source", source).
			Msg("purchase refunded")
		publish(ctx, u.events, u.log, adapter.LedgerEvent{
			Type:       adapter.EventPurchaseRefunded,
			OrderID:    out.OrderID,
			PurchaseID: out.ID,
			UserID:     out.UserID,
			CourseID:   out.CourseID,
			Amount:     out.Amount,
			Currency:   out.Currency,
			Reason:     source,
			OccurredAt: at,
		})
	}
	return out, nil
}

func (u *refundUC) RefundFromGateway(ctx context.Context, paymentKey string) (*model.Purchase, error) {
	gtx, err := u.gateway.VerifyTransaction(ctx, paymentKey)
	if err != nil {
		return nil, gatewayError(err)
	}
	if gtx.Status != adapter.GatewayStatusCanceled {
		// Partial cancellations keep access; they are settled by the refund processor.
		u.log.Info().Str("gateway_status", string(gtx.Status)).Msg("gateway refund notice ignored")
		return nil, domain.ErrNotRefundable
	}
	return u.MarkRefundedByTransaction(ctx, gtx.TransactionID, u.now(), RefundSourceWebhook)
}

func (u *refundUC) ApplyRefundNotice(ctx context.Context, n adapter.RefundNotice) error {
	var err error
	switch {
	case n.PurchaseID != "":
		_, err = u.MarkRefunded(ctx, n.PurchaseID, n.RefundedAt, RefundSourceKafka)
	case n.GatewayTransactionID != "":
		_, err = u.MarkRefundedByTransaction(ctx, n.GatewayTransactionID, n.RefundedAt, RefundSourceKafka)
	default:
		err = domain.ErrInvalidArgument
	}
	if errors.Is(err, domain.ErrNotFound) {
		u.log.Warn().Str("purchase_id", n.PurchaseID).Str("gateway_transaction_id", n.GatewayTransactionID).Msg("refund notice for unknown purchase")
	}
	return err
}
