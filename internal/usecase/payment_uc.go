package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"course-ledger/internal/domain"
	"course-ledger/internal/domain/model"
	"course-ledger/internal/domain/ports/adapter"
	"course-ledger/internal/domain/ports/repository"
	"course-ledger/internal/infra/logging"
	"course-ledger/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// VerificationResult always references the single purchase of the order.
type VerificationResult struct {
	Order            *model.Order    `json:"order"`
	Purchase         *model.Purchase `json:"purchase"`
	AlreadyProcessed bool            `json:"alreadyProcessed"`
}

type PaymentUseCase interface {
	// VerifyPayment confirms a client-reported payment against the gateway.
	// userID scopes the lookup; empty means a trusted caller.
	VerifyPayment(ctx context.Context, userID, orderID, paymentKey string) (*VerificationResult, error)
	// VerifyGatewayOrder is VerifyPayment keyed by our gateway order id. userID
	// scopes the lookup the same way; only the signed webhook passes empty.
	VerifyGatewayOrder(ctx context.Context, userID, gatewayOrderID, paymentKey string) (*VerificationResult, error)
	// ListOrphans returns PENDING_VERIFICATION orders that stalled before reconciliation.
	ListOrphans(ctx context.Context, now time.Time) ([]*model.Order, error)
	// HealOrphan re-queries the gateway for one orphan and reconciles it.
	HealOrphan(ctx context.Context, o *model.Order) (OrphanOutcome, error)
}

type OrphanOutcome string

const (
	OrphanHealed    OrphanOutcome = "healed"
	OrphanDuplicate OrphanOutcome = "duplicate"
	OrphanPending   OrphanOutcome = "pending"
	OrphanFailed    OrphanOutcome = "failed"
	OrphanNotFound  OrphanOutcome = "not_found"
	OrphanExpired   OrphanOutcome = "expired"
	OrphanError     OrphanOutcome = "error"
)

type PaymentSettings struct {
	OrphanGrace time.Duration
	OrphanBatch int
}

type paymentUC struct {
	orders    repository.OrderRepository
	purchases repository.PurchaseRepository
	reconcile ReconcileUseCase
	gateway   adapter.PaymentGateway
	events    adapter.EventPublisher
	settings  PaymentSettings
	now       func() time.Time

	log *zerolog.Logger
}

func NewPaymentUseCase(
	orders repository.OrderRepository,
	purchases repository.PurchaseRepository,
	reconcile ReconcileUseCase,
	gateway adapter.PaymentGateway,
	events adapter.EventPublisher,
	settings PaymentSettings,
	logger *zerolog.Logger,
) *paymentUC {
	if settings.OrphanGrace <= 0 {
		settings.OrphanGrace = 2 * time.Minute
	}
	if settings.OrphanBatch <= 0 {
		settings.OrphanBatch = 200
	}
	return &paymentUC{
		orders:    orders,
		purchases: purchases,
		reconcile: reconcile,
		gateway:   gateway,
		events:    events,
		settings:  settings,
		now:       time.Now,
		log:       nopLogger(logger),
	}
}

func (u *paymentUC) VerifyPayment(ctx context.Context, userID, orderID, paymentKey string) (res *VerificationResult, err error) {
	start := time.Now()
	defer func() { metrics.ObservePaymentVerify(verifyResultLabel(res, err), time.Since(start)) }()

	if paymentKey == "" {
		return nil, domain.ErrInvalidArgument
	}
	o, err := loadOwnedOrder(ctx, u.orders, userID, orderID)
	if err != nil {
		return nil, err
	}
	return u.verify(ctx, o, paymentKey)
}

func (u *paymentUC) VerifyGatewayOrder(ctx context.Context, userID, gatewayOrderID, paymentKey string) (res *VerificationResult, err error) {
	start := time.Now()
	defer func() { metrics.ObservePaymentVerify(verifyResultLabel(res, err), time.Since(start)) }()

	if paymentKey == "" || gatewayOrderID == "" {
		return nil, domain.ErrInvalidArgument
	}
	o, err := u.orders.FindByGatewayOrderID(ctx, repository.NoTX, gatewayOrderID)
	if err != nil {
		return nil, err
	}
	if userID != "" && o.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return u.verify(ctx, o, paymentKey)
}

func (u *paymentUC) verify(ctx context.Context, o *model.Order, paymentKey string) (*VerificationResult, error) {
	ctx = logging.WithOrderID(ctx, o.ID)
	log := logging.With(ctx, u.log)

	if !o.IsPending() {
		return u.resolveSettled(ctx, o)
	}
	// expires_at is final for every pending order; the orphan sweeper stops at it too.
	if o.IsExpiredAt(u.now()) {
		if _, err := expireOrder(ctx, u.orders, o); err != nil {
			return nil, err
		}
		log.Info().Str("status", string(o.Status)).Msg("verification rejected: order expired")
		return nil, domain.ErrOrderExpired
	}

	gtx, err := u.gateway.VerifyTransaction(ctx, paymentKey)
	if err != nil {
		return nil, gatewayError(err)
	}
	if err := u.checkTransaction(ctx, o, gtx); err != nil {
		return nil, err
	}

	ok, err := u.orders.MarkPendingVerification(ctx, repository.NoTX, o.ID, paymentKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return u.reloadSettled(ctx, o.ID)
	}

	p, created, err := u.reconcile.Reconcile(ctx, o, gtx.TransactionID, gtx.Amount)
	if errors.Is(err, domain.ErrOrderNotPending) {
		return u.reloadSettled(ctx, o.ID)
	}
	if err != nil {
		return nil, err
	}

	fresh, err := u.orders.FindByID(ctx, repository.NoTX, o.ID)
	if err != nil {
		return nil, err
	}
	return &VerificationResult{Order: fresh, Purchase: p, AlreadyProcessed: !created}, nil
}

func (u *paymentUC) reloadSettled(ctx context.Context, orderID string) (*VerificationResult, error) {
	o, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return nil, err
	}
	return u.resolveSettled(ctx, o)
}

// resolveSettled answers for an order that is no longer pending: its purchase
// if one exists, otherwise the terminal error.
func (u *paymentUC) resolveSettled(ctx context.Context, o *model.Order) (*VerificationResult, error) {
	p, err := u.purchases.FindByOrderID(ctx, repository.NoTX, o.ID)
	if err == nil {
		return &VerificationResult{Order: o, Purchase: p, AlreadyProcessed: true}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if o.Status == model.OrderStatusExpired {
		return nil, domain.ErrOrderExpired
	}
	return nil, domain.ErrOrderNotPending
}

// checkTransaction compares what the gateway reports with what we priced.
// Hard mismatches fail the order; an in-progress payment leaves it untouched.
func (u *paymentUC) checkTransaction(ctx context.Context, o *model.Order, gtx *adapter.GatewayTransaction) error {
	log := logging.With(ctx, u.log)

	if gtx.GatewayOrderID != o.GatewayOrderID {
		metrics.IncTamperAttempt("order_id")
		log.Warn().
			Str("expected_gateway_order_id", o.GatewayOrderID).
			Str("reported_gateway_order_id", gtx.GatewayOrderID).
			Msg("possible tampering: payment belongs to another order")
		u.fail(ctx, o, "gateway order id mismatch")
		return domain.ErrOrderMismatch
	}
	if gtx.Amount != o.Amount || gtx.Currency != o.Currency {
		metrics.IncTamperAttempt("amount")
		log.Warn().
			Int64("expected_amount", o.Amount).
			Int64("reported_amount", gtx.Amount).
			Str("expected_currency", o.Currency).
			Str("reported_currency", gtx.Currency).
			Msg("possible tampering: amount mismatch")
		u.fail(ctx, o, fmt.Sprintf("amount mismatch: expected %d %s, gateway reported %d %s", o.Amount, o.Currency, gtx.Amount, gtx.Currency))
		return domain.ErrAmountMismatch
	}
	switch {
	case gtx.Status.IsDone():
		return nil
	case gtx.Status.IsFailed(), gtx.Status.IsCanceled():
		u.fail(ctx, o, "gateway status "+string(gtx.Status))
		return domain.ErrPaymentNotCompleted
	default:
		log.Info().Str("gateway_status", string(gtx.Status)).Msg("payment not completed yet")
		return domain.ErrPaymentNotCompleted
	}
}

func (u *paymentUC) fail(ctx context.Context, o *model.Order, reason string) {
	ok, err := u.orders.UpdateStatusIfPending(ctx, repository.NoTX, o.ID, model.OrderStatusFailed, &reason)
	if err != nil {
		logging.With(ctx, u.log).Error().Err(err).Msg("mark order failed")
		return
	}
	if ok {
		publish(ctx, u.events, u.log, adapter.LedgerEvent{
			Type:     adapter.EventOrderFailed,
			OrderID:  o.ID,
			UserID:   o.UserID,
			CourseID: o.CourseID,
			Amount:   o.Amount,
			Currency: o.Currency,
			Reason:   reason,
		})
	}
}

func (u *paymentUC) ListOrphans(ctx context.Context, now time.Time) ([]*model.Order, error) {
	now = now.UTC()
	return u.orders.ListOrphans(ctx, repository.NoTX, now.Add(-u.settings.OrphanGrace), now, u.settings.OrphanBatch)
}

func (u *paymentUC) HealOrphan(ctx context.Context, o *model.Order) (OrphanOutcome, error) {
	ctx = logging.WithOrderID(ctx, o.ID)
	log := logging.With(ctx, u.log)

	if o.IsExpiredAt(u.now()) {
		if _, err := expireOrder(ctx, u.orders, o); err != nil {
			return OrphanError, err
		}
		log.Warn().Msg("orphan reached expires_at before healing; a captured payment needs a refund")
		return OrphanExpired, nil
	}

	gtx, err := u.gateway.FindByOrderID(ctx, o.GatewayOrderID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Info().Msg("orphan unknown to gateway, left for expiry")
		return OrphanNotFound, nil
	}
	if err != nil {
		return OrphanError, gatewayError(err)
	}

	switch err := u.checkTransaction(ctx, o, gtx); {
	case errors.Is(err, domain.ErrPaymentNotCompleted) && !gtx.Status.IsFailed() && !gtx.Status.IsCanceled():
		return OrphanPending, nil
	case err != nil:
		return OrphanFailed, nil
	}

	_, created, err := u.reconcile.Reconcile(ctx, o, gtx.TransactionID, gtx.Amount)
	if errors.Is(err, domain.ErrOrderNotPending) {
		return OrphanFailed, nil
	}
	if errors.Is(err, domain.ErrOrderExpired) {
		return OrphanExpired, nil
	}
	if err != nil {
		return OrphanError, err
	}
	if created {
		log.Info().Msg("orphan healed")
		return OrphanHealed, nil
	}
	return OrphanDuplicate, nil
}

// gatewayError maps adapter failures onto the verification taxonomy.
func gatewayError(err error) error {
	switch {
	case errors.Is(err, domain.ErrGatewayUnavailable), errors.Is(err, domain.ErrGatewayRejected):
		return err
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidArgument):
		return fmt.Errorf("%w: %w", domain.ErrGatewayRejected, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
	}
}

func verifyResultLabel(res *VerificationResult, err error) string {
	switch {
	case err == nil && res != nil && res.AlreadyProcessed:
		return "duplicate"
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrOrderExpired):
		return "expired"
	case errors.Is(err, domain.ErrOrderNotPending):
		return "not_pending"
	case errors.Is(err, domain.ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, domain.ErrOrderMismatch):
		return "order_mismatch"
	case errors.Is(err, domain.ErrPaymentNotCompleted):
		return "not_completed"
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return "gateway_unavailable"
	case errors.Is(err, domain.ErrGatewayRejected):
		return "gateway_rejected"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
