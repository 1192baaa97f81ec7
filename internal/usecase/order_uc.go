package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"course-ledger/internal/domain"
	"course-ledger/internal/domain/model"
	"course-ledger/internal/domain/ports/adapter"
	"course-ledger/internal/domain/ports/repository"
	"course-ledger/internal/infra/logging"
	"course-ledger/internal/infra/metrics"
)

// Compile-time check
var _ OrderUseCase = (*orderUC)(nil)

type OrderUseCase interface {
	// CreateOrder prices the course server-side and persists a CREATED order.
	CreateOrder(ctx context.Context, userID, courseID string) (*model.Order, error)
	// GetOrder is owner-scoped: another user's order is reported as not found.
	GetOrder(ctx context.Context, userID, orderID string) (*model.Order, error)
	// ExpireStaleOrders is idempotent and safe to run from several instances.
	ExpireStaleOrders(ctx context.Context, now time.Time) (int, error)
}

type OrderSettings struct {
	Currency string
	// TTL bounds every unconfirmed order, including ones awaiting the orphan sweeper.
	TTL time.Duration
}

type orderUC struct {
	orders      repository.OrderRepository
	purchases   repository.PurchaseRepository
	enrollments repository.EnrollmentRepository
	courses     repository.CourseRepository
	events      adapter.EventPublisher
	settings    OrderSettings
	now         func() time.Time

	log *zerolog.Logger
}

func NewOrderUseCase(
	orders repository.OrderRepository,
	purchases repository.PurchaseRepository,
	enrollments repository.EnrollmentRepository,
	courses repository.CourseRepository,
	events adapter.EventPublisher,
	settings OrderSettings,
	logger *zerolog.Logger,
) *orderUC {
	if settings.TTL <= 0 {
		settings.TTL = 30 * time.Minute
	}
	if settings.Currency == "" {
		settings.Currency = "KRW"
	}
	return &orderUC{
		orders:      orders,
		purchases:   purchases,
		enrollments: enrollments,
		courses:     courses,
		events:      events,
		settings:    settings,
		now:         time.Now,
		log:         nopLogger(logger),
	}
}

func (u *orderUC) CreateOrder(ctx context.Context, userID, courseID string) (*model.Order, error) {
	if userID == "" || courseID == "" {
		return nil, domain.ErrInvalidArgument
	}
	log := logging.With(ctx, u.log)

	course, err := u.courses.FindByID(ctx, repository.NoTX, courseID)
	if err != nil {
		return nil, err
	}
	if course.IsZero() || !course.Published {
		return nil, domain.ErrNotFound
	}
	if !course.IsPurchasable() {
		return nil, domain.ErrInvalidRequest
	}

	owned, err := u.owns(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if owned {
		return nil, domain.ErrAlreadyOwned
	}

	o, err := model.NewOrder(userID, course.ID, course.Price, u.settings.Currency, u.settings.TTL, u.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := u.orders.Save(ctx, repository.NoTX, o); err != nil {
		return nil, err
	}

	metrics.IncOrderCreated()
	log.Info().
		Str("order_id", o.ID).
		Str("course_id", o.CourseID).
		Int64("amount", o.Amount).
		Str("gateway_order_id", o.GatewayOrderID).
		Msg("order created")
	return o, nil
}

// owns reports a COMPLETED purchase or ACTIVE enrollment for the course.
func (u *orderUC) owns(ctx context.Context, userID, courseID string) (bool, error) {
	purchases, err := u.purchases.ListCompletedByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return false, err
	}
	for _, p := range purchases {
		if p.CourseID == courseID && p.IsCompleted() {
			return true, nil
		}
	}
	enrollments, err := u.enrollments.ListActiveByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return false, err
	}
	for _, e := range enrollments {
		if e.CourseID == courseID && e.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (u *orderUC) GetOrder(ctx context.Context, userID, orderID string) (*model.Order, error) {
	o, err := loadOwnedOrder(ctx, u.orders, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.IsPending() && o.IsExpiredAt(u.now()) {
		return expireOrder(ctx, u.orders, o)
	}
	return o, nil
}

func (u *orderUC) ExpireStaleOrders(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	n, err := u.orders.ExpireStale(ctx, repository.NoTX, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddOrdersExpired(n)
		u.log.Info().Int("count", n).Msg("stale orders expired")
		publish(ctx, u.events, u.log, adapter.LedgerEvent{Type: adapter.EventOrdersExpired, Count: n, OccurredAt: now})
	}
	return n, nil
}

// loadOwnedOrder hides other users' orders and malformed ids behind ErrNotFound.
// An empty userID skips the ownership check (gateway-initiated paths).
func loadOwnedOrder(ctx context.Context, orders repository.OrderRepository, userID, orderID string) (*model.Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, domain.ErrNotFound
	}
	o, err := orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return nil, err
	}
	if userID != "" && o.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return o, nil
}

// expireOrder moves a lapsed pending order to EXPIRED and returns its current state.
func expireOrder(ctx context.Context, orders repository.OrderRepository, o *model.Order) (*model.Order, error) {
	if _, err := orders.UpdateStatusIfPending(ctx, repository.NoTX, o.ID, model.OrderStatusExpired, nil); err != nil {
		return nil, err
	}
	return orders.FindByID(ctx, repository.NoTX, o.ID)
}
