package repository

import (
	"context"
	"time"

	"course-ledger/internal/domain/model"
)

// -----------------------------
// Orders
// -----------------------------

type OrderRepository interface {
	// Save inserts a new order. Orders are never deleted.
	Save(ctx context.Context, tx Tx, o *model.Order) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Order, error)
	FindByGatewayOrderID(ctx context.Context, tx Tx, gatewayOrderID string) (*model.Order, error)

	// MarkPendingVerification moves CREATED -> PENDING_VERIFICATION and records the
	// payment key. Reports false when the order is not in a pending state.
	MarkPendingVerification(ctx context.Context, tx Tx, id, paymentKey string) (bool, error)
	// UpdateStatusIfPending atomically transitions an order that is still CREATED or
	// PENDING_VERIFICATION. Reports whether a row changed.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id string, status model.OrderStatus, reason *string) (bool, error)

	// ExpireStale moves CREATED and PENDING_VERIFICATION orders with
	// expires_at < now to EXPIRED. Returns affected rows.
	ExpireStale(ctx context.Context, tx Tx, now time.Time) (int, error)
	// ListOrphans returns PENDING_VERIFICATION orders untouched since updatedBefore
	// whose expires_at is still after expiresAfter.
	ListOrphans(ctx context.Context, tx Tx, updatedBefore, expiresAfter time.Time, limit int) ([]*model.Order, error)
}
