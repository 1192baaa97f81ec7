package repository

import (
	"context"
	"time"

	"course-ledger/internal/domain/model"
)

// -----------------------------
// Purchases
// -----------------------------

type PurchaseRepository interface {
	// Insert appends a ledger entry. A unique violation on order_id or
	// gateway_transaction_id returns domain.ErrDuplicateReconciliation.
	Insert(ctx context.Context, tx Tx, p *model.Purchase) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Purchase, error)
	FindByOrderID(ctx context.Context, tx Tx, orderID string) (*model.Purchase, error)
	FindByGatewayTransactionID(ctx context.Context, tx Tx, transactionID string) (*model.Purchase, error)
	ListCompletedByUser(ctx context.Context, tx Tx, userID string) ([]*model.Purchase, error)
	// ListCreatedBetween returns every purchase with created_at in [from, to), any status.
	ListCreatedBetween(ctx context.Context, tx Tx, from, to time.Time) ([]*model.Purchase, error)
	// MarkRefunded moves COMPLETED -> REFUNDED. Reports whether a row changed.
	MarkRefunded(ctx context.Context, tx Tx, id string, at time.Time) (bool, error)
}

// -----------------------------
// Enrollments (written by the free-signup service)
// -----------------------------

type EnrollmentRepository interface {
	Save(ctx context.Context, tx Tx, e *model.Enrollment) error
	ListActiveByUser(ctx context.Context, tx Tx, userID string) ([]*model.Enrollment, error)
}

// -----------------------------
// Catalog (read-only)
// -----------------------------

type CourseRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Course, error)
	// Categories maps each known course id to its category.
	Categories(ctx context.Context, tx Tx, ids []string) (map[string]string, error)
	Save(ctx context.Context, tx Tx, c *model.Course) error
}
