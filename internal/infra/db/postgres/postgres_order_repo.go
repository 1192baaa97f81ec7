package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-ledger/internal/domain"
	"course-ledger/internal/domain/model"
	"course-ledger/internal/domain/ports/repository"
)

var _ repository.OrderRepository = (*orderRepo)(nil)

type orderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

const orderColumns = `id, user_id, course_id, amount, currency, status, gateway_order_id, gateway_payment_key, failure_reason, created_at, updated_at, expires_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	o := &model.Order{}
	var status string
	if err := row.Scan(&o.ID, &o.UserID, &o.CourseID, &o.Amount, &o.Currency, &status, &o.GatewayOrderID,
		&o.GatewayPaymentKey, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt, &o.ExpiresAt); err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	return o, nil
}

func (r *orderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	const q = `
INSERT INTO orders (` + orderColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`

	_, err := execSQL(ctx, r.pool, tx, q, o.ID, o.UserID, o.CourseID, o.Amount, o.Currency, string(o.Status),
		o.GatewayOrderID, o.GatewayPaymentKey, o.FailureReason, o.CreatedAt, o.UpdatedAt, o.ExpiresAt)
	if _, dup := uniqueViolation(err); dup {
		return domain.ErrAlreadyExists
	}
	return mapExecErr(err)
}

func (r *orderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if isTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	o, err := scanOrder(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return o, nil
}

func (r *orderRepo) FindByGatewayOrderID(ctx context.Context, tx repository.Tx, gatewayOrderID string) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE gateway_order_id=$1`
	if isTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, gatewayOrderID)
	if err != nil {
		return nil, err
	}
	o, err := scanOrder(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return o, nil
}

func (r *orderRepo) MarkPendingVerification(ctx context.Context, tx repository.Tx, id, paymentKey string) (bool, error) {
	const q = `
UPDATE orders
   SET status = 'PENDING_VERIFICATION',
       gateway_payment_key = $2,
       updated_at = NOW()
 WHERE id = $1
   AND status IN ('CREATED','PENDING_VERIFICATION');`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, paymentKey)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

// UpdateStatusIfPending atomically updates status only when the order is still CREATED or PENDING_VERIFICATION.
func (r *orderRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.OrderStatus, reason *string) (bool, error) {
	if !model.OrderStatusPendingVerification.CanTransition(status) {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE orders
   SET status = $2,
       failure_reason = COALESCE($3, failure_reason),
       updated_at = NOW()
 WHERE id = $1
   AND status IN ('CREATED','PENDING_VERIFICATION');`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status), reason)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *orderRepo) ExpireStale(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	const q = `
UPDATE orders
   SET status = 'EXPIRED',
       updated_at = NOW()
 WHERE status IN ('CREATED', 'PENDING_VERIFICATION')
   AND expires_at < $1;`

	cmd, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, mapExecErr(err)
	}
	return int(cmd.RowsAffected()), nil
}

func (r *orderRepo) ListOrphans(ctx context.Context, tx repository.Tx, updatedBefore, expiresAfter time.Time, limit int) ([]*model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + orderColumns + `
  FROM orders
 WHERE status = 'PENDING_VERIFICATION'
   AND updated_at < $1
   AND expires_at > $2
 ORDER BY updated_at ASC
 LIMIT $3;`

	rows, err := queryRows(ctx, r.pool, tx, q, updatedBefore, expiresAfter, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, mapScanErr(err)
		}
		out = append(out, o)
	}
	return out, mapExecErr(rows.Err())
}
