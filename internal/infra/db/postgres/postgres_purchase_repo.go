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

var _ repository.PurchaseRepository = (*purchaseRepo)(nil)

type purchaseRepo struct{ pool *pgxpool.Pool }

func NewPurchaseRepo(pool *pgxpool.Pool) *purchaseRepo {
	return &purchaseRepo{pool: pool}
}

const purchaseColumns = `id, order_id, gateway_transaction_id, user_id, course_id, amount, currency, status, created_at, refunded_at`

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	p := &model.Purchase{}
	var status string
	if err := row.Scan(&p.ID, &p.OrderID, &p.GatewayTransactionID, &p.UserID, &p.CourseID,
		&p.Amount, &p.Currency, &status, &p.CreatedAt, &p.RefundedAt); err != nil {
		return nil, err
	}
	p.Status = model.PurchaseStatus(status)
	return p, nil
}

// Insert relies on the purchases_order_id_key and purchases_gateway_transaction_id_key
// constraints: a concurrent insert for the same order blocks until the winner
// commits and then fails with 23505.
func (r *purchaseRepo) Insert(ctx context.Context, tx repository.Tx, p *model.Purchase) error {
	const q = `
INSERT INTO purchases (` + purchaseColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.OrderID, p.GatewayTransactionID, p.UserID, p.CourseID,
		p.Amount, p.Currency, string(p.Status), p.CreatedAt, p.RefundedAt)
	if _, dup := uniqueViolation(err); dup {
		return domain.ErrDuplicateReconciliation
	}
	return mapExecErr(err)
}

func (r *purchaseRepo) findOne(ctx context.Context, tx repository.Tx, where string, arg interface{}) (*model.Purchase, error) {
	q := `SELECT ` + purchaseColumns + ` FROM purchases WHERE ` + where + `=$1`
	if isTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	p, err := scanPurchase(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}

func (r *purchaseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Purchase, error) {
	return r.findOne(ctx, tx, "id", id)
}

func (r *purchaseRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Purchase, error) {
	return r.findOne(ctx, tx, "order_id", orderID)
}

func (r *purchaseRepo) FindByGatewayTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.Purchase, error) {
	return r.findOne(ctx, tx, "gateway_transaction_id", transactionID)
}

func (r *purchaseRepo) ListCompletedByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Purchase, error) {
	const q = `SELECT ` + purchaseColumns + ` FROM purchases WHERE user_id=$1 AND status='COMPLETED' ORDER BY created_at ASC, id ASC;`
	return r.list(ctx, tx, q, userID)
}

func (r *purchaseRepo) ListCreatedBetween(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Purchase, error) {
	const q = `SELECT ` + purchaseColumns + ` FROM purchases WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at ASC, id ASC;`
	return r.list(ctx, tx, q, from, to)
}

func (r *purchaseRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Purchase, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, mapScanErr(err)
		}
		out = append(out, p)
	}
	return out, mapExecErr(rows.Err())
}

func (r *purchaseRepo) MarkRefunded(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	const q = `
UPDATE purchases
   SET status = 'REFUNDED',
       refunded_at = $2
 WHERE id = $1
   AND status = 'COMPLETED';`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, at)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}
