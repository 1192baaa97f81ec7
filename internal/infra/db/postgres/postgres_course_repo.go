package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"course-ledger/internal/domain"
	"course-ledger/internal/domain/model"
	"course-ledger/internal/domain/ports/repository"
)

var _ repository.CourseRepository = (*courseRepo)(nil)

type courseRepo struct{ pool *pgxpool.Pool }

func NewCourseRepo(pool *pgxpool.Pool) *courseRepo {
	return &courseRepo{pool: pool}
}

func (r *courseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Course, error) {
	const q = `SELECT id, title, category, price, published FROM courses WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	c := &model.Course{}
	if err := row.Scan(&c.ID, &c.Title, &c.Category, &c.Price, &c.Published); err != nil {
		return nil, mapScanErr(err)
	}
	return c, nil
}

func (r *courseRepo) Categories(ctx context.Context, tx repository.Tx, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	const q = `SELECT id, category FROM courses WHERE id = ANY($1);`
	rows, err := queryRows(ctx, r.pool, tx, q, ids)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, category string
		if err := rows.Scan(&id, &category); err != nil {
			return nil, mapScanErr(err)
		}
		out[id] = category
	}
	return out, mapExecErr(rows.Err())
}

func (r *courseRepo) Save(ctx context.Context, tx repository.Tx, c *model.Course) error {
	if c.IsZero() || c.Price < 0 {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO courses (id, title, category, price, published)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET title=$2, category=$3, price=$4, published=$5;`

	_, err := execSQL(ctx, r.pool, tx, q, c.ID, c.Title, c.Category, c.Price, c.Published)
	return mapExecErr(err)
}
