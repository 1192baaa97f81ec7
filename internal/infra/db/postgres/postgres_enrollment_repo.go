package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"course-ledger/internal/domain/model"
	"course-ledger/internal/domain/ports/repository"
)

var _ repository.EnrollmentRepository = (*enrollmentRepo)(nil)

// enrollmentRepo reads grants written by the free-signup service. Save exists for
// seeding and tests.
type enrollmentRepo struct{ pool *pgxpool.Pool }

func NewEnrollmentRepo(pool *pgxpool.Pool) *enrollmentRepo {
	return &enrollmentRepo{pool: pool}
}

func (r *enrollmentRepo) Save(ctx context.Context, tx repository.Tx, e *model.Enrollment) error {
	const q = `
INSERT INTO enrollments (id, user_id, course_id, status, enrolled_at, progress_percentage)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET status=$4, progress_percentage=$6;`

	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.UserID, e.CourseID, string(e.Status), e.EnrolledAt, e.ProgressPercentage)
	return mapExecErr(err)
}

func (r *enrollmentRepo) ListActiveByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Enrollment, error) {
	const q = `
SELECT id, user_id, course_id, status, enrolled_at, progress_percentage
  FROM enrollments
 WHERE user_id=$1 AND status='ACTIVE'
 ORDER BY enrolled_at ASC, id ASC;`

	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Enrollment
	for rows.Next() {
		e := &model.Enrollment{}
		var status string
		if err := rows.Scan(&e.ID, &e.UserID, &e.CourseID, &status, &e.EnrolledAt, &e.ProgressPercentage); err != nil {
			return nil, mapScanErr(err)
		}
		e.Status = model.EnrollmentStatus(status)
		out = append(out, e)
	}
	return out, mapExecErr(rows.Err())
}
