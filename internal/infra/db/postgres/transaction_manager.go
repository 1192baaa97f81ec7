package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-ledger/internal/domain"
	"course-ledger/internal/domain/ports/repository"
)

// Ensure compile-time conformance
var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager implements repository.TransactionManager for Postgres (pgx).
// It begins a transaction, invokes the callback, and commits/rolls back.
type TxManager struct {
	pool *pgxpool.Pool
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// WithTx opens a DB transaction and passes the tx handle to fn.
// If fn returns an error, the transaction is rolled back; otherwise it is committed.
func (m *TxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := m.pool.BeginTx(ctx, txOpt)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err // rollback in defer
	}
	return tx.Commit(ctx)
}

type executor interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func getExecutor(pool *pgxpool.Pool, tx repository.Tx) (executor, error) {
	switch v := tx.(type) {
	case pgx.Tx:
		return v, nil
	case *pgxpool.Conn:
		return v, nil
	case *pgxpool.Pool:
		return v, nil
	case nil:
		if pool != nil {
			return pool, nil
		}
		return nil, domain.ErrInvalidArgument
	default:
		return nil, domain.ErrInvalidExecContext
	}
}

func isTx(tx repository.Tx) bool {
	_, ok := tx.(pgx.Tx)
	return ok
}

func execSQL(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	return ex.Exec(ctx, sql, args...)
}

func pickRow(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, sql string, args ...interface{}) (pgx.Row, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	return ex.QueryRow(ctx, sql, args...), nil
}

func queryRows(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, sql string, args ...interface{}) (pgx.Rows, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	return ex.Query(ctx, sql, args...)
}

const (
	pgUniqueViolation           = "23505"
	pgInvalidTextRepresentation = "22P02"
)

// uniqueViolation reports the violated constraint when err is a 23505.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// invalidInput reports a parameter Postgres could not parse, such as a malformed uuid.
func invalidInput(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextRepresentation
}

// mapExecErr keeps argument/context errors and hides driver details behind ErrOperationFailed.
func mapExecErr(err error) error {
	if err == nil {
		return nil
	}
	if invalidInput(err) {
		return errors.Join(domain.ErrInvalidArgument, err)
	}
	if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Join(domain.ErrOperationFailed, err)
}

// mapScanErr translates a single-row scan error.
func mapScanErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if invalidInput(err) {
		return errors.Join(domain.ErrInvalidArgument, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Join(domain.ErrReadDatabaseRow, err)
}
