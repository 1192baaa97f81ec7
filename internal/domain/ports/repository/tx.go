package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes fn inside a database transaction, passing the
// underlying handle via `tx`.
//
// Repositories accept `tx` on every method and MUST accept nil (pool path).
// Passing the same handle to several repositories makes their statements
// commit or roll back together; read-only snapshot reads use
// pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}.
//
// The concrete type of `tx` is infra-defined (pgx.Tx for Postgres).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}

// SnapshotTxOptions is the isolation used for multi-table consistent reads.
var SnapshotTxOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
