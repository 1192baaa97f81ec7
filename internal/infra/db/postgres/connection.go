package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"course-ledger/internal/infra/metrics"
)

// NewPgxPool connects to Postgres and verifies the connection with a ping.
func NewPgxPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.HealthCheckPeriod = 30 * time.Second

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.ConnectConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// ReportPoolStats publishes pool gauges every interval until ctx is done.
func ReportPoolStats(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		st := pool.Stat()
		metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns(), st.MaxConns())
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
