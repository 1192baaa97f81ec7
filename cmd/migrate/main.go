package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"course-ledger/internal/config"
	pg "course-ledger/internal/infra/db/postgres"
	"course-ledger/internal/infra/logging"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, false)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
	logger.Info().Msg("migrations up to date")
}
