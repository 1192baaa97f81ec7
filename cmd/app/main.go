package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"course-ledger/internal/config"
	"course-ledger/internal/domain/ports/adapter"
	"course-ledger/internal/infra/adapters/events"
	payAdapters "course-ledger/internal/infra/adapters/payment"
	"course-ledger/internal/infra/api"
	"course-ledger/internal/infra/api/apiv1"
	pg "course-ledger/internal/infra/db/postgres"
	"course-ledger/internal/infra/logging"
	"course-ledger/internal/infra/metrics"
	red "course-ledger/internal/infra/redis"
	"course-ledger/internal/infra/sched"
	"course-ledger/internal/infra/tracing"
	"course-ledger/internal/infra/worker"
	"course-ledger/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (fake gateway, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("course-ledger stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("DEV MODE enabled")
	}

	shutdownTracing, err := tracing.Init(cfg.Tracing, version, logger)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	if cfg.Database.Migrate {
		if err := pg.Migrate(ctx, pool, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	orderRepo := pg.NewOrderRepo(pool)
	purchaseRepo := pg.NewPurchaseRepo(pool)
	enrollmentRepo := pg.NewEnrollmentRepo(pool)
	courseRepo := pg.NewCourseRepoCacheDecorator(pg.NewCourseRepo(pool), redisClient, cfg.Redis.TTL, logger)

	// ---- Gateway ----
	var gateway adapter.PaymentGateway
	if cfg.Payment.Gateway.Fake {
		fake := payAdapters.NewFakeGateway(cfg.Payment.Currency)
		fake.AutoApprove = true
		gateway = fake
		logger.Warn().Msg("using fake payment gateway")
	} else {
		gateway, err = payAdapters.NewTossGateway(cfg.Payment.Gateway, nil, logger)
		if err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
	}

	// ---- Events ----
	var publisher adapter.EventPublisher = events.NewNoopPublisher()
	if cfg.Kafka.Enabled() {
		publisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic), logger)
	}
	defer publisher.Close()

	// ---- Use cases ----
	orderUC := usecase.NewOrderUseCase(orderRepo, purchaseRepo, enrollmentRepo, courseRepo, publisher,
		usecase.OrderSettings{Currency: cfg.Payment.Currency, TTL: cfg.Payment.OrderTTL}, logger)
	reconcileUC := usecase.NewReconcileUseCase(tm, orderRepo, purchaseRepo, publisher, logger)
	paymentUC := usecase.NewPaymentUseCase(orderRepo, purchaseRepo, reconcileUC, gateway, publisher,
		usecase.PaymentSettings{
			OrphanGrace: cfg.Scheduler.OrphanGrace,
			OrphanBatch: cfg.Scheduler.OrphanBatch,
		}, logger)
	refundUC := usecase.NewRefundUseCase(tm, purchaseRepo, gateway, publisher, logger)
	entitlementUC := usecase.NewEntitlementUseCase(tm, enrollmentRepo, purchaseRepo)
	revenueUC := usecase.NewRevenueUseCase(tm, purchaseRepo, courseRepo, cfg.Payment.Currency, logger)

	// ---- HTTP ----
	auth := api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, logger)
	v1 := apiv1.NewServer(orderUC, paymentUC, refundUC, entitlementUC, revenueUC, logger)
	srv := api.NewServer(v1, paymentUC, refundUC, auth, api.Options{
		WebhookSecret:      cfg.Payment.WebhookSecret,
		RequestTimeout:     cfg.HTTP.RequestTimeout,
		RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute,
		Limiter:            red.NewRateLimiter(redisClient),
		ServiceName:        cfg.Tracing.ServiceName,
	}, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ---- Background work ----
	workers := worker.NewPool(cfg.Scheduler.Workers, logger)
	workers.Start(ctx)
	defer workers.Stop()

	expiry := sched.NewExpiryWorker(cfg.Scheduler.ExpiryInterval, orderUC, logger)
	sweeper := sched.NewOrphanSweeper(cfg.Scheduler.OrphanInterval, paymentUC, red.NewLocker(redisClient), workers, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})
	g.Go(func() error { return ignoreCanceled(expiry.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(sweeper.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(pg.ReportPoolStats(gctx, pool, 15*time.Second)) })
	if cfg.Kafka.Enabled() {
		consumer := events.NewRefundConsumer(
			events.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.RefundsTopic, cfg.Kafka.GroupID), refundUC, logger)
		g.Go(func() error { return ignoreCanceled(consumer.Run(gctx)) })
	}

	err = g.Wait()
	logger.Info().Msg("shutdown requested")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
