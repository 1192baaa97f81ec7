package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"course-ledger/internal/config"
	"course-ledger/internal/domain/model"
	"course-ledger/internal/domain/ports/repository"
	"course-ledger/internal/infra/api"
	pg "course-ledger/internal/infra/db/postgres"
	"course-ledger/internal/infra/logging"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	user := flag.String("user", "dev-user", "subject of the printed dev token")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	courses := pg.NewCourseRepo(pool)
	seed := []*model.Course{
		{ID: "course-go", Title: "Production Go", Category: "backend", Price: 50_000, Published: true},
		{ID: "course-ml", Title: "Applied ML", Category: "data", Price: 30_000, Published: true},
		{ID: "course-intro", Title: "Intro to Programming", Category: "basics", Price: 0, Published: true},
		{ID: "course-draft", Title: "Upcoming", Category: "backend", Price: 90_000, Published: false},
	}
	for _, c := range seed {
		if err := courses.Save(ctx, repository.NoTX, c); err != nil {
			logger.Fatal().Err(err).Str("course_id", c.ID).Msg("seed course")
		}
		fmt.Printf("seeded course %s (%s, price=%d %s, published=%v)\n", c.ID, c.Category, c.Price, cfg.Payment.Currency, c.Published)
	}

	enrollment := &model.Enrollment{
		ID:         "enr-" + *user + "-course-intro",
		UserID:     *user,
		CourseID:   "course-intro",
		Status:     model.EnrollmentStatusActive,
		EnrolledAt: time.Now().UTC(),
	}
	if err := pg.NewEnrollmentRepo(pool).Save(ctx, repository.NoTX, enrollment); err != nil {
		logger.Fatal().Err(err).Msg("seed enrollment")
	}
	fmt.Printf("enrolled %s in course-intro\n", *user)

	auth := api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, logger)
	for _, role := range []string{"", api.RoleAdmin} {
		subject := *user
		if role != "" {
			subject = "dev-admin"
		}
		token, err := auth.Mint(subject, role, 24*time.Hour)
		if err != nil {
			logger.Fatal().Err(err).Msg("mint token")
		}
		fmt.Printf("token %s: %s\n", subject, token)
	}
}
