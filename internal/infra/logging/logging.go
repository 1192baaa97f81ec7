package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"course-ledger/internal/config"

	"github.com/rs/zerolog"
)

// New creates a zerolog logger configured from config.
// Supports "trace" | "debug" | "info" | "warn" | "error" levels
// and "json" | "console" formats. Sampling can be enabled to reduce noise in prod.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var base zerolog.Logger
	if strings.ToLower(cfg.Format) == "console" || dev {
		out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		base = zerolog.New(out).With().Timestamp().Logger()
	} else {
		base = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	if cfg.Sampling && !dev {
		// keep first 100, then 1 every 100 thereafter
		sampled := base.Sample(&zerolog.BasicSampler{N: 100})
		return &sampled
	}
	return &base
}

// Nop is used by tests and by components constructed without a logger.
func Nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type ctxKey string

const (
	ctxTraceID ctxKey = "trace_id"
	ctxUserID  ctxKey = "user_id"
	ctxOrderID ctxKey = "order_id"
)

// With attaches the request-scoped ids carried by ctx.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	l := base.With()
	if v, ok := ctx.Value(ctxTraceID).(string); ok {
		l = l.Str("trace_id", v)
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		l = l.Str("user_id", v)
	}
	if v, ok := ctx.Value(ctxOrderID).(string); ok {
		l = l.Str("order_id", v)
	}
	logger := l.Logger()
	return &logger
}

// TraceDuration logs start and end with elapsed duration at TRACE level.
// Usage: defer logging.TraceDuration(logger, "Gateway.VerifyTransaction")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		logger.Trace().Str("method", name).Dur("duration", time.Since(start)).Msg("finish")
	}
}

// Redact hides secrets such as payment keys when not in dev.
func Redact(s string, dev bool) string {
	if dev {
		return s
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-2:]
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTraceID, id)
}
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxUserID, id)
}
func WithOrderID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxOrderID, id)
}

// UserID returns the verified user id placed in ctx by the auth middleware.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(ctxUserID).(string)
	return v
}

func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(ctxTraceID).(string)
	return v
}
