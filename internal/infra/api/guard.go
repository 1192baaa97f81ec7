package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"course-ledger/internal/infra/logging"
	"course-ledger/internal/infra/metrics"
)

type Middleware func(http.Handler) http.Handler

// TraceIDHeader is echoed on every response; an incoming value is reused.
const TraceIDHeader = "X-Request-ID"

func TraceID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tid := r.Header.Get(TraceIDHeader)
			if tid == "" || len(tid) > 64 {
				tid = uuid.NewString()
			}
			w.Header().Set(TraceIDHeader, tid)
			ctx := logging.WithTraceID(r.Context(), tid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLog logs one line per request and records it under the matched chi route pattern.
func RequestLog(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			route := ""
			if rc := chi.RouteContext(r.Context()); rc != nil {
				route = rc.RoutePattern()
			}
			d := time.Since(start)
			metrics.ObserveHTTP(route, r.Method, ww.status, d)

			l := logging.With(r.Context(), logger)
			ev := l.Info()
			if ww.status >= http.StatusInternalServerError {
				ev = l.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int("status", ww.status).
				Dur("duration", d).
				Msg("http_request")
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func Recover(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					l := logging.With(r.Context(), logger)
					l.Error().Interface("panic", rec).Msg("panic recovered")
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
