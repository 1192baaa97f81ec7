package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"course-ledger/internal/domain"
	"course-ledger/internal/infra/api/apiv1"
	"course-ledger/internal/infra/logging"
	red "course-ledger/internal/infra/redis"
)

const (
	RoleAdmin = "admin"

	sessionCookie = "session"
)

// Claims are issued by the identity service; sub is the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens (or the session cookie used by
// the gateway redirect).
type Authenticator struct {
	secret []byte
	issuer string
	log    *zerolog.Logger
}

func NewAuthenticator(secret, issuer string, logger *zerolog.Logger) *Authenticator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, log: logger}
}

// Mint signs a token for subject. Used by cmd/seed and tests.
func (a *Authenticator) Mint(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) ParseFromRequest(r *http.Request) (*Claims, error) {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
			return a.parse(strings.TrimSpace(hdr[7:]))
		}
		return nil, fmt.Errorf("%w: malformed authorization header", domain.ErrUnauthorized)
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return a.parse(c.Value)
	}
	return nil, fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
}

func (a *Authenticator) parse(tok string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) { return a.secret, nil }, opts...)
	if err != nil || !tkn.Valid {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	return claims, nil
}

type roleKey struct{}

// Authenticate puts the verified user id (and role) into the request context.
func (a *Authenticator) Authenticate() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := a.ParseFromRequest(r)
			if err != nil {
				apiv1.WriteError(w, r, a.log, err)
				return
			}
			ctx := logging.WithUserID(r.Context(), claims.Subject)
			ctx = context.WithValue(ctx, roleKey{}, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireAdmin(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if role, _ := r.Context().Value(roleKey{}).(string); role != RoleAdmin {
				apiv1.WriteError(w, r, logger, domain.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Limiter is satisfied by redis.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

var _ Limiter = (*red.RateLimiter)(nil)

var errRateLimited = errors.New("rate limit exceeded")

// RateLimit allows perMinute requests per user and route. Limiter failures fail open.
func RateLimit(l Limiter, route string, perMinute int, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if l == nil || perMinute <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := l.Allow(r.Context(), red.UserRouteKey(logging.UserID(r.Context()), route), perMinute, time.Minute)
			if err != nil {
				logging.With(r.Context(), logger).Warn().Err(err).Msg("rate limiter unavailable")
				ok = true
			}
			if !ok {
				w.Header().Set("Retry-After", "60")
				apiv1.WriteJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate_limited", "message": errRateLimited.Error()})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
