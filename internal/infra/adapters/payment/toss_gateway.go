package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"course-ledger/internal/config"
	"course-ledger/internal/domain"
	"course-ledger/internal/domain/ports/adapter"
	"course-ledger/internal/infra/logging"
	"course-ledger/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*TossGateway)(nil)

// TossGateway implements adapter.PaymentGateway against the Toss Payments v1
// REST API. Lookups are read-only; approval happens client-side through the SDK.
type TossGateway struct {
	baseURL     string
	authHeader  string
	client      *http.Client
	tracer      trace.Tracer
	logger      *zerolog.Logger
	maxAttempts int
	initial     time.Duration
	maxInterval time.Duration
}

func NewTossGateway(cfg config.GatewayConfig, tracer trace.Tracer, logger *zerolog.Logger) (*TossGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("gateway secret key empty")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid gateway base url %q", cfg.BaseURL)
	}
	if tracer == nil {
		tracer = otel.Tracer("payment-gateway")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &TossGateway{
		baseURL:    strings.TrimRight(base.String(), "/"),
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey+":")),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
		tracer:      tracer,
		logger:      logger,
		maxAttempts: attempts,
		initial:     cfg.InitialBackoff,
		maxInterval: cfg.MaxBackoff,
	}, nil
}

func (g *TossGateway) Name() string { return "toss" }

func (g *TossGateway) VerifyTransaction(ctx context.Context, paymentKey string) (*adapter.GatewayTransaction, error) {
	if strings.TrimSpace(paymentKey) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return g.lookup(ctx, "verify", "/v1/payments/"+url.PathEscape(paymentKey))
}

func (g *TossGateway) FindByOrderID(ctx context.Context, gatewayOrderID string) (*adapter.GatewayTransaction, error) {
	if strings.TrimSpace(gatewayOrderID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return g.lookup(ctx, "find_by_order", "/v1/payments/orders/"+url.PathEscape(gatewayOrderID))
}

// tossPayment is the subset of the Payment object we rely on.
type tossPayment struct {
	PaymentKey  string `json:"paymentKey"`
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"totalAmount"`
	Currency    string `json:"currency"`
	ApprovedAt  string `json:"approvedAt"`
}

type tossError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// retryableStatus is a transient gateway answer worth another attempt.
type retryableStatus struct{ code int }

func (e *retryableStatus) Error() string { return fmt.Sprintf("gateway returned %d", e.code) }

func (g *TossGateway) lookup(ctx context.Context, op, path string) (*adapter.GatewayTransaction, error) {
	defer logging.TraceDuration(g.logger, "TossGateway."+op)()
	start := time.Now()

	ctx, span := g.tracer.Start(ctx, "gateway."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway.name", g.Name()),
		attribute.String("http.method", http.MethodGet),
	)

	var (
		out     *adapter.GatewayTransaction
		attempt int
	)
	operation := func() error {
		attempt++
		tx, err := g.do(ctx, path)
		if err == nil {
			out = tx
			return nil
		}
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrGatewayRejected) {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		g.logger.Debug().Err(err).Str("op", op).Int("attempt", attempt).Msg("gateway attempt failed")
		return err
	}

	b := backoff.NewExponentialBackOff()
	if g.initial > 0 {
		b.InitialInterval = g.initial
	}
	if g.maxInterval > 0 {
		b.MaxInterval = g.maxInterval
	}
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(g.maxAttempts-1)), ctx)

	err := backoff.Retry(operation, policy)
	metrics.ObserveGatewayLatency(op, time.Since(start))
	span.SetAttributes(attribute.Int("gateway.attempts", attempt))

	switch {
	case err == nil:
		metrics.IncGatewayRequest(op, "ok")
		span.SetAttributes(attribute.String("gateway.status", string(out.Status)))
		return out, nil
	case errors.Is(err, domain.ErrNotFound):
		metrics.IncGatewayRequest(op, "not_found")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	case errors.Is(err, domain.ErrGatewayRejected):
		metrics.IncGatewayRequest(op, "rejected")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	default:
		metrics.IncGatewayRequest(op, "unavailable")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn().Err(err).Str("op", op).Int("attempts", attempt).Msg("gateway unavailable")
		return nil, fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
	}
}

func (g *TossGateway) do(ctx context.Context, path string) (*adapter.GatewayTransaction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", g.authHeader)
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var p tossPayment
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("%w: decode payment: %v", domain.ErrGatewayRejected, err)
		}
		return p.toTransaction()
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &retryableStatus{code: resp.StatusCode}
	default:
		var te tossError
		_ = json.Unmarshal(body, &te)
		return nil, fmt.Errorf("%w: %d %s %s", domain.ErrGatewayRejected, resp.StatusCode, te.Code, te.Message)
	}
}

func (p tossPayment) toTransaction() (*adapter.GatewayTransaction, error) {
	if p.PaymentKey == "" || p.OrderID == "" {
		return nil, fmt.Errorf("%w: incomplete payment object", domain.ErrGatewayRejected)
	}
	tx := &adapter.GatewayTransaction{
		PaymentKey:     p.PaymentKey,
		GatewayOrderID: p.OrderID,
		TransactionID:  p.PaymentKey,
		Amount:         p.TotalAmount,
		Currency:       strings.ToUpper(p.Currency),
		Status:         adapter.GatewayStatus(strings.ToUpper(p.Status)),
	}
	if p.ApprovedAt != "" {
		if at, err := time.Parse(time.RFC3339, p.ApprovedAt); err == nil {
			tx.ApprovedAt = at
		}
	}
	return tx, nil
}
