package api

import (
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"course-ledger/internal/infra/api/apiv1"
	"course-ledger/internal/infra/i18n"
	"course-ledger/internal/infra/logging"
	"course-ledger/internal/infra/metrics"
	"course-ledger/internal/usecase"
)

type Options struct {
	WebhookSecret  string
	RequestTimeout time.Duration
	// per user, shared by order creation and verification; 0 disables
	RateLimitPerMinute int
	Limiter            Limiter
	ServiceName        string
}

// Server is the public HTTP surface: JSON API, gateway webhook and redirect page.
type Server struct {
	api      *apiv1.Server
	payments usecase.PaymentUseCase
	refunds  usecase.RefundUseCase
	auth     *Authenticator
	opts     Options
	texts    *i18n.Catalog
	log      *zerolog.Logger
}

func NewServer(api *apiv1.Server, payments usecase.PaymentUseCase, refunds usecase.RefundUseCase, auth *Authenticator, opts Options, logger *zerolog.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "course-ledger"
	}
	return &Server{api: api, payments: payments, refunds: refunds, auth: auth, opts: opts, texts: i18n.MustDefault(), log: logger}
}

// Routes builds the router wrapped in an OpenTelemetry server span.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Timeout(s.opts.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Method(http.MethodPost, "/webhooks/gateway", &webhookHandler{
		secret:   s.opts.WebhookSecret,
		payments: s.payments,
		refunds:  s.refunds,
		log:      s.log,
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Authenticate())
		r.Get("/payments/callback", s.handleCallback)
		apiv1.RegisterAPIV1(r, s.api, apiv1.Guards{
			Admin:     RequireAdmin(s.log),
			RateLimit: RateLimit(s.opts.Limiter, "checkout", s.opts.RateLimitPerMinute, s.log),
		})
	})

	return otelhttp.NewHandler(r, s.opts.ServiceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

// handleCallback is the gateway success redirect target. orderId is our
// gateway order id; the payment is verified exactly like the JSON endpoint.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	tr := s.texts.For(r.Header.Get("Accept-Language"))
	q := r.URL.Query()
	gatewayOrderID, paymentKey := q.Get("orderId"), q.Get("paymentKey")
	if gatewayOrderID == "" || paymentKey == "" {
		renderCallback(w, tr, http.StatusBadRequest, "callback.missing_params", "")
		return
	}

	userID := logging.UserID(r.Context())
	if userID == "" {
		renderCallback(w, tr, http.StatusUnauthorized, "callback.failed", "")
		return
	}
	res, err := s.payments.VerifyGatewayOrder(r.Context(), userID, gatewayOrderID, paymentKey)
	if err != nil {
		code, _ := apiv1.StatusFor(err)
		if code >= http.StatusInternalServerError {
			logging.With(r.Context(), s.log).Error().Err(err).Msg("payment callback failed")
		}
		renderCallback(w, tr, code, callbackMessage(err), "")
		return
	}
	renderCallback(w, tr, http.StatusOK, "callback.verified", res.Order.CourseID)
}

func callbackMessage(err error) string {
	_, kind := apiv1.StatusFor(err)
	switch kind {
	case "order_expired", "order_not_pending":
		return "callback.no_longer_valid"
	case "payment_not_completed":
		return "callback.not_completed"
	case "gateway_unavailable":
		return "callback.gateway_unavailable"
	case "not_found":
		return "callback.not_found"
	default:
		return "callback.failed"
	}
}

var page = template.Must(template.New("cb").Parse(`<!doctype html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.ok{color:#057a55} .fail{color:#b00020}
.btn{display:inline-block;margin-top:16px;padding:10px 16px;border-radius:8px;border:1px solid #888;text-decoration:none}
</style>
</head>
<body>
<div class="card">
  <h2 class="{{if .OK}}ok{{else}}fail{{end}}">{{.Heading}}</h2>
  <p>{{.Msg}}</p>
  {{if .CourseID}}<a class="btn" href="/courses/{{.CourseID}}">{{.Action}}</a>{{end}}
</div>
</body>
</html>`))

func renderCallback(w http.ResponseWriter, tr *i18n.Translator, code int, msgKey, courseID string) {
	ok := code == http.StatusOK
	title, heading := "callback.title_fail", "callback.heading_fail"
	if ok {
		title, heading = "callback.title_ok", "callback.heading_ok"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Language", tr.Lang())
	w.WriteHeader(code)
	_ = page.Execute(w, struct {
		OK                        bool
		Lang, Title, Heading, Msg string
		Action, CourseID          string
	}{
		OK:       ok,
		Lang:     tr.Lang(),
		Title:    tr.T(title),
		Heading:  tr.T(heading),
		Msg:      tr.T(msgKey),
		Action:   tr.T("callback.start_learning"),
		CourseID: courseID,
	})
}
