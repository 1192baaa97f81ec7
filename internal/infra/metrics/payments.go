package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		ordersCreatedTotal,
		paymentVerifyTotal,
		paymentVerifyDuration,
		gatewayRequestsTotal,
		gatewayRequestDuration,
		tamperAttemptsTotal,
		paymentsRevenueTotal,
	)
}

var (
	ordersCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders created by the order manager.",
		},
	)

	// result: ok|duplicate|expired|not_pending|amount_mismatch|order_mismatch|not_completed|gateway_unavailable|gateway_rejected|not_found|error
	paymentVerifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verify_total",
			Help: "Payment verifications by bounded result.",
		},
		[]string{"result"},
	)

	paymentVerifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_verify_duration_seconds",
			Help:    "Duration of payment verification in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"result"},
	)

	// op: verify|find_by_order; result: ok|retry|unavailable|rejected|not_found
	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "HTTP requests to the payment gateway by operation and result.",
		},
		[]string{"op", "result"},
	)

	gatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Latency of single payment gateway requests.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"op"},
	)

	// kind: amount|currency|order
	tamperAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tamper_attempts_total",
			Help: "Verifications rejected because gateway data disagreed with the order.",
		},
		[]string{"kind"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Monetary value of newly recorded purchases, labeled by currency. Reporting uses the ledger, not this counter.",
		},
		[]string{"currency"},
	)
)

func IncOrderCreated() { ordersCreatedTotal.Inc() }

func ObservePaymentVerify(result string, d time.Duration) {
	paymentVerifyTotal.WithLabelValues(norm(result)).Inc()
	paymentVerifyDuration.WithLabelValues(norm(result)).Observe(d.Seconds())
}

func IncGatewayRequest(op, result string) {
	gatewayRequestsTotal.WithLabelValues(norm(op), norm(result)).Inc()
}

func ObserveGatewayLatency(op string, d time.Duration) {
	gatewayRequestDuration.WithLabelValues(norm(op)).Observe(d.Seconds())
}

func IncTamperAttempt(kind string) {
	tamperAttemptsTotal.WithLabelValues(norm(kind)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}
