package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		reconcileTotal,
		ordersExpiredTotal,
		orphansHealedTotal,
		purchasesRefundedTotal,
		ledgerEventsTotal,
	)
}

var (
	// outcome: created|duplicate|rejected|error
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_total",
			Help: "Reconciliation attempts by outcome. duplicate means a concurrent caller won the insert.",
		},
		[]string{"outcome"},
	)

	ordersExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_expired_total",
			Help: "Orders moved to EXPIRED by the sweep or lazily on verify.",
		},
	)

	// result: healed|not_completed|failed|error
	orphansHealedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orphans_healed_total",
			Help: "PENDING_VERIFICATION orders processed by the orphan sweeper.",
		},
		[]string{"result"},
	)

	// source: webhook|admin|kafka
	purchasesRefundedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_refunded_total",
			Help: "Purchases transitioned to REFUNDED by intake source.",
		},
		[]string{"source"},
	)

	// status: sent|error
	ledgerEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_total",
			Help: "Ledger events published to the broker.",
		},
		[]string{"type", "status"},
	)
)

func IncReconcile(outcome string) {
	reconcileTotal.WithLabelValues(norm(outcome)).Inc()
}

func AddOrdersExpired(n int) {
	if n > 0 {
		ordersExpiredTotal.Add(float64(n))
	}
}

func IncOrphan(result string) {
	orphansHealedTotal.WithLabelValues(norm(result)).Inc()
}

func IncRefund(source string) {
	purchasesRefundedTotal.WithLabelValues(norm(source)).Inc()
}

func IncLedgerEvent(eventType, status string) {
	ledgerEventsTotal.WithLabelValues(norm(eventType), norm(status)).Inc()
}
