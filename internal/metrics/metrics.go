// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zaloga"

var (
	// RequestTransitions counts workflow actions by action name.
	RequestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "request_transitions_total",
		Help:      "Material request workflow actions.",
	}, []string{"action"})

	// StockTransactions counts ledger postings by transaction type.
	StockTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_transactions_total",
		Help:      "Stock ledger postings.",
	}, []string{"type"})

	// Notifications counts email notifications by kind and result.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Email notifications by kind and delivery result.",
	}, []string{"kind", "result"})

	// ImportRows counts bulk import rows by outcome.
	ImportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_rows_total",
		Help:      "Bulk import rows by outcome.",
	}, []string{"result"})

	// Logins counts sign-in attempts by result.
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Sign-in attempts by result.",
	}, []string{"result"})

	// HTTPDuration observes API latency by route pattern and status.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
