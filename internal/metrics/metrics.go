package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "historico",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "historico",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"method", "route"},
	)

	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "historico",
			Subsystem: "import",
			Name:      "batches_total",
			Help:      "Import batches by outcome",
		},
		[]string{"status"},
	)

	ImportedConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "historico",
			Subsystem: "import",
			Name:      "conversations_total",
			Help:      "Conversations created by committed imports",
		},
	)

	ImportedMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "historico",
			Subsystem: "import",
			Name:      "messages_total",
			Help:      "Messages created by committed imports",
		},
	)

	ObservedImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "historico",
			Subsystem: "import",
			Name:      "observed_total",
			Help:      "Imports committed by other historico processes, seen on the event bus",
		},
		[]string{"source"},
	)

	ImportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "historico",
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Import duration in seconds, parse through commit",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 15, 60},
		},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, route, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, route, status).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(durationSec)
}

// RecordImport records the outcome of one import batch. Counts are only
// added for committed batches.
func RecordImport(status string, conversations, messages int, durationSec float64) {
	ImportsTotal.WithLabelValues(status).Inc()
	ImportDuration.Observe(durationSec)
	if status == "success" {
		ImportedConversationsTotal.Add(float64(conversations))
		ImportedMessagesTotal.Add(float64(messages))
	}
}

// RecordObservedImport counts an import another process reported.
func RecordObservedImport(source string) {
	ObservedImportsTotal.WithLabelValues(source).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
