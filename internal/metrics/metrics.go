// Package metrics exposes Prometheus instrumentation for hook execution,
// definition loading, and federation delivery.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	hookExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actra_hook_executions_total",
			Help: "Total number of hook executions",
		},
		[]string{"type", "hook", "status"},
	)

	hookDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "actra_hook_duration_seconds",
			Help:    "Hook execution time in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"type", "hook"},
	)

	definitionsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "actra_definitions_loaded",
			Help: "Number of action type definitions currently loaded",
		},
	)

	definitionLoadFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "actra_definition_load_failures_total",
			Help: "Total number of definition files that failed validation",
		},
	)

	federationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actra_federation_deliveries_total",
			Help: "Total number of federation delivery attempts",
		},
		[]string{"kind", "status"},
	)

	federationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "actra_federation_queue_depth",
			Help: "Number of deliveries waiting in the federation queue",
		},
	)

	notificationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "actra_notifications_created_total",
			Help: "Total number of notifications created by hooks",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHookExecution(actionType, hook, status string, duration time.Duration) {
	hookExecutions.WithLabelValues(actionType, hook, status).Inc()
	hookDuration.WithLabelValues(actionType, hook).Observe(duration.Seconds())
}

func SetDefinitionsLoaded(n int) {
	definitionsLoaded.Set(float64(n))
}

func RecordDefinitionLoadFailure() {
	definitionLoadFailures.Inc()
}

func RecordFederationDelivery(kind, status string) {
	federationDeliveries.WithLabelValues(kind, status).Inc()
}

func SetFederationQueueDepth(n int) {
	federationQueueDepth.Set(float64(n))
}

func RecordNotificationCreated() {
	notificationsCreated.Inc()
}
