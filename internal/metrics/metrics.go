// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UpstreamRequestsTotal counts calls made to the Easee cloud API.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easee_gateway",
			Name:      "upstream_requests_total",
			Help:      "Total number of requests sent to the Easee cloud API",
		},
		[]string{"operation", "status"},
	)

	// UpstreamRequestDuration measures upstream call duration.
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "easee_gateway",
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of requests sent to the Easee cloud API in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// HTTPRequestsTotal counts inbound requests by route pattern.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easee_gateway",
			Name:      "http_requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "route", "code"},
	)

	// GuardRejectionsTotal counts writes blocked by the max current guard.
	GuardRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "easee_gateway",
			Name:      "max_current_guard_rejections_total",
			Help:      "Total number of max charger current writes rejected locally",
		},
	)
)

// RecordUpstream records one upstream call. A zero status stands for a transport failure.
func RecordUpstream(operation string, status int, duration float64) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	UpstreamRequestsTotal.WithLabelValues(operation, label).Inc()
	UpstreamRequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordHTTP records one inbound request.
func RecordHTTP(method, route string, code int) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

// RecordGuardRejection records a blocked max current write.
func RecordGuardRejection() {
	GuardRejectionsTotal.Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
