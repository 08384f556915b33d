package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Relay metrics
	dispatchesTotal      *prometheus.CounterVec
	deliveryDuration     *prometheus.HistogramVec
	providerAppRemaining prometheus.Gauge
	archiveFailures      prometheus.Counter
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.dispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushrelay_dispatches_total",
			Help: "Total number of dispatched occurrences by outcome",
		},
		[]string{"kind", "outcome", "reason"},
	)
	r.deliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pushrelay_delivery_duration_seconds",
			Help:    "Time from occurrence receipt to dispatch result in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"kind", "outcome"},
	)
	r.providerAppRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pushrelay_provider_app_remaining",
			Help: "Messages left in the provider's monthly application quota",
		},
	)
	r.archiveFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pushrelay_archive_failures_total",
			Help: "Total number of delivery records that could not be archived",
		},
	)

	reg.MustRegister(r.dispatchesTotal)
	reg.MustRegister(r.deliveryDuration)
	reg.MustRegister(r.providerAppRemaining)
	reg.MustRegister(r.archiveFailures)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordDispatch records the result of one dispatch. reason is empty for
// delivered occurrences.
func (r *Registry) RecordDispatch(kind, outcome, reason string, duration float64) {
	r.dispatchesTotal.WithLabelValues(kind, outcome, reason).Inc()
	r.deliveryDuration.WithLabelValues(kind, outcome).Observe(duration)
}

// SetProviderRemaining sets the remaining application quota reported by the provider.
func (r *Registry) SetProviderRemaining(remaining int) {
	r.providerAppRemaining.Set(float64(remaining))
}

// RecordArchiveFailure counts a delivery record that failed to archive.
func (r *Registry) RecordArchiveFailure() {
	r.archiveFailures.Inc()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
