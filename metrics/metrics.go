// Package metrics holds the Prometheus collectors of the booking engine.
// Every method is safe on a nil *Metrics so components can run without them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	Transitions      *prometheus.CounterVec
	ConflictWarnings prometheus.Counter
	PaymentsRecorded *prometheus.CounterVec
	MirrorFailures   *prometheus.CounterVec
	PartialFailures  *prometheus.CounterVec
	SeriesPropagated prometheus.Counter
	SeriesExtended   prometheus.Counter
	MessagesSent     *prometheus.CounterVec
	HTTPLatency      *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transitions_total",
			Help:      "Appointment status transitions by target status",
		}, []string{"to"}),
		ConflictWarnings: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_warnings_total",
			Help:      "Bookings or edits that overlapped an existing booking",
		}),
		PaymentsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_recorded_total",
			Help:      "Payments recorded by kind",
		}, []string{"kind"}),
		MirrorFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_ledger_failures_total",
			Help:      "External ledger calls that failed",
		}, []string{"op"}),
		PartialFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_failures_total",
			Help:      "Multi-step operations whose secondary step failed",
		}, []string{"step"}),
		SeriesPropagated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_occurrences_propagated_total",
			Help:      "Future occurrences updated by series propagation",
		}),
		SeriesExtended: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_occurrences_extended_total",
			Help:      "Occurrences created by indeterminate series extension",
		}),
		MessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dispatched_total",
			Help:      "Outbound messages by channel and result",
		}, []string{"channel", "result"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) Transition(to string) {
	if m != nil {
		m.Transitions.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) Conflict() {
	if m != nil {
		m.ConflictWarnings.Inc()
	}
}

func (m *Metrics) Payment(kind string) {
	if m != nil {
		m.PaymentsRecorded.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) MirrorFailure(op string) {
	if m != nil {
		m.MirrorFailures.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) Partial(step string) {
	if m != nil {
		m.PartialFailures.WithLabelValues(step).Inc()
	}
}

func (m *Metrics) Propagated(n int) {
	if m != nil {
		m.SeriesPropagated.Add(float64(n))
	}
}

func (m *Metrics) Extended(n int) {
	if m != nil {
		m.SeriesExtended.Add(float64(n))
	}
}

func (m *Metrics) Message(channel string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.MessagesSent.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m != nil {
		m.HTTPLatency.WithLabelValues(method, route, http.StatusText(status)).Observe(elapsed.Seconds())
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
