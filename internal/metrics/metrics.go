// Package metrics exposes Prometheus metrics for the webhook receiver.
package metrics

import (
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/hookserver/internal/allowlist"
	"github.com/mattjoyce/hookserver/internal/pipeline"
)

// otherEvent labels deliveries for events no exclusive handler is bound to.
// Event names come from a request header, so only registered names become
// label values.
const otherEvent = "other"

// Metrics holds all Prometheus metrics for the receiver.
type Metrics struct {
	registry *prometheus.Registry

	DeliveriesTotal   *prometheus.CounterVec
	RejectionsTotal   *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	RefreshesTotal    *prometheus.CounterVec
	AllowlistBlocks   prometheus.Gauge
	AllowlistFetched  prometheus.Gauge
	RegisteredHandles prometheus.Gauge
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	deliveriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookserver_deliveries_total",
			Help: "Accepted webhook deliveries by event and whether a handler ran",
		},
		[]string{"event", "handled"},
	)

	rejectionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookserver_rejections_total",
			Help: "Rejected webhook requests by reason and status",
		},
		[]string{"reason", "status"},
	)

	pipelineDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hookserver_pipeline_duration_seconds",
			Help:    "Time spent validating and dispatching a webhook request",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	refreshesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookserver_allowlist_refreshes_total",
			Help: "Allowlist refresh attempts by result",
		},
		[]string{"result"},
	)

	allowlistBlocks := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hookserver_allowlist_blocks",
			Help: "Number of network blocks in the allowlist in force",
		},
	)

	allowlistFetched := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hookserver_allowlist_fetched_timestamp_seconds",
			Help: "Unix time the allowlist in force was fetched from the provider",
		},
	)

	registeredHandlers := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hookserver_registered_handlers",
			Help: "Number of events with an exclusive handler",
		},
	)

	registry.MustRegister(
		deliveriesTotal,
		rejectionsTotal,
		pipelineDuration,
		refreshesTotal,
		allowlistBlocks,
		allowlistFetched,
		registeredHandlers,
	)

	return &Metrics{
		registry:          registry,
		DeliveriesTotal:   deliveriesTotal,
		RejectionsTotal:   rejectionsTotal,
		PipelineDuration:  pipelineDuration,
		RefreshesTotal:    refreshesTotal,
		AllowlistBlocks:   allowlistBlocks,
		AllowlistFetched:  allowlistFetched,
		RegisteredHandles: registeredHandlers,
	}
}

// Registry returns the Prometheus registry for this instance.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveVerdict records one pipeline verdict. It has the pipeline.Observer signature.
func (m *Metrics) ObserveVerdict(v pipeline.Verdict, elapsed time.Duration) {
	if v.Accepted() {
		m.DeliveriesTotal.WithLabelValues(eventLabel(v), strconv.FormatBool(v.Handled)).Inc()
		m.PipelineDuration.WithLabelValues("accepted").Observe(elapsed.Seconds())
		return
	}
	m.RejectionsTotal.WithLabelValues(v.Reject.Kind.String(), strconv.Itoa(v.Reject.Status)).Inc()
	m.PipelineDuration.WithLabelValues("rejected").Observe(elapsed.Seconds())
}

func eventLabel(v pipeline.Verdict) string {
	if !v.Handled || !utf8.ValidString(v.Event) {
		return otherEvent
	}
	return v.Event
}

// ObserveRefresh records an allowlist refresh. It has the allowlist.Observer signature.
func (m *Metrics) ObserveRefresh(list *allowlist.Allowlist, err error) {
	if err != nil {
		m.RefreshesTotal.WithLabelValues("failure").Inc()
		return
	}
	m.RefreshesTotal.WithLabelValues("success").Inc()
	m.SetAllowlist(list)
}

// SetAllowlist updates the allowlist gauges.
func (m *Metrics) SetAllowlist(list *allowlist.Allowlist) {
	if list == nil {
		return
	}
	m.AllowlistBlocks.Set(float64(list.Len()))
	m.AllowlistFetched.Set(float64(list.FetchedAt().Unix()))
}

// SetRegisteredHandlers updates the handler gauge.
func (m *Metrics) SetRegisteredHandlers(n int) {
	m.RegisteredHandles.Set(float64(n))
}
