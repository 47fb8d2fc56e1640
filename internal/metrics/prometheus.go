package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder on a private Prometheus registry.
type PrometheusRecorder struct {
	keysTotal         *prometheus.CounterVec
	keysRejected      *prometheus.CounterVec
	idempotentReplays prometheus.Counter
	verifyTotal       *prometheus.CounterVec
	verifyDuration    prometheus.Histogram
	verifyCache       *prometheus.CounterVec
	rateLimited       prometheus.Counter
	advisoryTotal     *prometheus.CounterVec
	eventsTotal       *prometheus.CounterVec

	registry *prometheus.Registry
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheus creates a recorder whose metric names start with namespace.
func NewPrometheus(namespace string) *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p := &PrometheusRecorder{
		keysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keys",
			Name:      "operations_total",
			Help:      "Applied key lifecycle operations by kind",
		}, []string{"op"}),
		keysRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keys",
			Name:      "rejected_total",
			Help:      "Rejected key lifecycle operations by reason",
		}, []string{"reason"}),
		idempotentReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keys",
			Name:      "idempotent_replays_total",
			Help:      "Create requests answered from an idempotency record",
		}),
		verifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "requests_total",
			Help:      "Key verifications by result",
		}, []string{"result"}),
		verifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "duration_seconds",
			Help:      "Key verification latency",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		verifyCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "cache_total",
			Help:      "Verification cache lookups by outcome",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),
		advisoryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "advisory",
			Name:      "responses_total",
			Help:      "Advisory responses by outcome",
		}, []string{"outcome"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "total",
			Help:      "Key lifecycle events by pipeline stage and outcome",
		}, []string{"stage", "outcome"}),
		registry: registry,
	}

	registry.MustRegister(
		p.keysTotal,
		p.keysRejected,
		p.idempotentReplays,
		p.verifyTotal,
		p.verifyDuration,
		p.verifyCache,
		p.rateLimited,
		p.advisoryTotal,
		p.eventsTotal,
	)
	return p
}

func (p *PrometheusRecorder) IncKeyCreated() { p.keysTotal.WithLabelValues("create").Inc() }
func (p *PrometheusRecorder) IncKeyUpdated() { p.keysTotal.WithLabelValues("update").Inc() }
func (p *PrometheusRecorder) IncKeyRevoked() { p.keysTotal.WithLabelValues("revoke").Inc() }

func (p *PrometheusRecorder) IncKeyRejected(reason string) {
	p.keysRejected.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) IncIdempotentReplay() { p.idempotentReplays.Inc() }

func (p *PrometheusRecorder) ObserveVerify(result string, duration time.Duration) {
	p.verifyTotal.WithLabelValues(result).Inc()
	p.verifyDuration.Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncVerifyCacheHit() { p.verifyCache.WithLabelValues("hit").Inc() }
func (p *PrometheusRecorder) IncVerifyCacheMiss() { p.verifyCache.WithLabelValues("miss").Inc() }
func (p *PrometheusRecorder) IncRateLimited() { p.rateLimited.Inc() }

func (p *PrometheusRecorder) IncAdvisory(outcome string) {
	p.advisoryTotal.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncEvent(stage, outcome string) {
	p.eventsTotal.WithLabelValues(stage, outcome).Inc()
}

// HTTPHandler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
