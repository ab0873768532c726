package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"openprotect-lab/internal/domain/models"
)

const namespace = "openprotect"

// Metrics holds the Prometheus collectors for the engine and API. It
// implements services.EngineMetrics.
type Metrics struct {
	registry *prometheus.Registry

	TicksTotal         prometheus.Counter
	TickDuration       prometheus.Histogram
	EventsTotal        *prometheus.CounterVec
	PlaybookExecutions *prometheus.CounterVec
	PlaybookFailures   *prometheus.CounterVec
	KnowledgeLevel     *prometheus.GaugeVec
	Cases              *prometheus.GaugeVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TicksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of simulation ticks processed.",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_seconds",
			Help:      "Tick processing latency in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Server events appended to the timeline, partitioned by type.",
		}, []string{"type"}),
		PlaybookExecutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbook_executions_total",
			Help:      "Playbook executions, partitioned by playbook name.",
		}, []string{"playbook"}),
		PlaybookFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbook_action_failures_total",
			Help:      "Failed playbook actions, partitioned by playbook name.",
		}, []string{"playbook"}),
		KnowledgeLevel: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "knowledge_level",
			Help:      "Current knowledge level on a 0-100 scale.",
		}, []string{"side"}),
		Cases: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cases",
			Help:      "Number of cases by status.",
		}, []string{"status"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, partitioned by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveTick records one processed tick
func (m *Metrics) ObserveTick(duration time.Duration) {
	m.TicksTotal.Inc()
	if duration < 0 {
		duration = 0
	}
	m.TickDuration.Observe(duration.Seconds())
}

// EventEmitted counts one appended event
func (m *Metrics) EventEmitted(eventType models.EventType) {
	m.EventsTotal.WithLabelValues(string(eventType)).Inc()
}

// PlaybookExecuted counts one playbook run and its failed actions
func (m *Metrics) PlaybookExecuted(playbook string, failedActions int) {
	m.PlaybookExecutions.WithLabelValues(playbook).Inc()
	if failedActions > 0 {
		m.PlaybookFailures.WithLabelValues(playbook).Add(float64(failedActions))
	}
}

// SetKnowledge updates the knowledge gauges
func (m *Metrics) SetKnowledge(levels models.KnowledgeLevels) {
	m.KnowledgeLevel.WithLabelValues("server").Set(levels.Server)
	m.KnowledgeLevel.WithLabelValues("agent").Set(levels.Agent)
}

// SetCaseCounts updates the case gauges
func (m *Metrics) SetCaseCounts(counts models.CaseCounts) {
	m.Cases.WithLabelValues(string(models.CaseStatusNew)).Set(float64(counts.New))
	m.Cases.WithLabelValues(string(models.CaseStatusInProgress)).Set(float64(counts.InProgress))
	m.Cases.WithLabelValues(string(models.CaseStatusResolved)).Set(float64(counts.Resolved))
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(route, method string, code int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}
