package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics defines counters for record lifecycle and the reaper.
type Metrics interface {
	IncRecordsCreated(kind string)
	IncRecordsConsumed(kind string)
	IncRecordsExhausted(kind string)
	IncReaperEvent(outcome string)
	AddSweepRemoved(n int)
}

// GatewayMetrics captures request metrics for the HTTP API.
type GatewayMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements Metrics and GatewayMetrics without emitting anything.
type Noop struct{}

func (Noop) IncRecordsCreated(string)                       {}
func (Noop) IncRecordsConsumed(string)                      {}
func (Noop) IncRecordsExhausted(string)                     {}
func (Noop) IncReaperEvent(string)                          {}
func (Noop) AddSweepRemoved(int)                            {}
func (Noop) ObserveRequest(string, string, string, float64) {}

// Prom implements Metrics backed by Prometheus counters.
type Prom struct {
	created      *prometheus.CounterVec
	consumed     *prometheus.CounterVec
	exhausted    *prometheus.CounterVec
	reaperEvents *prometheus.CounterVec
	sweepRemoved prometheus.Counter
	once         sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_created_total",
			Help:      "Records created by payload kind",
		}, []string{"kind"}),
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_consumed_total",
			Help:      "Successful record reads by payload kind",
		}, []string{"kind"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_exhausted_total",
			Help:      "Records deleted after their last allowed access",
		}, []string{"kind"}),
		reaperEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_events_total",
			Help:      "Keyspace events handled by the reaper, by outcome",
		}, []string{"outcome"}),
		sweepRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_removed_files_total",
			Help:      "Orphaned files removed by the periodic sweep",
		}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.created, p.consumed, p.exhausted, p.reaperEvents, p.sweepRemoved)
	})
}

func (p *Prom) IncRecordsCreated(kind string) {
	p.created.WithLabelValues(kind).Inc()
}

func (p *Prom) IncRecordsConsumed(kind string) {
	p.consumed.WithLabelValues(kind).Inc()
}

func (p *Prom) IncRecordsExhausted(kind string) {
	p.exhausted.WithLabelValues(kind).Inc()
}

func (p *Prom) IncReaperEvent(outcome string) {
	p.reaperEvents.WithLabelValues(outcome).Inc()
}

func (p *Prom) AddSweepRemoved(n int) {
	if n > 0 {
		p.sweepRemoved.Add(float64(n))
	}
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// --- Gateway metrics ---

type gatewayProm struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	once     sync.Once
}

// NewGatewayProm constructs a GatewayMetrics with counters/histograms.
func NewGatewayProm(namespace string) GatewayMetrics {
	g := &gatewayProm{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	g.once.Do(func() {
		prometheus.MustRegister(g.requests, g.latency)
	})
	return g
}

func (g *gatewayProm) ObserveRequest(method, route, status string, durationSeconds float64) {
	g.requests.WithLabelValues(method, route, status).Inc()
	g.latency.WithLabelValues(method, route).Observe(durationSeconds)
}
