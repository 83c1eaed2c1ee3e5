package metrics

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"

	"natsume/internal/database"
)

const namespace = "natsume"

// Metrics holds the request and outcome instruments of the server.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Outcomes *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_outcomes_total",
			Help:      "Bind, unbind, report and sync outcomes.",
		}, []string{"operation", "outcome"}),
	}
	reg.MustRegister(m.Requests, m.Duration, m.Outcomes)
	return m
}

// Outcome records one operation result. Safe on a nil receiver so callers
// can run with metrics disabled.
func (m *Metrics) Outcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) Observe(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, codeLabel(code)).Inc()
	m.Duration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func codeLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

type StatusSource interface {
	Counts(ctx context.Context) (database.Counts, error)
	CountStale(ctx context.Context, before time.Time) (int64, error)
}

// StatusCollector reads the store on every scrape.
type StatusCollector struct {
	source     StatusSource
	clock      clock.PassiveClock
	staleAfter time.Duration
	logger     logr.Logger

	bindings    *prometheus.Desc
	credentials *prometheus.Desc
	synced      *prometheus.Desc
	stale       *prometheus.Desc
}

func NewStatusCollector(source StatusSource, clk clock.PassiveClock, staleAfter time.Duration, logger logr.Logger) *StatusCollector {
	return &StatusCollector{
		source:     source,
		clock:      clk,
		staleAfter: staleAfter,
		logger:     logger,

		bindings:    prometheus.NewDesc(namespace+"_bindings", "Stored device bindings.", nil, nil),
		credentials: prometheus.NewDesc(namespace+"_credentials", "Stored contestant credentials.", nil, nil),
		synced:      prometheus.NewDesc(namespace+"_credentials_synced", "Credentials confirmed synced by a heartbeat.", nil, nil),
		stale:       prometheus.NewDesc(namespace+"_bindings_stale", "Bindings without a heartbeat within the stale window.", nil, nil),
	}
}

func (c *StatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.bindings
	ch <- c.credentials
	ch <- c.synced
	ch <- c.stale
}

func (c *StatusCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := c.source.Counts(ctx)
	if err != nil {
		c.logger.Error(err, "failed to collect store counts")
		return
	}
	ch <- prometheus.MustNewConstMetric(c.bindings, prometheus.GaugeValue, float64(counts.Bindings))
	ch <- prometheus.MustNewConstMetric(c.credentials, prometheus.GaugeValue, float64(counts.Credentials))
	ch <- prometheus.MustNewConstMetric(c.synced, prometheus.GaugeValue, float64(counts.Synced))

	stale, err := c.source.CountStale(ctx, c.clock.Now().Add(-c.staleAfter))
	if err != nil {
		c.logger.Error(err, "failed to collect stale bindings")
		return
	}
	ch <- prometheus.MustNewConstMetric(c.stale, prometheus.GaugeValue, float64(stale))
}
