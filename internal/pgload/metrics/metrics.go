package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/pgload/internal/common/health"
	"github.com/G-Research/pgload/internal/common/serve"
)

const (
	namespace = "pgload"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the prometheus collectors updated during a run.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	queries         *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
	monitorRequests *prometheus.CounterVec
	activeRunners   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Number of statements executed by workload runners.",
		}, []string{"cluster", "category", "outcome"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Latency of statements executed by workload runners.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"cluster", "category"}),
		monitorRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_requests_total",
			Help:      "Number of requests made to the monitoring service.",
		}, []string{"endpoint", "outcome"}),
		activeRunners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runners",
			Help:      "Number of workload runners currently executing.",
		}),
	}
	for _, c := range []prometheus.Collector{m.queries, m.queryDuration, m.monitorRequests, m.activeRunners} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) RecordQuery(cluster, category string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(cluster, category, outcome(err)).Inc()
	m.queryDuration.WithLabelValues(cluster, category).Observe(duration.Seconds())
}

func (m *Metrics) RecordMonitorRequest(endpoint string, err error) {
	if m == nil {
		return
	}
	m.monitorRequests.WithLabelValues(endpoint, outcome(err)).Inc()
}

func (m *Metrics) RunnerStarted() {
	if m == nil {
		return
	}
	m.activeRunners.Inc()
}

func (m *Metrics) RunnerFinished() {
	if m == nil {
		return
	}
	m.activeRunners.Dec()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// Serve exposes the gatherer on /metrics, and the checker on /health when not nil, until ctx is cancelled.
func Serve(ctx context.Context, port int, gatherer prometheus.Gatherer, checker health.Checker) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           newMux(gatherer, checker),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Infof("Serving prometheus metrics on :%d/metrics", port)
	return serve.ListenAndServe(ctx, srv)
}

func newMux(gatherer prometheus.Gatherer, checker health.Checker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	if checker != nil {
		health.SetupHttpMux(mux, checker)
	}
	return mux
}
