package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/nholik/deploy-verifier/internal/probe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName is the Pushgateway job label for verification runs.
const JobName = "deploy_verifier"

// Metrics wraps Prometheus collectors for deploy-verifier.
type Metrics struct {
	registry              *prometheus.Registry
	probeAttemptsTotal    *prometheus.CounterVec
	restartsTotal         prometheus.Counter
	failuresTotal         *prometheus.CounterVec
	stageDurationSeconds  *prometheus.HistogramVec
	runDurationSeconds    prometheus.Gauge
	lastRunSuccess        prometheus.Gauge
	lastRunTimestampGauge prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		probeAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deploy_verifier_probe_attempts_total",
			Help: "Total probe attempts by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		restartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deploy_verifier_restarts_total",
			Help: "Total restart commands issued.",
		}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deploy_verifier_failures_total",
			Help: "Total terminal verification failures by kind.",
		}, []string{"kind"}),
		stageDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deploy_verifier_stage_duration_seconds",
			Help:    "Duration of verification stages in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"stage"}),
		runDurationSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deploy_verifier_run_duration_seconds",
			Help: "Duration of the last verification run in seconds.",
		}),
		lastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deploy_verifier_last_run_success",
			Help: "1 if the last verification run succeeded, 0 otherwise.",
		}),
		lastRunTimestampGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deploy_verifier_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last verification run.",
		}),
	}

	registry.MustRegister(
		m.probeAttemptsTotal,
		m.restartsTotal,
		m.failuresTotal,
		m.stageDurationSeconds,
		m.runDurationSeconds,
		m.lastRunSuccess,
		m.lastRunTimestampGauge,
	)

	return m
}

// ObserveProbe records one probe attempt against the named endpoint.
func (m *Metrics) ObserveProbe(endpoint string, result probe.Result) {
	if m == nil {
		return
	}
	outcome := "failure"
	switch {
	case result.Succeeded:
		outcome = "success"
	case result.StatusCode == 0:
		outcome = "transport_error"
	}
	m.probeAttemptsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// IncRestarts increments the restart counter.
func (m *Metrics) IncRestarts() {
	if m == nil {
		return
	}
	m.restartsTotal.Inc()
}

// IncFailures increments the failure counter for the given kind.
func (m *Metrics) IncFailures(kind string) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(kind).Inc()
}

// ObserveStageDuration records how long a stage took.
func (m *Metrics) ObserveStageDuration(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// SetRunResult records the verdict, duration and finish time of a run.
func (m *Metrics) SetRunResult(succeeded bool, duration time.Duration, finishedAt time.Time) {
	if m == nil {
		return
	}
	value := 0.0
	if succeeded {
		value = 1
	}
	m.lastRunSuccess.Set(value)
	m.runDurationSeconds.Set(duration.Seconds())
	m.lastRunTimestampGauge.Set(float64(finishedAt.Unix()))
}

// Push sends all collected metrics to a Pushgateway, grouped by the given labels.
func (m *Metrics) Push(ctx context.Context, gatewayURL string, grouping map[string]string) error {
	if m == nil || gatewayURL == "" {
		return nil
	}
	pusher := push.New(gatewayURL, JobName).Gatherer(m.registry)
	for name, value := range grouping {
		if value == "" {
			continue
		}
		pusher = pusher.Grouping(name, value)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// InstrumentProber wraps a prober so every attempt is counted under endpoint.
func (m *Metrics) InstrumentProber(endpoint string, inner probe.Prober) probe.Prober {
	if m == nil {
		return inner
	}
	return &instrumentedProber{metrics: m, endpoint: endpoint, inner: inner}
}

type instrumentedProber struct {
	metrics  *Metrics
	endpoint string
	inner    probe.Prober
}

func (p *instrumentedProber) Probe(ctx context.Context, url string) probe.Result {
	result := p.inner.Probe(ctx, url)
	p.metrics.ObserveProbe(p.endpoint, result)
	return result
}
