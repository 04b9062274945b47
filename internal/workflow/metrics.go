package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"curator/internal/workerpool"
)

const metricsNamespace = "curator"

// Metrics holds the scheduler's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ticks       *prometheus.CounterVec
	items       *prometheus.CounterVec
	batchSize   *prometheus.HistogramVec
	runDuration *prometheus.HistogramVec
	triggered   *prometheus.GaugeVec
	running     *prometheus.GaugeVec
	jobRuns     *prometheus.CounterVec
}

// NewMetrics creates the scheduler collectors and registers them with reg.
// A nil reg leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "stage",
			Name:      "ticks_total",
			Help:      "Stage ticks by result.",
		}, []string{"stage", "result"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "stage",
			Name:      "items_total",
			Help:      "Work items processed by outcome.",
		}, []string{"stage", "outcome"}),
		batchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "stage",
			Name:      "batch_size",
			Help:      "Items per non-empty batch.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}, []string{"stage"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "stage",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a worker pool run.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"stage"}),
		triggered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "stage",
			Name:      "triggered",
			Help:      "1 while the stage has an unconsumed trigger.",
		}, []string{"stage"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "stage",
			Name:      "running",
			Help:      "1 while the stage holds its run lock.",
		}, []string{"stage"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Periodic job executions by result.",
		}, []string{"job", "result"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.ticks, m.items, m.batchSize, m.runDuration, m.triggered, m.running, m.jobRuns} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeTick(stageName string, result TickResult) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(stageName, result.String()).Inc()
}

func (m *Metrics) observeRun(stageName string, batchSize int, summary workerpool.Summary) {
	if m == nil {
		return
	}
	m.batchSize.WithLabelValues(stageName).Observe(float64(batchSize))
	m.runDuration.WithLabelValues(stageName).Observe(summary.Duration.Seconds())
}

func (m *Metrics) observeItem(stageName string, outcome workerpool.Outcome, _ time.Duration) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(stageName, string(outcome)).Inc()
}

func (m *Metrics) setTriggered(stageName string, on bool) {
	if m == nil {
		return
	}
	m.triggered.WithLabelValues(stageName).Set(boolGauge(on))
}

func (m *Metrics) setRunning(stageName string, on bool) {
	if m == nil {
		return
	}
	m.running.WithLabelValues(stageName).Set(boolGauge(on))
}

func (m *Metrics) observeJob(job string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
}

func boolGauge(on bool) float64 {
	if on {
		return 1
	}
	return 0
}
