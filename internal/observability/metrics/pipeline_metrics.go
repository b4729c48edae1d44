package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks valuation pipeline health: run durations and
// outcomes, per-stage provider fetch failures and the scheduler
// backlog.
type PipelineMetrics struct {
	runDuration   *prometheus.HistogramVec
	runsProcessed *prometheus.CounterVec
	fetchFailures *prometheus.CounterVec
	runBacklog    prometheus.Gauge
	runBacklogAge prometheus.Gauge
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetrics     *PipelineMetrics
)

func Pipeline() *PipelineMetrics {
	return PipelineWithConfig(Config{})
}

func PipelineWithConfig(cfg Config) *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetrics = newPipelineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return pipelineMetrics
}

func ResetPipelineMetricsForTest() {
	pipelineMetricsOnce = sync.Once{}
	pipelineMetrics = nil
}

func newPipelineMetrics(registerer prometheus.Registerer, cfg Config) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "finbot"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "finbot_valuation_run_duration_seconds",
			Help: "End-to-end duration of one valuation run.",
			Buckets: []float64{
				1,
				5,
				15,
				30,
				60,
				120, // fetch timeout boundary
				300,
				600,
			},
			ConstLabels: constLabels,
		},
		[]string{"result"}, // success | failed
	)

	runsProcessed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "finbot_valuation_runs_total",
			Help:        "Total valuation runs processed.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // success | failed
	)

	fetchFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "finbot_provider_fetch_failures_total",
			Help:        "Provider fetch failures by stage.",
			ConstLabels: constLabels,
		},
		[]string{"scope"}, // linked_account | accounts | assets | liabilities
	)

	runBacklog := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "finbot_valuation_run_backlog_total",
			Help:        "Number of due valuation runs awaiting a worker.",
			ConstLabels: constLabels,
		},
	)

	runBacklogAge := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "finbot_valuation_run_backlog_oldest_seconds",
			Help:        "Age of the oldest due valuation run.",
			ConstLabels: constLabels,
		},
	)

	registerer.MustRegister(
		runDuration,
		runsProcessed,
		fetchFailures,
		runBacklog,
		runBacklogAge,
	)

	return &PipelineMetrics{
		runDuration:   runDuration,
		runsProcessed: runsProcessed,
		fetchFailures: fetchFailures,
		runBacklog:    runBacklog,
		runBacklogAge: runBacklogAge,
	}
}

func (m *PipelineMetrics) ObserveRun(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(result).Observe(duration.Seconds())
	m.runsProcessed.WithLabelValues(result).Inc()
}

func (m *PipelineMetrics) IncFetchFailure(scope string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(scope).Inc()
}

func (m *PipelineMetrics) SetRunBacklog(value int) {
	if m == nil {
		return
	}
	m.runBacklog.Set(float64(value))
}

func (m *PipelineMetrics) SetRunBacklogOldest(age time.Duration) {
	if m == nil {
		return
	}
	seconds := age.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.runBacklogAge.Set(seconds)
}
