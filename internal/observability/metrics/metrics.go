package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SchedulerMetrics captures batch scheduler health signals.
type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	jobTimeouts    *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	batchProcessed *prometheus.CounterVec
	runLoopLag     prometheus.Observer
}

// LedgerMetrics captures escrow ledger and remote mirror signals.
type LedgerMetrics struct {
	operations       *prometheus.CounterVec
	penaltiesApplied *prometheus.CounterVec
	mirrorFailures   *prometheus.CounterVec
}

var (
	once      sync.Once
	scheduler *SchedulerMetrics
	ledger    *LedgerMetrics
)

func register() {
	scheduler = &SchedulerMetrics{
		jobRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_scheduler_job_runs_total",
			Help: "Number of scheduler job executions.",
		}, []string{"job"}),
		jobErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_scheduler_job_errors_total",
			Help: "Number of scheduler job executions that returned an error.",
		}, []string{"job"}),
		jobTimeouts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_scheduler_job_timeouts_total",
			Help: "Number of scheduler job executions cut off by their deadline.",
		}, []string{"job"}),
		jobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "escrow_scheduler_job_duration_seconds",
			Help:    "Scheduler job wall time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		batchProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_scheduler_batch_processed_total",
			Help: "Number of obligations processed per job.",
		}, []string{"job"}),
		runLoopLag: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "escrow_scheduler_run_loop_lag_seconds",
			Help:    "How far behind schedule the run loop started.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}
	httpMetrics = registerHTTP()
	ledger = &LedgerMetrics{
		operations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_ledger_operations_total",
			Help: "Escrow ledger mutations by operation and outcome.",
		}, []string{"op", "status"}),
		penaltiesApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_penalties_applied_total",
			Help: "Penalties applied by penalty type.",
		}, []string{"type"}),
		mirrorFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_remote_mirror_failures_total",
			Help: "Best-effort remote calls that failed, by target.",
		}, []string{"target"}),
	}
}

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	once.Do(register)
	return scheduler
}

// Ledger returns the singleton ledger metrics registry.
func Ledger() *LedgerMetrics {
	once.Do(register)
	return ledger
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobError(job string) {
	m.jobErrors.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SchedulerMetrics) AddBatchProcessed(job string, n int) {
	if n <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job).Add(float64(n))
}

func (m *SchedulerMetrics) ObserveRunLoopLag(lag time.Duration) {
	m.runLoopLag.Observe(lag.Seconds())
}

func (m *LedgerMetrics) IncOperation(op, status string) {
	m.operations.WithLabelValues(op, status).Inc()
}

func (m *LedgerMetrics) IncPenaltyApplied(penaltyType string) {
	m.penaltiesApplied.WithLabelValues(penaltyType).Inc()
}

func (m *LedgerMetrics) IncMirrorFailure(target string) {
	m.mirrorFailures.WithLabelValues(target).Inc()
}
