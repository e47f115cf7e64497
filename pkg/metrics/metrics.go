// Package metrics provides Prometheus instrumentation for taskpool components.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "taskpool"

// Registry holds all metric instances for taskpool components.
type Registry struct {
	// Worker pool
	WorkerPoolSize   *prometheus.GaugeVec
	WorkerPoolActive *prometheus.GaugeVec
	WorkerPoolQueued *prometheus.GaugeVec
	TasksSubmitted   *prometheus.CounterVec
	TasksRejected    *prometheus.CounterVec
	SubmitBlocked    *prometheus.CounterVec
	TasksCompleted   *prometheus.CounterVec
	TasksFailed      *prometheus.CounterVec
	TasksPanicked    *prometheus.CounterVec
	TasksDiscarded   *prometheus.CounterVec
	SubmitWait       *prometheus.HistogramVec
	QueueWait        *prometheus.HistogramVec
	TaskDuration     *prometheus.HistogramVec

	// Scheduler
	TasksScheduled  *prometheus.CounterVec
	TasksDispatched *prometheus.CounterVec
	TasksSkipped    *prometheus.CounterVec

	// Admission
	AdmissionAllowed  *prometheus.CounterVec
	AdmissionDenied   *prometheus.CounterVec
	AdmissionWaitTime *prometheus.HistogramVec
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry bound to prometheus.DefaultRegisterer.
// It is created on first use so that importing the package registers nothing.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
	})
	return defaultRegistry
}

// New returns a registry for cfg, or nil when metrics are disabled.
// A nil cfg.Registry selects Default.
func New(cfg Config) *Registry {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Registry == nil {
		return Default()
	}
	return NewRegistry(cfg.Registry)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	pool := []string{"pool_name"}
	sched := []string{"scheduler_name"}
	limiter := []string{"limiter_type", "limiter_name"}

	return &Registry{
		WorkerPoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "workers",
				Help:      "Number of workers started by the pool",
			}, pool),
		WorkerPoolActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "active_workers",
				Help:      "Number of workers currently executing a task",
			}, pool),
		WorkerPoolQueued: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "queued_tasks",
				Help:      "Number of tasks waiting in the queue",
			}, pool),
		TasksSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "tasks_submitted_total",
				Help:      "Total number of tasks accepted into the queue",
			}, pool),
		TasksRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "tasks_rejected_total",
				Help:      "Total number of submissions refused",
			}, []string{"pool_name", "reason"}),
		SubmitBlocked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "submit_blocked_total",
				Help:      "Total number of submissions that waited for queue space",
			}, pool),
		TasksCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "tasks_completed_total",
				Help:      "Total number of tasks that returned without error",
			}, pool),
		TasksFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "tasks_failed_total",
				Help:      "Total number of tasks that returned an error or panicked",
			}, pool),
		TasksPanicked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "tasks_panicked_total",
				Help:      "Total number of tasks that panicked",
			}, pool),
		TasksDiscarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "tasks_discarded_total",
				Help:      "Total number of queued tasks dropped by Stop",
			}, pool),
		SubmitWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "submit_wait_seconds",
				Help:      "Time submitters spent waiting for admission and queue space",
				Buckets:   prometheus.DefBuckets,
			}, pool),
		QueueWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "queue_wait_seconds",
				Help:      "Time tasks spent in the queue before a worker picked them up",
				Buckets:   prometheus.DefBuckets,
			}, pool),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "task_duration_seconds",
				Help:      "Time spent executing tasks",
				Buckets:   prometheus.DefBuckets,
			}, pool),

		TasksScheduled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "tasks_scheduled_total",
				Help:      "Total number of tasks registered with the scheduler",
			}, sched),
		TasksDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "tasks_dispatched_total",
				Help:      "Total number of runs handed to the worker pool",
			}, sched),
		TasksSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "tasks_skipped_total",
				Help:      "Total number of runs the worker pool refused",
			}, sched),

		AdmissionAllowed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "admission",
				Name:      "allowed_total",
				Help:      "Total number of admitted requests",
			}, limiter),
		AdmissionDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "admission",
				Name:      "denied_total",
				Help:      "Total number of denied requests",
			}, limiter),
		AdmissionWaitTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "admission",
				Name:      "wait_duration_seconds",
				Help:      "Time spent waiting for admission",
				Buckets:   prometheus.DefBuckets,
			}, limiter),
	}
}
