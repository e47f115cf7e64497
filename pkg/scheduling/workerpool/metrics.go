package workerpool

import (
	"time"

	"github.com/vnykmshr/taskpool/pkg/metrics"
)

const (
	rejectStopped   = "stopped"
	rejectCanceled  = "canceled"
	rejectAdmission = "admission"
)

// poolMetrics records into a metrics.Registry; the zero value records nothing.
type poolMetrics struct {
	registry *metrics.Registry
	name     string
}

func (m poolMetrics) started(workers int) {
	if m.registry == nil {
		return
	}
	m.registry.WorkerPoolSize.WithLabelValues(m.name).Set(float64(workers))
	m.registry.WorkerPoolActive.WithLabelValues(m.name).Set(0)
	m.registry.WorkerPoolQueued.WithLabelValues(m.name).Set(0)
}

func (m poolMetrics) stopped(discarded int64) {
	if m.registry == nil {
		return
	}
	m.registry.WorkerPoolSize.WithLabelValues(m.name).Set(0)
	m.registry.WorkerPoolQueued.WithLabelValues(m.name).Set(0)
	if discarded > 0 {
		m.registry.TasksDiscarded.WithLabelValues(m.name).Add(float64(discarded))
	}
}

func (m poolMetrics) submitted(wait time.Duration, queued int) {
	if m.registry == nil {
		return
	}
	m.registry.TasksSubmitted.WithLabelValues(m.name).Inc()
	m.registry.SubmitWait.WithLabelValues(m.name).Observe(wait.Seconds())
	m.registry.WorkerPoolQueued.WithLabelValues(m.name).Set(float64(queued))
}

func (m poolMetrics) rejected(reason string) {
	if m.registry == nil {
		return
	}
	m.registry.TasksRejected.WithLabelValues(m.name, reason).Inc()
}

func (m poolMetrics) blocked() {
	if m.registry == nil {
		return
	}
	m.registry.SubmitBlocked.WithLabelValues(m.name).Inc()
}

func (m poolMetrics) taskStarted(queueWait time.Duration, queued int, active int64) {
	if m.registry == nil {
		return
	}
	m.registry.QueueWait.WithLabelValues(m.name).Observe(queueWait.Seconds())
	m.registry.WorkerPoolQueued.WithLabelValues(m.name).Set(float64(queued))
	m.registry.WorkerPoolActive.WithLabelValues(m.name).Set(float64(active))
}

func (m poolMetrics) taskFinished(d time.Duration, err error, panicked bool, active int64) {
	if m.registry == nil {
		return
	}
	m.registry.TaskDuration.WithLabelValues(m.name).Observe(d.Seconds())
	m.registry.WorkerPoolActive.WithLabelValues(m.name).Set(float64(active))
	switch {
	case err == nil:
		m.registry.TasksCompleted.WithLabelValues(m.name).Inc()
	case panicked:
		m.registry.TasksFailed.WithLabelValues(m.name).Inc()
		m.registry.TasksPanicked.WithLabelValues(m.name).Inc()
	default:
		m.registry.TasksFailed.WithLabelValues(m.name).Inc()
	}
}
