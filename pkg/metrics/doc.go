/*
Package metrics provides Prometheus instrumentation for the worker pool, the
scheduler that feeds it, and the admission limiters in front of it.

All metrics live under the "taskpool" namespace:

	taskpool_workerpool_workers{pool_name}
	taskpool_workerpool_active_workers{pool_name}
	taskpool_workerpool_queued_tasks{pool_name}
	taskpool_workerpool_tasks_submitted_total{pool_name}
	taskpool_workerpool_tasks_rejected_total{pool_name,reason}
	taskpool_workerpool_submit_blocked_total{pool_name}
	taskpool_workerpool_tasks_completed_total{pool_name}
	taskpool_workerpool_tasks_failed_total{pool_name}
	taskpool_workerpool_tasks_panicked_total{pool_name}
	taskpool_workerpool_tasks_discarded_total{pool_name}
	taskpool_workerpool_submit_wait_seconds{pool_name}
	taskpool_workerpool_queue_wait_seconds{pool_name}
	taskpool_workerpool_task_duration_seconds{pool_name}
	taskpool_scheduler_tasks_scheduled_total{scheduler_name}
	taskpool_scheduler_tasks_dispatched_total{scheduler_name}
	taskpool_scheduler_tasks_skipped_total{scheduler_name}
	taskpool_admission_allowed_total{limiter_type,limiter_name}
	taskpool_admission_denied_total{limiter_type,limiter_name}
	taskpool_admission_wait_duration_seconds{limiter_type,limiter_name}

Components take a *Registry and treat nil as "metrics off". Use a private
prometheus.Registry per component in tests, since registering the same
collector twice on one registerer panics:

	reg := prometheus.NewRegistry()
	pool, err := workerpool.NewWithConfig(workerpool.Config{
		Workers:   4,
		QueueSize: 16,
		Name:      "ingest",
		Metrics:   metrics.NewRegistry(reg),
	})

Expose them with promhttp:

	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
*/
package metrics
