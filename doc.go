/*
Package taskpool provides a bounded worker pool with futures, backpressure
and explicit start, stop and drain semantics.

Task Execution (pkg/scheduling):
  - workerpool: Fixed workers over a bounded queue; submitters block when it is full
  - scheduler: One-shot, interval and cron dispatch into a pool

Admission (pkg/ratelimit):
  - distributed: Redis fixed-window limiter shared across instances

Observability (pkg/metrics):
  - Prometheus collectors for pools, schedulers and limiters

Example usage:

	import "github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"

	pool, _ := workerpool.New(4, 4) // 4 workers, 4 queue slots
	pool.Start()
	defer pool.Stop()

	f, _ := workerpool.Call(pool, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	v, err := f.Wait()

The cmd/taskpool command wraps these packages with a YAML or JSON
configuration file.
*/
package taskpool
