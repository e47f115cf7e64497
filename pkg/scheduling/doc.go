/*
Package scheduling provides task execution and scheduling primitives.

  - workerpool: Fixed worker pool over a bounded queue with futures
  - scheduler: Time-based dispatch of tasks into a worker pool

Worker Pool:

	pool, _ := workerpool.New(4, 16) // 4 workers, 16 queue slots
	pool.Start()
	defer pool.Stop()

	f, _ := workerpool.Call(pool, func(ctx context.Context) (string, error) {
		return "done", nil
	})
	v, err := f.Wait()

Task Scheduler:

	sched, _ := scheduler.New(scheduler.Config{Pool: pool})
	sched.After("warmup", task, time.Minute)
	sched.Every("poll", task, time.Hour)
	sched.Cron("report", "0 0 9 * * MON-FRI", task) // weekdays at 9 AM
	sched.Start()
	defer sched.Stop()

A full queue blocks the scheduler's dispatch, so a slow pool slows the
schedule down instead of piling up work.
*/
package scheduling
