/*
Package scheduler feeds a workerpool.Pool on a timetable.

Entries run once at a given time (Schedule, After), repeatedly on a fixed
interval (Every) or on a six-field cron expression with seconds (Cron). A
ticker checks for due entries every TickInterval and submits them to the pool.
Submission blocks while the pool's queue is full, so a saturated pool slows
dispatch instead of letting work pile up.

	pool, _ := workerpool.New(4, 16)
	pool.Start()
	defer pool.Stop()

	s, err := scheduler.New(scheduler.Config{Pool: pool})
	if err != nil {
		return err
	}
	if err := s.Start(); err != nil {
		return err
	}
	defer s.Stop()

	s.Every("heartbeat", heartbeat, 30*time.Second)
	s.Cron("nightly", "0 0 2 * * *", compact)
	s.After("warmup", warm, time.Minute)

RetryTask wraps a task with exponential backoff:

	s.Every("sync", scheduler.RetryTask{
		Task:         syncTask,
		Attempts:     5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}, time.Minute)

Stop the scheduler before the pool so that no dispatch is refused.
*/
package scheduler
