/*
Package ratelimit groups the admission limiters that can gate a worker pool.

  - distributed: Redis fixed-window limiter shared by every instance using the same key

Any type with a Wait(context.Context) error method can serve as
workerpool.Config.Admission, so an in-process limiter such as
golang.org/x/time/rate works without an adapter:

	pool, _ := workerpool.NewWithConfig(workerpool.Config{
		Workers:   4,
		QueueSize: 16,
		Admission: rate.NewLimiter(100, 10),
	})

A shared window across processes:

	limiter, _ := distributed.NewFixedWindow(ctx, distributed.Config{
		Redis: rdb,
		Key:   "ingest",
		Limit: 500,
	})
	defer limiter.Close()
*/
package ratelimit
