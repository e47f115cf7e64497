// Package distributed provides admission limiting shared by every process that
// points at the same Redis key.
//
// FixedWindow counts admissions in fixed windows (one second by default). The
// check and the increment run in a single Lua script, so concurrent instances
// never admit more than Limit events per window between them.
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//
//	limiter, err := distributed.NewFixedWindow(ctx, distributed.Config{
//		Redis:  rdb,
//		Key:    "taskpool:ingest",
//		Limit:  100,
//		Window: time.Second,
//	})
//	if err != nil {
//		return err
//	}
//	defer limiter.Close()
//
// A *FixedWindow satisfies workerpool.Limiter, so it can gate a pool's queue
// directly:
//
//	pool, err := workerpool.NewWithConfig(workerpool.Config{
//		Workers:   4,
//		QueueSize: 16,
//		Admission: limiter,
//	})
//
// Wait polls until the next window opens. When Redis is unreachable it fails
// the wait with a *RedisError unless FailOpen is set, in which case requests
// are admitted.
package distributed
