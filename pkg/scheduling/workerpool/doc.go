/*
Package workerpool runs submitted tasks on a fixed number of goroutines fed by
a bounded FIFO queue.

Producers that outpace the workers block in Submit until a slot frees up, so
memory stays bounded no matter how bursty the load is.

Basic usage:

	pool, err := workerpool.New(4, 16)
	if err != nil {
		return err
	}
	pool.Start()
	defer pool.Stop()

	f, err := workerpool.Call(pool, func(ctx context.Context) (int, error) {
		return compute(), nil
	})
	if err != nil {
		return err // ErrPoolStopped
	}
	v, err := f.Wait()

Tasks:

Anything implementing Task, or a TaskFunc, can be queued with Submit or
SubmitContext. Call and CallContext take a function with a typed result and
return a *Future of that type. The context given to SubmitContext and
CallContext bounds only the wait for queue space; the task sees its values but
not its cancellation, and a queued task cannot be canceled.

A task that returns an error or panics does not take its worker down. The
error, or a *PanicError carrying the stack, is delivered through the Future.

Lifecycle:

A pool starts stopped. Start spawns the workers; calling it on a running pool
does nothing. Stop wakes every blocked submitter with ErrPoolStopped, lets busy
workers finish their current task and discards the rest of the queue. The
Futures of discarded tasks never resolve, so read them with Get and a bounded
context when a Stop may intervene. Shutdown drains the queue before returning
and falls back to Stop when its context ends. Start after Stop begins a fresh
run with an empty queue.

Stop and Shutdown wait for the workers, so they must not be called from inside
a task running on the same pool.

Configuration:

	pool, err := workerpool.NewWithConfig(workerpool.Config{
		Workers:   8,
		QueueSize: 1000,
		Name:      "thumbnails",
		Logger:    logger,
		Metrics:   metrics.NewRegistry(reg),
		Admission: rate.NewLimiter(100, 10),
		OnTaskComplete: func(workerID int, r workerpool.Result) {
			logger.Debug("task done", "worker", workerID, "took", r.Duration)
		},
	})

Admission is waited on before a task may enter the queue; *rate.Limiter and the
limiters in pkg/ratelimit/distributed satisfy it.
*/
package workerpool
