package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// job is one queued unit of work. exec runs the task and returns a closure
// that publishes the outcome to the task's Future.
type job struct {
	id       uint64
	ctx      context.Context
	enqueued time.Time
	exec     func(ctx context.Context) (publish func(), err error)
}

// Submit queues task, blocking while the queue is full.
// It returns ErrPoolStopped if the pool is not running or stops while waiting.
func (p *Pool) Submit(task Task) (*Future[struct{}], error) {
	return p.SubmitContext(context.Background(), task)
}

// SubmitContext is Submit bounded by ctx. The context limits only the wait for
// admission and queue space; the task receives it without its cancellation.
func (p *Pool) SubmitContext(ctx context.Context, task Task) (*Future[struct{}], error) {
	if task == nil {
		return nil, ErrNilTask
	}
	if fn, ok := task.(TaskFunc); ok && fn == nil {
		return nil, ErrNilTask
	}
	return CallContext(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, task.Execute(ctx)
	})
}

// Call queues fn on p and returns a Future for its result.
func Call[T any](p *Pool, fn func(ctx context.Context) (T, error)) (*Future[T], error) {
	return CallContext(context.Background(), p, fn)
}

// CallContext is Call bounded by ctx, with the same rules as SubmitContext.
func CallContext[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (*Future[T], error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	if ctx == nil {
		ctx = context.Background()
	}

	f := newFuture[T](p.seq.Add(1))
	j := &job{
		id:  f.id,
		ctx: context.WithoutCancel(ctx),
		exec: func(ctx context.Context) (func(), error) {
			v, err := call(ctx, fn)
			return func() { f.resolve(v, err) }, err
		},
	}
	if err := p.enqueue(ctx, j); err != nil {
		return nil, err
	}
	return f, nil
}

// call runs fn, converting a panic into a *PanicError.
func call[T any](ctx context.Context, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

// enqueue places j at the tail of the queue, waiting for space while the pool
// runs. A send that races with Stop may still succeed; the job then counts as
// queued before the stop and is drained or discarded with the rest.
func (p *Pool) enqueue(ctx context.Context, j *job) error {
	p.mu.RLock()
	if !p.running {
		p.mu.RUnlock()
		p.reject(rejectStopped)
		return ErrPoolStopped
	}
	lc := p.lc
	lc.inflight.Add(1)
	p.mu.RUnlock()
	defer lc.inflight.Done()

	if err := ctx.Err(); err != nil {
		p.reject(rejectCanceled)
		return fmt.Errorf("%w: %w", ErrSubmitCanceled, err)
	}

	begin := time.Now()
	if p.config.Admission != nil {
		if err := p.admit(ctx, lc); err != nil {
			return err
		}
	}

	j.enqueued = time.Now()
	select {
	case lc.queue <- j:
		p.accepted(begin, len(lc.queue))
		return nil
	default:
	}

	p.blocked.Add(1)
	p.metrics.blocked()
	p.logger.Debug("queue full, submitter waiting", "task_id", j.id, "capacity", cap(lc.queue))

	select {
	case lc.queue <- j:
		p.accepted(begin, len(lc.queue))
		return nil
	case <-lc.closing:
		p.reject(rejectStopped)
		return ErrPoolStopped
	case <-ctx.Done():
		p.reject(rejectCanceled)
		return fmt.Errorf("%w: %w", ErrSubmitCanceled, ctx.Err())
	}
}

// admit waits on the admission limiter. Stopping the pool interrupts the wait.
func (p *Pool) admit(ctx context.Context, lc *lifecycle) error {
	actx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-lc.closing:
			cancel()
		case <-actx.Done():
		}
	}()

	err := p.config.Admission.Wait(actx)
	if err == nil {
		return nil
	}

	select {
	case <-lc.closing:
		p.reject(rejectStopped)
		return ErrPoolStopped
	default:
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		p.reject(rejectCanceled)
		return fmt.Errorf("%w: %w", ErrSubmitCanceled, ctxErr)
	}
	p.reject(rejectAdmission)
	return fmt.Errorf("%w: %w", ErrAdmission, err)
}

func (p *Pool) accepted(begin time.Time, queued int) {
	p.submitted.Add(1)
	p.metrics.submitted(time.Since(begin), queued)
}

func (p *Pool) reject(reason string) {
	p.rejected.Add(1)
	p.metrics.rejected(reason)
}
