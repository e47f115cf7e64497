package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/vnykmshr/taskpool/internal/testutil"
	"github.com/vnykmshr/taskpool/pkg/ratelimit/distributed"
	"github.com/vnykmshr/taskpool/pkg/scheduling/scheduler"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newPool(t *testing.T, cfg workerpool.Config) *workerpool.Pool {
	t.Helper()
	cfg.Logger = quiet
	pool, err := workerpool.NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	pool.Start()
	t.Cleanup(pool.Stop)
	return pool
}

// TestRateLimitedSubmission verifies that an admission limiter paces tasks
// before they reach the queue.
func TestRateLimitedSubmission(t *testing.T) {
	// 20 per second with a burst of 5: the last 15 tasks need about 750ms
	pool := newPool(t, workerpool.Config{
		Workers:   4,
		QueueSize: 4,
		Admission: rate.NewLimiter(20, 5),
	})

	const numTasks = 20
	start := time.Now()
	futures := make([]*workerpool.Future[int], 0, numTasks)
	for i := range numTasks {
		f, err := workerpool.Call(pool, func(context.Context) (int, error) { return i * i, nil })
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		futures = append(futures, f)
	}

	for i, f := range futures {
		v, err := f.Wait()
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, v, i*i)
	}

	elapsed := time.Since(start)
	if elapsed < 500*time.Millisecond {
		t.Errorf("submission too fast: %v, admission may not be working", elapsed)
	}
	if elapsed > 3*time.Second {
		t.Errorf("submission too slow: %v", elapsed)
	}
}

// TestSharedAdmissionAcrossPools verifies that two pools sharing a Redis
// window admit no more than the shared limit between them.
func TestSharedAdmissionAcrossPools(t *testing.T) {
	mr, err := miniredis.Run()
	testutil.AssertNoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	// frozen clock keeps every attempt in the same window
	clock := testutil.NewMockClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	limiters := make([]*distributed.FixedWindow, 2)
	pools := make([]*workerpool.Pool, 2)
	for i := range limiters {
		limiters[i], err = distributed.NewFixedWindow(context.Background(), distributed.Config{
			Redis:        rdb,
			Key:          "integration",
			Limit:        5,
			Window:       time.Minute,
			PollInterval: 5 * time.Millisecond,
			Clock:        clock,
		})
		testutil.AssertNoError(t, err)
		defer limiters[i].Close()

		pools[i] = newPool(t, workerpool.Config{
			Workers:   2,
			QueueSize: 8,
			Name:      fmt.Sprintf("pool-%d", i),
			Admission: limiters[i],
		})
	}

	var ran atomic.Int64
	admitted, canceled := 0, 0
	for i := range 10 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		_, err := pools[i%2].SubmitContext(ctx, workerpool.TaskFunc(func(context.Context) error {
			ran.Add(1)
			return nil
		}))
		cancel()

		switch {
		case err == nil:
			admitted++
		case errors.Is(err, workerpool.ErrSubmitCanceled):
			canceled++
		default:
			t.Fatalf("unexpected submit error: %v", err)
		}
	}

	testutil.AssertEqual(t, admitted, 5)
	testutil.AssertEqual(t, canceled, 5)
	testutil.WaitForInt64(t, &ran, 5, time.Second)

	total := pools[0].Stats().Submitted + pools[1].Stats().Submitted
	testutil.AssertEqual(t, total, int64(5))
}

// TestSchedulerBackpressureDrain floods a single worker from the scheduler
// and checks that every accepted task runs after a graceful shutdown.
func TestSchedulerBackpressureDrain(t *testing.T) {
	pool, err := workerpool.NewWithConfig(workerpool.Config{Workers: 1, QueueSize: 1, Logger: quiet})
	testutil.AssertNoError(t, err)
	pool.Start()
	defer pool.Stop()

	sched, err := scheduler.New(scheduler.Config{
		Pool:         pool,
		Logger:       quiet,
		TickInterval: time.Millisecond,
	})
	testutil.AssertNoError(t, err)

	var ran atomic.Int64
	err = sched.Every("flood", workerpool.TaskFunc(func(context.Context) error {
		time.Sleep(10 * time.Millisecond)
		ran.Add(1)
		return nil
	}), time.Millisecond)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, sched.Start())

	testutil.Eventually(t, func() bool { return pool.Stats().Blocked > 0 }, 2*time.Second, time.Millisecond)
	testutil.WaitForInt64(t, &ran, 3, 2*time.Second)
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	testutil.AssertNoError(t, pool.Shutdown(ctx))

	stats := pool.Stats()
	testutil.AssertEqual(t, stats.Completed, stats.Submitted)
	testutil.AssertEqual(t, ran.Load(), stats.Submitted)
	testutil.AssertEqual(t, stats.Discarded, int64(0))
}

// TestScheduledRetry verifies that a retried task reaches the pool once and
// its attempts stay inside one execution.
func TestScheduledRetry(t *testing.T) {
	pool := newPool(t, workerpool.Config{Workers: 2, QueueSize: 2})

	sched, err := scheduler.New(scheduler.Config{Pool: pool, Logger: quiet, TickInterval: time.Millisecond})
	testutil.AssertNoError(t, err)

	var attempts atomic.Int64
	flaky := workerpool.TaskFunc(func(context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	err = sched.After("flaky", scheduler.RetryTask{Task: flaky, Attempts: 3, InitialDelay: time.Millisecond}, 0)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, sched.Start())
	defer sched.Stop()

	testutil.Eventually(t, func() bool { return pool.Stats().Completed == 1 }, 2*time.Second, time.Millisecond)
	testutil.AssertEqual(t, attempts.Load(), int64(3))
	testutil.AssertEqual(t, pool.Stats().Failed, int64(0))
}

// TestRestartKeepsFutures checks that futures from one run stay valid after
// the pool is stopped and started again.
func TestRestartKeepsFutures(t *testing.T) {
	pool := newPool(t, workerpool.Config{Workers: 2, QueueSize: 2})

	first, err := workerpool.Call(pool, func(context.Context) (string, error) { return "first", nil })
	testutil.AssertNoError(t, err)
	v, err := first.Wait()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, "first")

	pool.Stop()
	_, err = pool.Submit(workerpool.TaskFunc(func(context.Context) error { return nil }))
	testutil.AssertErrorIs(t, err, workerpool.ErrPoolStopped)

	pool.Start()
	second, err := workerpool.Call(pool, func(context.Context) (string, error) { return "second", nil })
	testutil.AssertNoError(t, err)
	v, err = second.Wait()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, "second")

	v, err = first.Wait()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, "first")
}
