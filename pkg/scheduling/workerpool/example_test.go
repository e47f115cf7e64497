package workerpool_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
)

// Example demonstrates basic usage of the worker pool
func Example() {
	pool, err := workerpool.New(3, 10)
	if err != nil {
		log.Fatal(err)
	}
	pool.Start()
	defer pool.Stop()

	f, err := pool.Submit(workerpool.TaskFunc(func(ctx context.Context) error {
		fmt.Println("Task executed")
		return nil
	}))
	if err != nil {
		log.Printf("Failed to submit task: %v", err)
		return
	}

	if _, err := f.Wait(); err != nil {
		log.Printf("Task failed: %v", err)
	}

	// Output: Task executed
}

// ExampleCall submits work with typed results and reads them in order.
func ExampleCall() {
	pool, err := workerpool.New(4, 4)
	if err != nil {
		log.Fatal(err)
	}
	pool.Start()
	defer pool.Stop()

	var futures []*workerpool.Future[int]
	for i := 0; i < 8; i++ {
		f, err := workerpool.Call(pool, func(ctx context.Context) (int, error) {
			time.Sleep(time.Duration(8-i) * time.Millisecond)
			return i * 10, nil
		})
		if err != nil {
			log.Fatal(err)
		}
		futures = append(futures, f)
	}

	for _, f := range futures {
		v, _ := f.Wait()
		fmt.Print(v, " ")
	}
	fmt.Println()

	// Output: 0 10 20 30 40 50 60 70
}

// Example_errorHandling shows failures and panics delivered through futures.
func Example_errorHandling() {
	pool, err := workerpool.New(1, 2)
	if err != nil {
		log.Fatal(err)
	}
	pool.Start()
	defer pool.Stop()

	failed, _ := pool.Submit(workerpool.TaskFunc(func(ctx context.Context) error {
		return errors.New("disk full")
	}))
	crashed, _ := workerpool.Call(pool, func(ctx context.Context) (int, error) {
		var m map[string]int
		m["x"] = 1
		return 0, nil
	})

	_, err = failed.Wait()
	fmt.Println("failed:", err)

	_, err = crashed.Wait()
	var perr *workerpool.PanicError
	fmt.Println("panicked:", errors.As(err, &perr))

	// Output:
	// failed: disk full
	// panicked: true
}

// Example_gracefulShutdown drains queued work before returning.
func Example_gracefulShutdown() {
	pool, err := workerpool.New(2, 8)
	if err != nil {
		log.Fatal(err)
	}
	pool.Start()

	var done atomic.Int32
	for i := 0; i < 8; i++ {
		_, err := pool.Submit(workerpool.TaskFunc(func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			done.Add(1)
			return nil
		}))
		if err != nil {
			log.Fatal(err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}

	fmt.Println("completed:", done.Load())
	_, err = pool.Submit(workerpool.TaskFunc(func(ctx context.Context) error { return nil }))
	fmt.Println(errors.Is(err, workerpool.ErrPoolStopped))

	// Output:
	// completed: 8
	// true
}
