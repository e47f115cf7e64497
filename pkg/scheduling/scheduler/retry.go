package scheduler

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v5"

	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
)

// RetryTask wraps a task with exponential backoff retries.
type RetryTask struct {
	Task workerpool.Task

	// Attempts is the total number of tries, including the first (default: 3).
	Attempts     uint
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// RetryIf limits retries to matching errors. Nil retries every error.
	RetryIf func(error) bool
}

// Execute implements workerpool.Task.
func (rt RetryTask) Execute(ctx context.Context) error {
	attempts := rt.Attempts
	if attempts == 0 {
		attempts = 3
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(rt.InitialDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	}
	if rt.MaxDelay > 0 {
		opts = append(opts, retry.MaxDelay(rt.MaxDelay))
	}
	if rt.RetryIf != nil {
		opts = append(opts, retry.RetryIf(rt.RetryIf))
	}

	return retry.New(opts...).Do(func() error {
		return rt.Task.Execute(ctx)
	})
}
