package workerpool

import (
	"errors"
	"fmt"

	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
)

var (
	// ErrPoolStopped is returned when submitting to a pool that is not running,
	// or when the pool stops while the submitter is waiting for queue space.
	// It matches tperrors.ErrClosed as well.
	ErrPoolStopped = fmt.Errorf("workerpool: pool has stopped: %w", tperrors.ErrClosed)

	// ErrSubmitCanceled is returned, together with the context error, when the
	// submit context ends before the task was queued.
	ErrSubmitCanceled = errors.New("workerpool: submit canceled")

	// ErrAdmission wraps a refusal from Config.Admission. It matches
	// tperrors.ErrRateLimited as well.
	ErrAdmission = fmt.Errorf("workerpool: admission denied: %w", tperrors.ErrRateLimited)

	// ErrNilTask is returned for a nil Task or function.
	ErrNilTask = errors.New("workerpool: nil task")
)

// PanicError is delivered through a Future when the task panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("workerpool: task panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
