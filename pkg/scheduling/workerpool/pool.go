package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
	"github.com/vnykmshr/taskpool/pkg/common/validation"
	"github.com/vnykmshr/taskpool/pkg/metrics"
)

const (
	// DefaultWorkers is the worker count used by DefaultConfig.
	DefaultWorkers = 4
	// DefaultQueueSize is the queue capacity used by DefaultConfig.
	DefaultQueueSize = 16
	// DefaultName labels logs and metrics when Config.Name is empty.
	DefaultName = "default"

	// MaxWorkers is the largest accepted Config.Workers.
	MaxWorkers = 1 << 16
	// MaxQueueSize is the largest accepted Config.QueueSize.
	MaxQueueSize = 1 << 24
)

// Task represents a unit of work that can be executed by a worker.
type Task interface {
	// Execute runs the task. The context carries the submitter's values but
	// is never canceled by the pool.
	Execute(ctx context.Context) error
}

// TaskFunc is a function type that implements the Task interface.
type TaskFunc func(ctx context.Context) error

// Execute implements the Task interface for TaskFunc.
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Limiter gates submissions before they reach the queue.
// *rate.Limiter and the distributed limiters satisfy it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Result describes one finished task and is passed to Config.OnTaskComplete.
type Result struct {
	// TaskID is the Future ID of the task
	TaskID uint64

	// Error is the task's error, or a *PanicError
	Error error

	// Duration is how long the task took to execute
	Duration time.Duration

	// WorkerID identifies which worker executed the task
	WorkerID int
}

// Stats is a snapshot of pool counters. Counters accumulate across restarts.
type Stats struct {
	Submitted int64
	Completed int64
	Failed    int64
	Panicked  int64
	Rejected  int64
	Blocked   int64
	Discarded int64
}

// Config holds configuration options for creating a worker pool.
type Config struct {
	// Workers is the number of worker goroutines started by Start.
	Workers int

	// QueueSize is the maximum number of tasks waiting for a worker.
	// Submitters block while the queue is full.
	QueueSize int

	// Name labels log lines and metrics. Defaults to DefaultName.
	Name string

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics records pool metrics when non-nil.
	Metrics *metrics.Registry

	// Admission, when set, is waited on before a task may enter the queue.
	Admission Limiter

	// OnWorkerStart is called when a worker starts.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called when a worker stops.
	OnWorkerStop func(workerID int)

	// OnTaskStart is called before a task begins execution.
	OnTaskStart func(workerID int, taskID uint64)

	// OnTaskComplete is called after a task finishes, before its Future resolves.
	OnTaskComplete func(workerID int, result Result)
}

// DefaultConfig returns a configuration with 4 workers and 16 queue slots.
func DefaultConfig() Config {
	return Config{
		Workers:   DefaultWorkers,
		QueueSize: DefaultQueueSize,
		Name:      DefaultName,
	}
}

// Validate checks the worker and queue bounds.
func (c Config) Validate() error {
	if err := validation.ValidateRange("workerpool", "workers", c.Workers, 1, MaxWorkers); err != nil {
		return err
	}
	return validation.ValidateRange("workerpool", "queue_size", c.QueueSize, 1, MaxQueueSize)
}

// Pool runs submitted tasks on a fixed set of workers fed by a bounded queue.
//
// A new Pool is stopped. Start spawns the workers; Stop wakes every blocked
// submitter with ErrPoolStopped, joins the workers after their current task
// and discards whatever is still queued. Shutdown does the same but lets the
// workers drain the queue first. A stopped pool may be started again.
type Pool struct {
	config  Config
	logger  *slog.Logger
	metrics poolMetrics

	// lifeMu serializes Start, Stop and Shutdown.
	lifeMu sync.Mutex

	mu      sync.RWMutex
	running bool
	lc      *lifecycle

	seq    atomic.Uint64
	active atomic.Int64

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
	rejected  atomic.Int64
	blocked   atomic.Int64
	discarded atomic.Int64
}

// lifecycle is the state of one Start..Stop run.
type lifecycle struct {
	queue chan *job

	// closing is closed when the pool stops accepting work.
	closing chan struct{}
	// quit is closed when workers must abandon the queue.
	quit chan struct{}

	// inflight counts submitters that passed the running check and may
	// still send on queue.
	inflight sync.WaitGroup
	group    errgroup.Group

	dropped atomic.Int64
	started time.Time
}

// New creates a stopped pool with the given worker count and queue capacity.
func New(workers, queueSize int) (*Pool, error) {
	cfg := DefaultConfig()
	cfg.Workers = workers
	cfg.QueueSize = queueSize
	return NewWithConfig(cfg)
}

// NewWithConfig creates a stopped pool with the specified configuration.
func NewWithConfig(config Config) (*Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Name == "" {
		config.Name = DefaultName
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		config:  config,
		logger:  logger.With("component", "workerpool", "pool", config.Name),
		metrics: poolMetrics{registry: config.Metrics, name: config.Name},
	}, nil
}

// Start spawns the workers. It is a no-op on a running pool.
func (p *Pool) Start() {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Debug("start ignored, pool already running")
		return
	}
	lc := &lifecycle{
		queue:   make(chan *job, p.config.QueueSize),
		closing: make(chan struct{}),
		quit:    make(chan struct{}),
		started: time.Now(),
	}
	p.lc = lc
	p.running = true
	p.mu.Unlock()

	for i := 0; i < p.config.Workers; i++ {
		workerID := i
		lc.group.Go(func() error {
			p.work(lc, workerID)
			return nil
		})
	}

	p.metrics.started(p.config.Workers)
	p.logger.Info("worker pool started", "workers", p.config.Workers, "queue_size", p.config.QueueSize)
}

// Stop stops accepting work, wakes blocked submitters and waits for every
// worker to finish its current task. Tasks still queued are discarded and
// their Futures never resolve. Stop is idempotent and safe on a pool that was
// never started.
func (p *Pool) Stop() {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	lc := p.halt()
	if lc == nil {
		return
	}
	close(lc.quit)
	lc.inflight.Wait()
	_ = lc.group.Wait()
	close(lc.queue)
	p.finish(lc, "stop")
}

// Shutdown stops accepting work and waits for the workers to drain the queue.
// If ctx ends first, Shutdown falls back to Stop and returns ctx.Err(); a
// missed deadline also matches tperrors.ErrTimeout.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	lc := p.halt()
	if lc == nil {
		return nil
	}
	lc.inflight.Wait()
	close(lc.queue)

	drained := make(chan struct{})
	go func() {
		_ = lc.group.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("workerpool: drain: %w: %w", tperrors.ErrTimeout, err)
		}
		close(lc.quit)
		<-drained
	}
	p.finish(lc, "shutdown")
	return err
}

// Close stops the pool. It implements io.Closer.
func (p *Pool) Close() error {
	p.Stop()
	return nil
}

// halt flips the pool to stopped and wakes blocked submitters. It returns nil
// if the pool was not running.
func (p *Pool) halt() *lifecycle {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	p.running = false
	close(p.lc.closing)
	lc := p.lc
	p.lc = nil
	return lc
}

// finish purges the closed queue once every worker has exited.
func (p *Pool) finish(lc *lifecycle, how string) {
	for range lc.queue {
		lc.dropped.Add(1)
	}
	dropped := lc.dropped.Load()
	p.discarded.Add(dropped)
	p.metrics.stopped(dropped)

	p.logger.Info("worker pool stopped",
		"mode", how,
		"discarded", dropped,
		"uptime", time.Since(lc.started))
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	return p.config.Workers
}

// Capacity returns the maximum number of queued tasks.
func (p *Pool) Capacity() int {
	return p.config.QueueSize
}

// QueueSize returns the current number of queued tasks waiting for execution.
func (p *Pool) QueueSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.lc == nil {
		return 0
	}
	return len(p.lc.queue)
}

// ActiveWorkers returns the number of workers currently executing tasks.
func (p *Pool) ActiveWorkers() int {
	return int(p.active.Load())
}

// Running reports whether the pool accepts submissions.
func (p *Pool) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Name returns the configured pool name.
func (p *Pool) Name() string {
	return p.config.Name
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panicked:  p.panicked.Load(),
		Rejected:  p.rejected.Load(),
		Blocked:   p.blocked.Load(),
		Discarded: p.discarded.Load(),
	}
}
