package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
	"github.com/vnykmshr/taskpool/pkg/common/validation"
	"github.com/vnykmshr/taskpool/pkg/metrics"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
)

var (
	// ErrAlreadyRunning is returned by Start on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler: already running")

	// ErrDuplicateID is returned when an entry with the same ID exists.
	ErrDuplicateID = errors.New("scheduler: duplicate task id")

	// ErrTooManyTasks is returned when MaxTasks entries are registered.
	ErrTooManyTasks = errors.New("scheduler: too many tasks")
)

const maxIDLength = 255

// Clock supplies the current time. *testutil.MockClock satisfies it.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Entry describes a registered task.
type Entry struct {
	ID       string
	RunAt    time.Time
	Interval time.Duration // zero for one-shot and cron entries
	Cron     string
	Created  time.Time
	Runs     int64
}

// Config holds scheduler configuration.
type Config struct {
	// Pool runs the dispatched tasks. Required.
	Pool *workerpool.Pool

	Name         string
	Location     *time.Location // for cron entries
	TickInterval time.Duration  // how often to check for ready tasks (default: 50ms)
	MaxTasks     int            // maximum number of entries (default: 10000)

	Logger  *slog.Logger
	Metrics *metrics.Registry
	Clock   Clock
}

type scheduledTask struct {
	id           string
	task         workerpool.Task
	runAt        time.Time
	interval     time.Duration
	cronExpr     string
	cronSchedule cron.Schedule
	created      time.Time
	runs         int64
}

// Scheduler hands tasks to a worker pool at fixed times, on intervals or on
// cron schedules. Dispatch blocks while the pool's queue is full, so a
// saturated pool slows the scheduler down instead of piling up work.
type Scheduler struct {
	pool         *workerpool.Pool
	name         string
	location     *time.Location
	tickInterval time.Duration
	maxTasks     int
	cronParser   cron.Parser
	clock        Clock
	logger       *slog.Logger
	metrics      *metrics.Registry

	mu      sync.Mutex
	tasks   map[string]*scheduledTask
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCron reports whether expr is a valid six-field cron expression
// (seconds first).
func ValidateCron(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// New creates a stopped scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Pool == nil {
		return nil, tperrors.NewValidationError("scheduler", "pool", nil, "cannot be nil").
			WithHint("pass the worker pool that should run scheduled tasks")
	}

	s := &Scheduler{
		pool:         cfg.Pool,
		name:         cfg.Name,
		location:     cfg.Location,
		tickInterval: cfg.TickInterval,
		maxTasks:     cfg.MaxTasks,
		cronParser:   cronParser,
		clock:        cfg.Clock,
		metrics:      cfg.Metrics,
		tasks:        make(map[string]*scheduledTask),
	}
	if s.name == "" {
		s.name = cfg.Pool.Name()
	}
	if s.location == nil {
		s.location = time.Local
	}
	if s.tickInterval <= 0 {
		s.tickInterval = 50 * time.Millisecond
	}
	if s.maxTasks <= 0 {
		s.maxTasks = 10000
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger.With("component", "scheduler", "scheduler", s.name)
	return s, nil
}

// Schedule runs task once at runAt.
func (s *Scheduler) Schedule(id string, task workerpool.Task, runAt time.Time) error {
	if runAt.IsZero() {
		return tperrors.NewValidationError("scheduler", "run_at", runAt, "cannot be zero")
	}
	return s.add(&scheduledTask{id: id, task: task, runAt: runAt})
}

// After runs task once after delay.
func (s *Scheduler) After(id string, task workerpool.Task, delay time.Duration) error {
	return s.Schedule(id, task, s.clock.Now().Add(delay))
}

// Every runs task immediately and then every interval.
func (s *Scheduler) Every(id string, task workerpool.Task, interval time.Duration) error {
	if err := validation.ValidatePositiveDuration("scheduler", "interval", interval); err != nil {
		return err
	}
	return s.add(&scheduledTask{id: id, task: task, runAt: s.clock.Now(), interval: interval})
}

// Cron runs task on a six-field cron expression evaluated in Config.Location.
func (s *Scheduler) Cron(id, expr string, task workerpool.Task) error {
	if err := validation.ValidateNotEmpty("scheduler", "cron", expr); err != nil {
		return err
	}
	schedule, err := s.cronParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return s.add(&scheduledTask{
		id:           id,
		task:         task,
		runAt:        schedule.Next(s.clock.Now().In(s.location)),
		cronExpr:     expr,
		cronSchedule: schedule,
	})
}

func (s *Scheduler) add(t *scheduledTask) error {
	if err := validation.ValidateNotEmpty("scheduler", "id", t.id); err != nil {
		return err
	}
	if len(t.id) > maxIDLength {
		return validation.ValidateRange("scheduler", "id_length", len(t.id), 1, maxIDLength)
	}
	if t.task == nil {
		return workerpool.ErrNilTask
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateID, t.id)
	}
	if len(s.tasks) >= s.maxTasks {
		return fmt.Errorf("%w: limit %d", ErrTooManyTasks, s.maxTasks)
	}

	t.created = s.clock.Now()
	s.tasks[t.id] = t
	if s.metrics != nil {
		s.metrics.TasksScheduled.WithLabelValues(s.name).Inc()
	}
	return nil
}

// Cancel removes an entry. It reports whether the entry existed.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; exists {
		delete(s.tasks, id)
		return true
	}
	return false
}

// CancelAll removes every entry.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*scheduledTask)
}

// List returns the entries ordered by next run time.
func (s *Scheduler) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.tasks))
	for _, t := range s.tasks {
		entries = append(entries, Entry{
			ID:       t.id,
			RunAt:    t.runAt,
			Interval: t.interval,
			Cron:     t.cronExpr,
			Created:  t.created,
			Runs:     t.runs,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RunAt.Equal(entries[j].RunAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].RunAt.Before(entries[j].RunAt)
	})
	return entries
}

// Start begins the dispatch loop. The pool must be started separately.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)
	s.logger.Info("scheduler started", "tick", s.tickInterval)
	return nil
}

// Stop ends the dispatch loop and waits for it to exit. A dispatch blocked on
// a full pool is abandoned. Entries are kept, so Start resumes them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.processReadyTasks(ctx)
		}
	}
}

// processReadyTasks dispatches every due entry and reschedules repeating ones.
func (s *Scheduler) processReadyTasks(ctx context.Context) {
	now := s.clock.Now()

	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return
	}

	ready := make([]*scheduledTask, 0, len(s.tasks))
	for id, t := range s.tasks {
		if t.runAt.After(now) {
			continue
		}
		ready = append(ready, t)
		t.runs++

		switch {
		case t.interval > 0:
			t.runAt = now.Add(t.interval)
		case t.cronSchedule != nil:
			t.runAt = t.cronSchedule.Next(now.In(s.location))
		default:
			delete(s.tasks, id)
		}
	}
	s.mu.Unlock()

	sort.Slice(ready, func(i, j int) bool { return ready[i].id < ready[j].id })
	for _, t := range ready {
		s.dispatch(ctx, t)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, t *scheduledTask) {
	if _, err := s.pool.SubmitContext(ctx, t.task); err != nil {
		if s.metrics != nil {
			s.metrics.TasksSkipped.WithLabelValues(s.name).Inc()
		}
		s.logger.Warn("dispatch failed", "task", t.id, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.TasksDispatched.WithLabelValues(s.name).Inc()
	}
	s.logger.Debug("task dispatched", "task", t.id)
}
