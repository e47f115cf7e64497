package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	"github.com/vnykmshr/taskpool/internal/config"
	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
	"github.com/vnykmshr/taskpool/pkg/metrics"
	"github.com/vnykmshr/taskpool/pkg/ratelimit/distributed"
	"github.com/vnykmshr/taskpool/pkg/scheduling/scheduler"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
)

const (
	shutdownTimeout = 10 * time.Second
	localLimiter    = "local_token_bucket"
)

func createRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run the configured schedules until interrupted",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, cleanup, err := setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			svc, err := newService(ctx, cfg, logger, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			return svc.run(ctx)
		},
	}
}

// service owns everything the run command starts.
type service struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	pool     *workerpool.Pool
	sched    *scheduler.Scheduler
	redis    *redis.Client
	shared   *distributed.FixedWindow
	listener net.Listener
	server   *http.Server
}

func newService(ctx context.Context, cfg config.Config, logger *slog.Logger, reg *prometheus.Registry) (_ *service, err error) {
	s := &service{cfg: cfg, logger: logger, registry: reg}
	defer func() {
		if err != nil {
			s.release()
		}
	}()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewRegistry(reg)

	admission, err := s.admission(ctx, m)
	if err != nil {
		return nil, err
	}

	s.pool, err = workerpool.NewWithConfig(workerpool.Config{
		Workers:   cfg.Pool.Workers,
		QueueSize: cfg.Pool.QueueSize,
		Name:      cfg.Pool.Name,
		Logger:    logger,
		Metrics:   m,
		Admission: admission,
	})
	if err != nil {
		return nil, err
	}

	s.sched, err = scheduler.New(scheduler.Config{
		Pool:    s.pool,
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		return nil, err
	}
	for _, sc := range cfg.Schedules {
		task := scheduledWork(sc, logger)
		if sc.Cron != "" {
			err = s.sched.Cron(sc.ID, sc.Cron, task)
		} else {
			err = s.sched.Every(sc.ID, task, sc.Every)
		}
		if err != nil {
			return nil, tperrors.NewOperationError("taskpool", "schedule", err).WithContext(sc.ID)
		}
	}

	if cfg.Metrics.Addr != "" {
		s.listener, err = net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return nil, tperrors.NewOperationError("taskpool", "listen", err).WithContext(cfg.Metrics.Addr)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}
	return s, nil
}

// admission chains the configured limiters. Nil means admission is open.
func (s *service) admission(ctx context.Context, m *metrics.Registry) (workerpool.Limiter, error) {
	var chain chainLimiter
	if a := s.cfg.Admission; a.Rate > 0 {
		chain = append(chain, &meteredLimiter{
			limiter: rate.NewLimiter(rate.Limit(a.Rate), a.Burst),
			name:    s.cfg.Pool.Name,
			metrics: m,
		})
	}
	if r := s.cfg.Admission.Redis; r.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{Addr: r.Addr})
		shared, err := distributed.NewFixedWindow(ctx, distributed.Config{
			Redis:    s.redis,
			Key:      r.Key,
			Limit:    r.Limit,
			Window:   r.Window,
			FailOpen: r.FailOpen,
			Metrics:  m,
		})
		if err != nil {
			return nil, err
		}
		s.shared = shared
		s.logger.Info("shared admission enabled", "key", r.Key, "limit", r.Limit, "window", r.Window,
			"instance_id", shared.InstanceID())
		chain = append(chain, shared)
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain, nil
}

// MetricsAddr is the bound metrics address, or "" when serving is disabled.
func (s *service) MetricsAddr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// run starts the pool, the scheduler and the metrics server, then blocks
// until ctx is done and drains the pool.
func (s *service) run(ctx context.Context) error {
	defer s.release()

	s.pool.Start()
	if err := s.sched.Start(); err != nil {
		s.pool.Stop()
		return err
	}

	// nil unless serving, so the select below only waits on ctx
	var serveErr chan error
	if s.server != nil {
		serveErr = make(chan error, 1)
		s.logger.Info("serving metrics", "addr", s.MetricsAddr())
		go func() {
			if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()
	}

	s.logger.Info("taskpool running", "schedules", len(s.cfg.Schedules))
	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("metrics server: %w", err)
		}
	}

	// the run ctx is already done here
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	s.sched.Stop()
	if err := s.pool.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("pool drain incomplete", "error", err)
	}
	if s.server != nil {
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("metrics server shutdown", "error", err)
		}
		<-serveErr
	}

	stats := s.pool.Stats()
	s.logger.Info("taskpool stopped",
		"submitted", stats.Submitted,
		"completed", stats.Completed,
		"failed", stats.Failed,
		"rejected", stats.Rejected,
		"discarded", stats.Discarded)
	return runErr
}

// release closes the shared limiter and the Redis client.
func (s *service) release() {
	if s.shared != nil {
		if err := s.shared.Close(); err != nil {
			s.logger.Warn("closing shared limiter", "error", err)
		}
		s.shared = nil
	}
	if s.redis != nil {
		_ = s.redis.Close()
		s.redis = nil
	}
}

// scheduledWork is the synthetic job behind a schedule entry. Entries with
// more than one attempt are retried with backoff.
func scheduledWork(sc config.ScheduleConfig, logger *slog.Logger) workerpool.Task {
	id, work := sc.ID, sc.Work
	var task workerpool.Task = workerpool.TaskFunc(func(ctx context.Context) error {
		begin := time.Now()
		if work > 0 {
			timer := time.NewTimer(work)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		logger.Debug("scheduled task ran", "schedule", id, "took", time.Since(begin))
		return nil
	})
	if sc.Attempts > 1 {
		task = scheduler.RetryTask{
			Task:         task,
			Attempts:     sc.Attempts,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		}
	}
	return task
}

// chainLimiter admits once every limiter has admitted, in order.
type chainLimiter []workerpool.Limiter

func (c chainLimiter) Wait(ctx context.Context) error {
	for _, l := range c {
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// meteredLimiter records admission metrics around an in-process token bucket.
type meteredLimiter struct {
	limiter *rate.Limiter
	name    string
	metrics *metrics.Registry
}

func (l *meteredLimiter) Wait(ctx context.Context) error {
	begin := time.Now()
	err := l.limiter.Wait(ctx)
	if l.metrics != nil {
		l.metrics.AdmissionWaitTime.WithLabelValues(localLimiter, l.name).Observe(time.Since(begin).Seconds())
		if err != nil {
			l.metrics.AdmissionDenied.WithLabelValues(localLimiter, l.name).Inc()
		} else {
			l.metrics.AdmissionAllowed.WithLabelValues(localLimiter, l.name).Inc()
		}
	}
	return err
}
