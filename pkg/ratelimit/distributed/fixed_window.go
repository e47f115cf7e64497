package distributed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
)

// FixedWindow admits at most Limit events per window across every process
// sharing the same Redis key. It satisfies workerpool.Limiter.
type FixedWindow struct {
	config Config
	script *redis.Script

	statsKey     string
	instancesKey string
}

// NewFixedWindow validates cfg and registers this instance in Redis.
func NewFixedWindow(ctx context.Context, cfg Config) (*FixedWindow, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	l := &FixedWindow{
		config:       cfg,
		script:       redis.NewScript(luaFixedWindow),
		statsKey:     cfg.Key + ":stats",
		instancesKey: cfg.Key + ":instances",
	}
	if err := l.register(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FixedWindow) register(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.config.RedisTimeout)
	defer cancel()

	pipe := l.config.Redis.Pipeline()
	pipe.SAdd(ctx, l.instancesKey, l.config.InstanceID)
	pipe.Expire(ctx, l.instancesKey, l.config.KeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return &RedisError{"register", err}
	}
	return nil
}

// windowStart returns the start of the window containing t.
func (l *FixedWindow) windowStart(t time.Time) time.Time {
	return t.Truncate(l.config.Window)
}

func (l *FixedWindow) windowKey(start time.Time) string {
	return fmt.Sprintf("%s:window:%d", l.config.Key, start.UnixMilli())
}

// InstanceID returns the identifier this process registered under.
func (l *FixedWindow) InstanceID() string {
	return l.config.InstanceID
}

// Allow reports whether one event may happen now.
func (l *FixedWindow) Allow(ctx context.Context) (bool, error) {
	return l.AllowN(ctx, 1)
}

// AllowN reports whether n events may happen now. With FailOpen a Redis
// failure admits the events and is not reported.
func (l *FixedWindow) AllowN(ctx context.Context, n int) (bool, error) {
	if n <= 0 {
		return true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.config.RedisTimeout)
	defer cancel()

	start := l.windowStart(l.config.Clock.Now())
	res, err := l.script.Run(ctx, l.config.Redis,
		[]string{l.windowKey(start), l.statsKey},
		n,
		l.config.Limit,
		(2 * l.config.Window).Milliseconds(),
		l.config.KeyTTL.Milliseconds(),
	).Int64()
	if err != nil {
		if l.config.FailOpen {
			l.record(true)
			return true, nil
		}
		return false, &RedisError{"allow", err}
	}

	allowed := res == 1
	l.record(allowed)
	return allowed, nil
}

func (l *FixedWindow) record(allowed bool) {
	if l.config.Metrics == nil {
		return
	}
	if allowed {
		l.config.Metrics.AdmissionAllowed.WithLabelValues(limiterType, l.config.Name).Inc()
	} else {
		l.config.Metrics.AdmissionDenied.WithLabelValues(limiterType, l.config.Name).Inc()
	}
}

// Wait blocks until one event may happen.
func (l *FixedWindow) Wait(ctx context.Context) error {
	return l.WaitN(ctx, 1)
}

// WaitN blocks until n events may happen, ctx ends or Redis fails.
func (l *FixedWindow) WaitN(ctx context.Context, n int) error {
	if n > l.config.Limit {
		return fmt.Errorf("%w: %d events exceed window limit %d", tperrors.ErrCapacityExceeded, n, l.config.Limit)
	}

	begin := time.Now()
	defer func() {
		if l.config.Metrics != nil {
			l.config.Metrics.AdmissionWaitTime.WithLabelValues(limiterType, l.config.Name).Observe(time.Since(begin).Seconds())
		}
	}()

	for {
		ok, err := l.AllowN(ctx, n)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		now := l.config.Clock.Now()
		delay := l.windowStart(now).Add(l.config.Window).Sub(now)
		if delay <= 0 || delay > l.config.PollInterval {
			delay = l.config.PollInterval
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Stats returns the shared counters and the usage of the current window.
func (l *FixedWindow) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, l.config.RedisTimeout)
	defer cancel()

	pipe := l.config.Redis.Pipeline()
	statsCmd := pipe.HGetAll(ctx, l.statsKey)
	instancesCmd := pipe.SMembers(ctx, l.instancesKey)
	usedCmd := pipe.Get(ctx, l.windowKey(l.windowStart(l.config.Clock.Now())))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, &RedisError{"stats", err}
	}

	counters := statsCmd.Val()
	total, _ := strconv.ParseInt(counters["total_requests"], 10, 64)
	allowed, _ := strconv.ParseInt(counters["allowed_requests"], 10, 64)
	denied, _ := strconv.ParseInt(counters["denied_requests"], 10, 64)
	used, _ := strconv.ParseInt(usedCmd.Val(), 10, 64)

	return &Stats{
		Limit:           l.config.Limit,
		Window:          l.config.Window,
		Used:            used,
		TotalRequests:   total,
		AllowedRequests: allowed,
		DeniedRequests:  denied,
		ActiveInstances: instancesCmd.Val(),
	}, nil
}

// Reset clears the current window and the shared counters.
func (l *FixedWindow) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.config.RedisTimeout)
	defer cancel()

	window := l.windowKey(l.windowStart(l.config.Clock.Now()))
	if err := l.config.Redis.Del(ctx, window, l.statsKey).Err(); err != nil {
		return &RedisError{"reset", err}
	}
	return nil
}

// Close deregisters this instance. It does not close the Redis client.
func (l *FixedWindow) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), l.config.RedisTimeout)
	defer cancel()

	if err := l.config.Redis.SRem(ctx, l.instancesKey, l.config.InstanceID).Err(); err != nil {
		return &RedisError{"close", err}
	}
	return nil
}

const luaFixedWindow = `
-- KEYS[1]: current window key
-- KEYS[2]: stats key
-- ARGV[1]: requested events
-- ARGV[2]: limit per window
-- ARGV[3]: window key ttl (ms)
-- ARGV[4]: stats key ttl (ms)

local requested = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])

local used = tonumber(redis.call('GET', KEYS[1]) or "0")

redis.call('HINCRBY', KEYS[2], 'total_requests', requested)
redis.call('PEXPIRE', KEYS[2], ARGV[4])

if used + requested > limit then
    redis.call('HINCRBY', KEYS[2], 'denied_requests', requested)
    return 0
end

local now_used = redis.call('INCRBY', KEYS[1], requested)
if now_used == requested then
    redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
redis.call('HINCRBY', KEYS[2], 'allowed_requests', requested)
return 1
`
