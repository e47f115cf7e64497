package distributed

import (
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/taskpool/pkg/common/validation"
	"github.com/vnykmshr/taskpool/pkg/metrics"
)

const limiterType = "redis_fixed_window"

// Clock supplies the current time. *testutil.MockClock satisfies it.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds configuration for the distributed limiter.
type Config struct {
	// Redis client for coordination
	Redis redis.UniversalClient

	// Key is the Redis key prefix for this limiter
	Key string

	// Limit is the number of admissions per window shared by all instances
	Limit int

	// Window is the length of one counting window (default: 1s)
	Window time.Duration

	// InstanceID uniquely identifies this process (default: random UUID)
	InstanceID string

	// RedisTimeout bounds each Redis round trip (default: 500ms)
	RedisTimeout time.Duration

	// PollInterval is how often Wait retries while the window is full (default: 50ms)
	PollInterval time.Duration

	// KeyTTL is how long the stats and instance keys live (default: 1h)
	KeyTTL time.Duration

	// FailOpen admits requests when Redis is unreachable instead of failing them.
	FailOpen bool

	// Name labels metrics (default: Key)
	Name    string
	Metrics *metrics.Registry
	Clock   Clock
}

// Stats holds distributed limiter statistics.
type Stats struct {
	Limit           int
	Window          time.Duration
	Used            int64 // admissions in the current window
	TotalRequests   int64
	AllowedRequests int64
	DeniedRequests  int64
	ActiveInstances []string
}

func (c Config) validate() error {
	if err := validation.ValidateNotNil("distributed", "redis", c.Redis); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty("distributed", "key", c.Key); err != nil {
		return err
	}
	return validation.ValidatePositive("distributed", "limit", c.Limit)
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = time.Second
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.NewString()
	}
	if c.RedisTimeout <= 0 {
		c.RedisTimeout = 500 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 50 * time.Millisecond
	}
	if c.KeyTTL <= 0 {
		c.KeyTTL = time.Hour
	}
	if c.Name == "" {
		c.Name = c.Key
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	return c
}

// RedisError represents a Redis operation error.
type RedisError struct {
	Operation string
	Err       error
}

func (e *RedisError) Error() string {
	return "redis error in " + e.Operation + ": " + e.Err.Error()
}

func (e *RedisError) Unwrap() error {
	return e.Err
}
