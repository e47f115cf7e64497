// Package config loads the taskpool command configuration from YAML or JSON.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
	"github.com/vnykmshr/taskpool/pkg/common/validation"
	"github.com/vnykmshr/taskpool/pkg/scheduling/scheduler"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
)

// Format is a configuration file format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var (
	ErrUnsupportedFormat = errors.New("config: unsupported format")
	ErrLoadFailed        = errors.New("config: load failed")
	ErrParseFailed       = errors.New("config: parse failed")
)

// Config is the full command configuration.
type Config struct {
	Pool      PoolConfig       `koanf:"pool"`
	Admission AdmissionConfig  `koanf:"admission"`
	Log       LogConfig        `koanf:"log"`
	Metrics   MetricsConfig    `koanf:"metrics"`
	Demo      DemoConfig       `koanf:"demo"`
	Schedules []ScheduleConfig `koanf:"schedules"`
}

type PoolConfig struct {
	Name      string `koanf:"name"`
	Workers   int    `koanf:"workers"`
	QueueSize int    `koanf:"queue_size"`
}

// AdmissionConfig gates submissions. A zero Rate disables the local limiter;
// an empty Redis.Addr disables the shared one.
type AdmissionConfig struct {
	Rate  float64     `koanf:"rate"`
	Burst int         `koanf:"burst"`
	Redis RedisConfig `koanf:"redis"`
}

type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Key      string        `koanf:"key"`
	Limit    int           `koanf:"limit"`
	Window   time.Duration `koanf:"window"`
	FailOpen bool          `koanf:"fail_open"`
}

// LogConfig selects level and format; File enables rotated file output.
type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig sets the Prometheus listen address. Empty disables serving.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DemoConfig drives the demo command: Tasks tasks, task i sleeping i*Unit,
// on a pool of its own sized Workers/QueueSize.
type DemoConfig struct {
	Workers   int           `koanf:"workers"`
	QueueSize int           `koanf:"queue_size"`
	Tasks     int           `koanf:"tasks"`
	Unit      time.Duration `koanf:"unit"`
}

// ScheduleConfig is one synthetic job for the run command. Exactly one of
// Cron and Every must be set.
type ScheduleConfig struct {
	ID       string        `koanf:"id"`
	Cron     string        `koanf:"cron"`
	Every    time.Duration `koanf:"every"`
	Work     time.Duration `koanf:"work"`
	Attempts uint          `koanf:"attempts"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Pool: PoolConfig{
			Name:      workerpool.DefaultName,
			Workers:   workerpool.DefaultWorkers,
			QueueSize: workerpool.DefaultQueueSize,
		},
		Admission: AdmissionConfig{
			Redis: RedisConfig{
				Key:    "taskpool:admission",
				Window: time.Second,
			},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Demo: DemoConfig{
			Workers:   4,
			QueueSize: 4,
			Tasks:     20,
			Unit:      150 * time.Millisecond,
		},
	}
}

// Load reads path over Default. The format follows the file extension.
func Load(path string) (Config, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return LoadBytes(data, format)
}

// LoadBytes parses data over Default and validates the result.
func LoadBytes(data []byte, format Format) (Config, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DetectFormat maps a file extension to a Format.
func DetectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := validation.ValidateRange("config", "pool.workers", c.Pool.Workers, 1, workerpool.MaxWorkers); err != nil {
		return err
	}
	if err := validation.ValidateRange("config", "pool.queue_size", c.Pool.QueueSize, 1, workerpool.MaxQueueSize); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("config", "admission.rate", c.Admission.Rate); err != nil {
		return err
	}
	if c.Admission.Rate > 0 {
		if err := validation.ValidatePositive("config", "admission.burst", c.Admission.Burst); err != nil {
			return err
		}
	}
	if c.Admission.Redis.Addr != "" {
		if err := validation.ValidatePositive("config", "admission.redis.limit", c.Admission.Redis.Limit); err != nil {
			return err
		}
		if err := validation.ValidatePositiveDuration("config", "admission.redis.window", c.Admission.Redis.Window); err != nil {
			return err
		}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return tperrors.NewValidationError("config", "log.format", c.Log.Format, "must be text or json")
	}
	if err := validation.ValidateRange("config", "demo.workers", c.Demo.Workers, 1, workerpool.MaxWorkers); err != nil {
		return err
	}
	if err := validation.ValidateRange("config", "demo.queue_size", c.Demo.QueueSize, 1, workerpool.MaxQueueSize); err != nil {
		return err
	}
	if err := validation.ValidatePositive("config", "demo.tasks", c.Demo.Tasks); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Schedules))
	for i, s := range c.Schedules {
		field := fmt.Sprintf("schedules[%d]", i)
		if err := validation.ValidateNotEmpty("config", field+".id", s.ID); err != nil {
			return err
		}
		if seen[s.ID] {
			return tperrors.NewValidationError("config", field+".id", s.ID, "duplicate id")
		}
		seen[s.ID] = true

		switch {
		case s.Cron != "" && s.Every > 0:
			return tperrors.NewValidationError("config", field, s.ID, "cron and every are mutually exclusive")
		case s.Cron != "":
			if err := scheduler.ValidateCron(s.Cron); err != nil {
				return tperrors.NewValidationError("config", field+".cron", s.Cron, err.Error())
			}
		case s.Every <= 0:
			return tperrors.NewValidationError("config", field, s.ID, "needs cron or a positive every")
		}
	}
	return nil
}
