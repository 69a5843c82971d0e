// Package config loads the worker's configuration surface from
// environment variables (prefix GYM_) and CLI flags, matching the
// enumerated settings of original_source/shared/src/gym_shared/settings.py.
// Shaped after the teacher's internal/config.Load (MiFaceDEV/miface),
// ported from a TOML decode to env/flag binding via spf13/viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved worker configuration.
type Config struct {
	// CameraIDs are the pipelines to launch, one ExercisePipeline per ID.
	CameraIDs []string

	// RedisURL is the stream bus endpoint.
	RedisURL string
	// DatabaseURL is the durable store endpoint.
	DatabaseURL string

	// ExercisesYAML is the path to the exercise-definition file.
	ExercisesYAML string

	// ConsumerGroup is the shared consumer group name for all pipelines.
	ConsumerGroup string
	// ConsumerName must be unique per running process.
	ConsumerName string

	// ReadBatch is the max messages read per XREADGROUP call.
	ReadBatch int64
	// BlockMs is how long XREADGROUP blocks waiting for new messages.
	BlockMs int64

	// SetIdleTimeout is how long a track can go unobserved before its
	// next update starts a fresh exercise set.
	SetIdleTimeout time.Duration
}

const envPrefix = "GYM"

func defaults(v *viper.Viper) {
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("database_url", "postgres://localhost:5432/gym")
	v.SetDefault("exercises_yaml", "exercises.yaml")
	v.SetDefault("consumer_group", "exercise-workers")
	v.SetDefault("consumer_name", "exercise-0")
	v.SetDefault("read_batch", 10)
	v.SetDefault("block_ms", 500)
	v.SetDefault("set_idle_timeout_s", 60.0)
	v.SetDefault("camera_ids", "")
}

// Load resolves configuration from environment variables (GYM_* prefix)
// and the given viper instance, which the caller's cobra command has
// already bound flags into. A nil v builds a fresh environment-only
// viper instance.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	defaults(v)

	raw := v.GetString("camera_ids")
	var cameraIDs []string
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			cameraIDs = append(cameraIDs, id)
		}
	}

	cfg := &Config{
		CameraIDs:      cameraIDs,
		RedisURL:       v.GetString("redis_url"),
		DatabaseURL:    v.GetString("database_url"),
		ExercisesYAML:  v.GetString("exercises_yaml"),
		ConsumerGroup:  v.GetString("consumer_group"),
		ConsumerName:   v.GetString("consumer_name"),
		ReadBatch:      v.GetInt64("read_batch"),
		BlockMs:        v.GetInt64("block_ms"),
		SetIdleTimeout: time.Duration(v.GetFloat64("set_idle_timeout_s") * float64(time.Second)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if len(c.CameraIDs) == 0 {
		return fmt.Errorf("camera_ids must name at least one camera")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("redis_url must not be empty")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url must not be empty")
	}
	if c.ExercisesYAML == "" {
		return fmt.Errorf("exercises_yaml must not be empty")
	}
	if c.ConsumerGroup == "" {
		return fmt.Errorf("consumer_group must not be empty")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer_name must not be empty")
	}
	if c.ReadBatch <= 0 {
		return fmt.Errorf("read_batch must be positive, got %d", c.ReadBatch)
	}
	if c.BlockMs <= 0 {
		return fmt.Errorf("block_ms must be positive, got %d", c.BlockMs)
	}
	if c.SetIdleTimeout <= 0 {
		return fmt.Errorf("set_idle_timeout_s must be positive, got %v", c.SetIdleTimeout)
	}
	return nil
}
