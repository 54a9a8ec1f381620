// Package config loads, defaults, and validates the application
// configuration from a YAML file with environment variable support.
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	Core    CoreConfig    `mapstructure:"core" yaml:"core" validate:"required"`
	Swarm   SwarmConfig   `mapstructure:"swarm" yaml:"swarm" validate:"required"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
}

// CoreConfig contains core application settings.
type CoreConfig struct {
	// ProjectDir is the project root holding the changes/ tree.
	ProjectDir string `mapstructure:"project_dir" yaml:"project_dir"`

	// HomeDir is where local state (history database) lives.
	HomeDir string `mapstructure:"home_dir" yaml:"home_dir"`

	// MaxWorkers caps the swarm size. 0 derives the cap from the plan.
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" validate:"min=0,max=100"`

	// MaxParallel caps concurrent task waits within a batch.
	MaxParallel int `mapstructure:"max_parallel" yaml:"max_parallel" validate:"min=1,max=100"`

	// Timeout bounds a whole run. 0 means no overall deadline.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// SwarmConfig contains the remote swarm service connection and scheduling
// settings.
type SwarmConfig struct {
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	APIKey       string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Topology     string        `mapstructure:"topology" yaml:"topology" validate:"oneof=hierarchical mesh ring star"`
	Strategy     string        `mapstructure:"strategy" yaml:"strategy" validate:"oneof=balanced specialized adaptive"`
	Priority     string        `mapstructure:"priority" yaml:"priority" validate:"oneof=low medium high critical"`
	WorkerRole   string        `mapstructure:"worker_role" yaml:"worker_role"`
	TaskTimeout  time.Duration `mapstructure:"task_timeout" yaml:"task_timeout" validate:"min=1s"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" validate:"min=100ms"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json text"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate" validate:"min=0,max=1"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
}

// HistoryConfig controls run history persistence.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}
