package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// ConfigLoader handles loading configuration from files.
type ConfigLoader interface {
	Load(path string) (*Config, error)
	LoadWithDefaults(path string) (*Config, error)
}

// viperConfigLoader implements ConfigLoader using Viper.
type viperConfigLoader struct {
	validator ConfigValidator
}

// NewConfigLoader creates a new ConfigLoader instance.
func NewConfigLoader(validator ConfigValidator) ConfigLoader {
	return &viperConfigLoader{
		validator: validator,
	}
}

// Load reads the YAML file at path over the defaults, applies OPENSPEC_*
// environment overrides and ${VAR} interpolation, and validates the
// result.
func (l *viperConfigLoader) Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.interpolate()

	if err := l.validator.Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWithDefaults loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration.
func (l *viperConfigLoader) LoadWithDefaults(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := l.validator.Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	return l.Load(path)
}

// newViper builds a viper instance with every key defaulted so partial
// config files and environment overrides merge over DefaultConfig.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("OPENSPEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault("core.project_dir", def.Core.ProjectDir)
	v.SetDefault("core.home_dir", def.Core.HomeDir)
	v.SetDefault("core.max_workers", def.Core.MaxWorkers)
	v.SetDefault("core.max_parallel", def.Core.MaxParallel)
	v.SetDefault("core.timeout", def.Core.Timeout)
	v.SetDefault("core.debug", def.Core.Debug)
	v.SetDefault("swarm.base_url", def.Swarm.BaseURL)
	v.SetDefault("swarm.api_key", def.Swarm.APIKey)
	v.SetDefault("swarm.topology", def.Swarm.Topology)
	v.SetDefault("swarm.strategy", def.Swarm.Strategy)
	v.SetDefault("swarm.priority", def.Swarm.Priority)
	v.SetDefault("swarm.worker_role", def.Swarm.WorkerRole)
	v.SetDefault("swarm.task_timeout", def.Swarm.TaskTimeout)
	v.SetDefault("swarm.poll_interval", def.Swarm.PollInterval)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("tracing.enabled", def.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", def.Tracing.Endpoint)
	v.SetDefault("tracing.sample_rate", def.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", def.Tracing.ServiceName)
	v.SetDefault("tracing.insecure", def.Tracing.Insecure)
	v.SetDefault("history.enabled", def.History.Enabled)
	v.SetDefault("history.path", def.History.Path)

	return v
}

// envPattern matches ${VAR_NAME} references in string values.
var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolateString replaces ${VAR_NAME} with the environment value,
// leaving unknown references untouched.
func interpolateString(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if value := os.Getenv(name); value != "" {
			return value
		}
		return match
	})
}

// interpolate applies ${VAR} interpolation to every string field.
func (c *Config) interpolate() {
	c.Core.ProjectDir = interpolateString(c.Core.ProjectDir)
	c.Core.HomeDir = interpolateString(c.Core.HomeDir)
	c.Swarm.BaseURL = interpolateString(c.Swarm.BaseURL)
	c.Swarm.APIKey = interpolateString(c.Swarm.APIKey)
	c.Logging.Level = interpolateString(c.Logging.Level)
	c.Logging.Format = interpolateString(c.Logging.Format)
	c.Tracing.Endpoint = interpolateString(c.Tracing.Endpoint)
	c.Tracing.ServiceName = interpolateString(c.Tracing.ServiceName)
	c.History.Path = interpolateString(c.History.Path)
}
