package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	homeDir := getDefaultHomeDir()

	return &Config{
		Core: CoreConfig{
			ProjectDir:  ".",
			HomeDir:     homeDir,
			MaxWorkers:  0,
			MaxParallel: 10,
			Timeout:     0,
			Debug:       false,
		},
		Swarm: SwarmConfig{
			BaseURL:      "http://localhost:8400",
			APIKey:       "",
			Topology:     "hierarchical",
			Strategy:     "balanced",
			Priority:     "medium",
			WorkerRole:   "coder",
			TaskTimeout:  10 * time.Minute,
			PollInterval: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			SampleRate:  1.0,
			ServiceName: "openspec-flow",
			Insecure:    true,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(homeDir, "history.db"),
		},
	}
}

// getDefaultHomeDir returns the default state directory, falling back to
// a temp location when the user home cannot be determined.
func getDefaultHomeDir() string {
	userHome, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".openspec-flow")
	}
	return filepath.Join(userHome, ".openspec-flow")
}

// DefaultHomeDir returns the default home directory (~/.openspec-flow).
func DefaultHomeDir() string {
	return getDefaultHomeDir()
}

// DefaultConfigPath returns the config file path inside a home directory.
func DefaultConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}
