package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newConfigTestCommand builds a command shaped like a real subcommand
// for exercising loadConfig.
func newConfigTestCommand(name string) *cobra.Command {
	cmd := &cobra.Command{Use: name}
	// Registering the flags re-binds the package-level globalFlags fields,
	// which resets any values the test assigned before calling this helper.
	saved := *globalFlags
	RegisterGlobalFlags(cmd)
	*globalFlags = saved
	cmd.SetErr(&bytes.Buffer{})
	return cmd
}

func TestLoadConfig_DefaultsWhenFileMissing(t *testing.T) {
	setupCLITest(t)
	t.Setenv("OPENSPEC_HOME", "")

	homeDir := t.TempDir()
	globalFlags.HomeDir = homeDir

	cmd := newConfigTestCommand("plan")
	require.NoError(t, loadConfig(cmd, nil))

	require.NotNil(t, cfg)
	assert.Equal(t, homeDir, cfg.Core.HomeDir)
	assert.Equal(t, filepath.Join(homeDir, "history.db"), cfg.History.Path)
	assert.NotNil(t, logger)
}

func TestLoadConfig_ReadsConfigFile(t *testing.T) {
	setupCLITest(t)
	t.Setenv("OPENSPEC_HOME", "")

	homeDir := t.TempDir()
	globalFlags.HomeDir = homeDir

	content := `
swarm:
  base_url: http://swarm.internal:9000
  topology: mesh
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(homeDir, "config.yaml"), []byte(content), 0o644))

	cmd := newConfigTestCommand("run")
	require.NoError(t, loadConfig(cmd, nil))

	assert.Equal(t, "http://swarm.internal:9000", cfg.Swarm.BaseURL)
	assert.Equal(t, "mesh", cfg.Swarm.Topology)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Unset keys keep their defaults.
	assert.Equal(t, "balanced", cfg.Swarm.Strategy)
}

func TestLoadConfig_InvalidConfigFails(t *testing.T) {
	setupCLITest(t)
	t.Setenv("OPENSPEC_HOME", "")

	homeDir := t.TempDir()
	globalFlags.HomeDir = homeDir

	content := "swarm:\n  topology: pyramid\n"
	require.NoError(t, os.WriteFile(filepath.Join(homeDir, "config.yaml"), []byte(content), 0o644))

	cmd := newConfigTestCommand("run")
	err := loadConfig(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestLoadConfig_SkippedForVersion(t *testing.T) {
	setupCLITest(t)
	cfg = nil

	cmd := newConfigTestCommand("version")
	require.NoError(t, loadConfig(cmd, nil))
	assert.Nil(t, cfg)
}

func TestLoadConfig_ExplicitConfigFlag(t *testing.T) {
	setupCLITest(t)
	t.Setenv("OPENSPEC_HOME", "")

	configFile := filepath.Join(t.TempDir(), "custom.yml")
	require.NoError(t, os.WriteFile(configFile, []byte("core:\n  max_parallel: 3\n"), 0o644))
	globalFlags.ConfigFile = configFile

	cmd := newConfigTestCommand("plan")
	require.NoError(t, loadConfig(cmd, nil))
	assert.Equal(t, 3, cfg.Core.MaxParallel)
}

func TestResolveProjectDir(t *testing.T) {
	setupCLITest(t)
	cfg.Core.ProjectDir = "/configured"

	dir, err := resolveProjectDir("/flag")
	require.NoError(t, err)
	assert.Equal(t, "/flag", dir)

	dir, err = resolveProjectDir("")
	require.NoError(t, err)
	assert.Equal(t, "/configured", dir)

	cfg.Core.ProjectDir = ""
	dir, err = resolveProjectDir("")
	require.NoError(t, err)
	assert.Equal(t, ".", dir)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	dir, err = resolveProjectDir("~/projects/api")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "projects", "api"), dir)
}

func TestVersionCommand(t *testing.T) {
	setupCLITest(t)

	buf := &bytes.Buffer{}
	versionCmd.SetOut(buf)
	defer versionCmd.SetOut(nil)

	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, buf.String(), "openspec-flow")
}
