package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/scottwilkos/openspec-flow/cmd/openspec-flow/internal"
	"github.com/scottwilkos/openspec-flow/internal/config"
	"github.com/scottwilkos/openspec-flow/internal/observability"
	"github.com/scottwilkos/openspec-flow/internal/util"
	"github.com/scottwilkos/openspec-flow/pkg/version"
)

// Shared state populated by loadConfig before any subcommand runs.
var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "openspec-flow",
	Short: "Plan and apply interdependent spec changes through an agent swarm",
	Long: `openspec-flow coordinates the application of OpenSpec change proposals.

It reads the pending proposals under <project>/changes/, derives the
dependency graph between them, and executes the changes in parallel
batches against a remote agent swarm, never running a change before
its prerequisites have completed.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command with signal handling
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// loadConfig is called before any command runs to load configuration
// and set up logging.
func loadConfig(cmd *cobra.Command, args []string) error {
	flags, err := ParseGlobalFlags(cmd)
	if err != nil {
		return err
	}

	// version, help, and completion never need configuration
	switch cmd.Name() {
	case "version", "help", "completion":
		return nil
	}

	// Determine home directory
	homeDir := flags.HomeDir
	if homeDir == "" {
		homeDir = os.Getenv("OPENSPEC_HOME")
	}
	explicitHome := homeDir != ""
	if homeDir == "" {
		homeDir = config.DefaultHomeDir()
	}
	homeDir, err = util.ExpandPath(homeDir)
	if err != nil {
		return internal.WrapError(internal.ExitConfigError, "invalid home directory", err)
	}

	// Determine config file path
	configFile, err := util.ExpandPath(flags.ConfigFile)
	if err != nil {
		return internal.WrapError(internal.ExitConfigError, "invalid config path", err)
	}
	if configFile == "" {
		configFile = config.DefaultConfigPath(homeDir)
	}

	loader := config.NewConfigLoader(config.NewValidator())
	loaded, err := loader.LoadWithDefaults(configFile)
	if err != nil {
		return internal.WrapError(internal.ExitConfigError, "failed to load configuration", err)
	}
	cfg = loaded

	// An explicit --home or OPENSPEC_HOME wins over the file, and drags
	// the default history location along with it.
	if explicitHome {
		derivedHistory := filepath.Join(cfg.Core.HomeDir, "history.db")
		cfg.Core.HomeDir = homeDir
		if cfg.History.Path == derivedHistory {
			cfg.History.Path = filepath.Join(homeDir, "history.db")
		}
	}

	level := observability.ParseLevel(cfg.Logging.Level)
	if flags.IsVerbose() || cfg.Core.Debug {
		level = slog.LevelDebug
	}
	if flags.IsQuiet() {
		level = slog.LevelWarn
	}
	logger = observability.NewLogger(cmd.ErrOrStderr(), level, cfg.Logging.Format)
	slog.SetDefault(logger)

	return nil
}

// resolveProjectDir returns the project directory for a command,
// preferring an explicit --dir flag over the configured default.
func resolveProjectDir(flagValue string) (string, error) {
	dir := flagValue
	if dir == "" && cfg != nil && cfg.Core.ProjectDir != "" {
		dir = cfg.Core.ProjectDir
	}
	if dir == "" {
		dir = "."
	}
	expanded, err := util.ExpandPath(dir)
	if err != nil {
		return "", internal.WrapError(internal.ExitConfigError, "invalid project directory", err)
	}
	return expanded, nil
}

// newFormatter builds the output formatter for a command from the
// global --output flag.
func newFormatter(cmd *cobra.Command) internal.Formatter {
	return internal.NewFormatter(globalFlags.GetOutputFormat(), cmd.OutOrStdout())
}

func init() {
	RegisterGlobalFlags(rootCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if globalFlags.GetOutputFormat() == internal.FormatJSON {
			_ = internal.NewJSONFormatter(cmd.OutOrStdout()).PrintJSON(version.Info())
			return
		}
		cmd.Println(version.String())
	},
}
