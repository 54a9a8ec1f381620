package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/term"

	"github.com/scottwilkos/openspec-flow/cmd/openspec-flow/internal"
	"github.com/scottwilkos/openspec-flow/internal/change"
	"github.com/scottwilkos/openspec-flow/internal/history"
	"github.com/scottwilkos/openspec-flow/internal/observability"
	"github.com/scottwilkos/openspec-flow/internal/orchestrator"
	"github.com/scottwilkos/openspec-flow/internal/swarm"
	"github.com/scottwilkos/openspec-flow/internal/tui"
	"github.com/scottwilkos/openspec-flow/internal/util"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Apply the pending changes through the agent swarm",
	Long: `Build the execution plan for the pending changes and apply them
batch by batch through the configured swarm service.

Changes within a batch run in parallel; a batch only starts once the
previous one has finished. When a change fails, everything that depends
on it (directly or transitively) is blocked rather than attempted.`,
	Example: `  # Apply the changes in the current project
  openspec-flow run

  # Watch the run live
  openspec-flow run --watch

  # Dry-run against an in-memory swarm
  openspec-flow run --simulate`,
	RunE: runRun,
}

var (
	runDir        string
	runWatch      bool
	runSimulate   bool
	runMaxWorkers int
	runTimeout    time.Duration
)

// simulatePollInterval keeps simulated runs snappy; the fake swarm
// resolves tasks after a couple of polls.
const simulatePollInterval = 100 * time.Millisecond

func init() {
	runCmd.Flags().StringVarP(&runDir, "dir", "d", "", "Project directory containing changes/ (default: core.project_dir)")
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "Show a live view of the run")
	runCmd.Flags().BoolVar(&runSimulate, "simulate", false, "Run against an in-memory swarm instead of the remote service")
	runCmd.Flags().IntVar(&runMaxWorkers, "max-workers", 0, "Cap the worker pool size (default: core.max_workers)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Overall run timeout (default: core.timeout)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	dir, err := resolveProjectDir(runDir)
	if err != nil {
		return err
	}
	store := change.NewFSStore(dir, change.WithLogger(logger))

	changes, err := store.List(ctx)
	if err != nil {
		return internal.WrapError(internal.ExitError, "failed to load changes", err)
	}
	if len(changes) == 0 {
		return newFormatter(cmd).PrintSuccess("no pending changes to apply")
	}

	provider, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return internal.WrapError(internal.ExitConfigError, "failed to initialize tracing", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := observability.ShutdownTracing(shutdownCtx, provider); err != nil {
			logger.Warn("failed to shut down tracing", "error", err)
		}
	}()
	tracer := provider.Tracer("openspec-flow")

	client, pollInterval, err := buildSwarmClient()
	if err != nil {
		return err
	}
	coordinator := swarm.NewCoordinator(client,
		swarm.WithCoordinatorLogger(logger),
		swarm.WithCoordinatorTracer(tracer),
		swarm.WithPollInterval(pollInterval),
	)

	opts, cleanup := buildRunOptions(tracer)
	defer cleanup()

	watch := runWatch
	if watch && !term.IsTerminal(int(os.Stdout.Fd())) {
		logger.Warn("stdout is not a terminal, running without live view")
		watch = false
	}

	if watch {
		return runWithWatch(ctx, cmd, coordinator, opts, changes)
	}

	orch := orchestrator.New(coordinator, opts...)
	result, err := orch.Execute(ctx, changes)
	if err != nil {
		return err
	}
	if err := printRunResult(cmd, result); err != nil {
		return err
	}
	return finishRun(result)
}

// buildSwarmClient returns the swarm client and the coordinator poll
// interval for this run.
func buildSwarmClient() (swarm.Client, time.Duration, error) {
	if runSimulate {
		client := swarm.NewFakeClient(
			swarm.WithDefaultOutcome(swarm.TaskOutcome{PollsUntilTerminal: 2}),
		)
		return client, simulatePollInterval, nil
	}

	if cfg.Swarm.BaseURL == "" {
		return nil, 0, internal.NewCLIError(internal.ExitConfigError,
			"swarm.base_url is required (set it in config or run with --simulate)")
	}
	client := swarm.NewHTTPClient(cfg.Swarm.BaseURL, cfg.Swarm.APIKey,
		swarm.WithHTTPLogger(logger),
	)
	return client, cfg.Swarm.PollInterval, nil
}

// buildRunOptions assembles the orchestrator options from configuration
// and run flags. The returned cleanup closes the history database.
func buildRunOptions(tracer trace.Tracer) ([]orchestrator.Option, func()) {
	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithTracer(tracer),
		orchestrator.WithTopology(swarm.Topology(cfg.Swarm.Topology)),
		orchestrator.WithStrategy(swarm.Strategy(cfg.Swarm.Strategy)),
		orchestrator.WithTaskPriority(swarm.Priority(cfg.Swarm.Priority)),
		orchestrator.WithWorkerRole(cfg.Swarm.WorkerRole),
		orchestrator.WithMaxParallel(cfg.Core.MaxParallel),
		orchestrator.WithTaskTimeout(cfg.Swarm.TaskTimeout),
	}

	maxWorkers := cfg.Core.MaxWorkers
	if runMaxWorkers > 0 {
		maxWorkers = runMaxWorkers
	}
	if maxWorkers > 0 {
		opts = append(opts, orchestrator.WithMaxWorkers(maxWorkers))
	}

	timeout := cfg.Core.Timeout
	if runTimeout > 0 {
		timeout = runTimeout
	}
	if timeout > 0 {
		opts = append(opts, orchestrator.WithRunTimeout(timeout))
	}

	cleanup := func() {}
	// Simulated runs are rehearsals and stay out of the history.
	if cfg.History.Enabled && !runSimulate {
		path, err := util.ExpandPath(cfg.History.Path)
		if err != nil {
			logger.Warn("invalid history path, run will not be recorded",
				"path", cfg.History.Path, "error", err)
			return opts, cleanup
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			logger.Warn("failed to create history directory, run will not be recorded",
				"path", path, "error", err)
			return opts, cleanup
		}
		db, err := history.Open(path)
		if err != nil {
			logger.Warn("failed to open history database, run will not be recorded",
				"path", path, "error", err)
			return opts, cleanup
		}
		opts = append(opts, orchestrator.WithHistory(history.NewRunDAO(db)))
		cleanup = func() {
			if err := db.Close(); err != nil {
				logger.Warn("failed to close history database", "error", err)
			}
		}
	}

	return opts, cleanup
}

// runWithWatch executes the run with the live terminal view attached.
// The view's cancel key aborts the run context; the view itself exits
// when the event stream closes.
func runWithWatch(ctx context.Context, cmd *cobra.Command, coordinator *swarm.Coordinator, opts []orchestrator.Option, changes []*change.Change) error {
	emitter := orchestrator.NewDefaultEventEmitter()
	opts = append(opts, orchestrator.WithEmitter(emitter))
	orch := orchestrator.New(coordinator, opts...)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	events, unsubscribe := emitter.Subscribe(ctx)
	defer unsubscribe()

	type runOutcome struct {
		result *orchestrator.RunResult
		err    error
	}
	done := make(chan runOutcome, 1)
	go func() {
		result, err := orch.Execute(runCtx, changes)
		// Closing the emitter ends the event stream so the view exits
		// even when the run aborted before emitting anything.
		_ = emitter.Close()
		done <- runOutcome{result: result, err: err}
	}()

	view := tui.NewWatchView(events, cancelRun)
	program := tea.NewProgram(view,
		tea.WithOutput(cmd.OutOrStdout()),
		tea.WithContext(ctx),
	)
	if _, err := program.Run(); err != nil {
		// The view failing must not orphan the run.
		cancelRun()
		logger.Warn("live view exited early", "error", err)
	}

	outcome := <-done
	if outcome.err != nil {
		return outcome.err
	}
	return finishRun(outcome.result)
}

// printRunResult renders a finished run for headless mode.
func printRunResult(cmd *cobra.Command, result *orchestrator.RunResult) error {
	formatter := newFormatter(cmd)

	if globalFlags.GetOutputFormat() == internal.FormatJSON {
		return formatter.PrintJSON(result)
	}

	cmd.Printf("Run %s (plan %s)\n\n", result.RunID, result.PlanID)

	headers := []string{"change", "status", "elapsed", "detail"}
	rows := make([][]string, 0, len(result.Order))
	for _, id := range result.Order {
		outcome, ok := result.Nodes[id]
		if !ok {
			continue
		}
		rows = append(rows, []string{
			id,
			string(outcome.Status),
			nodeElapsed(outcome),
			outcome.Error,
		})
	}
	if err := formatter.PrintTable(headers, rows); err != nil {
		return err
	}

	cmd.Println()
	if result.Success {
		return formatter.PrintSuccess(result.Summary)
	}
	return formatter.PrintError(result.Summary)
}

// nodeElapsed formats the execution window of a node outcome.
func nodeElapsed(outcome orchestrator.NodeOutcome) string {
	if outcome.StartedAt == nil || outcome.CompletedAt == nil {
		return "-"
	}
	return outcome.CompletedAt.Sub(*outcome.StartedAt).Round(time.Millisecond).String()
}

// finishRun converts a finished run into the command's exit status.
func finishRun(result *orchestrator.RunResult) error {
	if result == nil {
		return internal.NewCLIError(internal.ExitError, "run produced no result")
	}
	if !result.Success {
		return internal.NewCLIError(internal.ExitRunFailed,
			fmt.Sprintf("run failed: %s", result.Summary))
	}
	return nil
}
