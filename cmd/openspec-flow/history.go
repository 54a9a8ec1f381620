package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/scottwilkos/openspec-flow/cmd/openspec-flow/internal"
	"github.com/scottwilkos/openspec-flow/internal/history"
	"github.com/scottwilkos/openspec-flow/internal/types"
	"github.com/scottwilkos/openspec-flow/internal/util"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect persisted run history",
	Long:  `Inspect the runs recorded in the history database: list past runs, show one in detail, or prune old entries.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Show one run in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old runs, keeping the newest",
	RunE:  runHistoryPrune,
}

var (
	historyLimit int
	historyKeep  int
)

func init() {
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list")
	historyPruneCmd.Flags().IntVar(&historyKeep, "keep", 50, "Number of most recent runs to keep")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
}

// openHistory opens the run history database from configuration.
func openHistory() (history.RunDAO, func(), error) {
	if !cfg.History.Enabled {
		return nil, nil, internal.NewCLIError(internal.ExitConfigError,
			"history is disabled (set history.enabled in config)")
	}

	path, err := util.ExpandPath(cfg.History.Path)
	if err != nil {
		return nil, nil, internal.WrapError(internal.ExitHistoryError,
			"invalid history path", err)
	}
	db, err := history.Open(path)
	if err != nil {
		return nil, nil, internal.WrapError(internal.ExitHistoryError,
			"failed to open history database", err)
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close history database", "error", err)
		}
	}
	return history.NewRunDAO(db), cleanup, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	dao, cleanup, err := openHistory()
	if err != nil {
		return err
	}
	defer cleanup()

	summaries, err := dao.List(cmd.Context(), historyLimit)
	if err != nil {
		return internal.WrapError(internal.ExitHistoryError, "failed to list runs", err)
	}

	formatter := newFormatter(cmd)
	if globalFlags.GetOutputFormat() == internal.FormatJSON {
		return formatter.PrintJSON(summaries)
	}

	if len(summaries) == 0 {
		return formatter.PrintSuccess("no recorded runs")
	}

	headers := []string{"run id", "started", "result", "changes", "summary"}
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		result := "failed"
		if s.Success {
			result = "success"
		}
		rows = append(rows, []string{
			s.RunID.String(),
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			result,
			strconv.Itoa(s.Total),
			s.Summary,
		})
	}
	return formatter.PrintTable(headers, rows)
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	dao, cleanup, err := openHistory()
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := dao.Get(cmd.Context(), types.ID(args[0]))
	if err != nil {
		return internal.WrapError(internal.ExitHistoryError, "failed to load run", err)
	}

	formatter := newFormatter(cmd)
	if globalFlags.GetOutputFormat() == internal.FormatJSON {
		return formatter.PrintJSON(result)
	}

	cmd.Printf("Run %s (plan %s)\n", result.RunID, result.PlanID)
	cmd.Printf("Started %s, took %s\n\n",
		result.StartedAt.Local().Format("2006-01-02 15:04:05"),
		result.Elapsed.Round(time.Millisecond))

	headers := []string{"change", "status", "detail"}
	rows := make([][]string, 0, len(result.Order))
	for _, id := range result.Order {
		outcome, ok := result.Nodes[id]
		if !ok {
			continue
		}
		rows = append(rows, []string{id, string(outcome.Status), outcome.Error})
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

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	if historyKeep < 0 {
		return internal.NewCLIError(internal.ExitConfigError, "--keep cannot be negative")
	}

	dao, cleanup, err := openHistory()
	if err != nil {
		return err
	}
	defer cleanup()

	removed, err := dao.Prune(cmd.Context(), historyKeep)
	if err != nil {
		return internal.WrapError(internal.ExitHistoryError, "failed to prune runs", err)
	}

	return newFormatter(cmd).PrintSuccess(
		fmt.Sprintf("removed %d run(s), kept the newest %d", removed, historyKeep))
}
