package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/scottwilkos/openspec-flow/internal/config"
	"github.com/scottwilkos/openspec-flow/internal/observability"
)

// setupCLITest installs a default configuration and a quiet logger, and
// restores all package-level command state when the test finishes.
func setupCLITest(t *testing.T) {
	t.Helper()

	oldFlags := *globalFlags
	oldCfg := cfg
	oldLogger := logger
	oldPlanDir := planDir
	oldValidateDir := validateDir
	oldRunDir, oldRunWatch, oldRunSimulate := runDir, runWatch, runSimulate
	oldRunMaxWorkers, oldRunTimeout := runMaxWorkers, runTimeout
	oldHistoryLimit, oldHistoryKeep := historyLimit, historyKeep

	t.Cleanup(func() {
		*globalFlags = oldFlags
		cfg = oldCfg
		logger = oldLogger
		planDir = oldPlanDir
		validateDir = oldValidateDir
		runDir, runWatch, runSimulate = oldRunDir, oldRunWatch, oldRunSimulate
		runMaxWorkers, runTimeout = oldRunMaxWorkers, oldRunTimeout
		historyLimit, historyKeep = oldHistoryLimit, oldHistoryKeep
	})

	*globalFlags = GlobalFlags{OutputFormat: "text"}
	cfg = config.DefaultConfig()
	cfg.History.Enabled = false
	logger = observability.NewLogger(io.Discard, slog.LevelError, "text")

	planDir = ""
	validateDir = ""
	runDir, runWatch, runSimulate = "", false, false
	runMaxWorkers, runTimeout = 0, 0
	historyLimit, historyKeep = 20, 50
}

// writeChange creates changes/<slug>/proposal.md under root.
func writeChange(t *testing.T, root, slug, content string) {
	t.Helper()
	dir := filepath.Join(root, "changes", slug)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "proposal.md"), []byte(content), 0o644))
}

// proposal builds a minimal proposal document with explicit frontmatter
// dependencies.
func proposal(title string, deps ...string) string {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("title: " + title + "\n")
	if len(deps) == 0 {
		b.WriteString("depends_on: []\n")
	} else {
		b.WriteString("depends_on:\n")
		for _, dep := range deps {
			b.WriteString("  - " + dep + "\n")
		}
	}
	b.WriteString("---\n\n# " + title + "\n")
	return b.String()
}

// executeCommand runs a rebuilt command with captured output.
func executeCommand(t *testing.T, cmd *cobra.Command, flags map[string]string, args ...string) (string, error) {
	t.Helper()

	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetContext(context.Background())
	for k, v := range flags {
		require.NoError(t, cmd.Flags().Set(k, v))
	}

	err := cmd.RunE(cmd, args)
	return buf.String(), err
}

// newPlanCommand rebuilds the plan command with fresh flag state.
func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "plan", RunE: runPlan}
	cmd.Flags().StringVarP(&planDir, "dir", "d", "", "")
	return cmd
}

// newValidateCommand rebuilds the validate command with fresh flag state.
func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "validate", RunE: runValidate}
	cmd.Flags().StringVarP(&validateDir, "dir", "d", "", "")
	return cmd
}

// newRunCommand rebuilds the run command with fresh flag state.
func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "run", RunE: runRun}
	cmd.Flags().StringVarP(&runDir, "dir", "d", "", "")
	cmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "")
	cmd.Flags().BoolVar(&runSimulate, "simulate", false, "")
	cmd.Flags().IntVar(&runMaxWorkers, "max-workers", 0, "")
	cmd.Flags().DurationVar(&runTimeout, "timeout", 0, "")
	return cmd
}

// newHistoryListCommand rebuilds history list with fresh flag state.
func newHistoryListCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "list", RunE: runHistoryList}
	cmd.Flags().IntVar(&historyLimit, "limit", 20, "")
	return cmd
}

// newHistoryShowCommand rebuilds history show.
func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{Use: "show", RunE: runHistoryShow}
}

// newHistoryPruneCommand rebuilds history prune with fresh flag state.
func newHistoryPruneCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "prune", RunE: runHistoryPrune}
	cmd.Flags().IntVar(&historyKeep, "keep", 50, "")
	return cmd
}

// splitTableLines returns the non-empty lines of a table rendering.
func splitTableLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
