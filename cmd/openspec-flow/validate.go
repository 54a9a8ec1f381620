package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/scottwilkos/openspec-flow/cmd/openspec-flow/internal"
	"github.com/scottwilkos/openspec-flow/internal/change"
	"github.com/scottwilkos/openspec-flow/internal/plan"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the pending changes and their dependency graph",
	Long: `Validate every pending change proposal and the plan built from them.

Each proposal is checked individually (slug shape, frontmatter), then
the dependency graph as a whole: cycles and references to changes that
do not exist make the set invalid.`,
	Example: `  # Validate the changes in the current project
  openspec-flow validate

  # Validate a different project
  openspec-flow validate --dir ./service`,
	RunE: runValidate,
}

var validateDir string

func init() {
	validateCmd.Flags().StringVarP(&validateDir, "dir", "d", "", "Project directory containing changes/ (default: core.project_dir)")
}

// changeStatus is the per-proposal outcome of validation.
type changeStatus struct {
	ID        string   `json:"id"`
	Valid     bool     `json:"valid"`
	Error     string   `json:"error,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// validateReport is the serializable result of a validate run.
type validateReport struct {
	Valid      bool           `json:"valid"`
	Changes    []changeStatus `json:"changes"`
	PlanErrors []string       `json:"plan_errors,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	formatter := newFormatter(cmd)

	dir, err := resolveProjectDir(validateDir)
	if err != nil {
		return err
	}
	store := change.NewFSStore(dir, change.WithLogger(logger))

	changesDir := filepath.Join(dir, "changes")
	entries, err := os.ReadDir(changesDir)
	if err != nil {
		return internal.WrapError(internal.ExitError,
			fmt.Sprintf("failed to read changes directory %s", changesDir), err)
	}

	var (
		statuses []changeStatus
		loaded   []*change.Change
	)
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == change.ArchiveDir {
			continue
		}

		c, err := store.Get(ctx, entry.Name())
		if err != nil {
			// Directories without a proposal file are not changes.
			if change.IsNotFound(err) {
				continue
			}
			statuses = append(statuses, changeStatus{
				ID:    entry.Name(),
				Error: err.Error(),
			})
			continue
		}

		statuses = append(statuses, changeStatus{
			ID:        c.ID,
			Valid:     true,
			DependsOn: c.DependsOn,
		})
		loaded = append(loaded, c)
	}

	if len(statuses) == 0 {
		return formatter.PrintSuccess("no pending changes")
	}

	report := validateReport{Valid: true, Changes: statuses}
	for _, s := range statuses {
		if !s.Valid {
			report.Valid = false
		}
	}

	// The graph can only be judged once every proposal parses.
	if report.Valid {
		p, err := plan.Build(loaded)
		switch {
		case errors.Is(err, plan.ErrCycle):
			report.Valid = false
			report.PlanErrors = append(report.PlanErrors, err.Error())
		case err != nil:
			return internal.WrapError(internal.ExitError, "failed to build plan", err)
		default:
			validation := plan.NewValidator().Validate(p)
			if !validation.Valid {
				report.Valid = false
				report.PlanErrors = append(report.PlanErrors, validation.Errors...)
			}
		}
	}

	if globalFlags.GetOutputFormat() == internal.FormatJSON {
		if err := formatter.PrintJSON(report); err != nil {
			return err
		}
	} else {
		if err := printValidateText(formatter, report); err != nil {
			return err
		}
	}

	if !report.Valid {
		return internal.NewCLIError(internal.ExitConfigError, "validation failed")
	}
	return nil
}

// printValidateText renders one line per change, then the plan errors.
func printValidateText(formatter internal.Formatter, report validateReport) error {
	for _, s := range report.Changes {
		var err error
		if s.Valid {
			err = formatter.PrintSuccess(s.ID)
		} else {
			err = formatter.PrintError(fmt.Sprintf("%s: %s", s.ID, s.Error))
		}
		if err != nil {
			return err
		}
	}
	for _, msg := range report.PlanErrors {
		if err := formatter.PrintError(msg); err != nil {
			return err
		}
	}
	return nil
}
