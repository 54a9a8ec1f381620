package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/scottwilkos/openspec-flow/cmd/openspec-flow/internal"
	"github.com/scottwilkos/openspec-flow/internal/change"
	"github.com/scottwilkos/openspec-flow/internal/plan"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Build and display the execution plan",
	Long: `Build the execution plan for the pending changes without running it.

The plan shows the topological order and the parallel batches derived
from the dependency graph. A dependency cycle aborts planning; a
reference to a change that does not exist makes the plan invalid.`,
	Example: `  # Plan the changes in the current project
  openspec-flow plan

  # Plan a different project and emit JSON
  openspec-flow plan --dir ./service -o json`,
	RunE: runPlan,
}

var planDir string

func init() {
	planCmd.Flags().StringVarP(&planDir, "dir", "d", "", "Project directory containing changes/ (default: core.project_dir)")
}

// planReport is the serializable view of a built plan.
type planReport struct {
	PlanID  string     `json:"plan_id"`
	Changes int        `json:"changes"`
	Order   []string   `json:"order"`
	Batches [][]string `json:"batches"`
	Valid   bool       `json:"valid"`
	Errors  []string   `json:"errors,omitempty"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	formatter := newFormatter(cmd)

	dir, err := resolveProjectDir(planDir)
	if err != nil {
		return err
	}
	store := change.NewFSStore(dir, change.WithLogger(logger))

	changes, err := store.List(ctx)
	if err != nil {
		return internal.WrapError(internal.ExitError, "failed to load changes", err)
	}
	if len(changes) == 0 {
		return formatter.PrintSuccess("no pending changes")
	}

	p, err := plan.Build(changes)
	if err != nil {
		return internal.WrapError(internal.ExitError, "failed to build plan", err)
	}

	validation := plan.NewValidator().Validate(p)

	if globalFlags.GetOutputFormat() == internal.FormatJSON {
		report := planReport{
			PlanID:  string(p.ID),
			Changes: len(p.Order),
			Order:   p.Order,
			Batches: p.Batches,
			Valid:   validation.Valid,
			Errors:  validation.Errors,
		}
		if err := formatter.PrintJSON(report); err != nil {
			return err
		}
	} else {
		if err := printPlanText(cmd, formatter, p, validation); err != nil {
			return err
		}
	}

	if !validation.Valid {
		return internal.NewCLIError(internal.ExitConfigError,
			fmt.Sprintf("plan validation failed with %d error(s)", len(validation.Errors)))
	}
	return nil
}

// printPlanText renders the plan as a batch table followed by any
// validation errors.
func printPlanText(cmd *cobra.Command, formatter internal.Formatter, p *plan.ExecutionPlan, validation plan.ValidationResult) error {
	cmd.Printf("Plan %s: %d change(s) in %d batch(es)\n\n", p.ID, len(p.Order), len(p.Batches))

	headers := []string{"batch", "change", "depends on"}
	rows := make([][]string, 0, len(p.Order))
	for i, batch := range p.Batches {
		for _, id := range batch {
			deps := "-"
			if node, ok := p.Node(id); ok && len(node.DependsOn) > 0 {
				deps = strings.Join(node.DependsOn, ", ")
			}
			rows = append(rows, []string{fmt.Sprintf("%d", i+1), id, deps})
		}
	}
	if err := formatter.PrintTable(headers, rows); err != nil {
		return err
	}

	if !validation.Valid {
		cmd.Println()
		for _, msg := range validation.Errors {
			if err := formatter.PrintError(msg); err != nil {
				return err
			}
		}
	}
	return nil
}
