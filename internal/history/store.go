package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scottwilkos/openspec-flow/internal/orchestrator"
	"github.com/scottwilkos/openspec-flow/internal/plan"
	"github.com/scottwilkos/openspec-flow/internal/types"
)

// RunSummary is one row of the run listing.
type RunSummary struct {
	RunID     types.ID      `json:"run_id"`
	PlanID    types.ID      `json:"plan_id"`
	Success   bool          `json:"success"`
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Blocked   int           `json:"blocked"`
	Summary   string        `json:"summary"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
}

// RunDAO provides database operations for run history.
type RunDAO interface {
	// Save persists a finished run and its node outcomes.
	Save(ctx context.Context, result *orchestrator.RunResult) error

	// Get retrieves a single run with all node outcomes.
	Get(ctx context.Context, runID types.ID) (*orchestrator.RunResult, error)

	// List returns the most recent runs, newest first.
	List(ctx context.Context, limit int) ([]RunSummary, error)

	// Prune deletes all but the newest keep runs and returns the number
	// of runs removed.
	Prune(ctx context.Context, keep int) (int, error)
}

// runDAO implements RunDAO.
type runDAO struct {
	db *DB
}

// NewRunDAO creates a run history DAO over the given database.
func NewRunDAO(db *DB) RunDAO {
	return &runDAO{db: db}
}

// Save persists a finished run and its node outcomes in one transaction.
func (d *runDAO) Save(ctx context.Context, result *orchestrator.RunResult) error {
	if result == nil {
		return fmt.Errorf("cannot save a nil run result")
	}
	if result.RunID.IsZero() {
		return fmt.Errorf("cannot save a run without an ID")
	}

	return d.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (
				id, plan_id, success, total, completed, failed, blocked,
				summary, started_at, elapsed_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			result.RunID,
			result.PlanID,
			result.Success,
			len(result.Order),
			len(result.Completed),
			len(result.Failed),
			len(result.Blocked()),
			result.Summary,
			result.StartedAt.UTC(),
			result.Elapsed.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO run_nodes (
				run_id, node_id, position, status, worker_id, task_id,
				started_at, completed_at, error
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare node insert: %w", err)
		}
		defer stmt.Close()

		for i, id := range result.Order {
			outcome, ok := result.Nodes[id]
			if !ok {
				continue
			}
			if _, err := stmt.ExecContext(ctx,
				result.RunID,
				id,
				i,
				outcome.Status,
				outcome.WorkerID,
				outcome.TaskID,
				outcome.StartedAt,
				outcome.CompletedAt,
				outcome.Error,
			); err != nil {
				return fmt.Errorf("failed to insert node %s: %w", id, err)
			}
		}

		return nil
	})
}

// Get retrieves a run and rebuilds its RunResult, nodes in plan order.
func (d *runDAO) Get(ctx context.Context, runID types.ID) (*orchestrator.RunResult, error) {
	result := &orchestrator.RunResult{
		Nodes: make(map[string]orchestrator.NodeOutcome),
	}

	var elapsedMS int64
	err := d.db.conn.QueryRowContext(ctx, `
		SELECT id, plan_id, success, summary, started_at, elapsed_ms
		FROM runs
		WHERE id = ?`, runID).Scan(
		&result.RunID,
		&result.PlanID,
		&result.Success,
		&result.Summary,
		&result.StartedAt,
		&elapsedMS,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	result.Elapsed = time.Duration(elapsedMS) * time.Millisecond

	rows, err := d.db.conn.QueryContext(ctx, `
		SELECT node_id, status, worker_id, task_id, started_at, completed_at, error
		FROM run_nodes
		WHERE run_id = ?
		ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id                   string
			outcome              orchestrator.NodeOutcome
			startedAt, completed sql.NullTime
		)
		if err := rows.Scan(
			&id,
			&outcome.Status,
			&outcome.WorkerID,
			&outcome.TaskID,
			&startedAt,
			&completed,
			&outcome.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run node: %w", err)
		}

		if startedAt.Valid {
			t := startedAt.Time
			outcome.StartedAt = &t
		}
		if completed.Valid {
			t := completed.Time
			outcome.CompletedAt = &t
		}

		result.Nodes[id] = outcome
		result.Order = append(result.Order, id)
		switch outcome.Status {
		case plan.NodeStatusCompleted:
			result.Completed = append(result.Completed, id)
		case plan.NodeStatusFailed:
			result.Failed = append(result.Failed, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run nodes: %w", err)
	}

	return result, nil
}

// List returns the most recent runs, newest first.
func (d *runDAO) List(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := d.db.conn.QueryContext(ctx, `
		SELECT id, plan_id, success, total, completed, failed, blocked,
			summary, started_at, elapsed_ms
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var (
			s         RunSummary
			elapsedMS int64
		)
		if err := rows.Scan(
			&s.RunID,
			&s.PlanID,
			&s.Success,
			&s.Total,
			&s.Completed,
			&s.Failed,
			&s.Blocked,
			&s.Summary,
			&s.StartedAt,
			&elapsedMS,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}

	return summaries, nil
}

// Prune deletes all but the newest keep runs. Node rows follow via the
// foreign key cascade.
func (d *runDAO) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("invalid keep count: %d", keep)
	}

	res, err := d.db.conn.ExecContext(ctx, `
		DELETE FROM runs
		WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned runs: %w", err)
	}

	return int(removed), nil
}

// Ensure runDAO satisfies the orchestrator's persistence interface.
var _ orchestrator.HistoryStore = (*runDAO)(nil)
