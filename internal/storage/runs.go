package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/guy-hartstein/syncforge/internal/model"
)

const runColumns = `id, change_request_id, integration_id, agent_id, branch_name, status,
	pr_url, pr_merged, merged_at, pr_closed, pending_question, transcript,
	auto_create_pr, custom_instructions, last_synced_at, created_at, updated_at`

// CreateRun inserts a new run for one change request x integration pair.
func (db *DB) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
	now := time.Now().UTC()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = model.RunStatusPending
	}
	if run.Transcript == nil {
		run.Transcript = []model.Message{}
	}
	run.CreatedAt = now
	run.UpdatedAt = now

	transcript, err := json.Marshal(run.Transcript)
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: marshal transcript: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO change_request_runs (`+runColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		run.ID, run.ChangeRequestID, run.IntegrationID, run.AgentID, run.BranchName, string(run.Status),
		run.PRURL, run.PRMerged, run.MergedAt, run.PRClosed, run.PendingQuestion, transcript,
		run.AutoCreatePR, run.CustomInstructions, run.LastSyncedAt, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: create run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by id.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (model.Run, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM change_request_runs WHERE id = $1`, id)
	return scanRun(row)
}

// GetRunByIntegration retrieves the run for one change request x integration pair.
func (db *DB) GetRunByIntegration(ctx context.Context, changeRequestID, integrationID uuid.UUID) (model.Run, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM change_request_runs
		 WHERE change_request_id = $1 AND integration_id = $2`, changeRequestID, integrationID)
	return scanRun(row)
}

// GetRunByAgentID retrieves the run supervising the given external agent.
// Webhook delivery uses this lookup.
func (db *DB) GetRunByAgentID(ctx context.Context, agentID string) (model.Run, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM change_request_runs WHERE agent_id = $1`, agentID)
	return scanRun(row)
}

// ListRuns returns all runs under a change request in creation order.
func (db *DB) ListRuns(ctx context.Context, changeRequestID uuid.UUID) ([]model.Run, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+` FROM change_request_runs
		 WHERE change_request_id = $1 ORDER BY created_at`, changeRequestID)
	if err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// SaveRun persists the full run record. Last write wins; callers rely on the
// reconciler's idempotence for convergence across the sync and webhook paths.
func (db *DB) SaveRun(ctx context.Context, run model.Run) error {
	run.UpdatedAt = time.Now().UTC()

	transcript, err := json.Marshal(run.Transcript)
	if err != nil {
		return fmt.Errorf("storage: marshal transcript: %w", err)
	}

	var tag pgconn.CommandTag
	err = WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		t, execErr := db.pool.Exec(ctx,
			`UPDATE change_request_runs
			 SET agent_id = $2, branch_name = $3, status = $4, pr_url = $5, pr_merged = $6,
			     merged_at = $7, pr_closed = $8, pending_question = $9, transcript = $10,
			     auto_create_pr = $11, custom_instructions = $12, last_synced_at = $13, updated_at = $14
			 WHERE id = $1`,
			run.ID, run.AgentID, run.BranchName, string(run.Status), run.PRURL, run.PRMerged,
			run.MergedAt, run.PRClosed, run.PendingQuestion, transcript,
			run.AutoCreatePR, run.CustomInstructions, run.LastSyncedAt, run.UpdatedAt,
		)
		tag = t
		return execErr
	})
	if err != nil {
		return fmt.Errorf("storage: save run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type runScanner interface {
	Scan(dest ...any) error
}

func scanRun(row runScanner) (model.Run, error) {
	var run model.Run
	var status string
	var transcript []byte
	err := row.Scan(
		&run.ID, &run.ChangeRequestID, &run.IntegrationID, &run.AgentID, &run.BranchName, &status,
		&run.PRURL, &run.PRMerged, &run.MergedAt, &run.PRClosed, &run.PendingQuestion, &transcript,
		&run.AutoCreatePR, &run.CustomInstructions, &run.LastSyncedAt, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Run{}, ErrNotFound
		}
		return model.Run{}, fmt.Errorf("storage: scan run: %w", err)
	}
	run.Status = model.RunStatus(status)
	if err := json.Unmarshal(transcript, &run.Transcript); err != nil {
		return model.Run{}, fmt.Errorf("storage: unmarshal transcript: %w", err)
	}
	return run, nil
}
