package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/guy-hartstein/syncforge/internal/model"
)

// CreateChangeRequest inserts a new change request and returns it.
func (db *DB) CreateChangeRequest(ctx context.Context, cr model.ChangeRequest) (model.ChangeRequest, error) {
	now := time.Now().UTC()
	if cr.ID == uuid.Nil {
		cr.ID = uuid.New()
	}
	if cr.Status == "" {
		cr.Status = model.ChangeRequestStatusCreating
	}
	if cr.Attachments == nil {
		cr.Attachments = []model.Attachment{}
	}
	if cr.SelectedIntegrationIDs == nil {
		cr.SelectedIntegrationIDs = []uuid.UUID{}
	}
	cr.CreatedAt = now
	cr.UpdatedAt = now

	attachments, err := json.Marshal(cr.Attachments)
	if err != nil {
		return model.ChangeRequest{}, fmt.Errorf("storage: marshal attachments: %w", err)
	}
	selected, err := json.Marshal(cr.SelectedIntegrationIDs)
	if err != nil {
		return model.ChangeRequest{}, fmt.Errorf("storage: marshal selected ids: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO change_requests
		 (id, title, description, implementation_guide, attachments, selected_integration_ids, auto_create_pr, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		cr.ID, cr.Title, cr.Description, cr.ImplementationGuide, attachments, selected,
		cr.AutoCreatePR, string(cr.Status), cr.CreatedAt, cr.UpdatedAt,
	)
	if err != nil {
		return model.ChangeRequest{}, fmt.Errorf("storage: create change request: %w", err)
	}
	return cr, nil
}

// GetChangeRequest retrieves a change request by id.
func (db *DB) GetChangeRequest(ctx context.Context, id uuid.UUID) (model.ChangeRequest, error) {
	var cr model.ChangeRequest
	var attachments, selected []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, title, description, implementation_guide, attachments, selected_integration_ids, auto_create_pr, status, created_at, updated_at
		 FROM change_requests WHERE id = $1`, id,
	).Scan(&cr.ID, &cr.Title, &cr.Description, &cr.ImplementationGuide, &attachments, &selected,
		&cr.AutoCreatePR, &cr.Status, &cr.CreatedAt, &cr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ChangeRequest{}, ErrNotFound
		}
		return model.ChangeRequest{}, fmt.Errorf("storage: get change request: %w", err)
	}
	if err := json.Unmarshal(attachments, &cr.Attachments); err != nil {
		return model.ChangeRequest{}, fmt.Errorf("storage: unmarshal attachments: %w", err)
	}
	if err := json.Unmarshal(selected, &cr.SelectedIntegrationIDs); err != nil {
		return model.ChangeRequest{}, fmt.Errorf("storage: unmarshal selected ids: %w", err)
	}
	return cr, nil
}

// ListChangeRequests returns all change requests, newest first.
func (db *DB) ListChangeRequests(ctx context.Context) ([]model.ChangeRequest, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, title, description, implementation_guide, attachments, selected_integration_ids, auto_create_pr, status, created_at, updated_at
		 FROM change_requests ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list change requests: %w", err)
	}
	defer rows.Close()

	var out []model.ChangeRequest
	for rows.Next() {
		var cr model.ChangeRequest
		var attachments, selected []byte
		if err := rows.Scan(&cr.ID, &cr.Title, &cr.Description, &cr.ImplementationGuide, &attachments, &selected,
			&cr.AutoCreatePR, &cr.Status, &cr.CreatedAt, &cr.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan change request: %w", err)
		}
		if err := json.Unmarshal(attachments, &cr.Attachments); err != nil {
			return nil, fmt.Errorf("storage: unmarshal attachments: %w", err)
		}
		if err := json.Unmarshal(selected, &cr.SelectedIntegrationIDs); err != nil {
			return nil, fmt.Errorf("storage: unmarshal selected ids: %w", err)
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

// SetChangeRequestStatus transitions the change request status.
func (db *DB) SetChangeRequestStatus(ctx context.Context, id uuid.UUID, status model.ChangeRequestStatus) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE change_requests SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage: set change request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateChangeRequestContent sets the generated title, description and guide
// once background generation finishes, and moves the request out of creating.
func (db *DB) UpdateChangeRequestContent(ctx context.Context, id uuid.UUID, title, description, guide string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE change_requests
		 SET title = $2, description = $3, implementation_guide = $4, status = $5, updated_at = $6
		 WHERE id = $1`,
		id, title, description, guide, string(model.ChangeRequestStatusInProgress), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage: update change request content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChangeRequest removes a change request; child runs cascade.
func (db *DB) DeleteChangeRequest(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM change_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete change request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
