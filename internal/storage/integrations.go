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

// CreateIntegration inserts a new integration and returns it.
func (db *DB) CreateIntegration(ctx context.Context, req model.CreateIntegrationRequest) (model.Integration, error) {
	now := time.Now().UTC()
	in := model.Integration{
		ID:           uuid.New(),
		Name:         req.Name,
		RepoLinks:    req.RepoLinks,
		Instructions: req.Instructions,
		Public:       req.Public,
		AutoCreatePR: req.AutoCreatePR,
		Memories:     []model.Memory{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.RepoLinks == nil {
		in.RepoLinks = []string{}
	}

	links, err := json.Marshal(in.RepoLinks)
	if err != nil {
		return model.Integration{}, fmt.Errorf("storage: marshal repo links: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO integrations (id, name, repo_links, instructions, public, auto_create_pr, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		in.ID, in.Name, links, in.Instructions, in.Public, in.AutoCreatePR, in.CreatedAt, in.UpdatedAt,
	)
	if err != nil {
		return model.Integration{}, fmt.Errorf("storage: create integration: %w", err)
	}
	return in, nil
}

// GetIntegration retrieves an integration by id, including its memories in
// chronological order.
func (db *DB) GetIntegration(ctx context.Context, id uuid.UUID) (model.Integration, error) {
	var in model.Integration
	var links []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, repo_links, instructions, public, auto_create_pr, created_at, updated_at
		 FROM integrations WHERE id = $1`, id,
	).Scan(&in.ID, &in.Name, &links, &in.Instructions, &in.Public, &in.AutoCreatePR, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Integration{}, ErrNotFound
		}
		return model.Integration{}, fmt.Errorf("storage: get integration: %w", err)
	}
	if err := json.Unmarshal(links, &in.RepoLinks); err != nil {
		return model.Integration{}, fmt.Errorf("storage: unmarshal repo links: %w", err)
	}

	memories, err := db.listMemories(ctx, id)
	if err != nil {
		return model.Integration{}, err
	}
	in.Memories = memories
	return in, nil
}

// ListIntegrations returns all integrations ordered by name. Memories are
// included so prompt construction needs no second round trip.
func (db *DB) ListIntegrations(ctx context.Context) ([]model.Integration, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, repo_links, instructions, public, auto_create_pr, created_at, updated_at
		 FROM integrations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("storage: list integrations: %w", err)
	}
	defer rows.Close()

	var out []model.Integration
	for rows.Next() {
		var in model.Integration
		var links []byte
		if err := rows.Scan(&in.ID, &in.Name, &links, &in.Instructions, &in.Public, &in.AutoCreatePR, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan integration: %w", err)
		}
		if err := json.Unmarshal(links, &in.RepoLinks); err != nil {
			return nil, fmt.Errorf("storage: unmarshal repo links: %w", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list integrations: %w", err)
	}

	for i := range out {
		memories, err := db.listMemories(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Memories = memories
	}
	return out, nil
}

// UpdateIntegration applies non-nil fields of req and returns the updated row.
func (db *DB) UpdateIntegration(ctx context.Context, id uuid.UUID, req model.UpdateIntegrationRequest) (model.Integration, error) {
	in, err := db.GetIntegration(ctx, id)
	if err != nil {
		return model.Integration{}, err
	}

	if req.Name != nil {
		in.Name = *req.Name
	}
	if req.RepoLinks != nil {
		in.RepoLinks = *req.RepoLinks
	}
	if req.Instructions != nil {
		in.Instructions = *req.Instructions
	}
	if req.Public != nil {
		in.Public = *req.Public
	}
	if req.AutoCreatePR != nil {
		in.AutoCreatePR = *req.AutoCreatePR
	}
	in.UpdatedAt = time.Now().UTC()

	links, err := json.Marshal(in.RepoLinks)
	if err != nil {
		return model.Integration{}, fmt.Errorf("storage: marshal repo links: %w", err)
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE integrations
		 SET name = $2, repo_links = $3, instructions = $4, public = $5, auto_create_pr = $6, updated_at = $7
		 WHERE id = $1`,
		in.ID, in.Name, links, in.Instructions, in.Public, in.AutoCreatePR, in.UpdatedAt,
	)
	if err != nil {
		return model.Integration{}, fmt.Errorf("storage: update integration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Integration{}, ErrNotFound
	}
	return in, nil
}

// DeleteIntegration removes an integration and cascades to its memories and runs.
func (db *DB) DeleteIntegration(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM integrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete integration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMemory appends a reusable preference string to an integration.
func (db *DB) AddMemory(ctx context.Context, integrationID uuid.UUID, content string) (model.Memory, error) {
	mem := model.Memory{
		ID:        uuid.New(),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO integration_memories (id, integration_id, content, created_at) VALUES ($1, $2, $3, $4)`,
		mem.ID, integrationID, mem.Content, mem.CreatedAt,
	)
	if err != nil {
		return model.Memory{}, fmt.Errorf("storage: add memory: %w", err)
	}
	return mem, nil
}

// DeleteMemory removes a single memory from an integration.
func (db *DB) DeleteMemory(ctx context.Context, integrationID, memoryID uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM integration_memories WHERE id = $1 AND integration_id = $2`, memoryID, integrationID)
	if err != nil {
		return fmt.Errorf("storage: delete memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) listMemories(ctx context.Context, integrationID uuid.UUID) ([]model.Memory, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, content, created_at FROM integration_memories
		 WHERE integration_id = $1 ORDER BY created_at`, integrationID)
	if err != nil {
		return nil, fmt.Errorf("storage: list memories: %w", err)
	}
	defer rows.Close()

	memories := []model.Memory{}
	for rows.Next() {
		var m model.Memory
		if err := rows.Scan(&m.ID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan memory: %w", err)
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}
