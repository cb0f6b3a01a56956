package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/guy-hartstein/syncforge/internal/model"
)

// GetSettings returns the tenant settings, creating an empty row on first use.
func (db *DB) GetSettings(ctx context.Context) (model.Settings, error) {
	var s model.Settings
	err := db.pool.QueryRow(ctx,
		`SELECT gateway_api_key, webhook_secret, github_token, created_at, updated_at FROM settings WHERE id`,
	).Scan(&s.GatewayAPIKey, &s.WebhookSecret, &s.GitHubToken, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		now := time.Now().UTC()
		if _, err := db.pool.Exec(ctx,
			`INSERT INTO settings (id, created_at, updated_at) VALUES (TRUE, $1, $1) ON CONFLICT DO NOTHING`, now,
		); err != nil {
			return model.Settings{}, fmt.Errorf("storage: init settings: %w", err)
		}
		return model.Settings{CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("storage: get settings: %w", err)
	}
	return s, nil
}

// UpdateSettings applies non-nil fields of req and returns the result.
func (db *DB) UpdateSettings(ctx context.Context, req model.UpdateSettingsRequest) (model.Settings, error) {
	s, err := db.GetSettings(ctx)
	if err != nil {
		return model.Settings{}, err
	}

	if req.GatewayAPIKey != nil {
		s.GatewayAPIKey = *req.GatewayAPIKey
	}
	if req.WebhookSecret != nil {
		s.WebhookSecret = *req.WebhookSecret
	}
	if req.GitHubToken != nil {
		s.GitHubToken = *req.GitHubToken
	}
	s.UpdatedAt = time.Now().UTC()

	_, err = db.pool.Exec(ctx,
		`UPDATE settings SET gateway_api_key = $1, webhook_secret = $2, github_token = $3, updated_at = $4 WHERE id`,
		s.GatewayAPIKey, s.WebhookSecret, s.GitHubToken, s.UpdatedAt,
	)
	if err != nil {
		return model.Settings{}, fmt.Errorf("storage: update settings: %w", err)
	}
	return s, nil
}
