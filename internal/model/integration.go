// Package model defines the core domain types for SyncForge.
//
// Types correspond directly to database tables and API payloads. They use
// strong typing (UUIDs, time.Time, enums) and avoid interface{} wherever
// possible.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Integration is a tracked external repository target. It is owned
// independently of any change request and referenced by id from runs.
type Integration struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	RepoLinks    []string  `json:"repo_links"`
	Instructions string    `json:"instructions"`
	// Public marks the integration as external-facing; prompts for public
	// integrations carry an addendum forbidding exposure of internal details.
	Public       bool      `json:"public"`
	AutoCreatePR bool      `json:"auto_create_pr"`
	Memories     []Memory  `json:"memories"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Memory is a short reusable preference string extracted from past
// conversations with this integration's agents.
type Memory struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateIntegrationName checks name length constraints.
func ValidateIntegrationName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > 255 {
		return fmt.Errorf("name must be at most 255 characters")
	}
	return nil
}

// ValidateRepoLink checks that a repository link looks like an HTTPS URL.
func ValidateRepoLink(link string) error {
	if !strings.HasPrefix(link, "https://") {
		return fmt.Errorf("repository link must be an https URL, got %q", link)
	}
	return nil
}
