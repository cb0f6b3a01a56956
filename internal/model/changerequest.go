package model

import (
	"time"

	"github.com/google/uuid"
)

// ChangeRequestStatus is the lifecycle state of a change request.
type ChangeRequestStatus string

const (
	ChangeRequestStatusCreating   ChangeRequestStatus = "creating"
	ChangeRequestStatusInProgress ChangeRequestStatus = "in_progress"
	ChangeRequestStatusCompleted  ChangeRequestStatus = "completed"
)

// ChangeRequest is one user-initiated batch of changes fanned out across
// integrations. Its status flips to completed once every child run reaches a
// terminal-ish status.
type ChangeRequest struct {
	ID                  uuid.UUID           `json:"id"`
	Title               string              `json:"title"`
	Description         string              `json:"description"`
	ImplementationGuide string              `json:"implementation_guide"`
	Attachments         []Attachment        `json:"attachments"`
	// SelectedIntegrationIDs limits the fan-out; empty means all integrations.
	SelectedIntegrationIDs []uuid.UUID         `json:"selected_integration_ids"`
	AutoCreatePR           bool                `json:"auto_create_pr"`
	Status                 ChangeRequestStatus `json:"status"`
	CreatedAt              time.Time           `json:"created_at"`
	UpdatedAt              time.Time           `json:"updated_at"`
}

// AttachmentType distinguishes attachment sources.
type AttachmentType string

const (
	AttachmentFile AttachmentType = "file"
	AttachmentURL  AttachmentType = "url"
	AttachmentPR   AttachmentType = "github_pr"
)

// Attachment is a reference supplied alongside a change request, e.g. a file,
// a URL, or a GitHub pull request whose diff informs the implementation guide.
type Attachment struct {
	ID      uuid.UUID      `json:"id"`
	Type    AttachmentType `json:"type"`
	Name    string         `json:"name"`
	URL     string         `json:"url,omitempty"`
	Content string         `json:"content,omitempty"`
}
