package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard success envelope.
type APIResponse struct {
	Data any          `json:"data"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta carries request correlation info.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeNotConfigured = "NOT_CONFIGURED"
)

// CreateIntegrationRequest is the body for POST /v1/integrations.
type CreateIntegrationRequest struct {
	Name         string   `json:"name"`
	RepoLinks    []string `json:"repo_links"`
	Instructions string   `json:"instructions"`
	Public       bool     `json:"public"`
	AutoCreatePR bool     `json:"auto_create_pr"`
}

// UpdateIntegrationRequest is the body for PUT /v1/integrations/{id}.
// Nil fields are left unchanged.
type UpdateIntegrationRequest struct {
	Name         *string   `json:"name,omitempty"`
	RepoLinks    *[]string `json:"repo_links,omitempty"`
	Instructions *string   `json:"instructions,omitempty"`
	Public       *bool     `json:"public,omitempty"`
	AutoCreatePR *bool     `json:"auto_create_pr,omitempty"`
}

// CreateChangeRequestRequest is the body for POST /v1/change-requests.
type CreateChangeRequestRequest struct {
	Title                  string               `json:"title"`
	Description            string               `json:"description"`
	ImplementationGuide    string               `json:"implementation_guide"`
	Attachments            []Attachment         `json:"attachments"`
	SelectedIntegrationIDs []uuid.UUID          `json:"selected_integration_ids"`
	// IntegrationConfigs maps integration id to per-run custom instructions.
	IntegrationConfigs map[uuid.UUID]string `json:"integration_configs"`
	AutoCreatePR       bool                 `json:"auto_create_pr"`
}

// UpdateSettingsRequest is the body for PUT /v1/settings. Nil fields are
// left unchanged; empty strings clear the stored value.
type UpdateSettingsRequest struct {
	GatewayAPIKey *string `json:"gateway_api_key,omitempty"`
	WebhookSecret *string `json:"webhook_secret,omitempty"`
	GitHubToken   *string `json:"github_token,omitempty"`
}

// FollowupRequest is the body for a follow-up message to an agent.
type FollowupRequest struct {
	Text string `json:"text"`
}

// RunSettingsRequest patches per-run settings.
type RunSettingsRequest struct {
	AutoCreatePR *bool `json:"auto_create_pr"`
}

// ConversationResponse is a run's transcript plus its external linkage.
type ConversationResponse struct {
	Messages   []Message `json:"messages"`
	Status     RunStatus `json:"status"`
	AgentID    string    `json:"agent_id,omitempty"`
	BranchName string    `json:"branch_name,omitempty"`
	PRURL      string    `json:"pr_url,omitempty"`
}
