package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of one agent run against one integration.
type RunStatus string

const (
	RunStatusPending      RunStatus = "pending"
	RunStatusInProgress   RunStatus = "in_progress"
	RunStatusNeedsReview  RunStatus = "needs_review"
	RunStatusReadyToMerge RunStatus = "ready_to_merge"
	RunStatusComplete     RunStatus = "complete"
	RunStatusCancelled    RunStatus = "cancelled"
	RunStatusSkipped      RunStatus = "skipped"
)

// Terminalish reports whether the status stops blocking batch completion.
// Not all terminal-ish statuses are final: ready_to_merge still awaits a
// human merge, but the batch no longer waits on it.
func (s RunStatus) Terminalish() bool {
	switch s {
	case RunStatusComplete, RunStatusSkipped, RunStatusReadyToMerge, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// MessageRole distinguishes transcript authors.
type MessageRole string

const (
	RoleUser  MessageRole = "user"
	RoleAgent MessageRole = "agent"
)

// Message is one entry of an agent conversation transcript.
type Message struct {
	ID   string      `json:"id"`
	Role MessageRole `json:"role"`
	Text string      `json:"text"`
}

// Run is one agent execution against one integration for one change request.
// It is the unit the orchestrator supervises.
type Run struct {
	ID              uuid.UUID `json:"id"`
	ChangeRequestID uuid.UUID `json:"change_request_id"`
	IntegrationID   uuid.UUID `json:"integration_id"`

	// AgentID is the external agent id. Set at most once for the lifetime of
	// the run; a restart creates a new run rather than reusing this one.
	AgentID    string `json:"agent_id,omitempty"`
	BranchName string `json:"branch_name,omitempty"`

	Status RunStatus `json:"status"`

	PRURL string `json:"pr_url,omitempty"`
	// PRMerged is monotonic: once true it is never reset, and it implies
	// Status == complete.
	PRMerged bool       `json:"pr_merged"`
	MergedAt *time.Time `json:"merged_at,omitempty"`
	// PRClosed records that the pull request was closed without merging.
	PRClosed bool `json:"pr_closed"`

	// PendingQuestion is set while the agent is blocked awaiting human input,
	// and cleared once a follow-up answers it.
	PendingQuestion string `json:"pending_question,omitempty"`

	// Transcript is a local cache of the agent conversation, refreshed from
	// the gateway. Never authoritative; a refresh replaces it wholesale.
	Transcript []Message `json:"transcript"`

	// AutoCreatePR overrides the change request default when non-nil.
	AutoCreatePR       *bool  `json:"auto_create_pr,omitempty"`
	CustomInstructions string `json:"custom_instructions"`

	// LastSyncedAt is when remote agent state was last observed.
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ShouldAutoCreatePR resolves the auto-PR preference: run-level override if
// set, else the change request default.
func (r Run) ShouldAutoCreatePR(requestDefault bool) bool {
	if r.AutoCreatePR != nil {
		return *r.AutoCreatePR
	}
	return requestDefault
}

// LastAgentMessage returns the most recent agent-authored transcript entry,
// or nil if there is none.
func LastAgentMessage(transcript []Message) *Message {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == RoleAgent {
			return &transcript[i]
		}
	}
	return nil
}
