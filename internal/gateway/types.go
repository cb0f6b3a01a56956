package gateway

import "github.com/guy-hartstein/syncforge/internal/model"

// AgentStatus is the internal view of the remote service's agent lifecycle.
type AgentStatus string

const (
	AgentStatusCreating AgentStatus = "creating"
	AgentStatusRunning  AgentStatus = "running"
	AgentStatusFinished AgentStatus = "finished"
	AgentStatusStopped  AgentStatus = "stopped"
	AgentStatusFailed   AgentStatus = "failed"
	// AgentStatusUnknown covers status tokens this version does not recognize.
	// Unknown statuses are logged and ignored rather than treated as errors.
	AgentStatusUnknown AgentStatus = "unknown"
)

// mapStatus converts the remote service's literal status token.
func mapStatus(token string) AgentStatus {
	switch token {
	case "CREATING":
		return AgentStatusCreating
	case "RUNNING":
		return AgentStatusRunning
	case "FINISHED":
		return AgentStatusFinished
	case "STOPPED":
		return AgentStatusStopped
	case "FAILED", "ERROR":
		return AgentStatusFailed
	default:
		return AgentStatusUnknown
	}
}

// AgentInfo is the remote service's view of one agent.
type AgentInfo struct {
	ID         string
	Status     AgentStatus
	Repository string
	Ref        string
	BranchName string
	PRURL      string
	Summary    string
}

// LaunchParams describes a new agent launch.
type LaunchParams struct {
	Repository string
	// RefCandidates are tried in order; a "ref does not exist" rejection
	// moves on to the next candidate. Defaults to main then master.
	RefCandidates []string
	Prompt        string
	BranchName    string
	AutoCreatePR  bool
	Model         string
}

// Wire types for the remote agent service.

type launchRequest struct {
	Prompt promptBody   `json:"prompt"`
	Source sourceBody   `json:"source"`
	Target targetBody   `json:"target"`
	Model  string       `json:"model,omitempty"`
}

type promptBody struct {
	Text string `json:"text"`
}

type sourceBody struct {
	Repository string `json:"repository"`
	Ref        string `json:"ref"`
}

type targetBody struct {
	BranchName   string `json:"branchName,omitempty"`
	AutoCreatePR bool   `json:"autoCreatePr"`
	PRURL        string `json:"prUrl,omitempty"`
}

type agentResponse struct {
	ID      string     `json:"id"`
	Status  string     `json:"status"`
	Source  sourceBody `json:"source"`
	Target  targetBody `json:"target"`
	Summary string     `json:"summary"`
}

type conversationResponse struct {
	Messages []conversationMessage `json:"messages"`
}

type conversationMessage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

// toModel converts a wire message to the internal tagged representation.
// The remote service labels authors by message type string.
func (m conversationMessage) toModel() model.Message {
	role := model.RoleAgent
	if m.Type == "user_message" {
		role = model.RoleUser
	}
	return model.Message{ID: m.ID, Role: role, Text: m.Text}
}

type modelsResponse struct {
	Models []string `json:"models"`
}
