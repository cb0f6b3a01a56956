package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/guy-hartstein/syncforge/internal/gateway"
	"github.com/guy-hartstein/syncforge/internal/model"
	"github.com/guy-hartstein/syncforge/internal/storage"
)

// Store is the persistence surface the orchestrator depends on. *storage.DB
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	GetChangeRequest(ctx context.Context, id uuid.UUID) (model.ChangeRequest, error)
	SetChangeRequestStatus(ctx context.Context, id uuid.UUID, status model.ChangeRequestStatus) error

	GetIntegration(ctx context.Context, id uuid.UUID) (model.Integration, error)
	ListIntegrations(ctx context.Context) ([]model.Integration, error)
	AddMemory(ctx context.Context, integrationID uuid.UUID, content string) (model.Memory, error)

	GetRun(ctx context.Context, id uuid.UUID) (model.Run, error)
	GetRunByAgentID(ctx context.Context, agentID string) (model.Run, error)
	ListRuns(ctx context.Context, changeRequestID uuid.UUID) ([]model.Run, error)
	SaveRun(ctx context.Context, run model.Run) error

	GetSettings(ctx context.Context) (model.Settings, error)
}

// Gateway is the remote agent service surface. *gateway.Client satisfies it.
type Gateway interface {
	LaunchAgent(ctx context.Context, p gateway.LaunchParams) (string, error)
	GetAgentStatus(ctx context.Context, agentID string) (gateway.AgentInfo, error)
	GetConversation(ctx context.Context, agentID string) ([]model.Message, error)
	SendFollowup(ctx context.Context, agentID, text string) error
	StopAgent(ctx context.Context, agentID string) error
}

// GatewayFactory builds a gateway client for the stored API key. Credentials
// are read per operation so a settings change applies without a restart.
type GatewayFactory func(apiKey string) Gateway

// PullRequestState is what the orchestrator needs to know about a PR to
// decide run completion.
type PullRequestState struct {
	Merged   bool
	Closed   bool
	MergedAt time.Time
}

// PRChecker resolves the state of a pull request by URL. *gh.Client
// satisfies it.
type PRChecker interface {
	PullRequestState(ctx context.Context, prURL string) (PullRequestState, error)
}

// MemoryExtractor distills a durable fact from a human correction, if one
// exists. Implementations return ok=false when the message carries nothing
// worth remembering.
type MemoryExtractor interface {
	Extract(ctx context.Context, userMessage, agentContext string) (fact string, ok bool, err error)
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
