package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/guy-hartstein/syncforge/internal/gateway"
	"github.com/guy-hartstein/syncforge/internal/gh"
	"github.com/guy-hartstein/syncforge/internal/model"
	"github.com/guy-hartstein/syncforge/internal/orchestrator"
	"github.com/guy-hartstein/syncforge/internal/wizard"
)

// Store is the persistence surface the handlers use directly. *storage.DB
// satisfies it.
type Store interface {
	CreateIntegration(ctx context.Context, req model.CreateIntegrationRequest) (model.Integration, error)
	GetIntegration(ctx context.Context, id uuid.UUID) (model.Integration, error)
	ListIntegrations(ctx context.Context) ([]model.Integration, error)
	UpdateIntegration(ctx context.Context, id uuid.UUID, req model.UpdateIntegrationRequest) (model.Integration, error)
	DeleteIntegration(ctx context.Context, id uuid.UUID) error
	AddMemory(ctx context.Context, integrationID uuid.UUID, content string) (model.Memory, error)
	DeleteMemory(ctx context.Context, integrationID, memoryID uuid.UUID) error

	CreateChangeRequest(ctx context.Context, cr model.ChangeRequest) (model.ChangeRequest, error)
	GetChangeRequest(ctx context.Context, id uuid.UUID) (model.ChangeRequest, error)
	ListChangeRequests(ctx context.Context) ([]model.ChangeRequest, error)
	DeleteChangeRequest(ctx context.Context, id uuid.UUID) error

	CreateRun(ctx context.Context, run model.Run) (model.Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (model.Run, error)
	ListRuns(ctx context.Context, changeRequestID uuid.UUID) ([]model.Run, error)
	SaveRun(ctx context.Context, run model.Run) error

	GetSettings(ctx context.Context) (model.Settings, error)
	UpdateSettings(ctx context.Context, req model.UpdateSettingsRequest) (model.Settings, error)

	Ping(ctx context.Context) error
}

// Coordinator is the agent orchestration surface.
// *orchestrator.Orchestrator satisfies it.
type Coordinator interface {
	StartAllAgents(ctx context.Context, changeRequestID uuid.UUID) (orchestrator.StartResult, error)
	SyncAllAgents(ctx context.Context, changeRequestID uuid.UUID) (orchestrator.SyncResult, error)
	HandleWebhook(ctx context.Context, payload gateway.WebhookPayload) (bool, error)
	SendFollowup(ctx context.Context, runID uuid.UUID, text string) (model.Run, error)
	StopAgent(ctx context.Context, runID uuid.UUID) (model.Run, error)
	CheckPRStatus(ctx context.Context, runID uuid.UUID) (model.Run, error)
	Conversation(ctx context.Context, runID uuid.UUID) ([]model.Message, error)
}

// Diagnostics is the slice of the gateway client used for settings checks.
type Diagnostics interface {
	TestConnection(ctx context.Context) error
	ListModels(ctx context.Context) ([]string, error)
}

// DiagnosticsFactory builds a diagnostics client for a stored API key.
type DiagnosticsFactory func(apiKey string) Diagnostics

// CodeHost is the slice of the GitHub client used for repository browsing
// and attachment resolution.
type CodeHost interface {
	ListRepos(ctx context.Context) ([]gh.Repo, error)
	PullRequestDiff(ctx context.Context, prURL string) (string, error)
}

// CodeHostFactory builds a code host client for a stored token.
type CodeHostFactory func(token string) CodeHost

// Handlers implements all HTTP endpoints.
type Handlers struct {
	store       Store
	coordinator Coordinator
	wizardSvc   *wizard.Service
	sessions    *wizard.SessionStore
	diagnostics DiagnosticsFactory
	codeHost    CodeHostFactory
	logger      *slog.Logger
	startedAt   time.Time
	version     string
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): WizardSvc, Sessions, Diagnostics, CodeHost.
type HandlersDeps struct {
	Store       Store
	Coordinator Coordinator
	WizardSvc   *wizard.Service
	Sessions    *wizard.SessionStore
	Diagnostics DiagnosticsFactory
	CodeHost    CodeHostFactory
	Logger      *slog.Logger
	Version     string
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		store:       d.Store,
		coordinator: d.Coordinator,
		wizardSvc:   d.WizardSvc,
		sessions:    d.Sessions,
		diagnostics: d.Diagnostics,
		codeHost:    d.CodeHost,
		logger:      d.Logger,
		startedAt:   time.Now(),
		version:     d.Version,
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		h.logger.Error("health check: database unreachable", "error", err)
	}
	writeJSON(w, r, code, map[string]any{
		"status":         status,
		"version":        h.version,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}
