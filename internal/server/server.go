package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/guy-hartstein/syncforge/internal/ratelimit"
)

// Server is the SyncForge HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Config holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, WizardSvc, Sessions, Diagnostics,
// CodeHost.
type Config struct {
	Handlers HandlersDeps
	Limiter  ratelimit.Limiter

	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New creates a new HTTP server with all routes configured.
func New(cfg Config) *Server {
	h := NewHandlers(cfg.Handlers)
	logger := cfg.Handlers.Logger

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	// Webhooks are the only unauthenticated write surface, so they get the
	// only rate limit.
	webhookRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Integrations.
	mux.Handle("POST /v1/integrations", http.HandlerFunc(h.HandleCreateIntegration))
	mux.Handle("GET /v1/integrations", http.HandlerFunc(h.HandleListIntegrations))
	mux.Handle("GET /v1/integrations/{integration_id}", http.HandlerFunc(h.HandleGetIntegration))
	mux.Handle("PUT /v1/integrations/{integration_id}", http.HandlerFunc(h.HandleUpdateIntegration))
	mux.Handle("DELETE /v1/integrations/{integration_id}", http.HandlerFunc(h.HandleDeleteIntegration))
	mux.Handle("POST /v1/integrations/{integration_id}/memories", http.HandlerFunc(h.HandleAddMemory))
	mux.Handle("DELETE /v1/integrations/{integration_id}/memories/{memory_id}", http.HandlerFunc(h.HandleDeleteMemory))

	// Change requests.
	mux.Handle("POST /v1/change-requests", http.HandlerFunc(h.HandleCreateChangeRequest))
	mux.Handle("GET /v1/change-requests", http.HandlerFunc(h.HandleListChangeRequests))
	mux.Handle("GET /v1/change-requests/{change_request_id}", http.HandlerFunc(h.HandleGetChangeRequest))
	mux.Handle("DELETE /v1/change-requests/{change_request_id}", http.HandlerFunc(h.HandleDeleteChangeRequest))

	// Agent orchestration.
	mux.Handle("POST /v1/change-requests/{change_request_id}/start-agents", http.HandlerFunc(h.HandleStartAgents))
	mux.Handle("POST /v1/change-requests/{change_request_id}/sync", http.HandlerFunc(h.HandleSyncAgents))
	mux.Handle("GET /v1/runs/{run_id}/conversation", http.HandlerFunc(h.HandleGetConversation))
	mux.Handle("POST /v1/runs/{run_id}/followup", http.HandlerFunc(h.HandleFollowup))
	mux.Handle("POST /v1/runs/{run_id}/stop", http.HandlerFunc(h.HandleStopAgent))
	mux.Handle("POST /v1/runs/{run_id}/pr-status", http.HandlerFunc(h.HandleCheckPRStatus))
	mux.Handle("PATCH /v1/runs/{run_id}/settings", http.HandlerFunc(h.HandleUpdateRunSettings))

	// Agent service webhooks (rate limited by IP).
	mux.Handle("POST /v1/webhooks/agent", webhookRL(http.HandlerFunc(h.HandleAgentWebhook)))

	// Settings and gateway diagnostics.
	mux.Handle("GET /v1/settings", http.HandlerFunc(h.HandleGetSettings))
	mux.Handle("PUT /v1/settings", http.HandlerFunc(h.HandleUpdateSettings))
	mux.Handle("POST /v1/settings/test-connection", http.HandlerFunc(h.HandleTestConnection))
	mux.Handle("GET /v1/settings/models", http.HandlerFunc(h.HandleListModels))

	// Wizard.
	mux.Handle("POST /v1/wizard/sessions", http.HandlerFunc(h.HandleCreateWizardSession))
	mux.Handle("GET /v1/wizard/sessions/{session_id}", http.HandlerFunc(h.HandleGetWizardSession))
	mux.Handle("POST /v1/wizard/sessions/{session_id}/messages", http.HandlerFunc(h.HandleWizardMessage))
	mux.Handle("POST /v1/wizard/sessions/{session_id}/draft", http.HandlerFunc(h.HandleWizardDraft))
	mux.Handle("DELETE /v1/wizard/sessions/{session_id}", http.HandlerFunc(h.HandleDeleteWizardSession))

	// GitHub browsing.
	mux.Handle("GET /v1/github/repos", http.HandlerFunc(h.HandleListGitHubRepos))

	// Health (no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(logger, handler)
	handler = loggingMiddleware(logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
