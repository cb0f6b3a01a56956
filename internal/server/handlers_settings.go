package server

import (
	"net/http"

	"github.com/guy-hartstein/syncforge/internal/model"
)

// HandleGetSettings handles GET /v1/settings. Secrets never leave the
// server; responses carry presence flags only.
func (h *Handlers) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.GetSettings(r.Context())
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, settings.Masked())
}

// HandleUpdateSettings handles PUT /v1/settings.
func (h *Handlers) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	settings, err := h.store.UpdateSettings(r.Context(), req)
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, settings.Masked())
}

// HandleTestConnection handles POST /v1/settings/test-connection.
func (h *Handlers) HandleTestConnection(w http.ResponseWriter, r *http.Request) {
	diag, ok := h.diagnosticsClient(w, r)
	if !ok {
		return
	}
	if err := diag.TestConnection(r.Context()); err != nil {
		h.logger.Warn("gateway connection test failed", "error", err)
		writeJSON(w, r, http.StatusOK, map[string]any{"ok": false, "error": "connection failed"})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"ok": true})
}

// HandleListModels handles GET /v1/settings/models.
func (h *Handlers) HandleListModels(w http.ResponseWriter, r *http.Request) {
	diag, ok := h.diagnosticsClient(w, r)
	if !ok {
		return
	}
	models, err := diag.ListModels(r.Context())
	if err != nil {
		h.logger.Error("list models", "error", err)
		writeError(w, r, http.StatusBadGateway, model.ErrCodeInternalError, "gateway unavailable")
		return
	}
	if models == nil {
		models = []string{}
	}
	writeJSON(w, r, http.StatusOK, map[string][]string{"models": models})
}

func (h *Handlers) diagnosticsClient(w http.ResponseWriter, r *http.Request) (Diagnostics, bool) {
	if h.diagnostics == nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeNotConfigured, "gateway diagnostics unavailable")
		return nil, false
	}
	settings, err := h.store.GetSettings(r.Context())
	if err != nil {
		writeStorageError(w, r, err)
		return nil, false
	}
	if settings.GatewayAPIKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeNotConfigured, "gateway API key not configured")
		return nil, false
	}
	return h.diagnostics(settings.GatewayAPIKey), true
}

// HandleListGitHubRepos handles GET /v1/github/repos.
func (h *Handlers) HandleListGitHubRepos(w http.ResponseWriter, r *http.Request) {
	if h.codeHost == nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeNotConfigured, "github browsing unavailable")
		return
	}
	settings, err := h.store.GetSettings(r.Context())
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	if settings.GitHubToken == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeNotConfigured, "github token not configured")
		return
	}
	repos, err := h.codeHost(settings.GitHubToken).ListRepos(r.Context())
	if err != nil {
		h.logger.Error("list github repos", "error", err)
		writeError(w, r, http.StatusBadGateway, model.ErrCodeInternalError, "github unavailable")
		return
	}
	writeJSON(w, r, http.StatusOK, repos)
}
