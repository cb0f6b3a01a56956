package server

import (
	"net/http"
	"strings"

	"github.com/guy-hartstein/syncforge/internal/model"
)

// HandleCreateIntegration handles POST /v1/integrations.
func (h *Handlers) HandleCreateIntegration(w http.ResponseWriter, r *http.Request) {
	var req model.CreateIntegrationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if err := model.ValidateIntegrationName(req.Name); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	for _, link := range req.RepoLinks {
		if err := model.ValidateRepoLink(link); err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
			return
		}
	}

	integration, err := h.store.CreateIntegration(r.Context(), req)
	if err != nil {
		h.logger.Error("create integration", "error", err)
		writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, integration)
}

// HandleListIntegrations handles GET /v1/integrations.
func (h *Handlers) HandleListIntegrations(w http.ResponseWriter, r *http.Request) {
	integrations, err := h.store.ListIntegrations(r.Context())
	if err != nil {
		h.logger.Error("list integrations", "error", err)
		writeStorageError(w, r, err)
		return
	}
	if integrations == nil {
		integrations = []model.Integration{}
	}
	writeJSON(w, r, http.StatusOK, integrations)
}

// HandleGetIntegration handles GET /v1/integrations/{integration_id}.
func (h *Handlers) HandleGetIntegration(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "integration_id")
	if !ok {
		return
	}
	integration, err := h.store.GetIntegration(r.Context(), id)
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, integration)
}

// HandleUpdateIntegration handles PUT /v1/integrations/{integration_id}.
func (h *Handlers) HandleUpdateIntegration(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "integration_id")
	if !ok {
		return
	}
	var req model.UpdateIntegrationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.Name != nil {
		if err := model.ValidateIntegrationName(*req.Name); err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
			return
		}
	}
	if req.RepoLinks != nil {
		for _, link := range *req.RepoLinks {
			if err := model.ValidateRepoLink(link); err != nil {
				writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
				return
			}
		}
	}

	integration, err := h.store.UpdateIntegration(r.Context(), id, req)
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, integration)
}

// HandleDeleteIntegration handles DELETE /v1/integrations/{integration_id}.
func (h *Handlers) HandleDeleteIntegration(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "integration_id")
	if !ok {
		return
	}
	if err := h.store.DeleteIntegration(r.Context(), id); err != nil {
		writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

// HandleAddMemory handles POST /v1/integrations/{integration_id}/memories.
func (h *Handlers) HandleAddMemory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "integration_id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Content) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "content is required")
		return
	}
	mem, err := h.store.AddMemory(r.Context(), id, strings.TrimSpace(req.Content))
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, mem)
}

// HandleDeleteMemory handles DELETE /v1/integrations/{integration_id}/memories/{memory_id}.
func (h *Handlers) HandleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	integrationID, ok := pathUUID(w, r, "integration_id")
	if !ok {
		return
	}
	memoryID, ok := pathUUID(w, r, "memory_id")
	if !ok {
		return
	}
	if err := h.store.DeleteMemory(r.Context(), integrationID, memoryID); err != nil {
		writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"deleted": true})
}
