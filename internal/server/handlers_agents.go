package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/guy-hartstein/syncforge/internal/model"
	"github.com/guy-hartstein/syncforge/internal/orchestrator"
)

// writeCoordinatorError maps orchestration failures onto API errors.
func writeCoordinatorError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrNotConfigured):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeNotConfigured, "gateway API key not configured")
	case errors.Is(err, orchestrator.ErrNoAgent):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "run has no agent")
	case errors.Is(err, orchestrator.ErrNoPullRequest):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "run has no pull request")
	default:
		writeStorageError(w, r, err)
	}
}

// HandleStartAgents handles POST /v1/change-requests/{change_request_id}/start-agents.
func (h *Handlers) HandleStartAgents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "change_request_id")
	if !ok {
		return
	}
	res, err := h.coordinator.StartAllAgents(r.Context(), id)
	if err != nil {
		h.logger.Error("start agents", "change_request_id", id, "error", err)
		writeCoordinatorError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// HandleSyncAgents handles POST /v1/change-requests/{change_request_id}/sync.
func (h *Handlers) HandleSyncAgents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "change_request_id")
	if !ok {
		return
	}
	res, err := h.coordinator.SyncAllAgents(r.Context(), id)
	if err != nil {
		h.logger.Error("sync agents", "change_request_id", id, "error", err)
		writeCoordinatorError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// HandleGetConversation handles GET /v1/runs/{run_id}/conversation.
func (h *Handlers) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "run_id")
	if !ok {
		return
	}
	messages, err := h.coordinator.Conversation(r.Context(), id)
	if err != nil {
		writeCoordinatorError(w, r, err)
		return
	}
	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	writeJSON(w, r, http.StatusOK, model.ConversationResponse{
		Messages:   messages,
		Status:     run.Status,
		AgentID:    run.AgentID,
		BranchName: run.BranchName,
		PRURL:      run.PRURL,
	})
}

// HandleFollowup handles POST /v1/runs/{run_id}/followup.
func (h *Handlers) HandleFollowup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "run_id")
	if !ok {
		return
	}
	var req model.FollowupRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "text is required")
		return
	}
	run, err := h.coordinator.SendFollowup(r.Context(), id, req.Text)
	if err != nil {
		writeCoordinatorError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleStopAgent handles POST /v1/runs/{run_id}/stop.
func (h *Handlers) HandleStopAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "run_id")
	if !ok {
		return
	}
	run, err := h.coordinator.StopAgent(r.Context(), id)
	if err != nil {
		writeCoordinatorError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleCheckPRStatus handles POST /v1/runs/{run_id}/pr-status.
func (h *Handlers) HandleCheckPRStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "run_id")
	if !ok {
		return
	}
	run, err := h.coordinator.CheckPRStatus(r.Context(), id)
	if err != nil {
		writeCoordinatorError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleUpdateRunSettings handles PATCH /v1/runs/{run_id}/settings.
func (h *Handlers) HandleUpdateRunSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "run_id")
	if !ok {
		return
	}
	var req model.RunSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	if req.AutoCreatePR != nil {
		run.AutoCreatePR = req.AutoCreatePR
	}
	if err := h.store.SaveRun(r.Context(), run); err != nil {
		writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}
