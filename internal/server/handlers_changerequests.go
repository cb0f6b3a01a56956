package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/guy-hartstein/syncforge/internal/model"
)

// ChangeRequestDetail is a change request together with its child runs.
type ChangeRequestDetail struct {
	model.ChangeRequest
	Runs []model.Run `json:"runs"`
}

// HandleCreateChangeRequest handles POST /v1/change-requests. Child runs are
// seeded immediately, one per selected integration; integrations without
// repository links start out skipped so the batch never waits on them.
func (h *Handlers) HandleCreateChangeRequest(w http.ResponseWriter, r *http.Request) {
	var req model.CreateChangeRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "title is required")
		return
	}
	if strings.TrimSpace(req.ImplementationGuide) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "implementation_guide is required")
		return
	}

	integrations, err := h.selectedIntegrations(r, req.SelectedIntegrationIDs)
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	if len(integrations) == 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "no integrations selected")
		return
	}

	attachments := h.resolveAttachments(r.Context(), req.Attachments)

	cr, err := h.store.CreateChangeRequest(r.Context(), model.ChangeRequest{
		Title:                  req.Title,
		Description:            req.Description,
		ImplementationGuide:    req.ImplementationGuide,
		Attachments:            attachments,
		SelectedIntegrationIDs: req.SelectedIntegrationIDs,
		AutoCreatePR:           req.AutoCreatePR,
		Status:                 model.ChangeRequestStatusCreating,
	})
	if err != nil {
		h.logger.Error("create change request", "error", err)
		writeStorageError(w, r, err)
		return
	}

	runs := make([]model.Run, 0, len(integrations))
	for _, integration := range integrations {
		run := model.Run{
			ChangeRequestID:    cr.ID,
			IntegrationID:      integration.ID,
			Status:             model.RunStatusPending,
			CustomInstructions: req.IntegrationConfigs[integration.ID],
		}
		if len(integration.RepoLinks) == 0 {
			run.Status = model.RunStatusSkipped
		}
		created, err := h.store.CreateRun(r.Context(), run)
		if err != nil {
			h.logger.Error("seed run", "change_request_id", cr.ID, "integration_id", integration.ID, "error", err)
			writeStorageError(w, r, err)
			return
		}
		runs = append(runs, created)
	}

	writeJSON(w, r, http.StatusCreated, ChangeRequestDetail{ChangeRequest: cr, Runs: runs})
}

// resolveAttachments fills in pull request attachments whose content was not
// supplied by fetching the PR diff. Resolution is best effort; a fetch
// failure leaves the attachment as a bare link.
func (h *Handlers) resolveAttachments(ctx context.Context, attachments []model.Attachment) []model.Attachment {
	for i := range attachments {
		if attachments[i].ID == uuid.Nil {
			attachments[i].ID = uuid.New()
		}
	}
	if h.codeHost == nil {
		return attachments
	}
	var host CodeHost
	for i, a := range attachments {
		if a.Type != model.AttachmentPR || a.Content != "" || a.URL == "" {
			continue
		}
		if host == nil {
			settings, err := h.store.GetSettings(ctx)
			if err != nil {
				h.logger.Warn("attachment resolution: settings unavailable", "error", err)
				return attachments
			}
			host = h.codeHost(settings.GitHubToken)
		}
		diff, err := host.PullRequestDiff(ctx, a.URL)
		if err != nil {
			h.logger.Warn("attachment resolution: pr diff fetch failed", "url", a.URL, "error", err)
			continue
		}
		attachments[i].Content = diff
	}
	return attachments
}

// selectedIntegrations resolves the fan-out set: the named integrations, or
// all of them when the selection is empty.
func (h *Handlers) selectedIntegrations(r *http.Request, ids []uuid.UUID) ([]model.Integration, error) {
	if len(ids) == 0 {
		return h.store.ListIntegrations(r.Context())
	}
	out := make([]model.Integration, 0, len(ids))
	for _, id := range ids {
		integration, err := h.store.GetIntegration(r.Context(), id)
		if err != nil {
			return nil, err
		}
		out = append(out, integration)
	}
	return out, nil
}

// HandleListChangeRequests handles GET /v1/change-requests.
func (h *Handlers) HandleListChangeRequests(w http.ResponseWriter, r *http.Request) {
	crs, err := h.store.ListChangeRequests(r.Context())
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	if crs == nil {
		crs = []model.ChangeRequest{}
	}
	writeJSON(w, r, http.StatusOK, crs)
}

// HandleGetChangeRequest handles GET /v1/change-requests/{change_request_id}.
func (h *Handlers) HandleGetChangeRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "change_request_id")
	if !ok {
		return
	}
	cr, err := h.store.GetChangeRequest(r.Context(), id)
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	runs, err := h.store.ListRuns(r.Context(), id)
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, r, http.StatusOK, ChangeRequestDetail{ChangeRequest: cr, Runs: runs})
}

// HandleDeleteChangeRequest handles DELETE /v1/change-requests/{change_request_id}.
func (h *Handlers) HandleDeleteChangeRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "change_request_id")
	if !ok {
		return
	}
	if err := h.store.DeleteChangeRequest(r.Context(), id); err != nil {
		writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"deleted": true})
}
