package server

import (
	"net/http"
	"strings"

	"github.com/guy-hartstein/syncforge/internal/model"
	"github.com/guy-hartstein/syncforge/internal/wizard"
)

// HandleCreateWizardSession handles POST /v1/wizard/sessions.
func (h *Handlers) HandleCreateWizardSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeNotConfigured, "wizard unavailable")
		return
	}
	writeJSON(w, r, http.StatusCreated, h.sessions.Create())
}

// HandleGetWizardSession handles GET /v1/wizard/sessions/{session_id}.
func (h *Handlers) HandleGetWizardSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.wizardSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

// HandleWizardMessage handles POST /v1/wizard/sessions/{session_id}/messages.
func (h *Handlers) HandleWizardMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.wizardSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "text is required")
		return
	}

	reply, err := h.wizardSvc.Chat(r.Context(), sess, req.Text)
	if err != nil {
		h.logger.Error("wizard chat", "session_id", sess.ID, "error", err)
		writeError(w, r, http.StatusBadGateway, model.ErrCodeInternalError, "assistant unavailable")
		return
	}
	h.sessions.Save(sess)
	writeJSON(w, r, http.StatusOK, map[string]any{
		"reply":            reply,
		"ready_to_proceed": sess.ReadyToProceed,
	})
}

// HandleWizardDraft handles POST /v1/wizard/sessions/{session_id}/draft.
// The session survives drafting so the user can keep refining; it is evicted
// once they create the change request.
func (h *Handlers) HandleWizardDraft(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.wizardSession(w, r)
	if !ok {
		return
	}
	draft, err := h.wizardSvc.Draft(r.Context(), sess)
	if err != nil {
		h.logger.Error("wizard draft", "session_id", sess.ID, "error", err)
		writeError(w, r, http.StatusBadGateway, model.ErrCodeInternalError, "draft generation failed")
		return
	}
	writeJSON(w, r, http.StatusOK, draft)
}

// HandleDeleteWizardSession handles DELETE /v1/wizard/sessions/{session_id}.
func (h *Handlers) HandleDeleteWizardSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.wizardSession(w, r)
	if !ok {
		return
	}
	h.sessions.Delete(sess.ID)
	writeJSON(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handlers) wizardSession(w http.ResponseWriter, r *http.Request) (sess *wizard.Session, ok bool) {
	if h.sessions == nil || h.wizardSvc == nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeNotConfigured, "wizard unavailable")
		return nil, false
	}
	id, ok := pathUUID(w, r, "session_id")
	if !ok {
		return nil, false
	}
	sess = h.sessions.Get(id)
	if sess == nil {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "session not found or expired")
		return nil, false
	}
	return sess, true
}
