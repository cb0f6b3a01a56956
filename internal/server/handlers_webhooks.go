package server

import (
	"io"
	"net/http"

	"github.com/guy-hartstein/syncforge/internal/gateway"
	"github.com/guy-hartstein/syncforge/internal/model"
)

// maxWebhookBodyBytes bounds webhook payloads; agent status notifications
// are small.
const maxWebhookBodyBytes = 1 << 20

// HandleAgentWebhook handles POST /v1/webhooks/agent. Signature enforcement
// is exactly as strict as the configuration: with a stored secret every
// request must carry a valid signature, without one nothing is checked.
func (h *Handlers) HandleAgentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unreadable body")
		return
	}

	settings, err := h.store.GetSettings(r.Context())
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	if settings.WebhookSecret != "" {
		sig := r.Header.Get(gateway.SignatureHeader)
		if !gateway.VerifySignature(settings.WebhookSecret, body, sig) {
			h.logger.Warn("webhook signature rejected", "request_id", RequestIDFromContext(r.Context()))
			writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid signature")
			return
		}
	} else {
		h.logger.Warn("webhook accepted without verification, no secret configured")
	}

	payload, err := gateway.ParseWebhook(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid payload")
		return
	}

	handled, err := h.coordinator.HandleWebhook(r.Context(), payload)
	if err != nil {
		h.logger.Error("webhook processing failed", "agent_id", payload.ID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "webhook processing failed")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"handled": handled})
}
