package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// SignatureHeader carries the webhook HMAC signature.
const SignatureHeader = "X-Webhook-Signature"

// EventStatusChange is the only webhook event acted on; all others are
// acknowledged and ignored.
const EventStatusChange = "statusChange"

// WebhookPayload is the remote service's push notification body. It carries
// only status, branch and PR URL; the transcript must be re-fetched so the
// webhook path converges with polling.
type WebhookPayload struct {
	Event     string     `json:"event"`
	Timestamp string     `json:"timestamp"`
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	Source    sourceBody `json:"source"`
	Target    targetBody `json:"target"`
	Summary   string     `json:"summary"`
}

// AgentStatus maps the payload's status token onto the internal enum.
func (p WebhookPayload) AgentStatus() AgentStatus {
	return mapStatus(p.Status)
}

// BranchName returns the pushed branch, if any.
func (p WebhookPayload) BranchName() string { return p.Target.BranchName }

// PRURL returns the pull request URL, if any.
func (p WebhookPayload) PRURL() string { return p.Target.PRURL }

// ParseWebhook decodes a webhook body.
func ParseWebhook(body []byte) (WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return WebhookPayload{}, fmt.Errorf("gateway: parse webhook: %w", err)
	}
	return p, nil
}

// VerifySignature checks the hex-encoded HMAC-SHA256 signature over the raw
// body, using constant-time comparison. The signature header value is
// expected in the form "sha256=<hex>".
func VerifySignature(secret string, body []byte, signature string) bool {
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
