package model

import "time"

// Settings holds the tenant's credentials for external services. A single
// row; the gateway API key is read per operation, never cached.
type Settings struct {
	GatewayAPIKey string    `json:"-"`
	WebhookSecret string    `json:"-"`
	GitHubToken   string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SettingsResponse is the masked API view of Settings: secrets are reported
// as presence flags, never echoed back.
type SettingsResponse struct {
	HasGatewayAPIKey bool      `json:"has_gateway_api_key"`
	HasWebhookSecret bool      `json:"has_webhook_secret"`
	HasGitHubToken   bool      `json:"has_github_token"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Masked converts Settings into its API representation.
func (s Settings) Masked() SettingsResponse {
	return SettingsResponse{
		HasGatewayAPIKey: s.GatewayAPIKey != "",
		HasWebhookSecret: s.WebhookSecret != "",
		HasGitHubToken:   s.GitHubToken != "",
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}
