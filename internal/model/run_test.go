package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guy-hartstein/syncforge/internal/model"
)

func TestRunStatusTerminalish(t *testing.T) {
	tests := []struct {
		status model.RunStatus
		want   bool
	}{
		{model.RunStatusComplete, true},
		{model.RunStatusSkipped, true},
		{model.RunStatusReadyToMerge, true},
		{model.RunStatusCancelled, true},
		{model.RunStatusPending, false},
		{model.RunStatusInProgress, false},
		{model.RunStatusNeedsReview, false},
		{model.RunStatus("unknown"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Terminalish())
		})
	}
}

func TestShouldAutoCreatePR(t *testing.T) {
	override := true
	run := model.Run{AutoCreatePR: &override}
	assert.True(t, run.ShouldAutoCreatePR(false), "run override wins over request default")

	override = false
	assert.False(t, run.ShouldAutoCreatePR(true))

	run.AutoCreatePR = nil
	assert.True(t, run.ShouldAutoCreatePR(true), "falls back to request default")
	assert.False(t, run.ShouldAutoCreatePR(false))
}

func TestLastAgentMessage(t *testing.T) {
	transcript := []model.Message{
		{ID: "1", Role: model.RoleAgent, Text: "starting"},
		{ID: "2", Role: model.RoleUser, Text: "ok"},
		{ID: "3", Role: model.RoleAgent, Text: "which version?"},
		{ID: "4", Role: model.RoleUser, Text: "v2"},
	}
	msg := model.LastAgentMessage(transcript)
	require.NotNil(t, msg)
	assert.Equal(t, "3", msg.ID)

	assert.Nil(t, model.LastAgentMessage(nil))
	assert.Nil(t, model.LastAgentMessage([]model.Message{{Role: model.RoleUser, Text: "hi"}}))
}

func TestValidateIntegrationName(t *testing.T) {
	require.NoError(t, model.ValidateIntegrationName("Acme CRM"))
	require.Error(t, model.ValidateIntegrationName(""))
	require.Error(t, model.ValidateIntegrationName("   "))
}

func TestSettingsMasked(t *testing.T) {
	s := model.Settings{GatewayAPIKey: "key", WebhookSecret: ""}
	masked := s.Masked()
	assert.True(t, masked.HasGatewayAPIKey)
	assert.False(t, masked.HasWebhookSecret)
	assert.False(t, masked.HasGitHubToken)
}
