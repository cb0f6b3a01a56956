package orchestrator

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var branchPattern = regexp.MustCompile(`^feat/[a-z0-9]+(-[a-z0-9]+)*-[0-9a-f]{6}$`)

func TestBranchName(t *testing.T) {
	tests := []struct {
		name        string
		integration string
		wantSlug    string
	}{
		{"simple", "payments", "payments"},
		{"uppercase and spaces", "Payments Service", "payments-service"},
		{"punctuation collapses", "api...gateway!!v2", "api-gateway-v2"},
		{"leading and trailing junk", "--[core]--", "core"},
		{"only junk falls back", "***", "repo"},
		{"unicode stripped", "café münchen", "caf-m-nchen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BranchName(tt.integration, "feat")
			require.Regexp(t, branchPattern, got)
			body := strings.TrimPrefix(got, "feat/")
			slug := body[:len(body)-7] // strip "-" plus 6 hex chars
			assert.Equal(t, tt.wantSlug, slug)
		})
	}
}

func TestBranchNameDefaultPrefix(t *testing.T) {
	got := BranchName("payments", "")
	assert.True(t, strings.HasPrefix(got, DefaultBranchPrefix+"/"))
}

func TestBranchNameSuffixVaries(t *testing.T) {
	seen := map[string]bool{}
	for range 20 {
		seen[BranchName("payments", "feat")] = true
	}
	// 20 draws from 16M values colliding down to one name would mean the
	// suffix is not random at all.
	assert.Greater(t, len(seen), 1)
}
