package orchestrator

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
)

// DefaultBranchPrefix is used when the caller does not pick one.
const DefaultBranchPrefix = "feat"

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// BranchName generates a collision-resistant, human-readable branch name of
// the form "<prefix>/<slug>-<6-hex>". The suffix is for collision avoidance
// only, not security; collisions are not detected or retried against.
func BranchName(integrationName, prefix string) string {
	if prefix == "" {
		prefix = DefaultBranchPrefix
	}
	slug := nonAlphanumeric.ReplaceAllString(strings.ToLower(integrationName), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "repo"
	}
	suffix := rand.Uint32N(1 << 24) //nolint:gosec // collision avoidance, not security
	return fmt.Sprintf("%s/%s-%06x", prefix, slug, suffix)
}
