// Package gh wraps the GitHub API for the two things the service needs from
// a code host: resolving pull request state and browsing repositories a
// token can reach.
package gh

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/go-github/v84/github"

	"github.com/guy-hartstein/syncforge/internal/orchestrator"
)

// Client talks to GitHub with a stored personal access token.
type Client struct {
	gh *github.Client
}

// New creates a Client. An empty token yields an unauthenticated client
// limited to public repositories.
func New(token string) *Client {
	c := github.NewClient(nil)
	if token != "" {
		c = c.WithAuthToken(token)
	}
	return &Client{gh: c}
}

// NewWithBaseURL points the client at a different API host, for tests and
// GitHub Enterprise.
func NewWithBaseURL(token, baseURL string) (*Client, error) {
	c := New(token)
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("gh: parse base url: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	c.gh.BaseURL = u
	return c, nil
}

// PullRequestState resolves merge state for a pull request URL. Merged is
// authoritative from the API, never inferred from the closed state.
func (c *Client) PullRequestState(ctx context.Context, prURL string) (orchestrator.PullRequestState, error) {
	owner, repo, number, err := ParsePRURL(prURL)
	if err != nil {
		return orchestrator.PullRequestState{}, err
	}
	pr, _, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return orchestrator.PullRequestState{}, fmt.Errorf("gh: get pull request %s/%s#%d: %w", owner, repo, number, err)
	}

	state := orchestrator.PullRequestState{
		Merged: pr.GetMerged(),
		Closed: pr.GetState() == "closed",
	}
	if mergedAt := pr.GetMergedAt(); !mergedAt.IsZero() {
		state.MergedAt = mergedAt.Time
	}
	return state, nil
}

// Repo is a browsable repository.
type Repo struct {
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
	Private  bool   `json:"private"`
}

// ListRepos returns repositories visible to the token, most recently pushed
// first.
func (c *Client) ListRepos(ctx context.Context) ([]Repo, error) {
	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Sort:        "pushed",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var out []Repo
	for {
		repos, resp, err := c.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("gh: list repositories: %w", err)
		}
		for _, r := range repos {
			out = append(out, Repo{
				FullName: r.GetFullName(),
				HTMLURL:  r.GetHTMLURL(),
				Private:  r.GetPrivate(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// PullRequestDiff fetches the unified diff of a pull request, used when a PR
// is attached to a change request as implementation context.
func (c *Client) PullRequestDiff(ctx context.Context, prURL string) (string, error) {
	owner, repo, number, err := ParsePRURL(prURL)
	if err != nil {
		return "", err
	}
	diff, _, err := c.gh.PullRequests.GetRaw(ctx, owner, repo, number, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", fmt.Errorf("gh: get pull request diff %s/%s#%d: %w", owner, repo, number, err)
	}
	return diff, nil
}

// ParsePRURL extracts owner, repo, and number from a GitHub pull request URL
// such as https://github.com/acme/payments/pull/42.
func ParsePRURL(prURL string) (owner, repo string, number int, err error) {
	u, err := url.Parse(prURL)
	if err != nil {
		return "", "", 0, fmt.Errorf("gh: parse pull request url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 || parts[2] != "pull" {
		return "", "", 0, fmt.Errorf("gh: not a pull request url: %s", prURL)
	}
	number, err = strconv.Atoi(parts[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("gh: bad pull request number in %s", prURL)
	}
	return parts[0], parts[1], number, nil
}
