package gh

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePRURL(t *testing.T) {
	owner, repo, number, err := ParsePRURL("https://github.com/acme/payments/pull/42")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "payments", repo)
	assert.Equal(t, 42, number)

	// Extra path segments like /files are tolerated.
	_, _, number, err = ParsePRURL("https://github.com/acme/payments/pull/42/files")
	require.NoError(t, err)
	assert.Equal(t, 42, number)

	for _, bad := range []string{
		"https://github.com/acme/payments",
		"https://github.com/acme/payments/issues/42",
		"https://github.com/acme/payments/pull/forty-two",
		"not a url at all ://",
	} {
		_, _, _, err := ParsePRURL(bad)
		assert.Error(t, err, bad)
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewWithBaseURL("test-token", srv.URL+"/")
	require.NoError(t, err)
	return c
}

func TestPullRequestStateMerged(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/payments/pulls/7", r.URL.Path)
		fmt.Fprint(w, `{"number": 7, "state": "closed", "merged": true, "merged_at": "2026-08-30T10:00:00Z"}`)
	}))

	state, err := c.PullRequestState(context.Background(), "https://github.com/acme/payments/pull/7")
	require.NoError(t, err)
	assert.True(t, state.Merged)
	assert.True(t, state.Closed)
	assert.Equal(t, 2026, state.MergedAt.Year())
}

func TestPullRequestStateClosedUnmerged(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number": 7, "state": "closed", "merged": false}`)
	}))

	state, err := c.PullRequestState(context.Background(), "https://github.com/acme/payments/pull/7")
	require.NoError(t, err)
	assert.False(t, state.Merged)
	assert.True(t, state.Closed)
	assert.True(t, state.MergedAt.IsZero())
}

func TestPullRequestStateOpen(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number": 7, "state": "open", "merged": false}`)
	}))

	state, err := c.PullRequestState(context.Background(), "https://github.com/acme/payments/pull/7")
	require.NoError(t, err)
	assert.False(t, state.Merged)
	assert.False(t, state.Closed)
}

func TestListRepos(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/repos", r.URL.Path)
		fmt.Fprint(w, `[
			{"full_name": "acme/payments", "html_url": "https://github.com/acme/payments", "private": true},
			{"full_name": "acme/site", "html_url": "https://github.com/acme/site", "private": false}
		]`)
	}))

	repos, err := c.ListRepos(context.Background())
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "acme/payments", repos[0].FullName)
	assert.True(t, repos[0].Private)
	assert.False(t, repos[1].Private)
}
