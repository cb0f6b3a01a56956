package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/guy-hartstein/syncforge/internal/model"
)

// DefaultBaseURL is the production endpoint of the remote agent service.
const DefaultBaseURL = "https://api.cursor.com"

// defaultRefCandidates are tried in order when the caller does not pin a ref.
var defaultRefCandidates = []string{"main", "master"}

// Client talks to the remote agent-execution service. It is cheap to
// construct; orchestration code creates one per operation so the API key is
// never cached beyond a single call.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	backoff    Backoff
	sleep      sleeper
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the service endpoint (tests point this at httptest).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackoff overrides the rate-limit retry policy.
func WithBackoff(b Backoff) Option {
	return func(c *Client) { c.backoff = b }
}

// WithSleeper overrides the wait function for tests.
func WithSleeper(s sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// New creates a Client authenticating with the given API key.
func New(apiKey string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		backoff:    DefaultBackoff(),
		sleep:      realSleep,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LaunchAgent starts a new agent against the repository, trying each ref
// candidate in order. A 400 "does not exist" rejection moves on to the next
// candidate; any other non-2xx fails immediately. Launch is never retried on
// rate limits: retry-with-new-attempt semantics differ from reads.
func (c *Client) LaunchAgent(ctx context.Context, p LaunchParams) (string, error) {
	refs := p.RefCandidates
	if len(refs) == 0 {
		refs = defaultRefCandidates
	}

	var lastErr error
	for _, ref := range refs {
		req := launchRequest{
			Prompt: promptBody{Text: p.Prompt},
			Source: sourceBody{Repository: p.Repository, Ref: ref},
			Target: targetBody{BranchName: p.BranchName, AutoCreatePR: p.AutoCreatePR},
			Model:  p.Model,
		}

		var resp agentResponse
		err := c.do(ctx, http.MethodPost, "/v0/agents", req, &resp, false)
		if err == nil {
			return resp.ID, nil
		}

		if isRefNotFound(err) {
			c.logger.Debug("ref not found, trying next candidate", "repository", p.Repository, "ref", ref)
			lastErr = err
			continue
		}
		return "", fmt.Errorf("launch agent: %w", err)
	}
	return "", fmt.Errorf("launch agent: no ref candidate exists: %w", lastErr)
}

func isRefNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusBadRequest && strings.Contains(e.Body, "does not exist")
}

// GetAgentStatus returns the agent's current status and target info.
// Rate-limit responses are retried with capped exponential backoff.
func (c *Client) GetAgentStatus(ctx context.Context, agentID string) (AgentInfo, error) {
	var resp agentResponse
	if err := c.do(ctx, http.MethodGet, "/v0/agents/"+agentID, nil, &resp, true); err != nil {
		return AgentInfo{}, fmt.Errorf("get agent status: %w", err)
	}
	return AgentInfo{
		ID:         resp.ID,
		Status:     mapStatus(resp.Status),
		Repository: resp.Source.Repository,
		Ref:        resp.Source.Ref,
		BranchName: resp.Target.BranchName,
		PRURL:      resp.Target.PRURL,
		Summary:    resp.Summary,
	}, nil
}

// GetConversation returns the agent's full transcript. The result replaces
// any local cache wholesale: the remote source of truth may rewrite earlier
// entries, so appending would drift.
func (c *Client) GetConversation(ctx context.Context, agentID string) ([]model.Message, error) {
	var resp conversationResponse
	if err := c.do(ctx, http.MethodGet, "/v0/agents/"+agentID+"/conversation", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	messages := make([]model.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		messages = append(messages, m.toModel())
	}
	return messages, nil
}

// SendFollowup delivers a follow-up instruction to a running or blocked agent.
func (c *Client) SendFollowup(ctx context.Context, agentID, text string) error {
	req := struct {
		Prompt promptBody `json:"prompt"`
	}{Prompt: promptBody{Text: text}}
	if err := c.do(ctx, http.MethodPost, "/v0/agents/"+agentID+"/followup", req, nil, false); err != nil {
		return fmt.Errorf("send followup: %w", err)
	}
	return nil
}

// StopAgent asks the remote service to halt the agent.
func (c *Client) StopAgent(ctx context.Context, agentID string) error {
	if err := c.do(ctx, http.MethodPost, "/v0/agents/"+agentID+"/stop", nil, nil, false); err != nil {
		return fmt.Errorf("stop agent: %w", err)
	}
	return nil
}

// DeleteAgent removes the agent permanently.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	if err := c.do(ctx, http.MethodDelete, "/v0/agents/"+agentID, nil, nil, false); err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	return nil
}

// TestConnection verifies the API key against the service.
func (c *Client) TestConnection(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/v0/me", nil, nil, false); err != nil {
		return fmt.Errorf("test connection: %w", err)
	}
	return nil
}

// ListModels returns the models available for new agents.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var resp modelsResponse
	if err := c.do(ctx, http.MethodGet, "/v0/models", nil, &resp, false); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return resp.Models, nil
}

// do performs one request. When retryRateLimit is set, 429 responses are
// retried indefinitely with capped exponential backoff; the context bounds
// the total wait.
func (c *Client) do(ctx context.Context, method, path string, body, out any, retryRateLimit bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.SetBasicAuth(c.apiKey, "")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && retryRateLimit {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			delay := c.backoff.Delay(attempt)
			c.logger.Warn("rate limited, retrying", "path", path, "attempt", attempt+1, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			return &Error{StatusCode: resp.StatusCode, Body: string(b)}
		}

		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return nil
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}
