// Package memory distills durable, reusable facts from human follow-up
// messages so future agent runs against the same repository start smarter.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultModel = openai.ChatModelGPT4oMini

const systemPrompt = `You classify a human reply sent to an autonomous coding
agent. Decide whether the reply contains a durable fact about the repository
or the team's preferences that would help FUTURE tasks on the same
repository. One-off instructions ("yes", "try again", "use port 8081 for this
test") are not durable.

Respond with JSON only: {"memory": "<one concise sentence>", "durable": true}
or {"durable": false}.`

type extraction struct {
	Memory  string `json:"memory"`
	Durable bool   `json:"durable"`
}

// Extractor asks an LLM whether a follow-up carries a reusable fact.
type Extractor struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(e *Extractor) { e.model = model }
}

// WithBaseURL points the extractor at a different API host, for tests.
func WithBaseURL(apiKey, baseURL string) Option {
	return func(e *Extractor) {
		e.client = openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL))
	}
}

// New creates an Extractor backed by the OpenAI API.
func New(apiKey string, logger *slog.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns a one-sentence durable fact extracted from the user
// message, or ok=false when the message carries nothing worth keeping.
func (e *Extractor) Extract(ctx context.Context, userMessage, agentContext string) (string, bool, error) {
	var user strings.Builder
	if agentContext != "" {
		fmt.Fprintf(&user, "The agent said:\n%s\n\n", agentContext)
	}
	fmt.Fprintf(&user, "The human replied:\n%s", userMessage)

	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: e.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(user.String()),
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("memory: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", false, fmt.Errorf("memory: empty completion")
	}

	var ex extraction
	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.Trim(raw, "`\n ")
	if err := json.Unmarshal([]byte(raw), &ex); err != nil {
		// A malformed classification is dropped, never surfaced to the user.
		e.logger.Warn("memory: unparseable classification", "raw", raw)
		return "", false, nil
	}
	if !ex.Durable || strings.TrimSpace(ex.Memory) == "" {
		return "", false, nil
	}
	return strings.TrimSpace(ex.Memory), true, nil
}

// Noop is an Extractor that never extracts, used when no API key is
// configured.
type Noop struct{}

// Extract always reports nothing to keep.
func (Noop) Extract(context.Context, string, string) (string, bool, error) {
	return "", false, nil
}
