// Package wizard runs the guided conversation that turns a vague change idea
// into a concrete change request: a short chat loop that probes for missing
// detail, then drafts a title and implementation guide.
package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/guy-hartstein/syncforge/internal/model"
)

const defaultModel = openai.ChatModelGPT4o

// readyMarker in an assistant reply flips the session to ready_to_proceed.
const readyMarker = "enough information to proceed"

const chatSystemPrompt = `You help an engineer specify a code change that
will be applied across several repositories by autonomous coding agents.

Ask at most one clarifying question per turn. Probe for: what should change,
which repositories are affected, edge cases, and how to verify the result.
Once the request is specific enough to hand to an agent, say exactly
"I have enough information to proceed." and summarize the change in one
paragraph.`

const guideSystemPrompt = `Given the conversation below, produce the final
specification for autonomous coding agents.

Respond with JSON only:
{"title": "<imperative, under 10 words>",
 "description": "<one paragraph summary>",
 "implementation_guide": "<step-by-step markdown guide an agent can follow
without asking questions>"}`

// Draft is the wizard's final output, ready to become a change request.
type Draft struct {
	Title               string `json:"title"`
	Description         string `json:"description"`
	ImplementationGuide string `json:"implementation_guide"`
}

// Service drives wizard conversations. Without an API key it falls back to a
// deterministic scripted flow so the product works before any key is stored.
type Service struct {
	client     openai.Client
	model      string
	configured bool
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(s *Service) { s.model = model }
}

// WithBaseURL points the service at a different API host, for tests.
func WithBaseURL(apiKey, baseURL string) Option {
	return func(s *Service) {
		s.client = openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL))
		s.configured = true
	}
}

// New creates a Service. An empty apiKey selects the scripted fallback.
func New(apiKey string, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		model:  defaultModel,
		logger: logger,
	}
	if apiKey != "" {
		s.client = openai.NewClient(option.WithAPIKey(apiKey))
		s.configured = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Chat appends the user message, obtains the assistant reply, and updates
// ready_to_proceed. The session is mutated; the caller saves it.
func (s *Service) Chat(ctx context.Context, sess *Session, userMessage string) (string, error) {
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return "", fmt.Errorf("wizard: empty message")
	}
	sess.Messages = append(sess.Messages, model.Message{Role: model.RoleUser, Text: userMessage})

	var reply string
	if s.configured {
		var err error
		reply, err = s.complete(ctx, sess)
		if err != nil {
			return "", err
		}
	} else {
		reply = s.scriptedReply(sess)
	}

	sess.Messages = append(sess.Messages, model.Message{Role: model.RoleAgent, Text: reply})
	if strings.Contains(strings.ToLower(reply), readyMarker) {
		sess.ReadyToProceed = true
	}
	return reply, nil
}

func (s *Service) complete(ctx context.Context, sess *Session) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(sess.Messages)+1)
	msgs = append(msgs, openai.SystemMessage(chatSystemPrompt))
	for _, m := range sess.Messages {
		if m.Role == model.RoleUser {
			msgs = append(msgs, openai.UserMessage(m.Text))
		} else {
			msgs = append(msgs, openai.AssistantMessage(m.Text))
		}
	}
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    s.model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("wizard: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("wizard: empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// scriptedReply is the keyless flow: one clarifying question, then ready.
func (s *Service) scriptedReply(sess *Session) string {
	userTurns := 0
	for _, m := range sess.Messages {
		if m.Role == model.RoleUser {
			userTurns++
		}
	}
	if userTurns <= 1 {
		return "Which repositories should this change apply to, and how will you verify it worked?"
	}
	return "I have " + readyMarker + ". I will draft an implementation guide from what you described."
}

// Draft produces the final title, description, and implementation guide from
// the conversation.
func (s *Service) Draft(ctx context.Context, sess *Session) (Draft, error) {
	if !s.configured {
		return s.scriptedDraft(sess), nil
	}

	var convo strings.Builder
	for _, m := range sess.Messages {
		fmt.Fprintf(&convo, "%s: %s\n\n", m.Role, m.Text)
	}
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(guideSystemPrompt),
			openai.UserMessage(convo.String()),
		},
	})
	if err != nil {
		return Draft{}, fmt.Errorf("wizard: draft: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Draft{}, fmt.Errorf("wizard: empty draft")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.Trim(raw, "`\n ")
	var d Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Draft{}, fmt.Errorf("wizard: parse draft: %w", err)
	}
	if d.Title == "" || d.ImplementationGuide == "" {
		return Draft{}, fmt.Errorf("wizard: incomplete draft")
	}
	return d, nil
}

// scriptedDraft derives a plain draft from the first user message.
func (s *Service) scriptedDraft(sess *Session) Draft {
	first := ""
	for _, m := range sess.Messages {
		if m.Role == model.RoleUser {
			first = m.Text
			break
		}
	}
	title := first
	if len(title) > 60 {
		title = title[:60]
	}
	if title == "" {
		title = "Untitled change"
	}
	return Draft{
		Title:               title,
		Description:         first,
		ImplementationGuide: "Implement the following change:\n\n" + first,
	}
}
