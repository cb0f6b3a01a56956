// Package orchestrator coordinates remote coding agents across the
// integrations of a change request: launching agents, reconciling their
// reported state into run records, and rolling child statuses up to the
// parent change request.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/guy-hartstein/syncforge/internal/gateway"
	"github.com/guy-hartstein/syncforge/internal/model"
)

var (
	// ErrNotConfigured is returned when an operation needs a gateway API key
	// and none is stored.
	ErrNotConfigured = errors.New("orchestrator: gateway API key not configured")

	// ErrNoAgent is returned when an operation needs a launched agent and the
	// run has none.
	ErrNoAgent = errors.New("orchestrator: run has no agent")

	// ErrNoPullRequest is returned when a PR check is requested for a run
	// without a recorded pull request.
	ErrNoPullRequest = errors.New("orchestrator: run has no pull request")
)

// syncConcurrency bounds parallel gateway reads during a batch sync.
const syncConcurrency = 4

// Orchestrator supervises agent runs. All methods are safe for concurrent
// use; convergence under concurrent sync and webhook delivery comes from the
// reconciler's idempotence, not from locking.
type Orchestrator struct {
	store     Store
	gateways  GatewayFactory
	pr        PRChecker
	extractor MemoryExtractor
	logger    *slog.Logger

	now func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPRChecker installs a pull request state resolver. Without one, PR
// status checks fail with an explicit error instead of guessing.
func WithPRChecker(pr PRChecker) Option {
	return func(o *Orchestrator) { o.pr = pr }
}

// WithMemoryExtractor enables learned-context extraction from follow-ups.
func WithMemoryExtractor(ex MemoryExtractor) Option {
	return func(o *Orchestrator) { o.extractor = ex }
}

// New creates an Orchestrator.
func New(store Store, gateways GatewayFactory, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		gateways: gateways,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) gatewayClient(ctx context.Context) (Gateway, error) {
	settings, err := o.store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load settings: %w", err)
	}
	if settings.GatewayAPIKey == "" {
		return nil, ErrNotConfigured
	}
	return o.gateways(settings.GatewayAPIKey), nil
}

// StartResult summarizes a fan-out launch.
type StartResult struct {
	Started int `json:"started"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// StartAllAgents launches one agent per pending run of the change request.
// Failures are isolated per run: a launch error marks that run needs_review
// and moves on, so one bad integration never blocks the rest of the batch.
func (o *Orchestrator) StartAllAgents(ctx context.Context, changeRequestID uuid.UUID) (StartResult, error) {
	cr, err := o.store.GetChangeRequest(ctx, changeRequestID)
	if err != nil {
		return StartResult{}, fmt.Errorf("orchestrator: load change request: %w", err)
	}
	runs, err := o.store.ListRuns(ctx, changeRequestID)
	if err != nil {
		return StartResult{}, fmt.Errorf("orchestrator: list runs: %w", err)
	}
	gw, err := o.gatewayClient(ctx)
	if err != nil {
		return StartResult{}, err
	}

	var res StartResult
	for _, run := range runs {
		if run.AgentID != "" || run.Status.Terminalish() {
			continue
		}
		switch err := o.startRun(ctx, gw, cr, &run); {
		case err == nil && run.Status == model.RunStatusSkipped:
			res.Skipped++
		case err == nil:
			res.Started++
		default:
			res.Failed++
			o.logger.Error("agent launch failed",
				"run_id", run.ID, "integration_id", run.IntegrationID, "error", err)
			run.Status = model.RunStatusNeedsReview
			run.PendingQuestion = "Failed to launch agent: " + err.Error()
			if saveErr := o.store.SaveRun(ctx, run); saveErr != nil {
				o.logger.Error("save failed run", "run_id", run.ID, "error", saveErr)
			}
		}
	}

	if res.Started > 0 {
		if err := o.store.SetChangeRequestStatus(ctx, cr.ID, model.ChangeRequestStatusInProgress); err != nil {
			o.logger.Error("mark change request in progress", "change_request_id", cr.ID, "error", err)
		}
	}
	return res, nil
}

// startRun launches one agent and persists the result. The run is mutated in
// place so the caller can inspect the outcome.
func (o *Orchestrator) startRun(ctx context.Context, gw Gateway, cr model.ChangeRequest, run *model.Run) error {
	integration, err := o.store.GetIntegration(ctx, run.IntegrationID)
	if err != nil {
		return fmt.Errorf("load integration: %w", err)
	}
	if len(integration.RepoLinks) == 0 {
		run.Status = model.RunStatusSkipped
		run.PendingQuestion = ""
		if err := o.store.SaveRun(ctx, *run); err != nil {
			return fmt.Errorf("save skipped run: %w", err)
		}
		return nil
	}

	branch := BranchName(integration.Name, DefaultBranchPrefix)
	prompt := BuildPrompt(PromptInput{
		Guide:              cr.ImplementationGuide,
		Integration:        integration,
		CustomInstructions: run.CustomInstructions,
		BranchName:         branch,
	})

	agentID, err := gw.LaunchAgent(ctx, gateway.LaunchParams{
		Repository:   integration.RepoLinks[0],
		Prompt:       prompt,
		BranchName:   branch,
		AutoCreatePR: run.ShouldAutoCreatePR(cr.AutoCreatePR),
	})
	if err != nil {
		return fmt.Errorf("launch agent: %w", err)
	}

	run.AgentID = agentID
	run.BranchName = branch
	run.Status = model.RunStatusInProgress
	run.PendingQuestion = ""
	if err := o.store.SaveRun(ctx, *run); err != nil {
		// The agent is running but we lost the record update. The agent id is
		// already on the run for the next sync to pick up, so just report.
		return fmt.Errorf("save launched run: %w", err)
	}
	o.logger.Info("agent launched",
		"run_id", run.ID, "agent_id", agentID, "branch", branch, "repository", integration.RepoLinks[0])
	return nil
}

// SyncRun polls remote state for one run and reconciles it. Runs without an
// agent or already complete are left untouched.
func (o *Orchestrator) SyncRun(ctx context.Context, runID uuid.UUID) (model.Run, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return model.Run{}, fmt.Errorf("orchestrator: load run: %w", err)
	}
	gw, err := o.gatewayClient(ctx)
	if err != nil {
		return model.Run{}, err
	}
	return o.syncRun(ctx, gw, run)
}

func (o *Orchestrator) syncRun(ctx context.Context, gw Gateway, run model.Run) (model.Run, error) {
	if run.AgentID == "" || run.Status == model.RunStatusComplete || run.Status == model.RunStatusSkipped {
		return run, nil
	}

	info, err := gw.GetAgentStatus(ctx, run.AgentID)
	if err != nil {
		return run, fmt.Errorf("orchestrator: agent status: %w", err)
	}
	obs := Observation{
		AgentStatus: info.Status,
		BranchName:  info.BranchName,
		PRURL:       info.PRURL,
		Summary:     info.Summary,
		ObservedAt:  o.now().UTC(),
	}
	if transcript, err := gw.GetConversation(ctx, run.AgentID); err != nil {
		// Status alone still advances the run; the stale transcript cache
		// keeps serving reads until the next successful fetch.
		o.logger.Warn("transcript fetch failed", "run_id", run.ID, "error", err)
	} else {
		obs.Transcript = transcript
		obs.TranscriptObserved = true
	}

	run = Reconcile(run, obs)
	if err := o.store.SaveRun(ctx, run); err != nil {
		return run, fmt.Errorf("orchestrator: save run: %w", err)
	}
	return run, nil
}

// SyncResult summarizes a batch sync.
type SyncResult struct {
	Synced    int  `json:"synced"`
	Failed    int  `json:"failed"`
	Completed bool `json:"completed"`
}

// SyncAllAgents reconciles every run of a change request against remote
// state, then completes the parent when no child still blocks it. Individual
// sync failures are counted and logged, never fatal to the batch.
func (o *Orchestrator) SyncAllAgents(ctx context.Context, changeRequestID uuid.UUID) (SyncResult, error) {
	runs, err := o.store.ListRuns(ctx, changeRequestID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("orchestrator: list runs: %w", err)
	}
	gw, err := o.gatewayClient(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	var (
		mu  sync.Mutex
		res SyncResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncConcurrency)
	for _, run := range runs {
		if run.AgentID == "" {
			continue
		}
		g.Go(func() error {
			_, err := o.syncRun(gctx, gw, run)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				o.logger.Error("run sync failed", "run_id", run.ID, "error", err)
				return nil
			}
			res.Synced++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	completed, err := o.maybeCompleteChangeRequest(ctx, changeRequestID)
	if err != nil {
		return res, err
	}
	res.Completed = completed
	return res, nil
}

// maybeCompleteChangeRequest flips the parent to completed when every child
// run has reached a terminal-ish status.
func (o *Orchestrator) maybeCompleteChangeRequest(ctx context.Context, changeRequestID uuid.UUID) (bool, error) {
	runs, err := o.store.ListRuns(ctx, changeRequestID)
	if err != nil {
		return false, fmt.Errorf("orchestrator: list runs: %w", err)
	}
	if len(runs) == 0 {
		return false, nil
	}
	for _, run := range runs {
		if !run.Status.Terminalish() {
			return false, nil
		}
	}
	if err := o.store.SetChangeRequestStatus(ctx, changeRequestID, model.ChangeRequestStatusCompleted); err != nil {
		return false, fmt.Errorf("orchestrator: complete change request: %w", err)
	}
	o.logger.Info("change request completed", "change_request_id", changeRequestID)
	return true, nil
}

// HandleWebhook applies a status-change notification from the agent service.
// Unknown agents and uninteresting events are acknowledged without effect.
// The transcript is re-fetched rather than trusted from the payload, so a
// question asked in the final message is not missed.
func (o *Orchestrator) HandleWebhook(ctx context.Context, payload gateway.WebhookPayload) (bool, error) {
	if payload.Event != gateway.EventStatusChange {
		return false, nil
	}
	status := payload.AgentStatus()
	if status != gateway.AgentStatusFinished && status != gateway.AgentStatusFailed {
		return false, nil
	}

	run, err := o.store.GetRunByAgentID(ctx, payload.ID)
	if err != nil {
		if isNotFound(err) {
			o.logger.Warn("webhook for unknown agent", "agent_id", payload.ID)
			return false, nil
		}
		return false, fmt.Errorf("orchestrator: lookup run by agent: %w", err)
	}

	// The payload carries the time the status actually changed; fall back
	// to the local clock when it is absent or malformed.
	observedAt := o.now().UTC()
	if payload.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
			observedAt = ts.UTC()
		} else {
			o.logger.Warn("webhook timestamp unparseable", "agent_id", payload.ID, "timestamp", payload.Timestamp)
		}
	}

	obs := Observation{
		AgentStatus: status,
		BranchName:  payload.BranchName(),
		PRURL:       payload.PRURL(),
		Summary:     payload.Summary,
		ObservedAt:  observedAt,
	}
	if gw, err := o.gatewayClient(ctx); err != nil {
		o.logger.Warn("webhook transcript fetch skipped", "run_id", run.ID, "error", err)
	} else if transcript, err := gw.GetConversation(ctx, run.AgentID); err != nil {
		o.logger.Warn("webhook transcript fetch failed", "run_id", run.ID, "error", err)
	} else {
		obs.Transcript = transcript
		obs.TranscriptObserved = true
	}

	run = Reconcile(run, obs)
	if err := o.store.SaveRun(ctx, run); err != nil {
		return false, fmt.Errorf("orchestrator: save run: %w", err)
	}
	o.logger.Info("webhook applied", "run_id", run.ID, "agent_id", payload.ID, "status", run.Status)

	if _, err := o.maybeCompleteChangeRequest(ctx, run.ChangeRequestID); err != nil {
		o.logger.Error("roll up after webhook", "change_request_id", run.ChangeRequestID, "error", err)
	}
	return true, nil
}

// SendFollowup forwards a human message to the agent and marks the run back
// in progress. Memory extraction runs in the background and never delays or
// fails the follow-up.
func (o *Orchestrator) SendFollowup(ctx context.Context, runID uuid.UUID, text string) (model.Run, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Run{}, errors.New("orchestrator: empty followup")
	}
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return model.Run{}, fmt.Errorf("orchestrator: load run: %w", err)
	}
	if run.AgentID == "" {
		return model.Run{}, ErrNoAgent
	}
	gw, err := o.gatewayClient(ctx)
	if err != nil {
		return model.Run{}, err
	}
	if err := gw.SendFollowup(ctx, run.AgentID, text); err != nil {
		return model.Run{}, fmt.Errorf("orchestrator: send followup: %w", err)
	}

	run.PendingQuestion = ""
	run.Status = model.RunStatusInProgress
	run.Transcript = append(run.Transcript, model.Message{Role: model.RoleUser, Text: text})
	if err := o.store.SaveRun(ctx, run); err != nil {
		return model.Run{}, fmt.Errorf("orchestrator: save run: %w", err)
	}

	o.extractMemoryAsync(ctx, run, text)
	return run, nil
}

// extractMemoryAsync distills a durable fact from the follow-up in the
// background. Detached from the request context so a fast HTTP response does
// not cancel the extraction.
func (o *Orchestrator) extractMemoryAsync(ctx context.Context, run model.Run, userMessage string) {
	if o.extractor == nil {
		return
	}
	agentContext := ""
	if msg := model.LastAgentMessage(run.Transcript); msg != nil {
		agentContext = msg.Text
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(bg, time.Minute)
		defer cancel()
		fact, ok, err := o.extractor.Extract(ctx, userMessage, agentContext)
		if err != nil {
			o.logger.Warn("memory extraction failed", "run_id", run.ID, "error", err)
			return
		}
		if !ok {
			return
		}
		if _, err := o.store.AddMemory(ctx, run.IntegrationID, fact); err != nil {
			o.logger.Warn("memory save failed", "integration_id", run.IntegrationID, "error", err)
			return
		}
		o.logger.Info("memory extracted", "integration_id", run.IntegrationID)
	}()
}

// StopAgent halts the remote agent and cancels the run.
func (o *Orchestrator) StopAgent(ctx context.Context, runID uuid.UUID) (model.Run, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return model.Run{}, fmt.Errorf("orchestrator: load run: %w", err)
	}
	if run.AgentID == "" {
		return model.Run{}, ErrNoAgent
	}
	gw, err := o.gatewayClient(ctx)
	if err != nil {
		return model.Run{}, err
	}
	if err := gw.StopAgent(ctx, run.AgentID); err != nil && !gateway.IsNotFound(err) {
		return model.Run{}, fmt.Errorf("orchestrator: stop agent: %w", err)
	}

	run.Status = model.RunStatusCancelled
	if run.PendingQuestion == "" {
		run.PendingQuestion = "Agent was stopped before finishing."
	}
	if err := o.store.SaveRun(ctx, run); err != nil {
		return model.Run{}, fmt.Errorf("orchestrator: save run: %w", err)
	}
	if _, err := o.maybeCompleteChangeRequest(ctx, run.ChangeRequestID); err != nil {
		o.logger.Error("roll up after stop", "change_request_id", run.ChangeRequestID, "error", err)
	}
	return run, nil
}

// CheckPRStatus resolves the run's pull request against the code host. A
// confirmed merge is the only path to status complete; a close without merge
// cancels the run.
func (o *Orchestrator) CheckPRStatus(ctx context.Context, runID uuid.UUID) (model.Run, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return model.Run{}, fmt.Errorf("orchestrator: load run: %w", err)
	}
	if run.PRURL == "" {
		return model.Run{}, ErrNoPullRequest
	}
	if run.PRMerged {
		return run, nil
	}
	if o.pr == nil {
		return model.Run{}, errors.New("orchestrator: pull request checks not configured")
	}

	state, err := o.pr.PullRequestState(ctx, run.PRURL)
	if err != nil {
		return model.Run{}, fmt.Errorf("orchestrator: pull request state: %w", err)
	}
	switch {
	case state.Merged:
		run = MarkMerged(run, state.MergedAt)
	case state.Closed:
		run = MarkPRClosed(run)
	default:
		return run, nil
	}
	if err := o.store.SaveRun(ctx, run); err != nil {
		return model.Run{}, fmt.Errorf("orchestrator: save run: %w", err)
	}
	if _, err := o.maybeCompleteChangeRequest(ctx, run.ChangeRequestID); err != nil {
		o.logger.Error("roll up after pr check", "change_request_id", run.ChangeRequestID, "error", err)
	}
	return run, nil
}

// Conversation returns the agent transcript, preferring a live fetch and
// falling back to the cached copy when the gateway is unreachable.
func (o *Orchestrator) Conversation(ctx context.Context, runID uuid.UUID) ([]model.Message, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load run: %w", err)
	}
	if run.AgentID == "" {
		return run.Transcript, nil
	}
	gw, err := o.gatewayClient(ctx)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return run.Transcript, nil
		}
		return nil, err
	}
	transcript, err := gw.GetConversation(ctx, run.AgentID)
	if err != nil {
		o.logger.Warn("live transcript fetch failed, serving cache", "run_id", run.ID, "error", err)
		return run.Transcript, nil
	}

	run.Transcript = transcript
	if err := o.store.SaveRun(ctx, run); err != nil {
		o.logger.Warn("transcript cache update failed", "run_id", run.ID, "error", err)
	}
	return transcript, nil
}
