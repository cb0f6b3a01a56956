package orchestrator

import (
	"strings"
	"time"

	"github.com/guy-hartstein/syncforge/internal/gateway"
	"github.com/guy-hartstein/syncforge/internal/model"
)

// Observation is a snapshot of remote agent state as reported by the gateway,
// either from a poll or a webhook. Zero-valued fields mean "not observed" and
// never clobber existing run state.
type Observation struct {
	AgentStatus gateway.AgentStatus
	BranchName  string
	PRURL       string
	Summary     string

	// Transcript replaces the cached conversation only when
	// TranscriptObserved is set; a nil transcript with the flag set means
	// the conversation was fetched and is genuinely empty.
	Transcript         []model.Message
	TranscriptObserved bool

	ObservedAt time.Time
}

// Reconcile merges an observation into a run and derives the internal status.
// It is pure and idempotent: applying the same observation twice yields the
// same run. Status complete is monotonic and can only be reached through a
// confirmed pull request merge, never inferred from agent status alone.
func Reconcile(run model.Run, obs Observation) model.Run {
	if run.BranchName == "" && obs.BranchName != "" {
		run.BranchName = obs.BranchName
	}
	if obs.PRURL != "" {
		run.PRURL = obs.PRURL
	}
	if obs.TranscriptObserved {
		run.Transcript = obs.Transcript
	}
	if !obs.ObservedAt.IsZero() {
		run.LastSyncedAt = &obs.ObservedAt
	}

	if run.PRMerged || run.Status == model.RunStatusComplete {
		run.Status = model.RunStatusComplete
		run.PendingQuestion = ""
		return run
	}
	if run.Status == model.RunStatusSkipped {
		return run
	}

	// An agent message ending in a question mark takes priority over every
	// agent status: a finished agent that asked a question still needs a
	// human answer before its branch is worth reviewing.
	if q, ok := pendingQuestion(run.Transcript); ok {
		run.Status = model.RunStatusNeedsReview
		run.PendingQuestion = q
		return run
	}

	switch obs.AgentStatus {
	case gateway.AgentStatusCreating, gateway.AgentStatusRunning:
		run.Status = model.RunStatusInProgress
		run.PendingQuestion = ""
	case gateway.AgentStatusFinished:
		run.Status = model.RunStatusReadyToMerge
		run.PendingQuestion = ""
	case gateway.AgentStatusStopped:
		run.Status = model.RunStatusCancelled
		if run.PendingQuestion == "" {
			run.PendingQuestion = "Agent was stopped before finishing."
		}
	case gateway.AgentStatusFailed:
		run.Status = model.RunStatusNeedsReview
		run.PendingQuestion = failureNote(obs.Summary)
	case gateway.AgentStatusUnknown:
		// Unrecognized remote status, keep what we have.
	}

	return run
}

// MarkMerged records a confirmed pull request merge and moves the run to its
// terminal complete status.
func MarkMerged(run model.Run, mergedAt time.Time) model.Run {
	run.PRMerged = true
	if !mergedAt.IsZero() {
		run.MergedAt = &mergedAt
	}
	run.Status = model.RunStatusComplete
	run.PendingQuestion = ""
	return run
}

// MarkPRClosed records a pull request closed without merging. The run is
// treated as abandoned unless it already completed.
func MarkPRClosed(run model.Run) model.Run {
	if run.PRMerged || run.Status == model.RunStatusComplete {
		return run
	}
	run.PRClosed = true
	run.Status = model.RunStatusCancelled
	run.PendingQuestion = "Pull request was closed without merging."
	return run
}

func pendingQuestion(transcript []model.Message) (string, bool) {
	msg := model.LastAgentMessage(transcript)
	if msg == nil {
		return "", false
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" || !strings.HasSuffix(text, "?") {
		return "", false
	}
	return text, true
}

func failureNote(summary string) string {
	if s := strings.TrimSpace(summary); s != "" {
		return "Agent failed: " + s
	}
	return "Agent failed with an unknown error."
}
