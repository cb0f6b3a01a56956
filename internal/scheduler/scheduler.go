// Package scheduler periodically reconciles in-flight change requests, so
// runs converge even when webhooks are lost or never configured.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/guy-hartstein/syncforge/internal/model"
	"github.com/guy-hartstein/syncforge/internal/orchestrator"
)

// Lister enumerates change requests. *storage.DB satisfies it.
type Lister interface {
	ListChangeRequests(ctx context.Context) ([]model.ChangeRequest, error)
}

// Syncer reconciles one change request. *orchestrator.Orchestrator
// satisfies it.
type Syncer interface {
	SyncAllAgents(ctx context.Context, changeRequestID uuid.UUID) (orchestrator.SyncResult, error)
}

// Scheduler drives periodic syncs on a fixed interval.
type Scheduler struct {
	lister   Lister
	syncer   Syncer
	interval time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
}

// New creates a Scheduler syncing every interval.
func New(lister Lister, syncer Syncer, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		lister:   lister,
		syncer:   syncer,
		interval: interval,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start begins the periodic sync loop. Ticks skip rather than stack: cron
// runs jobs in their own goroutines, but a full pass is bounded by the
// interval through the per-pass context deadline.
func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("scheduler: schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "interval", s.interval.String())
	return nil
}

// Stop halts the loop and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	if err := s.SyncInProgress(ctx); err != nil {
		s.logger.Error("periodic sync failed", "error", err)
	}
}

// SyncInProgress reconciles every change request still in progress. Failures
// on one change request never block the rest.
func (s *Scheduler) SyncInProgress(ctx context.Context) error {
	crs, err := s.lister.ListChangeRequests(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list change requests: %w", err)
	}
	for _, cr := range crs {
		if cr.Status != model.ChangeRequestStatusInProgress {
			continue
		}
		res, err := s.syncer.SyncAllAgents(ctx, cr.ID)
		if err != nil {
			s.logger.Error("sync change request", "change_request_id", cr.ID, "error", err)
			continue
		}
		s.logger.Debug("synced change request",
			"change_request_id", cr.ID, "synced", res.Synced, "failed", res.Failed, "completed", res.Completed)
	}
	return nil
}
