package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DueCampaignSender is what the worker needs from the orchestrator
type DueCampaignSender interface {
	SendDueCampaigns(ctx context.Context, now time.Time) ([]DueCampaignResult, error)
}

// PendingWelcomeSender is what the worker needs from the waitlist service
type PendingWelcomeSender interface {
	SendPendingWelcomes(ctx context.Context) (*WelcomeBatchResult, error)
}

// Worker is the periodic job invoker: every Interval it sends due scheduled
// campaigns. When Welcomes is set it also sends welcome emails still owed;
// a rejected welcome is then attempted again on every tick.
type Worker struct {
	Campaigns DueCampaignSender
	Welcomes  PendingWelcomeSender
	Interval  time.Duration
	Logger    *zap.Logger
	Now       func() time.Time
}

// Constructor
func NewWorker(campaigns DueCampaignSender, welcomes PendingWelcomeSender, interval time.Duration, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		Campaigns: campaigns,
		Welcomes:  welcomes,
		Interval:  interval,
		Logger:    logger,
	}
}

// Start runs one pass immediately and then one per tick until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single pass. Errors are logged; the next tick retries.
func (w *Worker) RunOnce(ctx context.Context) {
	now := time.Now().UTC()
	if w.Now != nil {
		now = w.Now()
	}

	if w.Campaigns != nil {
		results, err := w.Campaigns.SendDueCampaigns(ctx, now)
		if err != nil {
			w.Logger.Error("failed to list due campaigns", zap.Error(err))
		} else if len(results) > 0 {
			w.Logger.Info("due campaigns processed", zap.Int("count", len(results)))
		}
	}

	if w.Welcomes != nil {
		if _, err := w.Welcomes.SendPendingWelcomes(ctx); err != nil {
			w.Logger.Error("failed to send pending welcome emails", zap.Error(err))
		}
	}
}
