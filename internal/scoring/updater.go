package scoring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GrayGhostDev/leadflow/internal/domain"
)

// LeadStore is the slice of the entity store the updater needs.
type LeadStore interface {
	GetLead(ctx context.Context, id string) (domain.Lead, error)
	UpdateLead(ctx context.Context, lead *domain.Lead) error
}

// HistorySource serves a lead's engagement history.
type HistorySource interface {
	History(ctx context.Context, leadID string, channel domain.Channel) ([]domain.EngagementEvent, error)
}

// Updater recomputes a lead's score whenever a new engagement event lands.
// It subscribes to the tracker rather than polling.
type Updater struct {
	engine *Engine
	leads  LeadStore
	events HistorySource
	now    func() time.Time
	log    *zap.Logger
}

// NewUpdater creates a score updater.
func NewUpdater(engine *Engine, leads LeadStore, events HistorySource, now func() time.Time, log *zap.Logger) *Updater {
	if now == nil {
		now = time.Now
	}
	return &Updater{engine: engine, leads: leads, events: events, now: now, log: log}
}

// OnEvent is the tracker subscription hook. Failures are logged, never
// propagated: a scoring hiccup must not stall event ingestion.
func (u *Updater) OnEvent(ctx context.Context, event domain.EngagementEvent) {
	if _, err := u.Rescore(ctx, event.LeadID); err != nil {
		u.log.Warn("Failed to rescore lead on event",
			zap.String("lead_id", event.LeadID),
			zap.String("event_id", event.EventID),
			zap.Error(err))
	}
}

// Rescore recomputes the lead's score from its full event history and, when
// the score changed, appends a history snapshot and persists the lead.
func (u *Updater) Rescore(ctx context.Context, leadID string) (Result, error) {
	lead, err := u.leads.GetLead(ctx, leadID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load lead: %w", err)
	}

	history, err := u.events.History(ctx, leadID, "")
	if err != nil {
		return Result{}, fmt.Errorf("failed to load engagement history: %w", err)
	}

	now := u.now()
	result := u.engine.Score(lead, history, now)
	if !lead.ApplyScore(result.Score, result.Breakdown, now) {
		return result, nil
	}

	if err := u.leads.UpdateLead(ctx, &lead); err != nil {
		return Result{}, fmt.Errorf("failed to persist rescored lead: %w", err)
	}

	u.log.Info("Lead rescored",
		zap.String("lead_id", leadID),
		zap.Int("score", result.Score),
		zap.String("temperature", string(result.Temperature)))

	return result, nil
}
