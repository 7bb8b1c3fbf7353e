// Package tracker is the append-only engagement log: the single entrypoint
// every observed interaction flows through, and the source of truth for
// scoring decay and cadence decisions.
package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GrayGhostDev/leadflow/internal/domain"
	"github.com/GrayGhostDev/leadflow/internal/repository"
)

// Subscriber reacts to newly recorded events. Subscribers are notified after
// the append succeeds, off the recording goroutine; they must not be required
// for correctness of the log.
type Subscriber func(ctx context.Context, event domain.EngagementEvent)

// Config tunes the tracker.
type Config struct {
	// MaxClockSkew is how far in the future an event timestamp may sit
	// before it is rejected.
	MaxClockSkew time.Duration
}

// Tracker records engagement events with idempotent natural-key dedup and a
// clock-skew guard, then fans out to subscribers.
type Tracker struct {
	repo   repository.EventRepository
	config Config
	now    func() time.Time
	log    *zap.Logger

	mu          sync.RWMutex
	subscribers []Subscriber
	pending     sync.WaitGroup
}

// New creates a tracker over the given event repository.
func New(repo repository.EventRepository, config Config, now func() time.Time, log *zap.Logger) *Tracker {
	if config.MaxClockSkew <= 0 {
		config.MaxClockSkew = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{repo: repo, config: config, now: now, log: log}
}

// Subscribe registers a hook called for every newly recorded event.
// Downstream consumers react to the log instead of polling it.
func (t *Tracker) Subscribe(fn Subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers = append(t.subscribers, fn)
}

// Record validates and appends one engagement event. Re-recording the same
// natural key is an idempotent no-op: the stored event is returned with no
// error and subscribers are not re-notified.
func (t *Tracker) Record(ctx context.Context, event domain.EngagementEvent) (domain.EngagementEvent, error) {
	if event.LeadID == "" {
		return domain.EngagementEvent{}, &domain.ValidationError{Field: "lead_id", Reason: "lead id is required"}
	}
	if !domain.KnownChannels[event.Channel] {
		return domain.EngagementEvent{}, &domain.ValidationError{Field: "channel", Reason: "unknown channel"}
	}
	if !domain.KnownEventTypes[event.Type] {
		return domain.EngagementEvent{}, &domain.ValidationError{Field: "type", Reason: "unknown event type"}
	}

	now := t.now()
	if event.Timestamp == 0 {
		event.Timestamp = now.Unix()
	}
	if event.OccurredAt().After(now.Add(t.config.MaxClockSkew)) {
		return domain.EngagementEvent{}, &domain.ValidationError{Field: "timestamp", Reason: "timestamp is too far in the future"}
	}

	if event.EventID == "" {
		event.EventID = domain.ComputeEventID(event.LeadID, event.Channel, event.Type, event.CampaignID, event.Timestamp)
	}

	exists, err := t.repo.Exists(ctx, event.EventID)
	if err != nil {
		return domain.EngagementEvent{}, err
	}
	if exists {
		t.log.Debug("Duplicate event ignored",
			zap.String("event_id", event.EventID),
			zap.String("lead_id", event.LeadID))
		return event, nil
	}

	event.RecordedAt = now.UTC()
	if err := t.repo.Insert(ctx, &event); err != nil {
		return domain.EngagementEvent{}, err
	}

	t.log.Info("Engagement event recorded",
		zap.String("event_id", event.EventID),
		zap.String("lead_id", event.LeadID),
		zap.String("channel", string(event.Channel)),
		zap.String("event_type", string(event.Type)))

	t.notify(ctx, event)
	return event, nil
}

// notify fans the event out off the recording path: a slow subscriber must
// never stall Record or the consumer's ack loop. Subscribers for one event
// still run in registration order.
func (t *Tracker) notify(ctx context.Context, event domain.EngagementEvent) {
	t.mu.RLock()
	subscribers := make([]Subscriber, len(t.subscribers))
	copy(subscribers, t.subscribers)
	t.mu.RUnlock()

	// Detached from the caller's context: a request that completes right
	// after Record returns must not cancel reactions in flight.
	notifyCtx := context.WithoutCancel(ctx)
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		for _, fn := range subscribers {
			fn(notifyCtx, event)
		}
	}()
}

// Drain waits for subscriber notifications in flight; used on shutdown and
// in tests.
func (t *Tracker) Drain() {
	t.pending.Wait()
}

// History returns a lead's events, optionally filtered to one channel.
func (t *Tracker) History(ctx context.Context, leadID string, channel domain.Channel) ([]domain.EngagementEvent, error) {
	return t.repo.History(ctx, repository.HistoryQuery{LeadID: leadID, Channel: channel})
}

// TouchesSince counts outbound touches (sent events) for a lead at or after
// the given instant.
func (t *Tracker) TouchesSince(ctx context.Context, leadID string, since time.Time) (int, error) {
	events, err := t.repo.History(ctx, repository.HistoryQuery{LeadID: leadID, From: since.Unix()})
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range events {
		if e.Type == domain.EventSent {
			count++
		}
	}
	return count, nil
}

// LastEngagementAt returns the instant of the lead's most recent engagement
// (open, click or reply), or the zero time when none exists.
func (t *Tracker) LastEngagementAt(ctx context.Context, leadID string) (time.Time, error) {
	events, err := t.repo.History(ctx, repository.HistoryQuery{LeadID: leadID})
	if err != nil {
		return time.Time{}, err
	}
	var last time.Time
	for _, e := range events {
		if e.Type.IsEngagement() && e.OccurredAt().After(last) {
			last = e.OccurredAt()
		}
	}
	return last, nil
}

// RepliesByChannel counts replies per channel for a lead, feeding the
// cadence engine's channel preference.
func (t *Tracker) RepliesByChannel(ctx context.Context, leadID string) (map[domain.Channel]int, error) {
	events, err := t.repo.History(ctx, repository.HistoryQuery{LeadID: leadID})
	if err != nil {
		return nil, err
	}
	replies := map[domain.Channel]int{}
	for _, e := range events {
		if e.Type == domain.EventReplied {
			replies[e.Channel]++
		}
	}
	return replies, nil
}

// OpensByHour buckets a lead's opens by UTC hour of day, a send-time signal.
func (t *Tracker) OpensByHour(ctx context.Context, leadID string) (map[int]int, error) {
	events, err := t.repo.History(ctx, repository.HistoryQuery{LeadID: leadID})
	if err != nil {
		return nil, err
	}
	opens := map[int]int{}
	for _, e := range events {
		if e.Type == domain.EventOpened {
			opens[e.OccurredAt().Hour()]++
		}
	}
	return opens, nil
}
