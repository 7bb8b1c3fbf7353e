// Package cadence decides when and on which channel a lead is touched next.
// It never errors on missing history: absent data degrades to tier defaults.
package cadence

import (
	"time"

	"go.uber.org/zap"

	"github.com/GrayGhostDev/leadflow/internal/domain"
)

// DecisionKind classifies a cadence decision.
type DecisionKind string

const (
	// DecisionTouch schedules the next outreach.
	DecisionTouch DecisionKind = "touch"
	// DecisionHold defers outreach because the lead is oversaturated.
	DecisionHold DecisionKind = "hold"
	// DecisionHandoff requests a human takeover; terminal for automation on
	// the pair until manually cleared.
	DecisionHandoff DecisionKind = "handoff"
)

// Decision is the cadence engine's answer for one (lead, campaign) pair.
type Decision struct {
	Kind    DecisionKind
	At      time.Time      // when to touch (DecisionTouch) or retry (DecisionHold)
	Channel domain.Channel // only set for DecisionTouch
	Reason  string
}

// Config tunes the oversaturation guard.
type Config struct {
	// MaxTouches within Window forces a hold.
	MaxTouches int
	Window     time.Duration
}

// DefaultConfig is the 3-touches-per-7-days guard.
func DefaultConfig() Config {
	return Config{MaxTouches: 3, Window: 7 * 24 * time.Hour}
}

// tierDelay is the base next-touch delay per temperature band. Each band's
// range resolves to its deterministic lower bound.
func tierDelay(t domain.Temperature) time.Duration {
	switch t {
	case domain.TemperatureHot:
		return 24 * time.Hour
	case domain.TemperatureWarm:
		return 3 * 24 * time.Hour
	case domain.TemperatureCool:
		return 7 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// Engine computes next-touch timing and channel.
type Engine struct {
	config Config
	log    *zap.Logger
}

// NewEngine creates a cadence engine.
func NewEngine(config Config, log *zap.Logger) *Engine {
	if config.MaxTouches <= 0 {
		config.MaxTouches = DefaultConfig().MaxTouches
	}
	if config.Window <= 0 {
		config.Window = DefaultConfig().Window
	}
	return &Engine{config: config, log: log}
}

// Next decides the pair's next touch given the lead's temperature, the
// step's configuration and the engagement history. Precedence: a reply since
// the last touch always wins (handoff), then the oversaturation guard
// (hold), then timing and channel selection (touch).
func (e *Engine) Next(lead domain.Lead, enrollment domain.Enrollment, step domain.CampaignStep, history []domain.EngagementEvent, now time.Time) Decision {
	if repliedSince(history, enrollment.ReplyWatermark()) {
		e.log.Info("Reply observed; requesting human handoff",
			zap.String("lead_id", lead.ID),
			zap.String("campaign_id", enrollment.CampaignID))
		return Decision{Kind: DecisionHandoff, Reason: "reply observed since last touch"}
	}

	if until, saturated := e.oversaturatedUntil(history, now); saturated {
		e.log.Info("Lead oversaturated; holding",
			zap.String("lead_id", lead.ID),
			zap.String("campaign_id", enrollment.CampaignID),
			zap.Time("hold_until", until))
		return Decision{Kind: DecisionHold, At: until, Reason: "touch frequency guard"}
	}

	delay := step.Delay
	if delay <= 0 {
		delay = tierDelay(lead.Temperature)
	}

	anchor := enrollment.LastTouchAt
	if anchor.IsZero() {
		anchor = now
		// The first step fires immediately; tier delays pace the follow-ups.
		delay = 0
	}

	at := anchor.Add(delay)
	if at.Before(now) {
		at = now
	}

	return Decision{
		Kind:    DecisionTouch,
		At:      at,
		Channel: e.pickChannel(step, history),
	}
}

// oversaturatedUntil reports whether the trailing window already carries the
// maximum touches, and if so when the pressure lifts (the oldest in-window
// touch falling out of the window).
func (e *Engine) oversaturatedUntil(history []domain.EngagementEvent, now time.Time) (time.Time, bool) {
	cutoff := now.Add(-e.config.Window)
	var inWindow []time.Time
	for _, event := range history {
		if event.Type == domain.EventSent && !event.OccurredAt().Before(cutoff) {
			inWindow = append(inWindow, event.OccurredAt())
		}
	}
	if len(inWindow) < e.config.MaxTouches {
		return time.Time{}, false
	}
	oldest := inWindow[0]
	for _, at := range inWindow[1:] {
		if at.Before(oldest) {
			oldest = at
		}
	}
	return oldest.Add(e.config.Window), true
}

// pickChannel prefers the lead's historically highest-reply channel when any
// reply exists; otherwise the step default.
func (e *Engine) pickChannel(step domain.CampaignStep, history []domain.EngagementEvent) domain.Channel {
	replies := map[domain.Channel]int{}
	for _, event := range history {
		if event.Type == domain.EventReplied {
			replies[event.Channel]++
		}
	}
	if len(replies) == 0 {
		return step.Channel
	}

	best := step.Channel
	bestCount := 0
	for channel, count := range replies {
		if count > bestCount || (count == bestCount && channel == step.Channel) {
			best = channel
			bestCount = count
		}
	}
	return best
}

func repliedSince(history []domain.EngagementEvent, watermark time.Time) bool {
	for _, event := range history {
		if event.Type == domain.EventReplied && event.OccurredAt().After(watermark) {
			return true
		}
	}
	return false
}
