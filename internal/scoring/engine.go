package scoring

import (
	"time"

	"go.uber.org/zap"

	"github.com/GrayGhostDev/leadflow/internal/domain"
)

// Category groups scoring factors for per-category point caps.
type Category string

const (
	CategoryDemographic   Category = "demographic"
	CategoryBehavioral    Category = "behavioral"
	CategoryQualification Category = "qualification"
)

// categoryCaps bounds the points any one category may contribute.
var categoryCaps = map[Category]int{
	CategoryDemographic:   25,
	CategoryBehavioral:    35,
	CategoryQualification: 40,
}

// Input is the typed view a factor evaluates against. Missing attributes and
// empty histories contribute zero by contract; factors never fail.
type Input struct {
	Lead   domain.Lead
	Events []domain.EngagementEvent
}

// Attribute returns the lead attribute as a string, or "" when absent.
func (in Input) Attribute(key string) (string, bool) {
	v, ok := in.Lead.Attributes[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// NumericAttribute returns the lead attribute as a float64, or 0 when absent
// or not numeric.
func (in Input) NumericAttribute(key string) (float64, bool) {
	v, ok := in.Lead.Attributes[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// EventCountSince counts events of the given type observed at or after since.
func (in Input) EventCountSince(t domain.EventType, since time.Time) int {
	count := 0
	for _, e := range in.Events {
		if e.Type == t && !e.OccurredAt().Before(since) {
			count++
		}
	}
	return count
}

// LastEventAt returns the latest occurrence of the given event type, or the
// zero time when none exists.
func (in Input) LastEventAt(t domain.EventType) time.Time {
	var last time.Time
	for _, e := range in.Events {
		if e.Type == t && e.OccurredAt().After(last) {
			last = e.OccurredAt()
		}
	}
	return last
}

// lastEngagementAt returns the latest engagement-type event, or zero.
func (in Input) lastEngagementAt() time.Time {
	var last time.Time
	for _, e := range in.Events {
		if e.Type.IsEngagement() && e.OccurredAt().After(last) {
			last = e.OccurredAt()
		}
	}
	return last
}

// Factor is one named scoring rule: a pure predicate plus a signed point
// delta, optionally decaying with idle time.
type Factor struct {
	Name     string
	Category Category
	Points   int
	Applies  func(Input) bool
	// Decays marks the factor's contribution as eroding with time since the
	// lead's last qualifying engagement.
	Decays bool
}

// decayPenalty maps idle time to the points lost: 30 days idle costs 10,
// 60 days costs 20, 90 or more costs 30.
func decayPenalty(idle time.Duration) int {
	days := int(idle.Hours() / 24)
	switch {
	case days >= 90:
		return 30
	case days >= 60:
		return 20
	case days >= 30:
		return 10
	default:
		return 0
	}
}

// Result is one computed score with its per-factor breakdown.
type Result struct {
	Score       int
	Temperature domain.Temperature
	Breakdown   []domain.FactorContribution
}

// Engine computes lead scores from a fixed factor table. Decay is recomputed
// lazily on every read; nothing runs on a timer.
type Engine struct {
	factors []Factor
	log     *zap.Logger
}

// NewEngine creates a scoring engine over the given factor table.
func NewEngine(factors []Factor, log *zap.Logger) *Engine {
	return &Engine{factors: factors, log: log}
}

// Score evaluates every factor against the lead and its event history.
// Per-category sums are capped (demographic 25, behavioral 35, qualification
// 40) and the total is clamped to [0, 100]. Missing data contributes zero;
// Score never fails.
func (e *Engine) Score(lead domain.Lead, events []domain.EngagementEvent, now time.Time) Result {
	in := Input{Lead: lead, Events: events}
	lastEngagement := in.lastEngagementAt()

	totals := map[Category]int{}
	var breakdown []domain.FactorContribution

	for _, f := range e.factors {
		if f.Applies == nil || !f.Applies(in) {
			continue
		}
		points := f.Points
		if f.Decays && points > 0 {
			anchor := lastEngagement
			if anchor.IsZero() {
				anchor = lead.CreatedAt
			}
			if !anchor.IsZero() {
				points -= decayPenalty(now.Sub(anchor))
				if points < 0 {
					points = 0
				}
			}
		}
		if points == 0 {
			continue
		}
		totals[f.Category] += points
		breakdown = append(breakdown, domain.FactorContribution{
			Factor:   f.Name,
			Category: string(f.Category),
			Points:   points,
		})
	}

	raw := 0
	for category, sum := range totals {
		limit, ok := categoryCaps[category]
		if ok && sum > limit {
			e.log.Debug("Category contribution capped",
				zap.String("lead_id", lead.ID),
				zap.String("category", string(category)),
				zap.Int("raw", sum),
				zap.Int("cap", limit))
			sum = limit
		}
		raw += sum
	}

	score := domain.ClampScore(raw)
	return Result{
		Score:       score,
		Temperature: domain.TemperatureFor(score),
		Breakdown:   breakdown,
	}
}
