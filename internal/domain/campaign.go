package domain

import (
	"fmt"
	"time"
)

// CampaignStatus represents the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft    CampaignStatus = "draft"
	CampaignActive   CampaignStatus = "active"
	CampaignPaused   CampaignStatus = "paused"
	CampaignArchived CampaignStatus = "archived"
)

// SegmentRule is the enrollment predicate for a campaign. It is evaluated
// exactly once, at enrollment time, and never re-evaluated afterwards. The
// zero value matches every lead.
type SegmentRule struct {
	MinScore     int           `json:"min_score,omitempty"`
	Temperatures []Temperature `json:"temperatures,omitempty"`
	Attribute    string        `json:"attribute,omitempty"`
	Equals       string        `json:"equals,omitempty"`
}

// Matches reports whether a lead belongs to the campaign's segment.
func (r SegmentRule) Matches(lead Lead) bool {
	if lead.Score < r.MinScore {
		return false
	}
	if len(r.Temperatures) > 0 {
		found := false
		for _, t := range r.Temperatures {
			if lead.Temperature == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.Attribute != "" {
		value, ok := lead.Attributes[r.Attribute]
		if !ok {
			return false
		}
		if r.Equals != "" && fmt.Sprintf("%v", value) != r.Equals {
			return false
		}
	}
	return true
}

// CampaignStep is one ordered outreach step within a campaign.
type CampaignStep struct {
	Index        int           `json:"index"`
	Channel      Channel       `json:"channel"`
	Delay        time.Duration `json:"delay"`    // zero means the temperature tier default applies
	MinWait      time.Duration `json:"min_wait"` // minimum dwell in waiting_for_engagement
	TemplateRef  string        `json:"template_ref"`
	ExperimentID string        `json:"experiment_id,omitempty"`
	ExitOn       []EventType   `json:"exit_on,omitempty"`
}

// ExitsOn reports whether the given event type satisfies the step's exit
// condition.
func (s CampaignStep) ExitsOn(t EventType) bool {
	for _, e := range s.ExitOn {
		if e == t {
			return true
		}
	}
	return false
}

// CampaignMetrics aggregates campaign-level outcomes.
type CampaignMetrics struct {
	Enrolled  int `json:"enrolled"`
	Completed int `json:"completed"`
	Escalated int `json:"escalated"`
	Exited    int `json:"exited"`
}

// Campaign is an ordered sequence of outreach steps applied to enrolled leads.
type Campaign struct {
	ID        string
	Name      string
	Steps     []CampaignStep
	Segment   SegmentRule
	ExitOn    []EventType // campaign-level early-exit events
	Status    CampaignStatus
	Metrics   CampaignMetrics
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Step returns the step at the given index.
func (c Campaign) Step(index int) (CampaignStep, bool) {
	if index < 0 || index >= len(c.Steps) {
		return CampaignStep{}, false
	}
	return c.Steps[index], true
}

// ExitsEarlyOn reports whether the event type matches a campaign-level exit
// predicate. Unsubscribes always exit.
func (c Campaign) ExitsEarlyOn(t EventType) bool {
	if t == EventUnsubscribed {
		return true
	}
	for _, e := range c.ExitOn {
		if e == t {
			return true
		}
	}
	return false
}

// Validate checks authoring-time campaign invariants.
func (c Campaign) Validate() error {
	if c.Name == "" {
		return &ValidationError{Field: "name", Reason: "campaign name is required"}
	}
	if len(c.Steps) == 0 {
		return &ValidationError{Field: "steps", Reason: "campaign needs at least one step"}
	}
	for i, step := range c.Steps {
		if step.Index != i {
			return &ValidationError{Field: "steps", Reason: fmt.Sprintf("step %d has index %d; indices must be sequential", i, step.Index)}
		}
		if !KnownChannels[step.Channel] {
			return &ValidationError{Field: "steps", Reason: fmt.Sprintf("step %d has unknown channel %q", i, step.Channel)}
		}
		if step.TemplateRef == "" {
			return &ValidationError{Field: "steps", Reason: fmt.Sprintf("step %d is missing a template reference", i)}
		}
		if step.Delay < 0 || step.MinWait < 0 {
			return &ValidationError{Field: "steps", Reason: fmt.Sprintf("step %d has a negative duration", i)}
		}
	}
	return nil
}
