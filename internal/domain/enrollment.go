package domain

import "time"

// EnrollmentState is the orchestration state of one (lead, campaign) pair.
type EnrollmentState string

const (
	StateNotStarted           EnrollmentState = "not_started"
	StateStepPending          EnrollmentState = "step_pending"
	StateStepExecuting        EnrollmentState = "step_executing"
	StateWaitingForEngagement EnrollmentState = "waiting_for_engagement"
	StateCompleted            EnrollmentState = "completed"
	StateEscalated            EnrollmentState = "escalated"
	StateExitedEarly          EnrollmentState = "exited_early"
)

// Active reports whether automation may still act on the pair. Escalated
// pairs stay inactive until manually cleared.
func (s EnrollmentState) Active() bool {
	switch s {
	case StateNotStarted, StateStepPending, StateStepExecuting, StateWaitingForEngagement:
		return true
	}
	return false
}

// Terminal reports whether the pair has finished for good.
func (s EnrollmentState) Terminal() bool {
	return s == StateCompleted || s == StateExitedEarly
}

// Enrollment tracks one lead's progress through one campaign.
type Enrollment struct {
	LeadID       string
	CampaignID   string
	State        EnrollmentState
	StepIndex    int
	NextActionAt time.Time // when the orchestrator should next look at this pair
	LastTouchAt  time.Time // zero until the first touch is dispatched
	EnrolledAt   time.Time
	EscalatedAt  time.Time
	ExitReason   string
	UpdatedAt    time.Time
}

// Key returns the lease key for the pair.
func (e Enrollment) Key() string {
	return e.LeadID + "|" + e.CampaignID
}

// ReplyWatermark is the instant replies are measured against when deciding
// whether to hand the pair off to a human: the last touch, or enrollment if
// nothing has been sent yet.
func (e Enrollment) ReplyWatermark() time.Time {
	if e.LastTouchAt.IsZero() {
		return e.EnrolledAt
	}
	return e.LastTouchAt
}
