package domain

import "time"

// ExecutionStatus is the delivery status of one attempted campaign step.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionSent      ExecutionStatus = "sent"
	ExecutionDelivered ExecutionStatus = "delivered"
	ExecutionEngaged   ExecutionStatus = "engaged"
	ExecutionSkipped   ExecutionStatus = "skipped"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the execution has been attempted. Re-processing a
// step whose execution is terminal must be a no-op so restarts never
// double-send.
func (s ExecutionStatus) Terminal() bool {
	return s != "" && s != ExecutionPending
}

// CampaignExecution is one immutable audit row per attempted (lead, campaign,
// step). Step indices strictly increase over time for a given pair.
type CampaignExecution struct {
	ID          string
	LeadID      string
	CampaignID  string
	StepIndex   int
	Channel     Channel
	ScheduledAt time.Time
	ExecutedAt  time.Time
	Status      ExecutionStatus
	VariantID   string
	DeliveryID  string
	Attempts    int
	LastError   string
}
