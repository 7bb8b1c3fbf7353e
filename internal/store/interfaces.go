// Package store defines the persistence interfaces for the engine's
// entities: leads, campaigns, enrollments, executions, experiments and the
// per-pair transition leases.
package store

import (
	"context"
	"time"

	"github.com/GrayGhostDev/leadflow/internal/domain"
)

// VariantCounts are per-variant result tallies for experiment analysis.
type VariantCounts struct {
	Subjects    int
	Conversions int
}

// LeadStore persists leads. Leads are never deleted, only archived.
type LeadStore interface {
	CreateLead(ctx context.Context, lead *domain.Lead) error
	GetLead(ctx context.Context, id string) (domain.Lead, error)
	UpdateLead(ctx context.Context, lead *domain.Lead) error
}

// CampaignStore persists campaigns.
type CampaignStore interface {
	CreateCampaign(ctx context.Context, campaign *domain.Campaign) error
	GetCampaign(ctx context.Context, id string) (domain.Campaign, error)
	UpdateCampaign(ctx context.Context, campaign *domain.Campaign) error
}

// EnrollmentStore persists (lead, campaign) state-machine rows.
type EnrollmentStore interface {
	// CreateEnrollment fails with ErrConflict when the pair already exists.
	CreateEnrollment(ctx context.Context, enrollment *domain.Enrollment) error
	GetEnrollment(ctx context.Context, leadID, campaignID string) (domain.Enrollment, error)
	UpdateEnrollment(ctx context.Context, enrollment *domain.Enrollment) error
	// EnrollmentsForLead returns every enrollment of the lead.
	EnrollmentsForLead(ctx context.Context, leadID string) ([]domain.Enrollment, error)
	// DueEnrollments returns active enrollments whose next action is due at
	// or before now, oldest first, bounded by limit.
	DueEnrollments(ctx context.Context, now time.Time, limit int) ([]domain.Enrollment, error)
}

// ExecutionStore persists campaign-step execution audit rows.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, execution *domain.CampaignExecution) error
	GetExecution(ctx context.Context, leadID, campaignID string, stepIndex int) (domain.CampaignExecution, error)
	UpdateExecution(ctx context.Context, execution *domain.CampaignExecution) error
	ExecutionsForPair(ctx context.Context, leadID, campaignID string) ([]domain.CampaignExecution, error)
}

// ExperimentStore persists experiments, audit copies of deterministic
// assignments, and per-subject results.
type ExperimentStore interface {
	CreateExperiment(ctx context.Context, experiment *domain.Experiment) error
	GetExperiment(ctx context.Context, id string) (domain.Experiment, error)
	UpdateExperiment(ctx context.Context, experiment *domain.Experiment) error
	// UpsertAssignment is idempotent for identical rows; persisting a
	// different variant for the same (experiment, subject) fails with
	// ErrConflict and never overwrites the stored row.
	UpsertAssignment(ctx context.Context, assignment domain.ExperimentAssignment) error
	GetAssignment(ctx context.Context, experimentID, subjectID string) (domain.ExperimentAssignment, error)
	// UpsertResult replaces any earlier result for the same subject.
	UpsertResult(ctx context.Context, result domain.ExperimentResult) error
	// ResultCounts tallies subjects and conversions per variant.
	ResultCounts(ctx context.Context, experimentID string) (map[string]VariantCounts, error)
}

// LeaseStore serializes per-pair transitions. A lease held past its expiry
// is reclaimable by another owner.
type LeaseStore interface {
	// AcquireLease fails with ErrLeaseHeld when another owner holds an
	// unexpired lease on the key. Re-acquiring one's own lease extends it.
	AcquireLease(ctx context.Context, key, owner string, ttl time.Duration, now time.Time) error
	// ReleaseLease is a no-op when the owner no longer holds the lease.
	ReleaseLease(ctx context.Context, key, owner string) error
}

// Store is the full entity-store surface required by the engine.
type Store interface {
	LeadStore
	CampaignStore
	EnrollmentStore
	ExecutionStore
	ExperimentStore
	LeaseStore
	Close() error
}
