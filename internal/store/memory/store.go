// Package memory holds an in-memory Store used by tests and single-process
// local runs.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/GrayGhostDev/leadflow/internal/domain"
	"github.com/GrayGhostDev/leadflow/internal/store"
)

type lease struct {
	owner     string
	expiresAt time.Time
}

// Store is a mutex-guarded in-memory implementation of store.Store.
type Store struct {
	mu          sync.Mutex
	leads       map[string]domain.Lead
	campaigns   map[string]domain.Campaign
	enrollments map[string]domain.Enrollment        // by pair key
	executions  map[string]domain.CampaignExecution // by pair key + step
	experiments map[string]domain.Experiment
	assignments map[string]domain.ExperimentAssignment // by experiment|subject
	results     map[string]domain.ExperimentResult     // by experiment|subject
	leases      map[string]lease
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		leads:       make(map[string]domain.Lead),
		campaigns:   make(map[string]domain.Campaign),
		enrollments: make(map[string]domain.Enrollment),
		executions:  make(map[string]domain.CampaignExecution),
		experiments: make(map[string]domain.Experiment),
		assignments: make(map[string]domain.ExperimentAssignment),
		results:     make(map[string]domain.ExperimentResult),
		leases:      make(map[string]lease),
	}
}

func pairKey(leadID, campaignID string) string { return leadID + "|" + campaignID }

func executionKey(leadID, campaignID string, stepIndex int) string {
	return pairKey(leadID, campaignID) + "|" + strconv.Itoa(stepIndex)
}

// CreateLead stores a new lead.
func (s *Store) CreateLead(_ context.Context, lead *domain.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[lead.ID]; ok {
		return domain.ErrConflict
	}
	s.leads[lead.ID] = *lead
	return nil
}

// GetLead returns a lead by ID.
func (s *Store) GetLead(_ context.Context, id string) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, domain.ErrNotFound
	}
	return lead, nil
}

// UpdateLead replaces a stored lead.
func (s *Store) UpdateLead(_ context.Context, lead *domain.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[lead.ID]; !ok {
		return domain.ErrNotFound
	}
	s.leads[lead.ID] = *lead
	return nil
}

// CreateCampaign stores a new campaign.
func (s *Store) CreateCampaign(_ context.Context, campaign *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[campaign.ID]; ok {
		return domain.ErrConflict
	}
	s.campaigns[campaign.ID] = *campaign
	return nil
}

// GetCampaign returns a campaign by ID.
func (s *Store) GetCampaign(_ context.Context, id string) (domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	campaign, ok := s.campaigns[id]
	if !ok {
		return domain.Campaign{}, domain.ErrNotFound
	}
	return campaign, nil
}

// UpdateCampaign replaces a stored campaign.
func (s *Store) UpdateCampaign(_ context.Context, campaign *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[campaign.ID]; !ok {
		return domain.ErrNotFound
	}
	s.campaigns[campaign.ID] = *campaign
	return nil
}

// CreateEnrollment stores a new (lead, campaign) pair.
func (s *Store) CreateEnrollment(_ context.Context, enrollment *domain.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := enrollment.Key()
	if _, ok := s.enrollments[key]; ok {
		return domain.ErrConflict
	}
	s.enrollments[key] = *enrollment
	return nil
}

// GetEnrollment returns the pair's enrollment.
func (s *Store) GetEnrollment(_ context.Context, leadID, campaignID string) (domain.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrollment, ok := s.enrollments[pairKey(leadID, campaignID)]
	if !ok {
		return domain.Enrollment{}, domain.ErrNotFound
	}
	return enrollment, nil
}

// UpdateEnrollment replaces the pair's enrollment.
func (s *Store) UpdateEnrollment(_ context.Context, enrollment *domain.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := enrollment.Key()
	if _, ok := s.enrollments[key]; !ok {
		return domain.ErrNotFound
	}
	s.enrollments[key] = *enrollment
	return nil
}

// EnrollmentsForLead returns every enrollment of the lead.
func (s *Store) EnrollmentsForLead(_ context.Context, leadID string) ([]domain.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Enrollment
	for _, e := range s.enrollments {
		if e.LeadID == leadID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CampaignID < out[j].CampaignID })
	return out, nil
}

// DueEnrollments returns active enrollments due at or before now, oldest
// first.
func (s *Store) DueEnrollments(_ context.Context, now time.Time, limit int) ([]domain.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []domain.Enrollment
	for _, e := range s.enrollments {
		if e.State.Active() && !e.NextActionAt.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextActionAt.Before(due[j].NextActionAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// CreateExecution stores a new execution audit row.
func (s *Store) CreateExecution(_ context.Context, execution *domain.CampaignExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := executionKey(execution.LeadID, execution.CampaignID, execution.StepIndex)
	if _, ok := s.executions[key]; ok {
		return domain.ErrConflict
	}
	s.executions[key] = *execution
	return nil
}

// GetExecution returns the audit row for one attempted step.
func (s *Store) GetExecution(_ context.Context, leadID, campaignID string, stepIndex int) (domain.CampaignExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	execution, ok := s.executions[executionKey(leadID, campaignID, stepIndex)]
	if !ok {
		return domain.CampaignExecution{}, domain.ErrNotFound
	}
	return execution, nil
}

// UpdateExecution replaces a stored execution row.
func (s *Store) UpdateExecution(_ context.Context, execution *domain.CampaignExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := executionKey(execution.LeadID, execution.CampaignID, execution.StepIndex)
	if _, ok := s.executions[key]; !ok {
		return domain.ErrNotFound
	}
	s.executions[key] = *execution
	return nil
}

// ExecutionsForPair returns the pair's executions ordered by step index.
func (s *Store) ExecutionsForPair(_ context.Context, leadID, campaignID string) ([]domain.CampaignExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CampaignExecution
	for _, e := range s.executions {
		if e.LeadID == leadID && e.CampaignID == campaignID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepIndex < out[j].StepIndex })
	return out, nil
}

// CreateExperiment stores a new experiment.
func (s *Store) CreateExperiment(_ context.Context, experiment *domain.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.experiments[experiment.ID]; ok {
		return domain.ErrConflict
	}
	s.experiments[experiment.ID] = *experiment
	return nil
}

// GetExperiment returns an experiment by ID.
func (s *Store) GetExperiment(_ context.Context, id string) (domain.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	experiment, ok := s.experiments[id]
	if !ok {
		return domain.Experiment{}, domain.ErrNotFound
	}
	return experiment, nil
}

// UpdateExperiment replaces a stored experiment.
func (s *Store) UpdateExperiment(_ context.Context, experiment *domain.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.experiments[experiment.ID]; !ok {
		return domain.ErrNotFound
	}
	s.experiments[experiment.ID] = *experiment
	return nil
}

// UpsertAssignment persists the audit copy of a deterministic assignment.
// A conflicting variant for the same subject is an integrity violation.
func (s *Store) UpsertAssignment(_ context.Context, assignment domain.ExperimentAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assignment.ExperimentID + "|" + assignment.SubjectID
	if existing, ok := s.assignments[key]; ok {
		if existing.VariantID != assignment.VariantID {
			return domain.ErrConflict
		}
		return nil
	}
	s.assignments[key] = assignment
	return nil
}

// GetAssignment returns the audit copy of an assignment.
func (s *Store) GetAssignment(_ context.Context, experimentID, subjectID string) (domain.ExperimentAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	assignment, ok := s.assignments[experimentID+"|"+subjectID]
	if !ok {
		return domain.ExperimentAssignment{}, domain.ErrNotFound
	}
	return assignment, nil
}

// UpsertResult records a subject's outcome, replacing any earlier result for
// the same subject.
func (s *Store) UpsertResult(_ context.Context, result domain.ExperimentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.ExperimentID+"|"+result.SubjectID] = result
	return nil
}

// ResultCounts tallies subjects and conversions per variant.
func (s *Store) ResultCounts(_ context.Context, experimentID string) (map[string]store.VariantCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]store.VariantCounts{}
	for _, r := range s.results {
		if r.ExperimentID != experimentID {
			continue
		}
		c := counts[r.VariantID]
		c.Subjects++
		if r.Converted {
			c.Conversions++
		}
		counts[r.VariantID] = c
	}
	return counts, nil
}

// AcquireLease takes or extends the pair lease. Expired leases are
// reclaimable by any owner.
func (s *Store) AcquireLease(_ context.Context, key, owner string, ttl time.Duration, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.leases[key]
	if ok && current.owner != owner && current.expiresAt.After(now) {
		return domain.ErrLeaseHeld
	}
	s.leases[key] = lease{owner: owner, expiresAt: now.Add(ttl)}
	return nil
}

// ReleaseLease frees the lease when the owner still holds it.
func (s *Store) ReleaseLease(_ context.Context, key, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.leases[key]; ok && current.owner == owner {
		delete(s.leases, key)
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }
