// Package sqlite implements the entity store over a single SQLite file, so
// one worker process carries its whole orchestration state without an
// external database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/GrayGhostDev/leadflow/internal/domain"
	"github.com/GrayGhostDev/leadflow/internal/store"
)

// toMillis normalizes timestamps into millisecond precision for storage.
// The zero time maps to 0.
func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
// 0 maps back to the zero time.
func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// Store implements store.Store over SQLite.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens the SQLite store and applies the schema.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	s := &Store{db: db, log: log}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("SQLite store opened", zap.String("dsn", dsn))
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS leads (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	company TEXT NOT NULL,
	attributes_json TEXT NOT NULL,
	score INTEGER NOT NULL,
	temperature TEXT NOT NULL,
	score_history_json TEXT NOT NULL,
	archived INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS campaigns (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	steps_json TEXT NOT NULL,
	segment_json TEXT NOT NULL,
	exit_on_json TEXT NOT NULL,
	status TEXT NOT NULL,
	metrics_json TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS enrollments (
	lead_id TEXT NOT NULL,
	campaign_id TEXT NOT NULL,
	state TEXT NOT NULL,
	step_index INTEGER NOT NULL,
	next_action_at INTEGER NOT NULL,
	last_touch_at INTEGER NOT NULL,
	enrolled_at INTEGER NOT NULL,
	escalated_at INTEGER NOT NULL,
	exit_reason TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (lead_id, campaign_id)
);
CREATE INDEX IF NOT EXISTS idx_enrollments_due ON enrollments (state, next_action_at);
CREATE TABLE IF NOT EXISTS executions (
	id TEXT NOT NULL,
	lead_id TEXT NOT NULL,
	campaign_id TEXT NOT NULL,
	step_index INTEGER NOT NULL,
	channel TEXT NOT NULL,
	scheduled_at INTEGER NOT NULL,
	executed_at INTEGER NOT NULL,
	status TEXT NOT NULL,
	variant_id TEXT NOT NULL,
	delivery_id TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	last_error TEXT NOT NULL,
	PRIMARY KEY (lead_id, campaign_id, step_index)
);
CREATE TABLE IF NOT EXISTS experiments (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	metric TEXT NOT NULL,
	variants_json TEXT NOT NULL,
	min_sample_size INTEGER NOT NULL,
	significance_level REAL NOT NULL,
	status TEXT NOT NULL,
	winner TEXT NOT NULL,
	winner_source TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	completed_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS experiment_assignments (
	experiment_id TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	variant_id TEXT NOT NULL,
	assigned_at INTEGER NOT NULL,
	PRIMARY KEY (experiment_id, subject_id)
);
CREATE TABLE IF NOT EXISTS experiment_results (
	experiment_id TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	variant_id TEXT NOT NULL,
	converted INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL,
	PRIMARY KEY (experiment_id, subject_id)
);
CREATE TABLE IF NOT EXISTS leases (
	key TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return nil
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal column: %w", err)
	}
	return string(data), nil
}

func unmarshal(data string, v any) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("failed to unmarshal column: %w", err)
	}
	return nil
}

// CreateLead stores a new lead.
func (s *Store) CreateLead(ctx context.Context, lead *domain.Lead) error {
	attributes, err := marshal(lead.Attributes)
	if err != nil {
		return err
	}
	history, err := marshal(lead.ScoreHistory)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO leads (id, email, company, attributes_json, score, temperature, score_history_json, archived, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, lead.ID, lead.Email, lead.Company, attributes, lead.Score, string(lead.Temperature), history, boolToInt(lead.Archived), toMillis(lead.CreatedAt), toMillis(lead.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("failed to insert lead: %w", err)
	}
	return nil
}

// GetLead returns a lead by ID.
func (s *Store) GetLead(ctx context.Context, id string) (domain.Lead, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, company, attributes_json, score, temperature, score_history_json, archived, created_at, updated_at
FROM leads WHERE id = ?
`, id)

	var lead domain.Lead
	var attributes, temperature, history string
	var archived int
	var createdAt, updatedAt int64
	err := row.Scan(&lead.ID, &lead.Email, &lead.Company, &attributes, &lead.Score, &temperature, &history, &archived, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Lead{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Lead{}, fmt.Errorf("failed to get lead: %w", err)
	}
	if err := unmarshal(attributes, &lead.Attributes); err != nil {
		return domain.Lead{}, err
	}
	if err := unmarshal(history, &lead.ScoreHistory); err != nil {
		return domain.Lead{}, err
	}
	lead.Temperature = domain.Temperature(temperature)
	lead.Archived = archived != 0
	lead.CreatedAt = fromMillis(createdAt)
	lead.UpdatedAt = fromMillis(updatedAt)
	return lead, nil
}

// UpdateLead replaces a stored lead.
func (s *Store) UpdateLead(ctx context.Context, lead *domain.Lead) error {
	attributes, err := marshal(lead.Attributes)
	if err != nil {
		return err
	}
	history, err := marshal(lead.ScoreHistory)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
UPDATE leads SET email = ?, company = ?, attributes_json = ?, score = ?, temperature = ?, score_history_json = ?, archived = ?, updated_at = ?
WHERE id = ?
`, lead.Email, lead.Company, attributes, lead.Score, string(lead.Temperature), history, boolToInt(lead.Archived), toMillis(lead.UpdatedAt), lead.ID)
	if err != nil {
		return fmt.Errorf("failed to update lead: %w", err)
	}
	return requireRow(result)
}

// CreateCampaign stores a new campaign.
func (s *Store) CreateCampaign(ctx context.Context, campaign *domain.Campaign) error {
	steps, err := marshal(campaign.Steps)
	if err != nil {
		return err
	}
	segment, err := marshal(campaign.Segment)
	if err != nil {
		return err
	}
	exitOn, err := marshal(campaign.ExitOn)
	if err != nil {
		return err
	}
	metrics, err := marshal(campaign.Metrics)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO campaigns (id, name, steps_json, segment_json, exit_on_json, status, metrics_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, campaign.ID, campaign.Name, steps, segment, exitOn, string(campaign.Status), metrics, toMillis(campaign.CreatedAt), toMillis(campaign.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("failed to insert campaign: %w", err)
	}
	return nil
}

// GetCampaign returns a campaign by ID.
func (s *Store) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, steps_json, segment_json, exit_on_json, status, metrics_json, created_at, updated_at
FROM campaigns WHERE id = ?
`, id)

	var campaign domain.Campaign
	var steps, segment, exitOn, status, metrics string
	var createdAt, updatedAt int64
	err := row.Scan(&campaign.ID, &campaign.Name, &steps, &segment, &exitOn, &status, &metrics, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Campaign{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("failed to get campaign: %w", err)
	}
	if err := unmarshal(steps, &campaign.Steps); err != nil {
		return domain.Campaign{}, err
	}
	if err := unmarshal(segment, &campaign.Segment); err != nil {
		return domain.Campaign{}, err
	}
	if err := unmarshal(exitOn, &campaign.ExitOn); err != nil {
		return domain.Campaign{}, err
	}
	if err := unmarshal(metrics, &campaign.Metrics); err != nil {
		return domain.Campaign{}, err
	}
	campaign.Status = domain.CampaignStatus(status)
	campaign.CreatedAt = fromMillis(createdAt)
	campaign.UpdatedAt = fromMillis(updatedAt)
	return campaign, nil
}

// UpdateCampaign replaces a stored campaign.
func (s *Store) UpdateCampaign(ctx context.Context, campaign *domain.Campaign) error {
	steps, err := marshal(campaign.Steps)
	if err != nil {
		return err
	}
	segment, err := marshal(campaign.Segment)
	if err != nil {
		return err
	}
	exitOn, err := marshal(campaign.ExitOn)
	if err != nil {
		return err
	}
	metrics, err := marshal(campaign.Metrics)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
UPDATE campaigns SET name = ?, steps_json = ?, segment_json = ?, exit_on_json = ?, status = ?, metrics_json = ?, updated_at = ?
WHERE id = ?
`, campaign.Name, steps, segment, exitOn, string(campaign.Status), metrics, toMillis(campaign.UpdatedAt), campaign.ID)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	return requireRow(result)
}

// CreateEnrollment stores a new (lead, campaign) pair.
func (s *Store) CreateEnrollment(ctx context.Context, e *domain.Enrollment) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO enrollments (lead_id, campaign_id, state, step_index, next_action_at, last_touch_at, enrolled_at, escalated_at, exit_reason, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, e.LeadID, e.CampaignID, string(e.State), e.StepIndex, toMillis(e.NextActionAt), toMillis(e.LastTouchAt), toMillis(e.EnrolledAt), toMillis(e.EscalatedAt), e.ExitReason, toMillis(e.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("failed to insert enrollment: %w", err)
	}
	return nil
}

func scanEnrollment(scan func(...any) error) (domain.Enrollment, error) {
	var e domain.Enrollment
	var state string
	var nextActionAt, lastTouchAt, enrolledAt, escalatedAt, updatedAt int64
	if err := scan(&e.LeadID, &e.CampaignID, &state, &e.StepIndex, &nextActionAt, &lastTouchAt, &enrolledAt, &escalatedAt, &e.ExitReason, &updatedAt); err != nil {
		return domain.Enrollment{}, err
	}
	e.State = domain.EnrollmentState(state)
	e.NextActionAt = fromMillis(nextActionAt)
	e.LastTouchAt = fromMillis(lastTouchAt)
	e.EnrolledAt = fromMillis(enrolledAt)
	e.EscalatedAt = fromMillis(escalatedAt)
	e.UpdatedAt = fromMillis(updatedAt)
	return e, nil
}

const enrollmentColumns = "lead_id, campaign_id, state, step_index, next_action_at, last_touch_at, enrolled_at, escalated_at, exit_reason, updated_at"

// GetEnrollment returns the pair's enrollment.
func (s *Store) GetEnrollment(ctx context.Context, leadID, campaignID string) (domain.Enrollment, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+enrollmentColumns+" FROM enrollments WHERE lead_id = ? AND campaign_id = ?",
		leadID, campaignID)
	e, err := scanEnrollment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Enrollment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Enrollment{}, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return e, nil
}

// UpdateEnrollment replaces the pair's enrollment.
func (s *Store) UpdateEnrollment(ctx context.Context, e *domain.Enrollment) error {
	result, err := s.db.ExecContext(ctx, `
UPDATE enrollments SET state = ?, step_index = ?, next_action_at = ?, last_touch_at = ?, escalated_at = ?, exit_reason = ?, updated_at = ?
WHERE lead_id = ? AND campaign_id = ?
`, string(e.State), e.StepIndex, toMillis(e.NextActionAt), toMillis(e.LastTouchAt), toMillis(e.EscalatedAt), e.ExitReason, toMillis(e.UpdatedAt), e.LeadID, e.CampaignID)
	if err != nil {
		return fmt.Errorf("failed to update enrollment: %w", err)
	}
	return requireRow(result)
}

// EnrollmentsForLead returns every enrollment of the lead.
func (s *Store) EnrollmentsForLead(ctx context.Context, leadID string) ([]domain.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+enrollmentColumns+" FROM enrollments WHERE lead_id = ? ORDER BY campaign_id",
		leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer rows.Close()
	return collectEnrollments(rows)
}

// DueEnrollments returns active enrollments due at or before now, oldest
// first.
func (s *Store) DueEnrollments(ctx context.Context, now time.Time, limit int) ([]domain.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+enrollmentColumns+`
FROM enrollments
WHERE state IN (?, ?, ?, ?) AND next_action_at <= ?
ORDER BY next_action_at ASC
LIMIT ?
`, string(domain.StateNotStarted), string(domain.StateStepPending), string(domain.StateStepExecuting), string(domain.StateWaitingForEngagement),
		toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due enrollments: %w", err)
	}
	defer rows.Close()
	return collectEnrollments(rows)
}

func collectEnrollments(rows *sql.Rows) ([]domain.Enrollment, error) {
	var out []domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrollments: %w", err)
	}
	return out, nil
}

// CreateExecution stores a new execution audit row.
func (s *Store) CreateExecution(ctx context.Context, e *domain.CampaignExecution) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO executions (id, lead_id, campaign_id, step_index, channel, scheduled_at, executed_at, status, variant_id, delivery_id, attempts, last_error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, e.ID, e.LeadID, e.CampaignID, e.StepIndex, string(e.Channel), toMillis(e.ScheduledAt), toMillis(e.ExecutedAt), string(e.Status), e.VariantID, e.DeliveryID, e.Attempts, e.LastError)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("failed to insert execution: %w", err)
	}
	return nil
}

const executionColumns = "id, lead_id, campaign_id, step_index, channel, scheduled_at, executed_at, status, variant_id, delivery_id, attempts, last_error"

func scanExecution(scan func(...any) error) (domain.CampaignExecution, error) {
	var e domain.CampaignExecution
	var channel, status string
	var scheduledAt, executedAt int64
	if err := scan(&e.ID, &e.LeadID, &e.CampaignID, &e.StepIndex, &channel, &scheduledAt, &executedAt, &status, &e.VariantID, &e.DeliveryID, &e.Attempts, &e.LastError); err != nil {
		return domain.CampaignExecution{}, err
	}
	e.Channel = domain.Channel(channel)
	e.Status = domain.ExecutionStatus(status)
	e.ScheduledAt = fromMillis(scheduledAt)
	e.ExecutedAt = fromMillis(executedAt)
	return e, nil
}

// GetExecution returns the audit row for one attempted step.
func (s *Store) GetExecution(ctx context.Context, leadID, campaignID string, stepIndex int) (domain.CampaignExecution, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+executionColumns+" FROM executions WHERE lead_id = ? AND campaign_id = ? AND step_index = ?",
		leadID, campaignID, stepIndex)
	e, err := scanExecution(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CampaignExecution{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CampaignExecution{}, fmt.Errorf("failed to get execution: %w", err)
	}
	return e, nil
}

// UpdateExecution replaces a stored execution row.
func (s *Store) UpdateExecution(ctx context.Context, e *domain.CampaignExecution) error {
	result, err := s.db.ExecContext(ctx, `
UPDATE executions SET executed_at = ?, status = ?, variant_id = ?, delivery_id = ?, attempts = ?, last_error = ?
WHERE lead_id = ? AND campaign_id = ? AND step_index = ?
`, toMillis(e.ExecutedAt), string(e.Status), e.VariantID, e.DeliveryID, e.Attempts, e.LastError, e.LeadID, e.CampaignID, e.StepIndex)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	return requireRow(result)
}

// ExecutionsForPair returns the pair's executions ordered by step index.
func (s *Store) ExecutionsForPair(ctx context.Context, leadID, campaignID string) ([]domain.CampaignExecution, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+executionColumns+" FROM executions WHERE lead_id = ? AND campaign_id = ? ORDER BY step_index ASC",
		leadID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignExecution
	for rows.Next() {
		e, err := scanExecution(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}
	return out, nil
}

// CreateExperiment stores a new experiment.
func (s *Store) CreateExperiment(ctx context.Context, e *domain.Experiment) error {
	variants, err := marshal(e.Variants)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO experiments (id, name, metric, variants_json, min_sample_size, significance_level, status, winner, winner_source, created_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, e.ID, e.Name, e.Metric, variants, e.MinSampleSize, e.SignificanceLevel, string(e.Status), e.Winner, string(e.WinnerSource), toMillis(e.CreatedAt), toMillis(e.CompletedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("failed to insert experiment: %w", err)
	}
	return nil
}

// GetExperiment returns an experiment by ID.
func (s *Store) GetExperiment(ctx context.Context, id string) (domain.Experiment, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, metric, variants_json, min_sample_size, significance_level, status, winner, winner_source, created_at, completed_at
FROM experiments WHERE id = ?
`, id)

	var e domain.Experiment
	var variants, status, winnerSource string
	var createdAt, completedAt int64
	err := row.Scan(&e.ID, &e.Name, &e.Metric, &variants, &e.MinSampleSize, &e.SignificanceLevel, &status, &e.Winner, &winnerSource, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Experiment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Experiment{}, fmt.Errorf("failed to get experiment: %w", err)
	}
	if err := unmarshal(variants, &e.Variants); err != nil {
		return domain.Experiment{}, err
	}
	e.Status = domain.ExperimentStatus(status)
	e.WinnerSource = domain.WinnerSource(winnerSource)
	e.CreatedAt = fromMillis(createdAt)
	e.CompletedAt = fromMillis(completedAt)
	return e, nil
}

// UpdateExperiment replaces a stored experiment.
func (s *Store) UpdateExperiment(ctx context.Context, e *domain.Experiment) error {
	variants, err := marshal(e.Variants)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
UPDATE experiments SET name = ?, metric = ?, variants_json = ?, min_sample_size = ?, significance_level = ?, status = ?, winner = ?, winner_source = ?, completed_at = ?
WHERE id = ?
`, e.Name, e.Metric, variants, e.MinSampleSize, e.SignificanceLevel, string(e.Status), e.Winner, string(e.WinnerSource), toMillis(e.CompletedAt), e.ID)
	if err != nil {
		return fmt.Errorf("failed to update experiment: %w", err)
	}
	return requireRow(result)
}

// UpsertAssignment persists the audit copy of a deterministic assignment.
// The stored row is never overwritten; a conflicting variant for the same
// subject is an integrity violation.
func (s *Store) UpsertAssignment(ctx context.Context, a domain.ExperimentAssignment) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO experiment_assignments (experiment_id, subject_id, variant_id, assigned_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (experiment_id, subject_id) DO NOTHING
`, a.ExperimentID, a.SubjectID, a.VariantID, toMillis(a.AssignedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert assignment: %w", err)
	}

	stored, err := s.GetAssignment(ctx, a.ExperimentID, a.SubjectID)
	if err != nil {
		return err
	}
	if stored.VariantID != a.VariantID {
		return domain.ErrConflict
	}
	return nil
}

// GetAssignment returns the audit copy of an assignment.
func (s *Store) GetAssignment(ctx context.Context, experimentID, subjectID string) (domain.ExperimentAssignment, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT experiment_id, subject_id, variant_id, assigned_at
FROM experiment_assignments WHERE experiment_id = ? AND subject_id = ?
`, experimentID, subjectID)

	var a domain.ExperimentAssignment
	var assignedAt int64
	err := row.Scan(&a.ExperimentID, &a.SubjectID, &a.VariantID, &assignedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ExperimentAssignment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ExperimentAssignment{}, fmt.Errorf("failed to get assignment: %w", err)
	}
	a.AssignedAt = fromMillis(assignedAt)
	return a, nil
}

// UpsertResult records a subject's outcome, replacing any earlier result for
// the same subject.
func (s *Store) UpsertResult(ctx context.Context, r domain.ExperimentResult) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO experiment_results (experiment_id, subject_id, variant_id, converted, recorded_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (experiment_id, subject_id) DO UPDATE SET
	variant_id = excluded.variant_id,
	converted = excluded.converted,
	recorded_at = excluded.recorded_at
`, r.ExperimentID, r.SubjectID, r.VariantID, boolToInt(r.Converted), toMillis(r.RecordedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert result: %w", err)
	}
	return nil
}

// ResultCounts tallies subjects and conversions per variant.
func (s *Store) ResultCounts(ctx context.Context, experimentID string) (map[string]store.VariantCounts, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT variant_id, COUNT(*), SUM(converted)
FROM experiment_results WHERE experiment_id = ?
GROUP BY variant_id
`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query result counts: %w", err)
	}
	defer rows.Close()

	counts := map[string]store.VariantCounts{}
	for rows.Next() {
		var variantID string
		var c store.VariantCounts
		if err := rows.Scan(&variantID, &c.Subjects, &c.Conversions); err != nil {
			return nil, fmt.Errorf("failed to scan result counts: %w", err)
		}
		counts[variantID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating result counts: %w", err)
	}
	return counts, nil
}

// AcquireLease takes or extends the pair lease with a guarded upsert:
// the write succeeds only when the key is free, expired, or already ours.
func (s *Store) AcquireLease(ctx context.Context, key, owner string, ttl time.Duration, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
INSERT INTO leases (key, owner, expires_at)
VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
WHERE leases.owner = excluded.owner OR leases.expires_at <= ?
`, key, owner, toMillis(now.Add(ttl)), toMillis(now))
	if err != nil {
		return fmt.Errorf("failed to acquire lease: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read lease rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrLeaseHeld
	}
	return nil
}

// ReleaseLease frees the lease when the owner still holds it.
func (s *Store) ReleaseLease(ctx context.Context, key, owner string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM leases WHERE key = ? AND owner = ?", key, owner); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint failures in the error text;
	// matching on it avoids importing driver internals.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
