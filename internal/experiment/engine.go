// Package experiment manages controlled messaging experiments: variant
// assignment is deterministic per subject, results are recorded per subject,
// and winners are declared only with both sample size and significance met.
package experiment

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/GrayGhostDev/leadflow/internal/domain"
	"github.com/GrayGhostDev/leadflow/internal/store"
)

// VariantStats summarizes one variant's observed outcomes.
type VariantStats struct {
	VariantID      string  `json:"variant_id"`
	Subjects       int     `json:"subjects"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
	SampleMet      bool    `json:"sample_met"`
}

// Analysis is the statistical readout for a running experiment.
type Analysis struct {
	ExperimentID string         `json:"experiment_id"`
	Stats        []VariantStats `json:"variant_stats"`
	PValue       float64        `json:"p_value"`
	// Significant requires BOTH the p-value under the experiment's threshold
	// AND every variant at or above the minimum sample size, so noise cannot
	// stop an experiment early.
	Significant bool `json:"significant"`
	SampleMet   bool `json:"sample_met"`
}

// Engine runs experiments over an ExperimentStore.
type Engine struct {
	store store.ExperimentStore
	now   func() time.Time
	newID func() string
	log   *zap.Logger
}

// NewEngine creates an experiment engine.
func NewEngine(s store.ExperimentStore, now func() time.Time, log *zap.Logger) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store: s,
		now:   now,
		newID: func() string { return uuid.NewString() },
		log:   log,
	}
}

// Create validates and persists a new experiment. Invalid configuration is
// rejected synchronously with a ValidationError.
func (e *Engine) Create(ctx context.Context, experiment domain.Experiment) (domain.Experiment, error) {
	if experiment.ID == "" {
		experiment.ID = e.newID()
	}
	if experiment.SignificanceLevel == 0 {
		experiment.SignificanceLevel = domain.DefaultSignificanceLevel
	}
	if err := experiment.Validate(); err != nil {
		return domain.Experiment{}, err
	}
	experiment.Status = domain.ExperimentRunning
	experiment.CreatedAt = e.now().UTC()

	if err := e.store.CreateExperiment(ctx, &experiment); err != nil {
		return domain.Experiment{}, fmt.Errorf("failed to persist experiment: %w", err)
	}

	e.log.Info("Experiment created",
		zap.String("experiment_id", experiment.ID),
		zap.String("metric", experiment.Metric),
		zap.Int("variant_count", len(experiment.Variants)))

	return experiment, nil
}

// Get returns an experiment by ID.
func (e *Engine) Get(ctx context.Context, experimentID string) (domain.Experiment, error) {
	return e.store.GetExperiment(ctx, experimentID)
}

// bucket hashes (experimentID, subjectID) into [0, 1). The hash is the whole
// assignment mechanism: any evaluator computes the same answer, so no lock
// or stored row is needed for correctness.
func bucket(experimentID, subjectID string) float64 {
	hash := sha256.Sum256([]byte(experimentID + "|" + subjectID))
	return float64(binary.BigEndian.Uint64(hash[:8])) / float64(1<<63) / 2
}

// Assign returns the subject's variant, stable for the experiment's life.
// The persisted copy is audit-only; a conflicting stored row surfaces as
// ErrConflict rather than being overwritten.
func (e *Engine) Assign(ctx context.Context, experimentID, subjectID string) (string, error) {
	experiment, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return "", fmt.Errorf("failed to load experiment: %w", err)
	}

	point := bucket(experimentID, subjectID)
	cumulative := 0.0
	variantID := experiment.Variants[len(experiment.Variants)-1].ID
	for _, v := range experiment.Variants {
		cumulative += v.Weight
		if point < cumulative {
			variantID = v.ID
			break
		}
	}

	if err := e.store.UpsertAssignment(ctx, domain.ExperimentAssignment{
		ExperimentID: experimentID,
		SubjectID:    subjectID,
		VariantID:    variantID,
		AssignedAt:   e.now().UTC(),
	}); err != nil {
		return "", fmt.Errorf("failed to persist assignment audit row: %w", err)
	}

	return variantID, nil
}

// RecordResult appends a subject's outcome. A later call for the same
// subject replaces the earlier one for analysis purposes; that is the
// intended semantics, not an accident.
func (e *Engine) RecordResult(ctx context.Context, experimentID, subjectID string, converted bool) error {
	experiment, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return fmt.Errorf("failed to load experiment: %w", err)
	}

	variantID, err := e.Assign(ctx, experimentID, subjectID)
	if err != nil {
		return err
	}

	if err := e.store.UpsertResult(ctx, domain.ExperimentResult{
		ExperimentID: experimentID,
		SubjectID:    subjectID,
		VariantID:    variantID,
		Converted:    converted,
		RecordedAt:   e.now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to persist result: %w", err)
	}

	e.log.Debug("Experiment result recorded",
		zap.String("experiment_id", experiment.ID),
		zap.String("subject_id", subjectID),
		zap.String("variant_id", variantID),
		zap.Bool("converted", converted))

	return nil
}

// Analyze runs a chi-square test over per-variant conversion counts. Below
// the minimum sample size it returns the stats together with
// ErrInsufficientData: a retry-later state, not a failure.
func (e *Engine) Analyze(ctx context.Context, experimentID string) (Analysis, error) {
	experiment, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to load experiment: %w", err)
	}

	counts, err := e.store.ResultCounts(ctx, experimentID)
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to load result counts: %w", err)
	}

	analysis := Analysis{ExperimentID: experimentID, SampleMet: true}
	for _, v := range experiment.Variants {
		c := counts[v.ID]
		stats := VariantStats{
			VariantID:   v.ID,
			Subjects:    c.Subjects,
			Conversions: c.Conversions,
			SampleMet:   c.Subjects >= experiment.MinSampleSize,
		}
		if c.Subjects > 0 {
			stats.ConversionRate = float64(c.Conversions) / float64(c.Subjects)
		}
		if !stats.SampleMet {
			analysis.SampleMet = false
		}
		analysis.Stats = append(analysis.Stats, stats)
	}

	analysis.PValue = chiSquarePValue(analysis.Stats)
	analysis.Significant = analysis.SampleMet && analysis.PValue < experiment.Threshold()
	if !analysis.SampleMet {
		return analysis, domain.ErrInsufficientData
	}
	return analysis, nil
}

// chiSquarePValue computes the p-value of a chi-square independence test
// over variant × (converted, not converted) counts. Returns 1 when the test
// is undefined (no data, or a degenerate margin).
func chiSquarePValue(stats []VariantStats) float64 {
	totalSubjects := 0
	totalConversions := 0
	observed := 0
	for _, s := range stats {
		totalSubjects += s.Subjects
		totalConversions += s.Conversions
		if s.Subjects > 0 {
			observed++
		}
	}
	if observed < 2 || totalConversions == 0 || totalConversions == totalSubjects {
		return 1
	}

	pooled := float64(totalConversions) / float64(totalSubjects)
	chi2 := 0.0
	for _, s := range stats {
		if s.Subjects == 0 {
			continue
		}
		n := float64(s.Subjects)
		expectedConv := n * pooled
		expectedNon := n * (1 - pooled)
		conv := float64(s.Conversions)
		non := n - conv
		chi2 += (conv - expectedConv) * (conv - expectedConv) / expectedConv
		chi2 += (non - expectedNon) * (non - expectedNon) / expectedNon
	}

	dist := distuv.ChiSquared{K: float64(observed - 1)}
	return dist.Survival(chi2)
}

// SelectWinner declares the experiment's winner. With an explicit variantID
// the pick is recorded as a manual override; without one the engine picks
// the highest-conversion-rate variant, but only once significance has been
// reached. Below the bar it returns ErrInsufficientData: a pending state the
// caller retries later, not a failure.
func (e *Engine) SelectWinner(ctx context.Context, experimentID, variantID string) (domain.Experiment, error) {
	experiment, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return domain.Experiment{}, fmt.Errorf("failed to load experiment: %w", err)
	}
	if experiment.Status == domain.ExperimentCompleted {
		return domain.Experiment{}, &domain.ValidationError{Field: "status", Reason: "experiment already has a declared winner"}
	}

	source := domain.WinnerAutomatic
	if variantID != "" {
		if _, ok := experiment.Variant(variantID); !ok {
			return domain.Experiment{}, &domain.ValidationError{Field: "variant_id", Reason: fmt.Sprintf("experiment has no variant %q", variantID)}
		}
		source = domain.WinnerManual
	} else {
		analysis, err := e.Analyze(ctx, experimentID)
		if err != nil && !errors.Is(err, domain.ErrInsufficientData) {
			return domain.Experiment{}, err
		}
		if !analysis.Significant {
			return domain.Experiment{}, domain.ErrInsufficientData
		}

		sorted := make([]VariantStats, len(analysis.Stats))
		copy(sorted, analysis.Stats)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].ConversionRate > sorted[j].ConversionRate })
		variantID = sorted[0].VariantID
	}

	experiment.Winner = variantID
	experiment.WinnerSource = source
	experiment.Status = domain.ExperimentCompleted
	experiment.CompletedAt = e.now().UTC()

	if err := e.store.UpdateExperiment(ctx, &experiment); err != nil {
		return domain.Experiment{}, fmt.Errorf("failed to persist winner: %w", err)
	}

	e.log.Info("Experiment winner declared",
		zap.String("experiment_id", experimentID),
		zap.String("winner", variantID),
		zap.String("source", string(source)))

	return experiment, nil
}
