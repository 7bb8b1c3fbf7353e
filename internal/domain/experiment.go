package domain

import (
	"fmt"
	"math"
	"time"
)

// WeightTolerance is the allowed deviation when variant weights are checked
// against 1.0.
const WeightTolerance = 1e-3

// DefaultSignificanceLevel is the p-value threshold applied when an
// experiment does not configure its own.
const DefaultSignificanceLevel = 0.05

// ExperimentStatus is the lifecycle state of an experiment.
type ExperimentStatus string

const (
	ExperimentRunning   ExperimentStatus = "running"
	ExperimentCompleted ExperimentStatus = "completed"
)

// WinnerSource records how a winner was declared.
type WinnerSource string

const (
	WinnerAutomatic WinnerSource = "automatic"
	WinnerManual    WinnerSource = "manual"
)

// Variant is one alternative within an experiment.
type Variant struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
}

// Experiment is a controlled comparison of content variants.
type Experiment struct {
	ID                string
	Name              string
	Metric            string
	Variants          []Variant
	MinSampleSize     int
	SignificanceLevel float64
	Status            ExperimentStatus
	Winner            string
	WinnerSource      WinnerSource
	CreatedAt         time.Time
	CompletedAt       time.Time
}

// Variant returns the variant with the given ID.
func (e Experiment) Variant(id string) (Variant, bool) {
	for _, v := range e.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// Threshold returns the effective significance level.
func (e Experiment) Threshold() float64 {
	if e.SignificanceLevel <= 0 {
		return DefaultSignificanceLevel
	}
	return e.SignificanceLevel
}

// Validate checks authoring-time experiment invariants: at least two
// variants, weights summing to 1.0 within tolerance, a target metric, and a
// positive minimum sample size.
func (e Experiment) Validate() error {
	if e.Name == "" {
		return &ValidationError{Field: "name", Reason: "experiment name is required"}
	}
	if e.Metric == "" {
		return &ValidationError{Field: "metric", Reason: "target metric is required"}
	}
	if len(e.Variants) < 2 {
		return &ValidationError{Field: "variants", Reason: "an experiment needs at least two variants"}
	}
	sum := 0.0
	seen := make(map[string]bool, len(e.Variants))
	for i, v := range e.Variants {
		if v.ID == "" {
			return &ValidationError{Field: "variants", Reason: fmt.Sprintf("variant %d is missing an id", i)}
		}
		if seen[v.ID] {
			return &ValidationError{Field: "variants", Reason: fmt.Sprintf("variant id %q is duplicated", v.ID)}
		}
		seen[v.ID] = true
		if v.Weight <= 0 {
			return &ValidationError{Field: "variants", Reason: fmt.Sprintf("variant %q needs a positive weight", v.ID)}
		}
		sum += v.Weight
	}
	if math.Abs(sum-1.0) > WeightTolerance {
		return &ValidationError{Field: "variants", Reason: fmt.Sprintf("variant weights sum to %.4f; must sum to 1.0", sum)}
	}
	if e.MinSampleSize < 1 {
		return &ValidationError{Field: "min_sample_size", Reason: "minimum sample size must be at least 1"}
	}
	if e.SignificanceLevel < 0 || e.SignificanceLevel >= 1 {
		return &ValidationError{Field: "significance_level", Reason: "significance level must be in [0, 1)"}
	}
	return nil
}

// ExperimentAssignment is the audited copy of a deterministic
// (experiment, subject) to variant mapping.
type ExperimentAssignment struct {
	ExperimentID string
	SubjectID    string
	VariantID    string
	AssignedAt   time.Time
}

// ExperimentResult is one recorded outcome for a subject. A later result for
// the same subject replaces the earlier one for analysis purposes.
type ExperimentResult struct {
	ExperimentID string
	SubjectID    string
	VariantID    string
	Converted    bool
	RecordedAt   time.Time
}
