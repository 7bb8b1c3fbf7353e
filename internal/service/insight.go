package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GrayGhostDev/leadflow/internal/domain"
	"github.com/GrayGhostDev/leadflow/internal/dto"
	"github.com/GrayGhostDev/leadflow/internal/experiment"
	"github.com/GrayGhostDev/leadflow/internal/scoring"
	"github.com/GrayGhostDev/leadflow/internal/store"
	"github.com/GrayGhostDev/leadflow/internal/tracker"
)

// InsightService serves read-only projections: on-demand lead scores and
// experiment analyses.
type InsightService struct {
	leads       store.LeadStore
	experiments store.ExperimentStore
	tracker     *tracker.Tracker
	scorer      *scoring.Engine
	analyzer    *experiment.Engine
	log         *zap.Logger
}

// NewInsightService creates a new insight service
func NewInsightService(leads store.LeadStore, experiments store.ExperimentStore, tr *tracker.Tracker, scorer *scoring.Engine, analyzer *experiment.Engine, log *zap.Logger) *InsightService {
	return &InsightService{
		leads:       leads,
		experiments: experiments,
		tracker:     tr,
		scorer:      scorer,
		analyzer:    analyzer,
		log:         log,
	}
}

// GetLeadScore recomputes the lead's score from its full history. Decay is
// applied lazily here, so an idle lead's stored score may be higher than the
// returned view.
func (s *InsightService) GetLeadScore(ctx context.Context, leadID string) (*dto.LeadScoreResponse, error) {
	lead, err := s.leads.GetLead(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}

	history, err := s.tracker.History(ctx, leadID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load engagement history: %w", err)
	}

	result := s.scorer.Score(lead, history, time.Now().UTC())

	response := &dto.LeadScoreResponse{
		LeadID:      leadID,
		Score:       result.Score,
		Temperature: string(result.Temperature),
		Breakdown:   make([]dto.FactorContributionData, 0, len(result.Breakdown)),
	}
	for _, c := range result.Breakdown {
		response.Breakdown = append(response.Breakdown, dto.FactorContributionData{
			Factor:   c.Factor,
			Category: c.Category,
			Points:   c.Points,
		})
	}
	return response, nil
}

// GetExperimentAnalysis projects the experiment's current statistical state.
func (s *InsightService) GetExperimentAnalysis(ctx context.Context, experimentID string) (*dto.ExperimentAnalysisResponse, error) {
	exp, err := s.experiments.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load experiment: %w", err)
	}

	// Below-minimum samples still project: the stats come back alongside
	// ErrInsufficientData and the response carries SampleMet=false.
	analysis, err := s.analyzer.Analyze(ctx, experimentID)
	if err != nil && !errors.Is(err, domain.ErrInsufficientData) {
		return nil, fmt.Errorf("failed to analyze experiment: %w", err)
	}

	response := &dto.ExperimentAnalysisResponse{
		ExperimentID: experimentID,
		Status:       string(exp.Status),
		PValue:       analysis.PValue,
		Significant:  analysis.Significant,
		SampleMet:    analysis.SampleMet,
		WinnerID:     exp.Winner,
		Variants:     make([]dto.VariantStatsData, 0, len(analysis.Stats)),
	}
	for _, v := range analysis.Stats {
		response.Variants = append(response.Variants, dto.VariantStatsData{
			VariantID:      v.VariantID,
			Subjects:       v.Subjects,
			Conversions:    v.Conversions,
			ConversionRate: v.ConversionRate,
		})
	}
	return response, nil
}
