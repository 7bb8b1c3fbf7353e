package service

import (
	"context"

	"github.com/GrayGhostDev/leadflow/internal/dto"
)

// EventServicer defines the interface for engagement event operations
type EventServicer interface {
	ProcessEvent(event *dto.RecordEventRequest) (string, error)
	ProcessBulkEvents(events []dto.RecordEventRequest) ([]string, []string, error)
	GetMetrics(req *dto.GetMetricsRequest) (*dto.GetMetricsResponse, error)
}

// InsightServicer defines the interface for read-only projections
type InsightServicer interface {
	GetLeadScore(ctx context.Context, leadID string) (*dto.LeadScoreResponse, error)
	GetExperimentAnalysis(ctx context.Context, experimentID string) (*dto.ExperimentAnalysisResponse, error)
}
