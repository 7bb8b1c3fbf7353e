package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GrayGhostDev/leadflow/internal/domain"
	"github.com/GrayGhostDev/leadflow/internal/dto"
	"github.com/GrayGhostDev/leadflow/internal/queue"
	"github.com/GrayGhostDev/leadflow/internal/repository"
)

// EventService validates engagement events at the ingest edge and publishes
// them to the queue for the worker to record.
type EventService struct {
	publisher  queue.QueuePublisher
	repository repository.EventRepository
	skew       time.Duration
	log        *zap.Logger
}

// NewEventService creates a new event service
func NewEventService(publisher queue.QueuePublisher, repo repository.EventRepository, skew time.Duration, log *zap.Logger) *EventService {
	if skew <= 0 {
		skew = 5 * time.Minute
	}
	return &EventService{
		publisher:  publisher,
		repository: repo,
		skew:       skew,
		log:        log,
	}
}

// ProcessEvent validates a single engagement event and publishes it with its
// deterministic dedup ID. Duplicates are accepted here; the tracker drops
// them idempotently downstream.
func (s *EventService) ProcessEvent(event *dto.RecordEventRequest) (string, error) {
	ctx := context.Background()

	if !domain.KnownChannels[domain.Channel(event.Channel)] {
		return "", fmt.Errorf("unknown channel: %q", event.Channel)
	}
	if !domain.KnownEventTypes[domain.EventType(event.Type)] {
		return "", fmt.Errorf("unknown event type: %q", event.Type)
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	latest := time.Now().Add(s.skew).Unix()
	if event.Timestamp > latest {
		s.log.Warn("Timestamp validation failed: future timestamp",
			zap.Int64("event_timestamp", event.Timestamp),
			zap.Int64("latest_accepted", latest),
			zap.String("lead_id", event.LeadID))
		return "", fmt.Errorf("timestamp too far in the future: %d > %d", event.Timestamp, latest)
	}

	eventID := domain.ComputeEventID(
		event.LeadID,
		domain.Channel(event.Channel),
		domain.EventType(event.Type),
		event.CampaignID,
		event.Timestamp,
	)

	if err := s.publisher.PublishEvent(ctx, event, eventID); err != nil {
		return "", fmt.Errorf("failed to publish event to queue: %w", err)
	}

	return eventID, nil
}

// ProcessBulkEvents validates and processes multiple events, reporting
// per-item failures without rejecting the batch.
func (s *EventService) ProcessBulkEvents(events []dto.RecordEventRequest) ([]string, []string, error) {
	var eventIDs []string
	var errors []string

	for i, event := range events {
		eventID, err := s.ProcessEvent(&event)
		if err != nil {
			errors = append(errors, err.Error())
			s.log.Warn("Failed to process event in bulk",
				zap.Int("index", i),
				zap.Error(err),
				zap.String("lead_id", event.LeadID))
			continue
		}
		eventIDs = append(eventIDs, eventID)
	}

	return eventIDs, errors, nil
}

// GetMetrics retrieves aggregated engagement metrics from the repository
func (s *EventService) GetMetrics(req *dto.GetMetricsRequest) (*dto.GetMetricsResponse, error) {
	ctx := context.Background()

	if req.From > req.To {
		s.log.Warn("Invalid time range for metrics",
			zap.Int64("from", req.From),
			zap.Int64("to", req.To),
			zap.String("type", req.Type))
		return nil, fmt.Errorf("from timestamp must be less than or equal to to timestamp")
	}

	if !domain.KnownEventTypes[domain.EventType(req.Type)] {
		return nil, fmt.Errorf("unknown event type: %q", req.Type)
	}

	if req.GroupBy != "" {
		validGroupBy := map[string]bool{"channel": true, "hour": true, "day": true}
		if !validGroupBy[req.GroupBy] {
			s.log.Warn("Invalid group_by value",
				zap.String("group_by", req.GroupBy))
			return nil, fmt.Errorf("invalid group_by value: %s (supported: channel, hour, day)", req.GroupBy)
		}

		rangeSeconds := req.To - req.From
		if req.GroupBy == "hour" && rangeSeconds > 90*24*3600 {
			s.log.Warn("Large time range for hourly grouping",
				zap.Int64("range_days", rangeSeconds/(24*3600)))
			return nil, fmt.Errorf("time range too large for hourly grouping (max 90 days, got %d days)", rangeSeconds/(24*3600))
		}
	}

	query := repository.MetricsQuery{
		EventType: domain.EventType(req.Type),
		From:      req.From,
		To:        req.To,
		GroupBy:   req.GroupBy,
	}

	s.log.Info("Querying metrics",
		zap.String("type", req.Type),
		zap.Int64("from", req.From),
		zap.Int64("to", req.To),
		zap.String("group_by", req.GroupBy))

	result, err := s.repository.GetMetrics(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics from repository: %w", err)
	}

	response := &dto.GetMetricsResponse{
		Type:        req.Type,
		From:        req.From,
		To:          req.To,
		TotalCount:  result.TotalCount,
		UniqueLeads: result.UniqueLeads,
		GroupBy:     req.GroupBy,
		Groups:      make([]dto.MetricsGroupData, 0, len(result.Groups)),
	}

	for _, group := range result.Groups {
		response.Groups = append(response.Groups, dto.MetricsGroupData{
			GroupValue: group.GroupValue,
			TotalCount: group.TotalCount,
		})
	}

	return response, nil
}
