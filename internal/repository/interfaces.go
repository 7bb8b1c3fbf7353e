package repository

import (
	"context"

	"github.com/GrayGhostDev/leadflow/internal/domain"
)

// MetricsQuery represents a metrics query parameters
type MetricsQuery struct {
	EventType domain.EventType
	From      int64
	To        int64
	GroupBy   string
}

// MetricsGroupResult represents aggregated metrics for a specific group
type MetricsGroupResult struct {
	GroupValue string
	TotalCount uint64
}

// MetricsResult represents the result of a metrics query
type MetricsResult struct {
	TotalCount  uint64
	UniqueLeads uint64
	Groups      []MetricsGroupResult
}

// HistoryQuery filters a lead's engagement history.
type HistoryQuery struct {
	LeadID  string
	Channel domain.Channel // empty means all channels
	From    int64          // zero means unbounded
	To      int64          // zero means unbounded
}

// EventRepository defines the interface for engagement-event storage. The
// log is append-only: events are never updated or deleted.
type EventRepository interface {
	// Insert appends one engagement event.
	Insert(ctx context.Context, event *domain.EngagementEvent) error

	// InsertBatch appends a batch of engagement events.
	InsertBatch(ctx context.Context, events []*domain.EngagementEvent) (int, error)

	// Exists reports whether an event with the given natural-key ID has
	// already been recorded.
	Exists(ctx context.Context, eventID string) (bool, error)

	// History returns a lead's events ordered by timestamp ascending.
	History(ctx context.Context, query HistoryQuery) ([]domain.EngagementEvent, error)

	// GetMetrics retrieves aggregated metrics based on the query
	GetMetrics(ctx context.Context, query MetricsQuery) (*MetricsResult, error)

	// InitSchema initializes the database schema (creates tables if they don't exist)
	InitSchema(ctx context.Context) error

	// Ping checks if the database connection is alive
	Ping(ctx context.Context) error

	// Close closes the repository and releases resources
	Close() error
}
