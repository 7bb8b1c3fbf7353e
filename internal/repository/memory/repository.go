// Package memory holds an in-memory EventRepository used by tests and
// single-process local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GrayGhostDev/leadflow/internal/domain"
	"github.com/GrayGhostDev/leadflow/internal/repository"
)

// Repository is an in-memory, append-only engagement-event log.
type Repository struct {
	mu     sync.RWMutex
	events map[string]domain.EngagementEvent // by event ID
}

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{events: make(map[string]domain.EngagementEvent)}
}

// Insert appends one engagement event. Duplicate IDs are overwritten with the
// same content, matching ClickHouse ReplacingMergeTree semantics.
func (r *Repository) Insert(_ context.Context, event *domain.EngagementEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.Version == 0 {
		event.Version = uint64(time.Now().UnixNano())
	}
	r.events[event.EventID] = *event
	return nil
}

// InsertBatch appends a batch of engagement events.
func (r *Repository) InsertBatch(ctx context.Context, events []*domain.EngagementEvent) (int, error) {
	for _, e := range events {
		if err := r.Insert(ctx, e); err != nil {
			return 0, err
		}
	}
	return len(events), nil
}

// Exists reports whether an event ID has been recorded.
func (r *Repository) Exists(_ context.Context, eventID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.events[eventID]
	return ok, nil
}

// History returns a lead's events ordered by timestamp ascending.
func (r *Repository) History(_ context.Context, query repository.HistoryQuery) ([]domain.EngagementEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.EngagementEvent
	for _, e := range r.events {
		if e.LeadID != query.LeadID {
			continue
		}
		if query.Channel != "" && e.Channel != query.Channel {
			continue
		}
		if query.From > 0 && e.Timestamp < query.From {
			continue
		}
		if query.To > 0 && e.Timestamp > query.To {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// GetMetrics aggregates over the in-memory log. Grouping supports the same
// channel/hour/day vocabulary as the ClickHouse repository.
func (r *Repository) GetMetrics(_ context.Context, query repository.MetricsQuery) (*repository.MetricsResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := &repository.MetricsResult{Groups: []repository.MetricsGroupResult{}}
	leads := map[string]bool{}
	grouped := map[string]uint64{}

	for _, e := range r.events {
		if e.Type != query.EventType || e.Timestamp < query.From || e.Timestamp > query.To {
			continue
		}
		result.TotalCount++
		leads[e.LeadID] = true

		switch query.GroupBy {
		case "channel":
			grouped[string(e.Channel)]++
		case "hour":
			grouped[e.OccurredAt().Truncate(time.Hour).Format("2006-01-02 15:00:00")]++
		case "day":
			grouped[e.OccurredAt().Truncate(24*time.Hour).Format("2006-01-02")]++
		}
	}
	result.UniqueLeads = uint64(len(leads))

	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		result.Groups = append(result.Groups, repository.MetricsGroupResult{GroupValue: k, TotalCount: grouped[k]})
	}
	return result, nil
}

// InitSchema is a no-op for the in-memory repository.
func (r *Repository) InitSchema(context.Context) error { return nil }

// Ping is a no-op for the in-memory repository.
func (r *Repository) Ping(context.Context) error { return nil }

// Close is a no-op for the in-memory repository.
func (r *Repository) Close() error { return nil }
