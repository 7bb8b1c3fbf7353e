package consumer

import (
	"context"

	"github.com/GrayGhostDev/leadflow/internal/domain"
)

// MessageParser defines the interface for parsing raw message bytes into events
type MessageParser interface {
	Parse(body []byte) (*domain.EngagementEvent, error)
}

// EventRecorder records parsed engagement events; the tracker implements it.
type EventRecorder interface {
	Record(ctx context.Context, event domain.EngagementEvent) (domain.EngagementEvent, error)
}
