package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Channel identifies an outreach channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelCall     Channel = "call"
	ChannelSMS      Channel = "sms"
	ChannelLinkedIn Channel = "linkedin"
)

// KnownChannels lists every channel the engine accepts at ingest time.
var KnownChannels = map[Channel]bool{
	ChannelEmail:    true,
	ChannelCall:     true,
	ChannelSMS:      true,
	ChannelLinkedIn: true,
}

// EventType classifies an engagement event.
type EventType string

const (
	EventSent         EventType = "sent"
	EventDelivered    EventType = "delivered"
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
	EventReplied      EventType = "replied"
	EventBounced      EventType = "bounced"
	EventFailed       EventType = "failed"
	EventUnsubscribed EventType = "unsubscribed"
)

// KnownEventTypes lists every event type the engine accepts at ingest time.
var KnownEventTypes = map[EventType]bool{
	EventSent:         true,
	EventDelivered:    true,
	EventOpened:       true,
	EventClicked:      true,
	EventReplied:      true,
	EventBounced:      true,
	EventFailed:       true,
	EventUnsubscribed: true,
}

// IsEngagement reports whether the event type represents the lead acting on a
// touch, as opposed to delivery bookkeeping.
func (t EventType) IsEngagement() bool {
	switch t {
	case EventOpened, EventClicked, EventReplied:
		return true
	}
	return false
}

// EngagementEvent represents one observed interaction stored in ClickHouse
type EngagementEvent struct {
	EventID    string    `ch:"event_id"`
	LeadID     string    `ch:"lead_id"`
	Channel    Channel   `ch:"channel"`
	Type       EventType `ch:"event_type"`
	CampaignID string    `ch:"campaign_id"`
	Timestamp  int64     `ch:"timestamp"`
	Metadata   string    `ch:"metadata"`
	RecordedAt time.Time `ch:"recorded_at"`
	Version    uint64    `ch:"version"`
}

// OccurredAt returns the event timestamp as a UTC time.
func (e EngagementEvent) OccurredAt() time.Time {
	return time.Unix(e.Timestamp, 0).UTC()
}

// ComputeEventID generates a deterministic event ID based on event content
// Uses SHA-256 hash of: lead_id|event_type|timestamp|campaign_id|channel
func ComputeEventID(leadID string, channel Channel, eventType EventType, campaignID string, timestamp int64) string {
	data := fmt.Sprintf("%s|%s|%d|%s|%s",
		leadID,
		eventType,
		timestamp,
		campaignID,
		channel,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
