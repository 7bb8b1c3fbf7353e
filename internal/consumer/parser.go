package consumer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/GrayGhostDev/leadflow/internal/domain"
)

// JSONEventParser implements MessageParser for JSON-formatted event messages
type JSONEventParser struct{}

// NewJSONEventParser creates a new JSON event parser
func NewJSONEventParser() *JSONEventParser {
	return &JSONEventParser{}
}

// Parse parses a JSON message body into an EngagementEvent
func (p *JSONEventParser) Parse(body []byte) (*domain.EngagementEvent, error) {
	var msgBody map[string]interface{}
	if err := json.Unmarshal(body, &msgBody); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message body: %w", err)
	}

	metadataJSON := "{}"
	if metadata, ok := msgBody["metadata"].(map[string]interface{}); ok && len(metadata) > 0 {
		metadataBytes, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = string(metadataBytes)
	}

	event := &domain.EngagementEvent{
		EventID:    getStringField(msgBody, "event_id"),
		LeadID:     getStringField(msgBody, "lead_id"),
		Channel:    domain.Channel(getStringField(msgBody, "channel")),
		Type:       domain.EventType(getStringField(msgBody, "type")),
		CampaignID: getStringField(msgBody, "campaign_id"),
		Timestamp:  getInt64Field(msgBody, "timestamp"),
		Metadata:   metadataJSON,
		RecordedAt: time.Now().UTC(),
		Version:    uint64(time.Now().UnixNano()),
	}

	if event.LeadID == "" {
		return nil, fmt.Errorf("message is missing lead_id")
	}

	return event, nil
}

// Helper functions for extracting fields from parsed JSON
func getStringField(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}

func getInt64Field(m map[string]interface{}, key string) int64 {
	if val, ok := m[key].(float64); ok {
		return int64(val)
	}
	return 0
}
