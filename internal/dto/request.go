package dto

// RecordEventRequest represents an engagement event ingestion request
type RecordEventRequest struct {
	LeadID     string                 `json:"lead_id" binding:"required" example:"lead_123"`
	Channel    string                 `json:"channel" binding:"required" example:"email"`
	Type       string                 `json:"type" binding:"required" example:"opened"`
	CampaignID string                 `json:"campaign_id" example:"cmp_987"`
	Timestamp  int64                  `json:"timestamp" example:"1723475612"`
	Metadata   map[string]interface{} `json:"metadata" swaggertype:"object,string" example:"subject:Welcome,provider:ses"`
}

// RecordEventsBulkRequest represents a bulk engagement event ingestion request
type RecordEventsBulkRequest struct {
	Events []RecordEventRequest `json:"events" binding:"required,min=1,max=1000,dive"`
}

// GetMetricsRequest represents an engagement metrics query request
type GetMetricsRequest struct {
	Type    string `form:"type" binding:"required" example:"opened"`
	From    int64  `form:"from" binding:"required" example:"1723475612"`
	To      int64  `form:"to" binding:"required" example:"1723562012"`
	GroupBy string `form:"group_by" example:"channel"`
}
