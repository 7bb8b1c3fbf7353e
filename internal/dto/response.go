package dto

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"validation_error"`
	Message string `json:"message,omitempty" example:"lead_id is required"`
}

// RecordEventResponse represents a successful event ingestion response
type RecordEventResponse struct {
	EventID string `json:"event_id" example:"evt_1a2b3c4d5e6f"`
	Status  string `json:"status" example:"accepted"`
}

// RecordBulkEventsResponse represents a successful bulk event ingestion response
type RecordBulkEventsResponse struct {
	Accepted int      `json:"accepted" example:"5"`
	Rejected int      `json:"rejected" example:"0"`
	EventIDs []string `json:"event_ids,omitempty" example:"evt_1,evt_2,evt_3"`
	Errors   []string `json:"errors,omitempty" example:"validation error on event 3"`
}

// MetricsGroupData represents aggregated metrics for a specific group
type MetricsGroupData struct {
	GroupValue string `json:"group_value" example:"email"`
	TotalCount uint64 `json:"total_count" example:"1500"`
}

// GetMetricsResponse represents the engagement metrics query response
type GetMetricsResponse struct {
	Type        string             `json:"type" example:"opened"`
	From        int64              `json:"from" example:"1723475612"`
	To          int64              `json:"to" example:"1723562012"`
	TotalCount  uint64             `json:"total_count" example:"5000"`
	UniqueLeads uint64             `json:"unique_leads" example:"2500"`
	GroupBy     string             `json:"group_by,omitempty" example:"channel"`
	Groups      []MetricsGroupData `json:"groups,omitempty"`
}

// FactorContributionData is one scoring factor's contribution to a lead score
type FactorContributionData struct {
	Factor   string `json:"factor" example:"demo_requested"`
	Category string `json:"category" example:"behavioral"`
	Points   int    `json:"points" example:"20"`
}

// LeadScoreResponse represents the on-demand lead score view
type LeadScoreResponse struct {
	LeadID      string                   `json:"lead_id" example:"lead_123"`
	Score       int                      `json:"score" example:"72"`
	Temperature string                   `json:"temperature" example:"warm"`
	Breakdown   []FactorContributionData `json:"breakdown,omitempty"`
}

// VariantStatsData is one variant's observed performance
type VariantStatsData struct {
	VariantID      string  `json:"variant_id" example:"b"`
	Subjects       int     `json:"subjects" example:"500"`
	Conversions    int     `json:"conversions" example:"150"`
	ConversionRate float64 `json:"conversion_rate" example:"0.3"`
}

// ExperimentAnalysisResponse represents the experiment analysis projection
type ExperimentAnalysisResponse struct {
	ExperimentID string             `json:"experiment_id" example:"exp_42"`
	Status       string             `json:"status" example:"running"`
	PValue       float64            `json:"p_value" example:"0.032"`
	Significant  bool               `json:"significant" example:"true"`
	SampleMet    bool               `json:"sample_met" example:"true"`
	WinnerID     string             `json:"winner_id,omitempty" example:"b"`
	Variants     []VariantStatsData `json:"variants"`
}
