package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/GrayGhostDev/leadflow/internal/domain"
	"github.com/GrayGhostDev/leadflow/internal/dto"
)

const (
	testTimestamp int64 = 1766702551
)

// MockEventService is a mock implementation of service.EventServicer
type MockEventService struct {
	mock.Mock
}

func (m *MockEventService) ProcessEvent(event *dto.RecordEventRequest) (string, error) {
	args := m.Called(event)
	return args.String(0), args.Error(1)
}

func (m *MockEventService) ProcessBulkEvents(events []dto.RecordEventRequest) ([]string, []string, error) {
	args := m.Called(events)
	return args.Get(0).([]string), args.Get(1).([]string), args.Error(2)
}

func (m *MockEventService) GetMetrics(req *dto.GetMetricsRequest) (*dto.GetMetricsResponse, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.GetMetricsResponse), args.Error(1)
}

// MockInsightService is a mock implementation of service.InsightServicer
type MockInsightService struct {
	mock.Mock
}

func (m *MockInsightService) GetLeadScore(ctx context.Context, leadID string) (*dto.LeadScoreResponse, error) {
	args := m.Called(ctx, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.LeadScoreResponse), args.Error(1)
}

func (m *MockInsightService) GetExperimentAnalysis(ctx context.Context, experimentID string) (*dto.ExperimentAnalysisResponse, error) {
	args := m.Called(ctx, experimentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ExperimentAnalysisResponse), args.Error(1)
}

func newTestHandler(eventService *MockEventService, insightService *MockInsightService) *Handler {
	return NewHandler(eventService, insightService, zap.NewNop())
}

func TestHandler_HealthCheck(t *testing.T) {
	handler := newTestHandler(new(MockEventService), new(MockInsightService))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "ok", response["status"])
}

func TestHandler_RecordEvent_Success(t *testing.T) {
	mockService := new(MockEventService)
	handler := newTestHandler(mockService, new(MockInsightService))

	eventReq := dto.RecordEventRequest{
		LeadID:     "lead123",
		Channel:    "email",
		Type:       "opened",
		CampaignID: "campaign1",
		Timestamp:  testTimestamp,
	}

	mockService.On("ProcessEvent", &eventReq).Return("event-id-123", nil)

	body, _ := json.Marshal(eventReq)
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var response dto.RecordEventResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "event-id-123", response.EventID)
	assert.Equal(t, "accepted", response.Status)
	mockService.AssertExpectations(t)
}

func TestHandler_RecordEvent_InvalidJSON(t *testing.T) {
	mockService := new(MockEventService)
	handler := newTestHandler(mockService, new(MockInsightService))

	invalidJSON := []byte(`{"lead_id": "lead123", invalid}`)
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(invalidJSON))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response dto.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "validation_error", response.Error)
	mockService.AssertNotCalled(t, "ProcessEvent")
}

func TestHandler_RecordEvent_MissingRequiredFields(t *testing.T) {
	mockService := new(MockEventService)
	handler := newTestHandler(mockService, new(MockInsightService))

	eventReq := dto.RecordEventRequest{
		LeadID: "lead123",
		// Missing required fields: Channel, Type
	}

	body, _ := json.Marshal(eventReq)
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response dto.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "validation_error", response.Error)
	mockService.AssertNotCalled(t, "ProcessEvent")
}

func TestHandler_RecordEvent_ServiceError(t *testing.T) {
	mockService := new(MockEventService)
	handler := newTestHandler(mockService, new(MockInsightService))

	eventReq := dto.RecordEventRequest{
		LeadID:    "lead123",
		Channel:   "email",
		Type:      "opened",
		Timestamp: testTimestamp,
	}

	serviceErr := errors.New("queue publish error")
	mockService.On("ProcessEvent", &eventReq).Return("", serviceErr)

	body, _ := json.Marshal(eventReq)
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response dto.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "internal_error", response.Error)
	assert.Contains(t, response.Message, "queue publish error")
	mockService.AssertExpectations(t)
}

func TestHandler_RecordEventsBulk_Success(t *testing.T) {
	mockService := new(MockEventService)
	handler := newTestHandler(mockService, new(MockInsightService))

	bulkReq := dto.RecordEventsBulkRequest{
		Events: []dto.RecordEventRequest{
			{
				LeadID:    "lead1",
				Channel:   "email",
				Type:      "opened",
				Timestamp: testTimestamp,
			},
			{
				LeadID:    "lead2",
				Channel:   "sms",
				Type:      "clicked",
				Timestamp: testTimestamp,
			},
		},
	}

	mockService.On("ProcessBulkEvents", bulkReq.Events).Return(
		[]string{"event-id-1", "event-id-2"},
		[]string{},
		nil,
	)

	body, _ := json.Marshal(bulkReq)
	req := httptest.NewRequest(http.MethodPost, "/events/bulk", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var response dto.RecordBulkEventsResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, 2, response.Accepted)
	assert.Equal(t, 0, response.Rejected)
	assert.Len(t, response.EventIDs, 2)
	assert.Empty(t, response.Errors)
	mockService.AssertExpectations(t)
}

func TestHandler_RecordEventsBulk_PartialSuccess(t *testing.T) {
	mockService := new(MockEventService)
	handler := newTestHandler(mockService, new(MockInsightService))

	bulkReq := dto.RecordEventsBulkRequest{
		Events: []dto.RecordEventRequest{
			{
				LeadID:    "lead1",
				Channel:   "email",
				Type:      "opened",
				Timestamp: testTimestamp,
			},
			{
				LeadID:    "lead2",
				Channel:   "sms",
				Type:      "clicked",
				Timestamp: testTimestamp,
			},
		},
	}

	mockService.On("ProcessBulkEvents", bulkReq.Events).Return(
		[]string{"event-id-1"},
		[]string{"timestamp validation failed"},
		nil,
	)

	body, _ := json.Marshal(bulkReq)
	req := httptest.NewRequest(http.MethodPost, "/events/bulk", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var response dto.RecordBulkEventsResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, 1, response.Accepted)
	assert.Equal(t, 1, response.Rejected)
	assert.Len(t, response.EventIDs, 1)
	assert.Len(t, response.Errors, 1)
	mockService.AssertExpectations(t)
}

func TestHandler_RecordEventsBulk_EmptyEvents(t *testing.T) {
	mockService := new(MockEventService)
	handler := newTestHandler(mockService, new(MockInsightService))

	bulkReq := dto.RecordEventsBulkRequest{
		Events: []dto.RecordEventRequest{},
	}

	body, _ := json.Marshal(bulkReq)
	req := httptest.NewRequest(http.MethodPost, "/events/bulk", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response dto.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "validation_error", response.Error)
	mockService.AssertNotCalled(t, "ProcessBulkEvents")
}

func TestHandler_GetMetrics_Success(t *testing.T) {
	mockService := new(MockEventService)
	handler := newTestHandler(mockService, new(MockInsightService))

	expectedResponse := &dto.GetMetricsResponse{
		Type:        "opened",
		From:        1000,
		To:          2000,
		TotalCount:  100,
		UniqueLeads: 50,
		Groups:      []dto.MetricsGroupData{},
	}

	mockService.On("GetMetrics", &dto.GetMetricsRequest{
		Type: "opened",
		From: 1000,
		To:   2000,
	}).Return(expectedResponse, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics?type=opened&from=1000&to=2000", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response dto.GetMetricsResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "opened", response.Type)
	assert.Equal(t, uint64(100), response.TotalCount)
	assert.Equal(t, uint64(50), response.UniqueLeads)
	mockService.AssertExpectations(t)
}

func TestHandler_GetMetrics_InvalidQueryParams(t *testing.T) {
	mockService := new(MockEventService)
	handler := newTestHandler(mockService, new(MockInsightService))

	// Missing required query parameters
	req := httptest.NewRequest(http.MethodGet, "/metrics?type=opened", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response dto.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "validation_error", response.Error)
	mockService.AssertNotCalled(t, "GetMetrics")
}

func TestHandler_GetMetrics_ServiceError(t *testing.T) {
	mockService := new(MockEventService)
	handler := newTestHandler(mockService, new(MockInsightService))

	serviceErr := errors.New("database connection error")
	mockService.On("GetMetrics", &dto.GetMetricsRequest{
		Type: "opened",
		From: 1000,
		To:   2000,
	}).Return(nil, serviceErr)

	req := httptest.NewRequest(http.MethodGet, "/metrics?type=opened&from=1000&to=2000", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response dto.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "internal_error", response.Error)
	assert.Contains(t, response.Message, "database connection error")
	mockService.AssertExpectations(t)
}

func TestHandler_GetMetrics_GroupByChannel(t *testing.T) {
	mockService := new(MockEventService)
	handler := newTestHandler(mockService, new(MockInsightService))

	expectedResponse := &dto.GetMetricsResponse{
		Type:        "opened",
		From:        1766702551,
		To:          1780702551,
		TotalCount:  500,
		UniqueLeads: 250,
		GroupBy:     "channel",
		Groups: []dto.MetricsGroupData{
			{GroupValue: "email", TotalCount: 300},
			{GroupValue: "sms", TotalCount: 150},
			{GroupValue: "linkedin", TotalCount: 50},
		},
	}

	mockService.On("GetMetrics", mock.MatchedBy(func(req *dto.GetMetricsRequest) bool {
		return req.Type == "opened" &&
			req.From == 1766702551 &&
			req.To == 1780702551 &&
			req.GroupBy == "channel"
	})).Return(expectedResponse, nil)

	req, _ := http.NewRequest("GET", "/metrics?type=opened&from=1766702551&to=1780702551&group_by=channel", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response dto.GetMetricsResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "channel", response.GroupBy)
	assert.Len(t, response.Groups, 3)
	assert.Equal(t, "email", response.Groups[0].GroupValue)
	mockService.AssertExpectations(t)
}

func TestHandler_GetLeadScore_Success(t *testing.T) {
	mockInsight := new(MockInsightService)
	handler := newTestHandler(new(MockEventService), mockInsight)

	expectedResponse := &dto.LeadScoreResponse{
		LeadID:      "lead123",
		Score:       72,
		Temperature: "warm",
		Breakdown: []dto.FactorContributionData{
			{Factor: "demo_requested", Category: "behavioral", Points: 20},
		},
	}

	mockInsight.On("GetLeadScore", mock.Anything, "lead123").Return(expectedResponse, nil)

	req := httptest.NewRequest(http.MethodGet, "/leads/lead123/score", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response dto.LeadScoreResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "lead123", response.LeadID)
	assert.Equal(t, 72, response.Score)
	assert.Equal(t, "warm", response.Temperature)
	assert.Len(t, response.Breakdown, 1)
	mockInsight.AssertExpectations(t)
}

func TestHandler_GetLeadScore_NotFound(t *testing.T) {
	mockInsight := new(MockInsightService)
	handler := newTestHandler(new(MockEventService), mockInsight)

	mockInsight.On("GetLeadScore", mock.Anything, "missing").Return(nil, domain.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/leads/missing/score", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var response dto.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "not_found", response.Error)
	mockInsight.AssertExpectations(t)
}

func TestHandler_GetExperimentAnalysis_Success(t *testing.T) {
	mockInsight := new(MockInsightService)
	handler := newTestHandler(new(MockEventService), mockInsight)

	expectedResponse := &dto.ExperimentAnalysisResponse{
		ExperimentID: "exp-1",
		Status:       "running",
		PValue:       0.032,
		Significant:  true,
		SampleMet:    true,
		Variants: []dto.VariantStatsData{
			{VariantID: "a", Subjects: 500, Conversions: 120, ConversionRate: 0.24},
			{VariantID: "b", Subjects: 500, Conversions: 150, ConversionRate: 0.30},
		},
	}

	mockInsight.On("GetExperimentAnalysis", mock.Anything, "exp-1").Return(expectedResponse, nil)

	req := httptest.NewRequest(http.MethodGet, "/experiments/exp-1/analysis", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response dto.ExperimentAnalysisResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "exp-1", response.ExperimentID)
	assert.True(t, response.Significant)
	assert.Len(t, response.Variants, 2)
	mockInsight.AssertExpectations(t)
}

func TestHandler_GetExperimentAnalysis_NotFound(t *testing.T) {
	mockInsight := new(MockInsightService)
	handler := newTestHandler(new(MockEventService), mockInsight)

	mockInsight.On("GetExperimentAnalysis", mock.Anything, "missing").Return(nil, domain.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/experiments/missing/analysis", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var response dto.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "not_found", response.Error)
	mockInsight.AssertExpectations(t)
}
