package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/GrayGhostDev/leadflow/internal/domain"
	"github.com/GrayGhostDev/leadflow/internal/dto"
	"github.com/GrayGhostDev/leadflow/internal/repository"
)

var (
	testCurrentTime = time.Now().Add(-time.Hour).Unix()
	testFutureTime  = time.Now().Add(24 * time.Hour).Unix()
)

// MockQueuePublisher is a mock implementation of queue.QueuePublisher
type MockQueuePublisher struct {
	mock.Mock
}

func (m *MockQueuePublisher) PublishEvent(ctx context.Context, event *dto.RecordEventRequest, eventID string) error {
	args := m.Called(ctx, event, eventID)
	return args.Error(0)
}

// MockEventRepository is a mock implementation of repository.EventRepository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Insert(ctx context.Context, event *domain.EngagementEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventRepository) InsertBatch(ctx context.Context, events []*domain.EngagementEvent) (int, error) {
	args := m.Called(ctx, events)
	return args.Int(0), args.Error(1)
}

func (m *MockEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEventRepository) History(ctx context.Context, query repository.HistoryQuery) ([]domain.EngagementEvent, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.EngagementEvent), args.Error(1)
}

func (m *MockEventRepository) InitSchema(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEventRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEventRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockEventRepository) GetMetrics(ctx context.Context, query repository.MetricsQuery) (*repository.MetricsResult, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.MetricsResult), args.Error(1)
}

func newTestService(publisher *MockQueuePublisher, repo *MockEventRepository) *EventService {
	return NewEventService(publisher, repo, 5*time.Minute, zap.NewNop())
}

func TestEventService_ProcessEvent_Success(t *testing.T) {
	mockPublisher := new(MockQueuePublisher)
	mockRepo := new(MockEventRepository)

	service := newTestService(mockPublisher, mockRepo)

	req := &dto.RecordEventRequest{
		LeadID:     "lead123",
		Channel:    "email",
		Type:       "opened",
		CampaignID: "campaign1",
		Timestamp:  testCurrentTime,
		Metadata:   map[string]interface{}{"key": "value"},
	}

	mockPublisher.On("PublishEvent", mock.Anything, req, mock.AnythingOfType("string")).Return(nil)

	eventID, err := service.ProcessEvent(req)

	assert.NoError(t, err)
	assert.NotEmpty(t, eventID)
	mockPublisher.AssertExpectations(t)
}

func TestEventService_ProcessEvent_UnknownChannel(t *testing.T) {
	mockPublisher := new(MockQueuePublisher)
	mockRepo := new(MockEventRepository)

	service := newTestService(mockPublisher, mockRepo)

	req := &dto.RecordEventRequest{
		LeadID:    "lead123",
		Channel:   "carrier_pigeon",
		Type:      "opened",
		Timestamp: testCurrentTime,
	}

	eventID, err := service.ProcessEvent(req)

	assert.Error(t, err)
	assert.Empty(t, eventID)
	assert.Contains(t, err.Error(), "unknown channel")
	mockPublisher.AssertNotCalled(t, "PublishEvent")
}

func TestEventService_ProcessEvent_UnknownType(t *testing.T) {
	mockPublisher := new(MockQueuePublisher)
	mockRepo := new(MockEventRepository)

	service := newTestService(mockPublisher, mockRepo)

	req := &dto.RecordEventRequest{
		LeadID:    "lead123",
		Channel:   "email",
		Type:      "teleported",
		Timestamp: testCurrentTime,
	}

	eventID, err := service.ProcessEvent(req)

	assert.Error(t, err)
	assert.Empty(t, eventID)
	assert.Contains(t, err.Error(), "unknown event type")
	mockPublisher.AssertNotCalled(t, "PublishEvent")
}

func TestEventService_ProcessEvent_FutureTimestamp(t *testing.T) {
	mockPublisher := new(MockQueuePublisher)
	mockRepo := new(MockEventRepository)

	service := newTestService(mockPublisher, mockRepo)

	req := &dto.RecordEventRequest{
		LeadID:    "lead123",
		Channel:   "email",
		Type:      "opened",
		Timestamp: testFutureTime,
	}

	eventID, err := service.ProcessEvent(req)

	assert.Error(t, err)
	assert.Empty(t, eventID)
	assert.Contains(t, err.Error(), "timestamp too far in the future")
	mockPublisher.AssertNotCalled(t, "PublishEvent")
}

func TestEventService_ProcessEvent_MissingTimestampDefaults(t *testing.T) {
	mockPublisher := new(MockQueuePublisher)
	mockRepo := new(MockEventRepository)

	service := newTestService(mockPublisher, mockRepo)

	req := &dto.RecordEventRequest{
		LeadID:  "lead123",
		Channel: "email",
		Type:    "opened",
	}

	mockPublisher.On("PublishEvent", mock.Anything, req, mock.AnythingOfType("string")).Return(nil)

	eventID, err := service.ProcessEvent(req)

	assert.NoError(t, err)
	assert.NotEmpty(t, eventID)
	assert.NotZero(t, req.Timestamp, "missing timestamp is stamped at ingest")
}

func TestEventService_ProcessEvent_PublishError(t *testing.T) {
	mockPublisher := new(MockQueuePublisher)
	mockRepo := new(MockEventRepository)

	service := newTestService(mockPublisher, mockRepo)

	req := &dto.RecordEventRequest{
		LeadID:    "lead123",
		Channel:   "email",
		Type:      "opened",
		Timestamp: testCurrentTime,
	}

	publishErr := errors.New("queue publish error")
	mockPublisher.On("PublishEvent", mock.Anything, req, mock.AnythingOfType("string")).Return(publishErr)

	eventID, err := service.ProcessEvent(req)

	assert.Error(t, err)
	assert.Empty(t, eventID)
	assert.Contains(t, err.Error(), "failed to publish event to queue")
	mockPublisher.AssertExpectations(t)
}

func TestEventService_ProcessEvent_ContentHashIdempotency(t *testing.T) {
	mockPublisher := new(MockQueuePublisher)
	mockRepo := new(MockEventRepository)

	service := newTestService(mockPublisher, mockRepo)

	req := &dto.RecordEventRequest{
		LeadID:     "lead123",
		Channel:    "email",
		Type:       "opened",
		CampaignID: "campaign1",
		Timestamp:  testCurrentTime,
	}

	mockPublisher.On("PublishEvent", mock.Anything, req, mock.AnythingOfType("string")).Return(nil)

	// Same event should produce same event_id (idempotency)
	eventID1, _ := service.ProcessEvent(req)
	eventID2, _ := service.ProcessEvent(req)
	assert.Equal(t, eventID1, eventID2, "Same event should produce same event_id for idempotency")

	// Different event should produce different event_id
	reqDifferent := &dto.RecordEventRequest{
		LeadID:     "lead456",
		Channel:    "sms",
		Type:       "clicked",
		CampaignID: "campaign2",
		Timestamp:  testCurrentTime + 100,
	}

	mockPublisher.On("PublishEvent", mock.Anything, reqDifferent, mock.AnythingOfType("string")).Return(nil)

	eventID3, _ := service.ProcessEvent(reqDifferent)
	assert.NotEqual(t, eventID1, eventID3, "Different events should produce different event_ids")

	// Same content in a different field should produce different event_id
	reqDifferentChannel := &dto.RecordEventRequest{
		LeadID:     "lead123",
		Channel:    "sms", // Different channel
		Type:       "opened",
		CampaignID: "campaign1",
		Timestamp:  testCurrentTime,
	}

	mockPublisher.On("PublishEvent", mock.Anything, reqDifferentChannel, mock.AnythingOfType("string")).Return(nil)

	eventID4, _ := service.ProcessEvent(reqDifferentChannel)
	assert.NotEqual(t, eventID1, eventID4, "Different channel should produce different event_id")
}

func TestEventService_ProcessBulkEvents_AllSuccess(t *testing.T) {
	mockPublisher := new(MockQueuePublisher)
	mockRepo := new(MockEventRepository)

	service := newTestService(mockPublisher, mockRepo)

	events := []dto.RecordEventRequest{
		{
			LeadID:    "lead1",
			Channel:   "email",
			Type:      "opened",
			Timestamp: testCurrentTime,
		},
		{
			LeadID:    "lead2",
			Channel:   "sms",
			Type:      "clicked",
			Timestamp: testCurrentTime,
		},
	}

	mockPublisher.On("PublishEvent", mock.Anything, mock.Anything, mock.AnythingOfType("string")).Return(nil).Times(2)

	eventIDs, errs, err := service.ProcessBulkEvents(events)

	assert.NoError(t, err)
	assert.Len(t, eventIDs, 2)
	assert.Empty(t, errs)
	mockPublisher.AssertExpectations(t)
}

func TestEventService_ProcessBulkEvents_PartialFailure(t *testing.T) {
	mockPublisher := new(MockQueuePublisher)
	mockRepo := new(MockEventRepository)

	service := newTestService(mockPublisher, mockRepo)

	events := []dto.RecordEventRequest{
		{
			LeadID:    "lead1",
			Channel:   "email",
			Type:      "opened",
			Timestamp: testCurrentTime,
		},
		{
			LeadID:    "lead2",
			Channel:   "sms",
			Type:      "clicked",
			Timestamp: testFutureTime, // This will fail
		},
		{
			LeadID:    "lead3",
			Channel:   "email",
			Type:      "replied",
			Timestamp: testCurrentTime,
		},
	}

	mockPublisher.On("PublishEvent", mock.Anything, mock.Anything, mock.AnythingOfType("string")).Return(nil).Times(2)

	eventIDs, errs, err := service.ProcessBulkEvents(events)

	assert.NoError(t, err)
	assert.Len(t, eventIDs, 2)
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0], "timestamp too far in the future")
}

func TestEventService_ProcessBulkEvents_EmptyList(t *testing.T) {
	mockPublisher := new(MockQueuePublisher)
	mockRepo := new(MockEventRepository)

	service := newTestService(mockPublisher, mockRepo)

	eventIDs, errs, err := service.ProcessBulkEvents([]dto.RecordEventRequest{})

	assert.NoError(t, err)
	assert.Empty(t, eventIDs)
	assert.Empty(t, errs)
	mockPublisher.AssertNotCalled(t, "PublishEvent")
}

func TestEventService_GetMetrics_Success(t *testing.T) {
	mockPublisher := new(MockQueuePublisher)
	mockRepo := new(MockEventRepository)

	service := newTestService(mockPublisher, mockRepo)

	req := &dto.GetMetricsRequest{
		Type: "opened",
		From: 1000,
		To:   2000,
	}

	expectedResult := &repository.MetricsResult{
		TotalCount:  100,
		UniqueLeads: 50,
		Groups:      []repository.MetricsGroupResult{},
	}

	mockRepo.On("GetMetrics", mock.Anything, repository.MetricsQuery{
		EventType: domain.EventOpened,
		From:      1000,
		To:        2000,
		GroupBy:   "",
	}).Return(expectedResult, nil)

	response, err := service.GetMetrics(req)

	assert.NoError(t, err)
	assert.NotNil(t, response)
	assert.Equal(t, uint64(100), response.TotalCount)
	assert.Equal(t, uint64(50), response.UniqueLeads)
	assert.Equal(t, "opened", response.Type)
	mockRepo.AssertExpectations(t)
}

func TestEventService_GetMetrics_InvalidTimeRange(t *testing.T) {
	mockPublisher := new(MockQueuePublisher)
	mockRepo := new(MockEventRepository)

	service := newTestService(mockPublisher, mockRepo)

	req := &dto.GetMetricsRequest{
		Type: "opened",
		From: 2000,
		To:   1000, // Invalid: From > To
	}

	response, err := service.GetMetrics(req)

	assert.Error(t, err)
	assert.Nil(t, response)
	assert.Contains(t, err.Error(), "from timestamp must be less than or equal to to timestamp")
	mockRepo.AssertNotCalled(t, "GetMetrics")
}

func TestEventService_GetMetrics_RepositoryError(t *testing.T) {
	mockPublisher := new(MockQueuePublisher)
	mockRepo := new(MockEventRepository)

	service := newTestService(mockPublisher, mockRepo)

	req := &dto.GetMetricsRequest{
		Type: "opened",
		From: 1000,
		To:   2000,
	}

	repoErr := errors.New("database connection error")
	mockRepo.On("GetMetrics", mock.Anything, mock.Anything).Return(nil, repoErr)

	response, err := service.GetMetrics(req)

	assert.Error(t, err)
	assert.Nil(t, response)
	assert.Contains(t, err.Error(), "failed to get metrics from repository")
	mockRepo.AssertExpectations(t)
}

func TestEventService_GetMetrics_WithGroupBy(t *testing.T) {
	mockPublisher := new(MockQueuePublisher)
	mockRepo := new(MockEventRepository)

	service := newTestService(mockPublisher, mockRepo)

	req := &dto.GetMetricsRequest{
		Type:    "opened",
		From:    1000,
		To:      2000,
		GroupBy: "channel",
	}

	expectedResult := &repository.MetricsResult{
		TotalCount:  100,
		UniqueLeads: 50,
		Groups: []repository.MetricsGroupResult{
			{GroupValue: "email", TotalCount: 60},
			{GroupValue: "sms", TotalCount: 40},
		},
	}

	mockRepo.On("GetMetrics", mock.Anything, repository.MetricsQuery{
		EventType: domain.EventOpened,
		From:      1000,
		To:        2000,
		GroupBy:   "channel",
	}).Return(expectedResult, nil)

	response, err := service.GetMetrics(req)

	assert.NoError(t, err)
	assert.NotNil(t, response)
	assert.Len(t, response.Groups, 2)
	assert.Equal(t, "email", response.Groups[0].GroupValue)
	assert.Equal(t, uint64(60), response.Groups[0].TotalCount)
	assert.Equal(t, "sms", response.Groups[1].GroupValue)
	assert.Equal(t, uint64(40), response.Groups[1].TotalCount)
	mockRepo.AssertExpectations(t)
}

func TestEventService_GetMetrics_InvalidGroupBy(t *testing.T) {
	mockPublisher := new(MockQueuePublisher)
	mockRepo := new(MockEventRepository)

	service := newTestService(mockPublisher, mockRepo)

	req := &dto.GetMetricsRequest{
		Type:    "opened",
		From:    1723475612,
		To:      1723562012,
		GroupBy: "week", // Invalid group_by
	}

	response, err := service.GetMetrics(req)
	assert.Error(t, err)
	assert.Nil(t, response)
	assert.Contains(t, err.Error(), "invalid group_by value")
	assert.Contains(t, err.Error(), "week")
	mockRepo.AssertNotCalled(t, "GetMetrics")
}

func TestEventService_GetMetrics_HourlyGroupingTooLargeRange(t *testing.T) {
	mockPublisher := new(MockQueuePublisher)
	mockRepo := new(MockEventRepository)

	service := newTestService(mockPublisher, mockRepo)

	req := &dto.GetMetricsRequest{
		Type:    "opened",
		From:    1723475612,
		To:      1723475612 + 91*24*3600, // 91 days - too large
		GroupBy: "hour",
	}

	response, err := service.GetMetrics(req)
	assert.Error(t, err)
	assert.Nil(t, response)
	assert.Contains(t, err.Error(), "time range too large for hourly grouping")
	assert.Contains(t, err.Error(), "91 days")
	mockRepo.AssertNotCalled(t, "GetMetrics")
}
