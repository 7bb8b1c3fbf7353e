package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/GrayGhostDev/leadflow/internal/domain"
)

// fakeAdapter fails a configured number of times before succeeding.
type fakeAdapter struct {
	failures  int
	permanent bool
	calls     int
}

func (f *fakeAdapter) Deliver(context.Context, Delivery) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		if f.permanent {
			return "", errors.New("rejected by provider")
		}
		return "", Transient(errors.New("provider unavailable"))
	}
	return "delivery-123", nil
}

func testConfig() DispatcherConfig {
	return DispatcherConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func testDelivery() Delivery {
	return Delivery{LeadID: "lead-1", CampaignID: "camp-1", StepIndex: 0, Channel: domain.ChannelEmail, TemplateRef: "intro"}
}

func TestDispatcher_Dispatch_SucceedsFirstTry(t *testing.T) {
	adapter := &fakeAdapter{}
	dispatcher := NewDispatcher(adapter, testConfig(), zap.NewNop())

	deliveryID, err := dispatcher.Dispatch(context.Background(), testDelivery())

	assert.NoError(t, err)
	assert.Equal(t, "delivery-123", deliveryID)
	assert.Equal(t, 1, adapter.calls)
}

func TestDispatcher_Dispatch_RetriesTransientFailures(t *testing.T) {
	adapter := &fakeAdapter{failures: 2}
	dispatcher := NewDispatcher(adapter, testConfig(), zap.NewNop())

	deliveryID, err := dispatcher.Dispatch(context.Background(), testDelivery())

	assert.NoError(t, err)
	assert.Equal(t, "delivery-123", deliveryID)
	assert.Equal(t, 3, adapter.calls)
}

func TestDispatcher_Dispatch_ExhaustsBoundedAttempts(t *testing.T) {
	adapter := &fakeAdapter{failures: 10}
	dispatcher := NewDispatcher(adapter, testConfig(), zap.NewNop())

	_, err := dispatcher.Dispatch(context.Background(), testDelivery())

	assert.Error(t, err)
	assert.Equal(t, 3, adapter.calls, "attempts are bounded")
}

func TestDispatcher_Dispatch_PermanentFailureNotRetried(t *testing.T) {
	adapter := &fakeAdapter{failures: 10, permanent: true}
	dispatcher := NewDispatcher(adapter, testConfig(), zap.NewNop())

	_, err := dispatcher.Dispatch(context.Background(), testDelivery())

	assert.Error(t, err)
	assert.Equal(t, 1, adapter.calls)
}

func TestTransient_WrapsAndUnwraps(t *testing.T) {
	cause := errors.New("socket timeout")
	err := Transient(cause)

	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsTransient(cause))
	assert.Nil(t, Transient(nil))
}
