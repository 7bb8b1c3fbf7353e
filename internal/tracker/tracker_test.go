package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GrayGhostDev/leadflow/internal/domain"
	"github.com/GrayGhostDev/leadflow/internal/repository/memory"
)

var testNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newTestTracker() *Tracker {
	return New(memory.NewRepository(), Config{MaxClockSkew: 5 * time.Minute}, func() time.Time { return testNow }, zap.NewNop())
}

func TestTracker_Record_Success(t *testing.T) {
	tr := newTestTracker()

	recorded, err := tr.Record(context.Background(), domain.EngagementEvent{
		LeadID:    "lead-1",
		Channel:   domain.ChannelEmail,
		Type:      domain.EventOpened,
		Timestamp: testNow.Add(-time.Hour).Unix(),
	})

	require.NoError(t, err)
	assert.NotEmpty(t, recorded.EventID)
	assert.Equal(t, testNow, recorded.RecordedAt)

	history, err := tr.History(context.Background(), "lead-1", "")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestTracker_Record_DuplicateIsIdempotent(t *testing.T) {
	tr := newTestTracker()
	notified := 0
	tr.Subscribe(func(context.Context, domain.EngagementEvent) { notified++ })

	event := domain.EngagementEvent{
		LeadID:    "lead-1",
		Channel:   domain.ChannelEmail,
		Type:      domain.EventClicked,
		Timestamp: testNow.Add(-time.Hour).Unix(),
	}

	first, err := tr.Record(context.Background(), event)
	require.NoError(t, err)

	second, err := tr.Record(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, first.EventID, second.EventID)

	history, err := tr.History(context.Background(), "lead-1", "")
	require.NoError(t, err)
	assert.Len(t, history, 1)
	tr.Drain()
	assert.Equal(t, 1, notified, "duplicate must not re-notify subscribers")
}

func TestTracker_Record_RejectsFutureTimestamp(t *testing.T) {
	tr := newTestTracker()

	_, err := tr.Record(context.Background(), domain.EngagementEvent{
		LeadID:    "lead-1",
		Channel:   domain.ChannelEmail,
		Type:      domain.EventOpened,
		Timestamp: testNow.Add(10 * time.Minute).Unix(),
	})

	assert.True(t, domain.IsValidationError(err))
}

func TestTracker_Record_AcceptsSmallSkew(t *testing.T) {
	tr := newTestTracker()

	_, err := tr.Record(context.Background(), domain.EngagementEvent{
		LeadID:    "lead-1",
		Channel:   domain.ChannelEmail,
		Type:      domain.EventOpened,
		Timestamp: testNow.Add(2 * time.Minute).Unix(),
	})

	assert.NoError(t, err)
}

func TestTracker_Record_RejectsUnknownChannelAndType(t *testing.T) {
	tr := newTestTracker()

	_, err := tr.Record(context.Background(), domain.EngagementEvent{
		LeadID: "lead-1", Channel: "pigeon", Type: domain.EventOpened,
	})
	assert.True(t, domain.IsValidationError(err))

	_, err = tr.Record(context.Background(), domain.EngagementEvent{
		LeadID: "lead-1", Channel: domain.ChannelEmail, Type: "teleported",
	})
	assert.True(t, domain.IsValidationError(err))
}

func TestTracker_Subscribe_NotifiesOnNewEvents(t *testing.T) {
	tr := newTestTracker()

	var seen []domain.EngagementEvent
	tr.Subscribe(func(_ context.Context, e domain.EngagementEvent) { seen = append(seen, e) })

	_, err := tr.Record(context.Background(), domain.EngagementEvent{
		LeadID:    "lead-1",
		Channel:   domain.ChannelEmail,
		Type:      domain.EventReplied,
		Timestamp: testNow.Unix(),
	})

	require.NoError(t, err)
	tr.Drain()
	require.Len(t, seen, 1)
	assert.Equal(t, domain.EventReplied, seen[0].Type)
}

func TestTracker_Record_ReturnsBeforeSlowSubscriber(t *testing.T) {
	tr := newTestTracker()

	release := make(chan struct{})
	tr.Subscribe(func(context.Context, domain.EngagementEvent) { <-release })

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := tr.Record(context.Background(), domain.EngagementEvent{
			LeadID:    "lead-1",
			Channel:   domain.ChannelEmail,
			Type:      domain.EventOpened,
			Timestamp: testNow.Unix(),
		})
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a slow subscriber")
	}
	close(release)
	tr.Drain()
}

func TestTracker_Aggregates(t *testing.T) {
	tr := newTestTracker()
	ctx := context.Background()

	record := func(channel domain.Channel, eventType domain.EventType, at time.Time) {
		_, err := tr.Record(ctx, domain.EngagementEvent{
			LeadID:    "lead-1",
			Channel:   channel,
			Type:      eventType,
			Timestamp: at.Unix(),
		})
		require.NoError(t, err)
	}

	record(domain.ChannelEmail, domain.EventSent, testNow.Add(-72*time.Hour))
	record(domain.ChannelEmail, domain.EventSent, testNow.Add(-48*time.Hour))
	record(domain.ChannelEmail, domain.EventOpened, testNow.Add(-47*time.Hour))
	record(domain.ChannelEmail, domain.EventReplied, testNow.Add(-46*time.Hour))
	record(domain.ChannelCall, domain.EventReplied, testNow.Add(-20*time.Hour))
	record(domain.ChannelCall, domain.EventReplied, testNow.Add(-10*time.Hour))
	record(domain.ChannelSMS, domain.EventSent, testNow.Add(-30*24*time.Hour))

	touches, err := tr.TouchesSince(ctx, "lead-1", testNow.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, touches, "the month-old touch is outside the window")

	last, err := tr.LastEngagementAt(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-10*time.Hour), last)

	replies, err := tr.RepliesByChannel(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, map[domain.Channel]int{domain.ChannelEmail: 1, domain.ChannelCall: 2}, replies)

	opens, err := tr.OpensByHour(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, map[int]int{testNow.Add(-47 * time.Hour).UTC().Hour(): 1}, opens)
}
