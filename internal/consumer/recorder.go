package consumer

import (
	"context"

	"go.uber.org/zap"
)

// RecorderStage writes parsed engagement events through the tracker. The
// tracker's natural-key dedup makes redelivered messages safe to ack, so the
// stage acks on success and nacks only on write failure (the message becomes
// visible again for retry).
type RecorderStage struct {
	recorder EventRecorder
	log      *zap.Logger
}

// NewRecorderStage creates a new recorder stage
func NewRecorderStage(recorder EventRecorder, log *zap.Logger) *RecorderStage {
	return &RecorderStage{
		recorder: recorder,
		log:      log,
	}
}

// Start begins processing envelopes and recording events
func (w *RecorderStage) Start(ctx context.Context, in <-chan *Envelope) {
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Recorder stage shutting down")
			w.drain(ctx, in)
			return

		case envelope, ok := <-in:
			if !ok {
				w.log.Info("Recorder stage input channel closed")
				return
			}
			w.process(ctx, envelope)
		}
	}
}

// drain records whatever the upstream stages already handed off so shutdown
// never drops parsed events.
func (w *RecorderStage) drain(ctx context.Context, in <-chan *Envelope) {
	flushCtx := context.WithoutCancel(ctx)
	for {
		select {
		case envelope, ok := <-in:
			if !ok {
				return
			}
			w.process(flushCtx, envelope)
		default:
			return
		}
	}
}

func (w *RecorderStage) process(ctx context.Context, envelope *Envelope) {
	recorded, err := w.recorder.Record(ctx, *envelope.Event)
	if err != nil {
		w.log.Error("Failed to record event",
			zap.String("event_id", envelope.Event.EventID),
			zap.String("lead_id", envelope.Event.LeadID),
			zap.Error(err))
		if err := envelope.Nack(ctx); err != nil {
			w.log.Error("Failed to nack envelope", zap.Error(err))
		}
		return
	}

	w.log.Info("Event recorded",
		zap.String("event_id", recorded.EventID),
		zap.String("lead_id", recorded.LeadID),
		zap.String("type", string(recorded.Type)))

	if err := envelope.Ack(ctx); err != nil {
		w.log.Error("Failed to ack envelope",
			zap.String("event_id", recorded.EventID),
			zap.Error(err))
	}
}
