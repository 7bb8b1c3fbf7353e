package delivery

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// DispatcherConfig tunes retry behavior for transient adapter failures.
type DispatcherConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Dispatcher wraps an Adapter with bounded exponential-backoff retries.
// Transient failures are retried; anything else fails immediately. Exhausted
// retries surface to the caller, which marks the execution failed and moves
// on — a dead delivery never blocks the campaign.
type Dispatcher struct {
	adapter Adapter
	config  DispatcherConfig
	log     *zap.Logger
}

// NewDispatcher creates a retrying dispatcher around the adapter.
func NewDispatcher(adapter Adapter, config DispatcherConfig, log *zap.Logger) *Dispatcher {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 5 * time.Minute
	}
	return &Dispatcher{adapter: adapter, config: config, log: log}
}

// Dispatch submits the delivery, retrying transient failures with
// exponential backoff up to the configured attempt ceiling.
func (d *Dispatcher) Dispatch(ctx context.Context, delivery Delivery) (string, error) {
	attempt := 0
	operation := func() (string, error) {
		attempt++
		deliveryID, err := d.adapter.Deliver(ctx, delivery)
		if err == nil {
			return deliveryID, nil
		}
		if !IsTransient(err) {
			return "", backoff.Permanent(err)
		}
		d.log.Warn("Transient delivery failure; will retry",
			zap.String("lead_id", delivery.LeadID),
			zap.String("campaign_id", delivery.CampaignID),
			zap.Int("step_index", delivery.StepIndex),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return "", err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = d.config.InitialBackoff
	expo.MaxInterval = d.config.MaxBackoff

	deliveryID, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(d.config.MaxAttempts)))
	if err != nil {
		d.log.Error("Delivery failed",
			zap.String("lead_id", delivery.LeadID),
			zap.String("campaign_id", delivery.CampaignID),
			zap.Int("step_index", delivery.StepIndex),
			zap.Int("attempts", attempt),
			zap.Error(err))
		return "", err
	}

	d.log.Info("Delivery dispatched",
		zap.String("lead_id", delivery.LeadID),
		zap.String("delivery_id", deliveryID),
		zap.String("channel", string(delivery.Channel)),
		zap.Int("attempts", attempt))

	return deliveryID, nil
}

// Attempts returns the configured attempt ceiling, for execution audit rows.
func (d *Dispatcher) Attempts() int { return d.config.MaxAttempts }
