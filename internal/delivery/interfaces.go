// Package delivery holds the channel-adapter boundary: the engine hands
// rendered content to an adapter and learns the outcome later through
// engagement events, never by blocking on the send.
package delivery

import (
	"context"
	"errors"

	"github.com/GrayGhostDev/leadflow/internal/domain"
)

// Content is rendered message content, opaque to the engine.
type Content struct {
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// Delivery is one outbound message command.
type Delivery struct {
	LeadID      string         `json:"lead_id"`
	CampaignID  string         `json:"campaign_id"`
	StepIndex   int            `json:"step_index"`
	Channel     domain.Channel `json:"channel"`
	TemplateRef string         `json:"template_ref"`
	VariantID   string         `json:"variant_id,omitempty"`
	Content     Content        `json:"content"`
}

// Adapter submits a delivery to an external channel provider and returns a
// provider delivery ID. Failures the provider may recover from are wrapped
// in Transient; anything else aborts retrying immediately.
type Adapter interface {
	Deliver(ctx context.Context, delivery Delivery) (string, error)
}

// Renderer produces message content for a template, variant and lead
// context. It is a pure external collaborator from the engine's view.
type Renderer interface {
	Render(ctx context.Context, templateRef, variantID string, leadContext map[string]any) (Content, error)
}

// TransientError marks an adapter failure as retryable.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string { return "transient delivery failure: " + e.Err.Error() }

// Unwrap exposes the underlying cause.
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
