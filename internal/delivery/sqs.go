package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sqsSender is the slice of the SQS client the adapter needs.
type sqsSender interface {
	SendMessage(ctx context.Context, input *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
}

// SQSAdapter publishes delivery commands onto an SQS queue consumed by
// external channel workers. Queue errors are treated as transient; the
// dispatcher owns the retry policy.
type SQSAdapter struct {
	client   sqsSender
	queueURL string
	log      *zap.Logger
}

// NewSQSAdapter creates a queue-backed channel adapter.
func NewSQSAdapter(client sqsSender, queueURL string, log *zap.Logger) *SQSAdapter {
	return &SQSAdapter{client: client, queueURL: queueURL, log: log}
}

// Deliver publishes the delivery command and returns a generated delivery ID
// carried in the message for downstream correlation.
func (a *SQSAdapter) Deliver(ctx context.Context, delivery Delivery) (string, error) {
	deliveryID := uuid.NewString()

	body, err := json.Marshal(struct {
		DeliveryID string `json:"delivery_id"`
		Delivery
	}{DeliveryID: deliveryID, Delivery: delivery})
	if err != nil {
		return "", fmt.Errorf("failed to marshal delivery command: %w", err)
	}

	_, err = a.client.SendMessage(ctx, &awssqs.SendMessageInput{
		QueueUrl:    aws.String(a.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"Channel": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(delivery.Channel)),
			},
		},
	})
	if err != nil {
		return "", Transient(fmt.Errorf("failed to publish delivery command: %w", err))
	}

	a.log.Info("Delivery command published",
		zap.String("delivery_id", deliveryID),
		zap.String("lead_id", delivery.LeadID),
		zap.String("channel", string(delivery.Channel)))

	return deliveryID, nil
}

// TemplateRenderer is a minimal Renderer for local development: it does not
// interpret templates, it just stamps the reference and variant so the
// downstream channel worker can resolve real content.
type TemplateRenderer struct{}

// Render returns placeholder content carrying the template reference.
func (TemplateRenderer) Render(_ context.Context, templateRef, variantID string, leadContext map[string]any) (Content, error) {
	subject := templateRef
	if variantID != "" {
		subject = fmt.Sprintf("%s@%s", templateRef, variantID)
	}
	name, _ := leadContext["email"].(string)
	return Content{Subject: subject, Body: fmt.Sprintf("template=%s variant=%s to=%s", templateRef, variantID, name)}, nil
}
