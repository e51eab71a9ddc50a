// Package notify publishes low-stock alerts to an SNS topic.
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/gurre/ddb-inventory/aws"
	"github.com/gurre/ddb-inventory/inventory"
)

// Publisher delivers alerts.
type Publisher interface {
	Publish(ctx context.Context, a inventory.Alert) error
}

// SNSPublisher sends every alert as one SNS message.
type SNSPublisher struct {
	client   aws.SNSClient
	topicARN string
}

var _ Publisher = (*SNSPublisher)(nil)

// NewSNSPublisher creates a publisher for topicARN.
func NewSNSPublisher(client aws.SNSClient, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

// Publish sends a. The alert fields are also attached as string message
// attributes so subscribers can filter on them.
func (p *SNSPublisher) Publish(ctx context.Context, a inventory.Alert) error {
	subject := a.Subject()
	message := a.Message()

	attrs := make(map[string]types.MessageAttributeValue)
	for k, v := range a.Attributes() {
		if v == "" {
			// SNS rejects empty attribute values
			continue
		}
		attrs[k] = types.MessageAttributeValue{
			DataType:    stringPtr("String"),
			StringValue: stringPtr(v),
		}
	}

	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          &p.topicARN,
		Subject:           &subject,
		Message:           &message,
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("failed to publish low stock alert for %s/%s: %w", a.SKU, a.Location, err)
	}
	return nil
}

func stringPtr(s string) *string {
	return &s
}
