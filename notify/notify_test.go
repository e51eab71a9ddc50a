package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gurre/ddb-inventory/inventory"
)

// mockSNSClient implements the aws.SNSClient interface for testing
type mockSNSClient struct {
	inputs []*sns.PublishInput
	err    error
}

func (m *mockSNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.inputs = append(m.inputs, params)
	id := "msg-1"
	return &sns.PublishOutput{MessageId: &id}, nil
}

const topic = "arn:aws:sns:eu-west-1:123456789012:low-stock"

func TestPublish(t *testing.T) {
	client := &mockSNSClient{}
	p := NewSNSPublisher(client, topic)

	alert := inventory.Alert{SKU: "A100", Location: "Berlin", Name: "Widget", Quantity: 3, Threshold: 5}
	if err := p.Publish(context.Background(), alert); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	if len(client.inputs) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(client.inputs))
	}
	in := client.inputs[0]
	if *in.TopicArn != topic {
		t.Errorf("unexpected topic: %s", *in.TopicArn)
	}
	if *in.Subject != "Low stock: A100" {
		t.Errorf("unexpected subject: %s", *in.Subject)
	}
	if !strings.Contains(*in.Message, "Widget (A100)") || !strings.Contains(*in.Message, "has 3 left") {
		t.Errorf("unexpected message: %s", *in.Message)
	}

	qty, ok := in.MessageAttributes["quantity"]
	if !ok || *qty.DataType != "String" || *qty.StringValue != "3" {
		t.Errorf("unexpected quantity attribute: %#v", qty)
	}
	if loc := in.MessageAttributes["location"]; *loc.StringValue != "Berlin" {
		t.Errorf("unexpected location attribute: %s", *loc.StringValue)
	}
}

func TestPublishNonASCIISKU(t *testing.T) {
	client := &mockSNSClient{}
	p := NewSNSPublisher(client, topic)

	if err := p.Publish(context.Background(), inventory.Alert{SKU: "Ärmel-1", Location: "Wien", Quantity: 2, Threshold: 5}); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}
	in := client.inputs[0]
	if *in.Subject != "Low stock: ?rmel-1" {
		t.Errorf("expected an ASCII subject, got %q", *in.Subject)
	}
	if !strings.Contains(*in.Message, "Ärmel-1") {
		t.Errorf("expected the SKU unchanged in the message, got %q", *in.Message)
	}
	if sku := in.MessageAttributes["sku"]; *sku.StringValue != "Ärmel-1" {
		t.Errorf("expected the SKU unchanged in attributes, got %q", *sku.StringValue)
	}
}

func TestPublishSkipsEmptyAttributes(t *testing.T) {
	client := &mockSNSClient{}
	p := NewSNSPublisher(client, topic)

	if err := p.Publish(context.Background(), inventory.Alert{SKU: "A100", Quantity: 0, Threshold: 5}); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}
	if _, ok := client.inputs[0].MessageAttributes["location"]; ok {
		t.Error("expected empty location to be omitted")
	}
}

func TestPublishError(t *testing.T) {
	boom := errors.New("topic does not exist")
	p := NewSNSPublisher(&mockSNSClient{err: boom}, topic)

	err := p.Publish(context.Background(), inventory.Alert{SKU: "A100", Location: "Berlin", Quantity: 1, Threshold: 5})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped publish error, got %v", err)
	}
}
