package handler

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

func streamRecord(id, eventName, sku, location, quantity string) events.DynamoDBEventRecord {
	image := map[string]events.DynamoDBAttributeValue{
		"sku":      events.NewStringAttribute(sku),
		"location": events.NewStringAttribute(location),
	}
	if quantity != "" {
		image["quantity"] = events.NewNumberAttribute(quantity)
	}

	rec := events.DynamoDBEventRecord{
		EventID:     id,
		EventName:   eventName,
		EventSource: "aws:dynamodb",
		Change: events.DynamoDBStreamRecord{
			Keys: map[string]events.DynamoDBAttributeValue{
				"sku":      events.NewStringAttribute(sku),
				"location": events.NewStringAttribute(location),
			},
			SequenceNumber: "seq-" + id,
		},
	}
	if eventName == "REMOVE" {
		rec.Change.OldImage = image
	} else {
		rec.Change.NewImage = image
	}
	return rec
}

func streamEvent(records ...events.DynamoDBEventRecord) events.DynamoDBEvent {
	return events.DynamoDBEvent{Records: records}
}

func TestAlertThreshold(t *testing.T) {
	testCases := []struct {
		quantity string
		alerts   int
	}{
		{"0", 1},
		{"4", 1},
		{"5", 0},
		{"6", 0},
	}

	for _, tc := range testCases {
		t.Run(tc.quantity, func(t *testing.T) {
			pub := &mockPublisher{}
			log, _ := testLogger()
			h := NewAlertHandler(pub, 5, log)

			_, err := h.Handle(context.Background(), streamEvent(streamRecord("1", "INSERT", "A100", "Berlin", tc.quantity)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(pub.alerts) != tc.alerts {
				t.Errorf("quantity %s: expected %d alerts, got %d", tc.quantity, tc.alerts, len(pub.alerts))
			}
		})
	}
}

func TestAlertModifyAndRemove(t *testing.T) {
	pub := &mockPublisher{}
	log, _ := testLogger()
	h := NewAlertHandler(pub, 5, log)

	_, err := h.Handle(context.Background(), streamEvent(
		streamRecord("1", "MODIFY", "A100", "Berlin", "2"),
		streamRecord("2", "REMOVE", "B200", "Berlin", "1"),
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.alerts) != 1 || pub.alerts[0].SKU != "A100" {
		t.Errorf("expected only the MODIFY to alert, got %+v", pub.alerts)
	}
}

func TestAlertSkipsMalformedRecords(t *testing.T) {
	pub := &mockPublisher{}
	log, logs := testLogger()
	h := NewAlertHandler(pub, 5, log)

	resp, err := h.Handle(context.Background(), streamEvent(
		streamRecord("1", "INSERT", "A100", "Berlin", ""),
		events.DynamoDBEventRecord{EventID: "2", EventName: "TRUNCATE"},
		streamRecord("3", "INSERT", "C300", "Paris", "1"),
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("malformed records must not be retried, got %v", resp.BatchItemFailures)
	}
	if len(pub.alerts) != 1 || pub.alerts[0].SKU != "C300" {
		t.Errorf("expected only C300 to alert, got %+v", pub.alerts)
	}
	if n := logs.FilterField(zap.String("event_id", "1")).Len(); n != 1 {
		t.Errorf("expected a log entry for record 1, got %d", n)
	}
}

func TestAlertPublishFailureIsReported(t *testing.T) {
	pub := &mockPublisher{failOn: "B200"}
	log, _ := testLogger()
	h := NewAlertHandler(pub, 5, log)

	resp, err := h.Handle(context.Background(), streamEvent(
		streamRecord("1", "INSERT", "A100", "Berlin", "1"),
		streamRecord("2", "INSERT", "B200", "Berlin", "2"),
		streamRecord("3", "INSERT", "C300", "Berlin", "3"),
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "seq-2" {
		t.Errorf("expected seq-2 to be reported, got %v", resp.BatchItemFailures)
	}
	// C300 follows the failure and is redelivered with it.
	if len(pub.alerts) != 1 || pub.alerts[0].SKU != "A100" {
		t.Errorf("expected only A100 to be published, got %+v", pub.alerts)
	}
}

func TestAlertDefaultThreshold(t *testing.T) {
	log, _ := testLogger()
	if h := NewAlertHandler(&mockPublisher{}, 0, log); h.threshold != 5 {
		t.Errorf("expected default threshold 5, got %d", h.threshold)
	}
}

func TestAlertEmptyBatch(t *testing.T) {
	log, _ := testLogger()
	resp, err := NewAlertHandler(&mockPublisher{}, 5, log).Handle(context.Background(), events.DynamoDBEvent{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.BatchItemFailures == nil {
		t.Error("expected an empty, non-nil failure list")
	}
}
