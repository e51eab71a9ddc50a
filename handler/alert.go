package handler

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gurre/ddb-inventory/inventory"
	"github.com/gurre/ddb-inventory/itemimage"
	"github.com/gurre/ddb-inventory/logging"
	"github.com/gurre/ddb-inventory/notify"
	"go.uber.org/zap"
)

// AlertHandler publishes a low-stock alert for every inserted or modified
// record whose quantity is below the threshold.
//
// When an alert cannot be published the batch stops and that record is
// returned as the batch item failure, so the record and everything after it
// in the shard are redelivered. Delivery is therefore at least once and
// subscribers may receive duplicates.
type AlertHandler struct {
	publisher notify.Publisher
	threshold int
	log       *zap.Logger
}

// NewAlertHandler creates an AlertHandler. A threshold below 1 uses
// inventory.DefaultThreshold.
func NewAlertHandler(publisher notify.Publisher, threshold int, log *zap.Logger) *AlertHandler {
	if threshold < 1 {
		threshold = inventory.DefaultThreshold
	}
	return &AlertHandler{publisher: publisher, threshold: threshold, log: log}
}

// Handle evaluates the records of the batch in order.
func (h *AlertHandler) Handle(ctx context.Context, event events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	log := logging.ForInvocation(ctx, h.log)
	resp := events.DynamoDBEventResponse{BatchItemFailures: []events.DynamoDBBatchItemFailure{}}

	published := 0
	for _, rec := range event.Records {
		change, err := itemimage.Decode(rec)
		if err != nil {
			log.Warn("skipping malformed stream record", zap.String("event_id", rec.EventID), zap.Error(err))
			continue
		}
		if change.Type == itemimage.OpRemove {
			continue
		}

		r, err := itemimage.RecordFromImage(change.NewImage)
		if err != nil {
			log.Warn("skipping stream record without usable quantity",
				zap.String("event_id", rec.EventID), zap.Error(err))
			continue
		}

		alert, low := inventory.Evaluate(r, h.threshold)
		if !low {
			continue
		}

		if err := h.publisher.Publish(ctx, alert); err != nil {
			id := change.SequenceNumber
			if id == "" {
				id = change.EventID
			}
			log.Error("failed to publish low stock alert",
				zap.String("sku", r.SKU),
				zap.String("location", r.Location),
				zap.String("sequence_number", id),
				zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.DynamoDBBatchItemFailure{ItemIdentifier: id})
			break
		}
		published++
		log.Info("published low stock alert",
			zap.String("sku", r.SKU),
			zap.String("location", r.Location),
			zap.Int("quantity", r.Quantity),
			zap.Int("threshold", h.threshold))
	}

	log.Debug("processed stream batch",
		zap.Int("records", len(event.Records)),
		zap.Int("published", published),
		zap.Int("failed", len(resp.BatchItemFailures)))
	return resp, nil
}
