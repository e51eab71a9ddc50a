// Package handler adapts the pipeline to the Lambda runtime: one handler type
// per function, each built once per cold start and invoked per event.
package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"github.com/gurre/ddb-inventory/checkpoint"
	"github.com/gurre/ddb-inventory/ingest"
	"github.com/gurre/ddb-inventory/inventory"
	"github.com/gurre/ddb-inventory/logging"
	"github.com/gurre/ddb-inventory/metrics"
	"github.com/gurre/ddb-inventory/store"
	"github.com/gurre/ddb-inventory/upload"
	"github.com/gurre/s3streamer"
	"go.uber.org/zap"
)

// LoadHandler ingests every object named in an S3 notification.
type LoadHandler struct {
	streamer    s3streamer.Streamer
	inspector   ingest.Inspector
	writer      store.Writer
	checkpoints checkpoint.Store // Optional
	reporter    metrics.Reporter // Optional
	log         *zap.Logger
	opts        ingest.Options
}

// NewLoadHandler creates a LoadHandler. reporter may be nil. So may
// checkpoints, in which case progress lives only for one invocation.
func NewLoadHandler(
	streamer s3streamer.Streamer,
	inspector ingest.Inspector,
	writer store.Writer,
	checkpoints checkpoint.Store,
	reporter metrics.Reporter,
	log *zap.Logger,
	opts ingest.Options,
) *LoadHandler {
	return &LoadHandler{
		streamer:    streamer,
		inspector:   inspector,
		writer:      writer,
		checkpoints: checkpoints,
		reporter:    reporter,
		log:         log,
		opts:        opts,
	}
}

// Handle processes the objects one after another. An unusable upload does
// not stop the others, but a store failure stops the invocation at once so
// the platform retries it. Any failure is returned so the event is retried.
func (h *LoadHandler) Handle(ctx context.Context, event events.S3Event) error {
	log := logging.ForInvocation(ctx, h.log)

	objects, err := upload.ParseEvent(event)
	if err != nil {
		log.Error("rejected S3 event", zap.Error(err))
		return err
	}

	checkpoints := h.checkpoints
	if checkpoints == nil {
		checkpoints = checkpoint.NewMemoryStore()
	}

	m := metrics.NewMetrics()
	ing := ingest.New(h.streamer, h.inspector, h.writer, checkpoints, m, log, h.opts)

	var errs []error
	for _, obj := range objects {
		_, err := ing.Run(ctx, obj)
		if err == nil {
			continue
		}
		log.Error("failed to ingest object", zap.String("object", obj.URI()), zap.Error(err))
		errs = append(errs, err)
		if !errors.Is(err, inventory.ErrInputFormat) {
			break
		}
	}

	h.report(ctx, log, m.GenerateReport())

	if len(errs) > 0 {
		return fmt.Errorf("ingest failed for %d of %d objects: %w", len(errs), len(objects), errors.Join(errs...))
	}
	return nil
}

func (h *LoadHandler) report(ctx context.Context, log *zap.Logger, r metrics.Report) {
	log.Info("ingest report", zap.Object("report", r))
	if h.reporter == nil {
		return
	}

	runID := uuid.NewString()
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		runID = lc.AwsRequestID
	}
	if err := h.reporter.Publish(ctx, runID, r); err != nil {
		log.Warn("failed to publish ingest report", zap.Error(err))
	}
}
