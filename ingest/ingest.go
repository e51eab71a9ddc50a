// Package ingest loads one uploaded CSV object into the inventory table.
//
// Lines are streamed from S3, the first non-blank line is taken as the
// header, and every later line becomes one PutItem. Rows that fail
// validation are logged and counted but never stop the object; a store
// failure stops it so the invocation can be retried. Progress is
// checkpointed as the number of physical lines consumed. A resumed run reads
// the object from the start again and skips those lines without writing, so
// the position stays exact for compressed uploads and CRLF line endings,
// neither of which map stream positions onto byte ranges of the object.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/gurre/ddb-inventory/checkpoint"
	"github.com/gurre/ddb-inventory/csvrow"
	"github.com/gurre/ddb-inventory/inventory"
	"github.com/gurre/ddb-inventory/metrics"
	"github.com/gurre/ddb-inventory/store"
	"github.com/gurre/ddb-inventory/upload"
	"github.com/gurre/s3streamer"
	"go.uber.org/zap"
)

// DefaultCheckpointEvery is how many rows are written between checkpoint saves.
const DefaultCheckpointEvery = 500

// Inspector confirms an object is readable and fills in its metadata.
type Inspector interface {
	Inspect(ctx context.Context, obj upload.Object) (upload.Object, error)
}

// Options tune an Ingester.
type Options struct {
	CheckpointEvery int  // Rows between checkpoint saves; DefaultCheckpointEvery when zero
	DryRun          bool // Parse and validate only; nothing is written or checkpointed
}

// Ingester runs the ingest pipeline for single objects. It is not safe for
// concurrent use; each Lambda invocation processes its records sequentially.
type Ingester struct {
	streamer    s3streamer.Streamer
	inspector   Inspector
	writer      store.Writer
	checkpoints checkpoint.Store
	metrics     *metrics.Metrics
	log         *zap.Logger
	opts        Options
}

// New creates an Ingester. A nil checkpoint store falls back to memory.
func New(
	streamer s3streamer.Streamer,
	inspector Inspector,
	writer store.Writer,
	checkpoints checkpoint.Store,
	m *metrics.Metrics,
	log *zap.Logger,
	opts Options,
) *Ingester {
	if checkpoints == nil {
		checkpoints = checkpoint.NewMemoryStore()
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = DefaultCheckpointEvery
	}
	return &Ingester{
		streamer:    streamer,
		inspector:   inspector,
		writer:      writer,
		checkpoints: checkpoints,
		metrics:     m,
		log:         log,
		opts:        opts,
	}
}

// Result describes what Run did with one object.
type Result struct {
	Object       upload.Object
	RowsRead     int64
	RowsWritten  int64
	RowsRejected int64
	Resumed      bool // Continued from a saved position
	Skipped      bool // A completed checkpoint for this upload already existed
}

// Run ingests obj. The returned error wraps inventory.ErrInputFormat when
// the object is empty or its header is unusable, and inventory.ErrStoreAccess
// when a write failed after retries.
func (i *Ingester) Run(ctx context.Context, obj upload.Object) (Result, error) {
	obj, err := i.inspector.Inspect(ctx, obj)
	if err != nil {
		i.metrics.RecordError()
		return Result{Object: obj}, err
	}

	id := obj.Bucket + "/" + obj.Key
	version := obj.Version()
	log := i.log.With(zap.String("object", obj.URI()), zap.String("version", version))

	state, err := i.checkpoints.Load(ctx, id)
	if err != nil {
		i.metrics.RecordError()
		return Result{Object: obj}, fmt.Errorf("failed to load checkpoint for %s: %w", obj.URI(), err)
	}
	if !state.Matches(id, version) {
		state = checkpoint.State{Object: id, Version: version}
	}

	if state.Completed {
		log.Info("object already ingested, skipping",
			zap.Int64("rows_written", state.RowsWritten))
		return Result{Object: obj, Skipped: true}, nil
	}

	r := &run{
		Ingester: i,
		log:      log,
		state:    state,
		skip:     state.LinesDone,
		result:   Result{Object: obj, Resumed: state.LinesDone > 0},
	}
	if r.result.Resumed {
		log.Info("resuming ingest", zap.Int64("lines_done", state.LinesDone))
	}

	streamErr := i.streamer.Stream(ctx, obj.Bucket, obj.Key, 0, func(line []byte, _ int64) error {
		return r.line(ctx, line)
	})
	if streamErr != nil {
		i.metrics.RecordError()
		if r.fatal != nil {
			streamErr = r.fatal
		}
		// Keep what was written so a retry does not start from scratch.
		if !i.opts.DryRun && r.haveHeader {
			if err := i.checkpoints.Save(ctx, r.state); err != nil {
				log.Warn("failed to save checkpoint after error", zap.Error(err))
			}
		}
		if errors.Is(streamErr, inventory.ErrInputFormat) || errors.Is(streamErr, inventory.ErrStoreAccess) {
			return r.result, streamErr
		}
		return r.result, fmt.Errorf("failed to read %s: %w", obj.URI(), streamErr)
	}

	if !r.haveHeader {
		i.metrics.RecordError()
		return r.result, fmt.Errorf("%w: %s has no header line", inventory.ErrInputFormat, obj.URI())
	}

	r.state.Completed = true
	if !i.opts.DryRun {
		if err := i.checkpoints.Save(ctx, r.state); err != nil {
			i.metrics.RecordError()
			return r.result, fmt.Errorf("failed to save completion checkpoint for %s: %w", obj.URI(), err)
		}
	}
	i.metrics.ObjectDone()

	log.Info("object ingested",
		zap.Int64("rows_read", r.result.RowsRead),
		zap.Int64("rows_written", r.result.RowsWritten),
		zap.Int64("rows_rejected", r.result.RowsRejected),
		zap.Bool("resumed", r.result.Resumed),
		zap.Bool("dry_run", i.opts.DryRun))

	return r.result, nil
}

// run is the state of a single Run while lines stream in.
type run struct {
	*Ingester
	log        *zap.Logger
	state      checkpoint.State
	result     Result
	header     csvrow.Header
	haveHeader bool
	lineNo     int
	skip       int64 // Lines a previous attempt already consumed
	sinceSave  int
	fatal      error // Error our callback stopped the stream with
}

func (r *run) line(ctx context.Context, line []byte) error {
	r.lineNo++
	if csvrow.IsBlank(line) {
		return nil
	}

	if !r.haveHeader {
		h, err := csvrow.ParseHeader(line)
		if err != nil {
			r.fatal = err
			return err
		}
		if r.skip > 0 && !slices.Equal(h.Columns, r.state.Header) {
			r.log.Warn("header differs from checkpoint, starting over",
				zap.Strings("header", h.Columns),
				zap.Strings("checkpoint_header", r.state.Header))
			r.restart()
		}
		r.header = h
		r.haveHeader = true
		r.state.Header = h.Columns
		return nil
	}

	if int64(r.lineNo) <= r.skip {
		return nil
	}

	r.metrics.RowRead()
	r.result.RowsRead++

	rec, err := r.header.ParseLine(r.lineNo, line)
	if err != nil {
		r.metrics.RowRejected()
		r.result.RowsRejected++
		r.state.RowsRejected++
		r.state.LinesDone = int64(r.lineNo)
		r.log.Warn("rejected row",
			zap.Int("line", r.lineNo),
			zap.Error(err))
		return nil
	}

	if r.opts.DryRun {
		return nil
	}

	if err := r.writer.Put(ctx, rec); err != nil {
		r.fatal = err
		r.log.Error("failed to store row",
			zap.Int("line", r.lineNo),
			zap.String("sku", rec.SKU),
			zap.String("location", rec.Location),
			zap.Error(err))
		return err
	}
	r.metrics.RowWritten()
	r.result.RowsWritten++
	r.state.RowsWritten++
	r.state.LinesDone = int64(r.lineNo)

	r.sinceSave++
	if r.sinceSave >= r.opts.CheckpointEvery {
		r.sinceSave = 0
		if err := r.checkpoints.Save(ctx, r.state); err != nil {
			// Losing a checkpoint only costs rework on retry.
			r.metrics.RecordError()
			r.log.Warn("failed to save checkpoint", zap.Error(err))
		}
	}
	return nil
}

// restart drops the saved position so every row is read again.
func (r *run) restart() {
	r.skip = 0
	r.result.Resumed = false
	r.state = checkpoint.State{Object: r.state.Object, Version: r.state.Version}
}
