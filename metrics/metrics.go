// Package metrics counts what an ingest run did with each row and produces
// the report that is logged at the end of every invocation.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap/zapcore"
)

// Metrics collects ingest counters. Counters are atomic so a Metrics can be
// shared by the handler and the ingester without locking.
type Metrics struct {
	objects      int64 // Uploads fully ingested
	rowsRead     int64 // Data lines seen, blank lines excluded
	rowsWritten  int64 // Rows stored in the table
	rowsRejected int64 // Rows that failed validation
	errors       int64 // Store, read and checkpoint failures

	startTime time.Time
}

// NewMetrics creates a new Metrics instance with initialized counters
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// ObjectDone increments the completed uploads counter
func (m *Metrics) ObjectDone() {
	atomic.AddInt64(&m.objects, 1)
}

// RowRead increments the rows read counter
func (m *Metrics) RowRead() {
	atomic.AddInt64(&m.rowsRead, 1)
}

// RowWritten increments the rows written counter
func (m *Metrics) RowWritten() {
	atomic.AddInt64(&m.rowsWritten, 1)
}

// RowRejected increments the rejected rows counter
func (m *Metrics) RowRejected() {
	atomic.AddInt64(&m.rowsRejected, 1)
}

// RecordError increments the errors counter
func (m *Metrics) RecordError() {
	atomic.AddInt64(&m.errors, 1)
}

// Report is the summary of one ingest run.
type Report struct {
	StartTime    time.Time     `json:"startTime"`
	EndTime      time.Time     `json:"endTime"`
	Objects      int64         `json:"objects"`
	RowsRead     int64         `json:"rowsRead"`
	RowsWritten  int64         `json:"rowsWritten"`
	RowsRejected int64         `json:"rowsRejected"`
	Errors       int64         `json:"errors"`
	Duration     time.Duration `json:"duration"`
	Throughput   float64       `json:"throughput"` // Rows written per second
}

// GenerateReport snapshots the counters into a Report.
func (m *Metrics) GenerateReport() Report {
	endTime := time.Now()
	duration := endTime.Sub(m.startTime)

	written := atomic.LoadInt64(&m.rowsWritten)
	var throughput float64
	if duration > 0 {
		throughput = float64(written) / duration.Seconds()
	}

	return Report{
		StartTime:    m.startTime,
		EndTime:      endTime,
		Objects:      atomic.LoadInt64(&m.objects),
		RowsRead:     atomic.LoadInt64(&m.rowsRead),
		RowsWritten:  written,
		RowsRejected: atomic.LoadInt64(&m.rowsRejected),
		Errors:       atomic.LoadInt64(&m.errors),
		Duration:     duration,
		Throughput:   throughput,
	}
}

// MarshalJSON renders Duration as a Go duration string.
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		Duration string `json:"duration"`
	}{
		Alias:    Alias(r),
		Duration: r.Duration.String(),
	})
}

// MarshalLogObject lets the report be logged with zap.Object.
func (r Report) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("objects", r.Objects)
	enc.AddInt64("rowsRead", r.RowsRead)
	enc.AddInt64("rowsWritten", r.RowsWritten)
	enc.AddInt64("rowsRejected", r.RowsRejected)
	enc.AddInt64("errors", r.Errors)
	enc.AddDuration("duration", r.Duration)
	enc.AddFloat64("throughput", r.Throughput)
	return nil
}

// String returns a human-readable summary for console output.
func (r Report) String() string {
	return fmt.Sprintf(
		"Ingest completed in %s\n"+
			"Objects: %d\n"+
			"Rows read: %d\n"+
			"Rows written: %d\n"+
			"Rows rejected: %d\n"+
			"Errors: %d\n"+
			"Throughput: %.2f rows/sec",
		r.Duration,
		r.Objects,
		r.RowsRead,
		r.RowsWritten,
		r.RowsRejected,
		r.Errors,
		r.Throughput,
	)
}
