package metrics

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMetricsHappyPath(t *testing.T) {
	m := NewMetrics()

	m.RowRead()
	m.RowRead()
	m.RowRead()
	m.RowWritten()
	m.RowWritten()
	m.RowRejected()
	m.RecordError()
	m.ObjectDone()

	// Simulate some processing time
	time.Sleep(100 * time.Millisecond)

	report := m.GenerateReport()

	if report.RowsRead != 3 {
		t.Errorf("expected 3 rows read, got %d", report.RowsRead)
	}
	if report.RowsWritten != 2 {
		t.Errorf("expected 2 rows written, got %d", report.RowsWritten)
	}
	if report.RowsRejected != 1 {
		t.Errorf("expected 1 rejected row, got %d", report.RowsRejected)
	}
	if report.Errors != 1 || report.Objects != 1 {
		t.Errorf("expected 1 error and 1 object, got %d and %d", report.Errors, report.Objects)
	}
	if report.Duration < 100*time.Millisecond {
		t.Errorf("expected duration >= 100ms, got %v", report.Duration)
	}
	if report.Throughput <= 0 {
		t.Errorf("expected positive throughput, got %f", report.Throughput)
	}

	if !strings.Contains(report.String(), "Rows rejected: 1") {
		t.Errorf("unexpected string representation: %s", report.String())
	}
}

func TestReportJSON(t *testing.T) {
	r := Report{RowsWritten: 7, Duration: 1500 * time.Millisecond}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("failed to marshal report: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal report: %v", err)
	}
	if decoded["duration"] != "1.5s" {
		t.Errorf("expected duration 1.5s, got %v", decoded["duration"])
	}
	if decoded["rowsWritten"] != float64(7) {
		t.Errorf("expected rowsWritten 7, got %v", decoded["rowsWritten"])
	}
}

func TestReportLogObject(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	zap.New(core).Info("done", zap.Object("report", Report{RowsRejected: 2}))

	fields := logs.All()[0].ContextMap()
	report, ok := fields["report"].(map[string]any)
	if !ok {
		t.Fatalf("expected report object, got %#v", fields["report"])
	}
	if report["rowsRejected"] != int64(2) {
		t.Errorf("expected rowsRejected 2, got %#v", report["rowsRejected"])
	}
}

// mockS3Client implements the aws.S3Client interface for testing
type mockS3Client struct {
	puts   map[string][]byte
	putErr error
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	if m.puts == nil {
		m.puts = make(map[string][]byte)
	}
	m.puts[*params.Bucket+"/"+*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return nil, fmt.Errorf("not implemented")
}

func TestS3ReporterPublish(t *testing.T) {
	client := &mockS3Client{}
	reporter, err := NewS3Reporter(client, "s3://reports/ingest/")
	if err != nil {
		t.Fatalf("failed to create reporter: %v", err)
	}

	r := Report{
		StartTime:   time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC),
		RowsWritten: 3,
	}
	if err := reporter.Publish(context.Background(), "req-1", r); err != nil {
		t.Fatalf("failed to publish report: %v", err)
	}

	data, ok := client.puts["reports/ingest/2024/05/01/req-1.json"]
	if !ok {
		t.Fatalf("expected report at dated key, got %v", client.puts)
	}
	if !strings.Contains(string(data), `"rowsWritten":3`) {
		t.Errorf("unexpected report body: %s", data)
	}
}

func TestS3ReporterPublishError(t *testing.T) {
	reporter, err := NewS3Reporter(&mockS3Client{putErr: fmt.Errorf("denied")}, "s3://reports/ingest")
	if err != nil {
		t.Fatalf("failed to create reporter: %v", err)
	}
	if err := reporter.Publish(context.Background(), "req-1", Report{}); err == nil {
		t.Error("expected upload error")
	}
}

func TestNewS3ReporterInvalidURI(t *testing.T) {
	for _, uri := range []string{"reports/ingest", "file:///tmp", "s3:///ingest"} {
		if _, err := NewS3Reporter(nil, uri); err == nil {
			t.Errorf("expected error for %s", uri)
		}
	}
}
