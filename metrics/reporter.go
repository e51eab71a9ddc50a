package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/gurre/ddb-inventory/aws"
)

// Reporter persists ingest reports.
type Reporter interface {
	Publish(ctx context.Context, runID string, r Report) error
}

// S3Reporter writes each report as JSON to
// s3://bucket/prefix/YYYY/MM/DD/<runID>.json.
type S3Reporter struct {
	client aws.S3Client
	bucket string
	prefix string
}

// NewS3Reporter creates a reporter from an s3://bucket/prefix URI.
func NewS3Reporter(client aws.S3Client, uri string) (*S3Reporter, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid S3 URI: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return nil, fmt.Errorf("invalid report URI: %s (must be s3://bucket/prefix)", uri)
	}
	return &S3Reporter{
		client: client,
		bucket: u.Host,
		prefix: strings.Trim(u.Path, "/"),
	}, nil
}

// Key returns the object key a report for runID is written to.
func (s *S3Reporter) Key(runID string, r Report) string {
	return path.Join(s.prefix, r.StartTime.UTC().Format("2006/01/02"), runID+".json")
}

// Publish uploads r.
func (s *S3Reporter) Publish(ctx context.Context, runID string, r Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	key := s.Key(runID, r)
	contentType := "application/json"
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload report to s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
