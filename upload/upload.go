// Package upload turns S3 event notifications into the objects the ingest
// pipeline reads, and confirms each object is reachable before it is streamed.
package upload

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gurre/ddb-inventory/aws"
	"github.com/gurre/ddb-inventory/inventory"
)

// s3URIPattern is compiled once at package level to avoid recompilation per call.
var s3URIPattern = regexp.MustCompile(`^s3://([^/]+)/(.+)$`)

const eventSourceS3 = "aws:s3"

// Object identifies one uploaded CSV file.
type Object struct {
	Bucket    string
	Key       string // URL-decoded object key
	Size      int64
	ETag      string // Unquoted; empty until known
	VersionID string
	Sequencer string // From the notification; orders writes to the same key
}

// Version names this particular upload of the key. Redelivered notifications
// repeat the sequencer while every new PUT gets a fresh one, even with
// identical content. Objects named outside an event fall back to the ETag.
func (o Object) Version() string {
	if o.Sequencer != "" {
		return o.Sequencer
	}
	return o.ETag
}

// URI returns the object as s3://bucket/key.
func (o Object) URI() string {
	return "s3://" + o.Bucket + "/" + o.Key
}

// ParseEvent extracts the uploaded objects from an S3 notification.
// Records from another source or without bucket and key wrap
// inventory.ErrEventShape.
//
//	objects, err := upload.ParseEvent(event)
//	if err != nil {
//	    return err
//	}
func ParseEvent(event events.S3Event) ([]Object, error) {
	objects := make([]Object, 0, len(event.Records))
	for i, rec := range event.Records {
		if rec.EventSource != "" && rec.EventSource != eventSourceS3 {
			return nil, fmt.Errorf("%w: record %d: unexpected event source %q", inventory.ErrEventShape, i, rec.EventSource)
		}
		if rec.S3.Bucket.Name == "" {
			return nil, fmt.Errorf("%w: record %d: missing bucket name", inventory.ErrEventShape, i)
		}

		key, err := decodeKey(rec.S3.Object)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", inventory.ErrEventShape, i, err)
		}
		if key == "" {
			return nil, fmt.Errorf("%w: record %d: missing object key", inventory.ErrEventShape, i)
		}

		objects = append(objects, Object{
			Bucket:    rec.S3.Bucket.Name,
			Key:       key,
			Size:      rec.S3.Object.Size,
			ETag:      strings.Trim(rec.S3.Object.ETag, "\""),
			VersionID: rec.S3.Object.VersionID,
			Sequencer: rec.S3.Object.Sequencer,
		})
	}
	return objects, nil
}

// decodeKey prefers the key the runtime already decoded. Keys in S3
// notifications are form-encoded, so "+" is a space.
func decodeKey(o events.S3Object) (string, error) {
	if o.URLDecodedKey != "" {
		return o.URLDecodedKey, nil
	}
	key, err := url.QueryUnescape(o.Key)
	if err != nil {
		return "", fmt.Errorf("invalid object key %q: %w", o.Key, err)
	}
	return key, nil
}

// ParseS3URI splits s3://bucket/key into an Object.
func ParseS3URI(uri string) (Object, error) {
	matches := s3URIPattern.FindStringSubmatch(uri)
	if len(matches) != 3 {
		return Object{}, fmt.Errorf("invalid S3 URI format: %s (must be s3://bucket/key)", uri)
	}
	return Object{Bucket: matches[1], Key: matches[2]}, nil
}

// Inspector confirms uploads are readable before ingest starts.
type Inspector struct {
	client aws.S3Client
}

// NewInspector creates an Inspector.
func NewInspector(client aws.S3Client) *Inspector {
	return &Inspector{client: client}
}

// Inspect fetches the object's metadata and fills in Size and ETag. An empty,
// deleted or forbidden object wraps inventory.ErrInputFormat, since retrying
// the event cannot make it readable.
func (i *Inspector) Inspect(ctx context.Context, obj Object) (Object, error) {
	input := &s3.HeadObjectInput{
		Bucket: &obj.Bucket,
		Key:    &obj.Key,
	}
	if obj.VersionID != "" {
		input.VersionId = &obj.VersionID
	}

	resp, err := i.client.HeadObject(ctx, input)
	if err != nil {
		if unreadable(err) {
			return Object{}, fmt.Errorf("%w: %s is not readable: %w", inventory.ErrInputFormat, obj.URI(), err)
		}
		return Object{}, fmt.Errorf("failed to get metadata for %s: %w", obj.URI(), err)
	}

	if resp.ContentLength != nil {
		obj.Size = *resp.ContentLength
	}
	if resp.ETag != nil {
		// Remove the quotes that surround the ETag
		obj.ETag = strings.Trim(*resp.ETag, "\"")
	}

	if obj.Size == 0 {
		return Object{}, fmt.Errorf("%w: %s is empty", inventory.ErrInputFormat, obj.URI())
	}
	return obj, nil
}

// unreadable reports whether a HeadObject error is permanent for this object.
// HEAD responses carry no body, so S3 reports only the status as the code.
func unreadable(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "Forbidden", "AccessDenied":
			return true
		}
	}
	return false
}
