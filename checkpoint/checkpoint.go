// Package checkpoint saves and loads ingest progress per uploaded object so a
// retried invocation resumes where the previous one stopped instead of
// rewriting every row.
package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	json "github.com/goccy/go-json"
	"github.com/gurre/ddb-inventory/aws"
)

// State is the progress of one object. The zero State means nothing has
// been ingested yet.
//
//	state, err := store.Load(ctx, "inventory-uploads/daily/stock.csv")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Resuming after line %d\n", state.LinesDone)
type State struct {
	Object       string   `json:"object"`    // bucket/key of the upload
	Version      string   `json:"version"`   // Upload the progress refers to: event sequencer or ETag
	Header       []string `json:"header"`    // Normalized header columns
	LinesDone    int64    `json:"linesDone"` // Physical lines consumed up to the last written row
	RowsWritten  int64    `json:"rowsWritten"`
	RowsRejected int64    `json:"rowsRejected"`
	Completed    bool     `json:"completed"`
}

// Matches reports whether s describes the given upload of an object. Progress
// recorded for an earlier upload of the same key must not be resumed.
func (s State) Matches(object, version string) bool {
	return s.Object == object && s.Version == version
}

// Store saves and loads checkpoint state keyed by object.
type Store interface {
	Load(ctx context.Context, object string) (State, error)
	Save(ctx context.Context, s State) error
}

// NewStore picks a backend from the URI scheme: s3:// or file://.
func NewStore(client aws.S3Client, uri string) (Store, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		s, err := NewS3Store(client, uri)
		if err != nil {
			return nil, err
		}
		return s, nil
	case strings.HasPrefix(uri, "file://"):
		f, err := NewFileStore(uri)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, fmt.Errorf("unsupported checkpoint URI: %s (must be s3:// or file://)", uri)
}

// S3Store keeps one JSON object per upload under a prefix.
//
//	client := s3.NewFromConfig(cfg)
//	store, err := checkpoint.NewS3Store(client, "s3://my-bucket/checkpoints")
type S3Store struct {
	client aws.S3Client
	bucket string
	prefix string
}

// NewS3Store creates a new S3Store from an s3://bucket/prefix URI.
func NewS3Store(client aws.S3Client, uri string) (*S3Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid S3 URI: %w", err)
	}
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("invalid S3 URI scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid S3 URI: %s has no bucket", uri)
	}

	return &S3Store{
		client: client,
		bucket: u.Host,
		prefix: strings.Trim(u.Path, "/"),
	}, nil
}

func (s *S3Store) key(object string) string {
	return path.Join(s.prefix, object+".json")
}

// Load returns the saved state for object, or the zero State if there is none.
func (s *S3Store) Load(ctx context.Context, object string) (State, error) {
	key := s.key(object)
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return State{}, nil
		}
		// Also check for NotFound which some S3-compatible stores return
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return State{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	return state, nil
}

// Save overwrites the state of state.Object.
func (s *S3Store) Save(ctx context.Context, state State) error {
	if state.Object == "" {
		return fmt.Errorf("checkpoint has no object")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	key := s.key(state.Object)
	contentType := "application/json"
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return nil
}

// FileStore keeps one JSON file per upload in a local directory.
//
//	store, err := checkpoint.NewFileStore("file:///tmp/checkpoints")
type FileStore struct {
	dir string
}

// NewFileStore creates a new FileStore from a file URI naming a directory.
// The path must be absolute; the directory is created if missing.
func NewFileStore(uri string) (*FileStore, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid file URI: %w", err)
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("invalid file URI scheme: %s", u.Scheme)
	}

	cleanPath := filepath.Clean(u.Path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("checkpoint path must be absolute: %s", cleanPath)
	}

	if err := os.MkdirAll(cleanPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &FileStore{dir: cleanPath}, nil
}

// path flattens the object name into a single file name so that keys with
// slashes or dots cannot escape the directory.
func (f *FileStore) path(object string) string {
	return filepath.Join(f.dir, url.PathEscape(object)+".json")
}

// Load returns the saved state for object, or the zero State if there is none.
func (f *FileStore) Load(ctx context.Context, object string) (State, error) {
	data, err := os.ReadFile(f.path(object))
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	return state, nil
}

// Save overwrites the state of state.Object.
func (f *FileStore) Save(ctx context.Context, state State) error {
	if state.Object == "" {
		return fmt.Errorf("checkpoint has no object")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := os.WriteFile(f.path(state.Object), data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}

	return nil
}
