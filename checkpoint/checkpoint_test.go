package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// mockS3Client implements the aws.S3Client interface for testing
type mockS3Client struct {
	objects map[string][]byte
	getErr  error
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[*params.Bucket+"/"+*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[*params.Bucket+"/"+*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return nil, fmt.Errorf("not implemented")
}

func sampleState(object string) State {
	return State{
		Object:       object,
		Version:      "0055AED6DCD90281E5",
		Header:       []string{"sku", "location", "quantity"},
		LinesDone:    43,
		RowsWritten:  40,
		RowsRejected: 2,
	}
}

func assertStateEqual(t *testing.T, got, want State) {
	t.Helper()
	if got.Object != want.Object {
		t.Errorf("Object mismatch: got %s, want %s", got.Object, want.Object)
	}
	if got.Version != want.Version {
		t.Errorf("Version mismatch: got %s, want %s", got.Version, want.Version)
	}
	if len(got.Header) != len(want.Header) {
		t.Errorf("Header mismatch: got %v, want %v", got.Header, want.Header)
	}
	if got.LinesDone != want.LinesDone {
		t.Errorf("LinesDone mismatch: got %d, want %d", got.LinesDone, want.LinesDone)
	}
	if got.RowsWritten != want.RowsWritten || got.RowsRejected != want.RowsRejected {
		t.Errorf("row counts mismatch: got %d/%d, want %d/%d",
			got.RowsWritten, got.RowsRejected, want.RowsWritten, want.RowsRejected)
	}
	if got.Completed != want.Completed {
		t.Errorf("Completed mismatch: got %v, want %v", got.Completed, want.Completed)
	}
}

func TestMemoryStore_SaveLoad(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	state := sampleState("uploads/stock.csv")
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("failed to save state: %v", err)
	}

	loaded, err := store.Load(ctx, "uploads/stock.csv")
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}
	assertStateEqual(t, loaded, state)

	other, err := store.Load(ctx, "uploads/other.csv")
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}
	if other.Object != "" || other.LinesDone != 0 {
		t.Errorf("expected zero state for unknown object, got %+v", other)
	}
}

func TestMemoryStore_RejectsMissingObject(t *testing.T) {
	if err := NewMemoryStore().Save(context.Background(), State{}); err == nil {
		t.Error("expected error saving state without object")
	}
}

func TestMemoryStore_Overwrite(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := sampleState("uploads/stock.csv")
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("failed to save first state: %v", err)
	}
	second := first
	second.LinesDone = 90
	second.Completed = true
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("failed to save second state: %v", err)
	}

	loaded, err := store.Load(ctx, "uploads/stock.csv")
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}
	assertStateEqual(t, loaded, second)
}

func TestStateMatches(t *testing.T) {
	s := sampleState("uploads/stock.csv")
	if !s.Matches("uploads/stock.csv", "0055AED6DCD90281E5") {
		t.Error("expected state to match its own object and version")
	}
	if s.Matches("uploads/stock.csv", "0055AED6DCD90281E6") {
		t.Error("expected state not to match a new upload of the same key")
	}
	if s.Matches("uploads/other.csv", "0055AED6DCD90281E5") {
		t.Error("expected state not to match another object")
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	store, err := NewFileStore("file://" + t.TempDir())
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	ctx := context.Background()
	state := sampleState("uploads/daily/../stock.csv")
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("failed to save state: %v", err)
	}

	loaded, err := store.Load(ctx, state.Object)
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}
	assertStateEqual(t, loaded, state)
}

func TestFileStore_StaysInDirectory(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore("file://" + dir)
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	if err := store.Save(context.Background(), sampleState("../../escape.csv")); err != nil {
		t.Fatalf("failed to save state: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 checkpoint file in %s, got %d", dir, len(entries))
	}
}

func TestFileStore_NonExistent(t *testing.T) {
	store, err := NewFileStore("file://" + t.TempDir())
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	state, err := store.Load(context.Background(), "nonexistent.csv")
	if err != nil {
		t.Fatalf("failed to load non-existent state: %v", err)
	}
	if state.Object != "" || state.LinesDone != 0 || state.Completed {
		t.Errorf("expected empty state for non-existent file, got: %+v", state)
	}
}

func TestFileStore_InvalidURI(t *testing.T) {
	testCases := []string{
		"s3://bucket/key",
		"http://example.com/file",
		"/path/without/scheme",
	}

	for _, uri := range testCases {
		t.Run(uri, func(t *testing.T) {
			if _, err := NewFileStore(uri); err == nil {
				t.Errorf("expected error for invalid file URI: %s", uri)
			}
		})
	}
}

func TestFileStore_CreatesDirectory(t *testing.T) {
	nestedDir := filepath.Join(t.TempDir(), "nested", "dir")

	store, err := NewFileStore("file://" + nestedDir)
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	if _, err := os.Stat(nestedDir); os.IsNotExist(err) {
		t.Error("expected nested directory to be created")
	}

	if err := store.Save(context.Background(), sampleState("stock.csv")); err != nil {
		t.Fatalf("failed to save state: %v", err)
	}
}

func TestS3Store_SaveLoad(t *testing.T) {
	client := &mockS3Client{}
	store, err := NewS3Store(client, "s3://my-bucket/checkpoints/")
	if err != nil {
		t.Fatalf("failed to create S3 store: %v", err)
	}

	ctx := context.Background()
	state := sampleState("uploads/stock.csv")
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("failed to save state: %v", err)
	}
	if _, ok := client.objects["my-bucket/checkpoints/uploads/stock.csv.json"]; !ok {
		t.Errorf("expected checkpoint under prefix, got keys %v", client.objects)
	}

	loaded, err := store.Load(ctx, "uploads/stock.csv")
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}
	assertStateEqual(t, loaded, state)
}

func TestS3Store_MissingIsEmpty(t *testing.T) {
	store, err := NewS3Store(&mockS3Client{}, "s3://my-bucket/checkpoints")
	if err != nil {
		t.Fatalf("failed to create S3 store: %v", err)
	}

	state, err := store.Load(context.Background(), "uploads/stock.csv")
	if err != nil {
		t.Fatalf("expected missing checkpoint to load as empty, got %v", err)
	}
	if state.Object != "" {
		t.Errorf("expected empty state, got %+v", state)
	}
}

func TestS3Store_LoadError(t *testing.T) {
	store, err := NewS3Store(&mockS3Client{getErr: fmt.Errorf("access denied")}, "s3://my-bucket/checkpoints")
	if err != nil {
		t.Fatalf("failed to create S3 store: %v", err)
	}

	if _, err := store.Load(context.Background(), "uploads/stock.csv"); err == nil {
		t.Error("expected error to be returned")
	}
}

func TestS3Store_NewValidURI(t *testing.T) {
	store, err := NewS3Store(nil, "s3://my-bucket/path/to/checkpoints")
	if err != nil {
		t.Fatalf("failed to create S3 store: %v", err)
	}

	if store.bucket != "my-bucket" {
		t.Errorf("bucket mismatch: got %s, want my-bucket", store.bucket)
	}
	if store.prefix != "path/to/checkpoints" {
		t.Errorf("prefix mismatch: got %s, want path/to/checkpoints", store.prefix)
	}
}

func TestS3Store_InvalidURI(t *testing.T) {
	testCases := []string{
		"http://bucket/key",
		"https://bucket/key",
		"file:///path/to/file",
		"bucket/key",
		"s3:///no-bucket",
	}

	for _, uri := range testCases {
		t.Run(uri, func(t *testing.T) {
			if _, err := NewS3Store(nil, uri); err == nil {
				t.Errorf("expected error for invalid S3 URI: %s", uri)
			}
		})
	}
}

func TestNewStore(t *testing.T) {
	if s, err := NewStore(&mockS3Client{}, "s3://b/p"); err != nil {
		t.Errorf("expected S3 store, got error %v", err)
	} else if _, ok := s.(*S3Store); !ok {
		t.Errorf("expected *S3Store, got %T", s)
	}

	if s, err := NewStore(nil, "file://"+t.TempDir()); err != nil {
		t.Errorf("expected file store, got error %v", err)
	} else if _, ok := s.(*FileStore); !ok {
		t.Errorf("expected *FileStore, got %T", s)
	}

	if _, err := NewStore(nil, "ftp://host/dir"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}
