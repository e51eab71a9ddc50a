package mock

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gurre/s3streamer"
)

var _ s3streamer.S3Client = (*S3Client)(nil)

// S3Client is an in-memory implementation of aws.S3Client. Ranged reads are
// honoured, so s3streamer.NewS3Streamer can stream from it.
type S3Client struct {
	mu sync.RWMutex
	// Maps bucket/key to file content
	Files map[string][]byte
	// Maps bucket/key to metadata
	Metadata map[string]map[string]string
	// Maps bucket/key to ETags
	ETags map[string]*string
	// Base directory for test files
	TestDataDir string
}

// NewS3Client creates a new mock S3 client
func NewS3Client(testDataDir string) *S3Client {
	return &S3Client{
		Files:       make(map[string][]byte),
		Metadata:    make(map[string]map[string]string),
		ETags:       make(map[string]*string),
		TestDataDir: testDataDir,
	}
}

// LoadTestFiles uploads every .csv file under the test data directory to
// bucket, keyed by its path relative to the directory.
func (m *S3Client) LoadTestFiles(bucket string) error {
	if _, err := os.Stat(m.TestDataDir); os.IsNotExist(err) {
		return fmt.Errorf("test data directory does not exist: %s", m.TestDataDir)
	}

	return filepath.Walk(m.TestDataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".csv") {
			return nil
		}

		rel, err := filepath.Rel(m.TestDataDir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		m.AddFile(bucket, filepath.ToSlash(rel), data)
		return nil
	})
}

// AddFile stores content under bucket/key with a content-derived ETag.
func (m *S3Client) AddFile(bucket, key string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.addFile(bucket, key, content, map[string]string{"Content-Type": "text/csv"})
}

func (m *S3Client) addFile(bucket, key string, content []byte, metadata map[string]string) *string {
	bucketKey := fmt.Sprintf("%s/%s", bucket, key)
	m.Files[bucketKey] = content
	if metadata == nil {
		metadata = make(map[string]string)
	}
	m.Metadata[bucketKey] = metadata

	etag := aws.String(fmt.Sprintf("\"%x\"", md5.Sum(content)))
	m.ETags[bucketKey] = etag
	return etag
}

// File returns the content stored under bucket/key.
func (m *S3Client) File(bucket, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	content, ok := m.Files[fmt.Sprintf("%s/%s", bucket, key)]
	return content, ok
}

// Keys lists the stored keys of bucket with the given prefix in order.
func (m *S3Client) Keys(bucket, prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.Files {
		key, ok := strings.CutPrefix(k, bucket+"/")
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *S3Client) lookup(bucket, key *string) ([]byte, string, error) {
	bucketKey := fmt.Sprintf("%s/%s", aws.ToString(bucket), aws.ToString(key))
	content, ok := m.Files[bucketKey]
	if !ok {
		return nil, "", &types.NoSuchKey{
			Message: aws.String(fmt.Sprintf("The specified key does not exist: %s", aws.ToString(key))),
		}
	}
	return content, bucketKey, nil
}

// parseRange applies an HTTP byte range of the form bytes=first-last.
func parseRange(header string, content []byte) ([]byte, error) {
	bounds, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, fmt.Errorf("mock S3: unsupported range %q", header)
	}
	first, last, _ := strings.Cut(bounds, "-")

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("mock S3: unsupported range %q", header)
	}
	end := int64(len(content)) - 1
	if last != "" {
		if end, err = strconv.ParseInt(last, 10, 64); err != nil {
			return nil, fmt.Errorf("mock S3: unsupported range %q", header)
		}
	}
	if end >= int64(len(content)) {
		end = int64(len(content)) - 1
	}
	if start > end {
		return []byte{}, nil
	}
	return content[start : end+1], nil
}

// GetObject implements the S3Client interface for reading objects
func (m *S3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	content, bucketKey, err := m.lookup(params.Bucket, params.Key)
	if err != nil {
		return nil, err
	}

	if params.Range != nil {
		if content, err = parseRange(*params.Range, content); err != nil {
			return nil, err
		}
	}
	contentLength := int64(len(content))

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(content)),
		Metadata:      m.Metadata[bucketKey],
		ETag:          m.ETags[bucketKey],
		ContentLength: &contentLength,
	}, nil
}

// PutObject implements the S3Client interface for writing objects
func (m *S3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	metadata := params.Metadata
	if params.ContentType != nil {
		if metadata == nil {
			metadata = make(map[string]string)
		}
		metadata["Content-Type"] = *params.ContentType
	}
	etag := m.addFile(aws.ToString(params.Bucket), aws.ToString(params.Key), data, metadata)

	return &s3.PutObjectOutput{ETag: etag}, nil
}

// HeadObject implements the S3Client interface for retrieving object metadata
func (m *S3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	content, bucketKey, err := m.lookup(params.Bucket, params.Key)
	if err != nil {
		return nil, &types.NotFound{Message: aws.String(err.Error())}
	}
	contentLength := int64(len(content))

	return &s3.HeadObjectOutput{
		ETag:          m.ETags[bucketKey],
		Metadata:      m.Metadata[bucketKey],
		ContentLength: &contentLength,
	}, nil
}

// The multipart calls complete s3streamer.S3Client. Nothing here uploads in
// parts, so they fail loudly if reached.

func (m *S3Client) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, fmt.Errorf("mock S3: multipart upload of %s not supported", aws.ToString(params.Key))
}

func (m *S3Client) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, fmt.Errorf("mock S3: multipart upload of %s not supported", aws.ToString(params.Key))
}

func (m *S3Client) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, fmt.Errorf("mock S3: multipart upload of %s not supported", aws.ToString(params.Key))
}

func (m *S3Client) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, fmt.Errorf("mock S3: multipart upload of %s not supported", aws.ToString(params.Key))
}
