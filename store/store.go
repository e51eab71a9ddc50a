// Package store reads and writes inventory records in DynamoDB. Every record
// is written with its own PutItem call so that rows succeed or fail
// independently and a retried upload simply overwrites what it wrote before.
package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gurre/ddb-inventory/aws"
	"github.com/gurre/ddb-inventory/inventory"
)

// Writer stores inventory records.
type Writer interface {
	Put(ctx context.Context, r inventory.Record) error
}

// Reader lists inventory records.
type Reader interface {
	Scan(ctx context.Context) ([]inventory.Record, error)
	ScanLocation(ctx context.Context, location string) ([]inventory.Record, error)
}

// DynamoDBStore implements Writer and Reader on a DynamoDB table keyed by
// (sku, location).
type DynamoDBStore struct {
	client     aws.DynamoDBClient
	tableName  string
	maxRetries int
	baseDelay  time.Duration
}

var (
	_ Writer = (*DynamoDBStore)(nil)
	_ Reader = (*DynamoDBStore)(nil)
)

// NewDynamoDBStore creates a store for tableName. maxRetries bounds the
// retries of non-throttling write errors.
func NewDynamoDBStore(client aws.DynamoDBClient, tableName string, maxRetries int) *DynamoDBStore {
	return &DynamoDBStore{
		client:     client,
		tableName:  tableName,
		maxRetries: maxRetries,
		baseDelay:  100 * time.Millisecond,
	}
}

// isThrottlingError returns true if the error is a DynamoDB throughput throttling error.
// These errors indicate temporary capacity constraints and should trigger backoff and retry.
func isThrottlingError(err error) bool {
	var throughputErr *types.ProvisionedThroughputExceededException
	var requestLimitErr *types.RequestLimitExceeded
	return errors.As(err, &throughputErr) || errors.As(err, &requestLimitErr)
}

// backoffWait sleeps for an exponentially increasing duration with jitter.
// Returns false if the context is cancelled during the wait.
func (s *DynamoDBStore) backoffWait(ctx context.Context, attempt int) bool {
	const maxDelay = 30 * time.Second

	delay := s.baseDelay * time.Duration(1<<uint(attempt))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}

	// Add jitter: random value between 0 and delay
	jitter := time.Duration(rand.Int64N(int64(delay)))
	delay = delay + jitter

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

// Put writes or overwrites a single record.
//
// Throttling errors retry until the context is cancelled; other errors retry
// up to maxRetries times. The returned error wraps inventory.ErrStoreAccess.
func (s *DynamoDBStore) Put(ctx context.Context, r inventory.Record) error {
	item, err := r.Item()
	if err != nil {
		return err
	}

	input := &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}

	attempt := 0
	retries := 0
	for {
		_, err := s.client.PutItem(ctx, input)
		if err == nil {
			return nil
		}

		if isThrottlingError(err) {
			if !s.backoffWait(ctx, attempt) {
				return fmt.Errorf("%w: put %s/%s: %w", inventory.ErrStoreAccess, r.SKU, r.Location, ctx.Err())
			}
			attempt++
			continue
		}

		if retries >= s.maxRetries {
			return fmt.Errorf("%w: put %s/%s after %d retries: %w",
				inventory.ErrStoreAccess, r.SKU, r.Location, retries, err)
		}
		if !s.backoffWait(ctx, attempt) {
			return fmt.Errorf("%w: put %s/%s: %w", inventory.ErrStoreAccess, r.SKU, r.Location, ctx.Err())
		}
		attempt++
		retries++
	}
}

// Scan returns every record in the table. Order is unspecified.
func (s *DynamoDBStore) Scan(ctx context.Context) ([]inventory.Record, error) {
	return s.scan(ctx, &dynamodb.ScanInput{
		TableName: &s.tableName,
	})
}

// ScanLocation returns the records stored for one location.
func (s *DynamoDBStore) ScanLocation(ctx context.Context, location string) ([]inventory.Record, error) {
	filter := "#loc = :loc"
	return s.scan(ctx, &dynamodb.ScanInput{
		TableName:                &s.tableName,
		FilterExpression:         &filter,
		ExpressionAttributeNames: map[string]string{"#loc": inventory.AttrLocation},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":loc": &types.AttributeValueMemberS{Value: location},
		},
	})
}

func (s *DynamoDBStore) scan(ctx context.Context, input *dynamodb.ScanInput) ([]inventory.Record, error) {
	records := make([]inventory.Record, 0)

	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: scan %s: %w", inventory.ErrStoreAccess, s.tableName, err)
		}
		for _, item := range page.Items {
			r, err := inventory.RecordFromItem(item)
			if err != nil {
				return nil, fmt.Errorf("%w: scan %s: %w", inventory.ErrStoreAccess, s.tableName, err)
			}
			records = append(records, r)
		}
	}

	return records, nil
}
