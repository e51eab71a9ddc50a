package mock

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBClient is an in-memory implementation of aws.DynamoDBClient.
// Items are keyed by the sku and location attributes of the inventory table.
type DynamoDBClient struct {
	// tableName -> "sku#location" -> attributes
	tableData map[string]map[string]map[string]types.AttributeValue
	mu        sync.RWMutex

	// PageSize caps the items returned by a single Scan call. Zero means
	// no limit.
	PageSize int

	puts          int
	failNextWrite error
	failSKU       string
	failSKUErr    error
	failMu        sync.Mutex
}

// NewDynamoDBClient creates a new mock DynamoDB client
func NewDynamoDBClient() *DynamoDBClient {
	return &DynamoDBClient{
		tableData: make(map[string]map[string]map[string]types.AttributeValue),
	}
}

// itemKey builds the storage key from the table's hash and range attributes.
func itemKey(item map[string]types.AttributeValue) (string, error) {
	sku := stringValue(item["sku"])
	if sku == "" {
		return "", fmt.Errorf("mock DynamoDB: item is missing the sku key")
	}
	location := stringValue(item["location"])
	if location == "" {
		return "", fmt.Errorf("mock DynamoDB: item is missing the location key")
	}
	return sku + "#" + location, nil
}

func stringValue(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	default:
		return ""
	}
}

// FailNextWrite makes the next PutItem call return err.
func (m *DynamoDBClient) FailNextWrite(err error) {
	m.failMu.Lock()
	defer m.failMu.Unlock()

	m.failNextWrite = err
}

// FailWriteOf makes the next PutItem of an item with the given sku return err.
func (m *DynamoDBClient) FailWriteOf(sku string, err error) {
	m.failMu.Lock()
	defer m.failMu.Unlock()

	m.failSKU, m.failSKUErr = sku, err
}

func (m *DynamoDBClient) takeFailure(item map[string]types.AttributeValue) error {
	m.failMu.Lock()
	defer m.failMu.Unlock()

	if m.failSKUErr != nil && stringValue(item["sku"]) == m.failSKU {
		err := m.failSKUErr
		m.failSKU, m.failSKUErr = "", nil
		return err
	}
	err := m.failNextWrite
	m.failNextWrite = nil
	return err
}

// PutItem stores the item, replacing any item with the same key.
func (m *DynamoDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if err := m.takeFailure(params.Item); err != nil {
		return nil, err
	}

	key, err := itemKey(params.Item)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tableName := *params.TableName
	if _, exists := m.tableData[tableName]; !exists {
		m.tableData[tableName] = make(map[string]map[string]types.AttributeValue)
	}
	m.tableData[tableName][key] = params.Item
	m.puts++

	return &dynamodb.PutItemOutput{}, nil
}

// Scan returns the table in key order. Pagination follows PageSize and the
// only supported filter is an equality on the location attribute.
func (m *DynamoDBClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	table, exists := m.tableData[*params.TableName]
	if !exists {
		return &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{}}, nil
	}

	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if params.ExclusiveStartKey != nil {
		after, err := itemKey(params.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		start = sort.SearchStrings(keys, after)
		if start < len(keys) && keys[start] == after {
			start++
		}
	}

	end := len(keys)
	if m.PageSize > 0 && start+m.PageSize < end {
		end = start + m.PageSize
	}

	location := ""
	if params.FilterExpression != nil {
		location = stringValue(params.ExpressionAttributeValues[":loc"])
	}

	out := &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{}}
	for _, k := range keys[start:end] {
		item := table[k]
		out.ScannedCount++
		if location != "" && stringValue(item["location"]) != location {
			continue
		}
		out.Items = append(out.Items, item)
		out.Count++
	}
	if end < len(keys) {
		last := table[keys[end-1]]
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"sku":      last["sku"],
			"location": last["location"],
		}
	}

	return out, nil
}

// GetTableContents returns the contents of a table for verification
func (m *DynamoDBClient) GetTableContents(tableName string) map[string]map[string]types.AttributeValue {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if data, exists := m.tableData[tableName]; exists {
		return data
	}
	return nil
}

// Quantity returns the stored quantity of an item, or -1 when it is absent.
func (m *DynamoDBClient) Quantity(tableName, sku, location string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.tableData[tableName][sku+"#"+location]
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(stringValue(item["quantity"]))
	if err != nil {
		return -1
	}
	return n
}

// Puts returns the number of successful PutItem calls.
func (m *DynamoDBClient) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.puts
}
