// Package inventory holds the domain types shared by the ingestion, query and
// stock-alert handlers: the stored record, the ephemeral low-stock alert and
// the error classes every handler reports through.
package inventory

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	json "github.com/goccy/go-json"
)

// Attribute names of the inventory table. sku is the partition key and
// location the sort key.
const (
	AttrSKU      = "sku"
	AttrLocation = "location"
	AttrQuantity = "quantity"
	AttrName     = "name"
)

// DefaultLocation is stored when an upload has no location column or the cell
// is blank. DynamoDB rejects empty strings in key attributes.
const DefaultLocation = "default"

// Record is one row of inventory. (SKU, Location) identifies it in the table
// and writing the same key again replaces the previous record.
type Record struct {
	SKU      string `dynamodbav:"sku"`
	Location string `dynamodbav:"location"`
	Quantity int    `dynamodbav:"quantity"`
	Name     string `dynamodbav:"name,omitempty"`

	// Attributes carries extra CSV columns. They are stored as top-level
	// string attributes and flattened into the JSON object.
	Attributes map[string]string `dynamodbav:"-"`
}

// IsReserved reports whether name is one of the modelled record attributes.
func IsReserved(name string) bool {
	switch name {
	case AttrSKU, AttrLocation, AttrQuantity, AttrName:
		return true
	}
	return false
}

// Key returns the primary key of the record.
func (r Record) Key() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrSKU:      &types.AttributeValueMemberS{Value: r.SKU},
		AttrLocation: &types.AttributeValueMemberS{Value: r.Location},
	}
}

// Item converts the record into a DynamoDB item.
func (r Record) Item() (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record %s: %w", r.SKU, err)
	}
	for k, v := range r.Attributes {
		if IsReserved(k) || v == "" {
			continue
		}
		item[k] = &types.AttributeValueMemberS{Value: v}
	}
	return item, nil
}

// RecordFromItem converts a DynamoDB item back into a Record. Unmodelled
// string attributes land in Attributes; other unmodelled types are dropped.
func RecordFromItem(item map[string]types.AttributeValue) (Record, error) {
	var r Record
	if err := attributevalue.UnmarshalMap(item, &r); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	for k, v := range item {
		if IsReserved(k) {
			continue
		}
		s, ok := v.(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		if r.Attributes == nil {
			r.Attributes = make(map[string]string)
		}
		r.Attributes[k] = s.Value
	}
	return r, nil
}

// MarshalJSON renders the record as a flat JSON object with the extra
// attributes alongside the modelled fields.
func (r Record) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, 4+len(r.Attributes))
	for k, v := range r.Attributes {
		if !IsReserved(k) {
			obj[k] = v
		}
	}
	obj[AttrSKU] = r.SKU
	obj[AttrLocation] = r.Location
	obj[AttrQuantity] = r.Quantity
	if r.Name != "" {
		obj[AttrName] = r.Name
	}
	return json.Marshal(obj)
}
