// Package itemimage decodes DynamoDB stream records into SDK attribute maps
// and inventory records.
package itemimage

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gurre/ddb-inventory/inventory"
)

// OperationType is the kind of modification a stream record describes.
type OperationType int

const (
	OpInsert OperationType = iota // A new item was added
	OpModify                      // An existing item was changed
	OpRemove                      // An item was deleted
)

func (o OperationType) String() string {
	switch o {
	case OpInsert:
		return "INSERT"
	case OpModify:
		return "MODIFY"
	case OpRemove:
		return "REMOVE"
	}
	return "UNKNOWN"
}

// Change is a validated stream record.
type Change struct {
	Type           OperationType
	EventID        string
	SequenceNumber string
	Keys           map[string]types.AttributeValue
	NewImage       map[string]types.AttributeValue
	OldImage       map[string]types.AttributeValue
}

// Decode validates a stream record and converts its images. INSERT and MODIFY
// records must carry a NewImage; every failure wraps inventory.ErrEventShape.
func Decode(rec events.DynamoDBEventRecord) (Change, error) {
	c := Change{
		EventID:        rec.EventID,
		SequenceNumber: rec.Change.SequenceNumber,
	}

	switch events.DynamoDBOperationType(rec.EventName) {
	case events.DynamoDBOperationTypeInsert:
		c.Type = OpInsert
	case events.DynamoDBOperationTypeModify:
		c.Type = OpModify
	case events.DynamoDBOperationTypeRemove:
		c.Type = OpRemove
	default:
		return Change{}, fmt.Errorf("%w: event %s: unknown event name %q", inventory.ErrEventShape, rec.EventID, rec.EventName)
	}

	var err error
	if c.Keys, err = ConvertImage(rec.Change.Keys); err != nil {
		return Change{}, fmt.Errorf("%w: event %s: keys: %v", inventory.ErrEventShape, rec.EventID, err)
	}
	if c.NewImage, err = ConvertImage(rec.Change.NewImage); err != nil {
		return Change{}, fmt.Errorf("%w: event %s: new image: %v", inventory.ErrEventShape, rec.EventID, err)
	}
	if c.OldImage, err = ConvertImage(rec.Change.OldImage); err != nil {
		return Change{}, fmt.Errorf("%w: event %s: old image: %v", inventory.ErrEventShape, rec.EventID, err)
	}

	if c.Type != OpRemove && c.NewImage == nil {
		return Change{}, fmt.Errorf("%w: event %s: %s record has no new image", inventory.ErrEventShape, rec.EventID, c.Type)
	}

	return c, nil
}

// ConvertImage converts a stream image into SDK attribute values. A nil or
// empty image yields nil.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) (map[string]types.AttributeValue, error) {
	if len(image) == 0 {
		return nil, nil
	}
	out := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		av, err := convert(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

func convert(v events.DynamoDBAttributeValue) (types.AttributeValue, error) {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}, nil
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}, nil
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}, nil
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}, nil
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}, nil
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}, nil
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}, nil
	case events.DataTypeList:
		list := v.List()
		out := make([]types.AttributeValue, 0, len(list))
		for i, e := range list {
			av, err := convert(e)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			out = append(out, av)
		}
		return &types.AttributeValueMemberL{Value: out}, nil
	case events.DataTypeMap:
		m, err := ConvertImage(v.Map())
		if err != nil {
			return nil, err
		}
		if m == nil {
			m = map[string]types.AttributeValue{}
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	}
	return nil, fmt.Errorf("unsupported data type %d", v.DataType())
}

// RecordFromImage extracts an inventory record from an item image. The image
// must hold a string sku and a non-negative integer quantity; anything else
// wraps inventory.ErrEventShape.
func RecordFromImage(image map[string]types.AttributeValue) (inventory.Record, error) {
	sku, ok := image[inventory.AttrSKU].(*types.AttributeValueMemberS)
	if !ok || sku.Value == "" {
		return inventory.Record{}, fmt.Errorf("%w: image has no sku", inventory.ErrEventShape)
	}

	qty, ok := image[inventory.AttrQuantity].(*types.AttributeValueMemberN)
	if !ok {
		return inventory.Record{}, fmt.Errorf("%w: image for %s has no numeric quantity", inventory.ErrEventShape, sku.Value)
	}
	n, err := strconv.Atoi(qty.Value)
	if err != nil || n < 0 {
		return inventory.Record{}, fmt.Errorf("%w: image for %s has invalid quantity %q", inventory.ErrEventShape, sku.Value, qty.Value)
	}

	r, err := inventory.RecordFromItem(image)
	if err != nil {
		return inventory.Record{}, fmt.Errorf("%w: %v", inventory.ErrEventShape, err)
	}
	if r.Location == "" {
		r.Location = inventory.DefaultLocation
	}
	return r, nil
}
