package inventory

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultThreshold is the quantity below which a record raises an alert.
const DefaultThreshold = 5

// maxSubjectLen is the SNS limit on the Subject parameter.
const maxSubjectLen = 100

// Alert describes a record whose quantity fell below the threshold. It lives
// only for the duration of a single publish.
type Alert struct {
	SKU       string
	Location  string
	Name      string
	Quantity  int
	Threshold int
}

// Evaluate returns an Alert when the record's quantity is strictly below the
// threshold. A record at or above the threshold yields false.
func Evaluate(r Record, threshold int) (Alert, bool) {
	if r.Quantity >= threshold {
		return Alert{}, false
	}
	return Alert{
		SKU:       r.SKU,
		Location:  r.Location,
		Name:      r.Name,
		Quantity:  r.Quantity,
		Threshold: threshold,
	}, true
}

// Subject returns the notification subject line. SNS only accepts printable
// ASCII there, so any other rune becomes '?'; the SKU is kept intact in the
// message and attributes.
func (a Alert) Subject() string {
	var b strings.Builder
	for _, r := range "Low stock: " + a.SKU {
		if b.Len() == maxSubjectLen {
			break
		}
		if r < 0x20 || r > 0x7e {
			r = '?'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Message returns the human-readable notification body.
func (a Alert) Message() string {
	item := a.SKU
	if a.Name != "" {
		item = fmt.Sprintf("%s (%s)", a.Name, a.SKU)
	}
	return fmt.Sprintf("Low stock: %s in %s has %d left (threshold %d)",
		item, a.Location, a.Quantity, a.Threshold)
}

// Attributes returns the alert fields as string pairs for message filtering.
func (a Alert) Attributes() map[string]string {
	return map[string]string{
		AttrSKU:      a.SKU,
		AttrLocation: a.Location,
		AttrQuantity: strconv.Itoa(a.Quantity),
		"threshold":  strconv.Itoa(a.Threshold),
	}
}
