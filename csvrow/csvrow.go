// Package csvrow turns the lines of an inventory upload into records. The
// upload is read one line at a time, so the header and every row are parsed
// independently and a bad row never affects its neighbours.
//
// Quoting works within a line only. A quoted field that contains a line
// break is split across two physical lines, and each part is parsed, and
// usually rejected, as a row of its own.
package csvrow

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/gurre/ddb-inventory/inventory"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// Header maps column names to their position in a row.
type Header struct {
	Columns []string

	sku      int
	quantity int
	location int
	name     int
}

// ParseHeader parses the first line of an upload. Column names are trimmed
// and lower-cased; sku and quantity are required.
func ParseHeader(line []byte) (Header, error) {
	line = bytes.TrimPrefix(line, utf8BOM)
	fields, err := readFields(line)
	if err != nil {
		return Header{}, fmt.Errorf("%w: unreadable header: %v", inventory.ErrInputFormat, err)
	}
	return newHeader(fields)
}

func newHeader(columns []string) (Header, error) {
	h := Header{
		Columns:  make([]string, len(columns)),
		sku:      -1,
		quantity: -1,
		location: -1,
		name:     -1,
	}

	seen := make(map[string]bool, len(columns))
	for i, c := range columns {
		c = strings.ToLower(strings.TrimSpace(c))
		h.Columns[i] = c
		if c == "" {
			continue
		}
		if seen[c] {
			return Header{}, fmt.Errorf("%w: duplicate column %q", inventory.ErrInputFormat, c)
		}
		seen[c] = true

		switch c {
		case inventory.AttrSKU:
			h.sku = i
		case inventory.AttrQuantity:
			h.quantity = i
		case inventory.AttrLocation:
			h.location = i
		case inventory.AttrName:
			h.name = i
		}
	}

	if h.sku < 0 {
		return Header{}, fmt.Errorf("%w: header has no %q column", inventory.ErrInputFormat, inventory.AttrSKU)
	}
	if h.quantity < 0 {
		return Header{}, fmt.Errorf("%w: header has no %q column", inventory.ErrInputFormat, inventory.AttrQuantity)
	}
	return h, nil
}

// IsBlank reports whether a line carries no data at all.
func IsBlank(line []byte) bool {
	return len(bytes.TrimSpace(line)) == 0
}

// ParseLine converts one data line into a record. Every failure wraps
// inventory.ErrRowValidation; lineNo is only used in the error message.
func (h Header) ParseLine(lineNo int, line []byte) (inventory.Record, error) {
	fields, err := readFields(line)
	if err != nil {
		return inventory.Record{}, fmt.Errorf("%w: line %d: %v", inventory.ErrRowValidation, lineNo, err)
	}
	if len(fields) > len(h.Columns) {
		return inventory.Record{}, fmt.Errorf("%w: line %d: %d fields for %d columns",
			inventory.ErrRowValidation, lineNo, len(fields), len(h.Columns))
	}

	field := func(i int) string {
		if i < 0 || i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}

	r := inventory.Record{
		SKU:      field(h.sku),
		Location: field(h.location),
		Name:     field(h.name),
	}
	if r.SKU == "" {
		return inventory.Record{}, fmt.Errorf("%w: line %d: missing sku", inventory.ErrRowValidation, lineNo)
	}

	raw := field(h.quantity)
	if raw == "" {
		return inventory.Record{}, fmt.Errorf("%w: line %d: missing quantity for %s", inventory.ErrRowValidation, lineNo, r.SKU)
	}
	qty, err := strconv.Atoi(raw)
	if err != nil {
		return inventory.Record{}, fmt.Errorf("%w: line %d: quantity %q for %s is not an integer",
			inventory.ErrRowValidation, lineNo, raw, r.SKU)
	}
	if qty < 0 {
		return inventory.Record{}, fmt.Errorf("%w: line %d: negative quantity %d for %s",
			inventory.ErrRowValidation, lineNo, qty, r.SKU)
	}
	r.Quantity = qty

	if r.Location == "" {
		r.Location = inventory.DefaultLocation
	}

	for i, c := range h.Columns {
		if c == "" || inventory.IsReserved(c) {
			continue
		}
		if v := field(i); v != "" {
			if r.Attributes == nil {
				r.Attributes = make(map[string]string)
			}
			r.Attributes[c] = v
		}
	}

	return r, nil
}

func readFields(line []byte) ([]string, error) {
	line = bytes.TrimRight(line, "\r\n")
	reader := csv.NewReader(bytes.NewReader(line))
	reader.FieldsPerRecord = -1
	return reader.Read()
}
