package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gurre/ddb-inventory/inventory"
)

func seededTable() *memoryTable {
	table := newMemoryTable()
	for _, r := range []inventory.Record{
		{SKU: "A100", Location: "Berlin", Quantity: 3, Name: "Widget"},
		{SKU: "A100", Location: "Paris", Quantity: 8},
		{SKU: "B200", Location: "Berlin", Quantity: 10, Attributes: map[string]string{"supplier": "ACME"}},
	} {
		_ = table.Put(context.Background(), r)
	}
	return table
}

func request(method, path string) events.APIGatewayV2HTTPRequest {
	req := events.APIGatewayV2HTTPRequest{RawPath: path}
	req.RequestContext.HTTP.Method = method
	req.RequestContext.Stage = "$default"
	return req
}

func TestQueryAllItems(t *testing.T) {
	log, _ := testLogger()
	resp, items := getItems(t, NewQueryHandler(seededTable(), log), "/items")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Headers["Content-Type"] != "application/json" {
		t.Errorf("unexpected content type: %s", resp.Headers["Content-Type"])
	}
	if resp.Headers["Access-Control-Allow-Origin"] != "*" {
		t.Errorf("expected CORS header, got %v", resp.Headers)
	}
	if len(items) != 3 {
		t.Fatalf("expected one item per unique key, got %d", len(items))
	}
	if items[2]["supplier"] != "ACME" {
		t.Errorf("expected extra attribute in response, got %v", items[2])
	}
	if _, ok := items[1]["name"]; ok {
		t.Errorf("expected empty name to be omitted, got %v", items[1])
	}
}

func TestQueryByLocation(t *testing.T) {
	log, _ := testLogger()
	h := NewQueryHandler(seededTable(), log)

	_, items := getItems(t, h, "/items/Berlin")
	if len(items) != 2 {
		t.Fatalf("expected 2 Berlin items, got %d", len(items))
	}
	for _, it := range items {
		if it["location"] != "Berlin" {
			t.Errorf("unexpected location: %v", it["location"])
		}
	}

	req := request(http.MethodGet, "/items/Paris")
	req.PathParameters = map[string]string{"store": "Paris"}
	resp, err := h.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(resp.Body, `"location":"Paris"`) || strings.Contains(resp.Body, "Berlin") {
		t.Errorf("unexpected body: %s", resp.Body)
	}
}

func TestQueryEmptyTable(t *testing.T) {
	log, _ := testLogger()
	resp, err := NewQueryHandler(newMemoryTable(), log).Handle(context.Background(), request(http.MethodGet, "/items"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body != `{"items":[]}` {
		t.Errorf("expected empty item list, got %d %s", resp.StatusCode, resp.Body)
	}
}

func TestQueryStoreFailure(t *testing.T) {
	table := newMemoryTable()
	table.scanErr = errors.New("table not found")
	log, logs := testLogger()

	resp, err := NewQueryHandler(table, log).Handle(context.Background(), request(http.MethodGet, "/items"))
	if err != nil {
		t.Fatalf("handler must not return errors, got %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Body, `"error"`) {
		t.Errorf("expected JSON error body, got %s", resp.Body)
	}
	if resp.Headers["Access-Control-Allow-Origin"] != "*" {
		t.Error("expected CORS header on errors")
	}
	if logs.FilterMessage("failed to read inventory").Len() != 1 {
		t.Error("expected the failure to be logged")
	}
}

func TestQueryRouting(t *testing.T) {
	testCases := []struct {
		name   string
		method string
		path   string
		stage  string
		status int
	}{
		{"trailing slash", http.MethodGet, "/items/", "", http.StatusOK},
		{"named stage", http.MethodGet, "/prod/items", "prod", http.StatusOK},
		{"fallback to context path", http.MethodGet, "", "", http.StatusOK},
		{"preflight", http.MethodOptions, "/items", "", http.StatusNoContent},
		{"post", http.MethodPost, "/items", "", http.StatusMethodNotAllowed},
		{"delete location", http.MethodDelete, "/items/Berlin", "", http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/stock", "", http.StatusNotFound},
		{"nested path", http.MethodGet, "/items/Berlin/A100", "", http.StatusNotFound},
	}

	log, _ := testLogger()
	h := NewQueryHandler(seededTable(), log)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := request(tc.method, tc.path)
			if tc.stage != "" {
				req.RequestContext.Stage = tc.stage
			}
			if tc.path == "" {
				req.RequestContext.HTTP.Path = "/items"
			}
			resp, err := h.Handle(context.Background(), req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.StatusCode != tc.status {
				t.Errorf("expected %d, got %d (%s)", tc.status, resp.StatusCode, resp.Body)
			}
			if resp.Headers["Access-Control-Allow-Origin"] != "*" {
				t.Error("expected CORS header")
			}
		})
	}
}

func TestQueryEscapedLocation(t *testing.T) {
	table := newMemoryTable()
	_ = table.Put(context.Background(), inventory.Record{SKU: "A100", Location: "New York", Quantity: 2})
	log, _ := testLogger()

	_, items := getItems(t, NewQueryHandler(table, log), "/items/New%20York")
	if len(items) != 1 {
		t.Errorf("expected 1 item for New York, got %d", len(items))
	}
}
