package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	json "github.com/goccy/go-json"
	"github.com/gurre/ddb-inventory/inventory"
	"github.com/gurre/ddb-inventory/logging"
	"github.com/gurre/ddb-inventory/store"
	"go.uber.org/zap"
)

const itemsPath = "/items"

// QueryHandler serves the inventory over an API Gateway HTTP API.
//
//	GET /items             every record
//	GET /items/{location}  records of one location
type QueryHandler struct {
	reader store.Reader
	log    *zap.Logger
}

// NewQueryHandler creates a QueryHandler.
func NewQueryHandler(reader store.Reader, log *zap.Logger) *QueryHandler {
	return &QueryHandler{reader: reader, log: log}
}

type itemsBody struct {
	Items []inventory.Record `json:"items"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Handle routes req. Failures are reported as HTTP responses; the returned
// error is always nil so the gateway never sees a function error.
func (h *QueryHandler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	log := logging.ForInvocation(ctx, h.log)

	method := req.RequestContext.HTTP.Method
	path := requestPath(req)

	location, ok := matchItems(path, req.PathParameters)
	if !ok {
		return respond(http.StatusNotFound, errorBody{Error: "not found"}), nil
	}

	switch method {
	case http.MethodOptions:
		return respond(http.StatusNoContent, nil), nil
	case http.MethodGet, http.MethodHead:
	default:
		return respond(http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"}), nil
	}

	var (
		records []inventory.Record
		err     error
	)
	if location == "" {
		records, err = h.reader.Scan(ctx)
	} else {
		records, err = h.reader.ScanLocation(ctx, location)
	}
	if err != nil {
		log.Error("failed to read inventory", zap.String("location", location), zap.Error(err))
		return respond(http.StatusInternalServerError, errorBody{Error: "failed to read inventory"}), nil
	}

	if records == nil {
		records = []inventory.Record{}
	}
	log.Debug("served inventory", zap.String("location", location), zap.Int("items", len(records)))
	return respond(http.StatusOK, itemsBody{Items: records}), nil
}

// requestPath returns the route path without a trailing slash or the stage
// prefix API Gateway adds for named stages.
func requestPath(req events.APIGatewayV2HTTPRequest) string {
	path := req.RawPath
	if path == "" {
		path = req.RequestContext.HTTP.Path
	}
	if stage := req.RequestContext.Stage; stage != "" && stage != "$default" {
		path = strings.TrimPrefix(path, "/"+stage)
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

// matchItems reports whether path is an items route and returns the
// location it names, if any.
func matchItems(path string, params map[string]string) (string, bool) {
	if path == itemsPath {
		return "", true
	}
	rest, ok := strings.CutPrefix(path, itemsPath+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}

	for _, name := range []string{"location", "store"} {
		if v := params[name]; v != "" {
			return v, true
		}
	}
	location, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return location, true
}

func respond(status int, body any) events.APIGatewayV2HTTPResponse {
	resp := events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Access-Control-Allow-Origin":  "*",
			"Access-Control-Allow-Methods": "GET,OPTIONS",
			"Access-Control-Allow-Headers": "Content-Type",
		},
	}
	if body == nil {
		return resp
	}

	data, err := json.Marshal(body)
	if err != nil {
		resp.StatusCode = http.StatusInternalServerError
		data = []byte(`{"error":"failed to encode response"}`)
	}
	resp.Headers["Content-Type"] = "application/json"
	resp.Body = string(data)
	return resp
}
