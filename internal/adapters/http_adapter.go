package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"queryforge/internal/models"
)

// PathResolver maps an entity name to its REST path. Usually backed by
// the schema registry's APIPath fields.
type PathResolver func(entity string) string

// HTTPAdapter executes steps against a REST backend. Filters become query
// parameters; relations are requested via the expand parameter.
type HTTPAdapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	pathFor    PathResolver
	logger     *logrus.Logger
}

// NewHTTPAdapter creates an adapter against baseURL. pathFor may be nil,
// in which case entities map to /admin/<entity>s.
func NewHTTPAdapter(baseURL, apiKey string, pathFor PathResolver) *HTTPAdapter {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if pathFor == nil {
		pathFor = func(entity string) string { return "/admin/" + entity + "s" }
	}

	return &HTTPAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		pathFor: pathFor,
		logger:  logger,
	}
}

// Execute performs the step operation over HTTP.
func (a *HTTPAdapter) Execute(ctx context.Context, req Request) (*Result, error) {
	endpoint := a.baseURL + a.pathFor(req.Entity)

	// retrieve by id addresses the single resource directly
	if req.Operation == models.OpRetrieve {
		if id, ok := req.Filters["id"]; ok {
			endpoint = fmt.Sprintf("%s/%v", endpoint, id)
		}
	}

	params := url.Values{}
	for field, value := range req.Filters {
		if req.Operation == models.OpRetrieve && field == "id" {
			continue
		}
		params.Set(field, fmt.Sprintf("%v", value))
	}
	if len(req.Relations) > 0 {
		params.Set("expand", strings.Join(req.Relations, ","))
	}
	if req.Pagination.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Pagination.Limit))
	}
	if req.Pagination.Offset > 0 {
		params.Set("offset", strconv.Itoa(req.Pagination.Offset))
	}
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	a.logger.WithFields(logrus.Fields{
		"entity":    req.Entity,
		"operation": req.Operation,
		"endpoint":  endpoint,
	}).Info("Dispatching HTTP step")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return decodeResponse(req, body)
}

// decodeResponse normalizes the three upstream response shapes (bare
// object, bare array, wrapped collection) into a Result.
func decodeResponse(req Request, body []byte) (*Result, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	switch v := raw.(type) {
	case []any:
		return &Result{Data: toRecords(v)}, nil
	case map[string]any:
		// wrapped collection: {"orders": [...], "count": N} or {"data": [...]}
		for _, value := range v {
			list, ok := value.([]any)
			if !ok {
				continue
			}
			result := &Result{Data: toRecords(list)}
			if count, ok := v["count"].(float64); ok {
				c := int64(count)
				result.Count = &c
			}
			return result, nil
		}
		// single resource
		return &Result{Data: []map[string]any{v}}, nil
	default:
		return nil, fmt.Errorf("unexpected response shape for %s", req.Entity)
	}
}

func toRecords(list []any) []map[string]any {
	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			records = append(records, m)
		}
	}
	return records
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, body)
}
