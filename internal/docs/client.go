package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"queryforge/internal/schema"
)

// Client fetches entity schema facts from the external documentation
// service. The service exposes GET {base}/entities/{name} returning
// {relations, filters, api_path}; 404 means the entity is unknown.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a documentation service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Lookup implements schema.DocsLookup. Returns (nil, nil) for unknown
// entities so the resolver can fall through to its other sources.
func (c *Client) Lookup(ctx context.Context, entity string) (*schema.DocsResult, error) {
	endpoint := fmt.Sprintf("%s/entities/%s", c.baseURL, url.PathEscape(entity))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create docs request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("docs service returned %d: %s", resp.StatusCode, string(body))
	}

	var result schema.DocsResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode docs response: %w", err)
	}

	return &result, nil
}
