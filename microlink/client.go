// Package microlink is a minimal client for the Microlink rendering API.
// Social-platform pages only expose their card metadata after script
// execution, so the preview fetcher delegates those URLs here with the
// prerender flag set instead of fetching them directly.
package microlink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the public Microlink endpoint.
const DefaultBaseURL = "https://api.microlink.io"

// DefaultTimeout is the upper bound for a prerendered lookup. Prerendering
// runs a headless browser upstream, so this is deliberately generous.
const DefaultTimeout = 10 * time.Second

// Client calls the rendering API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new rendering API client. An empty baseURL selects the
// public endpoint.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Result is the metadata subset the API returns that the preview pipeline
// consumes. Absent fields are nil.
type Result struct {
	Title       *string
	Description *string
	ImageURL    *string
	Author      *string
}

// apiResponse mirrors the API's envelope: a status flag plus a data object.
type apiResponse struct {
	Status string `json:"status"`
	Data   struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Author      string `json:"author"`
		Image       struct {
			URL string `json:"url"`
		} `json:"image"`
	} `json:"data"`
}

// Lookup fetches prerendered metadata for targetURL. It returns an error on
// timeout, non-2xx responses, malformed payloads, or an unsuccessful API
// status; callers are expected to downgrade any error to a failed preview.
func (c *Client) Lookup(ctx context.Context, targetURL string) (*Result, error) {
	apiURL := fmt.Sprintf("%s/?url=%s&prerender=true", c.baseURL, url.QueryEscape(targetURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rendering API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("rendering API error: %d %s", resp.StatusCode, resp.Status)
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode rendering API response: %w", err)
	}

	if payload.Status != "success" {
		return nil, fmt.Errorf("rendering API returned status %q", payload.Status)
	}

	result := &Result{}
	if payload.Data.Title != "" {
		result.Title = &payload.Data.Title
	}
	if payload.Data.Description != "" {
		result.Description = &payload.Data.Description
	}
	if payload.Data.Author != "" {
		result.Author = &payload.Data.Author
	}
	if payload.Data.Image.URL != "" {
		result.ImageURL = &payload.Data.Image.URL
	}

	return result, nil
}
