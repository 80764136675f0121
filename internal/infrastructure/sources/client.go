// Package sources provides the marketplace source adapters the worker pool
// fetches snapshots through. Each adapter talks to one marketplace connector
// gateway that pages normalized JSON elements.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/sellerpulse/backend/internal/domain/source"
	"github.com/sellerpulse/backend/internal/infrastructure/resilience"
)

const defaultRetryAfter = 30 * time.Second

// page is one connector gateway response
type page struct {
	Items      []json.RawMessage `json:"items"`
	NextCursor string            `json:"next_cursor"`
}

// Client calls one marketplace connector gateway
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a gateway client. A nil httpClient selects a default with
// a 60 second timeout.
func NewClient(httpClient *http.Client, baseURL, apiKey string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey}
}

// FetchPage requests one page of normalized elements for the window.
// Throttling responses carry the gateway's Retry-After back to the caller as
// a typed delay.
func (c *Client) FetchPage(ctx context.Context, path string, accountID uuid.UUID, dateFrom, dateTo time.Time, cursor string) (*page, string, error) {
	endpoint := c.baseURL + path

	query := url.Values{}
	query.Set("account_id", accountID.String())
	query.Set("date_from", dateFrom.UTC().Format(time.RFC3339))
	query.Set("date_to", dateTo.UTC().Format(time.RFC3339))
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, endpoint, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, endpoint, fmt.Errorf("%w: %v", source.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		delay := resilience.ParseRetryAfter(resp.Header.Get("Retry-After"), defaultRetryAfter, time.Now())
		return nil, endpoint, resilience.NewThrottledError(delay)
	case resp.StatusCode >= 500:
		return nil, endpoint, fmt.Errorf("%w: gateway returned %d", source.ErrSourceUnavailable, resp.StatusCode)
	default:
		return nil, endpoint, fmt.Errorf("%w: gateway returned %d", source.ErrSourceInvalidResponse, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, endpoint, fmt.Errorf("%w: %v", source.ErrSourceUnavailable, err)
	}

	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, endpoint, fmt.Errorf("%w: %v", source.ErrSourceInvalidResponse, err)
	}
	return &p, endpoint, nil
}
