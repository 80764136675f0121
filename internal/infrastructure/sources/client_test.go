package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerpulse/backend/internal/domain/source"
	"github.com/sellerpulse/backend/internal/infrastructure/resilience"
)

func TestFetchPage_Success(t *testing.T) {
	accountID := uuid.New()
	dateFrom := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	dateTo := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		assert.Equal(t, accountID.String(), r.URL.Query().Get("account_id"))
		assert.Equal(t, "2026-08-01T00:00:00Z", r.URL.Query().Get("date_from"))
		assert.Equal(t, "2026-08-28T00:00:00Z", r.URL.Query().Get("date_to"))
		assert.Equal(t, "page-2", r.URL.Query().Get("cursor"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"order_id":"A1"},{"order_id":"A2"}],"next_cursor":"page-3"}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "test-key")
	p, endpoint, err := client.FetchPage(context.Background(), "/v1/orders", accountID, dateFrom, dateTo, "page-2")

	require.NoError(t, err)
	assert.Equal(t, server.URL+"/v1/orders", endpoint)
	assert.Len(t, p.Items, 2)
	assert.Equal(t, "page-3", p.NextCursor)
}

func TestFetchPage_ThrottledCarriesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "")
	_, _, err := client.FetchPage(context.Background(), "/v1/orders", uuid.New(), time.Now(), time.Now(), "")

	assert.ErrorIs(t, err, source.ErrSourceRateLimited)
	var throttled *resilience.ThrottledError
	require.ErrorAs(t, err, &throttled)
	assert.Equal(t, 120*time.Second, throttled.RetryAfter)
}

func TestFetchPage_ServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "")
	_, _, err := client.FetchPage(context.Background(), "/v1/orders", uuid.New(), time.Now(), time.Now(), "")

	assert.ErrorIs(t, err, source.ErrSourceUnavailable)
}

func TestFetchPage_ClientErrorIsInvalidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "")
	_, _, err := client.FetchPage(context.Background(), "/v1/orders", uuid.New(), time.Now(), time.Now(), "")

	assert.ErrorIs(t, err, source.ErrSourceInvalidResponse)
}

func TestFetchPage_MalformedBodyIsInvalidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "")
	_, _, err := client.FetchPage(context.Background(), "/v1/orders", uuid.New(), time.Now(), time.Now(), "")

	assert.ErrorIs(t, err, source.ErrSourceInvalidResponse)
}

func TestFetchPage_ConnectionFailureIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(nil, server.URL, "")
	_, _, err := client.FetchPage(context.Background(), "/v1/orders", uuid.New(), time.Now(), time.Now(), "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, source.ErrSourceUnavailable))
}
