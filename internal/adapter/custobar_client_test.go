package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custobar-insights/internal/apperrors"
	"github.com/custobar-insights/internal/config"
)

func testConfig(baseURL string) *config.CustobarConfig {
	return &config.CustobarConfig{
		BaseURL:        baseURL,
		PageLimit:      2,
		PageDelay:      time.Millisecond,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     3,
	}
}

func TestFetchCustomersFollowsPagination(t *testing.T) {
	var requests []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.String())
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("cursor") == "" {
			fmt.Fprintf(w, `{
				"customers": [{"external_id": "cb-1"}, {"external_id": "cb-2"}],
				"count": 3,
				"next_url": %q
			}`, "http://"+r.Host+"/api/data/customers/?cursor=p2&limit=2")
			return
		}
		fmt.Fprint(w, `{"customers": [{"external_id": "cb-3"}], "count": 3, "next_url": ""}`)
	}))
	defer server.Close()

	client := NewCustobarClient(testConfig(server.URL + "/api"))
	records, err := client.FetchCustomers(context.Background(), "test-key", nil)
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, "cb-1", records[0].ExternalID)
	assert.Equal(t, "cb-3", records[2].ExternalID)

	require.Len(t, requests, 2)
	// The first page carries the configured limit; the cursor URL is
	// followed verbatim.
	first, err := url.Parse(requests[0])
	require.NoError(t, err)
	assert.Equal(t, "/api/data/customers/", first.Path)
	assert.Equal(t, "2", first.Query().Get("limit"))
	assert.Contains(t, requests[1], "cursor=p2")
}

func TestFetchSalesDecodesRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"sales": [{"customer_id": "cb-1", "external_id": "sale-1", "total": "19.90", "products": ["p1"]}],
			"count": 1,
			"next_url": ""
		}`)
	}))
	defer server.Close()

	client := NewCustobarClient(testConfig(server.URL))
	records, err := client.FetchSales(context.Background(), "key", nil)
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "sale-1", records[0].ExternalID)
	assert.Equal(t, "19.9", records[0].Total.String())
	assert.Equal(t, []string{"p1"}, records[0].Products)
}

func TestFetchEventsClientErrorNotRetried(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewCustobarClient(testConfig(server.URL))
	_, err := client.FetchEvents(context.Background(), "bad-key", nil)
	require.Error(t, err)

	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryUpstream))
	assert.Equal(t, 1, attempts, "client errors must fail without retry")
}

func TestFetchEventsRetriesServerError(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"events": [{"customer_id": "cb-1", "type": "visit"}], "count": 1, "next_url": ""}`)
	}))
	defer server.Close()

	client := NewCustobarClient(testConfig(server.URL))
	records, err := client.FetchEvents(context.Background(), "key", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, attempts)
	require.Len(t, records, 1)
	assert.Equal(t, "visit", records[0].Type)
}

func TestFetchCustomersUndecodableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>not json</html>`)
	}))
	defer server.Close()

	client := NewCustobarClient(testConfig(server.URL))
	_, err := client.FetchCustomers(context.Background(), "key", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryUpstream))
}

func TestPageEnvelopeShape(t *testing.T) {
	var p page
	err := json.Unmarshal([]byte(`{"customers": [], "count": 0, "next_url": ""}`), &p)
	require.NoError(t, err)
	assert.Empty(t, p.NextURL)
}
