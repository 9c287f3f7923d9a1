// Package adapter implements clients for external data providers.
package adapter

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

	"golang.org/x/time/rate"

	"github.com/custobar-insights/internal/apperrors"
	"github.com/custobar-insights/internal/config"
	"github.com/custobar-insights/internal/logging"
	"github.com/custobar-insights/internal/retry"
	"github.com/custobar-insights/internal/types"
)

// CustobarClient fetches customer, sale and event batches from the Custobar
// API for one integration. Requests are paced by a rate limiter so that a
// fixed delay passes between page fetches, and pagination follows the
// server-returned next_url cursor verbatim until no cursor is returned.
type CustobarClient struct {
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	pageLimit int
	retryCfg  *retry.Config
}

// NewCustobarClient creates a new Custobar API client
func NewCustobarClient(cfg *config.CustobarConfig) *CustobarClient {
	return &CustobarClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Every(cfg.PageDelay), 1),
		pageLimit: func() int {
			if cfg.PageLimit > 0 {
				return cfg.PageLimit
			}
			return 10000
		}(),
		retryCfg: &retry.Config{
			MaxAttempts:  max(cfg.MaxRetries, 1),
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// page is the envelope shape shared by all three data endpoints. Exactly one
// of the record lists is populated, depending on the entity kind.
type page struct {
	Customers []types.CustomerRecord `json:"customers"`
	Sales     []types.SaleRecord     `json:"sales"`
	Events    []types.EventRecord    `json:"events"`
	Count     int                    `json:"count"`
	NextURL   string                 `json:"next_url"`
}

// FetchCustomers fetches all pages of customer records
func (c *CustobarClient) FetchCustomers(ctx context.Context, apiKey string, params url.Values) ([]types.CustomerRecord, error) {
	var records []types.CustomerRecord
	err := c.fetchAll(ctx, types.KindCustomers, apiKey, params, func(p *page) int {
		records = append(records, p.Customers...)
		return len(p.Customers)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// FetchSales fetches all pages of sale records
func (c *CustobarClient) FetchSales(ctx context.Context, apiKey string, params url.Values) ([]types.SaleRecord, error) {
	var records []types.SaleRecord
	err := c.fetchAll(ctx, types.KindSales, apiKey, params, func(p *page) int {
		records = append(records, p.Sales...)
		return len(p.Sales)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// FetchEvents fetches all pages of event records
func (c *CustobarClient) FetchEvents(ctx context.Context, apiKey string, params url.Values) ([]types.EventRecord, error) {
	var records []types.EventRecord
	err := c.fetchAll(ctx, types.KindEvents, apiKey, params, func(p *page) int {
		records = append(records, p.Events...)
		return len(p.Events)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// fetchAll walks the cursor chain for one entity kind, appending each page
// through collect until the server stops returning a next_url.
func (c *CustobarClient) fetchAll(ctx context.Context, kind types.EntityKind, apiKey string, params url.Values, collect func(*page) int) error {
	logger := logging.FromContext(ctx).WithField("kind", string(kind))

	cursor := ""
	total := 0
	for {
		p, err := c.fetchPage(ctx, kind, apiKey, params, cursor)
		if err != nil {
			return err
		}

		total += collect(p)
		logger.WithFields(map[string]interface{}{
			"fetched": total,
			"count":   p.Count,
		}).Debug("Fetched page")

		if p.NextURL == "" {
			return nil
		}
		cursor = p.NextURL
	}
}

// fetchPage fetches a single page. With an empty cursor it requests the
// first page of the kind's data endpoint; otherwise it follows the cursor
// URL verbatim.
func (c *CustobarClient) fetchPage(ctx context.Context, kind types.EntityKind, apiKey string, params url.Values, cursor string) (*page, error) {
	requestURL := cursor
	if requestURL == "" {
		q := url.Values{}
		for key, values := range params {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		if q.Get("limit") == "" {
			q.Set("limit", strconv.Itoa(c.pageLimit))
		}
		requestURL = fmt.Sprintf("%s/data/%s/?%s", c.baseURL, kind, q.Encode())
	}

	body, err := c.doRequest(ctx, requestURL, apiKey)
	if err != nil {
		return nil, apperrors.NewUpstreamError(string(kind), err)
	}

	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, apperrors.NewUpstreamError(string(kind), fmt.Errorf("failed to decode response: %w", err))
	}

	return &p, nil
}

// doRequest performs one GET against the Custobar API, waiting on the page
// limiter first and retrying transient failures (network errors, 429, 5xx)
// with exponential backoff.
func (c *CustobarClient) doRequest(ctx context.Context, requestURL, apiKey string) ([]byte, error) {
	var body []byte

	err := retry.Do(ctx, c.retryCfg, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body = data
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(data, 200))
		default:
			// Client errors are not retryable: fail the whole fetch.
			return retry.Permanent(fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(data, 200)))
		}
	})

	if err != nil {
		return nil, err
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
