package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"jobmate/watch-service/internal/model"
)

const (
	httpTimeout     = 15 * time.Second
	maxErrorBodyLen = 512
)

// HTTPClient reads listings from the catalog's REST API:
//
//	GET {base}/listings?category=a,b&status=publish&page=N&per_page=M
//	GET {base}/listings/{id}/attributes
type HTTPClient struct {
	BaseURL string
	APIKey  string
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the default client (15s timeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) { h.client = c }
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) HTTPOption {
	return func(h *HTTPClient) {
		if perSecond <= 0 {
			h.limiter = nil
			return
		}
		h.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) HTTPOption {
	return func(h *HTTPClient) { h.log = l }
}

// NewHTTPClient constructs a catalog client with a shared HTTP client.
func NewHTTPClient(baseURL, apiKey string, opts ...HTTPOption) *HTTPClient {
	h := &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		client:  &http.Client{Timeout: httpTimeout},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// listingsResponse mirrors the catalog's page envelope.
type listingsResponse struct {
	Listings []apiListing `json:"listings"`
	Total    int          `json:"total"`
}

// apiListing mirrors a single catalog listing.
type apiListing struct {
	ID         flexID          `json:"id"`
	Title      string          `json:"title"`
	Link       string          `json:"link"`
	Category   string          `json:"category"`
	Status     string          `json:"status"`
	Attributes json.RawMessage `json:"attributes"`
}

// flexID accepts listing ids encoded either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	*f = flexID(strings.TrimSpace(string(b)))
	return nil
}

// ListPage fetches one page of listings.
func (h *HTTPClient) ListPage(ctx context.Context, q PageQuery) ([]model.Listing, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(max(q.Page, 1)))
	if q.PageSize > 0 {
		params.Set("per_page", strconv.Itoa(q.PageSize))
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if len(q.Categories) > 0 {
		cats := make([]string, 0, len(q.Categories))
		for _, c := range q.Categories {
			cats = append(cats, string(c))
		}
		params.Set("category", strings.Join(cats, ","))
	}

	body, err := h.get(ctx, "/listings?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp listingsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	listings := make([]model.Listing, 0, len(resp.Listings))
	for _, r := range resp.Listings {
		l := model.Listing{
			ID:       string(r.ID),
			Title:    r.Title,
			URL:      r.Link,
			Category: model.Category(r.Category),
			Status:   r.Status,
		}
		if len(r.Attributes) > 0 && !bytes.Equal(r.Attributes, []byte("null")) {
			if err := json.Unmarshal(r.Attributes, &l.Attributes); err != nil {
				return nil, fmt.Errorf("listing %s attributes: %w", l.ID, err)
			}
		}
		listings = append(listings, l)
	}
	return listings, nil
}

// Attributes fetches the attribute tree of one listing.
func (h *HTTPClient) Attributes(ctx context.Context, listingID string) (model.Value, error) {
	body, err := h.get(ctx, "/listings/"+url.PathEscape(listingID)+"/attributes")
	if err != nil {
		return model.Absent(), err
	}
	var v model.Value
	if err := json.Unmarshal(body, &v); err != nil {
		return model.Absent(), fmt.Errorf("json unmarshal: %w", err)
	}
	return v, nil
}

func (h *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	h.log.Debug("catalog request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("GET %s: %w", path, model.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		if len(body) > maxErrorBodyLen {
			body = body[:maxErrorBodyLen]
		}
		return nil, fmt.Errorf("catalog returned %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
