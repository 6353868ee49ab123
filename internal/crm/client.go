// Package crm is a typed, rate-limit aware client for the HubSpot CRM REST API.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/retry"
	"github.com/wolfeidau/salesboard/internal/telemetry"
)

// DefaultBaseURL is the HubSpot API host.
const DefaultBaseURL = "https://api.hubapi.com"

const defaultPageSize = 100

var (
	ErrUpstream            = errors.New("crm request failed")
	ErrUpstreamRateLimited = errors.New("crm rate limit retries exhausted")
	ErrUnrecognizedShape   = errors.New("unrecognized crm response shape")
	ErrPartialResult       = errors.New("crm result is partial")
)

// Client fetches owners, deals and activities page by page.
type Client struct {
	httpClient *http.Client
	baseURL    string
	policy     retry.Policy
	pageSize   int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at a different API host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithPolicy sets the retry policy used for every request.
func WithPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithPageSize sets the page size sent as the limit parameter.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// NewClient creates a CRM client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultBaseURL,
		policy:     retry.DefaultPolicy(),
		pageSize:   defaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the retry policy the client was built with.
func (c *Client) Policy() retry.Policy {
	return c.policy
}

// ListOwners returns every active owner of the portal.
func (c *Client) ListOwners(ctx context.Context, accessToken string) ([]Owner, error) {
	owners, err := fetchAll(ctx, c, accessToken, "/crm/v3/owners", nil, parseOwner, func(o Owner) bool {
		return !o.Archived
	})
	if err != nil {
		return owners, fmt.Errorf("failed to list owners: %w", err)
	}
	return owners, nil
}

// ListDeals returns deals whose reference date falls inside the window.
func (c *Client) ListDeals(ctx context.Context, accessToken string, window Window) ([]models.Deal, error) {
	deals, err := fetchAll(ctx, c, accessToken, "/crm/v3/objects/deals", dealProperties, parseDeal, func(d models.Deal) bool {
		return window.Contains(d.ReferenceDate())
	})
	if err != nil {
		return deals, fmt.Errorf("failed to list deals: %w", err)
	}
	return deals, nil
}

// ListActivities returns activities of one kind whose timestamp falls inside the window.
func (c *Client) ListActivities(ctx context.Context, accessToken string, kind models.ActivityKind, window Window) ([]models.Activity, error) {
	path := "/crm/v3/objects/" + string(kind)
	activities, err := fetchAll(ctx, c, accessToken, path, activityProperties, parseActivity(kind), func(a models.Activity) bool {
		return window.Contains(a.Timestamp)
	})
	if err != nil {
		return activities, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	return activities, nil
}

// TokenInfo introspects an access token, returning the portal and user it belongs to.
func (c *Client) TokenInfo(ctx context.Context, accessToken string) (*TokenInfo, error) {
	body, err := retry.Do(ctx, c.policy, "token_info", func(ctx context.Context) ([]byte, error) {
		// the token is part of the URL, keep it out of any HTTP cache
		return c.get(ctx, "", "/oauth/v1/access-tokens/"+url.PathEscape(accessToken), nil, noStore)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get token info: %w", c.exhausted(ctx, err))
	}

	var info TokenInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: token info: %v", ErrUnrecognizedShape, err)
	}
	if info.HubID == 0 {
		return nil, fmt.Errorf("%w: token info without hub_id", ErrUnrecognizedShape)
	}

	return &info, nil
}

// fetchAll follows the after cursor until the last page, keeping only records
// accepted by keep. Each page is filtered before it is appended.
func fetchAll[T any](ctx context.Context, c *Client, accessToken, path string, properties []string, parse func(json.RawMessage) (T, error), keep func(T) bool) ([]T, error) {
	var (
		results []T
		after   string
		pages   int
	)

	for {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(c.pageSize))
		if after != "" {
			query.Set("after", after)
		}
		if len(properties) > 0 {
			query.Set("properties", strings.Join(properties, ","))
		}

		body, err := retry.Do(ctx, c.policy, path, func(ctx context.Context) ([]byte, error) {
			return c.get(ctx, accessToken, path, query)
		})
		if err != nil {
			err = c.exhausted(ctx, err)
			if errors.Is(err, ErrUpstreamRateLimited) && c.policy.OnExhaustion == retry.Partial {
				log.Warn().
					Str("path", path).
					Int("pages", pages).
					Int("records", len(results)).
					Msg("Rate limit retries exhausted, returning partial result")
				return results, fmt.Errorf("%w: %w", ErrPartialResult, err)
			}
			return nil, err
		}

		var p page
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnrecognizedShape, path, err)
		}
		if p.Results == nil {
			return nil, fmt.Errorf("%w: %s: response without results", ErrUnrecognizedShape, path)
		}

		kept := 0
		for _, raw := range *p.Results {
			record, err := parse(raw)
			if err != nil {
				return nil, err
			}
			if keep(record) {
				results = append(results, record)
				kept++
			}
		}
		pages++

		telemetry.GetMetrics().CRMRecordsFetchedTotal.Add(ctx, int64(kept),
			metric.WithAttributes(attribute.String("path", path)))

		after = p.nextCursor()
		if after == "" {
			break
		}
	}

	log.Debug().
		Str("path", path).
		Int("pages", pages).
		Int("records", len(results)).
		Msg("Fetched CRM records")

	return results, nil
}

// exhausted converts a leftover rate-limit error into ErrUpstreamRateLimited.
func (c *Client) exhausted(ctx context.Context, err error) error {
	var rl *retry.RateLimitedError
	if errors.As(err, &rl) {
		telemetry.GetMetrics().CRMRetryExhaustedTotal.Add(ctx, 1)
		return fmt.Errorf("%w after %d attempts", ErrUpstreamRateLimited, c.policy.MaxAttempts)
	}
	return err
}

func noStore(req *http.Request) {
	req.Header.Set("Cache-Control", "no-store")
}

func (c *Client) get(ctx context.Context, accessToken, path string, query url.Values, mutators ...func(*http.Request)) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	for _, mutate := range mutators {
		mutate(req)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUpstream, path, err)
	}
	defer resp.Body.Close()

	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("path", path), attribute.Int("status", resp.StatusCode))
	m.CRMRequestsTotal.Add(ctx, 1, attrs)
	m.CRMRequestDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: failed to read body: %w", ErrUpstream, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		m.CRMRateLimitedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
		return nil, &retry.RateLimitedError{
			RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrUpstream, path, resp.StatusCode, snippet(body))
	}

	return body, nil
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
