package qloo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aimorme/datewise-backend/internal/pkg/httpx"
	"github.com/aimorme/datewise-backend/internal/pkg/logger"
)

// Entity is one node of the taste graph: a cultural item (artist, cuisine,
// book) or a concrete place. Properties keeps whatever the API attached
// (address, business_rating, price_level) without forcing a schema on it.
type Entity struct {
	EntityID   string         `json:"entity_id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Affinity   float64        `json:"affinity"`
	Popularity float64        `json:"popularity"`
	Tags       []Tag          `json:"tags,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// InsightsParams is one /v2/insights query. Zero fields are omitted from
// the request.
type InsightsParams struct {
	FilterType      string
	LocationQuery   string
	SignalEntityIDs []string
	FilterTags      []string
	PriceLevelMin   int
	PriceLevelMax   int
	PopularityMin   float64
	Take            int
	SortBy          string
}

// Client is the Qloo API surface the pipeline depends on. Empty result sets
// are valid responses, not errors.
type Client interface {
	// Search resolves free text to entities.
	Search(ctx context.Context, query string, limit int) ([]Entity, error)
	// Insights runs a cross-domain affinity query.
	Insights(ctx context.Context, p InsightsParams) ([]Entity, error)
	// Entities fetches full records for known entity ids.
	Entities(ctx context.Context, ids []string) ([]Entity, error)
	// ValidateKey reports whether the configured API key is usable.
	ValidateKey(ctx context.Context) error
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	apiKey := strings.TrimSpace(os.Getenv("QLOO_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing QLOO_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("QLOO_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://hackathon.api.qloo.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeoutSec := 30
	if v := os.Getenv("QLOO_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 2
	if v := os.Getenv("QLOO_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	return &client{
		log:        log.With("service", "QlooClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}, nil
}

type qlooHTTPError struct {
	StatusCode int
	Body       string
}

func (e *qlooHTTPError) Error() string {
	return fmt.Sprintf("qloo http %d: %s", e.StatusCode, e.Body)
}

func (e *qlooHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) doOnce(ctx context.Context, path string, params url.Values) (*http.Response, []byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &qlooHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, path string, params url.Values, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, path, params)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("qloo decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 8*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("Qloo request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

type searchResponse struct {
	Results []Entity `json:"results"`
}

func (c *client) Search(ctx context.Context, query string, limit int) ([]Entity, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Entity{}, nil
	}
	if limit <= 0 {
		limit = 5
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))

	var resp searchResponse
	if err := c.do(ctx, "/search", params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

type insightsResponse struct {
	Results struct {
		Entities []Entity `json:"entities"`
	} `json:"results"`
}

func (c *client) Insights(ctx context.Context, p InsightsParams) ([]Entity, error) {
	params := url.Values{}
	if p.FilterType != "" {
		params.Set("filter.type", p.FilterType)
	}
	if p.LocationQuery != "" {
		params.Set("filter.location.query", p.LocationQuery)
	}
	if len(p.SignalEntityIDs) > 0 {
		params.Set("signal.interests.entities", strings.Join(p.SignalEntityIDs, ","))
	}
	if len(p.FilterTags) > 0 {
		params.Set("filter.tags", strings.Join(p.FilterTags, ","))
	}
	if p.PriceLevelMin > 0 {
		params.Set("filter.price_level.min", strconv.Itoa(p.PriceLevelMin))
	}
	if p.PriceLevelMax > 0 {
		params.Set("filter.price_level.max", strconv.Itoa(p.PriceLevelMax))
	}
	if p.PopularityMin > 0 {
		params.Set("filter.popularity.min", strconv.FormatFloat(p.PopularityMin, 'f', -1, 64))
	}
	if p.Take > 0 {
		params.Set("take", strconv.Itoa(p.Take))
	}
	if p.SortBy != "" {
		params.Set("sort_by", p.SortBy)
	}

	var resp insightsResponse
	if err := c.do(ctx, "/v2/insights", params, &resp); err != nil {
		return nil, err
	}
	return resp.Results.Entities, nil
}

type entitiesResponse struct {
	Results []Entity `json:"results"`
}

func (c *client) Entities(ctx context.Context, ids []string) ([]Entity, error) {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		return []Entity{}, nil
	}

	params := url.Values{}
	params.Set("entity_ids", strings.Join(clean, ","))

	var resp entitiesResponse
	if err := c.do(ctx, "/entities", params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *client) ValidateKey(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	params := url.Values{}
	params.Set("query", "coffee")
	params.Set("limit", "1")

	_, _, err := c.doOnce(callCtx, "/search", params)
	var he *qlooHTTPError
	if err != nil {
		if errors.As(err, &he) && (he.StatusCode == http.StatusUnauthorized || he.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("qloo key rejected: http %d", he.StatusCode)
		}
		return err
	}
	return nil
}
