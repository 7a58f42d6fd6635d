// Package newsense talks to the external Newsense data API: authentication,
// catalog listing, timeseries retrieval, and normalization of the provider's
// payload variants into the pipeline's uniform record shape.
package newsense

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
	"sync"
	"time"
)

const (
	loginEndpoint   = "/api/v1/auth/login"
	catalogEndpoint = "/api/v1/catalog"
	seriesEndpoint  = "/api/v1/series"

	catalogPageSize = 100
)

// Client is an authenticated client for the Newsense data API.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

// Option is a function that configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// WithBaseURL sets the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(opts *clientOptions) {
		opts.baseURL = baseURL
	}
}

// WithCredentials sets the login credentials.
func WithCredentials(username, password string) Option {
	return func(opts *clientOptions) {
		opts.username = username
		opts.password = password
	}
}

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *clientOptions) {
		opts.httpClient = client
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...Option) (*Client, error) {
	options := &clientOptions{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.baseURL == "" {
		return nil, ErrNoBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(options.baseURL, "/"),
		username:   options.username,
		password:   options.password,
		httpClient: options.httpClient,
	}, nil
}

// authenticate logs in and caches the session token.
func (c *Client) authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+loginEndpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("newsense: login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrNotAuthorized
	}
	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("newsense: decoding login response: %w", err)
	}
	if payload.Token == "" {
		return fmt.Errorf("newsense: login response carried no token")
	}
	c.token = payload.Token
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values) (*http.Response, error) {
	if err := c.authenticate(ctx); err != nil {
		return nil, err
	}

	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	req.Header.Set("X-Authorization", "Bearer "+c.token)
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, ErrNotAuthorized
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return resp, nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// CatalogItem is one entry of the provider's metric/entity catalog.
type CatalogItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Catalog walks the paginated catalog listing and returns every item. It is
// used at startup to verify knowledge graph canonical ids are resolvable.
func (c *Client) Catalog(ctx context.Context) ([]CatalogItem, error) {
	var items []CatalogItem
	for page := 0; ; page++ {
		q := url.Values{}
		q.Set("pageSize", strconv.Itoa(catalogPageSize))
		q.Set("page", strconv.Itoa(page))

		resp, err := c.get(ctx, catalogEndpoint, q)
		if err != nil {
			return nil, err
		}

		var payload struct {
			Data        []CatalogItem `json:"data"`
			HasNextPage bool          `json:"hasNextPage"`
		}
		err = json.NewDecoder(resp.Body).Decode(&payload)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("newsense: decoding catalog page %d: %w", page, err)
		}

		items = append(items, payload.Data...)
		if !payload.HasNextPage {
			break
		}
	}
	return items, nil
}

// SeriesRequest describes one timeseries sub-request.
type SeriesRequest struct {
	MetricID string
	Filters  map[string]string
	Start    time.Time
	End      time.Time

	// Interval and Agg request server-side aggregation; zero means raw points.
	Interval time.Duration
	Agg      string

	// Cursor continues a paginated response.
	Cursor string
}

// SeriesPage is one raw page of a timeseries response. The provider serves
// two shapes: a flat points list, and a legacy map keyed by metric id.
type SeriesPage struct {
	Unit       string                       `json:"unit"`
	Points     []json.RawMessage            `json:"points"`
	Data       map[string][]json.RawMessage `json:"data"`
	NextCursor string                       `json:"nextCursor"`
}

// Series fetches one page of timeseries data.
func (c *Client) Series(ctx context.Context, req SeriesRequest) (*SeriesPage, error) {
	q := url.Values{}
	q.Set("metric", req.MetricID)
	q.Set("startTs", strconv.FormatInt(req.Start.UnixMilli(), 10))
	q.Set("endTs", strconv.FormatInt(req.End.UnixMilli(), 10))
	for key, value := range req.Filters {
		q.Set("f."+key, value)
	}
	if req.Interval > 0 {
		q.Set("interval", strconv.FormatInt(req.Interval.Milliseconds(), 10))
		q.Set("agg", req.Agg)
	}
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}

	resp, err := c.get(ctx, seriesEndpoint, q)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var page SeriesPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("newsense: decoding series response: %w", err)
	}
	return &page, nil
}
