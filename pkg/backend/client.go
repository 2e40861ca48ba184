// Package backend talks to the entity search and relationship path service.
package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ritzau/relgraph/pkg/logging"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL matches the backend's default listen address.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultRate is requests per second; autocomplete can fire quickly.
	DefaultRate = 10.0

	// maxBodySize caps how much of a response body is read.
	maxBodySize = 8 << 20
)

const (
	entitySearchPath       = "/api/v1/et/search"
	relationshipSearchPath = "/api/v1/srp/search"
)

// ChannelAddress is where the push channel for a job listens.
type ChannelAddress struct {
	Host string `json:"ip"`
	Port int    `json:"port"`
}

// RelationshipJob is the backend's answer to a relationship search request.
type RelationshipJob struct {
	RequestID string         `json:"request_id"`
	Channel   ChannelAddress `json:"websocket_server_info"`
	Status    string         `json:"status"`
}

// Client is a rate-limited HTTP client for the backend API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter

	mu      sync.RWMutex
	baseURL string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets the backend base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithRate sets the request rate limit. Zero or negative disables limiting.
func WithRate(rps float64) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// NewClient creates a new backend client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRate), 1),
		baseURL:    DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the current backend base URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetBaseURL swaps the backend base URL, e.g. after a config reload.
func (c *Client) SetBaseURL(u string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(u, "/")
}

// SetRate changes the request rate limit. Zero or negative disables limiting.
func (c *Client) SetRate(rps float64) {
	if rps <= 0 {
		c.limiter.SetLimit(rate.Inf)
		return
	}
	c.limiter.SetLimit(rate.Limit(rps))
}

// SearchEntities queries the entity index and returns the raw response body.
// Shape normalization is left to the caller because the backend has served
// several envelope layouts over time.
func (c *Client) SearchEntities(ctx context.Context, keyword string, size int) ([]byte, error) {
	q := url.Values{}
	q.Set("keyword", keyword)
	q.Set("size", strconv.Itoa(size))

	body, _, err := c.get(ctx, entitySearchPath, q)
	return body, err
}

// StartRelationshipSearch asks the backend to compute the path between two entities.
func (c *Client) StartRelationshipSearch(ctx context.Context, entityOne, entityTwo string) (*RelationshipJob, error) {
	q := url.Values{}
	q.Set("entity_one", entityOne)
	q.Set("entity_two", entityTwo)

	body, _, err := c.get(ctx, relationshipSearchPath, q)
	if err != nil {
		return nil, err
	}
	return ParseRelationshipJob(body)
}

// ParseRelationshipJob decodes a relationship search answer, with or without a
// "data" envelope. The port may arrive as a number or a string.
func ParseRelationshipJob(body []byte) (*RelationshipJob, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: relationship search body is not JSON", ErrInvalidResponse)
	}
	root := gjson.ParseBytes(body)
	if data := root.Get("data"); data.IsObject() {
		root = data
	}

	requestID := root.Get("request_id")
	if !requestID.Exists() || requestID.String() == "" {
		return nil, fmt.Errorf("%w: missing request_id", ErrInvalidResponse)
	}
	info := root.Get("websocket_server_info")
	if !info.IsObject() {
		return nil, fmt.Errorf("%w: missing websocket_server_info", ErrInvalidResponse)
	}
	host := info.Get("ip").String()
	port := int(info.Get("port").Int())
	if host == "" || port <= 0 {
		return nil, fmt.Errorf("%w: incomplete websocket_server_info %s", ErrInvalidResponse, info.Raw)
	}

	return &RelationshipJob{
		RequestID: requestID.String(),
		Channel:   ChannelAddress{Host: host, Port: port},
		Status:    root.Get("status").String(),
	}, nil
}

// Forward performs a GET against the backend and returns status and body as-is.
// The proxy routes use it to pass answers through unchanged.
func (c *Client) Forward(ctx context.Context, path string, query url.Values) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limiter: %w", err)
	}
	return c.do(ctx, path, query)
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limiter: %w", err)
	}

	status, body, err := c.do(ctx, path, query)
	if err != nil {
		return nil, status, err
	}
	if status < 200 || status > 299 {
		return nil, status, &APIError{
			StatusCode: status,
			Message:    gjson.GetBytes(body, "error").String(),
		}
	}
	return body, status, nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values) (int, []byte, error) {
	target := c.BaseURL() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if id := logging.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: reading body: %v", ErrNetworkError, err)
	}

	logging.DebugContext(ctx, "backend call",
		"path", path,
		"status", resp.StatusCode,
		"durationMs", time.Since(start).Milliseconds(),
	)
	return resp.StatusCode, body, nil
}
