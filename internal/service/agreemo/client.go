package agreemo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/agreemo/dashboard/backend/internal/model"
)

const apiKeyHeader = "x-api-key"

// maxBodyBytes caps a single upstream response.
const maxBodyBytes = 32 << 20

// ErrBodyTooLarge means the response exceeded maxBodyBytes. The body is
// not decoded, so a truncated document never becomes an empty payload.
var ErrBodyTooLarge = errors.New("response body too large")

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
}

// Client talks to the Agreemo REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxBody    int64
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxBody overrides the response size limit.
func WithMaxBody(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithRateLimit bounds outbound requests per second. Zero disables it.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Inf, 1),
		maxBody: maxBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchKey GETs endpoint and returns the value nested under key. A body
// that is not an object, or lacks key, yields the empty value for kind.
func (c *Client) FetchKey(ctx context.Context, endpoint, key, kind string) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request %s: %w", endpoint, err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", endpoint, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("read %s: %w (limit %d bytes)", endpoint, ErrBodyTooLarge, c.maxBody)
	}
	return Extract(body, key, kind), nil
}

// Extract pulls key out of a JSON object body. Numbers are kept as
// json.Number so re-encoding reproduces them exactly.
func Extract(body []byte, key, kind string) any {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var envelope map[string]any
	if err := dec.Decode(&envelope); err != nil || envelope == nil {
		return model.EmptyPayload(kind)
	}
	v, ok := envelope[key]
	if !ok || v == nil {
		return model.EmptyPayload(kind)
	}
	return v
}
