package remote

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

	"golang.org/x/time/rate"

	"github.com/nhle/weekly-planner/internal/model"
)

// HTTPClient is a Backend over a JSON REST endpoint, authenticated with a
// bearer token. Requests are rate limited on the client side; throttled and
// gateway failures are retried.
//
//	GET  {base}/items?owner_id=...&since=RFC3339  -> {"items": [...]}
//	POST {base}/items {"owner_id": ..., "items": [...]}
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) { c.httpClient.Timeout = d }
}

// WithRate caps outgoing requests per second. Zero or less disables the cap.
func WithRate(perSec float64) HTTPOption {
	return func(c *HTTPClient) {
		if perSec <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

// WithMaxRetries sets how often a retryable response is retried.
func WithMaxRetries(n int) HTTPOption {
	return func(c *HTTPClient) { c.maxRetries = n }
}

// NewHTTPClient creates a client for the backend rooted at baseURL.
func NewHTTPClient(baseURL, token string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:    rate.NewLimiter(rate.Limit(5), 1),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type pullResponse struct {
	Items []model.Item `json:"items"`
}

type pushRequest struct {
	OwnerID string       `json:"owner_id"`
	Items   []model.Item `json:"items"`
}

// Pull implements Backend.
func (c *HTTPClient) Pull(ctx context.Context, ownerID string, since time.Time) ([]model.Item, error) {
	q := url.Values{}
	q.Set("owner_id", ownerID)
	q.Set("since", since.UTC().Format(time.RFC3339Nano))

	var resp pullResponse
	if err := c.do(ctx, http.MethodGet, "/items?"+q.Encode(), nil, &resp); err != nil {
		return nil, remoteErr("pulling items", err)
	}
	return resp.Items, nil
}

// Push implements Backend.
func (c *HTTPClient) Push(ctx context.Context, ownerID string, items []model.Item) error {
	body := pushRequest{OwnerID: ownerID, Items: withOwner(items, ownerID)}
	for i := range body.Items {
		body.Items[i].Order = body.Items[i].Order.Finite()
	}
	if err := c.do(ctx, http.MethodPost, "/items", body, nil); err != nil {
		return remoteErr(fmt.Sprintf("pushing %d items", len(items)), err)
	}
	return nil
}

// do sends one JSON request, retrying while the backend answers with a
// retryable status. result may be nil when the response body is ignored.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
	}

	var (
		lastErr  error
		lastWait time.Duration
	)
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(lastWait):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		status, header, data, err := c.send(ctx, method, path, payload)
		if err != nil {
			return err
		}

		switch {
		case retryable(status):
			lastErr = fmt.Errorf("%s %s: status %d", method, path, status)
			lastWait = backoff(header, attempt)
			continue
		case status == http.StatusUnauthorized:
			return &AuthError{Backend: c.baseURL, Message: "access token rejected (401)"}
		case status < 200 || status >= 300:
			return fmt.Errorf("%s %s: status %d: %s", method, path, status, strings.TrimSpace(string(data)))
		case result == nil || status == http.StatusNoContent:
			return nil
		}

		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("decoding %s %s: %w", method, path, err)
		}
		return nil
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

func (c *HTTPClient) send(
	ctx context.Context,
	method, path string,
	payload []byte,
) (int, http.Header, []byte, error) {
	var r io.Reader
	if payload != nil {
		r = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("reading %s %s response: %w", method, path, err)
	}
	return resp.StatusCode, resp.Header, data, nil
}

// retryable reports whether a status is worth another attempt: throttling
// and gateway failures. A plain 500 is treated as a bug on the server side.
func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// backoff honours Retry-After (in seconds) and otherwise doubles from one
// second, capped at 30s.
func backoff(header http.Header, attempt int) time.Duration {
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	d := time.Second << uint(attempt)
	if d > 30*time.Second || d <= 0 {
		d = 30 * time.Second
	}
	return d
}
