package atapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/at-bus-load/internal/common/config"
	"github.com/at-bus-load/internal/common/logger"
	"github.com/at-bus-load/internal/common/retry"
)

const (
	HeaderAPIKey = "Ocp-Apim-Subscription-Key"
	UserAgent    = "at-bus-load/1.0"

	maxBodySnippet = 512
)

// maxBodySize caps a single response page
var maxBodySize = 64 << 20

// ErrBodyTooLarge is the cause of a TransportError for a response over the size cap
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// TransportError is a failed HTTP exchange with the AT API: either a non-2xx
// status (StatusCode and Body set) or a network failure (Err set)
type TransportError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("API returned status %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether a retry might succeed
func (e *TransportError) Temporary() bool {
	if e.Err != nil {
		return !errors.Is(e.Err, context.Canceled) &&
			!errors.Is(e.Err, context.DeadlineExceeded) &&
			!errors.Is(e.Err, ErrBodyTooLarge)
	}
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	retry      retry.Policy
	logger     logger.Logger
}

func NewClient(cfg config.APIConfig, log logger.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retry: retry.Policy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
		},
		logger: log,
	}, nil
}

// Resolve turns a reference (a pagination link, absolute or relative to the
// base URL) into a request URL
func (c *Client) Resolve(ref string, query url.Values) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parsing request path %q: %w", ref, err)
	}
	u = c.baseURL.ResolveReference(u)
	if u.Scheme != c.baseURL.Scheme || u.Host != c.baseURL.Host {
		return "", fmt.Errorf("refusing request to %s: host differs from base url %s", u.Redacted(), c.baseURL.Host)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Get fetches a path under the base URL and returns the raw body
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	target, err := c.Resolve(strings.TrimPrefix(path, "/"), query)
	if err != nil {
		return nil, err
	}
	return c.GetURL(ctx, target)
}

// GetURL fetches an absolute URL, retrying per the client's policy
func (c *Client) GetURL(ctx context.Context, target string) ([]byte, error) {
	var body []byte

	op := func() error {
		b, err := c.do(ctx, target)
		if err != nil {
			return err
		}
		body = b
		return nil
	}

	retryable := func(err error) bool {
		var terr *TransportError
		return ctx.Err() == nil && errors.As(err, &terr) && terr.Temporary()
	}

	onRetry := func(err error, wait time.Duration) {
		c.logger.Warn("Retrying AT API request", "url", target, "wait", wait.String(), "error", err)
	}

	if err := retry.Do(ctx, c.retry, retryable, op, onRetry); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set(HeaderAPIKey, c.apiKey)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	c.logger.Debug("Requesting AT API", "url", target)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to execute request", "url", target, "error", err)
		return nil, &TransportError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBodySize)+1))
	if err != nil {
		return nil, &TransportError{URL: target, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response body: %w", err)}
	}
	if len(body) > maxBodySize {
		c.logger.Error("Response body too large", "url", target, "limit_bytes", maxBodySize)
		return nil, &TransportError{URL: target, StatusCode: resp.StatusCode, Err: ErrBodyTooLarge}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := snip(body)
		c.logger.Error("API returned error status",
			"status_code", resp.StatusCode,
			"url", target,
			"response_body", snippet)
		return nil, &TransportError{URL: target, StatusCode: resp.StatusCode, Body: snippet}
	}

	c.logger.Info("Successfully fetched data from AT API", "url", target, "size_bytes", len(body))
	return body, nil
}

func snip(body []byte) string {
	if len(body) <= maxBodySnippet {
		return string(body)
	}
	return string(body[:maxBodySnippet]) + "..."
}
