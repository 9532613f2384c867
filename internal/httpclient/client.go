// Package httpclient is the single HTTP client used for the control plane and the
// container registries. Each collaborator composes a Client configured with its own
// base URL, header policy and retry policy.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/retry"
)

const maxErrorBody = 512

// HeaderPolicy mutates outgoing request headers.
type HeaderPolicy func(h http.Header)

// Client is a JSON-over-HTTP client bound to one API.
type Client struct {
	api        string
	baseURL    string
	httpClient *http.Client
	headers    []HeaderPolicy
	policy     retry.Policy
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout on the underlying *http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetryPolicy sets the policy applied to network failures.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithHeaderPolicy appends a header policy.
func WithHeaderPolicy(h HeaderPolicy) Option {
	return func(c *Client) { c.headers = append(c.headers, h) }
}

// WithBearerToken adds "Authorization: Bearer <token>" when token is non-empty.
func WithBearerToken(token string) Option {
	return WithHeaderPolicy(func(h http.Header) {
		if token != "" {
			h.Set("Authorization", "Bearer "+token)
		}
	})
}

// WithBasicAuth adds basic credentials when username is non-empty.
func WithBasicAuth(username, password string) Option {
	return WithHeaderPolicy(func(h http.Header) {
		if username == "" {
			return
		}
		r := http.Request{Header: h}
		r.SetBasicAuth(username, password)
	})
}

// WithHeader sets a static header.
func WithHeader(key, value string) Option {
	return WithHeaderPolicy(func(h http.Header) { h.Set(key, value) })
}

// WithLogger overrides the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the named API rooted at baseURL.
func New(api, baseURL string, opts ...Option) *Client {
	c := &Client{
		api:        api,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 25 * time.Second},
		policy:     retry.DefaultPolicy(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// API returns the collaborator name used in errors.
func (c *Client) API() string { return c.api }

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Response is the outcome of a successful request.
type Response struct {
	StatusCode int
	Header     http.Header
}

// NewRequest builds a request against endpoint, which is joined to the base URL path.
// A non-nil body is JSON encoded.
func (c *Client) NewRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	cleanEndpoint := strings.TrimPrefix(endpoint, "/")
	var rawQuery string
	if idx := strings.Index(cleanEndpoint, "?"); idx != -1 {
		rawQuery = cleanEndpoint[idx+1:]
		cleanEndpoint = cleanEndpoint[:idx]
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.ConfigError("failed to parse API URL").
			WithCause(err).
			WithContext("api", c.api).
			WithContext("base_url", c.baseURL).
			Build()
	}
	u.Path = path.Join("/", strings.TrimSuffix(u.Path, "/"), cleanEndpoint)
	if rawQuery != "" {
		u.RawQuery = rawQuery
	}

	reader := io.Reader(http.NoBody)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errors.InternalError("failed to marshal request body").
				WithCause(err).
				WithContext("api", c.api).
				Build()
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, errors.InternalError("failed to create request").
			WithCause(err).
			WithContext("method", method).
			WithContext("url", u.String()).
			Build()
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "buildworker/1.0")
	for _, policy := range c.headers {
		policy(req.Header)
	}
	return req, nil
}

// Do sends a request and decodes a JSON response into result when result is non-nil.
// Network failures and timeouts are retried according to the policy; status errors are not.
func (c *Client) Do(ctx context.Context, method, endpoint string, body, result any) (*Response, error) {
	return c.DoWithHeaders(ctx, method, endpoint, nil, body, result)
}

// DoWithHeaders is like Do with extra per-request headers.
func (c *Client) DoWithHeaders(ctx context.Context, method, endpoint string, header http.Header, body, result any) (*Response, error) {
	var resp *Response
	err := c.policy.Do(ctx, Retryable, func(ctx context.Context, attempt int) error {
		req, err := c.NewRequest(ctx, method, endpoint, body)
		if err != nil {
			return err
		}
		for k, vs := range header {
			req.Header[k] = vs
		}
		resp, err = c.send(req, result)
		if err != nil && Retryable(err) {
			c.logger.WarnContext(ctx, "HTTP request failed",
				slog.String("api", c.api),
				logfields.Method(method),
				logfields.URL(req.URL.String()),
				logfields.Attempt(attempt),
				logfields.Error(err))
		}
		return err
	})
	return resp, err
}

func (c *Client) send(req *http.Request, result any) (*Response, error) {
	info := requestInfo{api: c.api, url: req.URL.String(), method: req.Method}
	start := time.Now()

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{requestInfo: info, Err: err}
		}
		return nil, &NetworkError{requestInfo: info, Err: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	c.logger.DebugContext(req.Context(), "HTTP request",
		slog.String("api", c.api),
		logfields.Method(req.Method),
		logfields.URL(info.url),
		logfields.Status(httpResp.StatusCode),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))

	if httpResp.StatusCode >= http.StatusBadRequest {
		limited, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, &HTTPStatusError{
			requestInfo: info,
			StatusCode:  httpResp.StatusCode,
			RespBody:    strings.ReplaceAll(string(limited), "\n", " "),
		}
	}

	out := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header}
	if result != nil && req.Method != http.MethodHead && httpResp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(httpResp.Body).Decode(result); err != nil && !stderrors.Is(err, io.EOF) {
			return out, errors.InternalError("failed to decode response").
				WithCause(err).
				WithContext("api", c.api).
				WithContext("url", info.url).
				Build()
		}
	}
	return out, nil
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}
