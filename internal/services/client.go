package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songdesk/internal/identity"
	"github.com/desertthunder/songdesk/internal/shared"
	"github.com/desertthunder/songdesk/internal/store"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "http://localhost:4000/api"
	DefaultTimeout = 10 * time.Second
)

// APIResponse represents a backend response with status and body.
//
// Degraded responses were synthesized by the recovery policy: Cause holds the absorbed error.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
	Degraded   bool
	Cause      error
}

// Decode unmarshals the response body into v.
func (r *APIResponse) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Items returns the JSON body as a list of objects. A single object is returned as a one element list.
func (r *APIResponse) Items() []map[string]any {
	switch data := r.JSONData.(type) {
	case []any:
		items := make([]map[string]any, 0, len(data))
		for _, v := range data {
			if m, ok := v.(map[string]any); ok {
				items = append(items, m)
			}
		}
		return items
	case map[string]any:
		if nested, ok := data["data"].([]any); ok {
			return (&APIResponse{JSONData: nested}).Items()
		}
		return []map[string]any{data}
	default:
		return nil
	}
}

// emptyResponse is the synthesized success returned when a read is absorbed.
func emptyResponse(cause error) *APIResponse {
	return &APIResponse{
		StatusCode: http.StatusOK,
		Headers:    http.Header{},
		Body:       []byte("[]"),
		IsJSON:     true,
		JSONData:   []any{},
		Degraded:   true,
		Cause:      cause,
	}
}

// Navigator receives the login location when the session cannot be recovered.
type Navigator func(location string)

// ClientOpts configures a [Client].
type ClientOpts struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 disables limiting
	LoginURL   string

	Provider  identity.Provider
	Session   *store.Session
	Logger    *log.Logger
	OnExpired Navigator
}

// Client makes authenticated requests to the dashboard backend and applies the recovery policy:
//
//   - 401: one silent refresh and retry, then session expiry
//   - 403: GET degrades to an empty result, other methods fail
//   - network failure: marks the API unreachable, GET degrades, mutations fail
//   - timeout: GET degrades, mutations fail
type Client struct {
	baseURL    string
	loginURL   string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter

	provider  identity.Provider
	session   *store.Session
	logger    *log.Logger
	onExpired Navigator
}

// NewClient creates a [Client]. Session is required; Provider may be nil for unauthenticated use.
func NewClient(opts ClientOpts) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		loginURL:   opts.LoginURL,
		httpClient: opts.HTTPClient,
		timeout:    opts.Timeout,
		provider:   opts.Provider,
		session:    opts.Session,
		logger:     shared.WithLogger(opts.Logger, "component", "client"),
		onExpired:  opts.OnExpired,
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return c
}

// Get performs a GET request. Connectivity failures and 403 responses are absorbed into an empty
// degraded result.
func (c *Client) Get(ctx context.Context, path string) (*APIResponse, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return c.Do(ctx, http.MethodPost, path, data)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return c.Do(ctx, http.MethodPut, path, data)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*APIResponse, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// Unreachable reports whether the last request failed to reach the backend.
func (c *Client) Unreachable() bool {
	return c.session.APIUnreachable()
}

// Do sends a request and applies the recovery policy. Non-2xx responses that are not absorbed are
// returned together with an [*HTTPError].
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*APIResponse, error) {
	method = strings.ToUpper(method)
	fullURL := c.url(path)
	logger := shared.WithLogger(c.logger, "method", method, "url", fullURL)

	token := c.acquireToken(ctx, logger)
	retried := false

	for {
		resp, err := c.send(ctx, method, fullURL, body, token)
		if err != nil {
			return c.handleTransportError(method, fullURL, err, logger)
		}

		logger.Debug("response", "status", resp.StatusCode)

		switch {
		case resp.StatusCode == http.StatusUnauthorized && !retried:
			retried = true
			logger.Warn("request unauthorized, refreshing token", "status", resp.StatusCode)

			fresh, err := c.refresh(ctx)
			if err != nil {
				logger.Error("token refresh failed", "status", resp.StatusCode, "error", err)
				return resp, c.expire(ctx, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err))
			}
			token = fresh
			continue

		case resp.StatusCode == http.StatusUnauthorized:
			logger.Error("request unauthorized after refresh", "status", resp.StatusCode)
			return resp, c.expire(ctx, &HTTPError{Method: method, URL: fullURL, StatusCode: resp.StatusCode, Body: resp.Body})

		case resp.StatusCode == http.StatusForbidden:
			herr := &HTTPError{Method: method, URL: fullURL, StatusCode: resp.StatusCode, Body: resp.Body}
			if method == http.MethodGet {
				if c.session.Once(store.FlagForbiddenShown) {
					logger.Warn("access denied, showing empty result", "status", resp.StatusCode)
				} else {
					logger.Debug("access denied, showing empty result", "status", resp.StatusCode)
				}
				return emptyResponse(herr), nil
			}
			logger.Error("access denied", "status", resp.StatusCode)
			return resp, herr

		case resp.StatusCode < 200 || resp.StatusCode > 299:
			logger.Error("request failed", "status", resp.StatusCode)
			return resp, &HTTPError{Method: method, URL: fullURL, StatusCode: resp.StatusCode, Body: resp.Body}

		default:
			c.session.ClearAPIUnreachable()
			return resp, nil
		}
	}
}

func (c *Client) url(path string) string {
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// acquireToken force-refreshes the live principal's token, falling back to the stored token.
func (c *Client) acquireToken(ctx context.Context, logger *log.Logger) string {
	if c.provider == nil {
		return c.session.Token()
	}

	p := c.provider.CurrentPrincipal()
	if p == nil {
		return c.session.Token()
	}

	token, err := c.provider.RefreshToken(ctx, p, true)
	if err != nil {
		logger.Warn("token refresh before request failed, using stored token", "error", err)
		return c.session.Token()
	}
	c.session.SetToken(token)
	return token
}

// refresh is the 401 path: it requires a live principal.
func (c *Client) refresh(ctx context.Context) (string, error) {
	if c.provider == nil {
		return "", shared.ErrNoPrincipal
	}
	p := c.provider.CurrentPrincipal()
	if p == nil {
		return "", shared.ErrNoPrincipal
	}

	token, err := c.provider.RefreshToken(ctx, p, true)
	if err != nil {
		return "", err
	}
	c.session.SetToken(token)
	return token, nil
}

// expire clears all session state, ends the provider session and navigates to the login entry point.
func (c *Client) expire(ctx context.Context, cause error) error {
	if err := c.session.Clear(); err != nil {
		c.logger.Warn("failed to clear session", "error", err)
	}
	if c.provider != nil {
		if err := c.provider.SignOut(ctx); err != nil {
			c.logger.Warn("provider sign-out failed", "error", err)
		}
	}

	location := ExpiredLoginURL(c.loginURL)
	c.logger.Warn("session expired", "redirect", location)
	if c.onExpired != nil {
		c.onExpired(location)
	}
	return fmt.Errorf("%w: %w", shared.ErrSessionExpired, cause)
}

// ExpiredLoginURL appends the expired indicator to loginURL.
func ExpiredLoginURL(loginURL string) string {
	if loginURL == "" {
		loginURL = "/login"
	}
	u, err := url.Parse(loginURL)
	if err != nil {
		return loginURL + "?expired=true"
	}
	q := u.Query()
	q.Set("expired", "true")
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) handleTransportError(method, fullURL string, err error, logger *log.Logger) (*APIResponse, error) {
	switch {
	case errors.Is(err, shared.ErrInvalidInput):
		logger.Error("invalid request", "error", err)
		return nil, err

	case errors.Is(err, context.Canceled):
		logger.Debug("request cancelled")
		return nil, err

	case IsTimeout(err):
		logger.Error("request timed out", "status", 0, "error", err)
		if method == http.MethodGet {
			return emptyResponse(fmt.Errorf("%w: %w", shared.ErrTimeout, err)), nil
		}
		return nil, fmt.Errorf("%w: %s %s: %w", shared.ErrTimeout, method, fullURL, err)

	case IsNetworkError(err):
		if c.session.MarkAPIUnreachable() {
			logger.Warn("API unreachable, showing empty results for reads", "error", err)
		}
		logger.Error("request failed", "status", 0, "error", err)
		if method == http.MethodGet {
			return emptyResponse(fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, err)), nil
		}
		return nil, fmt.Errorf("%w: %s %s: %w", shared.ErrServiceUnavailable, method, fullURL, err)

	default:
		logger.Error("request failed", "status", 0, "error", err)
		return nil, fmt.Errorf("%w: %s %s: %w", shared.ErrAPIRequest, method, fullURL, err)
	}
}

// send performs a single attempt bounded by the client timeout.
func (c *Client) send(ctx context.Context, method, fullURL string, body []byte, token string) (*APIResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", shared.ErrInvalidInput, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", shared.GenerateID())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}

	var jsonData any
	if err := json.Unmarshal(data, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}
