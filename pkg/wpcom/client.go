// Package wpcom is a small REST client for the WordPress.com public API.
package wpcom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public REST API host.
	DefaultBaseURL = "https://public-api.wordpress.com"
	// DefaultAPIVersion is used when a request leaves APIVersion empty.
	DefaultAPIVersion = "1.1"
	// DefaultTimeout bounds one HTTP round trip.
	DefaultTimeout = 15 * time.Second

	maxErrorBody = 4096
)

// ErrEmptyResponse is returned when the API answers with no body.
var ErrEmptyResponse = errors.New("wpcom: empty response")

// HTTPError is a non-2xx API response.
type HTTPError struct {
	StatusCode int
	// Code is the API error code, for example "unauthorized".
	Code    string
	Message string
}

// Error implements error.
func (e *HTTPError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("wpcom: http %d", e.StatusCode)
	}

	return fmt.Sprintf("wpcom: http %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Config configures a Client.
type Config struct {
	// BaseURL is the API host. Empty uses DefaultBaseURL.
	BaseURL string
	// Token is sent as a bearer token when non-empty.
	Token string
	// Timeout bounds one HTTP round trip. Zero uses DefaultTimeout.
	Timeout time.Duration
	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64
	// Burst is the pacing bucket size. Values below 1 become 1.
	Burst int
}

// Request is one API call.
type Request struct {
	APIVersion string
	Method     string
	// Path is relative to the versioned API root, for example "/connect/site-info".
	Path  string
	Query url.Values
	// Body is JSON-encoded when non-nil.
	Body any
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client issues paced, authenticated REST requests.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a client from cfg.
func New(cfg Config, options ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("wpcom: parse base url %q: %w", baseURL, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := max(cfg.Burst, 1)

	client := &Client{
		baseURL: baseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  slog.Default(),
	}
	for _, option := range options {
		option(client)
	}

	return client, nil
}

// Get issues a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post issues a POST request with a JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, query url.Values, body any, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Query: query, Body: body}, out)
}

// Do performs request and decodes the JSON response into out when out is non-nil.
func (c *Client) Do(ctx context.Context, request Request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wpcom: wait for rate limiter: %w", err)
	}

	httpRequest, err := c.newHTTPRequest(ctx, request)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	response, err := c.http.Do(httpRequest)
	if err != nil {
		return fmt.Errorf("wpcom: %s %s: %w", httpRequest.Method, request.Path, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	c.logger.DebugContext(ctx, "wpcom request",
		"method", httpRequest.Method,
		"path", request.Path,
		"status", response.StatusCode,
		"duration", time.Since(startedAt),
	)

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return decodeHTTPError(response)
	}
	if out == nil {
		return nil
	}

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("wpcom: read %s response: %w", request.Path, err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return fmt.Errorf("%s %s: %w", httpRequest.Method, request.Path, ErrEmptyResponse)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("wpcom: decode %s response: %w", request.Path, err)
	}

	return nil
}

func (c *Client) newHTTPRequest(ctx context.Context, request Request) (*http.Request, error) {
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}
	version := request.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}

	target := c.baseURL + "/rest/v" + version + "/" + strings.TrimLeft(request.Path, "/")
	if len(request.Query) > 0 {
		target += "?" + request.Query.Encode()
	}

	var body io.Reader
	if request.Body != nil {
		encoded, err := json.Marshal(request.Body)
		if err != nil {
			return nil, fmt.Errorf("wpcom: encode %s body: %w", request.Path, err)
		}
		body = bytes.NewReader(encoded)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("wpcom: build %s request: %w", request.Path, err)
	}
	httpRequest.Header.Set("Accept", "application/json")
	if body != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+c.token)
	}

	return httpRequest, nil
}

func decodeHTTPError(response *http.Response) error {
	httpErr := &HTTPError{StatusCode: response.StatusCode}

	payload, err := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
	if err != nil || len(payload) == 0 {
		return httpErr
	}

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		httpErr.Message = strings.TrimSpace(string(payload))
		return httpErr
	}
	httpErr.Code = body.Error
	httpErr.Message = body.Message

	return httpErr
}
