// Package restclient is the HTTP client shared by every provider integration: it
// authenticates, rate-limits, tags requests with an id, logs with redaction and maps
// non-2xx responses to *types.APIError.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chat-tools-backend/auth"
	"chat-tools-backend/logging"
	"chat-tools-backend/metrics"
	"chat-tools-backend/retry"
	"chat-tools-backend/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds every request made by a Client.
const DefaultTimeout = 15 * time.Second

// DefaultGetAttempts is how many times a GET is tried when it keeps failing with a
// retryable status.
const DefaultGetAttempts = 3

// ErrorHook adjusts a mapped error using provider-specific knowledge, typically to flag
// conflicts or quota exhaustion.
type ErrorHook func(apiErr *types.APIError, header http.Header, body []byte)

// Client calls one provider API rooted at baseURL.
type Client struct {
	httpClient *http.Client
	baseURL    string
	provider   types.ProviderType
	token      auth.Token
	headers    http.Header
	limiter    *rate.Limiter
	errorHook  ErrorHook
	getRetry   retry.Policy
	log        *logrus.Entry
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit allows rps requests per second with the given burst. rps <= 0 disables
// limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// WithErrorHook installs provider-specific error classification.
func WithErrorHook(h ErrorHook) Option {
	return func(c *Client) { c.errorHook = h }
}

// WithGetRetry sets the attempt budget and backoff for GET requests. attempts <= 1
// disables retrying.
func WithGetRetry(attempts int, backoff func(attempt int) time.Duration) Option {
	return func(c *Client) {
		c.getRetry.MaxAttempts = attempts
		c.getRetry.Backoff = backoff
	}
}

// New returns a client for provider rooted at baseURL.
func New(provider types.ProviderType, baseURL string, token auth.Token, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		provider:   provider,
		token:      token,
		headers:    make(http.Header),
		getRetry: retry.Policy{
			MaxAttempts: DefaultGetAttempts,
			Retryable:   types.IsRetryable,
			Backoff:     retry.Exponential(250*time.Millisecond, 2*time.Second),
		},
		log: logging.NewLogger(string(provider)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.getRetry.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.log.WithFields(logrus.Fields{"attempt": attempt, "delay": delay}).WithError(err).Warn("Retrying GET request")
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Provider returns the provider the client talks to.
func (c *Client) Provider() types.ProviderType { return c.provider }

// Response is a completed exchange with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
}

// Decode unmarshals the JSON body into out.
func (r *Response) Decode(out any) error {
	if out == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// RequestOption customizes a single request.
type RequestOption func(*http.Request)

// Accept overrides the Accept header.
func Accept(mediaType string) RequestOption {
	return func(r *http.Request) { r.Header.Set("Accept", mediaType) }
}

// Header sets an arbitrary header.
func Header(key, value string) RequestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// Do sends a request. body may be nil, []byte (sent as-is), an io.Reader, or any value
// that is sent as JSON. A non-2xx status returns the response together with a
// *types.APIError. GET requests failing with a retryable status are retried within the
// client's budget; when the budget runs out the last attempt's error is returned.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	if method != http.MethodGet || body != nil {
		return c.send(ctx, method, path, body, opts...)
	}

	var resp *Response
	err := retry.Do(ctx, c.getRetry, func(ctx context.Context, _ int) error {
		var err error
		resp, err = c.send(ctx, method, path, nil, opts...)
		return err
	})
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		err = exhausted.Last
	}
	return resp, err
}

func (c *Client) send(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	url := c.resolve(path)
	requestID := uuid.New().String()

	reader, contentType, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Request-ID", requestID)
	c.token.Apply(req)
	for _, opt := range opts {
		opt(req)
	}

	log := c.log.WithFields(logrus.Fields{"reqId": requestID, "method": method, "url": logging.RedactURL(url)})
	log.Debug("API request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		metrics.APIRequestDuration.WithLabelValues(string(c.provider), method, "error").Observe(duration.Seconds())
		log.WithError(err).WithField("duration", duration).Error("API request failed")
		return nil, fmt.Errorf("%s %s: request failed: %w", method, logging.RedactURL(url), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	metrics.APIRequestDuration.WithLabelValues(string(c.provider), method, strconv.Itoa(resp.StatusCode)).Observe(duration.Seconds())
	log = log.WithFields(logrus.Fields{"status": resp.StatusCode, "duration": duration})

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		RequestID:  requestID,
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Debug("API response")
		return out, nil
	}

	apiErr := MapError(c.provider, resp.StatusCode, data)
	apiErr.RequestID = requestID
	if c.errorHook != nil {
		c.errorHook(apiErr, resp.Header, data)
	}
	if resp.StatusCode == http.StatusNotFound {
		log.Debug("API resource not found")
	} else {
		log.WithField("error", apiErr.Message).Warn("API returned non-success status")
	}
	return out, apiErr
}

// GetJSON issues a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) (*Response, error) {
	return c.SendJSON(ctx, http.MethodGet, path, nil, out)
}

// SendJSON sends in as JSON and decodes the response into out.
func (c *Client) SendJSON(ctx context.Context, method, path string, in, out any) (*Response, error) {
	resp, err := c.Do(ctx, method, path, in)
	if err != nil {
		return resp, err
	}
	return resp, resp.Decode(out)
}

// GetRaw returns the response body of a GET unmodified.
func (c *Client) GetRaw(ctx context.Context, path, accept string) ([]byte, error) {
	var opts []RequestOption
	if accept != "" {
		opts = append(opts, Accept(accept))
	}
	resp, err := c.Do(ctx, http.MethodGet, path, nil, opts...)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(b), "application/octet-stream", nil
	case io.Reader:
		return b, "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}
