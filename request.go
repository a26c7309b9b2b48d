package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the id shared by a call and its retry.
const RequestIDHeader = "X-Request-ID"

// Options describe one call. The zero value is a GET without a session token.
type Options struct {
	Method string
	// Headers override the default headers. Keys are matched case-insensitively.
	Headers map[string]string
	// Body is sent as-is for []byte, json.RawMessage, string and io.Reader, and encoded
	// as JSON otherwise.
	Body any
	// Auth attaches "Authorization: Bearer <token>" when a session token is held and
	// Headers carry no Authorization entry.
	Auth bool
}

// request is immutable once built; retries derive a copy.
type request struct {
	endpoint   string
	method     string
	headers    http.Header
	body       []byte
	retryCount int
	requestID  string
	// session generation the request was built under
	generation uint64
}

func (c *Client) newRequest(endpoint string, opts *Options) (request, error) {
	if err := validateEndpoint(endpoint); err != nil {
		return request{}, err
	}
	if opts == nil {
		opts = &Options{}
	}

	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}

	headers := make(http.Header, len(c.cfg.DefaultHeaders)+len(opts.Headers)+1)
	for k, v := range c.cfg.DefaultHeaders {
		headers.Set(k, v)
	}
	for k, v := range opts.Headers {
		headers.Set(k, v)
	}
	tok, gen := c.session()
	if opts.Auth && headers.Get("Authorization") == "" && tok != "" {
		headers.Set("Authorization", "Bearer "+tok)
	}

	body, err := encodeBody(opts.Body)
	if err != nil {
		return request{}, fmt.Errorf("encode request body: %w", err)
	}

	return request{
		endpoint:   endpoint,
		method:     method,
		headers:    headers,
		body:       body,
		requestID:  uuid.NewString(),
		generation: gen,
	}, nil
}

// withBearer returns the retry of r carrying token.
func (r request) withBearer(token string) request {
	next := r
	next.headers = r.headers.Clone()
	next.headers.Set("Authorization", "Bearer "+token)
	next.retryCount = r.retryCount + 1
	return next
}

func (r request) bearer() string {
	auth := r.headers.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

func validateEndpoint(endpoint string) error {
	if !strings.HasPrefix(endpoint, "/") || strings.HasPrefix(endpoint, "//") || strings.Contains(endpoint, "://") {
		return fmt.Errorf("%w: %q must be a path starting with '/'", ErrInvalidEndpoint, endpoint)
	}
	return nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	case io.Reader:
		return io.ReadAll(b)
	default:
		return json.Marshal(b)
	}
}

// call wraps execute with metrics and request logging.
func (c *Client) call(ctx context.Context, req request) (json.RawMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.metrics.Inc(MetricCallStarted)
	start := time.Now()

	out, err := c.execute(ctx, req)

	elapsed := time.Since(start)
	c.metrics.Observe(MetricCallLatency, elapsed)
	c.countOutcome(err)

	ev := c.logger.Debug()
	if err != nil {
		ev = c.logger.Info().Err(err)
	}
	ev.Str("request_id", req.requestID).
		Str("method", req.method).
		Str("endpoint", req.endpoint).
		Dur("duration", elapsed).
		Msg("api call finished")

	return out, err
}

func (c *Client) countOutcome(err error) {
	var apiErr *APIError
	switch {
	case err == nil:
		c.metrics.Inc(MetricCallSuccess)
	case errors.Is(err, ErrSessionExpired):
		c.metrics.Inc(MetricSessionExpired)
	case errors.Is(err, ErrTimeout):
		c.metrics.Inc(MetricCallTimeout)
	case errors.Is(err, ErrNetworkUnreachable):
		c.metrics.Inc(MetricCallNetworkError)
	case errors.As(err, &apiErr):
		c.metrics.Inc(MetricCallAPIError)
	}
}

// execute runs one attempt and, for a first-attempt 401 with a bearer token, the refresh
// and the single retry.
func (c *Client) execute(ctx context.Context, req request) (json.RawMessage, error) {
	status, body, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}

	switch {
	case status >= 200 && status < 300:
		return decodeSuccess(status, body)
	case status == http.StatusUnauthorized:
		if token := req.bearer(); req.retryCount == 0 && token != "" {
			return c.refreshAndRetry(ctx, req, token)
		}
		c.metrics.Inc(MetricUnauthorizedPassthrough)
	}

	c.logErrorBody(req, status, body)
	return nil, newAPIError(status, body, c.cfg.Errors.MaxTextLength)
}

// roundTrip performs one HTTP attempt bounded by Config.Timeout and reads the whole body.
func (c *Client) roundTrip(ctx context.Context, req request) (int, []byte, error) {
	if c.limiter != nil {
		if c.limiter.Tokens() < 1 {
			c.metrics.Inc(MetricRateLimitWait)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			return 0, nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if len(req.body) > 0 {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, req.method, c.baseURL+req.endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header = req.headers.Clone()
	httpReq.Header.Set(RequestIDHeader, req.requestID)

	c.logger.Debug().
		Str("request_id", req.requestID).
		Str("method", req.method).
		Str("endpoint", req.endpoint).
		Int("retry", req.retryCount).
		Msg("api request")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, c.transportError(ctx, attemptCtx, req, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, c.transportError(ctx, attemptCtx, req, err)
	}

	c.logger.Debug().
		Str("request_id", req.requestID).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Msg("api response")

	return resp.StatusCode, data, nil
}

func (c *Client) transportError(parent, attempt context.Context, req request, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	var netErr net.Error
	if errors.Is(attempt.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w after %s: %s %s", ErrTimeout, c.cfg.Timeout, req.method, req.endpoint)
	}
	return &NetworkError{BaseURL: c.baseURL, Err: err}
}

func decodeSuccess(status int, body []byte) (json.RawMessage, error) {
	if status == http.StatusNoContent || status == http.StatusResetContent {
		return json.RawMessage("null"), nil
	}
	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// logErrorBody is diagnostic only.
func (c *Client) logErrorBody(req request, status int, body []byte) {
	if !c.cfg.Errors.LogBodies {
		return
	}
	c.logger.Debug().
		Str("request_id", req.requestID).
		Str("endpoint", req.endpoint).
		Int("status", status).
		Str("body", truncateRunes(string(body), 1024)).
		Msg("api error body")
}
