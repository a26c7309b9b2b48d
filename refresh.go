package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

var errRefreshNoToken = errors.New("refresh response has no token")

type refreshResult struct {
	token string
	err   error
}

// refreshCoordinator guarantees at most one refresh in flight per Client.
//
// Waiters are buffered channels appended in arrival order. complete drains them in that
// order with a single shared outcome, so every waiter settles exactly once.
type refreshCoordinator struct {
	mu       sync.Mutex
	inFlight bool
	waiters  []chan refreshResult

	// outcome of the last refresh, so a late 401 for the same token reuses it
	rotatedFrom string
	rotatedTo   string
	failedFrom  string
	failure     error
}

type refreshTicket struct {
	leader  bool
	rotated string
	failure error
	wait    <-chan refreshResult
}

func (r *refreshCoordinator) join(token string) refreshTicket {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight {
		ch := make(chan refreshResult, 1)
		r.waiters = append(r.waiters, ch)
		return refreshTicket{wait: ch}
	}
	if r.rotatedFrom != "" && r.rotatedFrom == token {
		return refreshTicket{rotated: r.rotatedTo}
	}
	if r.failedFrom != "" && r.failedFrom == token {
		return refreshTicket{failure: r.failure}
	}
	r.inFlight = true
	return refreshTicket{leader: true}
}

// complete clears the in-flight flag and notifies waiters. It returns how many were notified.
func (r *refreshCoordinator) complete(from string, res refreshResult) int {
	r.mu.Lock()
	waiters := r.waiters
	r.waiters = nil
	r.inFlight = false
	if res.err == nil {
		r.rotatedFrom, r.rotatedTo = from, res.token
		r.failedFrom, r.failure = "", nil
	} else {
		r.rotatedFrom, r.rotatedTo = "", ""
		r.failedFrom, r.failure = from, res.err
	}
	r.mu.Unlock()

	for _, w := range waiters {
		w <- res
	}
	return len(waiters)
}

func (r *refreshCoordinator) forget() {
	r.mu.Lock()
	r.rotatedFrom, r.rotatedTo = "", ""
	r.failedFrom, r.failure = "", nil
	r.mu.Unlock()
}

func (r *refreshCoordinator) inProgress() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}

func (r *refreshCoordinator) queued() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}

// refreshAndRetry obtains a fresh token for a request that got 401 with token, then
// replays the request once.
func (c *Client) refreshAndRetry(ctx context.Context, req request, token string) (json.RawMessage, error) {
	// The session already moved past token, possibly through several rotations. Refreshing
	// with a superseded token would fail and wipe the current one.
	if current := c.Token(); current != "" && current != token {
		c.metrics.Inc(MetricRetryAfterRefresh)
		return c.execute(ctx, req.withBearer(current))
	}

	ticket := c.refresh.join(token)

	var next string
	switch {
	case ticket.failure != nil:
		return nil, ticket.failure
	case ticket.rotated != "":
		next = ticket.rotated
	case ticket.leader:
		t, err := c.runRefresh(ctx, req, token)
		if err != nil {
			return nil, err
		}
		next = t
	default:
		c.metrics.Inc(MetricRefreshWaiterQueued)
		select {
		case res := <-ticket.wait:
			if res.err != nil {
				return nil, res.err
			}
			next = res.token
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.metrics.Inc(MetricRetryAfterRefresh)
	return c.execute(ctx, req.withBearer(next))
}

// runRefresh is executed by the leader only. It is detached from the caller's
// cancellation so waiters are never stranded by one caller giving up, and its events
// never wait on a slow sink.
func (c *Client) runRefresh(ctx context.Context, req request, oldToken string) (string, error) {
	ctx = context.WithoutCancel(ctx)
	requestID := req.requestID
	c.metrics.Inc(MetricRefreshStarted)
	c.logger.Info().Str("request_id", requestID).Msg("session token expired, refreshing")

	token, err := c.requestRefresh(ctx, requestID, oldToken)
	if err == nil {
		token, err = c.adoptRefreshed(ctx, req.generation, token)
	}

	if err != nil {
		expired := &SessionExpiredError{Cause: err}
		c.dropToken(ctx, req.generation)
		n := c.refresh.complete(oldToken, refreshResult{err: expired})
		c.metrics.Inc(MetricRefreshFailure)
		for i := 0; i < n; i++ {
			c.metrics.Inc(MetricRefreshWaiterRejected)
		}
		c.logger.Warn().Err(err).Str("request_id", requestID).Int("waiters", n).Msg("token refresh failed, session cleared")
		c.notify(EventRefreshFailed, requestID, c.cfg.Endpoints.Refresh, false, err)
		c.notify(EventSessionExpired, requestID, "", false, err)
		return "", expired
	}

	n := c.refresh.complete(oldToken, refreshResult{token: token})
	c.metrics.Inc(MetricRefreshSuccess)
	c.logger.Info().Str("request_id", requestID).Int("waiters", n).Msg("token refreshed")
	c.notify(EventTokenRefreshed, requestID, c.cfg.Endpoints.Refresh, true, nil)
	return token, nil
}

// requestRefresh posts the refresh endpoint with the old token. retryCount starts at 1
// so a 401 from the refresh endpoint is returned instead of refreshing again.
func (c *Client) requestRefresh(ctx context.Context, requestID, oldToken string) (string, error) {
	headers := make(http.Header, len(c.cfg.DefaultHeaders)+1)
	for k, v := range c.cfg.DefaultHeaders {
		headers.Set(k, v)
	}
	headers.Set("Authorization", "Bearer "+oldToken)

	raw, err := c.execute(ctx, request{
		endpoint:   c.cfg.Endpoints.Refresh,
		method:     http.MethodPost,
		headers:    headers,
		retryCount: 1,
		requestID:  requestID,
	})
	if err != nil {
		return "", err
	}

	var resp AuthResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if resp.Token == "" {
		return "", errRefreshNoToken
	}
	return resp.Token, nil
}
