package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/storefront-mobile/apiclient/tokenstore"
)

// Client talks to one storefront API. Create one per process with [Builder.Build]; all
// methods are safe for concurrent use.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	store   tokenstore.Store
	logger  zerolog.Logger
	metrics *Metrics
	events  *eventDispatcher
	limiter *rate.Limiter

	tokenMu sync.RWMutex
	token   string
	// generation changes whenever the session is replaced or cleared outside a refresh
	generation uint64

	refresh refreshCoordinator

	closeOnce sync.Once
}

// Call issues one logical request against BaseURL+endpoint and returns the raw JSON body
// of a 2xx response.
//
// Failures are one of: ErrTimeout, *NetworkError (ErrNetworkUnreachable),
// *SessionExpiredError (ErrSessionExpired), *APIError (ErrAPI, and ErrUnauthorized for a
// 401 that survived a refresh), a JSON syntax error for an invalid 2xx body, or the
// context error when ctx ends first.
func (c *Client) Call(ctx context.Context, endpoint string, opts *Options) (json.RawMessage, error) {
	if c == nil || c.http == nil {
		return nil, ErrClientNotReady
	}
	req, err := c.newRequest(endpoint, opts)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, req)
}

// Do is Call followed by json.Unmarshal into out. A nil out discards the body.
func (c *Client) Do(ctx context.Context, endpoint string, opts *Options, out any) error {
	raw, err := c.Call(ctx, endpoint, opts)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) Get(ctx context.Context, endpoint string, out any) error {
	return c.Do(ctx, endpoint, &Options{Method: http.MethodGet, Auth: true}, out)
}

func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, endpoint, &Options{Method: http.MethodPost, Body: body, Auth: true}, out)
}

func (c *Client) Put(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, endpoint, &Options{Method: http.MethodPut, Body: body, Auth: true}, out)
}

func (c *Client) Patch(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, endpoint, &Options{Method: http.MethodPatch, Body: body, Auth: true}, out)
}

func (c *Client) Delete(ctx context.Context, endpoint string, out any) error {
	return c.Do(ctx, endpoint, &Options{Method: http.MethodDelete, Auth: true}, out)
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// MetricsSnapshot returns a copy of the client counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil {
		return MetricsSnapshot{}
	}
	return c.metrics.Snapshot()
}

// EventsDropped reports how many session events were discarded because the buffer was full.
func (c *Client) EventsDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.events.Dropped()
}

// Close flushes pending session events. It does not close the token store.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.events.Close()
	})
}

// emit records a session event caller-side, honoring Events.DropIfFull and ctx.
func (c *Client) emit(ctx context.Context, eventType, requestID, endpoint string, success bool, err error) {
	if c.events == nil {
		return
	}
	c.events.Emit(ctx, newSessionEvent(eventType, requestID, endpoint, success, err))
}

// notify records a session event from the refresh path. It never blocks.
func (c *Client) notify(eventType, requestID, endpoint string, success bool, err error) {
	if c.events == nil {
		return
	}
	c.events.Offer(newSessionEvent(eventType, requestID, endpoint, success, err))
}

func newSessionEvent(eventType, requestID, endpoint string, success bool, err error) SessionEvent {
	ev := SessionEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		RequestID: requestID,
		Endpoint:  endpoint,
		Success:   success,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
