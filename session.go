package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/storefront-mobile/apiclient/jwt"
	"github.com/storefront-mobile/apiclient/tokenstore"
)

// AuthResponse is returned by the login, register and refresh endpoints.
type AuthResponse struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user,omitempty"`
}

// Credentials are sent to the login endpoint. RememberMe is stored locally only.
type Credentials struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"-"`
}

// Login authenticates and persists the returned token and the remember-me flag.
func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	if c == nil || c.http == nil {
		return nil, ErrClientNotReady
	}
	resp, requestID, err := c.authenticate(ctx, c.cfg.Endpoints.Login, creds)
	if err != nil {
		c.emit(ctx, EventLogin, requestID, c.cfg.Endpoints.Login, false, err)
		return nil, err
	}
	if err := c.persistToken(ctx, resp.Token); err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, c.cfg.Session.RememberMeKey, strconv.FormatBool(creds.RememberMe)); err != nil {
		return nil, fmt.Errorf("persist remember-me flag: %w", err)
	}
	c.refresh.forget()

	c.metrics.Inc(MetricLogin)
	c.emit(ctx, EventLogin, requestID, c.cfg.Endpoints.Login, true, nil)
	return resp, nil
}

// Register creates an account and persists the returned token.
func (c *Client) Register(ctx context.Context, payload any) (*AuthResponse, error) {
	if c == nil || c.http == nil {
		return nil, ErrClientNotReady
	}
	resp, requestID, err := c.authenticate(ctx, c.cfg.Endpoints.Register, payload)
	if err != nil {
		c.emit(ctx, EventRegister, requestID, c.cfg.Endpoints.Register, false, err)
		return nil, err
	}
	if err := c.persistToken(ctx, resp.Token); err != nil {
		return nil, err
	}
	c.refresh.forget()

	c.emit(ctx, EventRegister, requestID, c.cfg.Endpoints.Register, true, nil)
	return resp, nil
}

func (c *Client) authenticate(ctx context.Context, endpoint string, body any) (*AuthResponse, string, error) {
	req, err := c.newRequest(endpoint, &Options{Method: http.MethodPost, Body: body})
	if err != nil {
		return nil, "", err
	}
	raw, err := c.call(ctx, req)
	if err != nil {
		return nil, req.requestID, err
	}

	var resp AuthResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, req.requestID, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	if resp.Token == "" {
		return nil, req.requestID, fmt.Errorf("%s response has no token", endpoint)
	}
	return &resp, req.requestID, nil
}

// Logout notifies the API when configured to, then clears the local session. The remote
// call is best effort: its failure is logged and never prevents the local cleanup.
func (c *Client) Logout(ctx context.Context) error {
	if c == nil || c.http == nil {
		return ErrClientNotReady
	}

	var requestID string
	if tok := c.Token(); tok != "" && c.cfg.Session.LogoutRemote {
		req, err := c.newRequest(c.cfg.Endpoints.Logout, &Options{Method: http.MethodPost, Auth: true})
		if err == nil {
			requestID = req.requestID
			// no refresh for an expiring session
			req.retryCount = 1
			if _, err := c.call(ctx, req); err != nil {
				c.logger.Debug().Err(err).Str("request_id", requestID).Msg("remote logout failed")
			}
		}
	}

	err := c.ClearSession(ctx)
	c.metrics.Inc(MetricLogout)
	c.emit(ctx, EventLogout, requestID, c.cfg.Endpoints.Logout, err == nil, err)
	return err
}

// Restore loads the persisted session at startup. A remember-me flag stored as "false"
// discards the token and yields ErrNoSession.
func (c *Client) Restore(ctx context.Context) (string, error) {
	if c == nil || c.http == nil {
		return "", ErrClientNotReady
	}

	remember, err := c.store.Get(ctx, c.cfg.Session.RememberMeKey)
	if err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
		return "", fmt.Errorf("read remember-me flag: %w", err)
	}
	if err == nil && remember == "false" {
		if err := c.ClearSession(ctx); err != nil {
			return "", err
		}
		return "", ErrNoSession
	}

	tok, err := c.store.Get(ctx, c.cfg.Session.TokenKey)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}

	c.tokenMu.Lock()
	c.token = tok
	c.generation++
	c.tokenMu.Unlock()
	return tok, nil
}

// SetToken persists token as the current session token.
func (c *Client) SetToken(ctx context.Context, token string) error {
	if c == nil || c.http == nil {
		return ErrClientNotReady
	}
	if token == "" {
		return errors.New("token must not be empty")
	}
	if err := c.persistToken(ctx, token); err != nil {
		return err
	}
	c.refresh.forget()
	return nil
}

// Token returns the session token held in memory, or "".
func (c *Client) Token() string {
	if c == nil {
		return ""
	}
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// ClearSession removes the token and the remember-me flag from memory and the store.
func (c *Client) ClearSession(ctx context.Context) error {
	if c == nil || c.http == nil {
		return ErrClientNotReady
	}
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	c.token = ""
	c.generation++
	c.refresh.forget()
	if err := c.store.Remove(ctx, c.cfg.Session.TokenKey); err != nil {
		return fmt.Errorf("remove token: %w", err)
	}
	if err := c.store.Remove(ctx, c.cfg.Session.RememberMeKey); err != nil {
		return fmt.Errorf("remove remember-me flag: %w", err)
	}
	return nil
}

// TokenExpiry returns the unverified exp claim of the current token. ok is false when
// there is no token or it is not a JWT with an expiry.
func (c *Client) TokenExpiry() (time.Time, bool) {
	tok := c.Token()
	if tok == "" {
		return time.Time{}, false
	}
	exp, err := jwt.ExpiresAt(tok)
	if err != nil {
		return time.Time{}, false
	}
	return exp, true
}

// session returns the in-memory token and the generation it belongs to.
func (c *Client) session() (string, uint64) {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token, c.generation
}

// persistToken installs token as a new session. The store write and the memory update
// happen under one lock, so no reader sees the token in memory before it is durable.
func (c *Client) persistToken(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if err := c.store.Set(ctx, c.cfg.Session.TokenKey, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	c.token = token
	c.generation++
	return nil
}

// adoptRefreshed stores a refreshed token unless the session of generation gen was
// replaced meanwhile. A logged-out session stays logged out; a replaced one is used as is.
func (c *Client) adoptRefreshed(ctx context.Context, gen uint64, token string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.generation != gen {
		if c.token == "" {
			return "", ErrNoSession
		}
		return c.token, nil
	}
	if err := c.store.Set(ctx, c.cfg.Session.TokenKey, token); err != nil {
		return "", fmt.Errorf("persist token: %w", err)
	}
	c.token = token
	return token, nil
}

// dropToken deletes the session token after a failed refresh. The remember-me flag is
// kept, and a session installed after generation gen is left alone.
func (c *Client) dropToken(ctx context.Context, gen uint64) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.generation != gen {
		return
	}
	c.token = ""
	if err := c.store.Remove(ctx, c.cfg.Session.TokenKey); err != nil {
		c.logger.Error().Err(err).Msg("remove expired token")
	}
}
