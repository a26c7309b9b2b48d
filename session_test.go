package apiclient

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-mobile/apiclient/apitest"
	"github.com/storefront-mobile/apiclient/tokenstore"
)

func TestLoginPersistsTokenAndRememberMe(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	userID := srv.AddUser("jane@example.com", "hunter2-long")

	store := tokenstore.NewMemory()
	sink := NewChannelSink(8)
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	c, err := New().WithConfig(cfg).WithTokenStore(store).WithEventSink(sink).WithMetricsEnabled(true).Build()
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	resp, err := c.Login(ctx, Credentials{Email: "jane@example.com", Password: "hunter2-long", RememberMe: false})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)

	var user apitest.User
	require.NoError(t, json.Unmarshal(resp.User, &user))
	assert.Equal(t, userID, user.ID)

	tok, err := store.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, resp.Token, tok)
	remember, err := store.Get(ctx, "rememberMe")
	require.NoError(t, err)
	assert.Equal(t, "false", remember)
	assert.Equal(t, resp.Token, c.Token())

	exp, ok := c.TokenExpiry()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, time.Minute)

	select {
	case ev := <-sink.Events():
		assert.Equal(t, EventLogin, ev.EventType)
		assert.True(t, ev.Success)
		assert.NotContains(t, ev.Error, resp.Token)
	case <-time.After(2 * time.Second):
		t.Fatal("expected login event")
	}
	assert.Equal(t, uint64(1), c.MetricsSnapshot().Counters[MetricLogin])
}

func TestLoginWrongPassword(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	srv.AddUser("jane@example.com", "hunter2-long")
	c := newTestClient(t, srv.URL, nil, nil)

	_, err := c.Login(context.Background(), Credentials{Email: "jane@example.com", Password: "nope"})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.EqualError(t, err, "Invalid email or password")
	assert.Equal(t, 0, srv.RefreshCalls())
	assert.Equal(t, "", c.Token())
}

func TestRegister(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv.URL, nil, nil)
	ctx := context.Background()

	_, err := c.Register(ctx, map[string]string{"email": "", "password": "x"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 422, apiErr.Status)

	resp, err := c.Register(ctx, map[string]string{"email": "new@example.com", "password": "long-enough", "name": "New"})
	require.NoError(t, err)
	assert.Equal(t, resp.Token, c.Token())
	require.NoError(t, c.Get(ctx, "/profile", nil))
}

func TestLogoutClearsSession(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	srv.AddUser("jane@example.com", "hunter2-long")
	store := tokenstore.NewMemory()
	c := newTestClient(t, srv.URL, store, nil)
	ctx := context.Background()

	resp, err := c.Login(ctx, Credentials{Email: "jane@example.com", Password: "hunter2-long", RememberMe: true})
	require.NoError(t, err)

	require.NoError(t, c.Logout(ctx))
	assert.Equal(t, 1, srv.Hits("/logout"))
	assert.Equal(t, "Bearer "+resp.Token, srv.LastAuthorization("/logout"))
	assert.False(t, srv.IsActive(resp.Token))
	assert.Equal(t, "", c.Token())
	assert.Zero(t, store.Len())

	_, ok := c.TokenExpiry()
	assert.False(t, ok)
}

func TestLogoutSucceedsWhenServerUnreachable(t *testing.T) {
	store := tokenstore.NewMemory()
	c := newTestClient(t, "http://127.0.0.1:1", store, func(cfg *Config) { cfg.Timeout = time.Second })
	ctx := context.Background()
	require.NoError(t, c.SetToken(ctx, "abc"))

	require.NoError(t, c.Logout(ctx))
	assert.Equal(t, "", c.Token())
	assert.Zero(t, store.Len())
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("remembered", func(t *testing.T) {
		store := tokenstore.NewMemory()
		require.NoError(t, store.Set(ctx, "token", "abc"))
		require.NoError(t, store.Set(ctx, "rememberMe", "true"))
		c := newTestClient(t, "http://127.0.0.1:1", store, nil)

		tok, err := c.Restore(ctx)
		require.NoError(t, err)
		assert.Equal(t, "abc", tok)
		assert.Equal(t, "abc", c.Token())
	})

	t.Run("flag absent", func(t *testing.T) {
		store := tokenstore.NewMemory()
		require.NoError(t, store.Set(ctx, "token", "abc"))
		c := newTestClient(t, "http://127.0.0.1:1", store, nil)

		tok, err := c.Restore(ctx)
		require.NoError(t, err)
		assert.Equal(t, "abc", tok)
	})

	t.Run("not remembered", func(t *testing.T) {
		store := tokenstore.NewMemory()
		require.NoError(t, store.Set(ctx, "token", "abc"))
		require.NoError(t, store.Set(ctx, "rememberMe", "false"))
		c := newTestClient(t, "http://127.0.0.1:1", store, nil)

		_, err := c.Restore(ctx)
		require.ErrorIs(t, err, ErrNoSession)
		_, err = store.Get(ctx, "token")
		require.ErrorIs(t, err, tokenstore.ErrNotFound)
	})

	t.Run("empty store", func(t *testing.T) {
		c := newTestClient(t, "http://127.0.0.1:1", nil, nil)
		_, err := c.Restore(ctx)
		require.ErrorIs(t, err, ErrNoSession)
	})
}

func TestRedisBackedSessionSharedAcrossClients(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	srv := apitest.NewServer()
	defer srv.Close()
	srv.Accept("abc", "user-1")
	srv.NextRefreshTokens("xyz")

	ctx := context.Background()
	first := newTestClient(t, srv.URL, tokenstore.NewRedis(rdb, "sf", time.Hour), nil)
	require.NoError(t, first.SetToken(ctx, "abc"))
	srv.ExpireAll()
	require.NoError(t, first.Get(ctx, "/cart", nil))

	stored, err := mr.Get("sf:token")
	require.NoError(t, err)
	assert.Equal(t, "xyz", stored)

	second := newTestClient(t, srv.URL, tokenstore.NewRedis(rdb, "sf", time.Hour), nil)
	tok, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)
}

func TestSetTokenRejectsEmpty(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", nil, nil)
	require.Error(t, c.SetToken(context.Background(), ""))
}
