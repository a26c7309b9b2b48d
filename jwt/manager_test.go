package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func newHSManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "storefront",
	})
	require.NoError(t, err)
	return m
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{TTL: 0, SigningMethod: MethodHS256, PrivateKey: []byte("k")},
		{TTL: time.Minute, SigningMethod: MethodHS256},
		{TTL: time.Minute, SigningMethod: MethodEd25519},
		{TTL: time.Minute, SigningMethod: "rs256", PrivateKey: []byte("k")},
		{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: time.Hour},
	}
	for _, cfg := range cases {
		_, err := NewManager(cfg)
		assert.Error(t, err, "config %+v", cfg)
	}
}

func TestIssueVerifyEd25519(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "storefront",
		Audience:      "mobile",
		KeyID:         "k1",
	})
	require.NoError(t, err)

	tok, err := m.Issue("user-1", "a@b.c")
	require.NoError(t, err)

	claims, err := m.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "a@b.c", claims.Email)
	assert.NotEmpty(t, claims.ID)
}

func TestIssueProducesDistinctTokens(t *testing.T) {
	m := newHSManager(t)
	now := time.Now()
	a, err := m.IssueAt("u", "", now)
	require.NoError(t, err)
	b, err := m.IssueAt("u", "", now)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := newHSManager(t)
	tok, err := m.IssueAt("u", "", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = m.Verify(tok)
	require.ErrorIs(t, err, gjwt.ErrTokenExpired)
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	require.NoError(t, err)

	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	forged, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret"))
	require.NoError(t, err)

	_, err = m.Verify(forged)
	require.Error(t, err)
}

func TestInspectAndExpiresAt(t *testing.T) {
	m := newHSManager(t)
	now := time.Now().Truncate(time.Second)
	tok, err := m.IssueAt("u", "", now)
	require.NoError(t, err)

	claims, err := Inspect(tok)
	require.NoError(t, err)
	assert.Equal(t, "u", claims.Subject)

	exp, err := ExpiresAt(tok)
	require.NoError(t, err)
	assert.True(t, exp.Equal(now.Add(time.Minute)))

	_, err = ExpiresAt("opaque-token")
	require.Error(t, err)

	noExp, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.MapClaims{"sub": "u"}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = ExpiresAt(noExp)
	require.ErrorIs(t, err, ErrNoExpiry)
}
