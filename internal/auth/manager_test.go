package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/italolelis/ytmusic_downloader/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type tokenServer struct {
	*httptest.Server

	calls    atomic.Int32
	lastForm url.Values
	status   int
	response map[string]any
}

func newTokenServer(t *testing.T, status int, response map[string]any) *tokenServer {
	t.Helper()

	ts := &tokenServer{status: status, response: response}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)

		assert.NoError(t, r.ParseForm())
		ts.lastForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(ts.status)
		assert.NoError(t, json.NewEncoder(w).Encode(ts.response))
	}))
	t.Cleanup(ts.Close)

	return ts
}

func newTestManager(t *testing.T, srv *tokenServer) (*Manager, *FileStore) {
	t.Helper()

	store := NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))

	cfg := &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:3000/auth/callback/google",
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.example.com/auth",
			TokenURL:  "http://invalid.localhost/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	var client *http.Client
	if srv != nil {
		cfg.Endpoint.TokenURL = srv.URL + "/token"
		client = srv.Client()
	}

	return NewManager(cfg, store, client, nil), store
}

func TestManager_NoToken(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	state, rec := m.State(ctx)
	assert.Equal(t, StateNoToken, state)
	assert.Nil(t, rec)
	assert.False(t, m.Valid(ctx))

	_, err := m.AccessToken(ctx)
	assert.ErrorIs(t, err, ErrNoToken)
	assert.False(t, m.Authorized(ctx))
}

func TestManager_ValidityUsesSafetyMargin(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expiry time.Time
		want   State
	}{
		{"well ahead", now.Add(time.Hour), StateValid},
		{"just outside margin", now.Add(SafetyMargin + time.Second), StateValid},
		{"exactly at margin", now.Add(SafetyMargin), StateExpiringOrExpired},
		{"inside margin", now.Add(9 * time.Minute), StateExpiringOrExpired},
		{"expired", now.Add(-time.Hour), StateExpiringOrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store := newTestManager(t, nil)
			m.now = func() time.Time { return now }

			require.NoError(t, store.Save(TokenRecord{AccessToken: "a", RefreshToken: "r", ExpiryDate: tt.expiry.UnixMilli()}))

			state, _ := m.State(context.Background())
			assert.Equal(t, tt.want, state)
			assert.Equal(t, tt.want == StateValid, m.Valid(context.Background()))
		})
	}
}

func TestManager_AccessToken_ValidDoesNotRefresh(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, map[string]any{"access_token": "unexpected"})
	m, store := newTestManager(t, srv)

	require.NoError(t, store.Save(TokenRecord{AccessToken: "current", RefreshToken: "r", ExpiryDate: time.Now().Add(time.Hour).UnixMilli()}))

	tok, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "current", tok)
	assert.Zero(t, srv.calls.Load())
}

func TestManager_ExpiredWithoutRefreshToken(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, map[string]any{"access_token": "unexpected"})
	m, store := newTestManager(t, srv)

	require.NoError(t, store.Save(TokenRecord{AccessToken: "old", ExpiryDate: time.Now().Add(-time.Minute).UnixMilli()}))

	assert.False(t, m.Valid(context.Background()))

	_, err := m.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.Zero(t, srv.calls.Load(), "no refresh without a refresh token")
}

func TestManager_RefreshPreservesRefreshToken(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, map[string]any{
		"access_token": "fresh",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"scope":        "https://www.googleapis.com/auth/youtube.readonly",
	})
	m, store := newTestManager(t, srv)

	require.NoError(t, store.Save(TokenRecord{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiryDate:   time.Now().Add(5 * time.Minute).UnixMilli(),
		IDToken:      "old-id-token",
	}))

	before := time.Now()

	tok, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
	assert.EqualValues(t, 1, srv.calls.Load())

	assert.Equal(t, "refresh_token", srv.lastForm.Get("grant_type"))
	assert.Equal(t, "refresh-1", srv.lastForm.Get("refresh_token"))

	saved, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, "fresh", saved.AccessToken)
	assert.Equal(t, "refresh-1", saved.RefreshToken)
	assert.Equal(t, "Bearer", saved.TokenType)
	assert.Equal(t, "https://www.googleapis.com/auth/youtube.readonly", saved.Scope)
	assert.Empty(t, saved.IDToken, "fields other than the refresh token are overwritten")
	assert.WithinDuration(t, before.Add(time.Hour), saved.Expiry(), 5*time.Second)

	assert.True(t, m.Valid(context.Background()))
}

func TestManager_RefreshReplacesRotatedRefreshToken(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, map[string]any{
		"access_token":  "fresh",
		"refresh_token": "refresh-2",
		"expires_in":    3600,
	})
	m, store := newTestManager(t, srv)

	require.NoError(t, store.Save(TokenRecord{AccessToken: "stale", RefreshToken: "refresh-1", ExpiryDate: 1}))

	_, err := m.AccessToken(context.Background())
	require.NoError(t, err)

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", saved.RefreshToken)
}

func TestManager_RefreshFailure(t *testing.T) {
	srv := newTokenServer(t, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
	m, store := newTestManager(t, srv)

	original := TokenRecord{AccessToken: "stale", RefreshToken: "revoked", ExpiryDate: time.Now().Add(-time.Hour).UnixMilli()}
	require.NoError(t, store.Save(original))

	_, err := m.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.False(t, m.Authorized(context.Background()))

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, original, *saved)
}

func TestManager_Exchange(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, map[string]any{
		"access_token":  "first",
		"refresh_token": "refresh-1",
		"expires_in":    3600,
		"token_type":    "Bearer",
	})
	m, store := newTestManager(t, srv)

	require.NoError(t, m.Exchange(context.Background(), "auth-code"))

	assert.Equal(t, "authorization_code", srv.lastForm.Get("grant_type"))
	assert.Equal(t, "auth-code", srv.lastForm.Get("code"))

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "first", saved.AccessToken)
	assert.Equal(t, "refresh-1", saved.RefreshToken)
	assert.True(t, m.Valid(context.Background()))
}

func TestManager_ExchangeFailure(t *testing.T) {
	srv := newTokenServer(t, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
	m, store := newTestManager(t, srv)

	assert.Error(t, m.Exchange(context.Background(), "bad-code"))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestManager_CorruptTokenFileIsUnauthenticated(t *testing.T) {
	m, store := newTestManager(t, nil)
	require.NoError(t, os.WriteFile(store.path, []byte("{not json"), 0o600))

	state, _ := m.State(context.Background())
	assert.Equal(t, StateNoToken, state)
	assert.False(t, m.Authorized(context.Background()))
}

func TestManager_AuthCodeURL(t *testing.T) {
	m, _ := newTestManager(t, nil)

	u, err := url.Parse(m.AuthCodeURL("state-123"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "http://localhost:3000/auth/callback/google", q.Get("redirect_uri"))
}

func TestManager_TokenSource(t *testing.T) {
	m, store := newTestManager(t, nil)
	require.NoError(t, store.Save(TokenRecord{AccessToken: "abc", ExpiryDate: time.Now().Add(time.Hour).UnixMilli()}))

	tok, err := m.TokenSource(context.Background()).Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
}

func TestNewGoogleConfig(t *testing.T) {
	cfg := NewGoogleConfig(&config.OAuthClient{ClientID: "id", ClientSecret: "s", RedirectURI: "http://x"}, "scope-a")

	assert.Equal(t, "id", cfg.ClientID)
	assert.Equal(t, "http://x", cfg.RedirectURL)
	assert.Equal(t, []string{"scope-a"}, cfg.Scopes)
	assert.Contains(t, cfg.Endpoint.TokenURL, "google")
}

func TestTokenRecord_Merge(t *testing.T) {
	prev := TokenRecord{AccessToken: "a1", RefreshToken: "r1", ExpiryDate: 10, Scope: "s1"}

	merged := prev.Merge(TokenRecord{AccessToken: "a2", ExpiryDate: 20})
	assert.Equal(t, TokenRecord{AccessToken: "a2", RefreshToken: "r1", ExpiryDate: 20}, merged)

	merged = prev.Merge(TokenRecord{AccessToken: "a3", RefreshToken: "r2", ExpiryDate: 30})
	assert.Equal(t, "r2", merged.RefreshToken)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "no_token", StateNoToken.String())
	assert.Equal(t, "valid", StateValid.String())
	assert.Equal(t, "expiring_or_expired", StateExpiringOrExpired.String())
}
