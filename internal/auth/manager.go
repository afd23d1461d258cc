package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/italolelis/ytmusic_downloader/internal/config"
	"github.com/italolelis/ytmusic_downloader/internal/logctx"
	"github.com/italolelis/ytmusic_downloader/internal/telemetry"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// SafetyMargin is how long before expiry a token stops being considered valid.
const SafetyMargin = 10 * time.Minute

// ErrRefreshFailed is returned when an expiring token could not be refreshed.
// Callers treat it the same as having no token.
var ErrRefreshFailed = errors.New("token refresh failed")

type State int

const (
	StateNoToken State = iota
	StateValid
	StateExpiringOrExpired
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateExpiringOrExpired:
		return "expiring_or_expired"
	default:
		return "no_token"
	}
}

// NewGoogleConfig builds the OAuth2 config for the Google consent flow.
func NewGoogleConfig(client *config.OAuthClient, scopes ...string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		RedirectURL:  client.RedirectURI,
		Endpoint:     google.Endpoint,
		Scopes:       scopes,
	}
}

// Manager owns the persisted token. It alone decides whether the token is valid and
// when to refresh it.
type Manager struct {
	oauth      *oauth2.Config
	store      Store
	httpClient *http.Client
	telemetry  *telemetry.Telemetry
	now        func() time.Time

	mu sync.Mutex
}

// NewManager creates a manager. httpClient is used for the token endpoint; nil means the default client.
func NewManager(oauth *oauth2.Config, store Store, httpClient *http.Client, tel *telemetry.Telemetry) *Manager {
	return &Manager{
		oauth:      oauth,
		store:      store,
		httpClient: httpClient,
		telemetry:  tel,
		now:        time.Now,
	}
}

// AuthCodeURL returns the consent page URL. Offline access with a forced prompt makes
// Google issue a refresh token every time.
func (m *Manager) AuthCodeURL(state string) string {
	return m.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token set and persists it.
func (m *Manager) Exchange(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, err := m.oauth.Exchange(m.clientContext(ctx), code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	next := recordFromOAuth2(tok)

	if prev, err := m.store.Load(); err == nil {
		next = prev.Merge(next)
	}

	if err := m.store.Save(next); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}

	logctx.LoggerFromContext(ctx).Info("oauth token stored", "expires_at", next.Expiry())

	return nil
}

// State inspects the persisted token without refreshing it. Read errors other than a
// missing file are logged and reported as StateNoToken.
func (m *Manager) State(ctx context.Context) (State, *TokenRecord) {
	rec, err := m.store.Load()
	if err != nil {
		if !errors.Is(err, ErrNoToken) {
			logctx.LoggerFromContext(ctx).Error("failed to load token", "err", err)
		}

		return StateNoToken, nil
	}

	if rec.Expiry().Sub(m.now()) > SafetyMargin {
		return StateValid, rec
	}

	return StateExpiringOrExpired, rec
}

// Valid reports whether a token exists and expires more than SafetyMargin from now.
func (m *Manager) Valid(ctx context.Context) bool {
	state, _ := m.State(ctx)

	return state == StateValid
}

// AccessToken returns a valid access token, refreshing it first when it is within the
// safety margin and a refresh token is available.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, rec := m.State(ctx)

	switch state {
	case StateValid:
		return rec.AccessToken, nil
	case StateNoToken:
		return "", ErrNoToken
	}

	if rec.RefreshToken == "" {
		return "", fmt.Errorf("%w: no refresh token", ErrRefreshFailed)
	}

	next, err := m.refresh(ctx, rec)
	if err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to refresh token", "err", err)

		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	return next.AccessToken, nil
}

// Authorized reports whether a usable token is available, refreshing if needed.
func (m *Manager) Authorized(ctx context.Context) bool {
	_, err := m.AccessToken(ctx)

	return err == nil
}

// TokenSource adapts the manager to oauth2.TokenSource.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSourceFunc(func() (*oauth2.Token, error) {
		accessToken, err := m.AccessToken(ctx)
		if err != nil {
			return nil, err
		}

		return &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}, nil
	})
}

func (m *Manager) refresh(ctx context.Context, rec *TokenRecord) (TokenRecord, error) {
	var next TokenRecord

	err := m.telemetry.InstrumentTokenRefresh(ctx, func(ctx context.Context) error {
		// Expiry is left out so the source always hits the token endpoint.
		src := m.oauth.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: rec.RefreshToken})

		tok, err := src.Token()
		if err != nil {
			return err
		}

		next = rec.Merge(recordFromOAuth2(tok))

		return m.store.Save(next)
	})
	if err != nil {
		return TokenRecord{}, err
	}

	logctx.LoggerFromContext(ctx).Info("oauth token refreshed", "expires_at", next.Expiry())

	return next, nil
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}

	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) {
	return f()
}
