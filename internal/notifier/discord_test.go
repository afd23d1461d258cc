package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordNotifier_Notify(t *testing.T) {
	var payload map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(srv.URL, srv.Client())

	require.NoError(t, n.Notify(context.Background(), "Mix: 3/4 tracks downloaded"))
	assert.Equal(t, "Mix: 3/4 tracks downloaded", payload["content"])
}

func TestDiscordNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordNotifier(srv.URL, nil).Notify(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestDiscordNotifier_NoWebhook(t *testing.T) {
	err := (&DiscordNotifier{}).Notify(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoWebhook)
}
