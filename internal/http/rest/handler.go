package rest

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"mime"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/italolelis/ytmusic_downloader/internal/logctx"
	"github.com/italolelis/ytmusic_downloader/internal/notifier"
	"github.com/italolelis/ytmusic_downloader/internal/playlist"
	"github.com/italolelis/ytmusic_downloader/internal/queue"
	"github.com/italolelis/ytmusic_downloader/internal/storage"
	"github.com/italolelis/ytmusic_downloader/internal/telemetry"
	"github.com/italolelis/ytmusic_downloader/internal/track"
)

const (
	stateCookie       = "oauth_state"
	stateCookieMaxAge = 10 * time.Minute
	callbackPath      = "/auth/callback/google"
	defaultHistory    = 100
	notifyTimeout     = 10 * time.Second
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Authenticator drives the OAuth consent flow and reports whether a usable token exists.
type Authenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) error
	Authorized(ctx context.Context) bool
}

type PlaylistResolver interface {
	Resolve(ctx context.Context, playlistURL string) (*playlist.Playlist, error)
}

type BatchProcessor interface {
	Process(ctx context.Context, batch queue.Batch) (queue.Summary, error)
}

// Dependencies are the collaborators of the web front end. History, Notifier, Metrics and
// Telemetry are optional.
type Dependencies struct {
	Auth      Authenticator
	Resolver  PlaylistResolver
	Processor BatchProcessor
	Progress  http.Handler
	History   storage.HistoryReadRepository
	Notifier  notifier.Notifier
	Metrics   http.Handler
	Telemetry *telemetry.Telemetry
}

// Handler serves the browser UI. Only one batch runs at a time.
type Handler struct {
	deps Dependencies

	// baseCtx outlives requests; a batch stops when it is cancelled (server shutdown).
	baseCtx context.Context
	busy    atomic.Bool
}

func NewHandler(baseCtx context.Context, deps Dependencies) *Handler {
	return &Handler{baseCtx: baseCtx, deps: deps}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(h.deps.Telemetry).Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/", h.HandleIndex)
	r.Get("/login", h.HandleLogin)
	r.Get(callbackPath, h.HandleCallback)
	r.Post("/download", h.HandleDownload)
	r.Get("/history", h.HandleHistory)
	r.Get("/healthz", h.HandleHealth)

	if h.deps.Progress != nil {
		r.Method(http.MethodGet, "/sse", h.deps.Progress)
	}

	if h.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.deps.Metrics)
	}

	return r
}

// HandleIndex renders the playlist form, or sends the user to the consent flow when no
// usable token is stored.
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Auth.Authorized(r.Context()) {
		http.Redirect(w, r, "/login", http.StatusFound)

		return
	}

	h.render(w, r, "index.html", struct{ Busy bool }{Busy: h.busy.Load()})
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     callbackPath,
		MaxAge:   int(stateCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.deps.Auth.AuthCodeURL(state), http.StatusFound)
}

func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		logger.Warn("consent denied", "error", e)
		http.Error(w, "authorization was not granted", http.StatusBadRequest)

		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != q.Get("state") {
		logger.Warn("oauth state mismatch")
		http.Error(w, "invalid oauth state", http.StatusBadRequest)

		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)

		return
	}

	if err := h.deps.Auth.Exchange(ctx, code); err != nil {
		logger.Error("failed to exchange authorization code", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)

		return
	}

	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: callbackPath, MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusFound)
}

type downloadRequest struct {
	PlaylistURL string `json:"playlistUrl"`
}

// HandleDownload resolves the playlist, streams the track list page and then runs the batch
// before completing the response. Progress reaches the browser through /sse.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	playlistURL, err := parseDownloadRequest(r)
	if err != nil || playlistURL == "" {
		http.Error(w, "playlistUrl is required", http.StatusBadRequest)

		return
	}

	if !h.busy.CompareAndSwap(false, true) {
		http.Error(w, "a playlist is already downloading", http.StatusConflict)

		return
	}
	defer h.busy.Store(false)

	p, err := h.deps.Resolver.Resolve(ctx, playlistURL)
	if err != nil {
		var authErr *track.AuthError

		switch {
		case errors.As(err, &authErr):
			logger.Info("no usable token, redirecting to login", "err", err)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		case errors.Is(err, playlist.ErrMissingPlaylistID):
			http.Error(w, "url is not a playlist", http.StatusBadRequest)
		default:
			logger.Error("failed to resolve playlist", "url", playlistURL, "err", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}

		return
	}

	h.render(w, r, "tracks.html", p)

	if err := http.NewResponseController(w).Flush(); err != nil {
		logger.Debug("response flush unsupported", "err", err)
	}

	// The batch keeps going if the browser goes away, but not past server shutdown.
	batchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	stop := context.AfterFunc(h.baseCtx, cancel)
	defer stop()

	summary, err := h.deps.Processor.Process(batchCtx, queue.Batch{
		Name:  p.Title,
		Dir:   track.SanitizeTitle(p.Title),
		Items: p.Items,
	})
	if err != nil {
		logger.Error("batch did not complete", "playlist_id", p.ID, "err", err)
	}

	h.notify(batchCtx, summary)
}

func parseDownloadRequest(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/json" {
		var req downloadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", err
		}

		return req.PlaylistURL, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", err
	}

	return r.PostForm.Get("playlistUrl"), nil
}

func (h *Handler) notify(ctx context.Context, summary queue.Summary) {
	if h.deps.Notifier == nil {
		return
	}

	// A batch cut short by shutdown still gets its summary out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := h.deps.Notifier.Notify(ctx, summary.String()); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to send notification", "batch_id", summary.BatchID, "err", err)
	}
}

// HandleHistory returns the most recent download attempts, newest first.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.deps.History == nil {
		writeJSON(ctx, w, http.StatusOK, []storage.DownloadRecord{})

		return
	}

	limit := defaultHistory

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)

			return
		}

		limit = n
	}

	records, err := h.deps.History.List(ctx, limit)
	if err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to list history", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)

		return
	}

	if records == nil {
		records = []storage.DownloadRecord{}
	}

	writeJSON(ctx, w, http.StatusOK, records)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{"status": "ok", "busy": h.busy.Load()})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to render template", "template", name, "err", err)
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to encode response", "err", err)
	}
}
