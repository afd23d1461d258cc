package playlist

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/italolelis/ytmusic_downloader/internal/logctx"
	"github.com/italolelis/ytmusic_downloader/internal/telemetry"
	"github.com/italolelis/ytmusic_downloader/internal/track"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// MaxItems is the number of entries fetched per playlist. Later pages are not requested.
const MaxItems = 50

var (
	ErrMissingPlaylistID = errors.New("playlist url has no list parameter")
	ErrPlaylistNotFound  = errors.New("playlist not found")
)

var parts = []string{"snippet", "contentDetails"}

// Playlist is a resolved playlist with its items in playlist order.
type Playlist struct {
	ID        string
	Title     string
	ItemCount int64
	Items     []*track.WorkItem
}

// TokenProvider hands out a valid access token.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Resolver expands playlist URLs through the YouTube Data API.
type Resolver struct {
	tokens     TokenProvider
	httpClient *http.Client
	telemetry  *telemetry.Telemetry
	endpoint   string
}

// NewResolver creates a resolver. httpClient is the base transport client; nil means the default client.
func NewResolver(tokens TokenProvider, httpClient *http.Client, tel *telemetry.Telemetry) *Resolver {
	return &Resolver{tokens: tokens, httpClient: httpClient, telemetry: tel}
}

// ExtractPlaylistID returns the list query parameter of a playlist URL.
func ExtractPlaylistID(playlistURL string) (string, error) {
	u, err := url.Parse(playlistURL)
	if err != nil {
		return "", fmt.Errorf("invalid playlist url: %w", err)
	}

	id := u.Query().Get("list")
	if id == "" {
		return "", ErrMissingPlaylistID
	}

	return id, nil
}

// Resolve fetches the playlist metadata and its first MaxItems entries. Either call
// failing fails the whole resolution.
func (r *Resolver) Resolve(ctx context.Context, playlistURL string) (*Playlist, error) {
	id, err := ExtractPlaylistID(playlistURL)
	if err != nil {
		return nil, err
	}

	accessToken, err := r.tokens.AccessToken(ctx)
	if err != nil {
		return nil, &track.AuthError{Operation: "resolve_playlist", Err: err}
	}

	svc, err := r.service(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}

	var result *Playlist

	err = r.telemetry.InstrumentPlaylistResolution(ctx, func(ctx context.Context) error {
		result, err = fetch(ctx, svc, id)

		return err
	})
	if err != nil {
		return nil, err
	}

	logctx.LoggerFromContext(ctx).Info("playlist resolved",
		"playlist_id", id, "title", result.Title, "item_count", result.ItemCount, "items", len(result.Items))

	return result, nil
}

func fetch(ctx context.Context, svc *youtube.Service, id string) (*Playlist, error) {
	meta, err := svc.Playlists.List(parts).Id(id).Context(ctx).Do()
	if err != nil {
		return nil, resolveError(id, "playlists.list", err)
	}

	if len(meta.Items) == 0 {
		return nil, &track.ResolveError{PlaylistID: id, Operation: "playlists.list", StatusCode: http.StatusNotFound, Err: ErrPlaylistNotFound}
	}

	p := &Playlist{ID: id}

	if s := meta.Items[0].Snippet; s != nil {
		p.Title = s.Title
	}

	if cd := meta.Items[0].ContentDetails; cd != nil {
		p.ItemCount = cd.ItemCount
	}

	resp, err := svc.PlaylistItems.List(parts).PlaylistId(id).MaxResults(MaxItems).Context(ctx).Do()
	if err != nil {
		return nil, resolveError(id, "playlistItems.list", err)
	}

	for _, item := range resp.Items {
		if wi := workItem(item); wi != nil {
			p.Items = append(p.Items, wi)
		}
	}

	return p, nil
}

func workItem(item *youtube.PlaylistItem) *track.WorkItem {
	if item == nil || item.Snippet == nil {
		return nil
	}

	videoID := ""
	if item.Snippet.ResourceId != nil {
		videoID = item.Snippet.ResourceId.VideoId
	}

	if videoID == "" && item.ContentDetails != nil {
		videoID = item.ContentDetails.VideoId
	}

	if videoID == "" {
		return nil
	}

	wi := &track.WorkItem{
		Link:    track.WatchURL(videoID),
		Title:   item.Snippet.Title,
		VideoID: videoID,
	}

	if th := item.Snippet.Thumbnails; th != nil && th.Default != nil {
		wi.Thumbnail = th.Default.Url
	}

	return wi
}

func resolveError(id, operation string, err error) error {
	resolveErr := &track.ResolveError{PlaylistID: id, Operation: operation, Err: err}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		resolveErr.StatusCode = apiErr.Code
	}

	return resolveErr
}

func (r *Resolver) service(ctx context.Context, accessToken string) (*youtube.Service, error) {
	base := r.httpClient
	if base == nil {
		base = http.DefaultClient
	}

	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, base),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
	)

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if r.endpoint != "" {
		opts = append(opts, option.WithEndpoint(r.endpoint))
	}

	return youtube.NewService(ctx, opts...)
}
