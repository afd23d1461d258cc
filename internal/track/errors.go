package track

import "fmt"

// FetchError is returned when a single video could not be turned into an MP3.
// Network failures, converter exits and unavailable videos all end up here.
type FetchError struct {
	VideoID string // Video that failed, may be empty when the link could not be parsed
	Stage   string // "fetch" or "transcode"
	Err     error
}

func (e *FetchError) Error() string {
	if e.VideoID == "" {
		return fmt.Sprintf("failed to %s video: %v", e.Stage, e.Err)
	}

	return fmt.Sprintf("failed to %s video %s: %v", e.Stage, e.VideoID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ResolveError represents a failed call against the playlist metadata API.
type ResolveError struct {
	PlaylistID string
	Operation  string // "playlists.list" or "playlistItems.list"
	StatusCode int    // HTTP status code, 0 for non-HTTP errors
	Err        error
}

func (e *ResolveError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("failed to resolve playlist %s during %s (HTTP %d): %v", e.PlaylistID, e.Operation, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("failed to resolve playlist %s during %s: %v", e.PlaylistID, e.Operation, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// AuthError marks an operation that could not run because no valid token was available.
type AuthError struct {
	Operation string
	Err       error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed during %s", e.Operation)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
