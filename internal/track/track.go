package track

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Status is the state of a single work item inside a batch.
type Status string

const (
	StatusDownloading Status = "downloading"
	StatusDownloaded  Status = "downloaded"
	StatusError       Status = "error"
)

const (
	placeholder = '-'
	extension   = ".mp3"
)

// WorkItem is one video to be downloaded. Downloaded flips to true once the MP3 is on disk.
type WorkItem struct {
	Link       string `json:"link"`
	Title      string `json:"title"`
	VideoID    string `json:"videoId"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	Downloaded bool   `json:"downloaded"`
}

// ProgressEvent is pushed once per state transition of a work item.
type ProgressEvent struct {
	Index     int    `json:"index"`
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    Status `json:"status"`
	Remaining int    `json:"remaining"`
}

// SanitizeTitle replaces every character outside [a-zA-Z0-9] with '-'.
func SanitizeTitle(title string) string {
	if title == "" {
		return string(placeholder)
	}

	var b strings.Builder

	b.Grow(len(title))

	for _, r := range title {
		if isSafe(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(placeholder)
		}
	}

	return b.String()
}

func isSafe(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// FileName returns the on-disk name of the MP3 produced for title.
func FileName(title string) string {
	return SanitizeTitle(title) + extension
}

// VideoIDFromLink extracts the video id from youtube.com, music.youtube.com and youtu.be links.
func VideoIDFromLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}

	if strings.EqualFold(u.Hostname(), "youtu.be") {
		return strings.Trim(u.Path, "/")
	}

	return u.Query().Get("v")
}

// WatchURL returns the canonical watch link of a video.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(videoID)
}

// LoadWorkItems decodes a JSON list of {link, title} objects. Missing video ids are
// derived from the link.
func LoadWorkItems(r io.Reader) ([]*WorkItem, error) {
	var items []*WorkItem
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode work items: %w", err)
	}

	for i, item := range items {
		if item == nil || item.Link == "" {
			return nil, fmt.Errorf("work item %d has no link", i)
		}

		if item.VideoID == "" {
			item.VideoID = VideoIDFromLink(item.Link)
		}
	}

	return items, nil
}
