package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/ytmusic_downloader/internal/logctx"
	"github.com/italolelis/ytmusic_downloader/internal/media/progress"
	"github.com/italolelis/ytmusic_downloader/internal/track"
	"github.com/kkdai/youtube/v2"
)

const progressInterval = 1024 * 1024 // 1MB

var ErrNoAudioFormat = errors.New("no audio-only format available")

// YouTubeFetcher pulls the audio-only stream with the highest bitrate.
type YouTubeFetcher struct {
	client *youtube.Client
}

func NewYouTubeFetcher(httpClient *http.Client) *YouTubeFetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &YouTubeFetcher{client: &youtube.Client{HTTPClient: httpClient}}
}

func (f *YouTubeFetcher) Fetch(ctx context.Context, videoURL string) (io.ReadCloser, int64, error) {
	video, err := f.client.GetVideoContext(ctx, videoURL)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get video metadata: %w", err)
	}

	format := BestAudioFormat(video.Formats)
	if format == nil {
		return nil, 0, ErrNoAudioFormat
	}

	logctx.LoggerFromContext(ctx).Debug("selected audio format",
		"video_id", video.ID, "mime_type", format.MimeType, "bitrate", format.Bitrate)

	stream, size, err := f.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open audio stream: %w", err)
	}

	return stream, size, nil
}

// BestAudioFormat returns the audio-only format with the highest bitrate, or nil.
func BestAudioFormat(formats youtube.FormatList) *youtube.Format {
	var best *youtube.Format

	for i := range formats {
		f := &formats[i]
		if !strings.HasPrefix(f.MimeType, "audio/") {
			continue
		}

		if best == nil || f.Bitrate > best.Bitrate {
			best = f
		}
	}

	return best
}

// StreamConverter fetches the audio stream and pipes it through a Transcoder.
type StreamConverter struct {
	fetcher    Fetcher
	transcoder Transcoder
}

func NewStreamConverter(fetcher Fetcher, transcoder Transcoder) *StreamConverter {
	return &StreamConverter{fetcher: fetcher, transcoder: transcoder}
}

func (c *StreamConverter) Convert(ctx context.Context, videoURL, outputPath string) error {
	videoID := track.VideoIDFromLink(videoURL)
	logger := logctx.LoggerFromContext(ctx).With("video_id", videoID)

	stream, size, err := c.fetcher.Fetch(ctx, videoURL)
	if err != nil {
		return &track.FetchError{VideoID: videoID, Stage: "fetch", Err: err}
	}
	defer stream.Close()

	logger.Debug("fetching audio stream", "size", humanize.Bytes(uint64(max(size, 0))))

	pr := progress.NewReader(stream, size, progressInterval, func(read, total int64) {
		if total > 0 {
			logger.Debug("fetch progress",
				"downloaded", humanize.Bytes(uint64(read)),
				"total", humanize.Bytes(uint64(total)),
				"percent", humanize.FtoaWithDigits(float64(read)*100/float64(total), 2))
		} else {
			logger.Debug("fetch progress", "downloaded", humanize.Bytes(uint64(read)))
		}
	})

	if err := c.transcoder.Transcode(ctx, pr, outputPath); err != nil {
		return &track.FetchError{VideoID: videoID, Stage: "transcode", Err: err}
	}

	return nil
}
