package media

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/italolelis/ytmusic_downloader/internal/telemetry"
)

const (
	StrategyStream = "stream"
	StrategyYTDLP  = "ytdlp"

	DefaultBitrate = "320k"
)

// Converter produces an MP3 at outputPath from a video URL. Running it twice with the
// same output path overwrites the previous file.
type Converter interface {
	Convert(ctx context.Context, videoURL, outputPath string) error
}

// Fetcher opens the audio-only stream of a video. size is zero when unknown.
type Fetcher interface {
	Fetch(ctx context.Context, videoURL string) (stream io.ReadCloser, size int64, err error)
}

// Transcoder turns an audio stream into a constant bitrate MP3 file.
type Transcoder interface {
	Transcode(ctx context.Context, in io.Reader, outputPath string) error
}

// Options configures the converter built by NewConverter.
type Options struct {
	FFmpegPath   string
	YTDLPPath    string
	AudioBitrate string
	// HTTPClient is used by the stream fetcher; nil means http.DefaultClient.
	HTTPClient *http.Client
	Telemetry  *telemetry.Telemetry
}

// NewConverter builds the converter for the given fetch strategy.
func NewConverter(strategy string, opts Options) (Converter, error) {
	if opts.AudioBitrate == "" {
		opts.AudioBitrate = DefaultBitrate
	}

	switch strategy {
	case StrategyStream, "":
		var (
			fetcher    Fetcher    = NewYouTubeFetcher(opts.HTTPClient)
			transcoder Transcoder = NewFFmpegTranscoder(opts.FFmpegPath, opts.AudioBitrate)
		)

		if opts.Telemetry.Enabled() {
			fetcher = NewInstrumentedFetcher(fetcher, opts.Telemetry)
			transcoder = NewInstrumentedTranscoder(transcoder, opts.Telemetry)
		}

		return NewStreamConverter(fetcher, transcoder), nil
	case StrategyYTDLP:
		return NewYTDLPConverter(opts.YTDLPPath, opts.AudioBitrate), nil
	default:
		return nil, fmt.Errorf("unsupported fetch strategy: %s", strategy)
	}
}
