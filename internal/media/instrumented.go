package media

import (
	"context"
	"io"

	"github.com/italolelis/ytmusic_downloader/internal/telemetry"
)

const component = "media"

// InstrumentedFetcher wraps a Fetcher with a span per fetch.
type InstrumentedFetcher struct {
	fetcher   Fetcher
	telemetry *telemetry.Telemetry
}

func NewInstrumentedFetcher(fetcher Fetcher, tel *telemetry.Telemetry) *InstrumentedFetcher {
	return &InstrumentedFetcher{fetcher: fetcher, telemetry: tel}
}

// Fetch opens the stream inside a span. Reading the stream happens outside of it.
func (f *InstrumentedFetcher) Fetch(ctx context.Context, videoURL string) (io.ReadCloser, int64, error) {
	var (
		stream io.ReadCloser
		size   int64
	)

	err := f.telemetry.InstrumentOperation(ctx, "fetch_audio", component, func(ctx context.Context) error {
		var err error

		stream, size, err = f.fetcher.Fetch(ctx, videoURL)

		return err
	})
	if err != nil {
		return nil, 0, err
	}

	return stream, size, nil
}

// InstrumentedTranscoder wraps a Transcoder with a span per transcode.
type InstrumentedTranscoder struct {
	transcoder Transcoder
	telemetry  *telemetry.Telemetry
}

func NewInstrumentedTranscoder(transcoder Transcoder, tel *telemetry.Telemetry) *InstrumentedTranscoder {
	return &InstrumentedTranscoder{transcoder: transcoder, telemetry: tel}
}

func (t *InstrumentedTranscoder) Transcode(ctx context.Context, in io.Reader, outputPath string) error {
	return t.telemetry.InstrumentOperation(ctx, "transcode_mp3", component, func(ctx context.Context) error {
		return t.transcoder.Transcode(ctx, in, outputPath)
	})
}
