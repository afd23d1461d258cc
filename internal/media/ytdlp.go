package media

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/ytmusic_downloader/internal/logctx"
	"github.com/italolelis/ytmusic_downloader/internal/track"
	"github.com/lrstanley/go-ytdlp"
)

// YTDLPConverter delegates fetch, extraction and transcoding to a single yt-dlp run.
type YTDLPConverter struct {
	path    string
	bitrate string
}

func NewYTDLPConverter(path, bitrate string) *YTDLPConverter {
	if path == "" {
		path = "yt-dlp"
	}

	if bitrate == "" {
		bitrate = DefaultBitrate
	}

	return &YTDLPConverter{path: path, bitrate: bitrate}
}

// OutputTemplate turns "dir/name.mp3" into the "dir/name.%(ext)s" template yt-dlp expects.
func OutputTemplate(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".%(ext)s"
}

func (c *YTDLPConverter) Convert(ctx context.Context, videoURL, outputPath string) error {
	videoID := track.VideoIDFromLink(videoURL)
	logger := logctx.LoggerFromContext(ctx).With("video_id", videoID)

	dl := ytdlp.New().
		SetExecutable(c.path).
		ExtractAudio().
		AudioFormat("mp3").
		AudioQuality(c.bitrate).
		NoPlaylist().
		ForceOverwrites().
		Output(OutputTemplate(outputPath))

	dl.ProgressFunc(time.Second, func(update ytdlp.ProgressUpdate) {
		logger.Debug("fetch progress",
			"downloaded", humanize.Bytes(uint64(max(update.DownloadedBytes, 0))),
			"total", humanize.Bytes(uint64(max(update.TotalBytes, 0))))
	})

	if _, err := dl.Run(ctx, videoURL); err != nil {
		return &track.FetchError{VideoID: videoID, Stage: "fetch", Err: err}
	}

	return nil
}
