package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

const stderrTail = 512

type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// FFmpegTranscoder runs ffmpeg with the stream on stdin.
type FFmpegTranscoder struct {
	path    string
	bitrate string
	command commandFunc
}

func NewFFmpegTranscoder(path, bitrate string) *FFmpegTranscoder {
	if path == "" {
		path = "ffmpeg"
	}

	if bitrate == "" {
		bitrate = DefaultBitrate
	}

	return &FFmpegTranscoder{path: path, bitrate: bitrate, command: exec.CommandContext}
}

// BuildFFmpegArgs returns the arguments for a stdin to constant bitrate MP3 conversion.
func BuildFFmpegArgs(bitrate, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", "pipe:0",
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", bitrate,
		"-f", "mp3",
		outputPath,
	}
}

func (t *FFmpegTranscoder) Transcode(ctx context.Context, in io.Reader, outputPath string) error {
	var stderr bytes.Buffer

	cmd := t.command(ctx, t.path, BuildFFmpegArgs(t.bitrate, outputPath)...)
	cmd.Stdin = in
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := tail(stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg failed: %w: %s", err, msg)
		}

		return fmt.Errorf("ffmpeg failed: %w", err)
	}

	return nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		return s[len(s)-stderrTail:]
	}

	return s
}
