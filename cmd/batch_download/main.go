package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/italolelis/ytmusic_downloader/internal/config"
	"github.com/italolelis/ytmusic_downloader/internal/logctx"
	"github.com/italolelis/ytmusic_downloader/internal/media"
	"github.com/italolelis/ytmusic_downloader/internal/queue"
	"github.com/italolelis/ytmusic_downloader/internal/track"
)

func main() {
	listPath := flag.String("list", "list.json", "JSON file with the tracks to download: [{\"link\": ..., \"title\": ...}]")
	outDir := flag.String("out", "output", "directory the MP3 files are written to")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("ignoring env file", "err", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewContextHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(logctx.WithLogger(ctx, logger), cfg, *listPath, *outDir); err != nil {
		logger.Error("batch failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, listPath, outDir string) error {
	logger := logctx.LoggerFromContext(ctx)

	f, err := os.Open(listPath)
	if err != nil {
		return fmt.Errorf("failed to open track list: %w", err)
	}
	defer f.Close()

	items, err := track.LoadWorkItems(f)
	if err != nil {
		return err
	}

	converter, err := media.NewConverter(cfg.FetchStrategy, media.Options{
		FFmpegPath:   cfg.FFmpegPath,
		YTDLPPath:    cfg.YTDLPPath,
		AudioBitrate: cfg.AudioBitrate,
	})
	if err != nil {
		return err
	}

	reporter := queue.ReporterFunc(func(ctx context.Context, ev track.ProgressEvent) {
		if ev.Status == track.StatusDownloading {
			return
		}

		logctx.LoggerFromContext(ctx).Info(progressMessage(ev), "video_id", ev.ID, "title", ev.Title)
	})

	processor := queue.NewProcessor(outDir, converter, reporter, nil, nil, cfg.KeepPartialOutput)

	name := strings.TrimSuffix(filepath.Base(listPath), filepath.Ext(listPath))

	summary, err := processor.Process(ctx, queue.Batch{Name: name, Items: items})
	logger.Info(summary.String())

	return err
}

// progressMessage numbers tracks from 1 the way the list file reads.
func progressMessage(ev track.ProgressEvent) string {
	return fmt.Sprintf("%d %s, %d remaining", ev.Index+1, ev.Status, ev.Remaining)
}
