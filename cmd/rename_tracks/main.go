package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/italolelis/ytmusic_downloader/internal/config"
	"github.com/italolelis/ytmusic_downloader/internal/logctx"
	"github.com/italolelis/ytmusic_downloader/internal/rename"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("ignoring env file", "err", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	dir := flag.String("dir", cfg.DownloadDir, "directory holding the tracks to rename")
	prefix := flag.String("prefix", rename.DefaultPrefix, "file name prefix to strip")
	flag.Parse()

	logger := slog.New(logctx.NewContextHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	ctx := logctx.WithLogger(context.Background(), logger)

	n, err := rename.StripPrefix(ctx, *dir, *prefix)
	if err != nil {
		logger.Error("rename failed", "err", err)
		os.Exit(1)
	}

	logger.Info("rename finished", "renamed", n, "dir", *dir)
}
