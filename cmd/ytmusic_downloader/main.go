package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/italolelis/ytmusic_downloader/internal/auth"
	"github.com/italolelis/ytmusic_downloader/internal/broadcast"
	"github.com/italolelis/ytmusic_downloader/internal/cleanup"
	"github.com/italolelis/ytmusic_downloader/internal/config"
	"github.com/italolelis/ytmusic_downloader/internal/http/rest"
	"github.com/italolelis/ytmusic_downloader/internal/logctx"
	"github.com/italolelis/ytmusic_downloader/internal/media"
	"github.com/italolelis/ytmusic_downloader/internal/notifier"
	"github.com/italolelis/ytmusic_downloader/internal/playlist"
	"github.com/italolelis/ytmusic_downloader/internal/queue"
	"github.com/italolelis/ytmusic_downloader/internal/storage"
	"github.com/italolelis/ytmusic_downloader/internal/storage/sqlite"
	"github.com/italolelis/ytmusic_downloader/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/youtube/v3"
)

const (
	version    = "1.0.0"
	apiTimeout = 30 * time.Second
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

	handler := logctx.NewContextHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("ytmusic downloader starting...", "log_level", cfg.LogLevel, "version", version)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		logger.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	history := sqlite.NewInstrumentedHistoryRepository(database, tel)

	// =========================================================================
	// Start Auth
	oauthClient, err := config.LoadOAuthClient(cfg.OAuthConfigPath)
	if err != nil {
		return err
	}

	apiClient := tel.HTTPClient(apiTimeout)

	tokens := auth.NewManager(
		auth.NewGoogleConfig(oauthClient, youtube.YoutubeReadonlyScope),
		auth.NewFileStore(cfg.TokenPath),
		apiClient,
		tel,
	)

	state, _ := tokens.State(ctx)
	logger.Info("token state", "state", state.String(), "token_path", cfg.TokenPath)

	// =========================================================================
	// Start Downloader
	converter, err := media.NewConverter(cfg.FetchStrategy, media.Options{
		FFmpegPath:   cfg.FFmpegPath,
		YTDLPPath:    cfg.YTDLPPath,
		AudioBitrate: cfg.AudioBitrate,
		// Streams can run for minutes; no client timeout.
		HTTPClient: tel.HTTPClient(0),
		Telemetry:  tel,
	})
	if err != nil {
		return err
	}

	progress := broadcast.NewBroadcaster(tel)
	processor := queue.NewProcessor(cfg.DownloadDir, converter, progress, history, tel, cfg.KeepPartialOutput)

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, cfg, tel, rest.Dependencies{
		Auth:      tokens,
		Resolver:  playlist.NewResolver(tokens, apiClient, tel),
		Processor: processor,
		Progress:  progress,
		History:   history,
		Notifier:  buildNotifier(cfg, apiClient),
		Metrics:   tel.Handler(),
		Telemetry: tel,
	})

	logger.Info("waiting for playlists...",
		"download_dir", cfg.DownloadDir,
		"fetch_strategy", cfg.FetchStrategy,
		"retention", cfg.KeepDownloadedFor.String(),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	// =========================================================================
	// Start Cleanup
	if cfg.KeepDownloadedFor > 0 {
		g.Go(func() error {
			runCleanup(gctx, history, cfg)

			return nil
		})
	}

	return g.Wait()
}

func buildNotifier(cfg *config.Config, client *http.Client) notifier.Notifier {
	if cfg.DiscordWebhookURL == "" {
		return nil
	}

	return notifier.NewDiscordNotifier(cfg.DiscordWebhookURL, client)
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, deps rest.Dependencies) *http.Server {
	var handler http.Handler = rest.NewHandler(ctx, deps).Routes()

	if tel.Enabled() {
		handler = otelhttp.NewHandler(handler, "http.server")
	}

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      handler,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func runCleanup(ctx context.Context, history storage.HistoryReadRepository, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup goroutine shutting down")

			return
		case <-ticker.C:
			records, err := history.ListDownloaded(ctx)
			if err != nil {
				logger.Error("failed to get downloads for cleanup", "err", err)

				continue
			}

			if err := cleanup.DeleteExpiredFiles(ctx, records, cfg.DownloadDir, cfg.KeepDownloadedFor, time.Now()); err != nil {
				logger.Error("failed to delete expired files", "err", err)
			}
		}
	}
}
