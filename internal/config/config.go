package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	OAuthConfigPath string `envconfig:"OAUTH_CONFIG_PATH" default:"credentials.json"`
	TokenPath       string `envconfig:"TOKEN_PATH" default:"tokens.json"`

	DownloadDir       string        `envconfig:"DOWNLOAD_DIR" default:"downloads"`
	FetchStrategy     string        `envconfig:"FETCH_STRATEGY" default:"stream"`
	FFmpegPath        string        `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	YTDLPPath         string        `envconfig:"YTDLP_PATH" default:"yt-dlp"`
	AudioBitrate      string        `envconfig:"AUDIO_BITRATE" default:"320k"`
	KeepPartialOutput bool          `envconfig:"KEEP_PARTIAL_OUTPUT" default:"false"`
	KeepDownloadedFor time.Duration `envconfig:"KEEP_DOWNLOADED_FOR" default:"0s"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h"`

	DBPath            string `envconfig:"DB_PATH" default:"downloads.db"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`
	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"false"`
		ServiceName  string `split_words:"true" default:"ytmusic_downloader"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress  string        `split_words:"true" default:"0.0.0.0:3000"`
		ReadTimeout  time.Duration `split_words:"true" default:"30s"`
		WriteTimeout time.Duration `split_words:"true" default:"0s"`
		IdleTimeout  time.Duration `split_words:"true" default:"60s"`
		// A batch runs inside the POST /download request, so shutdown waits for it.
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadDotEnv loads the given env files (".env" when none are given) into the process
// environment. A missing file is not an error.
func LoadDotEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading env file: %w", err)
	}

	return nil
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OAuthClient holds the OAuth client registration used for the Google consent flow.
type OAuthClient struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`
}

// consoleClient is the layout of the file downloaded from the Google Cloud console.
type consoleClient struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RedirectURIs []string `json:"redirect_uris"`
}

type oauthClientFile struct {
	OAuthClient

	Web       *consoleClient `json:"web"`
	Installed *consoleClient `json:"installed"`
}

// LoadOAuthClient reads the OAuth client file. Both the flat
// {client_id, client_secret, redirect_uri} layout and the console download layout are accepted.
func LoadOAuthClient(path string) (*OAuthClient, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth client file: %w", err)
	}

	return ParseOAuthClient(data)
}

func ParseOAuthClient(data []byte) (*OAuthClient, error) {
	var f oauthClientFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode oauth client file: %w", err)
	}

	client := f.OAuthClient

	for _, c := range []*consoleClient{f.Web, f.Installed} {
		if c == nil || client.ClientID != "" {
			continue
		}

		client.ClientID = c.ClientID
		client.ClientSecret = c.ClientSecret

		if len(c.RedirectURIs) > 0 {
			client.RedirectURI = c.RedirectURIs[0]
		}
	}

	if client.ClientID == "" {
		return nil, errors.New("oauth client file has no client_id")
	}

	if client.RedirectURI == "" {
		return nil, errors.New("oauth client file has no redirect uri")
	}

	return &client, nil
}
