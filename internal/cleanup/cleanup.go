package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/italolelis/ytmusic_downloader/internal/logctx"
	"github.com/italolelis/ytmusic_downloader/internal/storage"
)

// RemovePartial deletes the output left behind by a failed conversion. A missing file is not an error.
func RemovePartial(ctx context.Context, path string) error {
	err := os.Remove(path)
	if err == nil {
		logctx.LoggerFromContext(ctx).Debug("removed partial output", "file", path)

		return nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("failed to remove partial output: %w", err)
}

// DeleteExpiredFiles deletes downloaded tracks older than keepDuration. Record paths are
// relative to dir. A file downloaded again later is judged by its newest record. It keeps
// going past individual failures and returns them joined.
func DeleteExpiredFiles(ctx context.Context, records []storage.DownloadRecord, dir string, keepDuration time.Duration, now time.Time) error {
	logger := logctx.LoggerFromContext(ctx)

	latest := make(map[string]time.Time, len(records))
	for _, rec := range records {
		if rec.DownloadedAt.After(latest[rec.FilePath]) {
			latest[rec.FilePath] = rec.DownloadedAt
		}
	}

	var errs []error

	for _, rec := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if now.Sub(rec.DownloadedAt) <= keepDuration || latest[rec.FilePath].After(rec.DownloadedAt) {
			continue
		}

		filePath := filepath.Join(dir, rec.FilePath)

		if err := os.Remove(filePath); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // already deleted
			}

			logger.Error("failed to delete expired file", "file", filePath, "err", err)
			errs = append(errs, err)

			continue
		}

		logger.Info("deleted expired file", "file", filePath, "downloaded_at", rec.DownloadedAt)
	}

	return errors.Join(errs...)
}
