package rename

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/italolelis/ytmusic_downloader/internal/logctx"
)

// DefaultPrefix is the marker left on files produced by the old converter site.
const DefaultPrefix = "[YT2mp3.info] - "

// StripPrefix renames every regular file in dir whose name starts with prefix to the name
// without it. Failed renames are logged and skipped. It returns how many files were renamed.
func StripPrefix(ctx context.Context, dir, prefix string) (int, error) {
	logger := logctx.LoggerFromContext(ctx).With("dir", dir)

	if prefix == "" {
		return 0, fmt.Errorf("empty prefix")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read directory: %w", err)
	}

	renamed := 0

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return renamed, err
		}

		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}

		target := strings.TrimPrefix(name, prefix)
		if target == "" {
			logger.Warn("skipping file that is only the prefix", "file", name)

			continue
		}

		if _, err := os.Stat(filepath.Join(dir, target)); err == nil {
			logger.Warn("skipping rename, target exists", "file", name, "target", target)

			continue
		}

		if err := os.Rename(filepath.Join(dir, name), filepath.Join(dir, target)); err != nil {
			logger.Error("failed to rename file", "file", name, "err", err)

			continue
		}

		logger.Info("file renamed", "from", name, "to", target)

		renamed++
	}

	return renamed, nil
}
