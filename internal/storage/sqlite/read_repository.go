package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/ytmusic_downloader/internal/storage"
	"github.com/italolelis/ytmusic_downloader/internal/track"
)

const selectColumns = `SELECT id, batch_id, video_id, title, playlist, file_path, status, downloaded_at FROM downloads`

// List returns the most recent records first. A non-positive limit returns everything.
func (r *HistoryRepository) List(ctx context.Context, limit int) ([]storage.DownloadRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListDownloaded returns the successful records, oldest first.
func (r *HistoryRepository) ListDownloaded(ctx context.Context) ([]storage.DownloadRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` WHERE status = ? ORDER BY id ASC`, string(track.StatusDownloaded))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]storage.DownloadRecord, error) {
	var records []storage.DownloadRecord

	for rows.Next() {
		var (
			record       storage.DownloadRecord
			title        sql.NullString
			playlist     sql.NullString
			filePath     sql.NullString
			downloadedAt string
		)

		if err := rows.Scan(&record.ID, &record.BatchID, &record.VideoID, &title, &playlist, &filePath, &record.Status, &downloadedAt); err != nil {
			return nil, err
		}

		record.Title = title.String
		record.Playlist = playlist.String
		record.FilePath = filePath.String

		t, err := time.Parse(time.RFC3339, downloadedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse downloaded_at of record %d: %w", record.ID, err)
		}

		record.DownloadedAt = t

		records = append(records, record)
	}

	return records, rows.Err()
}
