package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/ytmusic_downloader/internal/storage"
)

// HistoryRepository stores download records in SQLite.
type HistoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db, now: time.Now}
}

// Record appends one attempt. DownloadedAt defaults to the current time.
func (r *HistoryRepository) Record(ctx context.Context, rec storage.DownloadRecord) error {
	if rec.DownloadedAt.IsZero() {
		rec.DownloadedAt = r.now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO downloads (batch_id, video_id, title, playlist, file_path, status, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.BatchID, rec.VideoID, rec.Title, rec.Playlist, rec.FilePath, rec.Status,
		rec.DownloadedAt.UTC().Format(time.RFC3339),
	)

	return err
}
