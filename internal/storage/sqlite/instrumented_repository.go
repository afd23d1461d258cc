package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/ytmusic_downloader/internal/storage"
	"github.com/italolelis/ytmusic_downloader/internal/telemetry"
)

// InstrumentedHistoryRepository wraps HistoryRepository with telemetry.
type InstrumentedHistoryRepository struct {
	repo      *HistoryRepository
	telemetry *telemetry.Telemetry
}

func NewInstrumentedHistoryRepository(db *sql.DB, tel *telemetry.Telemetry) *InstrumentedHistoryRepository {
	return &InstrumentedHistoryRepository{
		repo:      NewHistoryRepository(db),
		telemetry: tel,
	}
}

func (r *InstrumentedHistoryRepository) Record(ctx context.Context, rec storage.DownloadRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "record_download", func(ctx context.Context) error {
		return r.repo.Record(ctx, rec)
	})
}

func (r *InstrumentedHistoryRepository) List(ctx context.Context, limit int) ([]storage.DownloadRecord, error) {
	var result []storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "list_downloads", func(ctx context.Context) error {
		var err error
		result, err = r.repo.List(ctx, limit)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedHistoryRepository) ListDownloaded(ctx context.Context) ([]storage.DownloadRecord, error) {
	var result []storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "list_downloaded", func(ctx context.Context) error {
		var err error
		result, err = r.repo.ListDownloaded(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
