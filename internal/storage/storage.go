package storage

import (
	"context"
	"time"
)

// DownloadRecord is one finished attempt to convert a track. Records are an audit trail
// only; nothing reads them to decide what to download.
type DownloadRecord struct {
	ID           int64     `json:"id"`
	BatchID      string    `json:"batchId"`
	VideoID      string    `json:"videoId"`
	Title        string    `json:"title"`
	Playlist     string    `json:"playlist"`
	FilePath     string    `json:"filePath"`
	Status       string    `json:"status"`
	DownloadedAt time.Time `json:"downloadedAt"`
}

type HistoryReadRepository interface {
	List(ctx context.Context, limit int) ([]DownloadRecord, error)
	ListDownloaded(ctx context.Context) ([]DownloadRecord, error)
}

type HistoryWriteRepository interface {
	Record(ctx context.Context, rec DownloadRecord) error
}

type HistoryRepository interface {
	HistoryReadRepository
	HistoryWriteRepository
}
