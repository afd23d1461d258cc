package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/italolelis/ytmusic_downloader/internal/cleanup"
	"github.com/italolelis/ytmusic_downloader/internal/logctx"
	"github.com/italolelis/ytmusic_downloader/internal/media"
	"github.com/italolelis/ytmusic_downloader/internal/storage"
	"github.com/italolelis/ytmusic_downloader/internal/telemetry"
	"github.com/italolelis/ytmusic_downloader/internal/track"
)

const (
	dirPerm       = 0755
	partialSuffix = ".part"
)

// Reporter receives every progress transition of a batch.
type Reporter interface {
	Report(ctx context.Context, ev track.ProgressEvent)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, ev track.ProgressEvent)

func (f ReporterFunc) Report(ctx context.Context, ev track.ProgressEvent) {
	f(ctx, ev)
}

// Batch is an ordered list of work items written to Dir under the processor's download directory.
type Batch struct {
	ID    string
	Name  string
	Dir   string
	Items []*track.WorkItem
}

// Summary is the outcome of a processed batch.
type Summary struct {
	BatchID    string
	Name       string
	Total      int
	Downloaded int
	Failed     int
	Cancelled  bool
	Duration   time.Duration
}

// Status is a bounded label for metrics.
func (s Summary) Status() string {
	switch {
	case s.Cancelled:
		return "cancelled"
	case s.Failed > 0:
		return "partial"
	default:
		return "completed"
	}
}

func (s Summary) String() string {
	msg := fmt.Sprintf("%s: %d/%d tracks downloaded", s.Name, s.Downloaded, s.Total)
	if s.Failed > 0 {
		msg += fmt.Sprintf(", %d failed", s.Failed)
	}

	if s.Cancelled {
		msg += ", cancelled"
	}

	return msg + fmt.Sprintf(" in %s", s.Duration.Round(time.Second))
}

// Processor converts the items of a batch one at a time, in order. A failing item is
// reported and skipped; it never stops the batch.
type Processor struct {
	downloadDir string
	converter   media.Converter
	reporter    Reporter
	history     storage.HistoryWriteRepository
	telemetry   *telemetry.Telemetry
	keepPartial bool
}

// NewProcessor builds a processor. reporter, history and tel may be nil.
func NewProcessor(
	downloadDir string,
	converter media.Converter,
	reporter Reporter,
	history storage.HistoryWriteRepository,
	tel *telemetry.Telemetry,
	keepPartial bool,
) *Processor {
	return &Processor{
		downloadDir: downloadDir,
		converter:   converter,
		reporter:    reporter,
		history:     history,
		telemetry:   tel,
		keepPartial: keepPartial,
	}
}

// Process runs the batch. It returns an error only when the output directory cannot be
// created or ctx is cancelled; in the latter case the summary covers the items done so far.
func (p *Processor) Process(ctx context.Context, batch Batch) (Summary, error) {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}

	start := time.Now()
	total := len(batch.Items)
	summary := Summary{BatchID: batch.ID, Name: batch.Name, Total: total}

	logger := logctx.LoggerFromContext(ctx).With("batch_id", batch.ID, "batch", batch.Name)
	ctx = logctx.WithLogger(ctx, logger)

	if batch.Dir != "" {
		batch.Dir = track.SanitizeTitle(batch.Dir)
	}

	outDir := filepath.Join(p.downloadDir, batch.Dir)
	if err := os.MkdirAll(outDir, dirPerm); err != nil {
		return summary, fmt.Errorf("failed to create output directory: %w", err)
	}

	logger.Info("processing batch", "tracks", total, "output_dir", outDir)

	var err error

	for i, item := range batch.Items {
		if err = ctx.Err(); err != nil {
			summary.Cancelled = true

			logger.Warn("batch cancelled", "processed", i, "remaining", total-i)

			break
		}

		if p.processItem(ctx, batch, i, item) {
			summary.Downloaded++
		} else {
			summary.Failed++
		}
	}

	summary.Duration = time.Since(start)
	p.telemetry.RecordBatch(ctx, summary.Status())

	logger.Info("batch finished",
		"downloaded", summary.Downloaded,
		"failed", summary.Failed,
		"duration", summary.Duration.Round(time.Millisecond))

	return summary, err
}

func (p *Processor) processItem(ctx context.Context, batch Batch, i int, item *track.WorkItem) bool {
	total := len(batch.Items)
	fileName := track.FileName(item.Title)
	outputPath := filepath.Join(p.downloadDir, batch.Dir, fileName)

	logger := logctx.LoggerFromContext(ctx).With("index", i+1, "video_id", item.VideoID, "title", item.Title)
	ctx = logctx.WithLogger(ctx, logger)

	p.report(ctx, i, item, track.StatusDownloading, total-i)

	link := item.Link
	if link == "" {
		link = track.WatchURL(item.VideoID)
	}

	// Converting into a temp file leaves an existing track with the same name untouched
	// when this attempt fails.
	tmpPath := partialPath(outputPath)

	err := p.telemetry.InstrumentTrack(ctx, func(ctx context.Context) error {
		if err := p.converter.Convert(ctx, link, tmpPath); err != nil {
			return err
		}

		return os.Rename(tmpPath, outputPath)
	})

	status := track.StatusDownloaded

	if err != nil {
		status = track.StatusError

		logger.Error("failed to download track", "err", err)

		if !p.keepPartial {
			if rmErr := cleanup.RemovePartial(ctx, tmpPath); rmErr != nil {
				logger.Warn("failed to remove partial output", "file", tmpPath, "err", rmErr)
			}
		}
	} else {
		item.Downloaded = true

		logger.Info("track downloaded", "file", outputPath, "remaining", total-i-1)
	}

	p.record(ctx, batch, item, filepath.Join(batch.Dir, fileName), status)
	p.report(ctx, i, item, status, total-i-1)

	return err == nil
}

// partialPath keeps the .mp3 extension last so yt-dlp output templates still resolve to it.
func partialPath(outputPath string) string {
	ext := filepath.Ext(outputPath)

	return strings.TrimSuffix(outputPath, ext) + partialSuffix + ext
}

func (p *Processor) report(ctx context.Context, i int, item *track.WorkItem, status track.Status, remaining int) {
	if p.reporter == nil {
		return
	}

	p.reporter.Report(ctx, track.ProgressEvent{
		Index:     i,
		ID:        item.VideoID,
		Title:     item.Title,
		Status:    status,
		Remaining: remaining,
	})
}

func (p *Processor) record(ctx context.Context, batch Batch, item *track.WorkItem, relPath string, status track.Status) {
	if p.history == nil {
		return
	}

	err := p.history.Record(ctx, storage.DownloadRecord{
		BatchID:  batch.ID,
		VideoID:  item.VideoID,
		Title:    item.Title,
		Playlist: batch.Name,
		FilePath: relPath,
		Status:   string(status),
	})
	if err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to record download history", "err", err)
	}
}
