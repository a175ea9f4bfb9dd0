package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"

	"docgate/internal/types"
)

const exportPageSize = 500

// ExportSource pages through activity in creation order.
type ExportSource interface {
	ListCreatedBetween(ctx context.Context, start, end time.Time, afterID string, limit int) ([]*types.Activity, error)
}

// ArchiveWriter stores a finished archive.
type ArchiveWriter interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// ExportResult summarizes one archive.
type ExportResult struct {
	Key   string
	Rows  int
	Bytes int
}

// Exporter writes one UTC day of activity as zstd-compressed NDJSON.
type Exporter struct {
	source   ExportSource
	writer   ArchiveWriter
	pageSize int
	logger   *slog.Logger
}

func NewExporter(source ExportSource, writer ArchiveWriter, logger *slog.Logger) *Exporter {
	return &Exporter{source: source, writer: writer, pageSize: exportPageSize, logger: logger}
}

// ArchiveKey is the object key for the archive covering day.
func ArchiveKey(day time.Time) string {
	day = day.UTC()
	return fmt.Sprintf("archive/activity/%04d/%02d/%02d.ndjson.zst", day.Year(), int(day.Month()), day.Day())
}

// ExportDay archives the UTC day containing day. Days with no activity
// produce no object.
func (e *Exporter) ExportDay(ctx context.Context, day time.Time) (ExportResult, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	res := ExportResult{Key: ArchiveKey(start)}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return res, fmt.Errorf("activity: create zstd encoder: %w", err)
	}
	lines := json.NewEncoder(enc)

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			enc.Close()
			return res, err
		}
		page, err := e.source.ListCreatedBetween(ctx, start, end, after, e.pageSize)
		if err != nil {
			enc.Close()
			return res, err
		}
		for _, a := range page {
			if err := lines.Encode(a); err != nil {
				enc.Close()
				return res, fmt.Errorf("activity: encode row %s: %w", a.ID, err)
			}
		}
		res.Rows += len(page)
		if len(page) < e.pageSize {
			break
		}
		after = page[len(page)-1].ID
	}

	if err := enc.Close(); err != nil {
		return res, fmt.Errorf("activity: flush zstd encoder: %w", err)
	}
	if res.Rows == 0 {
		e.logger.InfoContext(ctx, "no activity to export", "day", start.Format(time.DateOnly))
		return res, nil
	}

	res.Bytes = buf.Len()
	if err := e.writer.Put(ctx, res.Key, &buf, "application/zstd"); err != nil {
		return res, err
	}
	e.logger.InfoContext(ctx, "activity exported",
		"key", res.Key,
		"rows", res.Rows,
		"bytes", res.Bytes,
	)
	return res, nil
}
