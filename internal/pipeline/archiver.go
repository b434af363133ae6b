package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polycopy/internal/book"
	"github.com/alanyoungcy/polycopy/internal/domain"
)

// BlobWriter uploads one object to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver periodically uploads a full book snapshot (positions, close
// history, totals) to object storage. Snapshots are purely for audit and
// offline analysis; the live restart path reads PostgreSQL, not these.
type Archiver struct {
	book     *book.Book
	writer   BlobWriter
	interval time.Duration
	prefix   string
	logger   *slog.Logger
}

// NewArchiver wires an Archiver writing under the given key prefix.
func NewArchiver(bk *book.Book, writer BlobWriter, interval time.Duration, prefix string, logger *slog.Logger) *Archiver {
	return &Archiver{
		book:     bk,
		writer:   writer,
		interval: interval,
		prefix:   prefix,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

type bookSnapshot struct {
	ArchivedAt time.Time            `json:"archived_at"`
	Positions  []domain.Position    `json:"positions"`
	History    []domain.ClosedTrade `json:"history"`
	Totals     domain.Totals        `json:"totals"`
}

// Run uploads snapshots until ctx is cancelled. Upload failures are logged
// and retried on the next interval.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.Archive(ctx); err != nil {
				a.logger.Warn("archive failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Archive uploads one snapshot now.
func (a *Archiver) Archive(ctx context.Context) error {
	now := time.Now().UTC()
	snap := bookSnapshot{
		ArchivedAt: now,
		Positions:  a.book.AllPositions(),
		History:    a.book.History(0),
		Totals:     a.book.Totals(),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("archiver: marshal snapshot: %w", err)
	}

	path := fmt.Sprintf("%s/%s/book-%s.json", a.prefix, now.Format("2006/01/02"), now.Format("150405"))
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("archiver: upload %s: %w", path, err)
	}

	a.logger.Info("book snapshot archived",
		slog.String("path", path),
		slog.Int("positions", len(snap.Positions)),
		slog.Int("closed_trades", len(snap.History)),
	)
	return nil
}
