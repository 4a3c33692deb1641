package ingest

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"example.com/crashview/internal/domain"
)

// RecordSource yields the current set of crash records.
type RecordSource interface {
	Records(ctx context.Context) ([]domain.IndexRecord, error)
}

// Scanner periodically pushes every record from a source into an Ingestor.
// Rows are upserted, so rescanning unchanged crashes is harmless.
type Scanner struct {
	source   RecordSource
	ingestor *Ingestor
	interval time.Duration
}

func NewScanner(source RecordSource, ingestor *Ingestor, interval time.Duration) *Scanner {
	return &Scanner{source: source, ingestor: ingestor, interval: interval}
}

// ScanOnce enqueues all records and reports how many were accepted.
func (s *Scanner) ScanOnce(ctx context.Context) (int, error) {
	recs, err := s.source.Records(ctx)
	if err != nil {
		return 0, fmt.Errorf("scan records: %w", err)
	}
	queued := 0
	for _, rec := range recs {
		if s.ingestor.Enqueue(rec) {
			queued++
		}
	}
	if dropped := len(recs) - queued; dropped > 0 {
		log.WithField("dropped", dropped).Warn("index queue full")
	}
	return queued, nil
}

// Run scans immediately and then every interval until ctx ends.
func (s *Scanner) Run(ctx context.Context) {
	scan := func() {
		n, err := s.ScanOnce(ctx)
		if err != nil {
			log.WithError(err).Error("index scan failed")
			return
		}
		log.WithField("queued", n).Debug("index scan done")
	}
	scan()
	if s.interval <= 0 {
		return
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			scan()
		}
	}
}

// WriteAll writes recs synchronously in chunks of batchSize.
func WriteAll(ctx context.Context, w BatchWriter, recs []domain.IndexRecord, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = len(recs)
	}
	var total int64
	for start := 0; start < len(recs); start += batchSize {
		end := min(start+batchSize, len(recs))
		n, err := w.UpsertBatch(ctx, recs[start:end])
		if err != nil {
			return total, fmt.Errorf("write records %d-%d: %w", start, end, err)
		}
		total += n
	}
	return total, nil
}
