// Package ingest feeds catalog records into the crash index in batches.
package ingest

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"example.com/crashview/internal/domain"
)

// BatchWriter persists one batch of index records.
type BatchWriter interface {
	UpsertBatch(ctx context.Context, items []domain.IndexRecord) (int64, error)
}

type Ingestor struct {
	queue        chan domain.IndexRecord
	writer       BatchWriter
	batchMaxSize int
	batchMaxWait time.Duration
	done         chan struct{}
	once         sync.Once
}

// minBatchWait keeps a zero wait from turning the flush timer into a busy loop.
const minBatchWait = time.Millisecond

func NewIngestor(writer BatchWriter, queueMaxSize, batchMaxSize int, batchMaxWait time.Duration) *Ingestor {
	if batchMaxSize <= 0 {
		batchMaxSize = 1
	}
	if batchMaxWait < minBatchWait {
		batchMaxWait = minBatchWait
	}
	return &Ingestor{
		queue:        make(chan domain.IndexRecord, queueMaxSize),
		writer:       writer,
		batchMaxSize: batchMaxSize,
		batchMaxWait: batchMaxWait,
		done:         make(chan struct{}),
	}
}

// Start runs the batching loop until ctx ends. Records still queued at that
// point are flushed with a short grace period.
func (ig *Ingestor) Start(ctx context.Context) {
	ig.once.Do(func() { go ig.run(ctx) })
}

// Done is closed once the loop has exited and its final flush finished.
func (ig *Ingestor) Done() <-chan struct{} { return ig.done }

const shutdownFlushTimeout = 5 * time.Second

func (ig *Ingestor) run(ctx context.Context) {
	defer close(ig.done)
	batch := make([]domain.IndexRecord, 0, ig.batchMaxSize)
	t := time.NewTimer(ig.batchMaxWait)
	defer t.Stop()

	resetTimer := func() {
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		t.Reset(ig.batchMaxWait)
	}

	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			resetTimer()
			return
		}
		affected, err := ig.writer.UpsertBatch(ctx, batch)
		if err != nil {
			log.WithError(err).WithField("dropped", len(batch)).Error("index batch failed")
		} else {
			log.WithFields(log.Fields{"affected": affected, "size": len(batch)}).Debug("index batch written")
		}
		batch = batch[:0]
		resetTimer()
	}

	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
		drain:
			for {
				select {
				case rec := <-ig.queue:
					batch = append(batch, rec)
					if len(batch) >= ig.batchMaxSize {
						flush(fctx)
					}
				default:
					break drain
				}
			}
			flush(fctx)
			cancel()
			return
		case rec := <-ig.queue:
			batch = append(batch, rec)
			if len(batch) >= ig.batchMaxSize {
				flush(ctx)
			}
		case <-t.C:
			flush(ctx)
		}
	}
}

// Enqueue never blocks; false means the queue is full and rec was dropped.
func (ig *Ingestor) Enqueue(rec domain.IndexRecord) bool {
	select {
	case ig.queue <- rec:
		return true
	default:
		return false
	}
}
