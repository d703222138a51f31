// Package audit provides the append-only event sink every component emits
// to. Writes are asynchronous and best-effort relative to the critical
// path: a failed audit write never blocks or rolls back the business
// operation, and buffered events are retried on the next flush.
package audit

import (
	"context"
	"log"
	"time"

	"nfcpay/internal/model"
	"nfcpay/internal/repository"
)

const (
	batchSize     = 10
	flushInterval = time.Second
	bufferSize    = 256
)

// Logger records audit events.
type Logger interface {
	Record(ctx context.Context, event model.AuditEvent)
}

// AsyncLogger batches events on a channel and flushes them out-of-band.
type AsyncLogger struct {
	repo repository.AuditRepository
	ch   chan model.AuditEvent
	done chan struct{}
}

// NewAsyncLogger creates a logger and starts its worker.
func NewAsyncLogger(repo repository.AuditRepository) *AsyncLogger {
	l := &AsyncLogger{
		repo: repo,
		ch:   make(chan model.AuditEvent, bufferSize),
		done: make(chan struct{}),
	}
	go l.worker()
	return l
}

// Record enqueues an event. If the buffer is full it falls back to a
// synchronous write so the event is not dropped.
func (l *AsyncLogger) Record(ctx context.Context, event model.AuditEvent) {
	select {
	case l.ch <- event:
	default:
		if err := l.repo.Create(ctx, &event); err != nil {
			log.Printf("audit: sync write failed: %v", err)
		}
	}
}

// Close flushes buffered events and stops the worker.
func (l *AsyncLogger) Close() {
	close(l.ch)
	<-l.done
}

func (l *AsyncLogger) worker() {
	defer close(l.done)

	ctx := context.Background()
	batch := make([]model.AuditEvent, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := l.repo.CreateBatch(ctx, batch); err != nil {
			// Keep the batch; retried on the next flush.
			log.Printf("audit: batch write failed (%d events retained): %v", len(batch), err)
			return
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-l.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, event)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
