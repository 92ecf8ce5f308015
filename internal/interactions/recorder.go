// Package interactions writes the audit trail of processed messages in the
// background so the request path never waits on it.
package interactions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/wa-assistant-bridge/internal/metrics"
	"github.com/xaenox/wa-assistant-bridge/internal/models"
	"github.com/xaenox/wa-assistant-bridge/internal/storage"
)

type Options struct {
	QueueSize    int
	WriteTimeout time.Duration
}

// Recorder owns a bounded queue drained by a single writer goroutine. Write
// failures go to an error channel that only feeds logs and metrics.
type Recorder struct {
	store   storage.InteractionStorage
	logger  *zap.Logger
	timeout time.Duration

	queue chan models.InteractionLog
	errs  chan error

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewRecorder(store storage.InteractionStorage, opts Options, logger *zap.Logger) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		store:   store,
		logger:  logger.Named("interactions"),
		timeout: opts.WriteTimeout,
		queue:   make(chan models.InteractionLog, opts.QueueSize),
		errs:    make(chan error, opts.QueueSize),
	}

	r.wg.Add(2)
	go r.writeLoop()
	go r.observeLoop()
	return r
}

// Record enqueues an entry without blocking. It returns false when the entry
// was dropped because the queue is full or the recorder is closed.
func (r *Recorder) Record(entry models.InteractionLog) bool {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		metrics.InteractionWrites.WithLabelValues("dropped").Inc()
		return false
	}

	select {
	case r.queue <- entry:
		return true
	default:
		metrics.InteractionWrites.WithLabelValues("dropped").Inc()
		r.logger.Warn("Interaction queue full, dropping entry",
			zap.String("customer_id", entry.CustomerID),
			zap.String("message_id", entry.MessageID))
		return false
	}
}

// Close stops accepting entries and waits until the queue is drained.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Recorder) writeLoop() {
	defer r.wg.Done()
	defer close(r.errs)

	for entry := range r.queue {
		if err := r.write(entry); err != nil {
			metrics.InteractionWrites.WithLabelValues("failed").Inc()
			select {
			case r.errs <- err:
			default:
				r.logger.Error("Interaction error channel full", zap.Error(err))
			}
			continue
		}
		metrics.InteractionWrites.WithLabelValues("ok").Inc()
	}
}

func (r *Recorder) write(entry models.InteractionLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.SaveInteraction(ctx, &entry); err != nil {
		return fmt.Errorf("save interaction %s (customer %s): %w", entry.ID, entry.CustomerID, err)
	}
	return nil
}

func (r *Recorder) observeLoop() {
	defer r.wg.Done()

	for err := range r.errs {
		r.logger.Error("Failed to write interaction log", zap.Error(err))
	}
}
