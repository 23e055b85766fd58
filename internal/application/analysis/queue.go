package analysis

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
)

// Queue runs webhook processing detached from the HTTP response for
// providers that expect an immediate ACK.
//
// Contract: Enqueue never blocks; a full queue drops the job with an
// error log and relies on the provider redelivering (the upsert makes
// redelivery safe). On Shutdown the intake closes, workers drain what
// is already queued until the caller's context expires, and anything
// still pending is logged as abandoned.
type Queue struct {
	svc    *Service
	logger *slog.Logger

	jobs chan *domain.Message
	g    *errgroup.Group

	mu     sync.Mutex
	closed bool
}

func NewQueue(svc *Service, size, workers int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 64
	}
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		svc:    svc,
		logger: logger.With("component", "queue"),
		jobs:   make(chan *domain.Message, size),
		g:      &errgroup.Group{},
	}
	for i := 0; i < workers; i++ {
		q.g.Go(q.worker)
	}
	return q
}

func (q *Queue) worker() error {
	for msg := range q.jobs {
		out, err := q.svc.ProcessUntilDone(msg)
		if err != nil {
			// only persistence failures surface here; the outcome is
			// lost, which is exactly why this is logged loudly
			q.logger.Error("background processing lost its record",
				"message_id", msg.ProviderMessageID, "error", err)
			continue
		}
		q.logger.Info("background processing finished",
			"message_id", msg.ProviderMessageID, "status", out.Status)
	}
	return nil
}

// Enqueue hands a message to the workers. Returns false when the
// queue is full or already shut down.
func (q *Queue) Enqueue(msg *domain.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- msg:
		return true
	default:
		q.logger.Error("queue full, dropping job", "message_id", msg.ProviderMessageID)
		return false
	}
}

// Shutdown closes the intake and waits for the drain until ctx
// expires. Pending jobs past the deadline are abandoned (and counted
// in the log).
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = q.g.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.logger.Warn("shutdown deadline reached, abandoning queued jobs",
			"abandoned", len(q.jobs))
		return ctx.Err()
	}
}
