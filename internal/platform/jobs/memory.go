package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultMemoryBuffer = 256

// MemoryQueue is an in-process queue. Jobs live only as long as the process; Shutdown stops
// intake and waits for running consumers to finish their current job and drain the buffer.
type MemoryQueue struct {
	name     string
	attempts int
	backoff  time.Duration
	logger   *zap.Logger
	clock    func() time.Time
	sleep    sleepFunc

	jobs chan Job

	mu        sync.RWMutex
	closed    bool
	consumers sync.WaitGroup
}

// MemoryOption customises a MemoryQueue.
type MemoryOption func(*MemoryQueue)

// WithMemoryRetry sets the default attempts and base backoff.
func WithMemoryRetry(attempts int, backoff time.Duration) MemoryOption {
	return func(q *MemoryQueue) {
		if attempts > 0 {
			q.attempts = attempts
		}
		if backoff > 0 {
			q.backoff = backoff
		}
	}
}

// WithMemoryBuffer sets the channel capacity. Enqueue blocks when the buffer is full.
func WithMemoryBuffer(size int) MemoryOption {
	return func(q *MemoryQueue) {
		if size > 0 {
			q.jobs = make(chan Job, size)
		}
	}
}

// WithMemoryLogger sets the queue logger.
func WithMemoryLogger(logger *zap.Logger) MemoryOption {
	return func(q *MemoryQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

func withMemorySleep(sleep sleepFunc) MemoryOption {
	return func(q *MemoryQueue) { q.sleep = sleep }
}

// NewMemoryQueue constructs an in-memory queue.
func NewMemoryQueue(name string, opts ...MemoryOption) *MemoryQueue {
	q := &MemoryQueue{
		name:     name,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		logger:   zap.NewNop(),
		clock:    time.Now,
		sleep:    contextSleep,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	if q.jobs == nil {
		q.jobs = make(chan Job, defaultMemoryBuffer)
	}
	return q
}

// Name returns the queue name.
func (q *MemoryQueue) Name() string { return q.name }

// Enqueue buffers payload for the consumer.
func (q *MemoryQueue) Enqueue(ctx context.Context, payload any, opts EnqueueOptions) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s job: %w", q.name, err)
	}
	opts = normaliseOptions(opts, q.attempts, q.backoff)
	job := Job{
		ID:          newJobID(),
		Queue:       q.name,
		Key:         opts.Key,
		Payload:     data,
		MaxAttempts: opts.Attempts,
		Backoff:     opts.Backoff,
		EnqueuedAt:  q.clock().UTC(),
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return "", ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return job.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Consume runs handler on up to opts.Concurrency jobs at a time until ctx is cancelled or the
// queue is shut down and drained.
func (q *MemoryQueue) Consume(ctx context.Context, handler Handler, opts ConsumeOptions) error {
	if handler == nil {
		return errors.New("memory queue: handler is required")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	// Registration happens under the lock so Shutdown never waits on a counter that can still grow.
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.consumers.Add(1)
	q.mu.Unlock()
	defer q.consumers.Done()

	var workers sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-q.jobs:
					if !ok {
						return
					}
					if !deliver(ctx, job, handler, opts.OnExhausted, q.sleep, q.logger) {
						q.logger.Warn("memory queue: job abandoned on shutdown",
							zap.String("queue", q.name),
							zap.String("jobId", job.ID),
							zap.String("key", job.Key))
					}
				}
			}
		}()
	}
	workers.Wait()
	return nil
}

// Shutdown closes the queue to new jobs and waits for consumers to return or ctx expiry.
func (q *MemoryQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.consumers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
