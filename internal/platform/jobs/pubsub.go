package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

const (
	attrJobID      = "jobId"
	attrQueue      = "queue"
	attrKey        = "key"
	attrAttempts   = "attempts"
	attrBackoff    = "backoffMs"
	attrEnqueuedAt = "enqueuedAt"
)

// PubSubQueue publishes jobs to a topic and consumes them from a subscription. Messages are
// acknowledged after the handler reaches a terminal outcome; a consumer stopped mid-retry nacks
// so Pub/Sub redelivers.
type PubSubQueue struct {
	name         string
	topic        *pubsub.Topic
	subscription *pubsub.Subscription
	attempts     int
	backoff      time.Duration
	logger       *zap.Logger
	marshal      func(any) ([]byte, error)
	clock        func() time.Time
	sleep        sleepFunc

	mu     sync.RWMutex
	closed bool
}

// PubSubOption customises a PubSubQueue.
type PubSubOption func(*PubSubQueue)

// WithSubscription sets the subscription used by Consume.
func WithSubscription(sub *pubsub.Subscription) PubSubOption {
	return func(q *PubSubQueue) { q.subscription = sub }
}

// WithRetry sets the default attempts and base backoff for jobs without explicit options.
func WithRetry(attempts int, backoff time.Duration) PubSubOption {
	return func(q *PubSubQueue) {
		if attempts > 0 {
			q.attempts = attempts
		}
		if backoff > 0 {
			q.backoff = backoff
		}
	}
}

// WithLogger sets the queue logger.
func WithLogger(logger *zap.Logger) PubSubOption {
	return func(q *PubSubQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// NewPubSubQueue constructs a Pub/Sub backed queue.
func NewPubSubQueue(name string, topic *pubsub.Topic, opts ...PubSubOption) (*PubSubQueue, error) {
	if topic == nil {
		return nil, errors.New("pubsub queue: topic is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = topic.ID()
	}
	q := &PubSubQueue{
		name:     name,
		topic:    topic,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		logger:   zap.NewNop(),
		marshal:  json.Marshal,
		clock:    time.Now,
		sleep:    contextSleep,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q, nil
}

// Name returns the queue name.
func (q *PubSubQueue) Name() string { return q.name }

// Enqueue publishes payload as JSON and waits for the server acknowledgement.
func (q *PubSubQueue) Enqueue(ctx context.Context, payload any, opts EnqueueOptions) (string, error) {
	if q == nil || q.topic == nil {
		return "", errors.New("pubsub queue: not initialised")
	}
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return "", ErrQueueClosed
	}

	data, err := q.marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s job: %w", q.name, err)
	}
	opts = normaliseOptions(opts, q.attempts, q.backoff)
	id := newJobID()

	attrs := map[string]string{
		attrJobID:      id,
		attrQueue:      q.name,
		attrAttempts:   strconv.Itoa(opts.Attempts),
		attrBackoff:    strconv.FormatInt(opts.Backoff.Milliseconds(), 10),
		attrEnqueuedAt: q.clock().UTC().Format(time.RFC3339Nano),
	}
	setAttr(attrs, attrKey, opts.Key)

	result := q.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return "", fmt.Errorf("publish %s job: %w", q.name, err)
	}
	return id, nil
}

// Consume receives messages until ctx is cancelled.
func (q *PubSubQueue) Consume(ctx context.Context, handler Handler, opts ConsumeOptions) error {
	if q == nil || q.subscription == nil {
		return errors.New("pubsub queue: subscription is required to consume")
	}
	if handler == nil {
		return errors.New("pubsub queue: handler is required")
	}
	if opts.Concurrency > 0 {
		q.subscription.ReceiveSettings.MaxOutstandingMessages = opts.Concurrency
		q.subscription.ReceiveSettings.NumGoroutines = 1
	}

	err := q.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		job := q.jobFromMessage(msg)
		if deliver(ctx, job, handler, opts.OnExhausted, q.sleep, q.logger) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive %s jobs: %w", q.name, err)
	}
	return nil
}

// Shutdown stops accepting new jobs and flushes pending publishes.
func (q *PubSubQueue) Shutdown(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	q.topic.Stop()
	return nil
}

func (q *PubSubQueue) jobFromMessage(msg *pubsub.Message) Job {
	attrs := msg.Attributes
	job := Job{
		ID:          attrs[attrJobID],
		Queue:       q.name,
		Key:         attrs[attrKey],
		Payload:     msg.Data,
		MaxAttempts: q.attempts,
		Backoff:     q.backoff,
		EnqueuedAt:  msg.PublishTime,
	}
	if job.ID == "" {
		job.ID = msg.ID
	}
	if n, err := strconv.Atoi(attrs[attrAttempts]); err == nil && n > 0 {
		job.MaxAttempts = n
	}
	if ms, err := strconv.ParseInt(attrs[attrBackoff], 10, 64); err == nil && ms > 0 {
		job.Backoff = time.Duration(ms) * time.Millisecond
	}
	if ts, err := time.Parse(time.RFC3339Nano, attrs[attrEnqueuedAt]); err == nil {
		job.EnqueuedAt = ts
	}
	return job
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
