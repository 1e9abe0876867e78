// Package jobs provides at-least-once background job queues with bounded in-process retry.
// A Pub/Sub backed queue serves deployed environments and an in-memory queue serves local runs
// and tests. Both run a handler up to Attempts times, waiting Backoff×2^(n-1) after the n-th
// failure, and acknowledge the message only after a terminal outcome.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/Abhranil-01/dsport-backend-api/internal/platform/jobs"

var (
	tracer      = otel.Tracer(instrumentationName)
	outcomes, _ = otel.Meter(instrumentationName).Int64Counter("jobs.outcomes",
		metric.WithDescription("Terminal job outcomes by queue"))
)

const (
	defaultAttempts = 3
	defaultBackoff  = 5 * time.Second
	maxBackoff      = 10 * time.Minute
)

// ErrQueueClosed is returned by Enqueue after Shutdown, and by a memory queue Consume started after it.
var ErrQueueClosed = errors.New("jobs: queue is closed")

// Job is one delivery of a queued payload.
type Job struct {
	ID          string
	Queue       string
	Key         string
	Payload     []byte
	Attempt     int
	MaxAttempts int
	Backoff     time.Duration
	EnqueuedAt  time.Time
}

// Decode unmarshals the job payload into dst.
func (j Job) Decode(dst any) error {
	if err := json.Unmarshal(j.Payload, dst); err != nil {
		return fmt.Errorf("jobs: decode %s payload: %w", j.Queue, err)
	}
	return nil
}

// EnqueueOptions overrides retry behaviour for a single job. Zero values take the queue defaults.
type EnqueueOptions struct {
	Key      string
	Attempts int
	Backoff  time.Duration
}

// Handler processes one attempt of a job. A nil return is a terminal success.
type Handler func(ctx context.Context, job Job) error

// ExhaustedFunc is invoked once when a job fails its final attempt, before it is acknowledged.
type ExhaustedFunc func(ctx context.Context, job Job, err error)

// Queue is the port shared by the Pub/Sub and in-memory implementations.
type Queue interface {
	Enqueue(ctx context.Context, payload any, opts EnqueueOptions) (string, error)
	Consume(ctx context.Context, handler Handler, opts ConsumeOptions) error
}

// ConsumeOptions tunes a consumer.
type ConsumeOptions struct {
	Concurrency int
	OnExhausted ExhaustedFunc
}

// Permanent marks an error as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// BackoffFor returns the wait after the given failed attempt (1-based).
func BackoffFor(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = defaultBackoff
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

func newJobID() string {
	return "job_" + strings.ToLower(ulid.Make().String())
}

func normaliseOptions(opts EnqueueOptions, attempts int, backoff time.Duration) EnqueueOptions {
	if opts.Attempts <= 0 {
		opts.Attempts = attempts
	}
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = backoff
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	opts.Key = strings.TrimSpace(opts.Key)
	return opts
}

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	// Up to 10% jitter.
	d += time.Duration(rand.Int64N(int64(d)/10 + 1))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// deliver runs handler until success, permanent failure, or attempts are exhausted. It returns
// false when ctx ended mid-way and the job should be redelivered.
func deliver(ctx context.Context, job Job, handler Handler, onExhausted ExhaustedFunc, sleep sleepFunc, logger *zap.Logger) bool {
	for attempt := 1; attempt <= job.MaxAttempts; attempt++ {
		job.Attempt = attempt
		err := runAttempt(ctx, job, handler)
		if err == nil {
			recordOutcome(ctx, job, "succeeded")
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		final := attempt == job.MaxAttempts || IsPermanent(err)
		logger.Warn("jobs: attempt failed",
			zap.String("queue", job.Queue),
			zap.String("jobId", job.ID),
			zap.String("key", job.Key),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", job.MaxAttempts),
			zap.Bool("final", final),
			zap.Error(err),
		)
		if final {
			recordOutcome(ctx, job, "exhausted")
			if onExhausted != nil {
				onExhausted(ctx, job, err)
			}
			return true
		}
		if err := sleep(ctx, BackoffFor(job.Backoff, attempt)); err != nil {
			return false
		}
	}
	return true
}

func runAttempt(ctx context.Context, job Job, handler Handler) error {
	ctx, span := tracer.Start(ctx, "jobs.process "+job.Queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", job.Queue),
			attribute.String("messaging.message.id", job.ID),
			attribute.Int("jobs.attempt", job.Attempt),
		))
	defer span.End()

	err := runHandler(ctx, job, handler)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt failed")
	}
	return err
}

func recordOutcome(ctx context.Context, job Job, outcome string) {
	if outcomes == nil {
		return
	}
	outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", job.Queue),
		attribute.String("outcome", outcome),
	))
}

func runHandler(ctx context.Context, job Job, handler Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("jobs: handler panic: %v", rec)
		}
	}()
	return handler(ctx, job)
}
