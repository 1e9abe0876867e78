package jobs

import (
	"context"
	"errors"
	"time"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
)

// InvoicePublisher enqueues invoice jobs keyed by order id.
type InvoicePublisher struct {
	queue Queue
	opts  EnqueueOptions
}

// NewInvoicePublisher binds invoice jobs to queue with the given retry policy.
func NewInvoicePublisher(queue Queue, attempts int, backoff time.Duration) (*InvoicePublisher, error) {
	if queue == nil {
		return nil, errors.New("invoice publisher: queue is required")
	}
	return &InvoicePublisher{queue: queue, opts: EnqueueOptions{Attempts: attempts, Backoff: backoff}}, nil
}

// EnqueueInvoice queues invoice generation for an order.
func (p *InvoicePublisher) EnqueueInvoice(ctx context.Context, job domain.InvoiceJob) error {
	opts := p.opts
	opts.Key = job.OrderID
	_, err := p.queue.Enqueue(ctx, job, opts)
	return err
}

// EmailPublisher enqueues outbound email jobs.
type EmailPublisher struct {
	queue Queue
	opts  EnqueueOptions
}

// NewEmailPublisher binds email jobs to queue with the given retry policy.
func NewEmailPublisher(queue Queue, attempts int, backoff time.Duration) (*EmailPublisher, error) {
	if queue == nil {
		return nil, errors.New("email publisher: queue is required")
	}
	return &EmailPublisher{queue: queue, opts: EnqueueOptions{Attempts: attempts, Backoff: backoff}}, nil
}

// EnqueueEmail queues an email job.
func (p *EmailPublisher) EnqueueEmail(ctx context.Context, job domain.EmailJob) error {
	opts := p.opts
	opts.Key = string(job.Kind) + ":" + job.OrderID
	_, err := p.queue.Enqueue(ctx, job, opts)
	return err
}

// InvoiceHandler adapts a typed invoice handler to a queue Handler. Undecodable payloads fail
// permanently.
func InvoiceHandler(fn func(ctx context.Context, job domain.InvoiceJob) error) Handler {
	return func(ctx context.Context, job Job) error {
		var payload domain.InvoiceJob
		if err := job.Decode(&payload); err != nil {
			return Permanent(err)
		}
		return fn(ctx, payload)
	}
}

// EmailHandler adapts a typed email handler to a queue Handler.
func EmailHandler(fn func(ctx context.Context, job domain.EmailJob) error) Handler {
	return func(ctx context.Context, job Job) error {
		var payload domain.EmailJob
		if err := job.Decode(&payload); err != nil {
			return Permanent(err)
		}
		return fn(ctx, payload)
	}
}
