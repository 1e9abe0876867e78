package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/mail"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/storage"
)

// EmailWorkerDeps wires email delivery.
type EmailWorkerDeps struct {
	Mailer Mailer
	Store  ObjectStore
	Logger func(context.Context, string, map[string]any)
}

// EmailWorker delivers queued transactional email.
type EmailWorker struct {
	mailer Mailer
	store  ObjectStore
	logger func(context.Context, string, map[string]any)
}

// NewEmailWorker validates deps and constructs a worker. Store is only needed for jobs that
// carry an attachment.
func NewEmailWorker(deps EmailWorkerDeps) (*EmailWorker, error) {
	if deps.Mailer == nil {
		return nil, errors.New("email worker: mailer is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &EmailWorker{mailer: deps.Mailer, store: deps.Store, logger: logger}, nil
}

// Handle sends the email described by job.
func (w *EmailWorker) Handle(ctx context.Context, job domain.EmailJob) error {
	to := make([]string, 0, len(job.To))
	for _, addr := range job.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		return fmt.Errorf("%w: email job without recipients", ErrValidation)
	}
	if strings.TrimSpace(job.Subject) == "" {
		return fmt.Errorf("%w: email job without subject", ErrValidation)
	}

	msg := mail.Message{To: to, Subject: job.Subject, Body: job.Body}
	if key := strings.TrimSpace(job.AttachedKey); key != "" {
		if w.store == nil {
			return fmt.Errorf("%w: attachment store not configured", ErrUnavailable)
		}
		reader, err := w.store.Open(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return fmt.Errorf("%w: attachment %s", ErrNotFound, key)
			}
			return fmt.Errorf("open attachment %s: %w", key, err)
		}
		defer reader.Close()
		name := strings.TrimSpace(job.Attachment)
		if name == "" {
			name = key[strings.LastIndex(key, "/")+1:]
		}
		msg.Attachments = []mail.Attachment{{Name: name, Content: reader}}
	}

	if err := w.mailer.Send(ctx, msg); err != nil {
		w.logger(ctx, "email.send.failed", map[string]any{"orderId": job.OrderID, "kind": job.Kind, "error": err})
		return fmt.Errorf("send %s email for %s: %w", job.Kind, job.OrderID, err)
	}
	w.logger(ctx, "email.sent", map[string]any{"orderId": job.OrderID, "kind": job.Kind, "recipients": len(to)})
	return nil
}
