package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Abhranil-01/dsport-backend-api/internal/platform/config"
	pfirestore "github.com/Abhranil-01/dsport-backend-api/internal/platform/firestore"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/jobs"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/mail"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/storage"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
	firestoreRepo "github.com/Abhranil-01/dsport-backend-api/internal/repositories/firestore"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories/memory"
	"github.com/Abhranil-01/dsport-backend-api/internal/services"
)

// Role selects which adapters a process needs.
type Role int

const (
	// RoleAPI serves HTTP and websockets. It publishes jobs and consumes relayed notifications.
	RoleAPI Role = iota
	// RoleWorker consumes invoice and email jobs and relays notifications to the API.
	RoleWorker
)

const checkTimeout = 1500 * time.Millisecond

// Stack is the adapter set of one process together with the clients it must release.
type Stack struct {
	Infrastructure

	// Firestore is set in Firestore mode and backs the idempotency store.
	Firestore *pfirestore.Provider
	// Notifications carries realtime events from workers to the API. It is nil in memory mode,
	// where the hub is published to directly.
	Notifications jobs.Queue

	closers []func(context.Context) error
}

// BuildStack opens the adapters for cfg.Mode. In memory mode every role gets the same in-process
// adapters, since the API then runs the workers itself.
func BuildStack(ctx context.Context, cfg config.Config, role Role, logger *zap.Logger) (*Stack, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	stack := &Stack{Infrastructure: Infrastructure{Logger: logger}}
	var err error
	switch cfg.Mode {
	case config.ModeMemory:
		err = stack.buildMemory(cfg, logger)
	case config.ModeFirestore:
		err = stack.buildCloud(ctx, cfg, role, logger)
	default:
		err = fmt.Errorf("unsupported mode %q", cfg.Mode)
	}
	if err != nil {
		_ = stack.Close(context.Background())
		return nil, err
	}
	return stack, nil
}

// Close releases the clients opened by BuildStack in reverse order. Closing twice after the
// container has released the ledger is safe.
func (s *Stack) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Stack) buildMemory(cfg config.Config, logger *zap.Logger) error {
	ledger := memory.NewLedger()
	s.Ledger = ledger
	s.Orders = ledger
	s.InvoiceQueue = jobs.NewMemoryQueue("invoice",
		jobs.WithMemoryRetry(cfg.Jobs.InvoiceAttempts, cfg.Jobs.InvoiceBackoff),
		jobs.WithMemoryLogger(logger.Named("jobs")))
	s.EmailQueue = jobs.NewMemoryQueue("email",
		jobs.WithMemoryRetry(cfg.Jobs.EmailAttempts, cfg.Jobs.EmailBackoff),
		jobs.WithMemoryLogger(logger.Named("jobs")))

	store, err := storage.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
	if err != nil {
		return err
	}
	s.Store = store

	mailer, err := newMailer(cfg.Mail, logger)
	if err != nil {
		return err
	}
	s.Mailer = mailer
	s.Gateway = newGateway(cfg, logger)
	s.HealthChecks = append(s.HealthChecks, repositories.DependencyCheck{
		Name:  "ledger",
		Check: func(context.Context) error { return nil },
	})
	return nil
}

func (s *Stack) buildCloud(ctx context.Context, cfg config.Config, role Role, logger *zap.Logger) error {
	provider := pfirestore.NewProvider(cfg.Firestore)
	s.closers = append(s.closers, provider.Close)
	client, err := provider.Client(ctx)
	if err != nil {
		return fmt.Errorf("initialise firestore client: %w", err)
	}
	ledger, err := firestoreRepo.NewLedger(provider)
	if err != nil {
		return err
	}
	s.Firestore = provider
	s.Ledger = ledger
	s.Orders = ledger
	s.HealthChecks = append(s.HealthChecks, repositories.DependencyCheck{
		Name:    "firestore",
		Timeout: checkTimeout,
		Check: func(ctx context.Context) error {
			_, err := client.Collections(ctx).Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		},
	})

	ps, err := newPubSubClient(ctx, cfg.PubSub)
	if err != nil {
		return fmt.Errorf("initialise pubsub client: %w", err)
	}
	s.closers = append(s.closers, func(context.Context) error { return ps.Close() })

	jobsLogger := logger.Named("jobs")
	invoiceTopic := ps.Topic(cfg.PubSub.InvoiceTopic)
	emailTopic := ps.Topic(cfg.PubSub.EmailTopic)
	notificationTopic := ps.Topic(cfg.PubSub.NotificationTopic)

	invoiceOpts := []jobs.PubSubOption{jobs.WithRetry(cfg.Jobs.InvoiceAttempts, cfg.Jobs.InvoiceBackoff), jobs.WithLogger(jobsLogger)}
	emailOpts := []jobs.PubSubOption{jobs.WithRetry(cfg.Jobs.EmailAttempts, cfg.Jobs.EmailBackoff), jobs.WithLogger(jobsLogger)}
	notificationOpts := []jobs.PubSubOption{jobs.WithRetry(1, 0), jobs.WithLogger(jobsLogger)}
	switch role {
	case RoleWorker:
		invoiceOpts = append(invoiceOpts, jobs.WithSubscription(ps.Subscription(cfg.PubSub.InvoiceSubscription)))
		emailOpts = append(emailOpts, jobs.WithSubscription(ps.Subscription(cfg.PubSub.EmailSubscription)))
	case RoleAPI:
		notificationOpts = append(notificationOpts, jobs.WithSubscription(ps.Subscription(cfg.PubSub.NotificationSubscription)))
	}

	invoiceQueue, err := jobs.NewPubSubQueue("invoice", invoiceTopic, invoiceOpts...)
	if err != nil {
		return err
	}
	emailQueue, err := jobs.NewPubSubQueue("email", emailTopic, emailOpts...)
	if err != nil {
		return err
	}
	notifications, err := jobs.NewPubSubQueue("notifications", notificationTopic, notificationOpts...)
	if err != nil {
		return err
	}
	s.InvoiceQueue = invoiceQueue
	s.EmailQueue = emailQueue
	s.Notifications = notifications
	s.closers = append(s.closers, notifications.Shutdown)
	s.HealthChecks = append(s.HealthChecks, repositories.DependencyCheck{
		Name:    "pubsub",
		Timeout: checkTimeout,
		Check: func(ctx context.Context) error {
			ok, err := invoiceTopic.Exists(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("topic %s does not exist", cfg.PubSub.InvoiceTopic)
			}
			return nil
		},
	})

	if role == RoleAPI {
		s.Gateway = newGateway(cfg, logger)
		return nil
	}

	var storageOpts []option.ClientOption
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		storageOpts = append(storageOpts, option.WithCredentialsFile(file))
	}
	gcsClient, err := gcs.NewClient(ctx, storageOpts...)
	if err != nil {
		return fmt.Errorf("initialise storage client: %w", err)
	}
	s.closers = append(s.closers, func(context.Context) error { return gcsClient.Close() })
	uploader, err := storage.NewGCSUploader(gcsClient, cfg.Storage.InvoiceBucket,
		storage.WithPublicBaseURL(cfg.Storage.PublicBaseURL),
		storage.WithUploaderLogger(logger.Named("storage")))
	if err != nil {
		return err
	}
	s.Store = uploader
	bucket := gcsClient.Bucket(cfg.Storage.InvoiceBucket)
	s.HealthChecks = append(s.HealthChecks, repositories.DependencyCheck{
		Name:    "storage",
		Timeout: checkTimeout,
		Check: func(ctx context.Context) error {
			_, err := bucket.Attrs(ctx)
			return err
		},
	})

	mailer, err := newMailer(cfg.Mail, logger)
	if err != nil {
		return err
	}
	s.Mailer = mailer
	return nil
}

func newPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*pubsub.Client, error) {
	var opts []option.ClientOption
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		opts = append(opts,
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	return pubsub.NewClient(ctx, cfg.ProjectID, opts...)
}

// newGateway returns nil when no gateway has credentials. Online payment creation then reports the
// service as unavailable while COD keeps working.
func newGateway(cfg config.Config, logger *zap.Logger) services.PaymentGateway {
	manager, err := NewPaymentGateway(cfg.Payments, logger.Named("payments"))
	if err != nil {
		logger.Warn("payment gateway disabled", zap.Error(err))
		return nil
	}
	return manager
}

func newMailer(cfg config.MailConfig, logger *zap.Logger) (services.Mailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		logger.Warn("smtp host not configured; emails are logged instead of sent")
		return &logMailer{logger: logger.Named("mail")}, nil
	}
	mailer, err := mail.NewSMTPMailer(mail.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	}, logger.Named("mail"))
	if err != nil {
		return nil, fmt.Errorf("initialise smtp mailer: %w", err)
	}
	return mailer, nil
}

// logMailer records outgoing messages. It stands in for SMTP in local runs.
type logMailer struct {
	logger *zap.Logger
}

func (m *logMailer) Send(_ context.Context, msg mail.Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Name)
	}
	m.logger.Info("email suppressed",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Strings("attachments", names))
	return nil
}
