package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/invoice"
	"github.com/Abhranil-01/dsport-backend-api/internal/payments"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/config"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/jobs"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/observability"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
	"github.com/Abhranil-01/dsport-backend-api/internal/services"
)

// Infrastructure carries the adapters built by the binaries. Queues and stores differ between the
// Firestore and in-memory modes; the services on top do not.
type Infrastructure struct {
	Ledger       repositories.Ledger
	Orders       repositories.OrderReader
	InvoiceQueue jobs.Queue
	EmailQueue   jobs.Queue
	Notifier     services.Notifier
	Store        services.ObjectStore
	Mailer       services.Mailer
	Gateway      services.PaymentGateway
	HealthChecks []repositories.DependencyCheck
	Build        services.BuildInfo
	Logger       *zap.Logger
}

// Services bundles the service-layer contracts that handlers and workers rely upon.
type Services struct {
	Cart       services.CartService
	Orders     services.OrderService
	System     services.SystemService
	Invoices   *services.InvoiceWorker
	Emails     *services.EmailWorker
	Dispatcher *services.Dispatcher
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config         config.Config
	Infrastructure Infrastructure
	Services       Services
}

// NewContainer constructs the runtime dependencies. Workers are only built when their adapters are
// present, so the API process can run without a mailer.
func NewContainer(ctx context.Context, cfg config.Config, infra Infrastructure) (*Container, error) {
	if infra.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if infra.Logger == nil {
		infra.Logger = zap.NewNop()
	}

	svc, err := buildServices(ctx, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:         cfg,
		Infrastructure: infra,
		Services:       svc,
	}, nil
}

// Close drains background tasks, stops the queues and releases the ledger.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Services.Dispatcher != nil {
		if err := c.Services.Dispatcher.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher: %w", err))
		}
	}
	for _, queue := range []jobs.Queue{c.Infrastructure.InvoiceQueue, c.Infrastructure.EmailQueue} {
		if s, ok := queue.(interface{ Shutdown(context.Context) error }); ok {
			if err := s.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("queue: %w", err))
			}
		}
	}
	if c.Infrastructure.Ledger != nil {
		if err := c.Infrastructure.Ledger.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ledger: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RunWorkers consumes the invoice and email queues until ctx is cancelled. Jobs that fail with a
// non-retryable error are not redelivered, and an invoice job that runs out of attempts marks the
// order invoice FAILED.
func (c *Container) RunWorkers(ctx context.Context) error {
	if c.Services.Invoices == nil || c.Services.Emails == nil {
		return errors.New("workers are not configured")
	}
	logger := c.Infrastructure.Logger.Named("worker")
	jobsCfg := c.Config.Jobs

	invoices := c.Services.Invoices
	emails := c.Services.Emails

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		handler := jobs.InvoiceHandler(func(ctx context.Context, job domain.InvoiceJob) error {
			return classify(invoices.Handle(ctx, job))
		})
		return c.Infrastructure.InvoiceQueue.Consume(gctx, handler, jobs.ConsumeOptions{
			Concurrency: jobsCfg.InvoiceConcurrency,
			OnExhausted: func(ctx context.Context, job jobs.Job, cause error) {
				var payload domain.InvoiceJob
				if err := job.Decode(&payload); err != nil {
					logger.Error("decode exhausted invoice job", zap.String("jobId", job.ID), zap.Error(err))
					return
				}
				if err := invoices.MarkFailed(ctx, payload, cause); err != nil {
					logger.Error("mark invoice failed", zap.String("orderId", payload.OrderID), zap.Error(err))
				}
			},
		})
	})
	g.Go(func() error {
		handler := jobs.EmailHandler(func(ctx context.Context, job domain.EmailJob) error {
			return classify(emails.Handle(ctx, job))
		})
		return c.Infrastructure.EmailQueue.Consume(gctx, handler, jobs.ConsumeOptions{
			Concurrency: jobsCfg.EmailConcurrency,
			OnExhausted: func(_ context.Context, job jobs.Job, cause error) {
				logger.Warn("email job exhausted", zap.String("jobId", job.ID), zap.String("key", job.Key), zap.Error(cause))
			},
		})
	})

	logger.Info("workers started",
		zap.Int("invoiceConcurrency", jobsCfg.InvoiceConcurrency),
		zap.Int("emailConcurrency", jobsCfg.EmailConcurrency))
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func classify(err error) error {
	if err != nil && !services.IsRetryable(err) {
		return jobs.Permanent(err)
	}
	return err
}

// NewPaymentGateway registers every gateway with credentials and routes currencies between them.
func NewPaymentGateway(cfg config.PaymentsConfig, logger *zap.Logger) (*payments.Manager, error) {
	gateways := make(map[string]payments.Gateway, 2)
	if strings.TrimSpace(cfg.RazorpayKeyID) != "" {
		razorpay, err := payments.NewRazorpayGateway(payments.RazorpayConfig{
			KeyID:     cfg.RazorpayKeyID,
			KeySecret: cfg.RazorpayKeySecret,
			Logger:    payments.Logger(observability.EventLogger(logger, "razorpay")),
		})
		if err != nil {
			return nil, fmt.Errorf("build razorpay gateway: %w", err)
		}
		gateways[payments.ProviderRazorpay] = razorpay
	}
	if strings.TrimSpace(cfg.StripeAPIKey) != "" {
		stripe, err := payments.NewStripeGateway(payments.StripeConfig{
			APIKey:    cfg.StripeAPIKey,
			AccountID: cfg.StripeAccountID,
			Logger:    payments.Logger(observability.EventLogger(logger, "stripe")),
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe gateway: %w", err)
		}
		gateways[payments.ProviderStripe] = stripe
	}
	return payments.NewManager(gateways, payments.WithCurrencyRoutes(cfg.CurrencyRoutes))
}

func buildServices(_ context.Context, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services
	clock := time.Now
	logger := infra.Logger

	svc.Dispatcher = services.NewDispatcher(services.DispatcherDeps{
		Timeout: cfg.Server.ShutdownTimeout,
		Logger:  observability.EventLogger(logger, "dispatcher"),
	})

	stock, err := services.NewStockEngine(infra.Ledger)
	if err != nil {
		return Services{}, fmt.Errorf("build stock engine: %w", err)
	}
	charges := services.NewChargesCalculator(chargesPolicy(cfg.Charges), clock)

	cart, err := services.NewCartService(services.CartServiceDeps{
		Ledger:  infra.Ledger,
		Charges: charges,
		Clock:   clock,
		Logger:  observability.EventLogger(logger, "cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cart

	assembler, err := services.NewOrderAssembler(services.OrderAssemblerDeps{
		Ledger:  infra.Ledger,
		Stock:   stock,
		Charges: charges,
		Clock:   clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order assembler: %w", err)
	}

	var verifier services.PaymentVerifier
	if secret := strings.TrimSpace(cfg.Payments.SigningSecret); secret != "" {
		v, err := payments.NewVerifier(secret)
		if err != nil {
			return Services{}, fmt.Errorf("build payment verifier: %w", err)
		}
		verifier = v
	}

	var invoicePublisher services.InvoiceQueue
	var emailPublisher services.EmailQueue
	if infra.InvoiceQueue != nil {
		p, err := jobs.NewInvoicePublisher(infra.InvoiceQueue, cfg.Jobs.InvoiceAttempts, cfg.Jobs.InvoiceBackoff)
		if err != nil {
			return Services{}, fmt.Errorf("build invoice publisher: %w", err)
		}
		invoicePublisher = p
	}
	if infra.EmailQueue != nil {
		p, err := jobs.NewEmailPublisher(infra.EmailQueue, cfg.Jobs.EmailAttempts, cfg.Jobs.EmailBackoff)
		if err != nil {
			return Services{}, fmt.Errorf("build email publisher: %w", err)
		}
		emailPublisher = p
	}

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Ledger:     infra.Ledger,
		Orders:     infra.Orders,
		Assembler:  assembler,
		Stock:      stock,
		Verifier:   verifier,
		Gateway:    infra.Gateway,
		Invoices:   invoicePublisher,
		Emails:     emailPublisher,
		Notifier:   infra.Notifier,
		Dispatcher: svc.Dispatcher,
		Currency:   cfg.Payments.Currency,
		StoreName:  cfg.Mail.StoreName,
		Clock:      clock,
		Logger:     observability.EventLogger(logger, "orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	if infra.Store != nil && emailPublisher != nil {
		renderer := invoice.NewRenderer(invoice.WithStoreName(cfg.Mail.StoreName), invoice.WithClock(clock))
		worker, err := services.NewInvoiceWorker(services.InvoiceWorkerDeps{
			Ledger:    infra.Ledger,
			Renderer:  renderer,
			Store:     infra.Store,
			Emails:    emailPublisher,
			Notifier:  infra.Notifier,
			TempDir:   cfg.Jobs.TempDir,
			StoreName: cfg.Mail.StoreName,
			Clock:     clock,
			Logger:    observability.EventLogger(logger, "invoice_worker"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build invoice worker: %w", err)
		}
		svc.Invoices = worker
	}
	if infra.Mailer != nil && infra.Store != nil {
		worker, err := services.NewEmailWorker(services.EmailWorkerDeps{
			Mailer: infra.Mailer,
			Store:  infra.Store,
			Logger: observability.EventLogger(logger, "email_worker"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build email worker: %w", err)
		}
		svc.Emails = worker
	}

	if len(infra.HealthChecks) > 0 {
		healthRepo, err := repositories.NewDependencyHealthRepository(infra.HealthChecks)
		if err != nil {
			return Services{}, fmt.Errorf("build health repository: %w", err)
		}
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            infra.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}

func chargesPolicy(cfg config.ChargesConfig) domain.ChargesPolicy {
	return domain.ChargesPolicy{
		FlatTax:               cfg.FlatTax,
		HandlingCharge:        cfg.HandlingCharge,
		DeliveryCharge:        cfg.DeliveryCharge,
		FreeDeliveryThreshold: cfg.FreeDeliveryThreshold,
	}
}
