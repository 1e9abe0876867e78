package di

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Abhranil-01/dsport-backend-api/internal/platform/config"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/secrets"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
	"github.com/Abhranil-01/dsport-backend-api/internal/services"
)

const secretHealthReference = "secret://system/healthz?version=latest"

// Runtime is the configuration and secret access shared by the binaries.
type Runtime struct {
	Config  config.Config
	Env     map[string]string
	Secrets *secrets.Fetcher
}

// LoadRuntime reads the environment, opens the secret fetcher and resolves the configuration.
// A *config.MissingSecretsError is returned unwrapped so callers can log the redacted names.
func LoadRuntime(ctx context.Context, logger *zap.Logger, opts ...config.Option) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	env, err := config.EnvironmentValues(opts...)
	if err != nil {
		return nil, fmt.Errorf("read environment values: %w", err)
	}
	fetcher, err := newSecretFetcher(ctx, logger, env)
	if err != nil {
		return nil, fmt.Errorf("initialise secret fetcher: %w", err)
	}

	loadOpts := append([]config.Option{}, opts...)
	loadOpts = append(loadOpts,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(env)...),
	)
	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		_ = fetcher.Close()
		return nil, err
	}
	return &Runtime{Config: cfg, Env: env, Secrets: fetcher}, nil
}

// Close releases the secret fetcher.
func (r *Runtime) Close() error {
	if r == nil || r.Secrets == nil {
		return nil
	}
	return r.Secrets.Close()
}

// BuildInfo reports the version stamped into the environment at deploy time.
func (r *Runtime) BuildInfo(started time.Time) services.BuildInfo {
	version := strings.TrimSpace(r.Env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(r.Env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(r.Config.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

// SecretManagerCheck pings Secret Manager. A missing check secret still proves connectivity.
func (r *Runtime) SecretManagerCheck() repositories.DependencyCheck {
	fetcher := r.Secrets
	return repositories.DependencyCheck{
		Name:    "secretManager",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, secretHealthReference)
			if err == nil {
				return nil
			}
			if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
				return nil
			}
			return err
		},
	}
}

// TraceProjectID is the project Cloud Trace headers are attributed to.
func (r *Runtime) TraceProjectID() string {
	if id := strings.TrimSpace(r.Config.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(r.Config.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectMap := secretProjectMap(lookup("API_SECRET_PROJECT_IDS")); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets the configured integrations cannot run without.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.TrimSpace(env["API_PAYMENTS_RAZORPAY_KEY_ID"]) != "" {
		required = append(required, "Payments.RazorpayKeySecret", "Payments.SigningSecret")
	}
	if strings.TrimSpace(env["API_PAYMENTS_STRIPE_ACCOUNT_ID"]) != "" {
		required = append(required, "Payments.StripeAPIKey")
	}
	if strings.TrimSpace(env["API_MAIL_SMTP_USER"]) != "" {
		required = append(required, "Mail.Password")
	}
	return uniqueStrings(required)
}

// secretProjectMap parses "env=project" pairs, keyed by lower-cased environment label.
func secretProjectMap(raw string) map[string]string {
	projects := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(parts) != 2 {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if label == "" || project == "" {
			continue
		}
		projects[label] = project
	}
	return projects
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
