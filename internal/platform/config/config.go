package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile               = ".env"
	defaultMode                  = ModeFirestore
	defaultPort                  = "8080"
	defaultReadTimeout           = 15 * time.Second
	defaultWriteTimeout          = 30 * time.Second
	defaultIdleTimeout           = 120 * time.Second
	defaultShutdownTimeout       = 20 * time.Second
	defaultInvoiceTopic          = "invoice-jobs"
	defaultEmailTopic            = "email-jobs"
	defaultNotificationTopic     = "notifications"
	defaultCurrency              = "INR"
	defaultJobAttempts           = 3
	defaultJobBackoff            = 5 * time.Second
	defaultInvoiceConcurrency    = 5
	defaultEmailConcurrency      = 10
	defaultSMTPPort              = 587
	defaultStoreName             = "DSport"
	defaultRealtimeSendBuffer    = 16
	defaultRealtimePingInterval  = 30 * time.Second
	defaultRateLimitDefault      = 120
	defaultRateLimitOrders       = 20
	defaultSecurityEnvironment   = "local"
	defaultOIDCJWKSURL           = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer        = "https://accounts.google.com"
	defaultSecurityIAPIssuer     = "https://cloud.google.com/iap"
	defaultIdempotencyHeader     = "Idempotency-Key"
	defaultIdempotencyTTL        = 24 * time.Hour
	defaultIdempotencyInterval   = time.Hour
	defaultIdempotencyBatchSize  = 200
	defaultFlatTax               = 1800
	defaultDeliveryCharge        = 5000
	defaultFreeDeliveryThreshold = 50000
)

// Backend modes.
const (
	ModeFirestore = "firestore"
	ModeMemory    = "memory"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Mode        string
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	PubSub      PubSubConfig
	Payments    PaymentsConfig
	Charges     ChargesConfig
	Jobs        JobsConfig
	Mail        MailConfig
	Realtime    RealtimeConfig
	RateLimits  RateLimitConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	// CheckRevoked asks Firebase whether the session behind each ID token was revoked. It costs
	// one Admin SDK call per request.
	CheckRevoked bool
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig names the invoice bucket. LocalDir backs the in-memory mode.
type StorageConfig struct {
	InvoiceBucket string
	PublicBaseURL string
	LocalDir      string
}

// PubSubConfig names the topics and subscriptions of the job queues.
type PubSubConfig struct {
	ProjectID                string
	EmulatorHost             string
	InvoiceTopic             string
	InvoiceSubscription      string
	EmailTopic               string
	EmailSubscription        string
	NotificationTopic        string
	NotificationSubscription string
}

// PaymentsConfig collects gateway credentials. SigningSecret verifies checkout signatures and
// defaults to the Razorpay key secret.
type PaymentsConfig struct {
	Currency          string
	RazorpayKeyID     string
	RazorpayKeySecret string
	StripeAPIKey      string
	StripeAccountID   string
	SigningSecret     string
	CurrencyRoutes    map[string]string
}

// ChargesConfig overrides the order charge policy, in minor units.
type ChargesConfig struct {
	FlatTax               int64
	HandlingCharge        int64
	DeliveryCharge        int64
	FreeDeliveryThreshold int64
}

// JobsConfig controls the background job consumers.
type JobsConfig struct {
	InvoiceAttempts    int
	InvoiceBackoff     time.Duration
	InvoiceConcurrency int
	EmailAttempts      int
	EmailBackoff       time.Duration
	EmailConcurrency   int
	TempDir            string
}

// MailConfig configures outbound SMTP delivery.
type MailConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	StoreName string
}

// RealtimeConfig controls the websocket hub.
type RealtimeConfig struct {
	AllowedOrigins []string
	SendBuffer     int
	PingInterval   time.Duration
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	DefaultPerMinute int
	OrdersPerMinute  int
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification.
type OIDCConfig struct {
	JWKSURL   string
	Audience  string
	Audiences map[string]string
	Issuers   []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	secrets []missingSecret
}

type missingSecret struct {
	name     string
	redacted string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns the hashed secret identifiers, safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.redacted)
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.name)
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// EnvironmentValues returns the effective key/value environment map after applying the same
// precedence rules as Load (dotenv < OS env < explicit env map). Callers use it to initialise the
// secret fetcher before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(dotEnv))
	for key, value := range dotEnv {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[key] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map take
// precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory. Identifiers match the
// config field names recorded by the loader (e.g. "Payments.RazorpayKeySecret").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnv[key]
		return value, ok
	}

	cfg := Config{
		Mode: strings.ToLower(stringWithDefault(lookup, "API_MODE", defaultMode)),
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
			CheckRevoked:    boolWithDefault(lookup, "API_FIREBASE_CHECK_REVOKED", false),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			InvoiceBucket: stringWithDefault(lookup, "API_STORAGE_INVOICE_BUCKET", ""),
			PublicBaseURL: stringWithDefault(lookup, "API_STORAGE_PUBLIC_BASE_URL", ""),
			LocalDir:      stringWithDefault(lookup, "API_STORAGE_LOCAL_DIR", filepath.Join(os.TempDir(), "dsport-invoices")),
		},
		PubSub: PubSubConfig{
			ProjectID:                stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			EmulatorHost:             stringWithDefault(lookup, "API_PUBSUB_EMULATOR_HOST", ""),
			InvoiceTopic:             stringWithDefault(lookup, "API_PUBSUB_INVOICE_TOPIC", defaultInvoiceTopic),
			InvoiceSubscription:      stringWithDefault(lookup, "API_PUBSUB_INVOICE_SUBSCRIPTION", defaultInvoiceTopic+"-worker"),
			EmailTopic:               stringWithDefault(lookup, "API_PUBSUB_EMAIL_TOPIC", defaultEmailTopic),
			EmailSubscription:        stringWithDefault(lookup, "API_PUBSUB_EMAIL_SUBSCRIPTION", defaultEmailTopic+"-worker"),
			NotificationTopic:        stringWithDefault(lookup, "API_PUBSUB_NOTIFICATION_TOPIC", defaultNotificationTopic),
			NotificationSubscription: stringWithDefault(lookup, "API_PUBSUB_NOTIFICATION_SUBSCRIPTION", defaultNotificationTopic+"-api"),
		},
		Payments: PaymentsConfig{
			Currency:          strings.ToUpper(stringWithDefault(lookup, "API_PAYMENTS_CURRENCY", defaultCurrency)),
			RazorpayKeyID:     stringWithDefault(lookup, "API_PAYMENTS_RAZORPAY_KEY_ID", ""),
			RazorpayKeySecret: stringWithDefault(lookup, "API_PAYMENTS_RAZORPAY_KEY_SECRET", ""),
			StripeAPIKey:      stringWithDefault(lookup, "API_PAYMENTS_STRIPE_API_KEY", ""),
			StripeAccountID:   stringWithDefault(lookup, "API_PAYMENTS_STRIPE_ACCOUNT_ID", ""),
			SigningSecret:     stringWithDefault(lookup, "API_PAYMENTS_SIGNING_SECRET", ""),
			CurrencyRoutes:    mapWithDefault(lookup, "API_PAYMENTS_CURRENCY_ROUTES"),
		},
		Charges: ChargesConfig{
			FlatTax:               int64WithDefault(lookup, "API_CHARGES_FLAT_TAX", defaultFlatTax),
			HandlingCharge:        int64WithDefault(lookup, "API_CHARGES_HANDLING", 0),
			DeliveryCharge:        int64WithDefault(lookup, "API_CHARGES_DELIVERY", defaultDeliveryCharge),
			FreeDeliveryThreshold: int64WithDefault(lookup, "API_CHARGES_FREE_DELIVERY_ABOVE", defaultFreeDeliveryThreshold),
		},
		Jobs: JobsConfig{
			InvoiceAttempts:    intWithDefault(lookup, "API_JOBS_INVOICE_ATTEMPTS", defaultJobAttempts),
			InvoiceBackoff:     durationWithDefault(lookup, "API_JOBS_INVOICE_BACKOFF", defaultJobBackoff),
			InvoiceConcurrency: intWithDefault(lookup, "API_JOBS_INVOICE_CONCURRENCY", defaultInvoiceConcurrency),
			EmailAttempts:      intWithDefault(lookup, "API_JOBS_EMAIL_ATTEMPTS", defaultJobAttempts),
			EmailBackoff:       durationWithDefault(lookup, "API_JOBS_EMAIL_BACKOFF", defaultJobBackoff),
			EmailConcurrency:   intWithDefault(lookup, "API_JOBS_EMAIL_CONCURRENCY", defaultEmailConcurrency),
			TempDir:            stringWithDefault(lookup, "API_JOBS_TEMP_DIR", os.TempDir()),
		},
		Mail: MailConfig{
			Host:      stringWithDefault(lookup, "API_MAIL_SMTP_HOST", ""),
			Port:      intWithDefault(lookup, "API_MAIL_SMTP_PORT", defaultSMTPPort),
			Username:  stringWithDefault(lookup, "API_MAIL_SMTP_USER", ""),
			Password:  stringWithDefault(lookup, "API_MAIL_SMTP_PASSWORD", ""),
			From:      stringWithDefault(lookup, "API_MAIL_FROM", ""),
			StoreName: stringWithDefault(lookup, "API_MAIL_STORE_NAME", defaultStoreName),
		},
		Realtime: RealtimeConfig{
			AllowedOrigins: csvWithDefault(lookup, "API_REALTIME_ALLOWED_ORIGINS"),
			SendBuffer:     intWithDefault(lookup, "API_REALTIME_SEND_BUFFER", defaultRealtimeSendBuffer),
			PingInterval:   durationWithDefault(lookup, "API_REALTIME_PING_INTERVAL", defaultRealtimePingInterval),
		},
		RateLimits: RateLimitConfig{
			DefaultPerMinute: intWithDefault(lookup, "API_RATELIMIT_DEFAULT_PER_MIN", defaultRateLimitDefault),
			OrdersPerMinute:  intWithDefault(lookup, "API_RATELIMIT_ORDERS_PER_MIN", defaultRateLimitOrders),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:   stringWithDefault(lookup, "API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:  stringWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCE", ""),
				Audiences: mapWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCES"),
				Issuers:   csvWithDefault(lookup, "API_SECURITY_OIDC_ISSUERS"),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}

	// Firestore and Pub/Sub default to the Firebase project.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}

	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer, defaultSecurityIAPIssuer}
	}
	if cfg.Security.OIDC.Audience == "" {
		if audience, ok := cfg.Security.OIDC.Audiences[cfg.Security.Environment]; ok {
			cfg.Security.OIDC.Audience = audience
		}
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Payments.RazorpayKeySecret", &cfg.Payments.RazorpayKeySecret},
		{"Payments.StripeAPIKey", &cfg.Payments.StripeAPIKey},
		{"Payments.SigningSecret", &cfg.Payments.SigningSecret},
		{"Mail.Password", &cfg.Mail.Password},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if cfg.Payments.SigningSecret == "" {
		cfg.Payments.SigningSecret = cfg.Payments.RazorpayKeySecret
		resolved["Payments.SigningSecret"] = strings.TrimSpace(cfg.Payments.SigningSecret)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	switch cfg.Mode {
	case ModeFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
		if cfg.Storage.InvoiceBucket == "" {
			missing = append(missing, "Storage.InvoiceBucket")
		}
		if cfg.PubSub.ProjectID == "" {
			missing = append(missing, "PubSub.ProjectID")
		}
	case ModeMemory:
		if cfg.Storage.LocalDir == "" {
			missing = append(missing, "Storage.LocalDir")
		}
	default:
		missing = append(missing, "Mode")
	}

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	if len(cfg.Payments.Currency) != 3 {
		missing = append(missing, "Payments.Currency")
	}
	if cfg.Charges.FlatTax < 0 || cfg.Charges.HandlingCharge < 0 || cfg.Charges.DeliveryCharge < 0 {
		missing = append(missing, "Charges")
	}
	if cfg.Jobs.InvoiceAttempts <= 0 || cfg.Jobs.EmailAttempts <= 0 {
		missing = append(missing, "Jobs.Attempts")
	}
	if cfg.Jobs.InvoiceConcurrency <= 0 || cfg.Jobs.EmailConcurrency <= 0 {
		missing = append(missing, "Jobs.Concurrency")
	}
	if cfg.Realtime.SendBuffer <= 0 {
		missing = append(missing, "Realtime.SendBuffer")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		missing = append(missing, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []missingSecret
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if resolved[trimmed] != "" {
			continue
		}
		missing = append(missing, missingSecret{name: trimmed, redacted: redactSecretName(trimmed)})
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{secrets: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func mapWithDefault(lookup func(string) (string, bool), key string) map[string]string {
	values := make(map[string]string)
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return values
	}
	for _, entry := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if name == "" || value == "" {
			continue
		}
		values[name] = value
	}
	return values
}
