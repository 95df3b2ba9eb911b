package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"

	"github.com/gitshopapp/dropship/internal/aws"
	"github.com/gitshopapp/dropship/internal/cache"
	"github.com/gitshopapp/dropship/internal/carrier"
	"github.com/gitshopapp/dropship/internal/catalog"
	"github.com/gitshopapp/dropship/internal/config"
	"github.com/gitshopapp/dropship/internal/db"
	"github.com/gitshopapp/dropship/internal/documents"
	"github.com/gitshopapp/dropship/internal/email"
	"github.com/gitshopapp/dropship/internal/fulfillment"
	"github.com/gitshopapp/dropship/internal/githubapp"
	"github.com/gitshopapp/dropship/internal/handlers"
	"github.com/gitshopapp/dropship/internal/idempotency"
	"github.com/gitshopapp/dropship/internal/logging"
	"github.com/gitshopapp/dropship/internal/parts"
	"github.com/gitshopapp/dropship/internal/secrets"
	"github.com/gitshopapp/dropship/internal/storage"
	"github.com/gitshopapp/dropship/internal/storefront"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	Handlers      *handlers.Handlers
	sentryEnabled bool
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled, err := initSentry(cfg)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, sentryEnabled)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(startupCtx, database); err != nil {
		database.Close()
		return nil, err
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	a := &App{
		Config:        cfg,
		Logger:        logger,
		DB:            database,
		CacheProvider: cacheProvider,
		sentryEnabled: sentryEnabled,
	}
	if err := a.wire(startupCtx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config
	logger := a.Logger

	sealer, err := secrets.NewSealer(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize sealer: %w", err)
	}
	fulfillmentStore, err := db.NewFulfillmentStore(a.DB, sealer)
	if err != nil {
		return fmt.Errorf("failed to initialize fulfillment store: %w", err)
	}
	store, err := fulfillment.NewPostgresStore(fulfillmentStore)
	if err != nil {
		return err
	}

	services, err := catalog.Load(cfg.CarrierCatalog)
	if err != nil {
		return fmt.Errorf("failed to load carrier catalog: %w", err)
	}
	labels := carrier.NewClient(carrier.Config{
		BaseURL: cfg.LabelAPIBaseURL,
		APIKey:  cfg.LabelAPIKey,
	}, services, nil)

	generator, err := documents.NewGenerator(
		documents.NewChromeRenderer(cfg.ChromeExecPath, time.Duration(cfg.DocumentTimeout)*time.Second),
		logger.With("component", "documents"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize document generator: %w", err)
	}

	objects, err := storage.NewProvider(ctx, storage.Config{
		Provider:             cfg.StorageProvider,
		LocalRoot:            cfg.StorageLocalRoot,
		DriveFolderID:        cfg.DriveFolderID,
		DriveCredentialsFile: cfg.DriveCredentialsFile,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	emailProvider, err := email.NewProvider(email.Config{
		Provider: cfg.EmailProvider,
		APIKey:   cfg.EmailAPIKey,
		From:     cfg.EmailFrom,
		Domain:   cfg.EmailDomain,
		BaseURL:  cfg.EmailBaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize email provider: %w", err)
	}
	if err := emailProvider.ValidateAPIKey(ctx); err != nil {
		logger.Warn("email provider rejected the configured API key", "provider", cfg.EmailProvider, "error", err)
	}
	notifier, err := email.NewBundleSender(emailProvider, logger.With("component", "email"))
	if err != nil {
		return fmt.Errorf("failed to initialize email sender: %w", err)
	}

	var awsClients *aws.Clients
	if cfg.StorefrontRetryQueueURL != "" || cfg.IdempotencyProvider == "dynamodb" {
		awsClients, err = aws.NewClients(ctx, cfg.AWSRegion)
		if err != nil {
			return fmt.Errorf("failed to initialize AWS clients: %w", err)
		}
	}

	storefrontSync, err := newStorefront(cfg, awsClients, logger)
	if err != nil {
		return err
	}

	resolver := parts.NewResolver(
		db.NewPartStore(a.DB),
		logger.With("component", "parts"),
		parts.WithCache(a.CacheProvider, time.Duration(cfg.PartCacheSeconds)*time.Second),
		parts.WithDelimiters(cfg.PartDelimiters),
	)

	orchestrator, err := fulfillment.New(fulfillment.Dependencies{
		Store:      store,
		Documents:  generator,
		Labels:     labels,
		Objects:    objects,
		Notifier:   notifier,
		Storefront: storefrontSync,
		Parts:      resolver,
		Services:   services,
	}, fulfillment.Settings{
		ShipFrom:          cfg.ShipFrom(),
		CompanyName:       cfg.CompanyName,
		LogoPath:          cfg.LogoPath,
		POFloor:           cfg.POFloor,
		WarehouseEmail:    cfg.WarehouseEmail,
		ShippedStatusCode: cfg.ShippedStatus,
	}, logger.With("component", "fulfillment"))
	if err != nil {
		return fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	ttl := time.Duration(cfg.IdempotencyTTLMinutes) * time.Minute
	var keys idempotency.Store
	switch cfg.IdempotencyProvider {
	case "dynamodb":
		keys = idempotency.NewDynamoStore(awsClients.DynamoDB, cfg.IdempotencyTable, ttl)
	default:
		keys = idempotency.NewCacheStore(a.CacheProvider, ttl)
	}

	tokens, err := handlers.NewTokenVerifier(cfg.AdminJWTSecret)
	if err != nil {
		return err
	}

	a.Handlers, err = handlers.New(handlers.Dependencies{
		DB:          a.DB,
		Fulfiller:   orchestrator,
		Idempotency: keys,
		Tokens:      tokens,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize handlers: %w", err)
	}
	return nil
}

func newStorefront(cfg *config.Config, awsClients *aws.Clients, logger *slog.Logger) (fulfillment.StorefrontSync, error) {
	var backend storefront.Sync
	switch cfg.StorefrontProvider {
	case "github":
		auth, err := githubapp.NewAuth(cfg.GitHubAppID, cfg.GitHubPrivateKeyBase64)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GitHub auth: %w", err)
		}
		client := githubapp.NewClient(auth, logger.With("component", "github_client")).WithInstallation(cfg.GitHubInstallationID)
		backend = storefront.NewGitHubIssues(client, logger.With("component", "storefront"))
	default:
		backend = storefront.NewNoop(logger.With("component", "storefront"))
	}

	if cfg.StorefrontRetryQueueURL != "" && awsClients != nil {
		publisher := aws.NewPublisher(awsClients.SQS, cfg.StorefrontRetryQueueURL)
		backend = storefront.NewRetrying(backend, publisher, logger.With("component", "storefront_retry"))
	}
	return backend, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.sentryEnabled {
		sentry.Flush(2 * time.Second)
	}
}

func initSentry(cfg *config.Config) (bool, error) {
	if strings.TrimSpace(cfg.SentryDSN) == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.Env,
		EnableTracing:    true,
		TracesSampleRate: 0.2,
		EnableLogs:       true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return true, nil
}

func newLogger(cfg *config.Config, withSentry bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var console slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "json":
		console = slog.NewJSONHandler(os.Stdout, opts)
	default:
		console = tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel})
	}
	if !withSentry {
		return slog.New(console)
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn},
	}.NewSentryHandler(context.Background())
	return slog.New(logging.MultiHandler(console, sentryHandler))
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
