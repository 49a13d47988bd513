package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/closetline/api/internal/di"
	"github.com/closetline/api/internal/handlers"
	"github.com/closetline/api/internal/payments"
	"github.com/closetline/api/internal/platform/auth"
	"github.com/closetline/api/internal/platform/config"
	pfirestore "github.com/closetline/api/internal/platform/firestore"
	"github.com/closetline/api/internal/platform/idempotency"
	"github.com/closetline/api/internal/platform/jobs"
	"github.com/closetline/api/internal/platform/observability"
	"github.com/closetline/api/internal/platform/secrets"
	platformstorage "github.com/closetline/api/internal/platform/storage"
	"github.com/closetline/api/internal/repositories"
	firestoreRepo "github.com/closetline/api/internal/repositories/firestore"
	rediscache "github.com/closetline/api/internal/repositories/redis"
	"github.com/closetline/api/internal/services"
)

const (
	credentialRateLimit  = 10
	credentialRateWindow = time.Minute
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	metrics := observability.NewMetrics()

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	checks := []repositories.DependencyCheck{{
		Name:     "firestore",
		Timeout:  1500 * time.Millisecond,
		Critical: true,
		Check:    firestoreProvider.Ping,
	}}

	var registryOpts []firestoreRepo.RegistryOption
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cacheLogger := logger.Named("product_cache")
		registryOpts = append(registryOpts, firestoreRepo.WithProductDecorator(
			func(next repositories.ProductRepository) repositories.ProductRepository {
				cache, err := rediscache.NewProductCache(next, redisClient,
					rediscache.WithTTL(cfg.Redis.ProductTTL),
					rediscache.WithLogger(cacheLogger),
				)
				if err != nil {
					cacheLogger.Warn("product cache disabled", zap.Error(err))
					return next
				}
				return cache
			},
			func(context.Context) error { return redisClient.Close() },
		))
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}
	registryOpts = append(registryOpts, firestoreRepo.WithHealthRepository(healthRepo))

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, registryOpts...)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	tokens, err := auth.NewJWTIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatal("failed to initialise token issuer", zap.Error(err))
	}

	infra := di.Infrastructure{
		Tokens:  tokens,
		Metrics: metrics,
		Logger:  logger,
		Build:   buildInfo,
		Clock:   time.Now,
	}

	if bucket := strings.TrimSpace(cfg.Storage.ProductImagesBucket); bucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx, googleClientOptions(cfg)...)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		uploader, err := platformstorage.NewGCSUploader(
			platformstorage.NewGCSStore(storageClient),
			bucket,
			platformstorage.WithPublicBaseURL(cfg.Storage.PublicBaseURL),
		)
		if err != nil {
			logger.Fatal("failed to initialise image uploader", zap.Error(err))
		}
		infra.Uploader = uploader
	} else {
		logger.Warn("storage: product image bucket not configured; image uploads disabled")
	}

	if topicName := strings.TrimSpace(cfg.PubSub.OrderEventsTopic); topicName != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, googleClientOptions(cfg)...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		publisher, err := jobs.NewPubSubOrderEventPublisher(pubsubClient.Topic(topicName))
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		defer func() {
			publisher.Stop()
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		infra.Events = publisher
	}

	if strings.TrimSpace(cfg.PSP.StripeAPIKey) != "" {
		gateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
			APIKey:             cfg.PSP.StripeAPIKey,
			WebhookSecret:      cfg.PSP.StripeWebhookSecret,
			Currency:           cfg.PSP.StripeCurrency,
			BreakerMaxFailures: cfg.PSP.BreakerMaxFailures,
			BreakerOpenTimeout: cfg.PSP.BreakerOpenTimeout,
			Logger:             payments.StripeLogger(observability.ServiceLogger(logger.Named("payments"))),
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe gateway", zap.Error(err))
		}
		infra.Gateway = gateway
	} else {
		logger.Warn("payments: stripe api key not configured; card checkout disabled")
	}

	container, err := di.NewContainer(cfg, registry, infra)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()
	svc := container.Services

	authenticator := auth.NewAuthenticator(buildTokenVerifier(ctx, logger.Named("auth"), cfg, tokens))

	idempotencyStore := idempotency.NewFirestoreStore(firestoreProvider)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			runIdempotencyCleanup(cleanupCtx, logger.Named("idempotency"), idempotencyStore, cfg.Idempotency)
		}()
	}

	userHandlers := handlers.NewUserHandlers(authenticator, svc.Users,
		handlers.WithCredentialRateLimit(credentialRateLimit, credentialRateWindow, time.Now),
	)
	productHandlers := handlers.NewProductHandlers(authenticator, svc.Catalog)
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Cart)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, svc.Checkout,
		handlers.WithCheckoutIdempotency(idempotencyMiddleware),
	)
	webhookHandlers := handlers.NewPaymentWebhookHandlers(svc.Webhooks)

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(buildInfo)}
	if svc.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(svc.System))
	}
	healthHandlers := handlers.NewHealthHandlers(healthOpts...)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		observability.MetricsMiddleware(metrics),
	}

	router := handlers.NewRouter(
		handlers.WithBasePath(cfg.Server.BasePath),
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(metrics.Handler()),
		handlers.WithUserRoutes(userHandlers.Routes),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes, checkoutHandlers.Routes, webhookHandlers.Routes),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("closetline api listening", zap.String("basePath", cfg.Server.BasePath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildTokenVerifier accepts locally issued tokens and, when a Firebase project is configured,
// Firebase ID tokens as a fallback.
func buildTokenVerifier(ctx context.Context, logger *zap.Logger, cfg config.Config, tokens *auth.JWTIssuer) auth.TokenVerifier {
	if strings.TrimSpace(cfg.Firebase.ProjectID) == "" {
		return tokens
	}
	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Warn("auth: firebase verifier unavailable; accepting local tokens only", zap.Error(err))
		return tokens
	}
	return auth.ChainVerifier{tokens, firebaseVerifier}
}

func runIdempotencyCleanup(ctx context.Context, logger *zap.Logger, store *idempotency.FirestoreStore, cfg config.IdempotencyConfig) {
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := store.CleanupExpired(runCtx, time.Now().UTC(), cfg.CleanupBatchSize)
			cancel()
			if err != nil {
				logger.Error("idempotency cleanup error", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

func googleClientOptions(cfg config.Config) []option.ClientOption {
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
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

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRET_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
		secrets.WithMeter(otel.Meter("github.com/closetline/api/secrets")),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets that must resolve before boot. Local environments only
// need the token signing key; deployed ones also need the payment credentials.
func requiredSecretNames(env map[string]string) []string {
	required := []string{"Auth.JWTSecret"}

	environment := strings.ToLower(strings.TrimSpace(env["API_SECURITY_ENVIRONMENT"]))
	if environment != "" && environment != "local" {
		required = append(required,
			"PSP.StripeAPIKey",
			"PSP.StripeWebhookSecret",
			"Admin.Password",
		)
	}
	if strings.TrimSpace(env["API_REDIS_PASSWORD"]) != "" {
		required = append(required, "Redis.Password")
	}
	return uniqueStrings(required)
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
