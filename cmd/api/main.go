package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/wahret-zmen/api/internal/handlers"
	"github.com/wahret-zmen/api/internal/platform/auth"
	"github.com/wahret-zmen/api/internal/platform/config"
	pfirestore "github.com/wahret-zmen/api/internal/platform/firestore"
	"github.com/wahret-zmen/api/internal/platform/jobs"
	"github.com/wahret-zmen/api/internal/platform/mail"
	"github.com/wahret-zmen/api/internal/platform/observability"
	"github.com/wahret-zmen/api/internal/platform/secrets"
	platformstorage "github.com/wahret-zmen/api/internal/platform/storage"
	firestoreRepo "github.com/wahret-zmen/api/internal/repositories/firestore"
	"github.com/wahret-zmen/api/internal/services"
)

func main() {
	ctx := context.Background()

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

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise firestore repositories", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	stockPublisher, stopPublisher, err := newStockEventPublisher(ctx, cfg.Jobs)
	if err != nil {
		logger.Fatal("failed to initialise stock event publisher", zap.Error(err))
	}
	if stopPublisher != nil {
		defer stopPublisher()
	}

	ledgerDeps := services.StockLedgerDeps{
		Products: registry.Products(),
		Clock:    time.Now,
		Logger:   newServiceLogger(logger.Named("stock")),
	}
	if stockPublisher != nil {
		ledgerDeps.Events = stockPublisher
	}
	stockLedger, err := services.NewStockLedger(ledgerDeps)
	if err != nil {
		logger.Fatal("failed to initialise stock ledger", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   registry.Orders(),
		Products: registry.Products(),
		Ledger:   stockLedger,
		Clock:    time.Now,
		Logger:   newServiceLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: registry.Products(),
		Clock:    time.Now,
		Logger:   newServiceLogger(logger.Named("catalog")),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	var notificationService services.NotificationService
	if strings.TrimSpace(cfg.Mail.SMTPHost) != "" {
		mailer, err := mail.NewSMTPSender(cfg.Mail)
		if err != nil {
			logger.Fatal("failed to initialise smtp sender", zap.Error(err))
		}
		notificationService, err = services.NewNotificationService(services.NotificationServiceDeps{
			Orders:   registry.Orders(),
			Products: registry.Products(),
			Mailer:   mailer,
			Clock:    time.Now,
			Logger:   newServiceLogger(logger.Named("notify")),
		})
		if err != nil {
			logger.Fatal("failed to initialise notification service", zap.Error(err))
		}
	} else {
		logger.Warn("smtp host not configured; order progress notifications disabled")
	}

	adminGuard, err := auth.NewAdminGuard(cfg.Security.AdminJWTSecret,
		auth.WithAdminTokenTTL(cfg.Security.AdminTokenTTL),
	)
	if err != nil {
		logger.Fatal("failed to initialise admin guard", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	imageStore := newImageStore(logger, cfg.Storage)

	orderHandlers := handlers.NewOrderHandlers(adminGuard, authenticator, orderService, notificationService)
	productHandlers := handlers.NewProductHandlers(adminGuard, catalogService)
	assetHandlers := handlers.NewAssetHandlers(adminGuard, imageStore)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithReadinessCheck(registry.Health().Ping),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithAssetRoutes(assetHandlers.Routes),
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
		serverLogger.Info("wahret-zmen api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
	}
	if project := strings.TrimSpace(os.Getenv("API_FIREBASE_PROJECT_ID")); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// newStockEventPublisher builds the Pub/Sub publisher when a topic is
// configured. The returned stop function flushes pending publishes.
func newStockEventPublisher(ctx context.Context, cfg config.JobsConfig) (*jobs.PubSubStockEventPublisher, func(), error) {
	topicID := strings.TrimSpace(cfg.StockEventsTopic)
	if topicID == "" {
		return nil, nil, nil
	}
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, nil, errors.New("jobs: project id is required when a stock events topic is set")
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("jobs: pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	publisher, err := jobs.NewPubSubStockEventPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	stop := func() {
		topic.Stop()
		_ = client.Close()
	}
	return publisher, stop, nil
}

// newImageStore wires the signed upload URL store when both the bucket and
// the signer key are configured. Asset routes answer 503 otherwise.
func newImageStore(logger *zap.Logger, cfg config.StorageConfig) *platformstorage.ImageStore {
	bucket := strings.TrimSpace(cfg.ProductImagesBucket)
	keyFile := strings.TrimSpace(cfg.SignerKeyFile)
	if bucket == "" || keyFile == "" {
		logger.Warn("product image bucket or signer key not configured; upload signing disabled")
		return nil
	}

	signer, err := platformstorage.NewServiceAccountSignerFromFile(keyFile)
	if err != nil {
		logger.Fatal("failed to load storage signer key", zap.Error(err))
	}
	store, err := platformstorage.NewImageStore(signer, bucket,
		platformstorage.WithUploadExpiry(cfg.UploadURLExpiry),
	)
	if err != nil {
		logger.Fatal("failed to initialise image store", zap.Error(err))
	}
	return store
}

func newServiceLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service log", zFields...)
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
