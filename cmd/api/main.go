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
	cloudstorage "cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/gelomax/api/internal/assistant"
	"github.com/gelomax/api/internal/domain"
	"github.com/gelomax/api/internal/fiscal"
	"github.com/gelomax/api/internal/handlers"
	"github.com/gelomax/api/internal/payments"
	"github.com/gelomax/api/internal/platform/auth"
	"github.com/gelomax/api/internal/platform/config"
	pfirestore "github.com/gelomax/api/internal/platform/firestore"
	"github.com/gelomax/api/internal/platform/idempotency"
	"github.com/gelomax/api/internal/platform/jobs"
	"github.com/gelomax/api/internal/platform/observability"
	"github.com/gelomax/api/internal/platform/secrets"
	platformstorage "github.com/gelomax/api/internal/platform/storage"
	fsrepo "github.com/gelomax/api/internal/repositories/firestore"
	"github.com/gelomax/api/internal/services"
)

const fiscalWebhookSecretName = "fiscal-webhook"

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

	fetcher, err := secrets.NewFetcher(ctx, secrets.WithLogger(logger.Named("secrets")))
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := fsrepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()

	var archiver services.InvoiceArchiver
	var invoiceLinker handlers.InvoiceDocumentLinker
	if bucket := strings.TrimSpace(cfg.Storage.InvoicesBucket); bucket != "" {
		a, err := platformstorage.NewArchiver(storageClient, bucket)
		if err != nil {
			logger.Fatal("failed to initialise invoice archiver", zap.Error(err))
		}
		archiver = a
		invoiceLinker = buildInvoiceLinker(logger, cfg, bucket)
	} else {
		logger.Warn("invoice bucket not configured; emitted invoices will not be archived")
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()

	invoiceTopic := pubsubClient.Topic(cfg.PubSub.InvoiceTopic)
	defer invoiceTopic.Stop()
	invoicePublisher, err := jobs.NewPubSubInvoicePublisher(invoiceTopic)
	if err != nil {
		logger.Fatal("failed to initialise invoice job publisher", zap.Error(err))
	}

	fiscalClient, err := fiscal.NewClient(cfg.Fiscal.Endpoint, cfg.Fiscal.APIKey, fiscal.WithTimeout(cfg.Fiscal.Timeout))
	if err != nil {
		logger.Fatal("failed to initialise fiscal client", zap.Error(err))
	}
	assistantClient, err := assistant.NewClient(cfg.Assistant.Endpoint, cfg.Assistant.AuthToken, assistant.WithTimeout(cfg.Assistant.Timeout))
	if err != nil {
		logger.Fatal("failed to initialise assistant client", zap.Error(err))
	}

	newID := func() string {
		return ulid.Make().String()
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:    registry.Products(),
		Clock:       time.Now,
		IDGenerator: newID,
		Logger:      eventLogger(logger.Named("catalog")),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	inventoryService, err := services.NewInventoryService(services.InventoryServiceDeps{
		Movements:   registry.Movements(),
		Clock:       time.Now,
		IDGenerator: newID,
		Logger:      eventLogger(logger.Named("inventory")),
	})
	if err != nil {
		logger.Fatal("failed to initialise inventory service", zap.Error(err))
	}

	customerService, err := services.NewCustomerService(services.CustomerServiceDeps{
		Customers:   registry.Customers(),
		Clock:       time.Now,
		IDGenerator: newID,
		Logger:      eventLogger(logger.Named("customers")),
	})
	if err != nil {
		logger.Fatal("failed to initialise customer service", zap.Error(err))
	}

	salesService, err := services.NewSalesService(services.SalesServiceDeps{
		Sales:       registry.Sales(),
		Products:    registry.Products(),
		Clock:       time.Now,
		IDGenerator: newID,
		Logger:      eventLogger(logger.Named("sales")),
	})
	if err != nil {
		logger.Fatal("failed to initialise sales service", zap.Error(err))
	}

	costingService, err := services.NewCostingService(services.CostingServiceDeps{
		Recipes:     registry.Recipes(),
		Products:    registry.Products(),
		Clock:       time.Now,
		IDGenerator: newID,
		Logger:      eventLogger(logger.Named("costing")),
	})
	if err != nil {
		logger.Fatal("failed to initialise costing service", zap.Error(err))
	}

	assistantService, err := services.NewAssistantService(services.AssistantServiceDeps{
		Completer: assistantClient,
		Sales:     salesService,
		Catalog:   catalogService,
		Clock:     time.Now,
		Logger:    eventLogger(logger.Named("assistant")),
	})
	if err != nil {
		logger.Fatal("failed to initialise assistant service", zap.Error(err))
	}

	invoiceService, err := services.NewInvoiceService(services.InvoiceServiceDeps{
		Invoices:    registry.Invoices(),
		Sales:       registry.Sales(),
		Publisher:   invoicePublisher,
		Emitter:     fiscalClient,
		Archiver:    archiver,
		Clock:       time.Now,
		IDGenerator: newID,
		Logger:      eventLogger(logger.Named("invoices")),
	})
	if err != nil {
		logger.Fatal("failed to initialise invoice service", zap.Error(err))
	}

	settler := buildSettler(logger.Named("payments"), cfg)

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	productHandlers := handlers.NewProductHandlers(authenticator, catalogService)
	stockHandlers := handlers.NewStockHandlers(authenticator, inventoryService)
	customerHandlers := handlers.NewCustomerHandlers(authenticator, customerService)
	recipeHandlers := handlers.NewRecipeHandlers(authenticator, costingService)
	assistantHandlers := handlers.NewAssistantHandlers(authenticator, assistantService)
	registerHandlers := handlers.NewRegisterHandlers(authenticator, catalogService, customerService, settler, salesService)
	webhookHandlers := handlers.NewWebhookHandlers(invoiceService)
	internalHandlers := handlers.NewInternalJobHandlers(invoiceService)

	idempotencyMiddleware := idempotency.Middleware(
		idempotency.NewMemoryStore(),
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)
	saleOpts := []handlers.SaleHandlerOption{
		handlers.WithInvoiceIdempotency(idempotencyMiddleware),
	}
	if invoiceLinker != nil {
		saleOpts = append(saleOpts, handlers.WithInvoiceDocumentLinks(invoiceLinker))
	}
	saleHandlers := handlers.NewSaleHandlers(authenticator, salesService, invoiceService, saleOpts...)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithReadinessCheck("firestore", func(ctx context.Context) error {
			iter := firestoreClient.Collections(ctx)
			_, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		}),
		handlers.WithReadinessCheck("pubsub", func(ctx context.Context) error {
			_, err := invoiceTopic.Exists(ctx)
			return err
		}),
	)

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithRegisterRoutes(registerHandlers.Routes),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithStockRoutes(stockHandlers.Routes),
		handlers.WithCustomerRoutes(customerHandlers.Routes),
		handlers.WithSaleRoutes(saleHandlers.Routes),
		handlers.WithRecipeRoutes(recipeHandlers.Routes),
		handlers.WithCostingRoutes(recipeHandlers.CostingRoutes),
		handlers.WithAssistantRoutes(assistantHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if mw := buildHMACMiddleware(logger.Named("auth"), cfg); mw != nil {
		opts = append(opts, handlers.WithWebhookMiddlewares(mw))
	}
	if mw := buildOIDCMiddleware(logger.Named("auth"), cfg); mw != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(mw))
	}

	router := handlers.NewRouter(opts...)
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
		serverLogger.Info("gelomax api listening")
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

// eventLogger adapts a zap logger to the event callback the services accept.
func eventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}

// buildSettler assembles the payment manager: the simulated terminal settles
// everything by default, and Stripe takes over card methods when a key is
// configured.
func buildSettler(logger *zap.Logger, cfg config.Config) *payments.Manager {
	terminal := payments.NewTerminalProvider(payments.TerminalProviderConfig{
		Delay:  cfg.Payments.TerminalDelay,
		Clock:  time.Now,
		Logger: eventLogger(logger.Named("terminal")),
	})

	opts := []payments.ManagerOption{}
	if strings.TrimSpace(cfg.Payments.StripeAPIKey) != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:   cfg.Payments.StripeAPIKey,
			Currency: cfg.Payments.Currency,
			Logger:   payments.StripeLogger(eventLogger(logger.Named("stripe"))),
			Clock:    time.Now,
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe provider", zap.Error(err))
		}
		opts = append(opts,
			payments.WithMethodProvider(domain.PaymentCredit, stripeProvider),
			payments.WithMethodProvider(domain.PaymentDebit, stripeProvider),
		)
	} else {
		logger.Warn("stripe api key not configured; card payments settle via the simulated terminal")
	}

	manager, err := payments.NewManager(terminal, opts...)
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}
	return manager
}

// buildInvoiceLinker returns a signed URL generator for archived fiscal
// documents, or nil when no signer key is configured.
func buildInvoiceLinker(logger *zap.Logger, cfg config.Config, bucket string) handlers.InvoiceDocumentLinker {
	key := strings.TrimSpace(cfg.Storage.SignerKey)
	if key == "" {
		logger.Warn("storage signer key not configured; invoice download links are disabled")
		return nil
	}

	signer, err := platformstorage.NewServiceAccountSignerFromJSON([]byte(key))
	if err != nil {
		logger.Fatal("failed to parse storage signer key", zap.Error(err))
	}
	client, err := platformstorage.NewClient(signer)
	if err != nil {
		logger.Fatal("failed to initialise signed url client", zap.Error(err))
	}

	return func(ctx context.Context, xmlPath string) (string, error) {
		result, err := client.SignedDownloadURL(ctx, bucket, xmlPath, platformstorage.DownloadOptions{
			ResponseType: "application/xml",
		})
		if err != nil {
			return "", err
		}
		return result.URL, nil
	}
}

func buildHMACMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	secret := strings.TrimSpace(cfg.Fiscal.WebhookSecret)
	if secret == "" {
		logger.Warn("fiscal webhook secret not configured; webhook signatures are not verified")
		return nil
	}

	provider := auth.SecretProviderFunc(func(_ context.Context, name string) (string, error) {
		if name != fiscalWebhookSecretName {
			return "", fmt.Errorf("auth: unknown webhook secret %q", name)
		}
		return secret, nil
	})
	validator := auth.NewHMACValidator(provider, auth.NewInMemoryNonceStore(),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACClockSkew(cfg.Security.HMAC.ClockSkew),
		auth.WithHMACNonceTTL(cfg.Security.HMAC.NonceTTL),
	)
	return validator.RequireHMAC(fiscalWebhookSecretName)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	jwksURL := strings.TrimSpace(cfg.Security.OIDC.JWKSURL)
	if jwksURL == "" {
		logger.Warn("OIDC JWKS URL not configured; internal job routes are unprotected")
		return nil
	}

	cache := auth.NewJWKSCache(jwksURL, auth.WithJWKSLogger(logger.Named("jwks")))
	validator := auth.NewOIDCValidator(cache)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("OIDC issuers not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
