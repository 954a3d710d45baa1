package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/wizmogmbh/ivy-gateway/internal/adapter/cache"
	"github.com/wizmogmbh/ivy-gateway/internal/adapter/gateway"
	"github.com/wizmogmbh/ivy-gateway/internal/adapter/http/fiber/handlers"
	"github.com/wizmogmbh/ivy-gateway/internal/adapter/http/fiber/middleware"
	"github.com/wizmogmbh/ivy-gateway/internal/adapter/lock"
	"github.com/wizmogmbh/ivy-gateway/internal/adapter/queue"
	"github.com/wizmogmbh/ivy-gateway/internal/adapter/shop"
	"github.com/wizmogmbh/ivy-gateway/internal/adapter/storage/postgres"
	"github.com/wizmogmbh/ivy-gateway/internal/adapter/tenant"
	"github.com/wizmogmbh/ivy-gateway/internal/adapter/vault"
	"github.com/wizmogmbh/ivy-gateway/internal/domain"
	"github.com/wizmogmbh/ivy-gateway/internal/observability/telemetry"
	"github.com/wizmogmbh/ivy-gateway/internal/ports"
	"github.com/wizmogmbh/ivy-gateway/internal/service/checkout"
	"github.com/wizmogmbh/ivy-gateway/internal/service/express"
	"github.com/wizmogmbh/ivy-gateway/internal/service/health"
	"github.com/wizmogmbh/ivy-gateway/internal/service/merchant"
	"github.com/wizmogmbh/ivy-gateway/pkg/config"
)

const serviceName = "ivy-gateway"

func main() {
	// 1. Initialize Logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	// 2. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Starting Ivy payment gateway",
		zap.String("service", serviceName),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	// 3. Initialize OpenTelemetry (Distributed Tracing)
	if cfg.OpenTelemetry.Enabled {
		tracerProvider, err := telemetry.InitTracer(serviceName, cfg.OpenTelemetry.Jaeger.Endpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logger.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()
	}

	// 4. Initialize Vault (optional credential source)
	var secrets *vault.SecretManager
	if cfg.Vault.Enabled {
		secrets, err = vault.NewSecretManager(cfg.Vault.Address, cfg.Vault.Token)
		if err != nil {
			logger.Fatal("Failed to initialize Vault", zap.Error(err))
		}
	}

	// 5. Initialize PostgreSQL Connection Pool
	databaseURL := cfg.Database.URL
	if databaseURL == "" && secrets != nil {
		databaseURL, err = secrets.GetDatabaseURL()
		if err != nil {
			logger.Fatal("Failed to read database URL from Vault", zap.Error(err))
		}
	}
	db, err := postgres.NewConnection(databaseURL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer postgres.Close(db)

	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(db); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	// 6. Initialize Cache (Redis, or in-memory for single-instance deploys)
	var appCache ports.Cache
	if cfg.Redis.URL != "" {
		appCache, err = cache.NewRedisCache(cfg.Redis.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
	} else {
		appCache = cache.NewLocalCache(time.Minute, logger)
	}
	defer appCache.Close()

	// 7. Initialize Message Queue (NATS)
	var messageQueue queue.MessageQueue
	var natsQueue *queue.NATSQueue
	if cfg.NATS.URL != "" {
		natsQueue, err = queue.NewNATSQueue(cfg.NATS.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer natsQueue.Close()
		messageQueue = natsQueue
	} else {
		logger.Warn("NATS not configured, payment events will not be published")
	}

	// 8. Tenant configuration source
	staticTenants := make(map[string]domain.TenantConfig, len(cfg.Ivy.Tenants))
	for id, tc := range cfg.Ivy.Tenants {
		staticTenants[id] = domain.TenantConfig{
			TenantID:      id,
			APIURL:        cfg.Ivy.APIURLFor(tc),
			APIKey:        tc.APIKey,
			WebhookSecret: tc.WebhookSecret,
			Sandbox:       tc.Sandbox,
			MCC:           tc.MCC,
		}
	}
	tenants := tenant.NewSource(staticTenants, secrets, appCache, logger)

	// 9. Repositories
	sessionRepo := postgres.NewSessionRepository(db, logger)
	orderRepo := postgres.NewOrderRepository(db, logger)

	// 10. Named lock backend
	var namedLock ports.NamedLock
	if cfg.Lock.Backend == "redis" && cfg.Redis.URL != "" {
		redisLock, err := lock.NewRedisLock(cfg.Redis.URL, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Redis lock", zap.Error(err))
		}
		defer redisLock.Close()
		namedLock = redisLock
	} else {
		namedLock = lock.NewLocalLock()
	}

	// 11. Services
	gatewayClient := gateway.NewClient(logger)
	shopClient := shop.NewClient(cfg.App.ShopBaseURL, logger)
	events := queue.NewEventPublisher(messageQueue, logger)

	machine := checkout.NewStateMachine(shopClient, events, cfg.Ivy.MonotonicStatusGuard, logger)
	processor := checkout.NewWebhookProcessor(sessionRepo, orderRepo, shopClient, gatewayClient, namedLock, machine, logger)
	orchestrator := checkout.NewOrchestrator(checkout.NewPayloadBuilder(), gatewayClient, sessionRepo, orderRepo, shopClient, machine, logger)
	expressService := express.NewService(
		sessionRepo, orderRepo, shopClient, shopClient,
		gatewayClient, namedLock,
		cfg.App.ShopBaseURL+"/ivyexpress/finish",
		logger,
	)
	merchantService := merchant.NewService(gatewayClient, logger)

	// 12. Health checks
	healthService := health.NewService(cfg.App.Version, logger)
	healthService.RegisterDatabase(db)
	healthService.RegisterCache(appCache)
	if natsQueue != nil {
		healthService.RegisterQueue(natsQueue.IsConnected)
	}

	// 13. Fiber HTTP server
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	if cfg.CORS.Enabled {
		app.Use(middleware.NewCORS(cfg.CORS))
	}

	health.NewFiberHandler(healthService).RegisterRoutes(app)

	if cfg.Prometheus.Enabled {
		app.Get(cfg.Prometheus.Path, func(c *fiber.Ctx) error {
			handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
			handler(c.Context())
			return nil
		})
	}

	webhookHandler := handlers.NewWebhookHandler(processor, tenants, logger)
	checkoutHandler := handlers.NewCheckoutHandler(orchestrator, orderRepo, tenants, logger)
	expressHandler := handlers.NewExpressHandler(orchestrator, expressService, tenants, logger)

	app.Post("/ivypayment/update-transaction", webhookHandler.HandleUpdateTransaction)
	app.Get("/ivypayment/finalize-transaction", checkoutHandler.FinalizeTransaction)
	app.Post("/ivypayment/finalize-transaction", checkoutHandler.FinalizeTransaction)
	app.Get("/ivypayment/failed-transaction", checkoutHandler.FailedTransaction)
	app.Post("/ivypayment/failed-transaction", checkoutHandler.FailedTransaction)

	app.Get("/ivycheckout/start", checkoutHandler.Start)
	app.Post("/ivycheckout/start", checkoutHandler.Start)

	app.Get("/ivyexpress/start", expressHandler.Start)
	app.Post("/ivyexpress/start", expressHandler.Start)
	app.Post("/ivyexpress/callback", expressHandler.Callback)
	app.Post("/ivyexpress/confirm", expressHandler.Confirm)
	app.Get("/ivyexpress/finish", expressHandler.Finish)

	// 14. Register callback URLs with the provider for every tenant
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for id, tc := range staticTenants {
			if err := merchantService.RegisterCallbacks(ctx, tc, cfg.App.ShopBaseURL); err != nil {
				logger.Warn("Failed to register merchant callbacks",
					zap.String("tenant", id),
					zap.Error(err),
				)
			}
		}
	}()

	// 15. Start HTTP server
	go func() {
		logger.Info("Starting HTTP Server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP Server failed", zap.Error(err))
		}
	}()

	// 16. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
}
