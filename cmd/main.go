/**
 * @description
 * Entry point for the entitlement-service. Wires configuration, the profile and
 * entitlement store, Redis rate limiting, RabbitMQ events, the payment gateway
 * client, the integrity-audit scheduler and the HTTP API.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/jackc/pgx/v5: PostgreSQL connection pool.
 * - github.com/redis/go-redis/v9: Checkout rate limiting.
 */
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/soullink/entitlement-service/internal/api"
	"github.com/soullink/entitlement-service/internal/app"
	"github.com/soullink/entitlement-service/internal/config"
	"github.com/soullink/entitlement-service/internal/store"
	"github.com/soullink/entitlement-service/pkg/paymentclient"
	"github.com/soullink/entitlement-service/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var repository store.Repository
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		logger.Warn("using in-memory store; data will not survive a restart")
		repository = store.NewMemoryRepository()
	default:
		dbpool, err := openDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("unable to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbpool.Close()
		logger.Info("database connection established")

		if err := store.EnsureSchema(ctx, dbpool); err != nil {
			logger.Error("failed to apply database schema", "error", err)
			os.Exit(1)
		}
		repository = store.NewPostgresRepository(dbpool)
	}

	var limiter app.RateLimiter
	if cfg.CheckoutRateLimitPerMinute > 0 {
		if cfg.RedisURL == "" {
			logger.Warn("redis url missing; checkout rate limiting disabled", "env", "REDIS_URL")
		} else if redisClient, err := connectRedis(ctx, cfg.RedisURL); err != nil {
			logger.Warn("redis unavailable; checkout rate limiting disabled", "error", err)
		} else {
			defer redisClient.Close()
			logger.Info("redis connected")
			limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
		}
	}

	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{}
	if cfg.RabbitMQURL != "" {
		if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.EventsExchange); err == nil {
			publisher = producer
			defer producer.Close()
		} else {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "error", err)
		}
	}

	if cfg.PaymentGatewayURL == "" {
		logger.Warn("payment gateway url missing; checkout will report the processor as unavailable", "env", "PAYMENT_GATEWAY_URL")
	}
	processor := paymentclient.NewClient(cfg.PaymentGatewayURL, cfg.PaymentGatewaySecretKey)

	service := app.NewService(repository, publisher, processor, limiter, logger, app.Options{
		ContactPrice:               cfg.ContactPrice,
		Currency:                   cfg.ContactCurrency,
		ApprovalMode:               cfg.ApprovalMode,
		CheckoutRateLimitPerMinute: cfg.CheckoutRateLimitPerMinute,
	})

	scheduler := app.NewScheduler(service, logger, cfg.IntegrityAuditSchedule)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start integrity audit scheduler", "error", err)
		os.Exit(1)
	}

	if cfg.InternalAPIKey == "" {
		logger.Warn("internal api key missing; internal routes are closed", "env", "INTERNAL_API_KEY")
	}
	handler := api.NewHandler(service, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		Auth: api.AuthConfig{
			JWKSURL:  cfg.JWKSURL,
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		},
		InternalAPIKey: cfg.InternalAPIKey,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort, "store", cfg.StoreBackend, "approval_mode", cfg.ApprovalMode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}

func openDatabase(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pgConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	pgConfig.MaxConns = 100
	pgConfig.MinConns = 20
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	return pgxpool.NewWithConfig(ctx, pgConfig)
}

func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	redisOptions, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url parse failed: %w", err)
	}
	client := redis.NewClient(redisOptions)

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
