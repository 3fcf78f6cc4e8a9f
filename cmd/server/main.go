package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"contract-relay/internal/config"
	"contract-relay/internal/database"
	"contract-relay/internal/handlers"
	"contract-relay/internal/logging"
	"contract-relay/internal/middleware"
	"contract-relay/internal/repository"
	"contract-relay/internal/router"
	"contract-relay/internal/services"
	"contract-relay/internal/websocket"
	"contract-relay/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("🚀 Starting Contract Relay...")
	logger.Info("✓ Environment variables loaded")

	deps := services.ValidationDeps{Logger: logger}

	// ──── Step 2: PostgreSQL (validation history) ────
	if cfg.DatabaseURL != "" {
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("✗ PostgreSQL connection failed", zap.Error(err))
		}
		defer pool.Close()
		logger.Info("✓ PostgreSQL connected")

		if err := database.RunMigrations(pool, logger); err != nil {
			logger.Fatal("✗ Database migration failed", zap.Error(err))
		}
		logger.Info("✓ Database migrations applied")

		deps.Store = repository.NewValidationRepo(pool)
	} else {
		logger.Info("- DATABASE_URL not set, validation history disabled")
	}

	// ──── Step 3: Redis (history, events, queue) ────
	var redisClients *database.RedisClients
	if cfg.RedisURL != "" {
		redisClients, err = database.NewRedisClients(cfg.RedisURL)
		if err != nil {
			logger.Fatal("✗ Redis connection failed", zap.Error(err))
		}
		defer redisClients.Close()
		logger.Info("✓ Redis connected")

		deps.History = repository.NewHistoryRepo(redisClients.Main, cfg.HistoryTTL, cfg.HistoryMaxTurns)
		deps.Queue = repository.NewJobQueue(redisClients.Main)
		deps.Events = repository.NewEventPublisher(redisClients.Main)
	} else {
		logger.Info("- REDIS_URL not set, async validation and shared history disabled")
	}

	// ──── Step 4: Initialize Model Provider ────
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		deps.Provider = services.NewOpenAIProvider(openai.DefaultConfig(cfg.LLMAPIKey), cfg.LLMModel, cfg.LLMConcurrentReqs, logger)
	default:
		gemini, err := services.NewGeminiProvider(context.Background(), cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMConcurrentReqs, logger)
		if err != nil {
			logger.Fatal("✗ Gemini client initialization failed", zap.Error(err))
		}
		deps.Provider = gemini
	}
	defer deps.Provider.Close()
	logger.Info("✓ Model client initialized", zap.String("provider", deps.Provider.Name()))

	// ──── Step 5: WebSocket Hub ────
	var wsHub *websocket.Hub
	if redisClients != nil {
		wsHub = websocket.NewHub(websocket.NewRedisSource(redisClients.PubSub), logger)
	} else {
		// Single instance: events go straight to local sockets.
		wsHub = websocket.NewHub(nil, logger)
		deps.Events = wsHub
	}
	logger.Info("✓ WebSocket hub started")

	// ──── Initialize Services ────
	validationService := services.NewValidationService(deps, services.ValidationOptions{
		Timeout:           cfg.LLMTimeout,
		SessionTTL:        cfg.SessionTTL,
		SessionMaxEntries: cfg.SessionMaxEntries,
	})
	if cfg.SessionTTL > 0 {
		validationService.StartJanitor(cfg.SessionTTL / 2)
	}
	logger.Info("✓ Session store ready",
		zap.Duration("ttl", cfg.SessionTTL),
		zap.Int("max_entries", cfg.SessionMaxEntries),
	)

	// ──── Step 6: Start Job Worker Pool ────
	var workerPool *worker.Pool
	if redisClients != nil {
		workerPool = worker.NewPool(repository.NewJobQueue(redisClients.Queue), validationService, cfg.WorkerCount, logger)
		workerPool.Start()
		logger.Info("✓ Worker pool started", zap.Int("workers", cfg.WorkerCount))
	}

	// ──── Initialize Handlers ────
	tokens := middleware.NewSessionTokens(cfg.JWTSecret, middleware.SessionTokenTTL)
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	contractHandler := handlers.NewContractHandler(validationService, logger)
	sessionHandler := handlers.NewSessionHandler(validationService, tokens, logger)

	// ──── Step 7: Start HTTP Server ────
	r := router.New(tokens, limiter, contractHandler, sessionHandler, wsHub, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Relay calls wait on the model.
		WriteTimeout: cfg.LLMTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("HTTP shutdown incomplete", zap.Error(err))
		}

		if workerPool != nil {
			workerPool.Stop()
		}
		wsHub.Close()
		limiter.Stop()
		validationService.Close()
	}()

	logger.Info(fmt.Sprintf("✓ Contract Relay ready on http://localhost:%s", cfg.Port))
	logger.Info(fmt.Sprintf("  API: http://localhost:%s/api/gpt/contract/validate", cfg.Port))
	logger.Info(fmt.Sprintf("  WS:  ws://localhost:%s/api/gpt/ws", cfg.Port))

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("Server error", zap.Error(err))
	}
	<-shutdownDone
}
