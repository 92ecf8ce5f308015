package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xaenox/wa-assistant-bridge/internal/assistant"
	"github.com/xaenox/wa-assistant-bridge/internal/bot"
	"github.com/xaenox/wa-assistant-bridge/internal/classifier"
	"github.com/xaenox/wa-assistant-bridge/internal/directory"
	"github.com/xaenox/wa-assistant-bridge/internal/interactions"
	"github.com/xaenox/wa-assistant-bridge/internal/messenger"
	"github.com/xaenox/wa-assistant-bridge/internal/storage"
	"github.com/xaenox/wa-assistant-bridge/internal/threads"
	"github.com/xaenox/wa-assistant-bridge/pkg/config"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("Failed to load config", zap.Error(err), zap.String("path", configPath))
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	assistantClient := assistant.NewClient(assistant.Config{
		APIKey:          cfg.OpenAI.APIKey,
		BaseURL:         cfg.OpenAI.BaseURL,
		AssistantID:     cfg.OpenAI.AssistantID,
		PollInterval:    cfg.OpenAI.PollInterval,
		MaxPollAttempts: cfg.OpenAI.MaxPollAttempts,
		RequestTimeout:  cfg.OpenAI.RequestTimeout,
	}, logger)

	recorder := interactions.NewRecorder(store, interactions.Options{
		QueueSize:    cfg.Interactions.QueueSize,
		WriteTimeout: cfg.Interactions.WriteTimeout,
	}, logger)

	b := bot.New(bot.Deps{
		Directory:   directory.New(store, cfg.Webhook.CountryCode, logger),
		Threads:     threads.NewStore(store, assistantClient, logger),
		Assistant:   assistantClient,
		Interpreter: classifier.NewInterpreter(cfg.Webhook.FallbackReply, logger),
		Messenger: messenger.New(messenger.Config{
			BaseURL:      cfg.Messenger.BaseURL,
			InstanceID:   cfg.Messenger.InstanceID,
			Token:        cfg.Messenger.Token,
			ClientToken:  cfg.Messenger.ClientToken,
			DelayTyping:  cfg.Messenger.DelayTyping,
			DelayMessage: cfg.Messenger.DelayMessage,
			Timeout:      cfg.Messenger.Timeout,
		}, logger),
		Interactions: recorder,
	}, bot.Options{
		DenialMessage: cfg.Webhook.DenialMessage,
		InstanceID:    cfg.Webhook.InstanceID,
		MaxMessageAge: cfg.Webhook.MaxMessageAge,
		StepTimeout:   cfg.Webhook.StepTimeout,
		AdminToken:    cfg.Server.AdminToken,
	}, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Admin-Token"},
		MaxAge:         300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("pong"))
	})
	r.Handle("/metrics", promhttp.Handler())
	bot.RegisterRoutes(r, b)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	// Handlers are done; flush whatever interaction logs are still queued.
	recorder.Close()
	logger.Info("Server stopped")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

func openStorage(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (storage.Storage, error) {
	if cfg.UseInMemory {
		logger.Info("Using in-memory storage")
		mem := storage.NewMemoryStorage()
		if cfg.SeedFile != "" {
			n, err := mem.LoadSeed(cfg.SeedFile)
			if err != nil {
				return nil, err
			}
			logger.Info("Customers seeded", zap.Int("count", n), zap.String("path", cfg.SeedFile))
		}
		return mem, nil
	}

	logger.Info("Using PostgreSQL storage")
	return storage.NewPostgresStorage(ctx, storage.DatabaseConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		DBName:   cfg.DBName,
		SSLMode:  cfg.SSLMode,
	}, logger)
}
