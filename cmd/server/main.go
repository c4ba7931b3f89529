package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/inquire/internal/api"
	"github.com/eldtechnologies/inquire/internal/api/middleware"
	"github.com/eldtechnologies/inquire/internal/bot"
	"github.com/eldtechnologies/inquire/internal/config"
	"github.com/eldtechnologies/inquire/internal/directory"
	"github.com/eldtechnologies/inquire/internal/handlers"
	"github.com/eldtechnologies/inquire/internal/hooks"
	"github.com/eldtechnologies/inquire/internal/ledger"
	"github.com/eldtechnologies/inquire/internal/qna"
	"github.com/eldtechnologies/inquire/internal/resync"
	"github.com/eldtechnologies/inquire/internal/spaces"
	"github.com/eldtechnologies/inquire/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize the record store
	dataStore := openStore(ctx, cfg, logger)
	defer dataStore.Close()

	// Initialize Redis store
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Chat platform client
	client, err := directory.NewClient(directory.ClientConfig{
		BaseURL:           cfg.DirectoryBaseURL,
		AccessToken:       cfg.AccessToken,
		RequestsPerSecond: cfg.DirectoryRPS,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("directory client setup failed")
	}
	var people directory.Directory = client
	if redisStore != nil {
		people = directory.NewCachedDirectory(client, redisStore, store.PersonCacheTTL, logger)
	}

	// Domain services
	roomService := spaces.NewService(dataStore, client, logger)
	questionLedger := ledger.New(dataStore, logger)
	answerCounts := &hooks.AnswerCount{Counter: questionLedger, Patcher: roomService, Log: logger}
	questionLedger.OnAnswer(answerCounts)
	resolver := qna.NewResolver(roomService, questionLedger, people, logger)
	chatBot := bot.New(resolver, client, bot.Config{
		Name:          cfg.BotName,
		PublicAddress: cfg.PublicAddress,
	}, logger)

	// Scheduled resync of active rooms
	scheduler, err := resync.New(dataStore, roomService, answerCounts, cfg.ResyncCron, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("resync scheduler setup failed")
	}
	go func() {
		if _, err := scheduler.RunOnce(ctx); err != nil {
			logger.Error().Err(err).Msg("startup resync failed")
		}
		scheduler.Run(ctx)
	}()

	// Create router
	h := handlers.NewHandler(handlers.Deps{
		Store:    dataStore,
		Driver:   cfg.StoreDriver,
		Redis:    redisStore,
		Bot:      chatBot,
		Resolver: resolver,
		Logger:   logger,
	})
	router := api.NewRouter(logger, h, redisStore, api.Options{
		WebhookSecret: cfg.WebhookSecret,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("store", cfg.StoreDriver).
			Msg("starting inquire server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")
	stop()

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

// openStore connects the configured record store. Postgres migrations run
// first; the Mongo store sets up its own indexes.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) store.DataStore {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")

		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		logger.Info().Msg("connected to PostgreSQL")
		return pg

	case config.DriverMongo:
		mongo, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.Fatal().Err(err).Msg("mongo connection failed")
		}
		logger.Info().Msg("connected to MongoDB")
		return mongo

	default:
		sqlite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite store")
		return sqlite
	}
}
