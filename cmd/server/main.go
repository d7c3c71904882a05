package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/socialdeck/dashboard-server-go/internal/config"
	"github.com/socialdeck/dashboard-server-go/internal/database"
	"github.com/socialdeck/dashboard-server-go/internal/handler"
	"github.com/socialdeck/dashboard-server-go/internal/jobs"
	"github.com/socialdeck/dashboard-server-go/internal/metrics"
	"github.com/socialdeck/dashboard-server-go/internal/middleware"
	"github.com/socialdeck/dashboard-server-go/internal/model"
	"github.com/socialdeck/dashboard-server-go/internal/provider"
	"github.com/socialdeck/dashboard-server-go/internal/redis"
	"github.com/socialdeck/dashboard-server-go/internal/repository"
	"github.com/socialdeck/dashboard-server-go/internal/service"
	"github.com/socialdeck/dashboard-server-go/internal/signature"
)

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("GO_ENV") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	userRepo := repository.NewUserRepository(db.DB)
	connectionRepo := repository.NewConnectionRepository(db.DB, cfg.EncryptionKey)
	publishRepo := repository.NewPublishRepository(db.DB)
	attemptStore := repository.NewAttemptStore(redisClient)

	registry := provider.DefaultRegistry()
	oauthClient := provider.NewClient()

	publishers := map[string]provider.Publisher{
		model.ProviderTwitter: provider.NewTwitterPublisher(signature.OAuth1Credentials{
			ConsumerKey:    cfg.TwitterAPIKey,
			ConsumerSecret: cfg.TwitterAPISecret,
			Token:          cfg.TwitterAccessToken,
			TokenSecret:    cfg.TwitterAccessTokenSecret,
		}),
		model.ProviderLinkedIn:  provider.NewLinkedInPublisher(),
		model.ProviderInstagram: provider.NewInstagramPublisher(),
	}

	authFlowService := service.NewAuthFlowService(cfg, registry, oauthClient, attemptStore, connectionRepo)
	tokenService := service.NewTokenService(cfg, registry, oauthClient, connectionRepo)
	publishService := service.NewPublishService(registry, publishers, tokenService, authFlowService, connectionRepo, publishRepo)

	authMiddleware := middleware.NewAuthMiddleware(userRepo)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client, cfg.PublishRatePerMinute)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(config.PublishMaxBodySize)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	connectHandler := handler.NewConnectHandler(authFlowService, cfg.SettingsURL())
	publishHandler := handler.NewPublishHandler(publishService)
	adminHandler := handler.NewAdminHandler(userRepo, cfg.AdminPasswordHash)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Providers redirect the user's browser here; no bearer token on this leg.
	r.Get("/api/connect/{provider}/callback", connectHandler.Callback)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Handler)

		r.Post("/connect/{provider}", connectHandler.Begin)
		r.Delete("/connect/{provider}", connectHandler.Disconnect)
		r.Get("/connections", connectHandler.List)

		r.Group(func(r chi.Router) {
			r.Use(rateLimitMiddleware.Handler)
			r.Post("/publish/{provider}", publishHandler.Publish)
		})
		r.Get("/publish/{provider}/history", publishHandler.History)
	})

	r.Post("/admin/users", adminHandler.CreateUser)

	cleanupJob := jobs.NewCleanupJob(connectionRepo, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
