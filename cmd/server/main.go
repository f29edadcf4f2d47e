package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/qcom/phoneverify/internal/config"
	"github.com/qcom/phoneverify/internal/handlers"
	"github.com/qcom/phoneverify/internal/middleware"
	"github.com/qcom/phoneverify/internal/repository"
	"github.com/qcom/phoneverify/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// callbackPaths are delivered by the platform, which cannot present basic
// auth credentials.
var callbackPaths = []string{"/callback", "/phone-check/callback"}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	httpClient := &http.Client{Timeout: cfg.Platform.RequestTimeout}

	tokenCache, err := initTokenCache(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize token cache")
	}

	// Initialize services
	tokenService, err := service.NewTokenService(
		cfg.ActiveCredential(),
		cfg.Platform.APIBaseURL,
		httpClient,
		tokenCache,
		cfg.TokenCache.Leeway,
		logger,
	)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize token service")
	}

	apiClient := service.NewAPIClient(cfg.Platform.APIBaseURL, tokenService, httpClient, logger)
	platformService := service.NewPlatformService(apiClient, logger)
	keyResolver := service.NewKeyResolver(cfg.JWKSURL(), httpClient, cfg.Platform.JWKSMinRefreshInterval, logger)
	verifier := service.NewCallbackVerifier(keyResolver, cfg.Callback.ClockSkew, cfg.Callback.RequireDigest, logger)

	checkHandlers := handlers.NewCheckHandlers(platformService, logger)
	coverageHandlers := handlers.NewCoverageHandlers(platformService, cfg.Server.TrustProxy, logger)
	callbackHandlers := handlers.NewCallbackHandlers(verifier, handlers.NewLogCompletionHandler(logger), logger)

	var basicAuth *middleware.BasicAuthMiddleware
	if cfg.BasicAuth.Enabled() {
		basicAuth, err = middleware.NewBasicAuthMiddleware(
			cfg.BasicAuth.Username,
			cfg.BasicAuth.Password,
			append([]string{"/health"}, callbackPaths...),
			logger,
		)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize basic auth")
		}
	}

	router := setupRouter(checkHandlers, coverageHandlers, callbackHandlers, basicAuth, cfg.CORS.AllowedOrigins, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":        cfg.Server.Port,
			"api_base":    cfg.Platform.APIBaseURL,
			"token_cache": cfg.TokenCache.Backend,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

// initTokenCache returns nil for the "none" backend, which makes every
// operation fetch a fresh token.
func initTokenCache(cfg *config.Config, logger *logrus.Logger) (repository.TokenCache, error) {
	switch cfg.TokenCache.Backend {
	case "none":
		return nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Endpoint,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Endpoint, err)
		}
		logger.WithField("endpoint", cfg.Redis.Endpoint).Info("Redis token cache initialized")
		return repository.NewRedisTokenCache(client, cfg.Redis.KeyPrefix, logger), nil
	}
	return repository.NewMemoryTokenCache(), nil
}

func setupRouter(
	checkHandlers *handlers.CheckHandlers,
	coverageHandlers *handlers.CoverageHandlers,
	callbackHandlers *handlers.CallbackHandlers,
	basicAuth *middleware.BasicAuthMiddleware,
	allowedOrigins []string,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORSMiddleware(allowedOrigins))
	router.Use(middleware.LoggingMiddleware(logger))
	if basicAuth != nil {
		router.Use(basicAuth.RequireAuth)
	}

	router.HandleFunc("/health", handlers.Health).Methods("GET", "OPTIONS")

	for _, path := range []string{"/check", "/phone-check"} {
		router.HandleFunc(path, checkHandlers.CreatePhoneCheck).Methods("POST", "OPTIONS")
	}
	for _, path := range []string{"/check_status", "/phone-check"} {
		router.HandleFunc(path, checkHandlers.GetPhoneCheckStatus).Methods("GET", "OPTIONS")
	}
	for _, path := range callbackPaths {
		router.HandleFunc(path, callbackHandlers.Callback).Methods("POST")
	}

	router.HandleFunc("/subscriber-check", checkHandlers.CreateSubscriberCheck).Methods("POST", "OPTIONS")
	router.HandleFunc("/subscriber-check/{check_id}", checkHandlers.GetSubscriberCheckStatus).Methods("GET", "OPTIONS")
	router.HandleFunc("/sim-check", checkHandlers.CreateSimCheck).Methods("POST", "OPTIONS")

	router.HandleFunc("/country", coverageHandlers.GetCountryCoverage).Methods("GET", "OPTIONS")
	router.HandleFunc("/device", coverageHandlers.GetDeviceCoverage).Methods("GET", "OPTIONS")
	router.HandleFunc("/my-ip", coverageHandlers.MyIP).Methods("GET", "OPTIONS")
	router.HandleFunc("/traces", handlers.Traces(logger)).Methods("POST", "OPTIONS")

	return router
}
