package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/vaultpay/vaultpay-server/internal/api"
	"github.com/vaultpay/vaultpay-server/internal/config"
	"github.com/vaultpay/vaultpay-server/internal/repository"
	"github.com/vaultpay/vaultpay-server/internal/security"
	"github.com/vaultpay/vaultpay-server/internal/service"
	"go.uber.org/zap"
)

func main() {
	// Load .env if present, then configuration from the environment
	_ = godotenv.Load()
	cfg := config.LoadConfig()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Set up database connection
	db, err := config.SetupDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to set up database", zap.Error(err))
	}
	defer db.Close()

	// Set up redis connection (nonces, rate buckets)
	redisClient, err := config.SetupRedis(cfg)
	if err != nil {
		logger.Fatal("Failed to set up redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Create repository
	repo := repository.NewPostgresRepository(db)

	// Create security components
	tokens := security.NewTokenManager(
		cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience, cfg.Auth.TokenTTL)
	limiter := security.NewRateLimiter(redisClient, cfg.Security.RateLimitPerMinute)
	replay := security.NewReplayGuard(redisClient, cfg.Security.ReplayWindow)

	// Create service
	svc := service.NewDefaultService(repo, tokens, limiter, replay, logger)

	// Create API handler
	handler := api.NewHandler(svc, repo, tokens, logger)

	// Set up Gin router
	router := gin.Default()
	handler.SetupRoutes(router)

	// Start server
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Starting server", zap.String("addr", serverAddr))
	if err := http.ListenAndServe(serverAddr, router); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}
