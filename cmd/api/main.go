package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zablink/token-engine/config"
	httpHandler "github.com/zablink/token-engine/internal/adapter/http/handler"
	pgStorage "github.com/zablink/token-engine/internal/adapter/storage/postgres"
	redisStorage "github.com/zablink/token-engine/internal/adapter/storage/redis"
	"github.com/zablink/token-engine/internal/core/ports"
	"github.com/zablink/token-engine/internal/service"
	"github.com/zablink/token-engine/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Token Engine")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	accountRepo := pgStorage.NewAccountRepo(pool)
	walletRepo := pgStorage.NewWalletRepo(pool)
	batchRepo := pgStorage.NewBatchRepo(pool)
	purchaseRepo := pgStorage.NewAdPurchaseRepo(pool)
	campaignRepo := pgStorage.NewCampaignRepo(pool)
	jobRepo := pgStorage.NewJobRepo(pool)
	earningRepo := pgStorage.NewEarningRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)

	// Initialize core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	discountPolicy := service.NewTieredDiscountPolicy()

	// Initialize business services
	authSvc := service.NewAuthService(accountRepo, hashSvc, encSvc, tokenSvc)
	ledgerSvc := service.NewLedgerService(walletRepo, batchRepo, transactor, cfg.Ledger.DefaultBatchValidity, log)
	allocationSvc := service.NewAllocationService(
		walletRepo,
		batchRepo,
		purchaseRepo,
		discountPolicy,
		idempotencyCache,
		transactor,
		log,
	)
	earningsSvc := service.NewEarningsService(
		earningRepo,
		accountRepo,
		transactor,
		cfg.Ledger.CommissionRateBps,
		cfg.Ledger.VestingPeriod,
		log,
	)
	escrowSvc := service.NewEscrowService(campaignRepo, jobRepo, earningsSvc, transactor, log)

	// Initialize rate limit store
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		LedgerSvc:      ledgerSvc,
		AllocationSvc:  allocationSvc,
		EscrowSvc:      escrowSvc,
		EarningsSvc:    earningsSvc,
		AccountRepo:    accountRepo,
		EncSvc:         encSvc,
		SigSvc:         sigSvc,
		NonceStore:     nonceStore,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
