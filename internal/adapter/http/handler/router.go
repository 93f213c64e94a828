package handler

import (
	"github.com/zablink/token-engine/internal/adapter/http/middleware"
	redisStore "github.com/zablink/token-engine/internal/adapter/storage/redis"
	"github.com/zablink/token-engine/internal/core/domain"
	"github.com/zablink/token-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	LedgerSvc      ports.LedgerService
	AllocationSvc  ports.AllocationService
	EscrowSvc      ports.EscrowService
	EarningsSvc    ports.EarningsService
	AccountRepo    ports.AccountRepository
	EncSvc         ports.EncryptionService
	SigSvc         ports.SignatureService
	NonceStore     ports.NonceStore
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep, verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	merchantOnly := middleware.RequireRole(domain.RoleMerchant)
	creatorOnly := middleware.RequireRole(domain.RoleCreator)

	// --- Merchant wallet (JWT) ---
	walletHandler := NewWalletHandler(deps.LedgerSvc)
	wallets := v1.Group("/wallets", jwtAuth, merchantOnly)
	{
		wallets.GET("/balance", rl("dashboard"), walletHandler.GetBalance)
		wallets.GET("/batches", rl("dashboard"), walletHandler.ListBatches)
		wallets.POST("/credit", rl("wallets_credit"), walletHandler.Credit)
	}

	// --- Ad purchases ---
	// The buy endpoint is machine-to-machine and HMAC-signed; the listing
	// is a dashboard view behind JWT.
	hmacAuth := middleware.HMACAuth(deps.AccountRepo, deps.EncSvc, deps.SigSvc, deps.NonceStore, deps.Logger)
	adsHandler := NewAdsHandler(deps.AllocationSvc)
	v1.POST("/ads/purchases", hmacAuth, merchantOnly, rl("ads"), adsHandler.Purchase)
	v1.GET("/ads/purchases", jwtAuth, merchantOnly, rl("dashboard"), adsHandler.ListPurchases)

	// --- Campaigns and jobs (JWT) ---
	campaignHandler := NewCampaignHandler(deps.EscrowSvc)
	campaigns := v1.Group("/campaigns", jwtAuth, merchantOnly)
	{
		campaigns.POST("", rl("dashboard"), campaignHandler.CreateCampaign)
		campaigns.GET("/:id", rl("dashboard"), campaignHandler.GetCampaign)
		campaigns.POST("/:id/jobs", rl("jobs"), campaignHandler.CreateJob)
	}

	jobs := v1.Group("/jobs", jwtAuth)
	{
		jobs.POST("/:id/accept", creatorOnly, rl("jobs"), campaignHandler.Accept)
		jobs.POST("/:id/cancel", creatorOnly, rl("jobs"), campaignHandler.Cancel)
		jobs.POST("/:id/submit", creatorOnly, rl("jobs"), campaignHandler.Submit)
		jobs.POST("/:id/approve", merchantOnly, rl("jobs"), campaignHandler.Approve)
		jobs.POST("/:id/reject", merchantOnly, rl("jobs"), campaignHandler.Reject)
	}

	// --- Creator earnings (JWT) ---
	earningsHandler := NewEarningsHandler(deps.EarningsSvc)
	earnings := v1.Group("/earnings", jwtAuth, creatorOnly)
	{
		earnings.GET("", rl("dashboard"), earningsHandler.List)
		earnings.GET("/summary", rl("dashboard"), earningsHandler.Summary)
		earnings.POST("/withdraw", rl("earnings_withdraw"), earningsHandler.Withdraw)
	}

	return r
}
