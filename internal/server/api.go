package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aimerfeng/scribe/internal/auth"
	"github.com/aimerfeng/scribe/internal/config"
	"github.com/aimerfeng/scribe/internal/generation"
	"github.com/aimerfeng/scribe/internal/llm"
	"github.com/aimerfeng/scribe/internal/logging"
	"github.com/aimerfeng/scribe/internal/middleware"
	"github.com/aimerfeng/scribe/internal/models"
	"github.com/aimerfeng/scribe/internal/monitoring"
	"github.com/aimerfeng/scribe/internal/share"
	"github.com/aimerfeng/scribe/internal/usage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
)

// Banner is the plain-text response of the root route
const Banner = "AI Writing Assistant Backend"

// Authenticator registers users and issues and checks tokens
type Authenticator interface {
	Register(ctx context.Context, req *auth.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req *auth.LoginRequest) (*auth.TokenResponse, error)
	Verify(token string) (uuid.UUID, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// UsageGate admits metered requests and reports today's usage
type UsageGate interface {
	Admit(ctx context.Context, userID uuid.UUID) (*usage.Decision, error)
	Status(ctx context.Context, userID uuid.UUID) (*usage.Status, error)
}

// Generator produces text and lists past generations
type Generator interface {
	Generate(ctx context.Context, req *generation.Request) (*generation.Result, error)
	History(ctx context.Context, userID uuid.UUID) ([]models.History, error)
}

// Sharer stores and resolves public share links
type Sharer interface {
	Create(ctx context.Context, req *share.CreateRequest) (*share.CreateResponse, error)
	Get(ctx context.Context, id string) (*models.Share, error)
}

// HealthChecker reports whether a backing dependency is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// BreakerReporter exposes the provider circuit breaker state
type BreakerReporter interface {
	Status() *llm.BreakerStatus
}

// Deps are the services the API routes call into
type Deps struct {
	Auth       Authenticator
	Gate       UsageGate
	Generation Generator
	Shares     Sharer
	DB         HealthChecker
	Breaker    BreakerReporter

	// LimiterStore backs the per-IP limit on /register and /login
	LimiterStore limiter.Store
}

// APIServer represents the main API server
type APIServer struct {
	config *config.Config
	router *gin.Engine
	deps   Deps
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg *config.Config, deps Deps) (*APIServer, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware in order
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	srv := &APIServer{
		config: cfg,
		router: router,
		deps:   deps,
	}

	if err := srv.setupRoutes(); err != nil {
		return nil, err
	}
	return srv, nil
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() error {
	s.router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, Banner)
	})
	s.router.GET("/health", s.healthCheck)

	registerLimit, err := middleware.RateLimit(s.deps.LimiterStore, s.config.RateLimit.AuthRate, "register")
	if err != nil {
		return fmt.Errorf("failed to build register rate limit: %w", err)
	}
	loginLimit, err := middleware.RateLimit(s.deps.LimiterStore, s.config.RateLimit.AuthRate, "login")
	if err != nil {
		return fmt.Errorf("failed to build login rate limit: %w", err)
	}

	s.router.POST("/register", registerLimit, s.handleRegister)
	s.router.POST("/login", loginLimit, s.handleLogin)

	api := s.router.Group("/api")
	{
		// Share links are public
		api.POST("/share", s.handleCreateShare)
		api.GET("/share/:id", s.handleGetShare)

		protected := api.Group("")
		protected.Use(middleware.TokenAuth(s.deps.Auth))
		{
			protected.GET("/auth", s.handleGetMe)
			protected.POST("/generate", middleware.UsageLimit(s.deps.Gate), s.handleGenerate)
			protected.GET("/history", s.handleHistory)
			protected.GET("/usage", s.handleUsage)
		}
	}
	return nil
}
