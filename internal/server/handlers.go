package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aimerfeng/scribe/internal/auth"
	apierrors "github.com/aimerfeng/scribe/internal/errors"
	"github.com/aimerfeng/scribe/internal/generation"
	"github.com/aimerfeng/scribe/internal/llm"
	"github.com/aimerfeng/scribe/internal/logging"
	"github.com/aimerfeng/scribe/internal/middleware"
	"github.com/aimerfeng/scribe/internal/share"
	"github.com/aimerfeng/scribe/internal/usage"
	"github.com/gin-gonic/gin"
)

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type messageResponse struct {
	Message string `json:"msg"`
}

// Health check handler
func (s *APIServer) healthCheck(c *gin.Context) {
	body := gin.H{
		"status":  "healthy",
		"service": "api",
	}
	if s.deps.Breaker != nil {
		body["llm"] = s.deps.Breaker.Status()
	}

	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Health(ctx); err != nil {
			logging.LogError(err, middleware.GetRequestIDFromContext(c), "server", "health")
			body["status"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}
	c.JSON(http.StatusOK, body)
}

// handleRegister handles user registration
func (s *APIServer) handleRegister(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	if _, err := s.deps.Auth.Register(c.Request.Context(), &req); err != nil {
		if errors.Is(err, auth.ErrEmailAlreadyExists) {
			middleware.RespondError(c, apierrors.ErrUserExistsError)
			return
		}
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "auth", "register")
		middleware.RespondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusCreated, messageResponse{Message: "User registered"})
}

// handleLogin handles user login
func (s *APIServer) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	resp, err := s.deps.Auth.Login(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			logging.LogSecurityEvent("login_failed", "", c.ClientIP(), logging.SanitizeForLog(req.Email, 64))
			middleware.RespondError(c, apierrors.ErrBadCredentialsError)
			return
		}
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "auth", "login")
		middleware.RespondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *APIServer) handleGetMe(c *gin.Context) {
	user, err := s.deps.Auth.GetUser(c.Request.Context(), middleware.GetUserIDFromContext(c))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			middleware.RespondError(c, apierrors.ErrUserNotFoundError)
			return
		}
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "auth", "get_user")
		middleware.RespondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, user)
}

// handleGenerate runs after UsageLimit has consumed one unit
func (s *APIServer) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		middleware.RespondError(c, apierrors.NewInvalidRequestError("Prompt is required"))
		return
	}

	requestID := middleware.GetRequestIDFromContext(c)
	result, err := s.deps.Generation.Generate(c.Request.Context(), &generation.Request{
		RequestID: requestID,
		UserID:    middleware.GetUserIDFromContext(c),
		Prompt:    req.Prompt,
	})
	if err != nil {
		if errors.Is(err, llm.ErrCircuitOpen) {
			middleware.RespondError(c, apierrors.ErrUpstreamUnavailableError)
			return
		}
		logging.LogError(err, requestID, "generation", "generate")
		middleware.RespondError(c, apierrors.ErrGenerationFailedError)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *APIServer) handleHistory(c *gin.Context) {
	items, err := s.deps.Generation.History(c.Request.Context(), middleware.GetUserIDFromContext(c))
	if err != nil {
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "generation", "history")
		middleware.RespondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *APIServer) handleUsage(c *gin.Context) {
	status, err := s.deps.Gate.Status(c.Request.Context(), middleware.GetUserIDFromContext(c))
	if err != nil {
		if errors.Is(err, usage.ErrNotFound) {
			middleware.RespondError(c, apierrors.ErrUserNotFoundError)
			return
		}
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "usage", "status")
		middleware.RespondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *APIServer) handleCreateShare(c *gin.Context) {
	var req share.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, apierrors.NewInvalidRequestError("Content is required"))
		return
	}

	resp, err := s.deps.Shares.Create(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, share.ErrEmptyContent) {
			middleware.RespondError(c, apierrors.NewInvalidRequestError("Content is required"))
			return
		}
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "share", "create")
		middleware.RespondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *APIServer) handleGetShare(c *gin.Context) {
	sh, err := s.deps.Shares.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, share.ErrNotFound) {
			middleware.RespondError(c, apierrors.ErrContentNotFoundError)
			return
		}
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "share", "get")
		middleware.RespondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, sh)
}
