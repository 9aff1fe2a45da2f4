package middleware

import (
	"errors"
	"strings"

	"github.com/aimerfeng/scribe/internal/auth"
	apierrors "github.com/aimerfeng/scribe/internal/errors"
	"github.com/aimerfeng/scribe/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys for storing request information
const (
	ContextKeyRequestID = "request_id"
	ContextKeyUserID    = "user_id"
	ContextKeyUserUUID  = "user_uuid"
	ContextKeyDecision  = "usage_decision"
)

// TokenHeader is the header existing clients send their token in
const TokenHeader = "x-auth-token"

// TokenVerifier validates a bearer token and yields the user it was issued to
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// TokenAuth rejects requests without a valid token and stores the user id
// in the context
func TokenAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			RespondError(c, apierrors.ErrMissingTokenError)
			c.Abort()
			return
		}

		userID, err := verifier.Verify(token)
		if err != nil {
			reason := "invalid_token"
			if errors.Is(err, auth.ErrTokenExpired) {
				reason = "expired_token"
			}
			logging.LogSecurityEvent(reason, "", c.ClientIP(), c.Request.URL.Path)
			RespondError(c, apierrors.ErrInvalidTokenError)
			c.Abort()
			return
		}

		c.Set(ContextKeyUserID, userID.String())
		c.Set(ContextKeyUserUUID, userID)
		c.Next()
	}
}

// extractToken prefers x-auth-token and falls back to a Bearer authorization header
func extractToken(c *gin.Context) string {
	if token := strings.TrimSpace(c.GetHeader(TokenHeader)); token != "" {
		return token
	}

	const bearerPrefix = "Bearer "
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > len(bearerPrefix) && strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(authHeader[len(bearerPrefix):])
	}
	return ""
}

// RespondError sends a standardized error response. An error without an
// explicit status gets the one its code implies.
func RespondError(c *gin.Context, err *apierrors.APIError) {
	status := err.HTTPStatus
	if status == 0 {
		status = apierrors.GetHTTPStatusFromCode(err.Code)
	}
	c.JSON(status, apierrors.NewErrorResponse(err, GetRequestIDFromContext(c)))
}

// GetUserIDFromContext returns the authenticated user id, or uuid.Nil
func GetUserIDFromContext(c *gin.Context) uuid.UUID {
	v, exists := c.Get(ContextKeyUserUUID)
	if !exists {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}

// GetRequestIDFromContext extracts the request ID from the gin context
// Returns empty string if not found
func GetRequestIDFromContext(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
