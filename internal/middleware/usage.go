package middleware

import (
	"context"
	"errors"
	"strconv"

	apierrors "github.com/aimerfeng/scribe/internal/errors"
	"github.com/aimerfeng/scribe/internal/logging"
	"github.com/aimerfeng/scribe/internal/usage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Usage headers set on free-user responses
const (
	HeaderUsageLimit     = "X-Usage-Limit"
	HeaderUsageRemaining = "X-Usage-Remaining"
	HeaderUsageReset     = "X-Usage-Reset"
)

// Admitter decides whether a metered request may proceed
type Admitter interface {
	Admit(ctx context.Context, userID uuid.UUID) (*usage.Decision, error)
}

// UsageLimit consumes one unit of the caller's daily allowance before the
// handler runs. Must be used after TokenAuth.
func UsageLimit(gate Admitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserIDFromContext(c)
		requestID := GetRequestIDFromContext(c)

		d, err := gate.Admit(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, usage.ErrNotFound) {
				RespondError(c, apierrors.ErrUserNotFoundError)
			} else {
				logging.LogError(err, requestID, "usage", "admit")
				RespondError(c, apierrors.ErrInternalServerError)
			}
			c.Abort()
			return
		}

		logging.LogUsageDecision(&logging.UsageDecisionLogEntry{
			RequestID: requestID,
			UserID:    userID.String(),
			Allowed:   d.Allowed,
			Pro:       d.Pro,
			Reason:    d.Reason,
			Count:     d.Count,
			Limit:     d.Limit,
		})

		if !d.Pro {
			c.Header(HeaderUsageLimit, strconv.Itoa(d.Limit))
			c.Header(HeaderUsageRemaining, strconv.Itoa(d.Remaining))
			c.Header(HeaderUsageReset, strconv.FormatInt(d.ResetsAt.Unix(), 10))
		}

		if !d.Allowed {
			RespondError(c, apierrors.ErrDailyLimitReachedError)
			c.Abort()
			return
		}

		c.Set(ContextKeyDecision, d)
		c.Next()
	}
}
