package middleware

import (
	"fmt"

	apierrors "github.com/aimerfeng/scribe/internal/errors"
	"github.com/aimerfeng/scribe/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewLimiterStore picks a Redis-backed store when a client is available so
// limits hold across replicas, and an in-process store otherwise
func NewLimiterStore(client *redis.Client) (limiter.Store, error) {
	if client == nil {
		return memory.NewStore(), nil
	}
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   "scribe:ratelimit",
		MaxRetry: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
	}
	return store, nil
}

// RateLimit limits requests per client IP. rate uses the "<limit>-<period>"
// format, e.g. "20-M".
func RateLimit(store limiter.Store, rate, route string) (gin.HandlerFunc, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}

	return mgin.NewMiddleware(
		limiter.New(store, r),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			monitoring.RecordRateLimitHit(route)
			RespondError(c, apierrors.ErrRateLimitedError)
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			// fail open: a broken limiter store must not lock users out
			log.Error().Err(err).Str("route", route).Msg("Rate limiter store error")
			c.Next()
		}),
	), nil
}
