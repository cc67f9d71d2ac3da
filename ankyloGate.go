package ankylogate

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// KeyFunc extracts the identity a request is limited by
type KeyFunc func(c *gin.Context) string

type MiddlewareConfig struct {
	// defaults to the client IP
	KeyFunc KeyFunc
	// defaults to SystemClock
	Clock  Clock
	Logger *zap.Logger
}

// ClientIPKey limits by c.ClientIP()
func ClientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// HeaderKey limits by the value of header, falling back to the client IP when it is absent
func HeaderKey(header string) KeyFunc {
	return func(c *gin.Context) string {
		if v := c.GetHeader(header); v != "" {
			return v
		}
		return c.ClientIP()
	}
}

// RateLimiterMiddleware returns a gin middleware that admits each request
// through limiter. endpointPolicies maps "METHOD /route" to a dedicated limiter
// for that route; those requests are counted separately per endpoint.
func RateLimiterMiddleware(limiter RateLimiter, config MiddlewareConfig, endpointPolicies ...map[string]RateLimiter) gin.HandlerFunc {
	keyFn := config.KeyFunc
	if keyFn == nil {
		keyFn = ClientIPKey
	}
	clock := config.Clock
	if clock == nil {
		clock = SystemClock
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var policies map[string]RateLimiter
	if len(endpointPolicies) > 0 {
		policies = endpointPolicies[0]
	}
	if limiter == nil && len(policies) == 0 {
		logger.Warn("no rate limiting configured, all requests will pass through")
	}

	return func(c *gin.Context) {
		identity := keyFn(c)

		// Build key from method + path: "POST /login", "GET /search"
		endpoint := c.Request.Method + " " + c.FullPath()

		activeLimiter := limiter
		storeKey := identity
		if policy, exists := policies[endpoint]; exists {
			activeLimiter = policy
			storeKey = identity + ":" + endpoint
		}
		if activeLimiter == nil {
			c.Next()
			return
		}

		now := clock()
		if activeLimiter.Record(storeKey, now) {
			c.Next()
			return
		}

		wait := activeLimiter.TimeUntilNextAllowed(storeKey, now)
		logger.Debug("request denied",
			zap.String("identity", identity),
			zap.String("endpoint", endpoint),
			zap.Duration("retry_after", wait),
		)

		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":          "Too many requests. Please try again later.",
			"retry_after_ms": wait.Milliseconds(),
		})
	}
}
