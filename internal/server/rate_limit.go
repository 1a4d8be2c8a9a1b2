package server

import (
	"context"
	"time"

	"github.com/gebeyahq/gebeya/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type rateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*ratelimit.Result, error)
}

// RateLimitByIP applies the shared fixed-window limiter per client address.
// Webhook routes are never behind this middleware; providers retry on their
// own schedule and must not be throttled.
func (s *Server) RateLimitByIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || s.cfg.RateLimitRequests <= 0 {
			c.Next()
			return
		}

		ip := c.ClientIP()
		result, err := s.limiter.Allow(c.Request.Context(),
			"ratelimit:ip:"+ip, s.cfg.RateLimitRequests, s.cfg.RateLimitWindow)
		if err != nil {
			// Fail open: a limiter outage must not take checkout down.
			s.log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		endpoint := c.FullPath()
		if !result.Allowed {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), endpoint, "window_exhausted")
			}
			AbortWithError(c, &RateLimitError{RetryAfter: result.RetryAfter})
			return
		}

		if s.obsMetrics != nil {
			s.obsMetrics.RecordRateLimitAllowed(c.Request.Context(), endpoint)
		}
		c.Next()
	}
}
