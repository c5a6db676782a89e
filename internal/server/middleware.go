package server

import (
	"errors"
	"strconv"
	"strings"

	creditdomain "github.com/flowforge/flowforge/internal/credit/domain"
	obscontext "github.com/flowforge/flowforge/internal/observability/context"
	"github.com/gin-gonic/gin"
)

const contextUserIDKey = "user_id"

// UserRequired resolves the caller from the X-User-Id header set by the
// fronting gateway and provisions the trial entitlement on first sight.
func (s *Server) UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader("X-User-Id"))
		if userID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := obscontext.WithUserID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)

		_, err := s.creditSvc.GetEntitlement(ctx, userID)
		if err != nil {
			if !errors.Is(err, creditdomain.ErrEntitlementNotFound) {
				AbortWithError(c, err)
				return
			}
			if _, err := s.creditSvc.ProvisionTrial(ctx, userID); err != nil {
				AbortWithError(c, err)
				return
			}
		}

		c.Set(contextUserIDKey, userID)
		c.Next()
	}
}

func (s *Server) currentUserID(c *gin.Context) string {
	return c.GetString(contextUserIDKey)
}

// GenerateRateLimit throttles generate calls per user and holds one
// in-flight generation per user while the handler runs.
func (s *Server) GenerateRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		userID := s.currentUserID(c)

		result, err := s.limiter.AllowUser(ctx, userID)
		if err != nil {
			// The limiter backing store being down should not take the
			// endpoint with it.
			c.Next()
			return
		}
		if !result.Allowed {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(ctx, "generate", "rate")
			}
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			}
			AbortWithError(c, ErrTooManyRequests)
			return
		}

		token, locked, err := s.limiter.TryLockUser(ctx, userID)
		if err == nil && !locked {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(ctx, "generate", "concurrency")
			}
			AbortWithError(c, ErrTooManyRequests)
			return
		}

		if s.obsMetrics != nil {
			s.obsMetrics.RecordRateLimitAllowed(ctx, "generate")
		}

		c.Next()

		if token != "" {
			_ = s.limiter.ReleaseUser(ctx, userID, token)
		}
	}
}
