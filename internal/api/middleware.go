package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ticketing-service/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"

	RoleOrganizer = "organizer"
	RoleBuyer     = "buyer"
)

// AuthClaims are the bearer token claims issued by the identity provider.
// Subject carries the numeric user id.
type AuthClaims struct {
	Role string `json:"role"`
	jwt.StandardClaims
}

// RateLimiter counts hits per key inside a fixed window
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// requestLogger logs failed requests with the caller when known
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		if c.Writer.Status() < http.StatusBadRequest {
			return
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if id, ok := c.Get(userIDKey); ok {
			fields = append(fields, zap.Any("user_id", id))
		}
		util.GetLogger().Info("Request failed", fields...)
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	cfg.MaxAge = 12 * time.Hour
	return cors.New(cfg)
}

// bearerAuth verifies an HS256 bearer token and stores the caller on the context
func bearerAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw := strings.TrimPrefix(header, "Bearer ")
		if header == "" || raw == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token", "code": "unauthorized"})
			return
		}

		claims := &AuthClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token", "code": "unauthorized"})
			return
		}

		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid subject", "code": "unauthorized"})
			return
		}

		c.Set(userIDKey, userID)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

func requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(roleKey) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Requires role " + role, "code": "forbidden"})
			return
		}
		c.Next()
	}
}

// rateLimit caps requests per caller and route. A limiter failure lets the
// request through.
func rateLimit(limiter RateLimiter, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("%s:%d", c.FullPath(), c.GetInt64(userIDKey))
		allowed, err := limiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			util.GetLogger().Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests", "code": "rate_limited"})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}
