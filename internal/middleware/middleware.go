package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"table-settlement/internal/logger"
	"table-settlement/internal/models"
	"table-settlement/internal/services"
	"table-settlement/internal/utils"
)

const (
	HeaderSessionID     = "X-Session-Id"
	HeaderSessionSecret = "X-Session-Secret"

	// SessionKey is the gin context key holding the authenticated *models.TableSession.
	SessionKey = "tableSession"
)

func EnhancedLogger(log *logger.Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		duration := param.Latency.String()
		status := fmt.Sprintf("%d", param.StatusCode)

		if param.StatusCode >= 500 {
			log.Error("API", fmt.Sprintf("%s %s - %s (%s) - ERROR: %s",
				param.Method, param.Path, status, duration, param.ErrorMessage))
		} else if param.StatusCode >= 400 {
			log.Warn("API", fmt.Sprintf("%s %s - %s (%s) - Client Error",
				param.Method, param.Path, status, duration))
		} else {
			log.LogAPI(param.Method, param.Path, status, duration)
		}

		log.Debug("REQUEST", fmt.Sprintf("IP: %s, UserAgent: %s",
			param.ClientIP, param.Request.UserAgent()))

		// output goes through our logger
		return ""
	})
}

func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error("PANIC", fmt.Sprintf("Recovered from panic on %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error", nil)
		c.Abort()
	})
}

func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, "+
			HeaderSessionID+", "+HeaderSessionSecret+", Stripe-Signature")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimit allows perSecond requests per second across all clients.
func RateLimit(perSecond int, log *logger.Logger) gin.HandlerFunc {
	if perSecond < 1 {
		perSecond = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), perSecond)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			log.LogSecurity("RATE_LIMIT", fmt.Sprintf("Rate limit exceeded for IP: %s", c.ClientIP()))
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, utils.Response{
				Success: false,
				Message: "Rate limit exceeded",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func SecurityHeaders(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

		if c.GetHeader("X-Forwarded-For") != "" {
			log.LogSecurity("PROXY_REQUEST", fmt.Sprintf("Request via proxy from: %s", c.GetHeader("X-Forwarded-For")))
		}

		c.Next()
	}
}

// SessionValidator checks a table session credential.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID, secret string) (*models.TableSession, error)
}

// SessionAuth gates customer routes on the session headers and stores the
// validated session under SessionKey.
func SessionAuth(sessions SessionValidator, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderSessionID)
		secret := c.GetHeader(HeaderSessionSecret)
		if id == "" || secret == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Missing session credentials", nil)
			c.Abort()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		session, err := sessions.ValidateSession(ctx, id, secret)
		if err != nil {
			if services.KindOf(err) != services.KindUnauthorized {
				log.Error("API", fmt.Sprintf("Session validation failed for %s: %v", id, err))
				utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to validate session", nil)
				c.Abort()
				return
			}
			log.LogSecurity("SESSION_REJECTED", fmt.Sprintf("Session %s from %s: %v", id, c.ClientIP(), err))
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid session", err)
			c.Abort()
			return
		}

		c.Set(SessionKey, session)
		c.Next()
	}
}

// CurrentSession returns the session stored by SessionAuth.
func CurrentSession(c *gin.Context) (*models.TableSession, bool) {
	v, ok := c.Get(SessionKey)
	if !ok {
		return nil, false
	}
	session, ok := v.(*models.TableSession)
	return session, ok
}
