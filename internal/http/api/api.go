package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hirestack/jobboard-auth/internal/attempts"
	"github.com/hirestack/jobboard-auth/internal/authflow"
	"github.com/hirestack/jobboard-auth/internal/http/api/handlers"
	"github.com/hirestack/jobboard-auth/internal/identity"
	"github.com/hirestack/jobboard-auth/internal/models"
	"github.com/hirestack/jobboard-auth/internal/ratelimit"
	"github.com/hirestack/jobboard-auth/internal/token"
	"github.com/hirestack/jobboard-auth/internal/twofactor"
	"gorm.io/gorm"
)

// Per-IP request budgets for the credential endpoints. These throttle raw
// request volume; account lockout handles per-identifier failures.
const (
	loginRequestsPerMinute   = 10
	refreshRequestsPerMinute = 60
)

// Deps bundles the services the HTTP layer exposes.
type Deps struct {
	DB        *gorm.DB
	Users     *identity.Store
	Tokens    *token.Service
	TwoFA     *twofactor.Authenticator
	Tracker   *attempts.Tracker
	Flow      *authflow.Orchestrator
	RateLimit *ratelimit.Manager
}

// RegisterRoutes registers the public, authenticated, and admin route groups.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	v1 := r.Group("/v1/auth")

	authHandler := handlers.NewAuthHandler(deps.Users, deps.Flow, deps.Tokens)
	v1.POST("/register", rateLimitMiddleware(deps.RateLimit, "register", loginRequestsPerMinute), authHandler.Register)
	v1.POST("/login", rateLimitMiddleware(deps.RateLimit, "login", loginRequestsPerMinute), authHandler.Login)
	v1.POST("/login/2fa", rateLimitMiddleware(deps.RateLimit, "login2fa", loginRequestsPerMinute), authHandler.LoginTwoFactor)
	v1.POST("/refresh", rateLimitMiddleware(deps.RateLimit, "refresh", refreshRequestsPerMinute), authHandler.Refresh)
	v1.POST("/logout", authHandler.Logout)

	authed := v1.Group("")
	authed.Use(authMiddleware(deps.Tokens))
	authed.GET("/me", authHandler.Me)
	authed.POST("/logout-all", authHandler.LogoutAll)
	authed.PUT("/password", authHandler.ChangePassword)

	twoFactorHandler := handlers.NewTwoFactorHandler(deps.Users, deps.TwoFA)
	authed.POST("/2fa/setup", twoFactorHandler.BeginSetup)
	authed.POST("/2fa/confirm", twoFactorHandler.ConfirmSetup)
	authed.POST("/2fa/disable", twoFactorHandler.Disable)
	authed.POST("/2fa/backup-codes", twoFactorHandler.RegenerateBackupCodes)

	admin := v1.Group("/admin")
	admin.Use(authMiddleware(deps.Tokens))
	admin.Use(adminMiddleware())

	adminHandler := handlers.NewAdminHandler(deps.Flow, deps.Tokens, deps.Tracker)
	admin.GET("/lockouts/status", adminHandler.LockoutStatus)
	admin.POST("/lockouts/unlock", adminHandler.Unlock)
	admin.GET("/attempts/stats", adminHandler.AttemptStats)
	admin.POST("/users/:id/revoke-tokens", adminHandler.RevokeTokens)
}

// rateLimitMiddleware throttles requests per client IP within a one-minute
// window. Backend failures fail open inside the manager, never here.
func rateLimitMiddleware(limiter *ratelimit.Manager, scope string, perMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := scope + ":" + c.ClientIP()
		result, errAllow := limiter.Allow(c.Request.Context(), key, perMinute, time.Minute)
		if errAllow != nil || result.Allowed {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
	}
}

// authMiddleware validates bearer tokens and loads the user into the
// request context.
func authMiddleware(tokens *token.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		raw := strings.TrimPrefix(authHeader, "Bearer ")
		if raw == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		user, claims, errVerify := tokens.VerifyAccessToken(c.Request.Context(), raw)
		if errVerify != nil {
			switch token.ReasonOf(errVerify) {
			case token.ReasonExpired:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token expired"})
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			}
			return
		}

		c.Set(handlers.ContextUserKey, user)
		c.Set(handlers.ContextClaimsKey, claims)
		c.Next()
	}
}

// adminMiddleware requires the authenticated user to hold the admin role.
func adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := handlers.CurrentUser(c)
		if user == nil || user.Role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}
