package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/hirestack/jobboard-auth/internal/models"
	"github.com/hirestack/jobboard-auth/internal/token"
)

// Context keys set by the auth middleware.
const (
	ContextUserKey   = "auth.user"
	ContextClaimsKey = "auth.claims"
)

// CurrentUser returns the authenticated user loaded by the middleware.
func CurrentUser(c *gin.Context) *models.User {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}

// CurrentClaims returns the verified access-token claims.
func CurrentClaims(c *gin.Context) *token.Claims {
	value, ok := c.Get(ContextClaimsKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*token.Claims)
	if !ok {
		return nil
	}
	return claims
}
