package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hirestack/jobboard-auth/internal/attempts"
	"github.com/hirestack/jobboard-auth/internal/authflow"
	"github.com/hirestack/jobboard-auth/internal/models"
	"github.com/hirestack/jobboard-auth/internal/token"
)

// AdminHandler serves the operator endpoints for lockout and session
// management.
type AdminHandler struct {
	flow    *authflow.Orchestrator
	tokens  *token.Service
	tracker *attempts.Tracker
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(flow *authflow.Orchestrator, tokens *token.Service, tracker *attempts.Tracker) *AdminHandler {
	return &AdminHandler{flow: flow, tokens: tokens, tracker: tracker}
}

// LockoutStatus reports lockout and attempt state for an identifier.
func (h *AdminHandler) LockoutStatus(c *gin.Context) {
	identifier := strings.TrimSpace(c.Query("identifier"))
	if identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing identifier"})
		return
	}
	kind := normalizeIdentifierKind(c.Query("kind"))
	if kind == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kind"})
		return
	}

	status, errStatus := h.flow.LockoutStatus(c.Request.Context(), identifier, kind)
	if errStatus != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status query failed"})
		return
	}
	payload := gin.H{
		"is_locked":             status.IsLocked,
		"failed_attempts_count": status.FailedAttempts,
		"attempts_remaining":    status.AttemptsRemaining,
	}
	if status.LockedUntil != nil {
		payload["locked_until"] = status.LockedUntil.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, payload)
}

type unlockRequest struct {
	Identifier string `json:"identifier"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason"`
}

// Unlock lifts an active lockout.
func (h *AdminHandler) Unlock(c *gin.Context) {
	var body unlockRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	identifier := strings.TrimSpace(body.Identifier)
	if identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing identifier"})
		return
	}
	kind := normalizeIdentifierKind(body.Kind)
	if kind == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kind"})
		return
	}
	reason := strings.TrimSpace(body.Reason)
	if reason == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing reason"})
		return
	}

	unlocked, errUnlock := h.flow.Unlock(c.Request.Context(), identifier, kind, reason)
	if errUnlock != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unlock failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unlocked": unlocked})
}

// AttemptStats summarizes recent failed attempts grouped by identifier kind.
func (h *AdminHandler) AttemptStats(c *gin.Context) {
	window := 15 * time.Minute
	if raw := strings.TrimSpace(c.Query("window_minutes")); raw != "" {
		minutes, errParse := strconv.Atoi(raw)
		if errParse != nil || minutes <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window_minutes"})
			return
		}
		window = time.Duration(minutes) * time.Minute
	}

	stats, errStats := h.tracker.Stats(c.Request.Context(), window)
	if errStats != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"window_minutes": int(window.Minutes()),
		"stats":          stats,
	})
}

// RevokeTokens revokes every refresh token for the target user.
func (h *AdminHandler) RevokeTokens(c *gin.Context) {
	userID, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if errRevoke := h.tokens.RevokeAll(c.Request.Context(), userID); errRevoke != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "revoke failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func normalizeIdentifierKind(raw string) string {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "", models.IdentifierEmail:
		return models.IdentifierEmail
	case models.IdentifierIP:
		return models.IdentifierIP
	case models.IdentifierUserID:
		return models.IdentifierUserID
	default:
		return ""
	}
}
