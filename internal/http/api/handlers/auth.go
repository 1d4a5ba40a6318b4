package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hirestack/jobboard-auth/internal/authflow"
	"github.com/hirestack/jobboard-auth/internal/identity"
	"github.com/hirestack/jobboard-auth/internal/models"
	"github.com/hirestack/jobboard-auth/internal/token"
	"github.com/hirestack/jobboard-auth/internal/twofactor"
)

// AuthHandler serves registration, login, and session endpoints.
type AuthHandler struct {
	users  *identity.Store
	flow   *authflow.Orchestrator
	tokens *token.Service
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *identity.Store, flow *authflow.Orchestrator, tokens *token.Service) *AuthHandler {
	return &AuthHandler{users: users, flow: flow, tokens: tokens}
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Register creates a new account.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.TrimSpace(body.Email)
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing email"})
		return
	}
	if len(body.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
		return
	}
	role := strings.TrimSpace(body.Role)
	if role == "" {
		role = models.RoleJobSeeker
	}
	if role != models.RoleJobSeeker && role != models.RoleEmployer {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	user, errRegister := h.users.Register(c.Request.Context(), email, strings.TrimSpace(body.Name), body.Password, role)
	if errRegister != nil {
		if errors.Is(errRegister, identity.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "register failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": userPayload(user)})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login runs the credential check and returns tokens or a pending
// two-factor challenge.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	result, errLogin := h.flow.Login(c.Request.Context(), authflow.LoginInput{
		Email:     body.Email,
		Password:  body.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if errLogin != nil {
		writeLoginError(c, errLogin)
		return
	}
	writeLoginResult(c, result)
}

type loginTwoFactorRequest struct {
	ChallengeID  string `json:"challenge_id"`
	Code         string `json:"code"`
	IsBackupCode bool   `json:"is_backup_code"`
}

// LoginTwoFactor completes a pending login with a TOTP or backup code.
func (h *AuthHandler) LoginTwoFactor(c *gin.Context) {
	var body loginTwoFactorRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.ChallengeID) == "" || strings.TrimSpace(body.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing challenge_id or code"})
		return
	}

	result, errComplete := h.flow.CompleteTwoFactor(c.Request.Context(), body.ChallengeID, body.Code, body.IsBackupCode)
	if errComplete != nil {
		writeLoginError(c, errComplete)
		return
	}
	writeLoginResult(c, result)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a refresh token for a new access token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var body refreshRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.RefreshToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing refresh_token"})
		return
	}

	access, _, errRefresh := h.flow.Refresh(c.Request.Context(), body.RefreshToken)
	if errRefresh != nil {
		writeTokenError(c, errRefresh)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   int(h.tokens.AccessTTL().Seconds()),
	})
}

// Logout revokes the presented refresh token.
func (h *AuthHandler) Logout(c *gin.Context) {
	var body refreshRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.RefreshToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing refresh_token"})
		return
	}
	if errRevoke := h.flow.Logout(c.Request.Context(), body.RefreshToken); errRevoke != nil {
		writeTokenError(c, errRevoke)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// LogoutAll revokes every refresh token for the authenticated user.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	if errRevoke := h.flow.LogoutAll(c.Request.Context(), user.ID); errRevoke != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "revoke failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userPayload(user)})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword updates the password after re-verifying the current one,
// then revokes all outstanding refresh tokens.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	var body changePasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if !h.users.VerifyPassword(user, body.CurrentPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "current password incorrect"})
		return
	}
	if len(body.NewPassword) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
		return
	}
	if errSet := h.users.SetPassword(c.Request.Context(), user.ID, body.NewPassword); errSet != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "change password failed"})
		return
	}
	if errRevoke := h.flow.LogoutAll(c.Request.Context(), user.ID); errRevoke != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "revoke failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeLoginResult(c *gin.Context, result *authflow.LoginResult) {
	if result.TwoFactorRequired {
		c.JSON(http.StatusOK, gin.H{
			"two_factor_required": true,
			"challenge_id":        result.ChallengeID,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  result.Tokens.AccessToken,
		"refresh_token": result.Tokens.RefreshToken,
		"token_type":    "Bearer",
		"expires_in":    result.Tokens.ExpiresIn,
		"user":          userPayload(result.User),
	})
}

func writeLoginError(c *gin.Context, err error) {
	if locked, ok := authflow.IsAccountLocked(err); ok {
		c.JSON(http.StatusLocked, gin.H{
			"error":             locked.Error(),
			"minutes_remaining": locked.MinutesRemaining,
		})
		return
	}
	if errors.Is(err, authflow.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": authflow.ErrInvalidCredentials.Error()})
		return
	}
	if errors.Is(err, authflow.ErrChallengeNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "challenge expired, log in again"})
		return
	}
	switch twofactor.ReasonOf(err) {
	case twofactor.ReasonInvalidCode:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid verification code"})
		return
	case twofactor.ReasonNotEnabled:
		// 2FA was disabled between login and challenge verification; the
		// client should restart with a plain login.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "two-factor authentication not enabled, log in again"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
}

func writeTokenError(c *gin.Context, err error) {
	switch token.ReasonOf(err) {
	case token.ReasonExpired:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token expired"})
	case token.ReasonRevoked:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
	case token.ReasonInvalidSignature, token.ReasonWrongType, token.ReasonUserNotFound, token.ReasonUserDeactivated:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token operation failed"})
	}
}

func userPayload(user *models.User) gin.H {
	return gin.H{
		"id":                 user.ID,
		"email":              user.Email,
		"name":               user.Name,
		"role":               user.Role,
		"email_verified":     user.EmailVerified,
		"two_factor_enabled": user.TwoFactorEnabled,
	}
}
