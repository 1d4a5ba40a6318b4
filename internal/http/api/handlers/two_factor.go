package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hirestack/jobboard-auth/internal/identity"
	"github.com/hirestack/jobboard-auth/internal/twofactor"
)

// TwoFactorHandler serves the two-factor enrollment endpoints.
type TwoFactorHandler struct {
	users *identity.Store
	twoFA *twofactor.Authenticator
}

// NewTwoFactorHandler constructs a TwoFactorHandler.
func NewTwoFactorHandler(users *identity.Store, twoFA *twofactor.Authenticator) *TwoFactorHandler {
	return &TwoFactorHandler{users: users, twoFA: twoFA}
}

// BeginSetup provisions a pending TOTP secret and returns the QR code and
// backup codes. The codes are shown once; only their digests are stored.
func (h *TwoFactorHandler) BeginSetup(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	setup, errSetup := h.twoFA.BeginSetup(c.Request.Context(), user.ID)
	if errSetup != nil {
		if twofactor.ReasonOf(errSetup) == twofactor.ReasonAlreadyEnabled {
			c.JSON(http.StatusConflict, gin.H{"error": "two-factor already enabled"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "setup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"secret":           setup.Secret,
		"provisioning_uri": setup.ProvisioningURI,
		"qr_code_png":      base64.StdEncoding.EncodeToString(setup.QRCodePNG),
		"backup_codes":     setup.BackupCodes,
	})
}

type confirmSetupRequest struct {
	Code string `json:"code"`
}

// ConfirmSetup activates the pending secret once the user proves they can
// generate codes from it.
func (h *TwoFactorHandler) ConfirmSetup(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	var body confirmSetupRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	if errConfirm := h.twoFA.ConfirmSetup(c.Request.Context(), user.ID, body.Code); errConfirm != nil {
		switch twofactor.ReasonOf(errConfirm) {
		case twofactor.ReasonSetupNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "no pending setup"})
		case twofactor.ReasonInvalidCode:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid verification code"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "confirm failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type disableTwoFactorRequest struct {
	Password string `json:"password"`
}

// Disable turns two-factor off. The current password is required so a
// stolen session alone cannot weaken the account.
func (h *TwoFactorHandler) Disable(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	var body disableTwoFactorRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if !h.users.VerifyPassword(user, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "password incorrect"})
		return
	}

	if errDisable := h.twoFA.Disable(c.Request.Context(), user.ID); errDisable != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type regenerateBackupCodesRequest struct {
	Password string `json:"password"`
}

// RegenerateBackupCodes replaces the backup code batch and returns the
// fresh codes. Requires the current password.
func (h *TwoFactorHandler) RegenerateBackupCodes(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	var body regenerateBackupCodesRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if !h.users.VerifyPassword(user, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "password incorrect"})
		return
	}

	codes, errRegen := h.twoFA.RegenerateBackupCodes(c.Request.Context(), user.ID)
	if errRegen != nil {
		if twofactor.ReasonOf(errRegen) == twofactor.ReasonNotEnabled {
			c.JSON(http.StatusConflict, gin.H{"error": "two-factor not enabled"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "regenerate failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"backup_codes": codes})
}
