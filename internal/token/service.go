// Package token issues, verifies, and revokes the signed access/refresh
// token pairs used by the authentication flow.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hirestack/jobboard-auth/internal/config"
	"github.com/hirestack/jobboard-auth/internal/identity"
	"github.com/hirestack/jobboard-auth/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Token type claim values. The typ claim prevents cross-use of access and
// refresh tokens.
const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// Claims carries the signed token payload.
type Claims struct {
	jwt.RegisteredClaims
	UserID        uint64 `json:"user_id"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	TokenType     string `json:"typ"`
}

// Pair is an issued access/refresh token pair.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// Service signs and verifies tokens and owns refresh-token persistence.
//
// Access tokens are stateless apart from a liveness re-check of the user;
// refresh tokens are redeemable only while their database row is live, which
// trades pure statelessness for revocability.
type Service struct {
	db    *gorm.DB
	users *identity.Store
	cfg   config.JWTConfig
	nowFn func() time.Time
}

// NewService constructs a Service.
func NewService(db *gorm.DB, users *identity.Store, cfg config.JWTConfig) *Service {
	return &Service{db: db, users: users, cfg: cfg, nowFn: time.Now}
}

// NewServiceWithClock constructs a Service with an injected clock for tests.
func NewServiceWithClock(db *gorm.DB, users *identity.Store, cfg config.JWTConfig, nowFn func() time.Time) *Service {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Service{db: db, users: users, cfg: cfg, nowFn: nowFn}
}

// AccessTTL returns the configured access-token lifetime.
func (s *Service) AccessTTL() time.Duration {
	return s.cfg.AccessTTL
}

// CreateTokenPair issues an access and refresh token for the user and
// persists the refresh-token record.
func (s *Service) CreateTokenPair(ctx context.Context, user *models.User) (Pair, error) {
	if user == nil {
		return Pair{}, fmt.Errorf("token: nil user")
	}
	now := s.nowFn().UTC()

	access, _, errAccess := s.signAccess(user, now)
	if errAccess != nil {
		return Pair{}, errAccess
	}

	refresh, jti, errRefresh := s.signRefresh(user.ID, now)
	if errRefresh != nil {
		return Pair{}, errRefresh
	}

	record := models.RefreshToken{
		JTI:       jti,
		UserID:    user.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&record).Error; errCreate != nil {
		return Pair{}, fmt.Errorf("token: persist refresh record: %w", errCreate)
	}

	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessTTL.Seconds()),
	}, nil
}

// VerifyAccessToken validates an access token and returns the current user.
// The user row is re-read so a deactivated account fails even while its
// token is cryptographically valid.
func (s *Service) VerifyAccessToken(ctx context.Context, tokenString string) (*models.User, *Claims, error) {
	claims, errParse := s.parse(tokenString)
	if errParse != nil {
		return nil, nil, errParse
	}
	if claims.TokenType != typeAccess {
		return nil, nil, &Error{Reason: ReasonWrongType}
	}

	user, errFind := s.users.FindByID(ctx, claims.UserID)
	if errFind != nil {
		if errors.Is(errFind, identity.ErrNotFound) {
			return nil, nil, &Error{Reason: ReasonUserNotFound}
		}
		return nil, nil, fmt.Errorf("token: load user: %w", errFind)
	}
	if !user.IsActive {
		return nil, nil, &Error{Reason: ReasonUserDeactivated}
	}
	return user, claims, nil
}

// RefreshAccessToken redeems a refresh token for a new access token.
//
// Redemption requires both a valid signature/expiry and a live, non-revoked
// refresh-token record. The user is re-read so the new access token carries
// current role/email/verification data. The refresh token itself is not
// rotated.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (string, *models.User, error) {
	now := s.nowFn().UTC()

	claims, errParse := s.parse(refreshToken)
	if errParse != nil {
		reason := ReasonOf(errParse)
		if reason == ReasonExpired {
			s.revokeExpiredRecord(ctx, refreshToken)
		}
		return "", nil, errParse
	}
	if claims.TokenType != typeRefresh {
		return "", nil, &Error{Reason: ReasonWrongType}
	}

	var record models.RefreshToken
	errFind := s.db.WithContext(ctx).Where("jti = ?", claims.ID).First(&record).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return "", nil, &Error{Reason: ReasonRevoked, Err: errors.New("no refresh record")}
		}
		return "", nil, fmt.Errorf("token: load refresh record: %w", errFind)
	}
	if record.IsRevoked {
		return "", nil, &Error{Reason: ReasonRevoked}
	}
	if !record.ExpiresAt.After(now) {
		s.markRevoked(ctx, record.JTI)
		return "", nil, &Error{Reason: ReasonExpired}
	}

	user, errUser := s.users.FindByID(ctx, claims.UserID)
	if errUser != nil {
		if errors.Is(errUser, identity.ErrNotFound) {
			return "", nil, &Error{Reason: ReasonUserNotFound}
		}
		return "", nil, fmt.Errorf("token: load user: %w", errUser)
	}
	if !user.IsActive {
		return "", nil, &Error{Reason: ReasonUserDeactivated}
	}

	if errTouch := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("jti = ?", record.JTI).
		Updates(map[string]any{"last_used": now, "updated_at": now}).Error; errTouch != nil {
		log.WithError(errTouch).Warn("token: stamp last_used failed")
	}

	access, _, errAccess := s.signAccess(user, now)
	if errAccess != nil {
		return "", nil, errAccess
	}
	return access, user, nil
}

// Revoke flips the record for one refresh token. Idempotent; revoking an
// already-revoked or unknown token is not an error.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	claims, errParse := s.parseAllowExpired(refreshToken)
	if errParse != nil {
		return errParse
	}
	if claims.TokenType != typeRefresh {
		return &Error{Reason: ReasonWrongType}
	}
	return s.markRevoked(ctx, claims.ID)
}

// RevokeAll revokes every live refresh token for a user. Idempotent.
func (s *Service) RevokeAll(ctx context.Context, userID uint64) error {
	now := s.nowFn().UTC()
	errUpdate := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND is_revoked = ?", userID, false).
		Updates(map[string]any{"is_revoked": true, "updated_at": now}).Error
	if errUpdate != nil {
		return fmt.Errorf("token: revoke all: %w", errUpdate)
	}
	return nil
}

// Sweep deletes refresh-token records past expiry. Hygiene only;
// redeemability never depends on it.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	now := s.nowFn().UTC()
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("token: sweep: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Service) signAccess(user *models.User, now time.Time) (string, string, error) {
	jti := uuid.NewString()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
		UserID:        user.ID,
		Email:         user.Email,
		Role:          user.Role,
		EmailVerified: user.EmailVerified,
		TokenType:     typeAccess,
	}
	signed, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if errSign != nil {
		return "", "", fmt.Errorf("token: sign access: %w", errSign)
	}
	return signed, jti, nil
}

func (s *Service) signRefresh(userID uint64, now time.Time) (string, string, error) {
	jti := uuid.NewString()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTTL)),
		},
		UserID:    userID,
		TokenType: typeRefresh,
	}
	signed, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if errSign != nil {
		return "", "", fmt.Errorf("token: sign refresh: %w", errSign)
	}
	return signed, jti, nil
}

func (s *Service) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return []byte(s.cfg.Secret), nil
}

func (s *Service) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, errParse := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithTimeFunc(func() time.Time { return s.nowFn().UTC() }))
	if errParse != nil {
		if errors.Is(errParse, jwt.ErrTokenExpired) {
			return nil, &Error{Reason: ReasonExpired, Err: errParse}
		}
		return nil, &Error{Reason: ReasonInvalidSignature, Err: errParse}
	}
	if !parsed.Valid {
		return nil, &Error{Reason: ReasonInvalidSignature}
	}
	return claims, nil
}

// parseAllowExpired checks the signature but tolerates an expired exp claim,
// so revocation of an expired token stays idempotent.
func (s *Service) parseAllowExpired(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, errParse := parser.ParseWithClaims(tokenString, claims, s.keyFunc); errParse != nil {
		return nil, &Error{Reason: ReasonInvalidSignature, Err: errParse}
	}
	return claims, nil
}

// revokeExpiredRecord is the cleanup-on-read path: an expired refresh token
// presented for verification gets its record revoked as a side effect.
func (s *Service) revokeExpiredRecord(ctx context.Context, tokenString string) {
	claims, errParse := s.parseAllowExpired(tokenString)
	if errParse != nil || claims.TokenType != typeRefresh || claims.ID == "" {
		return
	}
	if errRevoke := s.markRevoked(ctx, claims.ID); errRevoke != nil {
		log.WithError(errRevoke).Warn("token: cleanup-on-read revoke failed")
	}
}

func (s *Service) markRevoked(ctx context.Context, jti string) error {
	if jti == "" {
		return nil
	}
	now := s.nowFn().UTC()
	errUpdate := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("jti = ? AND is_revoked = ?", jti, false).
		Updates(map[string]any{"is_revoked": true, "updated_at": now}).Error
	if errUpdate != nil {
		return fmt.Errorf("token: revoke: %w", errUpdate)
	}
	return nil
}
