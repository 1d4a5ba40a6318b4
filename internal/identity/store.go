// Package identity owns user credential records: lookups, password
// verification, and the mutations the authentication flow performs on them.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hirestack/jobboard-auth/internal/models"
	"github.com/hirestack/jobboard-auth/internal/security"
	"gorm.io/gorm"
)

// ErrNotFound indicates no user exists for the given key.
var ErrNotFound = errors.New("identity: user not found")

// ErrEmailTaken indicates a registration collided with an existing email.
var ErrEmailTaken = errors.New("identity: email already registered")

// Store provides credential lookups and mutations backed by the database.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// NormalizeEmail lowercases and trims an email so lookups and the unique
// index agree on one canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindByEmail returns the user for a (normalized) email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	errFind := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("identity: find by email: %w", errFind)
	}
	return &user, nil
}

// FindByID returns the user for an ID.
func (s *Store) FindByID(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User
	errFind := s.db.WithContext(ctx).First(&user, id).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("identity: find by id: %w", errFind)
	}
	return &user, nil
}

// VerifyPassword reports whether the plaintext matches the user's hash.
// OAuth-only accounts (no hash) never match.
func (s *Store) VerifyPassword(user *models.User, password string) bool {
	if user == nil {
		return false
	}
	return security.VerifyPassword(user.PasswordHash, password)
}

// Register creates a password-backed account with the given role.
func (s *Store) Register(ctx context.Context, email, name, password, role string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("identity: empty email")
	}
	if role == "" {
		role = models.RoleJobSeeker
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return nil, fmt.Errorf("identity: hash password: %w", errHash)
	}

	now := time.Now().UTC()
	user := models.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// The unique index on email is the only duplicate check: a pre-flight
	// lookup would race with concurrent registrations of the same address.
	if errCreate := s.db.WithContext(ctx).Create(&user).Error; errCreate != nil {
		if errors.Is(errCreate, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("identity: create user: %w", errCreate)
	}
	return &user, nil
}

// UpsertOAuthUser finds or creates the account for a verified external
// identity tuple. Accounts created here carry no password hash.
func (s *Store) UpsertOAuthUser(ctx context.Context, email, name, provider, providerID string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("identity: empty email")
	}

	user, errFind := s.FindByEmail(ctx, email)
	if errFind == nil {
		updates := map[string]any{
			"oauth_provider":    strings.TrimSpace(provider),
			"oauth_provider_id": strings.TrimSpace(providerID),
			"updated_at":        time.Now().UTC(),
		}
		if errUpdate := s.db.WithContext(ctx).Model(&models.User{}).
			Where("id = ?", user.ID).Updates(updates).Error; errUpdate != nil {
			return nil, fmt.Errorf("identity: link oauth: %w", errUpdate)
		}
		return s.FindByID(ctx, user.ID)
	}
	if !errors.Is(errFind, ErrNotFound) {
		return nil, errFind
	}

	now := time.Now().UTC()
	created := models.User{
		Email:           email,
		Name:            strings.TrimSpace(name),
		Role:            models.RoleJobSeeker,
		EmailVerified:   true,
		IsActive:        true,
		OAuthProvider:   strings.TrimSpace(provider),
		OAuthProviderID: strings.TrimSpace(providerID),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&created).Error; errCreate != nil {
		return nil, fmt.Errorf("identity: create oauth user: %w", errCreate)
	}
	return &created, nil
}

// UpdateLastLogin stamps the user's last successful login.
func (s *Store) UpdateLastLogin(ctx context.Context, userID uint64) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"last_login": now, "updated_at": now})
	if res.Error != nil {
		return fmt.Errorf("identity: update last login: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPassword replaces the user's password hash.
func (s *Store) SetPassword(ctx context.Context, userID uint64, password string) error {
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("identity: hash password: %w", errHash)
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"password_hash": hash, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("identity: set password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTwoFactor flips the user's 2FA flag and method.
func (s *Store) SetTwoFactor(ctx context.Context, userID uint64, enabled bool, method string) error {
	if !enabled {
		method = ""
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"two_factor_enabled": enabled,
			"two_factor_method":  method,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("identity: set two factor: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
