package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath    = "CONFIG_PATH"
	EnvDBConnection  = "DB_CONNECTION"
	EnvJWTSecret     = "JWT_SECRET"
	EnvAccessTTL     = "JWT_ACCESS_TTL"
	EnvRefreshTTL    = "JWT_REFRESH_TTL"
	EnvMaxAttempts   = "LOCKOUT_MAX_ATTEMPTS"
	EnvAttemptWindow = "LOCKOUT_ATTEMPT_WINDOW"
	EnvLockDuration  = "LOCKOUT_DURATION"
	EnvRedisAddr     = "CHALLENGE_REDIS_ADDR"
	EnvRedisPassword = "CHALLENGE_REDIS_PASSWORD"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// ErrMissingJWTSecret indicates no token signing secret is configured.
var ErrMissingJWTSecret = errors.New("missing jwt secret (set `jwt.secret` in config file or JWT_SECRET)")

// JWTConfig holds token signing and lifetime settings.
type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	Issuer     string        `yaml:"issuer"`
	AccessTTL  time.Duration `yaml:"access-ttl"`
	RefreshTTL time.Duration `yaml:"refresh-ttl"`
}

// LockoutConfig holds failed-attempt and lockout thresholds.
type LockoutConfig struct {
	MaxFailedAttempts  int           `yaml:"max-failed-attempts"`
	AttemptWindow      time.Duration `yaml:"attempt-window"`
	LockoutDuration    time.Duration `yaml:"lockout-duration"`
	MaxLockoutDuration time.Duration `yaml:"max-lockout-duration"`
}

// TwoFactorConfig holds TOTP provisioning settings.
type TwoFactorConfig struct {
	Issuer       string        `yaml:"issuer"`
	ChallengeTTL time.Duration `yaml:"challenge-ttl"`
}

// RedisConfig holds the optional Redis backend for login challenges.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Defaults applied when the config file omits or invalidates values.
const (
	defaultAccessTTL          = 15 * time.Minute
	defaultRefreshTTL         = 30 * 24 * time.Hour
	defaultIssuer             = "jobboard-auth"
	defaultMaxFailedAttempts  = 5
	defaultAttemptWindow      = 15 * time.Minute
	defaultLockoutDuration    = 30 * time.Minute
	defaultMaxLockoutDuration = 24 * time.Hour
	defaultTOTPIssuer         = "JobBoard"
	defaultChallengeTTL       = 5 * time.Minute
	defaultRedisPrefix        = "jba:challenge"
)

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// LoadJWTConfig loads token settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for token settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{
		Issuer:     defaultIssuer,
		AccessTTL:  defaultAccessTTL,
		RefreshTTL: defaultRefreshTTL,
	}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if ttl, ok := envDuration(EnvAccessTTL); ok {
		result.AccessTTL = ttl
	}
	if ttl, ok := envDuration(EnvRefreshTTL); ok {
		result.RefreshTTL = ttl
	}

	if strings.TrimSpace(result.Issuer) == "" {
		result.Issuer = defaultIssuer
	}
	if result.AccessTTL <= 0 {
		result.AccessTTL = defaultAccessTTL
	}
	if result.RefreshTTL <= 0 {
		result.RefreshTTL = defaultRefreshTTL
	}
	if strings.TrimSpace(result.Secret) == "" {
		return result, ErrMissingJWTSecret
	}
	return result, nil
}

// LoadLockoutConfig loads lockout thresholds from the YAML config file.
func LoadLockoutConfig(configPath string) (LockoutConfig, error) {
	// fileConfig maps the YAML fields needed for lockout settings.
	type fileConfig struct {
		Lockout LockoutConfig `yaml:"lockout"`
	}

	result := LockoutConfig{
		MaxFailedAttempts:  defaultMaxFailedAttempts,
		AttemptWindow:      defaultAttemptWindow,
		LockoutDuration:    defaultLockoutDuration,
		MaxLockoutDuration: defaultMaxLockoutDuration,
	}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Lockout
		}
	}

	if raw := strings.TrimSpace(os.Getenv(EnvMaxAttempts)); raw != "" {
		if n, errParse := strconv.Atoi(raw); errParse == nil && n > 0 {
			result.MaxFailedAttempts = n
		}
	}
	if window, ok := envDuration(EnvAttemptWindow); ok {
		result.AttemptWindow = window
	}
	if duration, ok := envDuration(EnvLockDuration); ok {
		result.LockoutDuration = duration
	}

	if result.MaxFailedAttempts <= 0 {
		result.MaxFailedAttempts = defaultMaxFailedAttempts
	}
	if result.AttemptWindow <= 0 {
		result.AttemptWindow = defaultAttemptWindow
	}
	if result.LockoutDuration <= 0 {
		result.LockoutDuration = defaultLockoutDuration
	}
	if result.MaxLockoutDuration <= 0 {
		result.MaxLockoutDuration = defaultMaxLockoutDuration
	}
	return result, nil
}

// LoadTwoFactorConfig loads TOTP settings from the YAML config file.
func LoadTwoFactorConfig(configPath string) (TwoFactorConfig, error) {
	// fileConfig maps the YAML fields needed for 2FA settings.
	type fileConfig struct {
		TwoFactor TwoFactorConfig `yaml:"two-factor"`
	}

	result := TwoFactorConfig{
		Issuer:       defaultTOTPIssuer,
		ChallengeTTL: defaultChallengeTTL,
	}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.TwoFactor
		}
	}

	if strings.TrimSpace(result.Issuer) == "" {
		result.Issuer = defaultTOTPIssuer
	}
	if result.ChallengeTTL <= 0 {
		result.ChallengeTTL = defaultChallengeTTL
	}
	return result, nil
}

// LoadRedisConfig loads the optional challenge-store Redis settings.
func LoadRedisConfig(configPath string) (RedisConfig, error) {
	// fileConfig maps the YAML fields needed for Redis settings.
	type fileConfig struct {
		Redis RedisConfig `yaml:"redis"`
	}

	result := RedisConfig{Prefix: defaultRedisPrefix}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Redis
		}
	}

	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		result.Addr = addr
	}
	if password := strings.TrimSpace(os.Getenv(EnvRedisPassword)); password != "" {
		result.Password = password
	}

	result.Addr = strings.TrimSpace(result.Addr)
	if result.DB < 0 {
		result.DB = 0
	}
	if strings.TrimSpace(result.Prefix) == "" {
		result.Prefix = defaultRedisPrefix
	}
	return result, nil
}

func envDuration(name string) (time.Duration, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	d, errParse := time.ParseDuration(raw)
	if errParse != nil || d <= 0 {
		return 0, false
	}
	return d, true
}
