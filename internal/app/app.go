package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/hirestack/jobboard-auth/internal/attempts"
	"github.com/hirestack/jobboard-auth/internal/authflow"
	"github.com/hirestack/jobboard-auth/internal/challenge"
	"github.com/hirestack/jobboard-auth/internal/config"
	"github.com/hirestack/jobboard-auth/internal/db"
	"github.com/hirestack/jobboard-auth/internal/http/api"
	"github.com/hirestack/jobboard-auth/internal/identity"
	"github.com/hirestack/jobboard-auth/internal/lockout"
	"github.com/hirestack/jobboard-auth/internal/models"
	"github.com/hirestack/jobboard-auth/internal/ratelimit"
	"github.com/hirestack/jobboard-auth/internal/token"
	"github.com/hirestack/jobboard-auth/internal/twofactor"
)

const sweepInterval = time.Hour

// Env vars for the first-run admin bootstrap.
const (
	EnvAdminEmail    = "ADMIN_EMAIL"
	EnvAdminPassword = "ADMIN_PASSWORD"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the authentication server with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	jwtCfg, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		return errJWT
	}
	lockCfg, errLock := config.LoadLockoutConfig(configPath)
	if errLock != nil {
		return errLock
	}
	twoFactorCfg, errTwoFactor := config.LoadTwoFactorConfig(configPath)
	if errTwoFactor != nil {
		return errTwoFactor
	}
	redisCfg, errRedis := config.LoadRedisConfig(configPath)
	if errRedis != nil {
		return errRedis
	}

	users := identity.NewStore(conn)
	tracker := attempts.NewTracker(conn)
	lockouts := lockout.NewManager(conn, tracker, lockCfg)
	tokens := token.NewService(conn, users, jwtCfg)
	twoFA := twofactor.NewAuthenticator(conn, users, twoFactorCfg)
	challenges := challenge.NewManager(redisCfg, twoFactorCfg.ChallengeTTL, nil, nil)
	flow := authflow.NewOrchestrator(users, tracker, lockouts, tokens, twoFA, challenges, lockCfg)
	limiter := ratelimit.NewManager(redisCfg, nil, nil)

	if errBootstrap := EnsureAdmin(ctx, users); errBootstrap != nil {
		return errBootstrap
	}

	r := gin.New()
	r.Use(gin.Recovery())
	api.RegisterRoutes(r, api.Deps{
		DB:        conn,
		Users:     users,
		Tokens:    tokens,
		TwoFA:     twoFA,
		Tracker:   tracker,
		Flow:      flow,
		RateLimit: limiter,
	})

	go runSweeps(ctx, tracker, lockouts, tokens, challenges)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.WithField("port", port).Info("auth server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// EnsureAdmin creates the bootstrap admin account on first run when
// ADMIN_EMAIL and ADMIN_PASSWORD are set and no admin exists yet.
func EnsureAdmin(ctx context.Context, users *identity.Store) error {
	email := strings.TrimSpace(os.Getenv(EnvAdminEmail))
	password := os.Getenv(EnvAdminPassword)
	if email == "" || password == "" {
		return nil
	}

	_, errFind := users.FindByEmail(ctx, email)
	if errFind == nil {
		return nil
	}
	if !errors.Is(errFind, identity.ErrNotFound) {
		return errFind
	}

	admin, errRegister := users.Register(ctx, email, "Administrator", password, models.RoleAdmin)
	if errRegister != nil {
		if errors.Is(errRegister, identity.ErrEmailTaken) {
			return nil
		}
		return errRegister
	}
	log.WithField("user_id", admin.ID).Info("bootstrap admin created")
	return nil
}

// runSweeps periodically deletes expired rows. Expiry itself is evaluated
// lazily at read time; this is storage hygiene only.
func runSweeps(ctx context.Context, tracker *attempts.Tracker, lockouts *lockout.Manager, tokens *token.Service, challenges *challenge.Manager) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if removed, errSweep := tracker.Sweep(ctx); errSweep != nil {
			log.WithError(errSweep).Warn("sweep: failed attempts")
		} else if removed > 0 {
			log.WithField("rows", removed).Debug("sweep: failed attempts removed")
		}
		if removed, errSweep := lockouts.Sweep(ctx); errSweep != nil {
			log.WithError(errSweep).Warn("sweep: lockouts")
		} else if removed > 0 {
			log.WithField("rows", removed).Debug("sweep: lockouts removed")
		}
		if removed, errSweep := tokens.Sweep(ctx); errSweep != nil {
			log.WithError(errSweep).Warn("sweep: refresh tokens")
		} else if removed > 0 {
			log.WithField("rows", removed).Debug("sweep: refresh tokens removed")
		}
		if removed := challenges.Sweep(); removed > 0 {
			log.WithField("rows", removed).Debug("sweep: challenges removed")
		}
	}
}
