package authflow

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hirestack/jobboard-auth/internal/attempts"
	"github.com/hirestack/jobboard-auth/internal/challenge"
	"github.com/hirestack/jobboard-auth/internal/config"
	"github.com/hirestack/jobboard-auth/internal/identity"
	"github.com/hirestack/jobboard-auth/internal/lockout"
	"github.com/hirestack/jobboard-auth/internal/models"
	"github.com/hirestack/jobboard-auth/internal/security"
	"github.com/hirestack/jobboard-auth/internal/token"
	"github.com/hirestack/jobboard-auth/internal/twofactor"
)

// LoginInput carries the credentials and request metadata for a login attempt.
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginResult is the outcome of a successful credential check: either a
// token pair, or a pending two-factor challenge the caller must complete.
type LoginResult struct {
	TwoFactorRequired bool
	ChallengeID       string
	Tokens            *token.Pair
	User              *models.User
}

// Orchestrator drives the login, refresh, and two-factor flows across the
// credential store, attempt tracker, lockout manager, and token service.
type Orchestrator struct {
	users      *identity.Store
	tracker    *attempts.Tracker
	lockouts   *lockout.Manager
	tokens     *token.Service
	twoFA      *twofactor.Authenticator
	challenges *challenge.Manager
	cfg        config.LockoutConfig
	nowFn      func() time.Time
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(
	users *identity.Store,
	tracker *attempts.Tracker,
	lockouts *lockout.Manager,
	tokens *token.Service,
	twoFA *twofactor.Authenticator,
	challenges *challenge.Manager,
	cfg config.LockoutConfig,
) *Orchestrator {
	return NewOrchestratorWithClock(users, tracker, lockouts, tokens, twoFA, challenges, cfg, time.Now)
}

// NewOrchestratorWithClock constructs an Orchestrator with an injected clock.
func NewOrchestratorWithClock(
	users *identity.Store,
	tracker *attempts.Tracker,
	lockouts *lockout.Manager,
	tokens *token.Service,
	twoFA *twofactor.Authenticator,
	challenges *challenge.Manager,
	cfg config.LockoutConfig,
	nowFn func() time.Time,
) *Orchestrator {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Orchestrator{
		users:      users,
		tracker:    tracker,
		lockouts:   lockouts,
		tokens:     tokens,
		twoFA:      twoFA,
		challenges: challenges,
		cfg:        cfg,
		nowFn:      nowFn,
	}
}

// Login runs the credential check. The lockout gate runs before the password
// check so probing a locked account does not add attempt rows. An unknown
// email still records an attempt and walks the same failure path as a wrong
// password, keeping responses indistinguishable.
func (o *Orchestrator) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := identity.NormalizeEmail(in.Email)

	if errLocked := o.requireUnlocked(ctx, email, models.IdentifierEmail); errLocked != nil {
		return nil, errLocked
	}
	if in.IPAddress != "" {
		if errLocked := o.requireUnlocked(ctx, in.IPAddress, models.IdentifierIP); errLocked != nil {
			return nil, errLocked
		}
	}

	user, errFind := o.users.FindByEmail(ctx, email)
	if errFind != nil {
		if errors.Is(errFind, identity.ErrNotFound) {
			// Burn a hash comparison so this rejection takes as long as a
			// wrong password would.
			security.DummyCompare(in.Password)
			return nil, o.registerFailure(ctx, email, in, "unknown email")
		}
		return nil, errFind
	}

	if !user.IsActive {
		security.DummyCompare(in.Password)
		return nil, o.registerFailure(ctx, email, in, "deactivated account")
	}
	if !o.users.VerifyPassword(user, in.Password) {
		return nil, o.registerFailure(ctx, email, in, "password mismatch")
	}

	o.clearAttempts(ctx, email, in.IPAddress)

	if user.TwoFactorEnabled {
		challengeID, errIssue := o.challenges.Issue(ctx, user.ID, user.Email)
		if errIssue != nil {
			return nil, errIssue
		}
		return &LoginResult{TwoFactorRequired: true, ChallengeID: challengeID}, nil
	}
	return o.issueTokens(ctx, user)
}

// CompleteTwoFactor finishes a pending login by consuming the challenge and
// verifying the submitted TOTP or backup code.
func (o *Orchestrator) CompleteTwoFactor(ctx context.Context, challengeID, code string, isBackupCode bool) (*LoginResult, error) {
	record, ok, errConsume := o.challenges.Consume(ctx, challengeID)
	if errConsume != nil {
		return nil, errConsume
	}
	if !ok {
		return nil, ErrChallengeNotFound
	}

	user, errFind := o.users.FindByID(ctx, record.UserID)
	if errFind != nil {
		if errors.Is(errFind, identity.ErrNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, errFind
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	if errVerify := o.twoFA.VerifyLoginCode(ctx, user.ID, code, isBackupCode); errVerify != nil {
		return nil, errVerify
	}
	return o.issueTokens(ctx, user)
}

// Refresh exchanges a valid refresh token for a new access token.
func (o *Orchestrator) Refresh(ctx context.Context, refreshToken string) (string, *models.User, error) {
	return o.tokens.RefreshAccessToken(ctx, refreshToken)
}

// Logout revokes a single refresh token.
func (o *Orchestrator) Logout(ctx context.Context, refreshToken string) error {
	return o.tokens.Revoke(ctx, refreshToken)
}

// LogoutAll revokes every refresh token the user holds.
func (o *Orchestrator) LogoutAll(ctx context.Context, userID uint64) error {
	return o.tokens.RevokeAll(ctx, userID)
}

// LockoutStatus reports the lockout and attempt state for an identifier.
func (o *Orchestrator) LockoutStatus(ctx context.Context, identifier, kind string) (lockout.Status, error) {
	return o.lockouts.Status(ctx, identifier, kind)
}

// Unlock lifts an active lockout and resets the attempt counter.
func (o *Orchestrator) Unlock(ctx context.Context, identifier, kind, reason string) (bool, error) {
	return o.lockouts.Unlock(ctx, identifier, kind, reason)
}

// requireUnlocked returns an AccountLockedError when the identifier has an
// active unexpired lockout.
func (o *Orchestrator) requireUnlocked(ctx context.Context, identifier, kind string) error {
	locked, until, errLocked := o.lockouts.IsLocked(ctx, identifier, kind)
	if errLocked != nil {
		return errLocked
	}
	if locked && until != nil {
		return newAccountLockedError(*until, o.nowFn().UTC())
	}
	return nil
}

// registerFailure records the failed attempt for the email and source IP,
// then locks whichever identifier crossed the threshold. Attempt recording
// that fails is logged and dropped; everything feeding the lock decision
// propagates.
func (o *Orchestrator) registerFailure(ctx context.Context, email string, in LoginInput, reason string) error {
	o.tracker.Record(ctx, email, models.IdentifierEmail, in.IPAddress, in.UserAgent)
	if in.IPAddress != "" {
		o.tracker.Record(ctx, in.IPAddress, models.IdentifierIP, in.IPAddress, in.UserAgent)
	}

	if lockErr := o.lockIfBreached(ctx, email, models.IdentifierEmail, reason); lockErr != nil {
		return lockErr
	}
	if in.IPAddress != "" {
		if lockErr := o.lockIfBreached(ctx, in.IPAddress, models.IdentifierIP, reason); lockErr != nil {
			return lockErr
		}
	}
	return ErrInvalidCredentials
}

// lockIfBreached locks the identifier when its recent failure count reached
// the configured threshold. It returns nil when no lock was needed. A count
// that cannot be read propagates: skipping the lock decision would leave a
// breached identifier open indefinitely.
func (o *Orchestrator) lockIfBreached(ctx context.Context, identifier, kind, reason string) error {
	count, errCount := o.tracker.CountRecent(ctx, identifier, kind, o.cfg.AttemptWindow)
	if errCount != nil {
		return &lockout.WriteError{Op: "count attempts", Err: errCount}
	}
	if count < o.cfg.MaxFailedAttempts {
		return nil
	}
	record, errLock := o.lockouts.Lock(ctx, identifier, kind, reason)
	if errLock != nil {
		return errLock
	}
	return newAccountLockedError(record.LockedUntil, o.nowFn().UTC())
}

func (o *Orchestrator) clearAttempts(ctx context.Context, email, ip string) {
	if errClear := o.tracker.Clear(ctx, email, models.IdentifierEmail); errClear != nil {
		log.WithError(errClear).Warn("authflow: failed to clear email attempts")
	}
	if ip == "" {
		return
	}
	if errClear := o.tracker.Clear(ctx, ip, models.IdentifierIP); errClear != nil {
		log.WithError(errClear).Warn("authflow: failed to clear ip attempts")
	}
}

func (o *Orchestrator) issueTokens(ctx context.Context, user *models.User) (*LoginResult, error) {
	pair, errPair := o.tokens.CreateTokenPair(ctx, user)
	if errPair != nil {
		return nil, errPair
	}
	if errStamp := o.users.UpdateLastLogin(ctx, user.ID); errStamp != nil {
		log.WithError(errStamp).Warn("authflow: failed to update last login")
	}
	return &LoginResult{Tokens: &pair, User: user}, nil
}
