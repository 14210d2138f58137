package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEngineNotReady is returned when an Engine method is called on a
	// partially constructed engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidCredentials covers both unknown handles and wrong
	// passwords; the two are indistinguishable to callers so a probe
	// cannot enumerate accounts. The audit trail records which it was.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited means the caller's address exceeded the attempt
	// budget. Unwrap to [RateLimitedError] for the disclosed delay.
	ErrRateLimited = errors.New("rate limited")
	// ErrAccountLocked means the account rejected the attempt because of
	// prior failures. Unwrap to [RateLimitedError] for the delay.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive is terminal until an administrator reactivates
	// the account.
	ErrAccountInactive = errors.New("account inactive")
	// ErrTwoFactorInvalid means the supplied TOTP or backup code did not
	// verify. It never affects the password lockout counter.
	ErrTwoFactorInvalid = errors.New("invalid second factor")
	// ErrTwoFactorNotConfigured is returned by enable/disable/regenerate
	// operations when the identity has no stored secret.
	ErrTwoFactorNotConfigured = errors.New("two-factor not configured")
	// ErrTwoFactorAlreadyEnabled is returned by SetupTwoFactor while 2FA
	// is active; disable first to rotate the secret.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrIdentityNotFound is returned (and expected from providers) when
	// an identity ID or handle resolves to nothing.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrTokenInvalid covers malformed, tampered, foreign-deployment, and
	// revoked-session tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrSessionNotFound is returned when an operation references a
	// session that no longer exists and absence is meaningful.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreUnavailable indicates the Redis backend is unreachable.
	ErrStoreUnavailable = errors.New("backend unavailable")
)

// RateLimitedError carries the disclosed retry delay for ErrRateLimited
// and ErrAccountLocked outcomes.
type RateLimitedError struct {
	kind       error
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", e.kind, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Unwrap() error { return e.kind }

func rateLimitedError(retryAfter time.Duration) error {
	return &RateLimitedError{kind: ErrRateLimited, RetryAfter: retryAfter}
}

func accountLockedError(retryAfter time.Duration) error {
	return &RateLimitedError{kind: ErrAccountLocked, RetryAfter: retryAfter}
}
