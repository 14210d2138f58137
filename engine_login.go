package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sentinelkit/authcore/internal"
	"github.com/sentinelkit/authcore/internal/audit"
	"github.com/sentinelkit/authcore/internal/metrics"
	"github.com/sentinelkit/authcore/notify"
	"github.com/sentinelkit/authcore/session"
	"github.com/sentinelkit/authcore/token"
	"github.com/sentinelkit/authcore/twofactor"
)

// Login runs the full authentication state machine: address rate gate,
// identity resolution, account state, password, second factor, then
// session and token issuance. Exactly one audit event is emitted per
// call, at whichever terminal state the attempt reaches.
//
// When the identity has two-factor enabled and the request carries no
// second factor, Login returns a result with TwoFactorRequired set and a
// nil error; the password was correct and the caller should resubmit
// with a code.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}
	start := e.clock()
	defer func() { e.metrics.ObserveLatency(e.clock().Sub(start)) }()

	addr := clientAddr(ctx)
	event := audit.Event{Action: ActionLogin, Handle: req.Handle}

	// The address gate runs before any credential work so unresolvable
	// handles burn attempts too.
	gate, err := e.limiter.CheckAndRecord(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !gate.Allowed {
		e.metrics.Inc(metrics.MetricRateLimitHit)
		e.metrics.Inc(metrics.MetricLoginRateLimited)
		event.Risk = RiskHigh
		event.Error = ErrRateLimited.Error()
		detail(&event, auditDetailRetryAfter, gate.RetryAfter.String())
		e.emitAudit(ctx, event)
		return nil, rateLimitedError(gate.RetryAfter)
	}

	identity, err := e.identities.GetByHandle(ctx, req.Handle)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			// Same outward failure as a wrong password so handles
			// cannot be enumerated; the audit record keeps the truth.
			e.metrics.Inc(metrics.MetricLoginUnknownIdentity)
			e.metrics.Inc(metrics.MetricLoginFailure)
			event.Risk = RiskMedium
			event.Error = "unknown identity"
			e.emitAudit(ctx, event)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	event.IdentityID = identity.IdentityID

	if !identity.IsActive {
		e.metrics.Inc(metrics.MetricAccountInactive)
		event.Risk = RiskMedium
		event.Error = ErrAccountInactive.Error()
		e.emitAudit(ctx, event)
		return nil, ErrAccountInactive
	}

	locked, retry, err := e.lockState(ctx, identity)
	if err != nil {
		return nil, err
	}
	if locked {
		e.metrics.Inc(metrics.MetricAccountLocked)
		event.Risk = RiskHigh
		event.Error = ErrAccountLocked.Error()
		detail(&event, auditDetailRetryAfter, retry.String())
		e.emitAudit(ctx, event)
		return nil, accountLockedError(retry)
	}

	ok, err := e.hasher.Verify(req.Password, identity.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("password verify: %w", err)
	}
	if !ok {
		return nil, e.failPassword(ctx, identity, event)
	}

	// The second factor is evaluated only after the password proved
	// right; a submitted code is never a password bypass and a wrong
	// code never feeds the lockout counter.
	usedBackup := false
	tfa, err := e.identities.GetTwoFactor(ctx, identity.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("two-factor lookup: %w", err)
	}
	if tfa != nil && tfa.Enabled {
		if req.Second.IsZero() {
			e.metrics.Inc(metrics.MetricTwoFactorRequired)
			event.Error = "two-factor required"
			e.emitAudit(ctx, event)
			return &LoginResult{TwoFactorRequired: true}, nil
		}
		usedBackup, err = e.verifySecondFactor(ctx, identity, tfa, req.Second, &event)
		if err != nil {
			e.emitAudit(ctx, event)
			return nil, err
		}
	}

	if identity.FailedAttempts > 0 || identity.LockedUntil != nil {
		if err := e.identities.ClearLockout(ctx, identity.IdentityID); err != nil {
			e.warnf("clear lockout for %s: %v", identity.IdentityID, err)
		}
	}
	e.maybeRehash(ctx, identity, req.Password)

	result, sid, evicted, err := e.establishSession(ctx, identity, addr, req.RememberMe)
	if err != nil {
		return nil, err
	}
	result.UsedBackupCode = usedBackup

	// A successful login vouches for the address: clear its attempt
	// window so earlier failures stop counting against it.
	if err := e.limiter.Reset(ctx, addr); err != nil {
		e.warnf("reset rate window for %s: %v", addr, err)
	}

	e.metrics.Inc(metrics.MetricLoginSuccess)
	event.Success = true
	event.SessionID = sid
	event.Error = ""
	if usedBackup {
		event.Risk = RiskMedium
	}
	if len(evicted) > 0 {
		detail(&event, auditDetailEvicted, strconv.Itoa(len(evicted)))
	}
	e.emitAudit(ctx, event)

	if usedBackup {
		e.notifyAsync(notify.Notification{
			Kind:       notify.KindBackupCodeUsed,
			IdentityID: identity.IdentityID,
			Handle:     identity.Handle,
			Details:    map[string]string{"addr": addr},
		})
	}
	return result, nil
}

// lockState reports whether the account currently rejects attempts, and
// clears an elapsed lock in passing.
func (e *Engine) lockState(ctx context.Context, identity IdentityRecord) (bool, time.Duration, error) {
	if identity.LockedUntil == nil {
		return false, 0, nil
	}
	now := e.clock()
	if now.Before(*identity.LockedUntil) {
		return true, identity.LockedUntil.Sub(now), nil
	}
	if err := e.identities.ClearLockout(ctx, identity.IdentityID); err != nil {
		return false, 0, fmt.Errorf("clear elapsed lockout: %w", err)
	}
	return false, 0, nil
}

// failPassword records a wrong password, engaging the lock when the
// consecutive-failure threshold is reached. The attempt that engages the
// lock still reports invalid credentials; only subsequent attempts see
// the lock.
func (e *Engine) failPassword(ctx context.Context, identity IdentityRecord, event audit.Event) error {
	count, err := e.identities.IncrementFailedAttempts(ctx, identity.IdentityID)
	if err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}

	e.metrics.Inc(metrics.MetricLoginFailure)
	event.Risk = RiskMedium
	event.Error = "invalid password"
	detail(&event, auditDetailFailedAttempt, strconv.Itoa(count))

	if count >= e.config.Lockout.Threshold {
		until := e.clock().Add(e.config.Lockout.Duration)
		if err := e.identities.SetLockout(ctx, identity.IdentityID, until); err != nil {
			return fmt.Errorf("engage lockout: %w", err)
		}
		e.metrics.Inc(metrics.MetricAccountLocked)
		event.Risk = RiskHigh
	}

	e.emitAudit(ctx, event)
	return ErrInvalidCredentials
}

// verifySecondFactor checks the submitted TOTP or backup code. Reports
// whether a backup code was consumed. Mutates event in place for the
// failure paths; the caller emits it.
func (e *Engine) verifySecondFactor(ctx context.Context, identity IdentityRecord, tfa *TwoFactorRecord, second SecondFactor, event *audit.Event) (bool, error) {
	if e.tfaLimiter != nil {
		gate, err := e.tfaLimiter.CheckAndRecord(ctx, identity.IdentityID)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !gate.Allowed {
			e.metrics.Inc(metrics.MetricRateLimitHit)
			event.Risk = RiskHigh
			event.Error = ErrRateLimited.Error()
			detail(event, auditDetailRetryAfter, gate.RetryAfter.String())
			return false, rateLimitedError(gate.RetryAfter)
		}
	}

	switch {
	case second.kind == secondFactorTOTP:
		detail(event, auditDetailFactor, "totp")
		if !e.totp.VerifyCode(tfa.Secret, second.code, e.clock()) {
			e.metrics.Inc(metrics.MetricTwoFactorFailure)
			event.Risk = RiskHigh
			event.Error = ErrTwoFactorInvalid.Error()
			return false, ErrTwoFactorInvalid
		}
		e.metrics.Inc(metrics.MetricTwoFactorSuccess)

	case second.kind == secondFactorBackup:
		detail(event, auditDetailFactor, "backup_code")
		claimed, err := e.identities.ConsumeBackupCode(ctx, identity.IdentityID, twofactor.HashBackupCode(second.code))
		if err != nil {
			return false, fmt.Errorf("consume backup code: %w", err)
		}
		if !claimed {
			e.metrics.Inc(metrics.MetricBackupCodeFailed)
			event.Risk = RiskHigh
			event.Error = ErrTwoFactorInvalid.Error()
			return false, ErrTwoFactorInvalid
		}
		e.metrics.Inc(metrics.MetricBackupCodeUsed)
		if e.tfaLimiter != nil {
			_ = e.tfaLimiter.Reset(ctx, identity.IdentityID)
		}
		return true, nil

	default:
		event.Risk = RiskHigh
		event.Error = ErrTwoFactorInvalid.Error()
		return false, ErrTwoFactorInvalid
	}

	if e.tfaLimiter != nil {
		_ = e.tfaLimiter.Reset(ctx, identity.IdentityID)
	}
	return false, nil
}

// maybeRehash upgrades the stored hash after a successful verification
// when the cost parameters have been raised. Best effort.
func (e *Engine) maybeRehash(ctx context.Context, identity IdentityRecord, plaintext string) {
	if !e.config.Password.RehashOnLogin {
		return
	}
	stale, err := e.hasher.NeedsRehash(identity.PasswordHash)
	if err != nil || !stale {
		return
	}
	newHash, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.warnf("rehash for %s: %v", identity.IdentityID, err)
		return
	}
	if err := e.identities.UpdatePasswordHash(ctx, identity.IdentityID, newHash); err != nil {
		e.warnf("store rehash for %s: %v", identity.IdentityID, err)
	}
}

// establishSession creates the bounded session and mints the token pair.
func (e *Engine) establishSession(ctx context.Context, identity IdentityRecord, addr string, rememberMe bool) (*LoginResult, string, []string, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, "", nil, fmt.Errorf("session id: %w", err)
	}

	evicted, err := e.sessions.Create(ctx, &session.Session{
		SessionID:  sid.String(),
		IdentityID: identity.IdentityID,
		Addr:       addr,
		UserAgent:  userAgent(ctx),
		CreatedAt:  e.clock().UTC(),
	})
	if err != nil {
		return nil, "", nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metrics.Inc(metrics.MetricSessionCreated)
	for range evicted {
		e.metrics.Inc(metrics.MetricSessionEvicted)
	}

	grants, err := e.grantsFor(ctx, identity.IdentityID)
	if err != nil {
		return nil, "", nil, err
	}

	pair, err := e.tokens.IssuePair(identity.IdentityID, sid.String(), identity.IsAdmin, grants, rememberMe)
	if err != nil {
		return nil, "", nil, fmt.Errorf("issue tokens: %w", err)
	}

	return &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		SessionID:    sid.String(),
	}, sid.String(), evicted, nil
}

// grantsFor flattens the identity's grants into resource:action claim
// strings.
func (e *Engine) grantsFor(ctx context.Context, identityID string) ([]string, error) {
	if e.permissions == nil {
		return nil, nil
	}
	grants, err := e.permissions.GrantsFor(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("grants lookup: %w", err)
	}
	var flat []string
	for _, g := range grants {
		for _, action := range g.Actions {
			flat = append(flat, g.Resource+":"+action)
		}
	}
	return flat, nil
}

// Logout revokes the session referenced by the access token. Revoking an
// already-revoked session is not an error.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if err := e.checkReady(); err != nil {
		return err
	}

	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		return tokenError(err)
	}

	if err := e.sessions.Revoke(ctx, claims.IdentityID, claims.SessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(metrics.MetricLogout)
	e.emitAudit(ctx, audit.Event{
		Action:     ActionLogout,
		IdentityID: claims.IdentityID,
		SessionID:  claims.SessionID,
		Success:    true,
	})
	return nil
}

// Refresh exchanges a valid refresh token for a fresh pair. The identity
// must still exist and be active, and the session the token references
// must still exist: deactivating an account or revoking a session cuts
// off its refresh chain immediately. The new access token uses the
// standard expiry; rememberMe applies only at login.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		e.metrics.Inc(metrics.MetricRefreshFailure)
		e.emitAudit(ctx, audit.Event{
			Action: ActionRefresh,
			Risk:   RiskMedium,
			Error:  tokenError(err).Error(),
		})
		return nil, tokenError(err)
	}

	// The bearer claims alone are not enough: the identity must still be
	// in good standing before a fresh pair is signed.
	identity, err := e.identities.GetByID(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			e.metrics.Inc(metrics.MetricRefreshFailure)
			e.emitAudit(ctx, audit.Event{
				Action:     ActionRefresh,
				IdentityID: claims.IdentityID,
				SessionID:  claims.SessionID,
				Risk:       RiskMedium,
				Error:      "identity no longer exists",
			})
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	if !identity.IsActive {
		e.metrics.Inc(metrics.MetricRefreshFailure)
		e.emitAudit(ctx, audit.Event{
			Action:     ActionRefresh,
			IdentityID: claims.IdentityID,
			SessionID:  claims.SessionID,
			Risk:       RiskMedium,
			Error:      ErrAccountInactive.Error(),
		})
		return nil, ErrAccountInactive
	}

	live, err := e.sessions.Exists(ctx, claims.IdentityID, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !live {
		e.metrics.Inc(metrics.MetricRefreshFailure)
		e.emitAudit(ctx, audit.Event{
			Action:     ActionRefresh,
			IdentityID: claims.IdentityID,
			SessionID:  claims.SessionID,
			Risk:       RiskMedium,
			Error:      "session revoked",
		})
		return nil, ErrTokenInvalid
	}

	if err := e.sessions.Touch(ctx, claims.IdentityID, claims.SessionID); err != nil {
		e.warnf("touch session %s: %v", claims.SessionID, err)
	}

	grants, err := e.grantsFor(ctx, claims.IdentityID)
	if err != nil {
		return nil, err
	}
	pair, err := e.tokens.IssuePair(claims.IdentityID, claims.SessionID, identity.IsAdmin, grants, false)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	e.metrics.Inc(metrics.MetricRefreshSuccess)
	e.emitAudit(ctx, audit.Event{
		Action:     ActionRefresh,
		IdentityID: claims.IdentityID,
		SessionID:  claims.SessionID,
		Success:    true,
	})
	return &TokenPair{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// ValidateAccess parses and verifies an access token. With
// Config.Token.CheckSession set it also requires the referenced session
// to still exist, so revocation takes effect before the token expires.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AccessIdentity, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}

	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, tokenError(err)
	}

	if e.config.Token.CheckSession {
		live, err := e.sessions.Exists(ctx, claims.IdentityID, claims.SessionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !live {
			return nil, ErrTokenInvalid
		}
	}

	return &AccessIdentity{
		IdentityID: claims.IdentityID,
		SessionID:  claims.SessionID,
		IsAdmin:    claims.IsAdmin,
		Grants:     claims.Grants,
	}, nil
}

// tokenError maps token package errors onto the engine's sentinels.
func tokenError(err error) error {
	if errors.Is(err, token.ErrExpired) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}
