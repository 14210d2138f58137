package authcore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sentinelkit/authcore/internal/audit"
	"github.com/sentinelkit/authcore/internal/metrics"
	"github.com/sentinelkit/authcore/notify"
	"github.com/sentinelkit/authcore/twofactor"
)

// SetupTwoFactor provisions a fresh TOTP secret and backup code set for
// the identity. The secret is persisted immediately but 2FA stays off
// until [Engine.EnableTwoFactor] confirms the authenticator with a valid
// code. Backup codes are returned in plaintext exactly once; only their
// hashes are stored.
func (e *Engine) SetupTwoFactor(ctx context.Context, identityID string) (*TwoFactorSetup, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}

	identity, err := e.identities.GetByID(ctx, identityID)
	if err != nil {
		return nil, err
	}

	tfa, err := e.identities.GetTwoFactor(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("two-factor lookup: %w", err)
	}
	if tfa != nil && tfa.Enabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	secret, uri, err := e.totp.GenerateSecret(identity.Handle)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	codes, hashes, err := twofactor.GenerateBackupCodes(
		e.config.TwoFactor.BackupCodeCount, e.config.TwoFactor.BackupCodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}

	if err := e.identities.SetTwoFactorSecret(ctx, identityID, secret); err != nil {
		return nil, fmt.Errorf("store secret: %w", err)
	}
	if err := e.identities.ReplaceBackupCodes(ctx, identityID, hashes); err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}

	e.emitAudit(ctx, audit.Event{
		Action:     ActionTwoFactorSetup,
		IdentityID: identityID,
		Handle:     identity.Handle,
		Success:    true,
	})

	return &TwoFactorSetup{
		Secret:          secret,
		ProvisioningURI: uri,
		BackupCodes:     codes,
	}, nil
}

// EnableTwoFactor turns 2FA on after the caller proves the authenticator
// was provisioned by submitting a current code.
func (e *Engine) EnableTwoFactor(ctx context.Context, identityID, totpCode string) error {
	if err := e.checkReady(); err != nil {
		return err
	}

	tfa, err := e.requireSecret(ctx, identityID)
	if err != nil {
		return err
	}
	if err := e.proveCode(ctx, identityID, tfa.Secret, totpCode, ActionTwoFactorEnable); err != nil {
		return err
	}

	if err := e.identities.SetTwoFactorEnabled(ctx, identityID, true); err != nil {
		return fmt.Errorf("enable two-factor: %w", err)
	}

	e.metrics.Inc(metrics.MetricTwoFactorEnabled)
	e.emitAudit(ctx, audit.Event{
		Action:     ActionTwoFactorEnable,
		IdentityID: identityID,
		Success:    true,
	})
	e.notifyIdentity(ctx, identityID, notify.KindTwoFactorEnabled, nil)
	return nil
}

// DisableTwoFactor turns 2FA off, removing the secret and all backup
// codes. Requires a current code so a stolen session alone cannot strip
// the second factor.
func (e *Engine) DisableTwoFactor(ctx context.Context, identityID, totpCode string) error {
	if err := e.checkReady(); err != nil {
		return err
	}

	tfa, err := e.requireSecret(ctx, identityID)
	if err != nil {
		return err
	}
	if !tfa.Enabled {
		return ErrTwoFactorNotConfigured
	}
	if err := e.proveCode(ctx, identityID, tfa.Secret, totpCode, ActionTwoFactorDisable); err != nil {
		return err
	}

	if err := e.identities.ClearTwoFactor(ctx, identityID); err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}

	e.metrics.Inc(metrics.MetricTwoFactorDisabled)
	e.emitAudit(ctx, audit.Event{
		Action:     ActionTwoFactorDisable,
		IdentityID: identityID,
		Success:    true,
		Risk:       RiskMedium,
	})
	e.notifyIdentity(ctx, identityID, notify.KindTwoFactorDisabled, nil)
	return nil
}

// RegenerateBackupCodes replaces the identity's full backup code set,
// invalidating every outstanding code, gated on a current TOTP code. The
// new codes are returned in plaintext exactly once.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, identityID, totpCode string) ([]string, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}

	tfa, err := e.requireSecret(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if !tfa.Enabled {
		return nil, ErrTwoFactorNotConfigured
	}
	if err := e.proveCode(ctx, identityID, tfa.Secret, totpCode, ActionBackupRegenerate); err != nil {
		return nil, err
	}

	codes, hashes, err := twofactor.GenerateBackupCodes(
		e.config.TwoFactor.BackupCodeCount, e.config.TwoFactor.BackupCodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	if err := e.identities.ReplaceBackupCodes(ctx, identityID, hashes); err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}

	e.metrics.Inc(metrics.MetricBackupCodesRegenerated)
	e.emitAudit(ctx, audit.Event{
		Action:     ActionBackupRegenerate,
		IdentityID: identityID,
		Success:    true,
		Details:    map[string]string{"count": strconv.Itoa(len(codes))},
	})
	e.notifyIdentity(ctx, identityID, notify.KindBackupCodesRegenerated, nil)
	return codes, nil
}

// requireSecret loads the two-factor record and fails when no secret has
// ever been provisioned.
func (e *Engine) requireSecret(ctx context.Context, identityID string) (*TwoFactorRecord, error) {
	tfa, err := e.identities.GetTwoFactor(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("two-factor lookup: %w", err)
	}
	if tfa == nil || tfa.Secret == "" {
		return nil, ErrTwoFactorNotConfigured
	}
	return tfa, nil
}

// proveCode verifies a TOTP code for a management operation, emitting the
// failure audit event itself.
func (e *Engine) proveCode(ctx context.Context, identityID, secret, code, action string) error {
	if e.totp.VerifyCode(secret, code, e.clock()) {
		return nil
	}
	e.metrics.Inc(metrics.MetricTwoFactorFailure)
	e.emitAudit(ctx, audit.Event{
		Action:     action,
		IdentityID: identityID,
		Risk:       RiskHigh,
		Error:      ErrTwoFactorInvalid.Error(),
	})
	return ErrTwoFactorInvalid
}

// notifyIdentity resolves the handle best-effort and dispatches an async
// notification.
func (e *Engine) notifyIdentity(ctx context.Context, identityID string, kind notify.Kind, details map[string]string) {
	handle := ""
	if identity, err := e.identities.GetByID(ctx, identityID); err == nil {
		handle = identity.Handle
	}
	e.notifyAsync(notify.Notification{
		Kind:       kind,
		IdentityID: identityID,
		Handle:     handle,
		Details:    details,
	})
}
