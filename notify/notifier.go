package notify

import "context"

// Kind identifies what a notification is about.
type Kind string

const (
	// KindTwoFactorEnabled fires after an identity confirms TOTP setup.
	KindTwoFactorEnabled Kind = "two_factor_enabled"
	// KindTwoFactorDisabled fires after an identity turns TOTP off.
	KindTwoFactorDisabled Kind = "two_factor_disabled"
	// KindBackupCodeUsed fires when a backup code is consumed during
	// login; the account owner should hear about a recovery credential
	// being spent.
	KindBackupCodeUsed Kind = "backup_code_used"
	// KindBackupCodesRegenerated fires when the code set is replaced.
	KindBackupCodesRegenerated Kind = "backup_codes_regenerated"
)

// Notification is the payload handed to a [Notifier].
type Notification struct {
	Kind       Kind
	IdentityID string
	Handle     string
	Details    map[string]string
}

// Notifier delivers notifications. Implementations may block; the engine
// always invokes them from a detached goroutine and discards errors after
// logging them.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NoOp discards all notifications.
type NoOp struct{}

func (NoOp) Notify(context.Context, Notification) error { return nil }
