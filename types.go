package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/sentinelkit/authcore/internal/audit"
	internalmetrics "github.com/sentinelkit/authcore/internal/metrics"
	"github.com/sentinelkit/authcore/token"
)

// IdentityRecord is the account snapshot returned by [IdentityProvider].
// Handle is the primary lookup key; providers may additionally resolve
// email or phone aliases to the same record.
type IdentityRecord struct {
	IdentityID     string
	Handle         string
	PasswordHash   string
	IsActive       bool
	IsAdmin        bool
	FailedAttempts int
	LockedUntil    *time.Time
}

// TwoFactorRecord carries an identity's second-factor configuration.
// Invariant: Secret is non-empty whenever Enabled is true.
type TwoFactorRecord struct {
	Enabled bool
	Secret  string
}

// Grant is one permission entry: a resource and the actions allowed on it.
type Grant struct {
	Resource string
	Actions  []string
}

// IdentityProvider is the durable credential store the engine drives.
// Implementations back it with whatever database owns account state.
//
// All mutations are explicit commands with the invariant they enforce in
// their contract, never implicit saves: IncrementFailedAttempts must be
// atomic (two racing failures observe distinct counts), and
// ConsumeBackupCode must claim-if-unused so a code can never be redeemed
// twice even by two simultaneous requests.
type IdentityProvider interface {
	GetByHandle(ctx context.Context, handle string) (IdentityRecord, error)
	GetByID(ctx context.Context, identityID string) (IdentityRecord, error)

	// IncrementFailedAttempts bumps the consecutive-failure counter and
	// returns the new value.
	IncrementFailedAttempts(ctx context.Context, identityID string) (int, error)
	// SetLockout marks the account locked until the given time.
	SetLockout(ctx context.Context, identityID string, until time.Time) error
	// ClearLockout resets the failure counter and clears any lock.
	ClearLockout(ctx context.Context, identityID string) error

	UpdatePasswordHash(ctx context.Context, identityID, newHash string) error

	// GetTwoFactor returns nil with no error when the identity has never
	// set up a second factor.
	GetTwoFactor(ctx context.Context, identityID string) (*TwoFactorRecord, error)
	// SetTwoFactorSecret stores a pending secret without enabling 2FA.
	SetTwoFactorSecret(ctx context.Context, identityID, secret string) error
	SetTwoFactorEnabled(ctx context.Context, identityID string, enabled bool) error
	// ClearTwoFactor removes the secret, the enabled flag, and all backup
	// codes.
	ClearTwoFactor(ctx context.Context, identityID string) error

	// ReplaceBackupCodes swaps the full code set atomically.
	ReplaceBackupCodes(ctx context.Context, identityID string, hashes [][32]byte) error
	// ConsumeBackupCode marks the matching unused code as used and
	// reports whether the claim succeeded. Exactly one of any number of
	// concurrent calls with the same hash may return true.
	ConsumeBackupCode(ctx context.Context, identityID string, hash [32]byte) (bool, error)
}

// PermissionProvider is the read-only lookup of an identity's grants,
// consumed when minting access-token claims.
type PermissionProvider interface {
	GrantsFor(ctx context.Context, identityID string) ([]Grant, error)
}

// SecondFactor is the tagged second-factor submission: absent, a TOTP
// code, or a backup code. Exactly one variant is ever set, which removes
// the "both provided" ambiguity of two nullable fields.
type SecondFactor struct {
	kind secondFactorKind
	code string
}

type secondFactorKind uint8

const (
	secondFactorNone secondFactorKind = iota
	secondFactorTOTP
	secondFactorBackup
)

// NoSecondFactor marks the request as password-only.
func NoSecondFactor() SecondFactor { return SecondFactor{} }

// TOTPCode wraps a 6-digit authenticator code.
func TOTPCode(code string) SecondFactor {
	return SecondFactor{kind: secondFactorTOTP, code: code}
}

// BackupCode wraps a single-use recovery code.
func BackupCode(code string) SecondFactor {
	return SecondFactor{kind: secondFactorBackup, code: code}
}

// IsZero reports whether no second factor was supplied.
func (s SecondFactor) IsZero() bool { return s.kind == secondFactorNone }

// LoginRequest is the input to [Engine.Login].
type LoginRequest struct {
	Handle     string
	Password   string
	RememberMe bool
	Second     SecondFactor
}

// LoginResult is returned by [Engine.Login]. When TwoFactorRequired is
// set the attempt was otherwise valid and the caller should resubmit with
// a code; no tokens are present.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	SessionID    string

	TwoFactorRequired bool
	UsedBackupCode    bool
}

// TokenPair is returned by [Engine.Refresh].
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// AccessIdentity is the verified result of [Engine.ValidateAccess].
type AccessIdentity struct {
	IdentityID string
	SessionID  string
	IsAdmin    bool
	Grants     []string
}

// TwoFactorSetup is returned by [Engine.SetupTwoFactor]. BackupCodes are
// plaintext and shown exactly once; only their hashes are persisted.
type TwoFactorSetup struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// SessionInfo is one entry of [Engine.ListSessions].
type SessionInfo struct {
	SessionID    string
	Addr         string
	UserAgent    string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Claims re-exports the token claim payload for callers that verify
// tokens out of band.
type Claims = token.Claims

// RiskLevel classifies audit events for downstream monitoring.
type RiskLevel = internalaudit.RiskLevel

const (
	RiskLow      = internalaudit.RiskLow
	RiskMedium   = internalaudit.RiskMedium
	RiskHigh     = internalaudit.RiskHigh
	RiskCritical = internalaudit.RiskCritical
)

// AuditEvent is the structured record emitted at every terminal state.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes JSON-encoded events, one per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricsSnapshot is a point-in-time copy of all engine counters.
type MetricsSnapshot = internalmetrics.Snapshot
