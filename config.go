package authcore

import (
	"errors"
	"time"
)

// Config assembles every tunable of the engine. Zero values are filled
// with the defaults below at Build time; explicit settings are validated
// against the floors the engine promises.
type Config struct {
	RateLimit RateLimitConfig
	Lockout   LockoutConfig
	Password  PasswordConfig
	TwoFactor TwoFactorConfig
	Session   SessionConfig
	Token     TokenConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// RateLimitConfig is the per-address login gate. Dev and prod deployments
// run different postures by configuration, never by code path.
type RateLimitConfig struct {
	Enabled       bool
	Threshold     int
	Window        time.Duration
	BlockDuration time.Duration
}

// LockoutConfig controls the per-identity consecutive-failure lock.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// PasswordConfig carries the argon2id cost parameters. Memory is in KB.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// RehashOnLogin upgrades weaker stored hashes opportunistically
	// after a successful verification.
	RehashOnLogin bool
}

// TwoFactorConfig tunes TOTP and backup codes. MaxAttempts, when set,
// adds an opt-in per-identity limiter on failed second-factor attempts on
// top of the per-address gate every login attempt already passes.
type TwoFactorConfig struct {
	Issuer           string
	Period           uint
	Digits           int
	Skew             uint
	BackupCodeCount  int
	BackupCodeLength int

	MaxAttempts   int
	AttemptWindow time.Duration
	AttemptBlock  time.Duration
}

// SessionConfig bounds concurrent sessions per identity.
type SessionConfig struct {
	RedisPrefix    string
	MaxPerIdentity int
	Lifetime       time.Duration
}

// TokenConfig holds signing material and expirations. RefreshTTL is fixed
// regardless of rememberMe.
type TokenConfig struct {
	AccessTTL           time.Duration
	RememberMeAccessTTL time.Duration
	RefreshTTL          time.Duration
	SigningMethod       string // "ed25519" (default) or "hs256"
	PrivateKey          []byte
	PublicKey           []byte
	Issuer              string
	Audience            string
	Leeway              time.Duration
	// CheckSession makes ValidateAccess require the referenced session
	// to still exist, trading a Redis round-trip for immediate
	// revocation of access tokens.
	CheckSession bool
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events instead of applying backpressure when the
	// buffer is full. Dropped counts are observable via AuditDropped.
	DropIfFull bool
}

// DefaultConfig returns the configuration the engine ships with: rate
// limiting, audit, and metrics enabled, and every threshold at its
// documented default. Callers tuning a handful of fields should start
// from this rather than a zero Config — [Builder.Build] fills zero-valued
// knobs with defaults but cannot tell a deliberately false Enabled flag
// from an omitted one.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		RateLimit: RateLimitConfig{
			Enabled:       true,
			Threshold:     10,
			Window:        15 * time.Minute,
			BlockDuration: 15 * time.Minute,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  30 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:           "authcore",
			Period:           30,
			Digits:           6,
			Skew:             4,
			BackupCodeCount:  10,
			BackupCodeLength: 10,
		},
		Session: SessionConfig{
			MaxPerIdentity: 5,
			Lifetime:       7 * 24 * time.Hour,
		},
		Token: TokenConfig{
			AccessTTL:           24 * time.Hour,
			RememberMeAccessTTL: 7 * 24 * time.Hour,
			RefreshTTL:          7 * 24 * time.Hour,
			SigningMethod:       "ed25519",
			Issuer:              "authcore",
			Audience:            "authcore",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// fillDefaults replaces zero values with the defaults so partial configs
// stay usable.
func fillDefaults(cfg Config) Config {
	def := defaultConfig()

	if cfg.RateLimit.Threshold == 0 {
		cfg.RateLimit.Threshold = def.RateLimit.Threshold
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = def.RateLimit.Window
	}
	if cfg.RateLimit.BlockDuration == 0 {
		cfg.RateLimit.BlockDuration = def.RateLimit.BlockDuration
	}

	if cfg.Lockout.Threshold == 0 {
		cfg.Lockout.Threshold = def.Lockout.Threshold
	}
	if cfg.Lockout.Duration == 0 {
		cfg.Lockout.Duration = def.Lockout.Duration
	}

	if cfg.Password.Memory == 0 {
		cfg.Password = def.Password
	}

	if cfg.TwoFactor.Issuer == "" {
		cfg.TwoFactor.Issuer = def.TwoFactor.Issuer
	}
	if cfg.TwoFactor.Period == 0 {
		cfg.TwoFactor.Period = def.TwoFactor.Period
	}
	if cfg.TwoFactor.Digits == 0 {
		cfg.TwoFactor.Digits = def.TwoFactor.Digits
	}
	if cfg.TwoFactor.Skew == 0 {
		cfg.TwoFactor.Skew = def.TwoFactor.Skew
	}
	if cfg.TwoFactor.BackupCodeCount == 0 {
		cfg.TwoFactor.BackupCodeCount = def.TwoFactor.BackupCodeCount
	}
	if cfg.TwoFactor.BackupCodeLength == 0 {
		cfg.TwoFactor.BackupCodeLength = def.TwoFactor.BackupCodeLength
	}
	if cfg.TwoFactor.MaxAttempts > 0 {
		if cfg.TwoFactor.AttemptWindow == 0 {
			cfg.TwoFactor.AttemptWindow = 15 * time.Minute
		}
		if cfg.TwoFactor.AttemptBlock == 0 {
			cfg.TwoFactor.AttemptBlock = 15 * time.Minute
		}
	}

	if cfg.Session.MaxPerIdentity == 0 {
		cfg.Session.MaxPerIdentity = def.Session.MaxPerIdentity
	}
	if cfg.Session.Lifetime == 0 {
		cfg.Session.Lifetime = def.Session.Lifetime
	}

	if cfg.Token.AccessTTL == 0 {
		cfg.Token.AccessTTL = def.Token.AccessTTL
	}
	if cfg.Token.RememberMeAccessTTL == 0 {
		cfg.Token.RememberMeAccessTTL = def.Token.RememberMeAccessTTL
	}
	if cfg.Token.RefreshTTL == 0 {
		cfg.Token.RefreshTTL = def.Token.RefreshTTL
	}
	if cfg.Token.SigningMethod == "" {
		cfg.Token.SigningMethod = def.Token.SigningMethod
	}
	if cfg.Token.Issuer == "" {
		cfg.Token.Issuer = def.Token.Issuer
	}
	if cfg.Token.Audience == "" {
		cfg.Token.Audience = def.Token.Audience
	}

	if cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = def.Audit.BufferSize
	}

	return cfg
}

func validateConfig(cfg Config) error {
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Threshold < 1 {
			return errors.New("rate limit threshold must be >= 1")
		}
		if cfg.RateLimit.Window <= 0 || cfg.RateLimit.BlockDuration <= 0 {
			return errors.New("rate limit window and block duration must be positive")
		}
	}
	if cfg.Lockout.Threshold < 1 {
		return errors.New("lockout threshold must be >= 1")
	}
	if cfg.Lockout.Duration <= 0 {
		return errors.New("lockout duration must be positive")
	}
	if cfg.Session.MaxPerIdentity < 1 {
		return errors.New("session cap must be >= 1")
	}
	if cfg.Session.Lifetime <= 0 {
		return errors.New("session lifetime must be positive")
	}
	if cfg.TwoFactor.Digits != 6 && cfg.TwoFactor.Digits != 8 {
		return errors.New("totp digits must be 6 or 8")
	}
	if cfg.TwoFactor.BackupCodeCount < 1 || cfg.TwoFactor.BackupCodeLength < 8 {
		return errors.New("invalid backup code configuration")
	}
	return nil
}
