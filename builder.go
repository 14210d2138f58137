package authcore

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sentinelkit/authcore/internal/audit"
	"github.com/sentinelkit/authcore/internal/metrics"
	"github.com/sentinelkit/authcore/internal/rate"
	"github.com/sentinelkit/authcore/notify"
	"github.com/sentinelkit/authcore/password"
	"github.com/sentinelkit/authcore/session"
	"github.com/sentinelkit/authcore/token"
	"github.com/sentinelkit/authcore/twofactor"
)

// Builder wires an [Engine] from its dependencies. Configure then call
// Build once; a Builder is not reusable afterwards.
type Builder struct {
	config Config

	redis       redis.UniversalClient
	identities  IdentityProvider
	permissions PermissionProvider
	auditSink   AuditSink
	notifier    notify.Notifier

	built bool
}

// New returns a [Builder] loaded with the default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the configuration. Zero-valued fields are filled
// with defaults at Build time.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client backing rate limiting and sessions.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityProvider sets the durable credential store.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.identities = p
	return b
}

// WithPermissionProvider sets the grant lookup used when minting access
// tokens. Optional; without one tokens carry no grants.
func (b *Builder) WithPermissionProvider(p PermissionProvider) *Builder {
	b.permissions = p
	return b
}

// WithAuditSink sets the destination for audit events. Optional; without
// one events are discarded.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithNotifier sets the out-of-band notifier for security-relevant
// account changes. Optional.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifier = n
	return b
}

// Build validates the configuration, constructs every component, and
// returns a ready [Engine].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if b.identities == nil {
		return nil, errors.New("identity provider is required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}

	cfg := fillDefaults(b.config)
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	tokens, err := token.NewManager(token.Config{
		AccessTTL:           cfg.Token.AccessTTL,
		RememberMeAccessTTL: cfg.Token.RememberMeAccessTTL,
		RefreshTTL:          cfg.Token.RefreshTTL,
		SigningMethod:       token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:          cfg.Token.PrivateKey,
		PublicKey:           cfg.Token.PublicKey,
		Issuer:              cfg.Token.Issuer,
		Audience:            cfg.Token.Audience,
		Leeway:              cfg.Token.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	sessions := session.NewStore(b.redis, session.Config{
		Prefix:         cfg.Session.RedisPrefix,
		MaxPerIdentity: cfg.Session.MaxPerIdentity,
		Lifetime:       cfg.Session.Lifetime,
	})

	limiter := rate.New(b.redis, rate.Config{
		Enabled:       cfg.RateLimit.Enabled,
		Threshold:     cfg.RateLimit.Threshold,
		Window:        cfg.RateLimit.Window,
		BlockDuration: cfg.RateLimit.BlockDuration,
		Prefix:        "rl",
	})

	// Second-factor attempts share the address gate with passwords by
	// default; the per-identity limiter is an extra opt-in layer.
	var tfaLimiter *rate.Limiter
	if cfg.TwoFactor.MaxAttempts > 0 {
		tfaLimiter = rate.New(b.redis, rate.Config{
			Enabled:       true,
			Threshold:     cfg.TwoFactor.MaxAttempts,
			Window:        cfg.TwoFactor.AttemptWindow,
			BlockDuration: cfg.TwoFactor.AttemptBlock,
			Prefix:        "tfa",
		})
	}

	totp := twofactor.NewManager(twofactor.Config{
		Issuer: cfg.TwoFactor.Issuer,
		Period: cfg.TwoFactor.Period,
		Digits: cfg.TwoFactor.Digits,
		Skew:   cfg.TwoFactor.Skew,
	})

	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	notifier := b.notifier
	if notifier == nil {
		notifier = notify.NoOp{}
	}

	e := &Engine{
		config:      cfg,
		identities:  b.identities,
		permissions: b.permissions,
		hasher:      hasher,
		tokens:      tokens,
		sessions:    sessions,
		limiter:     limiter,
		tfaLimiter:  tfaLimiter,
		totp:        totp,
		audit:       dispatcher,
		notifier:    notifier,
		metrics: metrics.New(metrics.Config{
			Enabled:       cfg.Metrics.Enabled,
			EnableLatency: cfg.Metrics.EnableLatencyHistograms,
		}),
	}
	e.ready.Store(true)
	return e, nil
}
