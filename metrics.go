package authcore

import (
	internalmetrics "github.com/sentinelkit/authcore/internal/metrics"
)

// MetricID identifies one engine counter.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess           = internalmetrics.MetricLoginSuccess
	MetricLoginFailure           = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited       = internalmetrics.MetricLoginRateLimited
	MetricLoginUnknownIdentity   = internalmetrics.MetricLoginUnknownIdentity
	MetricAccountLocked          = internalmetrics.MetricAccountLocked
	MetricAccountInactive        = internalmetrics.MetricAccountInactive
	MetricTwoFactorRequired      = internalmetrics.MetricTwoFactorRequired
	MetricTwoFactorSuccess       = internalmetrics.MetricTwoFactorSuccess
	MetricTwoFactorFailure       = internalmetrics.MetricTwoFactorFailure
	MetricBackupCodeUsed         = internalmetrics.MetricBackupCodeUsed
	MetricBackupCodeFailed       = internalmetrics.MetricBackupCodeFailed
	MetricBackupCodesRegenerated = internalmetrics.MetricBackupCodesRegenerated
	MetricTwoFactorEnabled       = internalmetrics.MetricTwoFactorEnabled
	MetricTwoFactorDisabled      = internalmetrics.MetricTwoFactorDisabled
	MetricSessionCreated         = internalmetrics.MetricSessionCreated
	MetricSessionEvicted         = internalmetrics.MetricSessionEvicted
	MetricSessionRevoked         = internalmetrics.MetricSessionRevoked
	MetricRefreshSuccess         = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure         = internalmetrics.MetricRefreshFailure
	MetricLogout                 = internalmetrics.MetricLogout
	MetricLogoutAll              = internalmetrics.MetricLogoutAll
	MetricRateLimitHit           = internalmetrics.MetricRateLimitHit
)

// Metrics holds the engine's atomic counters.
type Metrics = internalmetrics.Metrics

// MetricsConfig controls metric collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// NewMetrics creates a [Metrics] instance; when cfg.Enabled is false all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
