// Package prometheus renders authcore engine counters in Prometheus text
// exposition format. Nothing is registered in a global registry; callers
// mount the Handler wherever they serve metrics.
package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	authcore "github.com/sentinelkit/authcore"
)

// counterDefs maps engine counters to stable exposition names, in output
// order.
var counterDefs = []struct {
	id   authcore.MetricID
	name string
	help string
}{
	{authcore.MetricLoginSuccess, "authcore_login_success_total", "Successful logins."},
	{authcore.MetricLoginFailure, "authcore_login_failure_total", "Failed login attempts."},
	{authcore.MetricLoginRateLimited, "authcore_login_rate_limited_total", "Logins rejected by the address rate limiter."},
	{authcore.MetricLoginUnknownIdentity, "authcore_login_unknown_identity_total", "Login attempts against unknown handles."},
	{authcore.MetricAccountLocked, "authcore_account_locked_total", "Attempts rejected by an engaged account lock."},
	{authcore.MetricAccountInactive, "authcore_account_inactive_total", "Attempts against deactivated accounts."},
	{authcore.MetricTwoFactorRequired, "authcore_two_factor_required_total", "Logins paused awaiting a second factor."},
	{authcore.MetricTwoFactorSuccess, "authcore_two_factor_success_total", "Verified TOTP codes."},
	{authcore.MetricTwoFactorFailure, "authcore_two_factor_failure_total", "Rejected TOTP codes."},
	{authcore.MetricBackupCodeUsed, "authcore_backup_code_used_total", "Backup codes consumed."},
	{authcore.MetricBackupCodeFailed, "authcore_backup_code_failed_total", "Rejected backup codes."},
	{authcore.MetricBackupCodesRegenerated, "authcore_backup_codes_regenerated_total", "Backup code set regenerations."},
	{authcore.MetricTwoFactorEnabled, "authcore_two_factor_enabled_total", "Two-factor enablements."},
	{authcore.MetricTwoFactorDisabled, "authcore_two_factor_disabled_total", "Two-factor disablements."},
	{authcore.MetricSessionCreated, "authcore_session_created_total", "Sessions created."},
	{authcore.MetricSessionEvicted, "authcore_session_evicted_total", "Sessions evicted by the per-identity cap."},
	{authcore.MetricSessionRevoked, "authcore_session_revoked_total", "Sessions revoked explicitly."},
	{authcore.MetricRefreshSuccess, "authcore_refresh_success_total", "Successful token refreshes."},
	{authcore.MetricRefreshFailure, "authcore_refresh_failure_total", "Rejected token refreshes."},
	{authcore.MetricLogout, "authcore_logout_total", "Logouts."},
	{authcore.MetricLogoutAll, "authcore_logout_all_total", "Revoke-all operations."},
	{authcore.MetricRateLimitHit, "authcore_rate_limit_hit_total", "Rate limiter rejections across all gates."},
}

const latencyMetric = "authcore_login_latency_seconds"

// Source is anything exposing engine counters; *authcore.Engine satisfies
// it.
type Source interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders a [Source] in Prometheus text exposition format.
type Exporter struct {
	source Source
}

// New creates an [Exporter] reading from the given source.
func New(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the current metrics.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(e.Render()))
	})
}

// Render returns the exposition text for the current snapshot.
func (e *Exporter) Render() string {
	if e == nil || e.source == nil {
		return ""
	}

	snapshot := e.source.MetricsSnapshot()

	var b strings.Builder
	b.Grow(8192)

	for _, def := range counterDefs {
		writeCounter(&b, def.name, def.help, snapshot.Counters[def.id])
	}
	writeCounter(&b, "authcore_audit_dropped_total", "Audit events shed by the dispatcher.", e.source.AuditDropped())

	if len(snapshot.LatencyBuckets) > 0 {
		writeHistogram(&b, latencyMetric, snapshot.LatencyBuckets, snapshot.LatencyCounts)
	}
	return b.String()
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(help)
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

// writeHistogram converts the engine's microsecond bucket bounds to
// seconds and emits cumulative bucket counts. Sum is not tracked by the
// engine; a stable zero field is kept for scrapers.
func writeHistogram(b *strings.Builder, name string, boundsUS, counts []uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteString(" Login latency distribution.\n")
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" histogram\n")

	var cumulative uint64
	for i, bound := range boundsUS {
		cumulative += counts[i]
		b.WriteString(name)
		b.WriteString(`_bucket{le="`)
		b.WriteString(strconv.FormatFloat(float64(bound)/1e6, 'g', -1, 64))
		b.WriteString(`"} `)
		b.WriteString(strconv.FormatUint(cumulative, 10))
		b.WriteByte('\n')
	}
	cumulative += counts[len(counts)-1]
	b.WriteString(name)
	b.WriteString(`_bucket{le="+Inf"} `)
	b.WriteString(strconv.FormatUint(cumulative, 10))
	b.WriteByte('\n')

	b.WriteString(name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(cumulative, 10))
	b.WriteByte('\n')
	b.WriteString(name)
	b.WriteString("_sum 0\n")
}
