package authcore

import (
	"context"

	"github.com/sentinelkit/authcore/internal/audit"
)

// Audit action names. One event is emitted per terminal state of each
// operation, never more.
const (
	ActionLogin            = "login"
	ActionLogout           = "logout"
	ActionRefresh          = "refresh"
	ActionTwoFactorSetup   = "two_factor_setup"
	ActionTwoFactorEnable  = "two_factor_enable"
	ActionTwoFactorDisable = "two_factor_disable"
	ActionBackupRegenerate = "backup_codes_regenerate"
	ActionSessionRevoke    = "session_revoke"
	ActionSessionRevokeAll = "session_revoke_all"

	auditDetailFactor        = "factor"
	auditDetailEvicted       = "evicted_sessions"
	auditDetailRetryAfter    = "retry_after"
	auditDetailFailedAttempt = "failed_attempts"
)

// emitAudit stamps the event with an ID, timestamp, and caller context,
// then hands it to the async dispatcher. Never blocks the caller beyond a
// channel send.
func (e *Engine) emitAudit(ctx context.Context, event audit.Event) {
	if e.audit == nil {
		return
	}
	event.EventID = audit.NewEventID()
	event.Timestamp = e.clock().UTC()
	if event.Addr == "" {
		event.Addr = clientAddr(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = userAgent(ctx)
	}
	if event.Risk == "" {
		event.Risk = RiskLow
	}
	e.audit.Emit(ctx, event)
}

// detail appends a key/value to the event's detail map, allocating it on
// first use.
func detail(event *audit.Event, key, value string) {
	if event.Details == nil {
		event.Details = make(map[string]string, 2)
	}
	event.Details[key] = value
}
