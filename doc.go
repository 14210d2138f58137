// Package authcore is the authentication and adaptive-security core of a
// permissions management service: the login state machine combining
// password verification, account lockout, TOTP second factors with
// single-use backup codes, per-address rate limiting, bounded concurrent
// sessions, and dual-token (access + refresh) issuance.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build]. Shared mutable state — rate windows, session lists,
// backup-code consumption — lives in Redis and is updated atomically per
// address or per identity, so racing requests for the same key serialize
// while unrelated keys proceed independently.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (LoginResult, SessionInfo, AuditEvent, etc.).
// Callers supply an [IdentityProvider] for durable account state and,
// optionally, a [PermissionProvider], an [AuditSink], and a
// [notify.Notifier]. Internal coordination — rate limiting, audit
// dispatch, counters — lives under internal/ and is never exported.
//
// # Audit contract
//
// Every login attempt reaches exactly one terminal state, and every
// terminal state emits exactly one audit event before the call returns.
// Audit delivery is asynchronous and can never block or fail a flow.
package authcore
