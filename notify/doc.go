// Package notify defines the opportunistic notification collaborator the
// engine calls after security-relevant events (two-factor setup, backup
// code consumption). Delivery is best-effort: a failing notifier is logged
// and never fails the operation that triggered it.
package notify
