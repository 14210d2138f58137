package authcore

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentinelkit/authcore/internal/audit"
	"github.com/sentinelkit/authcore/internal/metrics"
	"github.com/sentinelkit/authcore/internal/rate"
	"github.com/sentinelkit/authcore/notify"
	"github.com/sentinelkit/authcore/password"
	"github.com/sentinelkit/authcore/session"
	"github.com/sentinelkit/authcore/token"
	"github.com/sentinelkit/authcore/twofactor"
)

// Engine is the authentication core. Construct it with [Builder.Build];
// all methods are safe for concurrent use.
type Engine struct {
	config Config

	identities  IdentityProvider
	permissions PermissionProvider

	hasher     *password.Hasher
	tokens     *token.Manager
	sessions   *session.Store
	limiter    *rate.Limiter
	tfaLimiter *rate.Limiter
	totp       *twofactor.Manager

	audit    *audit.Dispatcher
	notifier notify.Notifier
	metrics  *metrics.Metrics

	// now is the engine's time source; tests override it.
	now func() time.Time

	notifyWG sync.WaitGroup
	ready    atomic.Bool
	closed   atomic.Bool
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

func (e *Engine) checkReady() error {
	if e == nil || !e.ready.Load() || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

// Close drains the audit dispatcher and waits for in-flight
// notifications. The engine rejects calls afterwards.
func (e *Engine) Close() {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.notifyWG.Wait()
	e.audit.Close()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
// Returns the zero snapshot when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were shed because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// notifyAsync delivers a notification on a detached goroutine so slow
// transports (SMTP) never sit on the login path.
func (e *Engine) notifyAsync(n notify.Notification) {
	if e.closed.Load() {
		return
	}
	e.notifyWG.Add(1)
	go func() {
		defer e.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.notifier.Notify(ctx, n); err != nil {
			e.warnf("notify %s for %s: %v", n.Kind, n.IdentityID, err)
		}
	}()
}

func (e *Engine) warnf(format string, args ...any) {
	log.Printf("authcore: "+format, args...)
}
