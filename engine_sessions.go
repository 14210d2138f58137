package authcore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sentinelkit/authcore/internal/audit"
	"github.com/sentinelkit/authcore/internal/metrics"
)

// ListSessions returns the identity's live sessions ordered by last
// activity, most recent first.
func (e *Engine) ListSessions(ctx context.Context, identityID string) ([]SessionInfo, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}

	sessions, err := e.sessions.List(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, SessionInfo{
			SessionID:    s.SessionID,
			Addr:         s.Addr,
			UserAgent:    s.UserAgent,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
		})
	}
	return infos, nil
}

// RevokeSession removes one session. Idempotent: revoking a session that
// is already gone succeeds.
func (e *Engine) RevokeSession(ctx context.Context, identityID, sessionID string) error {
	if err := e.checkReady(); err != nil {
		return err
	}

	if err := e.sessions.Revoke(ctx, identityID, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(metrics.MetricSessionRevoked)
	e.emitAudit(ctx, audit.Event{
		Action:     ActionSessionRevoke,
		IdentityID: identityID,
		SessionID:  sessionID,
		Success:    true,
	})
	return nil
}

// RevokeAllSessions removes every session of the identity and returns how
// many were live. Existing access tokens keep working until expiry unless
// Config.Token.CheckSession is set.
func (e *Engine) RevokeAllSessions(ctx context.Context, identityID string) (int, error) {
	if err := e.checkReady(); err != nil {
		return 0, err
	}

	n, err := e.sessions.RevokeAll(ctx, identityID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	for i := 0; i < n; i++ {
		e.metrics.Inc(metrics.MetricSessionRevoked)
	}
	e.metrics.Inc(metrics.MetricLogoutAll)
	e.emitAudit(ctx, audit.Event{
		Action:     ActionSessionRevokeAll,
		IdentityID: identityID,
		Success:    true,
		Risk:       RiskMedium,
		Details:    map[string]string{"revoked": strconv.Itoa(n)},
	})
	return n, nil
}
