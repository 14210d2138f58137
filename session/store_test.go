package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, maxSessions int) (*Store, *time.Time) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewStore(client, Config{
		MaxPerIdentity: maxSessions,
		Lifetime:       7 * 24 * time.Hour,
	})

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	return store, &now
}

func mustCreate(t *testing.T, store *Store, identityID, sessionID string) []string {
	t.Helper()

	evicted, err := store.Create(context.Background(), &Session{
		SessionID:  sessionID,
		IdentityID: identityID,
		Addr:       "192.0.2.1",
		UserAgent:  "test-agent",
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("Create(%s) failed: %v", sessionID, err)
	}
	return evicted
}

func TestCreateAndGet(t *testing.T) {
	store, _ := newTestStore(t, 5)

	mustCreate(t, store, "alice", "s1")

	sess, err := store.Get(context.Background(), "alice", "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if sess.SessionID != "s1" || sess.IdentityID != "alice" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if sess.Addr != "192.0.2.1" || sess.UserAgent != "test-agent" {
		t.Fatalf("device fields not preserved: %+v", sess)
	}
}

func TestCapacityEvictsOldestActivity(t *testing.T) {
	store, now := newTestStore(t, 3)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		mustCreate(t, store, "alice", fmt.Sprintf("s%d", i))
		*now = now.Add(time.Second)
	}

	// s1 becomes the most recently active, so s2 is now the LRU victim.
	if err := store.Touch(ctx, "alice", "s1"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	*now = now.Add(time.Second)

	evicted := mustCreate(t, store, "alice", "s4")
	if len(evicted) != 1 || evicted[0] != "s2" {
		t.Fatalf("expected s2 evicted, got %v", evicted)
	}

	if _, err := store.Get(ctx, "alice", "s2"); err != ErrNotFound {
		t.Fatalf("expected s2 gone, got err=%v", err)
	}

	sessions, err := store.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions after eviction, got %d", len(sessions))
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	store, now := newTestStore(t, 5)

	for i := 1; i <= 20; i++ {
		mustCreate(t, store, "alice", fmt.Sprintf("s%d", i))
		*now = now.Add(time.Second)

		sessions, err := store.List(context.Background(), "alice")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(sessions) > 5 {
			t.Fatalf("session cap exceeded at iteration %d: %d", i, len(sessions))
		}
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t, 5)
	ctx := context.Background()

	mustCreate(t, store, "alice", "s1")

	if err := store.Revoke(ctx, "alice", "s1"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := store.Revoke(ctx, "alice", "s1"); err != nil {
		t.Fatalf("second Revoke should be a no-op, got: %v", err)
	}
	if err := store.Revoke(ctx, "alice", "never-existed"); err != nil {
		t.Fatalf("Revoke of unknown session should be a no-op, got: %v", err)
	}
}

func TestTouchMissingSessionIsSilent(t *testing.T) {
	store, _ := newTestStore(t, 5)

	if err := store.Touch(context.Background(), "alice", "ghost"); err != nil {
		t.Fatalf("Touch of missing session should be silent, got: %v", err)
	}

	sessions, err := store.List(context.Background(), "alice")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("touch must not resurrect sessions, got %d", len(sessions))
	}
}

func TestRevokeAll(t *testing.T) {
	store, now := newTestStore(t, 5)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		mustCreate(t, store, "alice", fmt.Sprintf("s%d", i))
		*now = now.Add(time.Second)
	}
	mustCreate(t, store, "bob", "b1")

	n, err := store.RevokeAll(ctx, "alice")
	if err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 revoked, got %d", n)
	}

	sessions, err := store.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions for alice, got %d", len(sessions))
	}

	// Other identities are untouched.
	if ok, _ := store.Exists(ctx, "bob", "b1"); !ok {
		t.Fatal("bob's session should survive alice's RevokeAll")
	}
}

func TestListOrdersByActivity(t *testing.T) {
	store, now := newTestStore(t, 5)
	ctx := context.Background()

	mustCreate(t, store, "alice", "s1")
	*now = now.Add(time.Second)
	mustCreate(t, store, "alice", "s2")
	*now = now.Add(time.Second)

	if err := store.Touch(ctx, "alice", "s1"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	sessions, err := store.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].SessionID != "s1" || sessions[1].SessionID != "s2" {
		t.Fatalf("expected most-recent-activity-first ordering, got %s, %s",
			sessions[0].SessionID, sessions[1].SessionID)
	}
	if !sessions[0].LastActivity.After(sessions[1].LastActivity) {
		t.Fatal("expected touched session to carry newer activity")
	}
}
