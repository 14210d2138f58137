package authcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addIdentity(t, "u1", "alice")
	ctx := loginCtx("198.51.100.7")

	result, err := env.engine.Login(ctx, LoginRequest{Handle: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" || result.SessionID == "" {
		t.Fatal("expected tokens and a session ID")
	}
	if result.TwoFactorRequired {
		t.Fatal("unexpected TwoFactorRequired")
	}
	if result.ExpiresIn != 24*time.Hour {
		t.Fatalf("ExpiresIn = %v, want 24h", result.ExpiresIn)
	}

	event := env.nextAudit(t)
	if event.Action != ActionLogin || !event.Success {
		t.Fatalf("audit = %+v, want successful login", event)
	}
	if event.IdentityID != "u1" || event.Addr != "198.51.100.7" {
		t.Fatalf("audit identity/addr = %q/%q", event.IdentityID, event.Addr)
	}
	if event.Risk != RiskLow {
		t.Fatalf("risk = %q, want low", event.Risk)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("login success counter = %d", snap.Counters[MetricLoginSuccess])
	}
}

func TestLoginRememberMeStretchesAccess(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addIdentity(t, "u1", "alice")

	result, err := env.engine.Login(loginCtx("192.0.2.1"), LoginRequest{
		Handle: "alice", Password: testPassword, RememberMe: true,
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.ExpiresIn != 7*24*time.Hour {
		t.Fatalf("ExpiresIn = %v, want 168h", result.ExpiresIn)
	}
}

func TestLoginFailureIndistinguishable(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addIdentity(t, "u1", "alice")
	ctx := loginCtx("192.0.2.2")

	_, unknownErr := env.engine.Login(ctx, LoginRequest{Handle: "nobody", Password: testPassword})
	_, wrongErr := env.engine.Login(ctx, LoginRequest{Handle: "alice", Password: "wrong"})

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("got %v / %v, want ErrInvalidCredentials for both", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("error text differs: %q vs %q", unknownErr, wrongErr)
	}

	// The audit trail is where the two cases diverge.
	first := env.nextAudit(t)
	second := env.nextAudit(t)
	if first.Error != "unknown identity" || first.IdentityID != "" {
		t.Fatalf("unknown-handle audit = %+v", first)
	}
	if second.Error != "invalid password" || second.IdentityID != "u1" {
		t.Fatalf("wrong-password audit = %+v", second)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	env := newTestEnv(t, testConfig())
	hash, _ := env.hasher.Hash(testPassword)
	env.provider.add(IdentityRecord{IdentityID: "u1", Handle: "alice", PasswordHash: hash, IsActive: false})

	_, err := env.engine.Login(loginCtx("192.0.2.3"), LoginRequest{Handle: "alice", Password: testPassword})
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("got %v, want ErrAccountInactive", err)
	}
}

func TestLockoutEngagesAtThreshold(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addIdentity(t, "u1", "alice")
	ctx := loginCtx("192.0.2.4")

	// The first five wrong passwords all report invalid credentials; the
	// fifth engages the lock quietly.
	for i := 0; i < 5; i++ {
		_, err := env.engine.Login(ctx, LoginRequest{Handle: "alice", Password: "wrong"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: got %v, want ErrInvalidCredentials", i+1, err)
		}
	}
	if env.provider.get("u1").LockedUntil == nil {
		t.Fatal("lock not engaged after fifth failure")
	}

	// Attempt six hits the lock, even with the right password.
	_, err := env.engine.Login(ctx, LoginRequest{Handle: "alice", Password: testPassword})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("got %v, want ErrAccountLocked", err)
	}
	var limited *RateLimitedError
	if !errors.As(err, &limited) || limited.RetryAfter <= 0 {
		t.Fatalf("expected a positive retry delay, got %v", err)
	}
}

func TestLockoutExpiresLazily(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addIdentity(t, "u1", "alice")
	ctx := loginCtx("192.0.2.5")

	for i := 0; i < 5; i++ {
		_, _ = env.engine.Login(ctx, LoginRequest{Handle: "alice", Password: "wrong"})
	}

	// No unlock job runs; the next attempt after the window simply
	// observes the elapsed lock and proceeds.
	env.engine.now = func() time.Time { return time.Now().Add(31 * time.Minute) }

	result, err := env.engine.Login(ctx, LoginRequest{Handle: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("Login after lock elapsed: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatal("expected tokens")
	}

	rec := env.provider.get("u1")
	if rec.FailedAttempts != 0 || rec.LockedUntil != nil {
		t.Fatalf("lock state not cleared: %+v", rec)
	}
}

func TestTwoFactorFailureDoesNotFeedLockout(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addIdentity(t, "u1", "alice")
	enableTwoFactor(t, env, "u1")
	ctx := loginCtx("192.0.2.6")

	for i := 0; i < 7; i++ {
		_, err := env.engine.Login(ctx, LoginRequest{
			Handle: "alice", Password: testPassword, Second: TOTPCode("000000"),
		})
		if !errors.Is(err, ErrTwoFactorInvalid) {
			t.Fatalf("attempt %d: got %v, want ErrTwoFactorInvalid", i+1, err)
		}
	}

	rec := env.provider.get("u1")
	if rec.FailedAttempts != 0 || rec.LockedUntil != nil {
		t.Fatalf("second-factor failures touched lockout state: %+v", rec)
	}
}

func TestTwoFactorRequired(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addIdentity(t, "u1", "alice")
	secret := enableTwoFactor(t, env, "u1")
	ctx := loginCtx("192.0.2.7")

	result, err := env.engine.Login(ctx, LoginRequest{Handle: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !result.TwoFactorRequired {
		t.Fatal("expected TwoFactorRequired")
	}
	if result.AccessToken != "" || result.RefreshToken != "" || result.SessionID != "" {
		t.Fatal("no tokens may be issued before the second factor")
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	result, err = env.engine.Login(ctx, LoginRequest{
		Handle: "alice", Password: testPassword, Second: TOTPCode(code),
	})
	if err != nil {
		t.Fatalf("Login with code: %v", err)
	}
	if result.AccessToken == "" || result.UsedBackupCode {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestTwoFactorCodeIsNotAPasswordBypass(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addIdentity(t, "u1", "alice")
	secret := enableTwoFactor(t, env, "u1")

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}

	_, err = env.engine.Login(loginCtx("192.0.2.8"), LoginRequest{
		Handle: "alice", Password: "wrong", Second: TOTPCode(code),
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("got %v, want ErrInvalidCredentials", err)
	}
}

func TestBackupCodeSingleUse(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addIdentity(t, "u1", "alice")
	_, codes := enableTwoFactorWithCodes(t, env, "u1")

	result, err := env.engine.Login(loginCtx("192.0.2.9"), LoginRequest{
		Handle: "alice", Password: testPassword, Second: BackupCode(codes[0]),
	})
	if err != nil {
		t.Fatalf("Login with backup code: %v", err)
	}
	if !result.UsedBackupCode {
		t.Fatal("expected UsedBackupCode")
	}

	_, err = env.engine.Login(loginCtx("192.0.2.9"), LoginRequest{
		Handle: "alice", Password: testPassword, Second: BackupCode(codes[0]),
	})
	if !errors.Is(err, ErrTwoFactorInvalid) {
		t.Fatalf("reused code: got %v, want ErrTwoFactorInvalid", err)
	}
}

func TestBackupCodeConcurrentRedemption(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addIdentity(t, "u1", "alice")
	_, codes := enableTwoFactorWithCodes(t, env, "u1")

	const racers = 8
	var wg sync.WaitGroup
	results := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Distinct addresses keep the address gate out of the
			// race being tested.
			ctx := loginCtx(fmt.Sprintf("203.0.113.%d", i+1))
			_, err := env.engine.Login(ctx, LoginRequest{
				Handle: "alice", Password: testPassword, Second: BackupCode(codes[1]),
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrTwoFactorInvalid):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("code redeemed %d times, want exactly 1", successes)
	}
}

func TestRateLimitBlocksAddress(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Threshold = 3
	cfg.RateLimit.Window = time.Minute
	cfg.RateLimit.BlockDuration = time.Minute
	env := newTestEnv(t, cfg)
	env.addIdentity(t, "u1", "alice")
	ctx := loginCtx("192.0.2.10")

	for i := 0; i < 3; i++ {
		_, err := env.engine.Login(ctx, LoginRequest{Handle: "alice", Password: "wrong"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}

	// The gate runs before credentials, so even the right password is
	// rejected from a blocked address.
	_, err := env.engine.Login(ctx, LoginRequest{Handle: "alice", Password: testPassword})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}
	var limited *RateLimitedError
	if !errors.As(err, &limited) || limited.RetryAfter <= 0 {
		t.Fatalf("expected retry delay, got %v", err)
	}

	// Another address is unaffected.
	if _, err := env.engine.Login(loginCtx("192.0.2.11"), LoginRequest{Handle: "alice", Password: testPassword}); err != nil {
		t.Fatalf("independent address: %v", err)
	}
}

func TestSuccessfulLoginClearsAddressWindow(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Threshold = 3
	cfg.RateLimit.Window = time.Minute
	cfg.RateLimit.BlockDuration = time.Minute
	env := newTestEnv(t, cfg)
	env.addIdentity(t, "u1", "alice")
	ctx := loginCtx("192.0.2.30")

	for i := 0; i < 2; i++ {
		_, err := env.engine.Login(ctx, LoginRequest{Handle: "alice", Password: "wrong"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if _, err := env.engine.Login(ctx, LoginRequest{Handle: "alice", Password: testPassword}); err != nil {
		t.Fatalf("third attempt with right password: %v", err)
	}

	// Success vouched for the address, so its failure window is gone and
	// a fourth attempt is not counted against the earlier two.
	if _, err := env.engine.Login(ctx, LoginRequest{Handle: "alice", Password: testPassword}); err != nil {
		t.Fatalf("attempt after success: %v", err)
	}
}

func TestSessionCapEnforcedThroughLogin(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addIdentity(t, "u1", "alice")

	for i := 0; i < 7; i++ {
		if _, err := env.engine.Login(loginCtx("192.0.2.12"), LoginRequest{Handle: "alice", Password: testPassword}); err != nil {
			t.Fatalf("login %d: %v", i+1, err)
		}
	}

	sessions, err := env.engine.ListSessions(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 5 {
		t.Fatalf("live sessions = %d, want cap 5", len(sessions))
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricSessionEvicted] != 2 {
		t.Fatalf("evictions = %d, want 2", snap.Counters[MetricSessionEvicted])
	}
}

func TestRefreshRotatesPair(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addIdentity(t, "u1", "alice")

	result, err := env.engine.Login(loginCtx("192.0.2.13"), LoginRequest{Handle: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	pair, err := env.engine.Refresh(context.Background(), result.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected a fresh pair")
	}

	identity, err := env.engine.ValidateAccess(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if identity.IdentityID != "u1" || identity.SessionID != result.SessionID {
		t.Fatalf("identity = %+v", identity)
	}
	if len(identity.Grants) != 2 {
		t.Fatalf("grants = %v, want posts:read and posts:write", identity.Grants)
	}
}

func TestRefreshRejectsDeactivatedIdentity(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addIdentity(t, "u1", "alice")

	result, err := env.engine.Login(loginCtx("192.0.2.31"), LoginRequest{Handle: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// A refresh token outlives an administrator disable unless the
	// engine re-checks the record each rotation.
	env.provider.setActive("u1", false)
	if _, err := env.engine.Refresh(context.Background(), result.RefreshToken); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("got %v, want ErrAccountInactive", err)
	}

	env.provider.setActive("u1", true)
	if _, err := env.engine.Refresh(context.Background(), result.RefreshToken); err != nil {
		t.Fatalf("Refresh after reactivation: %v", err)
	}
}

func TestRefreshRejectsDeletedIdentity(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addIdentity(t, "u1", "alice")

	result, err := env.engine.Login(loginCtx("192.0.2.32"), LoginRequest{Handle: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	env.provider.remove("u1")
	if _, err := env.engine.Refresh(context.Background(), result.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("got %v, want ErrTokenInvalid", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addIdentity(t, "u1", "alice")

	result, err := env.engine.Login(loginCtx("192.0.2.14"), LoginRequest{Handle: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := env.engine.Refresh(context.Background(), result.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("got %v, want ErrTokenInvalid", err)
	}
	if _, err := env.engine.ValidateAccess(context.Background(), result.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("got %v, want ErrTokenInvalid", err)
	}
}

func TestLogoutCutsRefreshChain(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addIdentity(t, "u1", "alice")

	result, err := env.engine.Login(loginCtx("192.0.2.15"), LoginRequest{Handle: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := env.engine.Logout(context.Background(), result.AccessToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	// Idempotent.
	if err := env.engine.Logout(context.Background(), result.AccessToken); err != nil {
		t.Fatalf("second Logout: %v", err)
	}

	if _, err := env.engine.Refresh(context.Background(), result.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh after logout: got %v, want ErrTokenInvalid", err)
	}
}

func TestValidateAccessStrictMode(t *testing.T) {
	cfg := testConfig()
	cfg.Token.CheckSession = true
	env := newTestEnv(t, cfg)
	env.addIdentity(t, "u1", "alice")

	result, err := env.engine.Login(loginCtx("192.0.2.16"), LoginRequest{Handle: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := env.engine.ValidateAccess(context.Background(), result.AccessToken); err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}

	if err := env.engine.RevokeSession(context.Background(), "u1", result.SessionID); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if _, err := env.engine.ValidateAccess(context.Background(), result.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("got %v, want ErrTokenInvalid after revocation", err)
	}
}

func TestAuditOneEventPerTerminalState(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addIdentity(t, "u1", "alice")
	ctx := loginCtx("192.0.2.17")

	_, _ = env.engine.Login(ctx, LoginRequest{Handle: "alice", Password: "wrong"})
	_, _ = env.engine.Login(ctx, LoginRequest{Handle: "alice", Password: testPassword})

	first := env.nextAudit(t)
	second := env.nextAudit(t)
	if first.Success || first.Action != ActionLogin {
		t.Fatalf("first event = %+v", first)
	}
	if !second.Success || second.Action != ActionLogin {
		t.Fatalf("second event = %+v", second)
	}
	if first.EventID == second.EventID || first.EventID == "" {
		t.Fatal("event IDs must be unique and non-empty")
	}

	select {
	case extra := <-env.sink.Events():
		t.Fatalf("unexpected extra event: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}
