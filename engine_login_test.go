package authengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

const testPassword = "correct-horse-battery"

func TestLogin_Success(t *testing.T) {
	engine, creds, _ := newTestEngine(t, testConfig())
	seedPrincipal(t, engine, creds, "u1", "alice@example.com", "", testPassword)

	result, err := engine.Login(context.Background(), LoginRequest{
		Identifier: "alice@example.com",
		Password:   testPassword,
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.SessionID == "" || result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected session id, access token, and refresh token")
	}
	if result.RequiresTwoFactor {
		t.Fatal("unexpected two-factor requirement")
	}

	p := creds.get("u1")
	if p.LastLoginAt == nil {
		t.Fatal("last login not recorded")
	}
}

func TestLogin_ByPhone(t *testing.T) {
	engine, creds, _ := newTestEngine(t, testConfig())
	seedPrincipal(t, engine, creds, "u1", "alice@example.com", "+15551234567", testPassword)

	if _, err := engine.Login(context.Background(), LoginRequest{
		Identifier: "+15551234567",
		Password:   testPassword,
	}); err != nil {
		t.Fatalf("phone login failed: %v", err)
	}
}

func TestLogin_UnknownAndWrongPasswordIndistinguishable(t *testing.T) {
	engine, creds, _ := newTestEngine(t, testConfig())
	seedPrincipal(t, engine, creds, "u1", "alice@example.com", "", testPassword)

	_, errUnknown := engine.Login(context.Background(), LoginRequest{
		Identifier: "nobody@example.com", Password: testPassword,
	})
	_, errWrong := engine.Login(context.Background(), LoginRequest{
		Identifier: "alice@example.com", Password: "not-the-password",
	})

	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("unknown identifier: expected ErrInvalidCredentials, got %v", errUnknown)
	}
	if !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("error messages differ: %q vs %q", errUnknown, errWrong)
	}
}

func TestLogin_LockoutAfterThreshold(t *testing.T) {
	engine, creds, clock := newTestEngine(t, testConfig())
	seedPrincipal(t, engine, creds, "u1", "alice@example.com", "", testPassword)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := engine.Login(ctx, LoginRequest{Identifier: "alice@example.com", Password: "wrong"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// Fifth wrong attempt trips the threshold.
	_, err := engine.Login(ctx, LoginRequest{Identifier: "alice@example.com", Password: "wrong"})
	var lockErr *LockoutError
	if !errors.As(err, &lockErr) {
		t.Fatalf("threshold attempt: expected LockoutError, got %v", err)
	}
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("LockoutError should unwrap to ErrAccountLocked, got %v", err)
	}
	if m := lockErr.RetryAfterMinutes(); m != 30 {
		t.Fatalf("expected 30 minutes remaining, got %d", m)
	}

	// Correct password during the window is still rejected, with less
	// time remaining.
	clock.Advance(10 * time.Minute)
	_, err = engine.Login(ctx, LoginRequest{Identifier: "alice@example.com", Password: testPassword})
	if !errors.As(err, &lockErr) {
		t.Fatalf("locked login: expected LockoutError, got %v", err)
	}
	if m := lockErr.RetryAfterMinutes(); m != 20 {
		t.Fatalf("expected 20 minutes remaining, got %d", m)
	}

	// After the window the correct password works again.
	clock.Advance(21 * time.Minute)
	if _, err := engine.Login(ctx, LoginRequest{Identifier: "alice@example.com", Password: testPassword}); err != nil {
		t.Fatalf("post-window login failed: %v", err)
	}
	if p := creds.get("u1"); p.FailedLogins != 0 || p.LockedUntil != nil {
		t.Fatalf("counters not reset after success: failed=%d until=%v", p.FailedLogins, p.LockedUntil)
	}
}

func TestLogin_SuccessResetsCounter(t *testing.T) {
	engine, creds, _ := newTestEngine(t, testConfig())
	seedPrincipal(t, engine, creds, "u1", "alice@example.com", "", testPassword)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		engine.Login(ctx, LoginRequest{Identifier: "alice@example.com", Password: "wrong"}) //nolint:errcheck
	}
	if _, err := engine.Login(ctx, LoginRequest{Identifier: "alice@example.com", Password: testPassword}); err != nil {
		t.Fatalf("login after failures: %v", err)
	}

	// Counting restarts from 1, not 4.
	engine.Login(ctx, LoginRequest{Identifier: "alice@example.com", Password: "wrong"}) //nolint:errcheck
	if p := creds.get("u1"); p.FailedLogins != 1 {
		t.Fatalf("expected failed counter 1, got %d", p.FailedLogins)
	}
}

func TestLogin_LockoutIsolatedPerPrincipal(t *testing.T) {
	engine, creds, _ := newTestEngine(t, testConfig())
	seedPrincipal(t, engine, creds, "u1", "alice@example.com", "", testPassword)
	seedPrincipal(t, engine, creds, "u2", "bob@example.com", "", testPassword)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		engine.Login(ctx, LoginRequest{Identifier: "alice@example.com", Password: "wrong"}) //nolint:errcheck
	}

	if _, err := engine.Login(ctx, LoginRequest{Identifier: "bob@example.com", Password: testPassword}); err != nil {
		t.Fatalf("bob's login affected by alice's lockout: %v", err)
	}
}

func TestLogin_StatusBlockedAfterPasswordCheck(t *testing.T) {
	engine, creds, _ := newTestEngine(t, testConfig())
	seedPrincipal(t, engine, creds, "u1", "pending@example.com", "", testPassword)
	seedPrincipal(t, engine, creds, "u2", "suspended@example.com", "", testPassword)
	ctx := context.Background()

	p1 := creds.get("u1")
	p1.Status = AccountPendingVerification
	creds.add(p1)
	p2 := creds.get("u2")
	p2.Status = AccountSuspended
	creds.add(p2)

	_, err := engine.Login(ctx, LoginRequest{Identifier: "pending@example.com", Password: testPassword})
	if !errors.Is(err, ErrAccountNotVerified) {
		t.Fatalf("expected ErrAccountNotVerified, got %v", err)
	}
	_, err = engine.Login(ctx, LoginRequest{Identifier: "suspended@example.com", Password: testPassword})
	if !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}

	// Status rejections leave the lockout counter alone.
	if p := creds.get("u1"); p.FailedLogins != 0 {
		t.Fatalf("status-blocked login moved counter to %d", p.FailedLogins)
	}

	// Wrong password on a blocked account still reads as invalid
	// credentials, not as a status hint.
	_, err = engine.Login(ctx, LoginRequest{Identifier: "pending@example.com", Password: "wrong"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_TwoFactorFlow(t *testing.T) {
	engine, creds, clock := newTestEngine(t, testConfig())
	seedPrincipal(t, engine, creds, "u1", "alice@example.com", "", testPassword)
	ctx := context.Background()

	setup, err := engine.BeginTwoFactorSetup(ctx, "u1")
	if err != nil {
		t.Fatalf("BeginTwoFactorSetup: %v", err)
	}
	code, err := totp.GenerateCode(setup.Secret, clock.Now())
	if err != nil {
		t.Fatalf("generating code: %v", err)
	}
	if _, err := engine.ConfirmTwoFactorSetup(ctx, "u1", setup.Secret, code); err != nil {
		t.Fatalf("ConfirmTwoFactorSetup: %v", err)
	}

	// Correct password, no code: flow control, not failure, no counter.
	result, err := engine.Login(ctx, LoginRequest{Identifier: "alice@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("challenge login: %v", err)
	}
	if !result.RequiresTwoFactor || result.AccessToken != "" {
		t.Fatalf("expected bare two-factor challenge, got %+v", result)
	}
	if p := creds.get("u1"); p.FailedLogins != 0 {
		t.Fatalf("challenge response moved counter to %d", p.FailedLogins)
	}

	// Wrong code does count as a failed attempt.
	_, err = engine.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: testPassword, TwoFactorCode: "000000",
	})
	if !errors.Is(err, ErrTwoFactorInvalid) {
		t.Fatalf("expected ErrTwoFactorInvalid, got %v", err)
	}
	if p := creds.get("u1"); p.FailedLogins != 1 {
		t.Fatalf("expected counter 1 after wrong code, got %d", p.FailedLogins)
	}

	// Valid code from a fresh timestep completes the login.
	clock.Advance(90 * time.Second)
	code, _ = totp.GenerateCode(setup.Secret, clock.Now()) //nolint:errcheck
	result, err = engine.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: testPassword, TwoFactorCode: code,
	})
	if err != nil {
		t.Fatalf("two-factor login: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatal("expected issued session after two-factor login")
	}
}

func TestLogin_TotpCodeSingleUsePerStep(t *testing.T) {
	engine, creds, clock := newTestEngine(t, testConfig())
	seedPrincipal(t, engine, creds, "u1", "alice@example.com", "", testPassword)
	ctx := context.Background()

	setup, _ := engine.BeginTwoFactorSetup(ctx, "u1") //nolint:errcheck
	confirmCode, _ := totp.GenerateCode(setup.Secret, clock.Now())
	if _, err := engine.ConfirmTwoFactorSetup(ctx, "u1", setup.Secret, confirmCode); err != nil {
		t.Fatalf("ConfirmTwoFactorSetup: %v", err)
	}
	if p := creds.get("u1"); p.TOTPLastUsed == 0 {
		t.Fatal("confirmation did not record its timestep")
	}

	// The confirmation code's timestep is already spent; within the skew
	// window it still matches the secret, but it cannot complete a login.
	_, err := engine.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: testPassword, TwoFactorCode: confirmCode,
	})
	if !errors.Is(err, ErrTwoFactorInvalid) {
		t.Fatalf("replayed confirmation code: expected ErrTwoFactorInvalid, got %v", err)
	}

	clock.Advance(90 * time.Second)
	code, _ := totp.GenerateCode(setup.Secret, clock.Now()) //nolint:errcheck
	if _, err := engine.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: testPassword, TwoFactorCode: code,
	}); err != nil {
		t.Fatalf("fresh code login: %v", err)
	}

	// Replaying the code that just authenticated fails even though the
	// clock has not moved past its skew window.
	_, err = engine.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: testPassword, TwoFactorCode: code,
	})
	if !errors.Is(err, ErrTwoFactorInvalid) {
		t.Fatalf("replayed login code: expected ErrTwoFactorInvalid, got %v", err)
	}

	// A later step works again.
	clock.Advance(90 * time.Second)
	code, _ = totp.GenerateCode(setup.Secret, clock.Now()) //nolint:errcheck
	if _, err := engine.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: testPassword, TwoFactorCode: code,
	}); err != nil {
		t.Fatalf("post-replay login: %v", err)
	}
}

func TestLogin_BackupCodeSingleUse(t *testing.T) {
	engine, creds, _ := newTestEngine(t, testConfig())
	seedPrincipal(t, engine, creds, "u1", "alice@example.com", "", testPassword)
	ctx := context.Background()

	setup, _ := engine.BeginTwoFactorSetup(ctx, "u1") //nolint:errcheck
	code, _ := totp.GenerateCode(setup.Secret, time.Now())
	backupCodes, err := engine.ConfirmTwoFactorSetup(ctx, "u1", setup.Secret, code)
	if err != nil {
		t.Fatalf("ConfirmTwoFactorSetup: %v", err)
	}
	if len(backupCodes) != 8 {
		t.Fatalf("expected 8 backup codes, got %d", len(backupCodes))
	}

	if _, err := engine.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: testPassword, TwoFactorCode: backupCodes[0],
	}); err != nil {
		t.Fatalf("backup code login: %v", err)
	}

	// The same code never works twice.
	_, err = engine.Login(ctx, LoginRequest{
		Identifier: "alice@example.com", Password: testPassword, TwoFactorCode: backupCodes[0],
	})
	if !errors.Is(err, ErrTwoFactorInvalid) {
		t.Fatalf("expected ErrTwoFactorInvalid on reused backup code, got %v", err)
	}
}
