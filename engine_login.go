package authengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Login runs one authentication attempt end to end: lockout gate,
// credential verification, account status, optional second factor, and
// session issuance. Unknown identifiers and wrong passwords are
// indistinguishable to the caller.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if req.Client != (ClientMeta{}) {
		ctx = WithClient(ctx, req.Client)
	}

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" || req.Password == "" {
		e.emitAudit(ctx, auditLoginFailure, false, "", "", ErrInvalidCredentials,
			map[string]string{"reason": "missing_fields"})
		return nil, ErrInvalidCredentials
	}

	p, err := e.creds.FindPrincipal(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			// Burn the same argon2 cost as a real verification.
			_, _ = e.hasher.Verify(req.Password, e.dummyHash)
			e.emitAudit(ctx, auditLoginFailure, false, "", "", ErrInvalidCredentials,
				map[string]string{"reason": "unknown_identifier"})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := e.now()
	if allowed, remaining := e.policy.Check(lockoutState{failed: p.FailedLogins, until: p.LockedUntil}, now); !allowed {
		e.emitAudit(ctx, auditLoginFailure, false, p.ID, "", ErrAccountLocked,
			map[string]string{"reason": "locked"})
		return nil, &LockoutError{RetryAfter: remaining}
	}

	match, err := e.hasher.Verify(req.Password, p.PasswordHash)
	if err != nil {
		e.logger.WarnContext(ctx, "stored password hash unreadable", "principal", p.ID)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !match {
		return e.failLogin(ctx, p, auditLoginFailure, ErrInvalidCredentials)
	}

	// Status is checked only after the password proves out, so status
	// errors never leak whether a password was correct for an unverified
	// probe. Status failures do not touch the lockout counter.
	switch p.Status {
	case AccountActive:
	case AccountPendingVerification:
		e.emitAudit(ctx, auditLoginFailure, false, p.ID, "", ErrAccountNotVerified,
			map[string]string{"reason": "pending_verification"})
		return nil, ErrAccountNotVerified
	case AccountSuspended:
		e.emitAudit(ctx, auditLoginFailure, false, p.ID, "", ErrAccountSuspended,
			map[string]string{"reason": "suspended"})
		return nil, ErrAccountSuspended
	default:
		return nil, fmt.Errorf("%w: unknown account status %d", ErrStoreUnavailable, p.Status)
	}

	if p.TwoFactorEnabled() {
		code := strings.TrimSpace(req.TwoFactorCode)
		if code == "" {
			e.emitAudit(ctx, auditTwoFactorRequired, true, p.ID, "", nil, nil)
			return &LoginResult{PrincipalID: p.ID, Role: p.Role, RequiresTwoFactor: true}, nil
		}
		ok, usedBackup, err := e.checkSecondFactor(ctx, p, code, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return e.failLogin(ctx, p, auditTwoFactorFailure, ErrTwoFactorInvalid)
		}
		if usedBackup {
			e.emitAudit(ctx, auditBackupCodeUsed, true, p.ID, "", nil, nil)
		}
	}

	if err := e.creds.RecordLogin(ctx, p.ID, now); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	result, err := e.issueSession(ctx, p, req.Remember)
	if err != nil {
		return nil, err
	}
	e.emitAudit(ctx, auditLoginSuccess, true, p.ID, result.SessionID, nil, nil)
	return result, nil
}

// checkSecondFactor accepts either a 6-digit TOTP code or a 10-character
// backup code. Backup codes are consumed on match and never work twice.
// An accepted TOTP code spends its timestep: the step is persisted on the
// principal row and any code at or below it is refused, so the same code
// cannot authenticate twice inside the skew window.
func (e *Engine) checkSecondFactor(ctx context.Context, p *Principal, code string, now time.Time) (ok, usedBackup bool, err error) {
	if len(code) == totpCodeLength {
		valid, step, err := e.totp.VerifyCode(p.TwoFactorSecret, code, now)
		if err != nil || !valid {
			return false, false, nil
		}
		if step <= p.TOTPLastUsed {
			return false, false, nil
		}
		if err := e.creds.UpdateTOTPLastUsed(ctx, p.ID, step); err != nil {
			return false, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return true, false, nil
	}
	if len(code) == backupCodeLength {
		consumed, err := e.creds.ConsumeBackupCode(ctx, p.ID, hashSecret(strings.ToLower(code)))
		if err != nil {
			return false, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return consumed, consumed, nil
	}
	return false, false, nil
}

// failLogin records one failed attempt against the principal's lockout
// state, audits the failure, and returns the lockout error when this
// attempt tripped the threshold.
func (e *Engine) failLogin(ctx context.Context, p *Principal, action string, cause error) (*LoginResult, error) {
	locked, retryAfter, err := e.applyFailure(ctx, p)
	if err != nil {
		return nil, err
	}
	e.emitAudit(ctx, action, false, p.ID, "", cause, nil)
	if locked {
		e.emitAudit(ctx, auditLockoutTriggered, false, p.ID, "", ErrAccountLocked, nil)
		return nil, &LockoutError{RetryAfter: retryAfter}
	}
	return nil, cause
}

// applyFailure advances the lockout state through the store's conditional
// update. A conflict means a concurrent attempt won the write; the fresh
// row is re-read and the transition retried. When retries run out the
// concurrent writers' transitions stand, which never undercounts by more
// than the attempts that were themselves recorded.
func (e *Engine) applyFailure(ctx context.Context, p *Principal) (locked bool, retryAfter time.Duration, err error) {
	const maxRetries = 3

	now := e.now()
	current := lockoutState{failed: p.FailedLogins, until: p.LockedUntil}
	expected := p.FailedLogins

	for i := 0; i < maxRetries; i++ {
		next := e.policy.OnFailure(current, now)
		err := e.creds.UpdateLockoutState(ctx, p.ID, expected, next.failed, next.until)
		if err == nil {
			if next.until != nil && (current.until == nil || !current.until.After(now)) {
				return true, next.until.Sub(now), nil
			}
			return false, 0, nil
		}
		if !errors.Is(err, ErrLockoutConflict) {
			return false, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		fresh, ferr := e.loadPrincipal(ctx, p.ID)
		if ferr != nil {
			return false, 0, ferr
		}
		current = lockoutState{failed: fresh.FailedLogins, until: fresh.LockedUntil}
		expected = fresh.FailedLogins
		if allowed, remaining := e.policy.Check(current, now); !allowed {
			return true, remaining, nil
		}
	}
	return false, 0, nil
}
