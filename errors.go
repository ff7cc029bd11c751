package authengine

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned for an unknown identifier or a wrong
	// password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a principal's lockout window is open.
	// Login failures wrap it in a [LockoutError] carrying the remaining time.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountNotVerified is returned for principals still pending
	// identifier verification.
	ErrAccountNotVerified = errors.New("account not verified")
	// ErrAccountSuspended is returned for suspended principals.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrTwoFactorInvalid is returned for a wrong one-time or backup code.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")
	// ErrTwoFactorNotEnabled is returned when a 2FA operation targets a
	// principal without an enabled second factor.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrTwoFactorUnavailable is returned when the 2FA backend fails.
	ErrTwoFactorUnavailable = errors.New("two-factor backend unavailable")
	// ErrSessionNotFound is returned when a session does not exist or does
	// not belong to the calling principal. The two cases are
	// indistinguishable on purpose.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSelfRevocation is returned when a principal tries to revoke the
	// session it is currently using. That path is reserved for Logout.
	ErrSelfRevocation = errors.New("cannot revoke the current session")
	// ErrTokenInvalid is returned for an expired, consumed, or unknown
	// verification token.
	ErrTokenInvalid = errors.New("token expired or invalid")
	// ErrRefreshInvalid is returned for a malformed or unknown refresh token.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse is returned when a previously rotated refresh secret
	// is presented again. The session is destroyed as a side effect.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrAccessInvalid is returned for an unverifiable access token.
	ErrAccessInvalid = errors.New("invalid access token")
	// ErrPasswordPolicy is returned when a new password fails policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a reset resubmits the current password.
	ErrPasswordReuse = errors.New("new password must differ from the current password")
	// ErrPrincipalNotFound is returned by internal lookups by ID. It never
	// reaches login callers, which see ErrInvalidCredentials instead.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrStoreUnavailable wraps persistence failures. The HTTP layer maps it
	// to a generic internal error without leaking storage detail.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// LockoutError reports an open lockout window. It unwraps to
// [ErrAccountLocked] so callers can match with errors.Is.
type LockoutError struct {
	RetryAfter time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account locked, retry in %d minute(s)", e.RetryAfterMinutes())
}

func (e *LockoutError) Unwrap() error { return ErrAccountLocked }

// RetryAfterMinutes returns the remaining lockout duration in whole
// minutes, rounded up. Never less than 1 while the window is open.
func (e *LockoutError) RetryAfterMinutes() int {
	m := int((e.RetryAfter + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}
