package authengine

import (
	"errors"
	"time"
)

// Config is the engine configuration tree. Construct with [DefaultConfig]
// and override before Build; Validate runs inside [Builder.Build].
type Config struct {
	Lockout  LockoutConfig
	Session  SessionConfig
	Password PasswordConfig
	TOTP     TOTPConfig
	Reset    ResetConfig
	Audit    AuditConfig
}

// LockoutConfig controls the brute-force lockout policy.
type LockoutConfig struct {
	// Threshold is the failed-login count that opens the lockout window.
	Threshold int
	// Window is how long login is refused after the threshold is reached.
	Window time.Duration
}

// SessionConfig controls session and token lifetimes.
type SessionConfig struct {
	// AccessTTL bounds the short-lived access credential.
	AccessTTL time.Duration
	// RefreshTTL bounds the refresh credential for ordinary logins.
	RefreshTTL time.Duration
	// RememberTTL replaces RefreshTTL when the caller asks to be remembered.
	RememberTTL time.Duration
	// Issuer is stamped into access tokens.
	Issuer string
	// SigningKey signs access tokens (HS256).
	SigningKey []byte
}

// PasswordConfig carries the argon2id parameters.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// TOTPConfig controls the time-based second factor.
type TOTPConfig struct {
	// Issuer names the service in provisioning URIs.
	Issuer string
	// Skew is the tolerance in 30-second steps on either side of now.
	Skew uint
	// BackupCodes is how many single-use codes are minted on enable.
	BackupCodes int
}

// ResetConfig controls the password-reset state machine.
type ResetConfig struct {
	// TokenTTL bounds a reset token or code.
	TokenTTL time.Duration
	// MaxAttempts is the failed-match budget before a token self-destructs.
	MaxAttempts int
}

// AuditConfig controls the audit dispatcher.
type AuditConfig struct {
	// QueueSize bounds the dispatch queue. Overflow drops the event and
	// increments a counter; it never blocks the request.
	QueueSize int
}

// DefaultConfig returns the production defaults: threshold 5 with a
// 30-minute lockout window, 30-minute access tokens, 7-day refresh
// lifetime (30 days with remember-me), 1-hour reset tokens.
func DefaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			Threshold: 5,
			Window:    30 * time.Minute,
		},
		Session: SessionConfig{
			AccessTTL:   30 * time.Minute,
			RefreshTTL:  7 * 24 * time.Hour,
			RememberTTL: 30 * 24 * time.Hour,
			Issuer:      "staynest-auth",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		TOTP: TOTPConfig{
			Issuer:      "Staynest",
			Skew:        2,
			BackupCodes: 8,
		},
		Reset: ResetConfig{
			TokenTTL:    time.Hour,
			MaxAttempts: 5,
		},
		Audit: AuditConfig{
			QueueSize: 1024,
		},
	}
}

// Validate rejects configurations that would weaken the security
// invariants the engine promises.
func (c Config) Validate() error {
	if c.Lockout.Threshold < 3 {
		return errors.New("lockout threshold must be >= 3")
	}
	if c.Lockout.Window < time.Minute {
		return errors.New("lockout window must be >= 1m")
	}
	if c.Session.AccessTTL <= 0 || c.Session.AccessTTL > 24*time.Hour {
		return errors.New("access ttl must be in (0, 24h]")
	}
	if c.Session.RefreshTTL < c.Session.AccessTTL {
		return errors.New("refresh ttl must be >= access ttl")
	}
	if c.Session.RememberTTL < c.Session.RefreshTTL {
		return errors.New("remember ttl must be >= refresh ttl")
	}
	if len(c.Session.SigningKey) < 32 {
		return errors.New("signing key must be >= 32 bytes")
	}
	if c.TOTP.Skew > 4 {
		return errors.New("totp skew must be <= 4 steps")
	}
	if c.TOTP.BackupCodes < 4 || c.TOTP.BackupCodes > 16 {
		return errors.New("backup code count must be in [4, 16]")
	}
	if c.Reset.TokenTTL < time.Minute || c.Reset.TokenTTL > 24*time.Hour {
		return errors.New("reset token ttl must be in [1m, 24h]")
	}
	if c.Reset.MaxAttempts < 1 {
		return errors.New("reset max attempts must be >= 1")
	}
	if c.Audit.QueueSize < 1 {
		return errors.New("audit queue size must be >= 1")
	}
	return nil
}
