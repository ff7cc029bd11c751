package authengine

import (
	"context"
	"errors"
	"io"
	"time"

	internalaudit "github.com/staynest/authengine/internal/audit"
	internalstores "github.com/staynest/authengine/internal/stores"
)

// AccountStatus is the lifecycle state of a principal. It is a closed set;
// the orchestrator switches over it exhaustively.
type AccountStatus uint8

const (
	// AccountActive principals may authenticate.
	AccountActive AccountStatus = iota
	// AccountPendingVerification principals are blocked until their email or
	// phone is confirmed.
	AccountPendingVerification
	// AccountSuspended principals are blocked by an operator action.
	AccountSuspended
)

func (s AccountStatus) String() string {
	switch s {
	case AccountActive:
		return "active"
	case AccountPendingVerification:
		return "pending_verification"
	case AccountSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Principal is the credential-store record for one registered identity.
// Lockout state lives on the row so correctness holds across server
// instances; it is mutated only through [CredentialStore] atomics.
type Principal struct {
	ID              string
	Email           string
	Phone           string
	PasswordHash    string
	Role            string
	Status          AccountStatus
	FailedLogins    int
	LockedUntil     *time.Time
	TwoFactorSecret string
	TOTPLastUsed    int64
	LastLoginAt     *time.Time
	CreatedAt       time.Time
}

// TwoFactorEnabled reports whether a confirmed TOTP secret is on file.
func (p *Principal) TwoFactorEnabled() bool { return p.TwoFactorSecret != "" }

// BackupCodeHash is the SHA-256 digest of a single-use backup code.
// Plaintext codes are never persisted.
type BackupCodeHash [32]byte

// CredentialStore is the persistence contract for principals. Any engine
// can implement it; sqlitestore ships the default implementation.
//
// UpdateLockoutState must be conditional on expectedFailed so that
// concurrent failures against the same principal serialize at the storage
// layer instead of racing a read-modify-write. A stale expectation returns
// ErrLockoutConflict and the caller re-reads and retries.
type CredentialStore interface {
	// FindPrincipal resolves an identifier, matching email first and phone
	// second. Returns ErrPrincipalNotFound when neither matches.
	FindPrincipal(ctx context.Context, identifier string) (*Principal, error)
	FindPrincipalByID(ctx context.Context, id string) (*Principal, error)

	// UpdateLockoutState applies a lockout transition computed by the
	// policy. The write succeeds only if the stored failed-login counter
	// still equals expectedFailed.
	UpdateLockoutState(ctx context.Context, id string, expectedFailed, newFailed int, lockedUntil *time.Time) error

	// RecordLogin resets the failed counter, clears any lockout, and stamps
	// the last login. One atomic statement.
	RecordLogin(ctx context.Context, id string, at time.Time) error

	UpdatePasswordHash(ctx context.Context, id, hash string) error

	// UpdateStatus moves a principal between lifecycle states. The engine
	// only ever promotes PendingVerification to Active; suspension is an
	// operator action outside this engine.
	UpdateStatus(ctx context.Context, id string, status AccountStatus) error

	// EnableTwoFactor persists a confirmed TOTP secret.
	EnableTwoFactor(ctx context.Context, id, secret string) error
	// DisableTwoFactor clears the secret, the last-used timestep, and all
	// backup codes.
	DisableTwoFactor(ctx context.Context, id string) error

	// UpdateTOTPLastUsed records the most recent accepted TOTP timestep.
	// Codes at or below the stored step are replays and are refused.
	UpdateTOTPLastUsed(ctx context.Context, id string, step int64) error

	ReplaceBackupCodes(ctx context.Context, id string, hashes []BackupCodeHash) error
	// ConsumeBackupCode deletes a matching unused code. Returns false when
	// no code matched; a matched code can never be consumed twice.
	ConsumeBackupCode(ctx context.Context, id string, hash BackupCodeHash) (bool, error)
}

// ErrLockoutConflict is returned by CredentialStore.UpdateLockoutState when
// the expected failed-login counter no longer matches the row.
var ErrLockoutConflict = errors.New("lockout state conflict")

// TokenPurpose tags a verification token with the single action it may
// authorize.
type TokenPurpose string

const (
	// PurposePasswordReset authorizes one password change.
	PurposePasswordReset TokenPurpose = "password_reset"
	// PurposeEmailVerification authorizes one email confirmation.
	PurposeEmailVerification TokenPurpose = "email_verification"
)

// VerificationRecord is the stored half of a verification token: the
// secret digest plus expiry and a failed-match budget.
type VerificationRecord = internalstores.VerificationRecord

// VerificationTokenStore persists single-use verification tokens. Consume
// must be atomic: concurrent consumption attempts succeed at most once,
// and a consumed or expired record is never accepted again.
type VerificationTokenStore interface {
	Save(ctx context.Context, key string, record *VerificationRecord, ttl time.Duration) error
	// Consume validates providedHash against the stored digest and deletes
	// the record on match. A mismatch burns one attempt; exhausting
	// maxAttempts deletes the record.
	Consume(ctx context.Context, key string, providedHash [32]byte, maxAttempts int) (*VerificationRecord, error)
}

// ClientMeta is the opaque device/network description captured at login
// and attached to the session for later review.
type ClientMeta struct {
	Device string
	IP     string
}

// LoginRequest carries one authentication attempt.
type LoginRequest struct {
	Identifier    string
	Password      string
	Remember      bool
	TwoFactorCode string
	Client        ClientMeta
}

// LoginResult is returned by [Engine.Login]. When RequiresTwoFactor is
// set, no session was issued and the caller should re-submit with a code.
type LoginResult struct {
	PrincipalID       string
	Role              string
	SessionID         string
	AccessToken       string
	RefreshToken      string
	RequiresTwoFactor bool
}

// SessionInfo is one entry of a principal's session list.
type SessionInfo struct {
	ID        string
	Device    string
	IP        string
	CreatedAt time.Time
	ExpiresAt time.Time
	Current   bool
}

// Identity is the verified result of an access-token check.
type Identity struct {
	PrincipalID string
	SessionID   string
	Role        string
}

// TwoFactorSetup is returned by [Engine.BeginTwoFactorSetup]. The secret
// is not persisted until the caller proves possession via
// [Engine.ConfirmTwoFactorSetup].
type TwoFactorSetup struct {
	Secret          string
	ProvisioningURI string
}

// AuditEvent is a structured security event emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards all audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON-encoded event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
