package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a session does not exist, is expired,
	// or is not owned by the asking principal.
	ErrNotFound = errors.New("session not found")
	// ErrRefreshMismatch is returned by Rotate when the presented refresh
	// digest does not match the stored one. The session is destroyed as a
	// side effect: a mismatch means the secret was already rotated once.
	ErrRefreshMismatch = errors.New("refresh hash mismatch")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("session store unavailable")
)

// Session is one authenticated device/browser instance. Exactly one row
// exists per issued identifier; an inactive row is never reactivated.
type Session struct {
	ID          string
	PrincipalID string
	Role        string
	Device      string
	IP          string
	RefreshHash [32]byte
	Remember    bool
	Active      bool
	CreatedAt   int64
	ExpiresAt   int64
}

// Store is the persistence contract for sessions. All mutating operations
// are single atomic transitions; none requires cross-session locking.
type Store interface {
	// Save persists a new session and registers it in the owner's index.
	Save(ctx context.Context, s *Session, ttl time.Duration) error

	// Get returns a session by ID regardless of active flag. Missing rows
	// return ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// ListActive returns the principal's active, unexpired sessions,
	// newest first.
	ListActive(ctx context.Context, principalID string, now time.Time) ([]*Session, error)

	// Revoke marks one session inactive, but only if it is owned by
	// principalID. Returns false when no owned session matched. Repeats
	// are harmless no-ops.
	Revoke(ctx context.Context, principalID, id string) (bool, error)

	// RevokeAll marks every session owned by principalID inactive in one
	// atomic sweep and returns how many flipped.
	RevokeAll(ctx context.Context, principalID string) (int, error)

	// Rotate swaps the refresh digest if and only if oldHash matches the
	// stored one. On mismatch the session is deactivated and
	// ErrRefreshMismatch returned.
	Rotate(ctx context.Context, id string, oldHash, newHash [32]byte, now time.Time) error
}
