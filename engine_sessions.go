package authengine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/staynest/authengine/session"
)

// ListSessions returns the caller's active sessions newest first, with
// the session behind the presented access token flagged as current.
func (e *Engine) ListSessions(ctx context.Context, identity Identity) ([]SessionInfo, error) {
	sessions, err := e.sessions.ListActive(ctx, identity.PrincipalID, e.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionInfo{
			ID:        s.ID,
			Device:    s.Device,
			IP:        s.IP,
			CreatedAt: time.Unix(s.CreatedAt, 0).UTC(),
			ExpiresAt: time.Unix(s.ExpiresAt, 0).UTC(),
			Current:   s.ID == identity.SessionID,
		})
	}
	return out, nil
}

// RevokeSession invalidates one of the caller's other sessions. The
// current session must go through [Engine.Logout] instead; session IDs
// owned by someone else are reported exactly like unknown ones.
func (e *Engine) RevokeSession(ctx context.Context, identity Identity, targetID string) error {
	if targetID == "" {
		return ErrSessionNotFound
	}
	if targetID == identity.SessionID {
		return ErrSelfRevocation
	}

	revoked, err := e.sessions.Revoke(ctx, identity.PrincipalID, targetID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !revoked {
		return ErrSessionNotFound
	}
	e.emitAudit(ctx, auditSessionRevoked, true, identity.PrincipalID, targetID, nil, nil)
	return nil
}

// Logout invalidates the caller's current session. Logging out an
// already-dead session is a no-op, not an error.
func (e *Engine) Logout(ctx context.Context, identity Identity) error {
	_, err := e.sessions.Revoke(ctx, identity.PrincipalID, identity.SessionID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.emitAudit(ctx, auditLogout, true, identity.PrincipalID, identity.SessionID, nil, nil)
	return nil
}

// LogoutAll invalidates every session of the caller in one atomic sweep,
// the current one included, and returns how many were revoked.
func (e *Engine) LogoutAll(ctx context.Context, identity Identity) (int, error) {
	n, err := e.sessions.RevokeAll(ctx, identity.PrincipalID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.emitAudit(ctx, auditLogoutAll, true, identity.PrincipalID, identity.SessionID, nil,
		map[string]string{"revoked": strconv.Itoa(n)})
	return n, nil
}
