package authengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/staynest/authengine/session"
)

// Refresh exchanges a valid refresh token for a fresh access token and a
// rotated refresh token. The session identity is preserved; only the
// refresh secret changes. Presenting a secret that was already rotated
// destroys the session, on the assumption the old secret was stolen.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	sid, secret, err := parseRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrRefreshInvalid
	}

	sess, err := e.sessions.Get(ctx, sid)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := e.now()
	if !sess.Active || sess.ExpiresAt <= now.Unix() {
		return nil, ErrRefreshInvalid
	}

	newSecret, err := newRefreshSecret()
	if err != nil {
		return nil, err
	}

	err = e.sessions.Rotate(ctx, sid, hashRefreshSecret(secret), hashRefreshSecret(newSecret), now)
	switch {
	case errors.Is(err, session.ErrRefreshMismatch):
		e.emitAudit(ctx, auditRefreshReuse, false, sess.PrincipalID, sid, ErrRefreshReuse, nil)
		return nil, ErrRefreshReuse
	case errors.Is(err, session.ErrNotFound):
		return nil, ErrRefreshInvalid
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	access, err := e.jwt.CreateAccess(sess.PrincipalID, sid, sess.Role, now)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditRefreshRotated, true, sess.PrincipalID, sid, nil, nil)
	return &LoginResult{
		PrincipalID:  sess.PrincipalID,
		Role:         sess.Role,
		SessionID:    sid,
		AccessToken:  access,
		RefreshToken: encodeRefreshToken(sid, newSecret),
	}, nil
}

// encodeRefreshToken joins the session ID and the hex secret. The token
// is opaque to clients; the dot split exists so the server can locate the
// session without a lookup table.
func encodeRefreshToken(sessionID string, secret [32]byte) string {
	return sessionID + "." + hex.EncodeToString(secret[:])
}

func parseRefreshToken(token string) (sessionID string, secret [32]byte, err error) {
	sid, secretHex, found := strings.Cut(token, ".")
	if !found || len(sid) != 2*sessionIDBytes {
		return "", [32]byte{}, errors.New("malformed refresh token")
	}
	raw, err := hex.DecodeString(secretHex)
	if err != nil || len(raw) != len(secret) {
		return "", [32]byte{}, errors.New("malformed refresh token")
	}
	copy(secret[:], raw)
	return sid, secret, nil
}

// hashRefreshSecret is the digest stored in place of the refresh secret.
func hashRefreshSecret(secret [32]byte) [32]byte {
	return sha256.Sum256(secret[:])
}
