package authengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/staynest/authengine/internal/audit"
	"github.com/staynest/authengine/jwtkit"
	"github.com/staynest/authengine/password"
	"github.com/staynest/authengine/session"
)

// Engine is the authentication orchestrator. It owns no storage of its
// own; every durable fact lives behind [CredentialStore], [session.Store],
// or [VerificationTokenStore], so any number of engine instances can run
// against the same backends.
//
// Construct with [New] (the builder). All methods are safe for concurrent
// use.
type Engine struct {
	config   Config
	policy   lockoutPolicy
	creds    CredentialStore
	sessions session.Store
	tokens   VerificationTokenStore

	hasher     *password.Hasher
	jwt        *jwtkit.Manager
	totp       *totpManager
	dispatcher *audit.Dispatcher
	logger     *slog.Logger
	metrics    engineMetrics

	// dummyHash absorbs the argon2 cost for unknown identifiers so that
	// "no such account" and "wrong password" take the same time.
	dummyHash string

	now func() time.Time
}

// Close flushes and stops the audit dispatcher. The engine must not be
// used after Close.
func (e *Engine) Close() error {
	if e.dispatcher != nil {
		e.dispatcher.Close()
	}
	return nil
}

// AuditDropped reports how many audit events were discarded because the
// dispatch queue was full.
func (e *Engine) AuditDropped() uint64 {
	if e.dispatcher == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

// Validate checks an access token and confirms its session is still
// active. A revoked or expired session invalidates the token immediately,
// even inside the token's own lifetime.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := e.jwt.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrAccessInvalid
	}

	sess, err := e.sessions.Get(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrAccessInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	now := e.now()
	if !sess.Active || sess.ExpiresAt <= now.Unix() || sess.PrincipalID != claims.Subject {
		return nil, ErrAccessInvalid
	}

	return &Identity{
		PrincipalID: claims.Subject,
		SessionID:   claims.SID,
		Role:        claims.Role,
	}, nil
}

// loadPrincipal fetches a principal by ID, mapping storage failures to the
// generic unavailable sentinel.
func (e *Engine) loadPrincipal(ctx context.Context, id string) (*Principal, error) {
	p, err := e.creds.FindPrincipalByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return p, nil
}

// issueSession creates a session row, signs an access token, and encodes
// the paired refresh token. The refresh secret leaves this function only
// inside the returned token; the store sees its digest.
func (e *Engine) issueSession(ctx context.Context, p *Principal, remember bool) (*LoginResult, error) {
	id, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	secret, err := newRefreshSecret()
	if err != nil {
		return nil, err
	}

	ttl := e.config.Session.RefreshTTL
	if remember {
		ttl = e.config.Session.RememberTTL
	}

	meta := clientFromContext(ctx)
	now := e.now()
	sess := &session.Session{
		ID:          id,
		PrincipalID: p.ID,
		Role:        p.Role,
		Device:      meta.Device,
		IP:          meta.IP,
		RefreshHash: hashRefreshSecret(secret),
		Remember:    remember,
		Active:      true,
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(ttl).Unix(),
	}
	if err := e.sessions.Save(ctx, sess, ttl); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	access, err := e.jwt.CreateAccess(p.ID, id, p.Role, now)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		PrincipalID:  p.ID,
		Role:         p.Role,
		SessionID:    id,
		AccessToken:  access,
		RefreshToken: encodeRefreshToken(id, secret),
	}, nil
}
