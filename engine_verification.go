package authengine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/staynest/authengine/internal/stores"
)

// RequestEmailVerification mints a single-use token that confirms control
// of a pending principal's email address. The plaintext token is returned
// for the notification layer; only its digest is stored. Principals that
// are already active get no token.
func (e *Engine) RequestEmailVerification(ctx context.Context, principalID string) (string, error) {
	p, err := e.loadPrincipal(ctx, principalID)
	if err != nil {
		return "", err
	}
	if p.Status != AccountPendingVerification {
		return "", ErrTokenInvalid
	}

	token, err := newOpaqueToken()
	if err != nil {
		return "", err
	}

	record := &VerificationRecord{
		PrincipalID: p.ID,
		Purpose:     string(PurposeEmailVerification),
		SecretHash:  hashSecret(token),
		ExpiresAt:   e.now().Add(e.config.Reset.TokenTTL).Unix(),
	}
	if err := e.tokens.Save(ctx, emailVerifyKey(token), record, e.config.Reset.TokenTTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditVerifyRequested, true, p.ID, "", nil, nil)
	return token, nil
}

// ConfirmEmailVerification consumes a verification token and promotes the
// principal to active. A consumed or expired token is never accepted
// again.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, token string) error {
	if len(token) != 2*resetTokenBytes {
		return ErrTokenInvalid
	}

	record, err := e.tokens.Consume(ctx, emailVerifyKey(token), hashSecret(token), e.config.Reset.MaxAttempts)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrTokenNotFound),
			errors.Is(err, stores.ErrTokenMismatch),
			errors.Is(err, stores.ErrTokenAttemptsExceeded):
			return ErrTokenInvalid
		default:
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	if record.Purpose != string(PurposeEmailVerification) {
		return ErrTokenInvalid
	}

	if err := e.creds.UpdateStatus(ctx, record.PrincipalID, AccountActive); err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditVerified, true, record.PrincipalID, "", nil, nil)
	return nil
}

func emailVerifyKey(token string) string {
	digest := hashSecret(token)
	return "verify:e:" + hex.EncodeToString(digest[:])
}
