package authengine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/staynest/authengine/internal/stores"
)

// ResetDelivery is handed to the notification layer after a reset request
// for a known principal. Secret is the plaintext token or code; the
// engine keeps only its digest.
type ResetDelivery struct {
	PrincipalID string
	Channel     string
	Destination string
	Secret      string
}

const (
	resetChannelEmail = "email"
	resetChannelSMS   = "sms"
)

// RequestPasswordReset mints a single-use reset credential for the
// identifier's principal: a long token for email identifiers, a 6-digit
// code for phone numbers. An unknown identifier returns (nil, nil) so the
// transport can answer identically either way.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) (*ResetDelivery, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, nil
	}

	p, err := e.creds.FindPrincipal(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.emitAudit(ctx, auditResetRequested, false, "", "", ErrPrincipalNotFound,
				map[string]string{"reason": "unknown_identifier"})
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	delivery := &ResetDelivery{PrincipalID: p.ID}
	var key string
	if strings.Contains(identifier, "@") {
		token, err := newOpaqueToken()
		if err != nil {
			return nil, err
		}
		delivery.Channel = resetChannelEmail
		delivery.Destination = p.Email
		delivery.Secret = token
		key = emailResetKey(token)
	} else {
		code, err := newNumericCode()
		if err != nil {
			return nil, err
		}
		delivery.Channel = resetChannelSMS
		delivery.Destination = p.Phone
		delivery.Secret = code
		key = phoneResetKey(p.ID)
	}

	record := &VerificationRecord{
		PrincipalID: p.ID,
		Purpose:     string(PurposePasswordReset),
		SecretHash:  hashSecret(delivery.Secret),
		ExpiresAt:   e.now().Add(e.config.Reset.TokenTTL).Unix(),
	}
	if err := e.tokens.Save(ctx, key, record, e.config.Reset.TokenTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditResetRequested, true, p.ID, "",
		nil, map[string]string{"channel": delivery.Channel})
	return delivery, nil
}

// ConfirmPasswordReset consumes a reset credential and sets the new
// password. The credential is burned atomically: concurrent confirmations
// succeed at most once. A successful reset revokes every session of the
// principal and clears any lockout.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, identifier, secret, newPassword string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ErrTokenInvalid
	}
	// Policy is checked before the single-use credential is spent so a
	// weak password does not burn the token.
	if len(newPassword) < 10 {
		return ErrPasswordPolicy
	}

	key, err := e.resolveResetKey(ctx, identifier, secret)
	if err != nil {
		return err
	}

	record, err := e.tokens.Consume(ctx, key, hashSecret(secret), e.config.Reset.MaxAttempts)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrTokenNotFound),
			errors.Is(err, stores.ErrTokenMismatch),
			errors.Is(err, stores.ErrTokenAttemptsExceeded):
			e.emitAudit(ctx, auditResetConsumed, false, "", "", ErrTokenInvalid, nil)
			return ErrTokenInvalid
		default:
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	if record.Purpose != string(PurposePasswordReset) {
		return ErrTokenInvalid
	}

	p, err := e.loadPrincipal(ctx, record.PrincipalID)
	if err != nil {
		return err
	}

	if same, err := e.hasher.Verify(newPassword, p.PasswordHash); err == nil && same {
		e.emitAudit(ctx, auditResetConsumed, false, p.ID, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return ErrPasswordPolicy
	}
	if err := e.creds.UpdatePasswordHash(ctx, p.ID, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Proving control of the recovery channel also clears any lockout.
	// A conflict here means a concurrent attempt moved the counter; the
	// reset itself already succeeded, so it is not retried.
	if err := e.creds.UpdateLockoutState(ctx, p.ID, p.FailedLogins, 0, nil); err != nil &&
		!errors.Is(err, ErrLockoutConflict) {
		e.logger.WarnContext(ctx, "lockout clear after reset failed", "principal", p.ID, "error", err)
	}

	if _, err := e.sessions.RevokeAll(ctx, p.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditResetConsumed, true, p.ID, "", nil, nil)
	return nil
}

// resolveResetKey maps a submitted secret back to its storage key. Email
// tokens are self-locating via their digest; phone codes are keyed by the
// principal the identifier resolves to.
func (e *Engine) resolveResetKey(ctx context.Context, identifier, secret string) (string, error) {
	if len(secret) == 2*resetTokenBytes {
		return emailResetKey(secret), nil
	}

	p, err := e.creds.FindPrincipal(ctx, strings.TrimSpace(identifier))
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return "", ErrTokenInvalid
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return phoneResetKey(p.ID), nil
}

func emailResetKey(token string) string {
	digest := hashSecret(token)
	return "reset:e:" + hex.EncodeToString(digest[:])
}

func phoneResetKey(principalID string) string {
	return "reset:p:" + principalID
}
