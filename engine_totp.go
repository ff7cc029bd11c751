package authengine

import (
	"context"
	"fmt"
)

// BeginTwoFactorSetup mints a fresh TOTP secret and provisioning URI for
// the principal. Nothing is persisted: the secret round-trips through the
// client and is only stored once [Engine.ConfirmTwoFactorSetup] proves
// the authenticator actually has it.
func (e *Engine) BeginTwoFactorSetup(ctx context.Context, principalID string) (*TwoFactorSetup, error) {
	p, err := e.loadPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}

	account := p.Email
	if account == "" {
		account = p.Phone
	}
	secret, uri, err := e.totp.GenerateSecret(account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	return &TwoFactorSetup{Secret: secret, ProvisioningURI: uri}, nil
}

// ConfirmTwoFactorSetup enables 2FA after the caller proves possession of
// the secret with one valid code. Backup codes are minted on enable and
// returned in plaintext exactly once; only their digests are stored.
func (e *Engine) ConfirmTwoFactorSetup(ctx context.Context, principalID, secret, code string) ([]string, error) {
	p, err := e.loadPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}

	valid, step, err := e.totp.VerifyCode(secret, code, e.now())
	if err != nil || !valid {
		e.emitAudit(ctx, auditTwoFactorFailure, false, p.ID, "", ErrTwoFactorInvalid,
			map[string]string{"stage": "setup"})
		return nil, ErrTwoFactorInvalid
	}

	if err := e.creds.EnableTwoFactor(ctx, p.ID, secret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	// The confirmation code's timestep is spent, so the same code cannot
	// complete a login afterwards.
	if err := e.creds.UpdateTOTPLastUsed(ctx, p.ID, step); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	codes, hashes, err := mintBackupCodes(e.config.TOTP.BackupCodes)
	if err != nil {
		return nil, err
	}
	if err := e.creds.ReplaceBackupCodes(ctx, p.ID, hashes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditTwoFactorEnabled, true, p.ID, "", nil, nil)
	return codes, nil
}

// DisableTwoFactor clears the secret and all backup codes. The HTTP layer
// gates this behind an authenticated session.
func (e *Engine) DisableTwoFactor(ctx context.Context, principalID string) error {
	p, err := e.loadPrincipal(ctx, principalID)
	if err != nil {
		return err
	}
	if !p.TwoFactorEnabled() {
		return ErrTwoFactorNotEnabled
	}

	if err := e.creds.DisableTwoFactor(ctx, p.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.emitAudit(ctx, auditTwoFactorDisabled, true, p.ID, "", nil, nil)
	return nil
}

// mintBackupCodes returns count plaintext codes alongside their digests.
func mintBackupCodes(count int) ([]string, []BackupCodeHash, error) {
	codes := make([]string, 0, count)
	hashes := make([]BackupCodeHash, 0, count)
	for i := 0; i < count; i++ {
		code, err := newBackupCode()
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, hashSecret(code))
	}
	return codes, hashes, nil
}
