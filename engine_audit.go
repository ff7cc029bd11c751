package authengine

import (
	"context"

	internalaudit "github.com/staynest/authengine/internal/audit"
)

// Audit action tags. One tag per security-relevant occurrence; every
// success and failure path emits exactly one event before returning.
const (
	auditLoginSuccess      = "login_success"
	auditLoginFailure      = "login_failure"
	auditLockoutTriggered  = "lockout_triggered"
	auditTwoFactorRequired = "2fa_challenge_issued"
	auditTwoFactorFailure  = "2fa_failure"
	auditTwoFactorEnabled  = "2fa_enabled"
	auditTwoFactorDisabled = "2fa_disabled"
	auditBackupCodeUsed    = "backup_code_used"
	auditSessionRevoked    = "session_revoked"
	auditLogout            = "logout"
	auditLogoutAll         = "logout_all"
	auditRefreshRotated    = "refresh_rotated"
	auditRefreshReuse      = "refresh_reuse_detected"
	auditResetRequested    = "password_reset_requested"
	auditResetConsumed     = "password_reset_consumed"
	auditVerifyRequested   = "email_verification_requested"
	auditVerified          = "email_verified"
)

// emitAudit builds and enqueues one event. The dispatcher never blocks;
// at worst the event is dropped and counted, which operational monitoring
// picks up via Dispatcher.Dropped.
func (e *Engine) emitAudit(ctx context.Context, action string, success bool, principalID, sessionID string, cause error, metadata map[string]string) {
	e.metrics.observe(action, success)
	if e.dispatcher == nil {
		return
	}
	meta := clientFromContext(ctx)
	event := internalaudit.Event{
		Timestamp:   e.now(),
		Action:      action,
		PrincipalID: principalID,
		SessionID:   sessionID,
		IP:          meta.IP,
		Device:      meta.Device,
		Success:     success,
		Metadata:    metadata,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	e.dispatcher.Emit(ctx, event)
}
