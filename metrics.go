package authengine

import "sync/atomic"

// engineMetrics counts security-relevant outcomes. Counters are fed from
// the audit path so every emitted event is counted exactly once.
type engineMetrics struct {
	loginSuccess     atomic.Uint64
	loginFailure     atomic.Uint64
	lockoutTriggered atomic.Uint64
	twoFactorFailure atomic.Uint64
	refreshReuse     atomic.Uint64
	sessionsRevoked  atomic.Uint64
	resetsRequested  atomic.Uint64
	resetsConsumed   atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the engine counters.
type MetricsSnapshot struct {
	LoginSuccess     uint64 `json:"login_success"`
	LoginFailure     uint64 `json:"login_failure"`
	LockoutTriggered uint64 `json:"lockout_triggered"`
	TwoFactorFailure uint64 `json:"two_factor_failure"`
	RefreshReuse     uint64 `json:"refresh_reuse"`
	SessionsRevoked  uint64 `json:"sessions_revoked"`
	ResetsRequested  uint64 `json:"resets_requested"`
	ResetsConsumed   uint64 `json:"resets_consumed"`
	AuditDropped     uint64 `json:"audit_dropped"`
}

func (m *engineMetrics) observe(action string, success bool) {
	switch action {
	case auditLoginSuccess:
		m.loginSuccess.Add(1)
	case auditLoginFailure:
		m.loginFailure.Add(1)
	case auditLockoutTriggered:
		m.lockoutTriggered.Add(1)
	case auditTwoFactorFailure:
		m.twoFactorFailure.Add(1)
	case auditRefreshReuse:
		m.refreshReuse.Add(1)
	case auditSessionRevoked, auditLogout, auditLogoutAll:
		m.sessionsRevoked.Add(1)
	case auditResetRequested:
		if success {
			m.resetsRequested.Add(1)
		}
	case auditResetConsumed:
		if success {
			m.resetsConsumed.Add(1)
		}
	}
}

// Metrics returns a snapshot of the engine counters.
func (e *Engine) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		LoginSuccess:     e.metrics.loginSuccess.Load(),
		LoginFailure:     e.metrics.loginFailure.Load(),
		LockoutTriggered: e.metrics.lockoutTriggered.Load(),
		TwoFactorFailure: e.metrics.twoFactorFailure.Load(),
		RefreshReuse:     e.metrics.refreshReuse.Load(),
		SessionsRevoked:  e.metrics.sessionsRevoked.Load(),
		ResetsRequested:  e.metrics.resetsRequested.Load(),
		ResetsConsumed:   e.metrics.resetsConsumed.Load(),
		AuditDropped:     e.AuditDropped(),
	}
}
