package authengine

import "time"

// lockoutPolicy is a pure state machine over per-principal lockout state.
// It computes transitions; persistence is the credential store's problem.
type lockoutPolicy struct {
	threshold int
	window    time.Duration
}

// lockoutState mirrors the two lockout columns of a principal row.
type lockoutState struct {
	failed int
	until  *time.Time
}

// Check is evaluated before password verification. When the window is
// open it returns the remaining duration and the caller must make no
// state change.
func (p lockoutPolicy) Check(s lockoutState, now time.Time) (allowed bool, remaining time.Duration) {
	if s.until != nil && s.until.After(now) {
		return false, s.until.Sub(now)
	}
	return true, 0
}

// OnFailure advances the state for a failed credential check. Reaching
// the threshold opens the window; once open, the counter stays frozen
// until a successful login resets it.
func (p lockoutPolicy) OnFailure(s lockoutState, now time.Time) lockoutState {
	next := s
	if next.failed < p.threshold {
		next.failed++
	}
	if next.failed >= p.threshold {
		until := now.Add(p.window)
		next.until = &until
	}
	return next
}

// OnSuccess resets the counter and clears the window.
func (p lockoutPolicy) OnSuccess() lockoutState {
	return lockoutState{}
}
