package authengine

import (
	"testing"
	"time"
)

func TestLockoutPolicy_Transitions(t *testing.T) {
	policy := lockoutPolicy{threshold: 5, window: 30 * time.Minute}
	now := time.Now()

	state := lockoutState{}
	for i := 1; i <= 4; i++ {
		state = policy.OnFailure(state, now)
		if state.failed != i || state.until != nil {
			t.Fatalf("failure %d: unexpected state %+v", i, state)
		}
		if allowed, _ := policy.Check(state, now); !allowed {
			t.Fatalf("failure %d: prematurely locked", i)
		}
	}

	// Fifth failure opens the window.
	state = policy.OnFailure(state, now)
	if state.until == nil || !state.until.Equal(now.Add(30*time.Minute)) {
		t.Fatalf("threshold failure did not open window: %+v", state)
	}
	allowed, remaining := policy.Check(state, now)
	if allowed || remaining != 30*time.Minute {
		t.Fatalf("expected 30m lockout, got allowed=%v remaining=%v", allowed, remaining)
	}

	// Counter freezes at the threshold.
	state = policy.OnFailure(state, now)
	if state.failed != 5 {
		t.Fatalf("counter moved past threshold: %d", state.failed)
	}

	// Window expiry admits attempts again without resetting the counter.
	later := now.Add(31 * time.Minute)
	if allowed, _ := policy.Check(state, later); !allowed {
		t.Fatal("expired window still blocking")
	}

	// A failure after expiry re-locks immediately: only success resets.
	state = policy.OnFailure(state, later)
	if allowed, _ := policy.Check(state, later); allowed {
		t.Fatal("post-expiry failure did not re-lock")
	}

	state = policy.OnSuccess()
	if state.failed != 0 || state.until != nil {
		t.Fatalf("success did not reset state: %+v", state)
	}
}

func TestLockoutError_RetryAfterMinutesRoundsUp(t *testing.T) {
	cases := []struct {
		remaining time.Duration
		want      int
	}{
		{30 * time.Minute, 30},
		{29*time.Minute + time.Second, 30},
		{61 * time.Second, 2},
		{time.Second, 1},
		{0, 1},
	}
	for _, tc := range cases {
		err := &LockoutError{RetryAfter: tc.remaining}
		if got := err.RetryAfterMinutes(); got != tc.want {
			t.Errorf("RetryAfterMinutes(%v) = %d, want %d", tc.remaining, got, tc.want)
		}
	}
}
