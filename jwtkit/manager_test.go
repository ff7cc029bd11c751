package jwtkit

import (
	"errors"
	"testing"
	"time"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func testManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(Config{Key: testKey, Issuer: "test-issuer", AccessTTL: ttl})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestCreateParseRoundTrip(t *testing.T) {
	m := testManager(t, 30*time.Minute)

	token, err := m.CreateAccess("u1", "s1", "guest", time.Now())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if claims.Subject != "u1" || claims.SID != "s1" || claims.Role != "guest" {
		t.Fatalf("wrong claims: %+v", claims)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	m := testManager(t, 30*time.Minute)
	token, _ := m.CreateAccess("u1", "s1", "guest", time.Now()) //nolint:errcheck

	other, err := NewManager(Config{Key: []byte("ffffffffffffffffffffffffffffffff"), Issuer: "test-issuer", AccessTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := other.ParseAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	m := testManager(t, time.Minute)
	token, _ := m.CreateAccess("u1", "s1", "guest", time.Now().Add(-2*time.Minute)) //nolint:errcheck

	if _, err := m.ParseAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for expired token, got %v", err)
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	other, err := NewManager(Config{Key: testKey, Issuer: "someone-else", AccessTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	token, _ := other.CreateAccess("u1", "s1", "guest", time.Now()) //nolint:errcheck

	m := testManager(t, time.Minute)
	if _, err := m.ParseAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong issuer, got %v", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	m := testManager(t, time.Minute)
	for _, bad := range []string{"", "x", "a.b.c"} {
		if _, err := m.ParseAccess(bad); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("token %q: expected ErrTokenInvalid, got %v", bad, err)
		}
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Config{Key: []byte("short"), AccessTTL: time.Minute}); err == nil {
		t.Fatal("accepted short key")
	}
	if _, err := NewManager(Config{Key: testKey, AccessTTL: 0}); err == nil {
		t.Fatal("accepted zero TTL")
	}
	if _, err := NewManager(Config{Key: testKey, AccessTTL: time.Minute, Leeway: time.Hour}); err == nil {
		t.Fatal("accepted oversized leeway")
	}
}
