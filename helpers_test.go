package authengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// memCredStore is an in-memory CredentialStore for engine tests. Its
// conditional lockout update mirrors the sqlitestore semantics.
type memCredStore struct {
	mu          sync.Mutex
	principals  map[string]*Principal
	backupCodes map[string]map[BackupCodeHash]bool
}

func newMemCredStore() *memCredStore {
	return &memCredStore{
		principals:  make(map[string]*Principal),
		backupCodes: make(map[string]map[BackupCodeHash]bool),
	}
}

func (m *memCredStore) add(p *Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.principals[p.ID] = &cp
}

func (m *memCredStore) get(id string) *Principal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.principals[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

func (m *memCredStore) FindPrincipal(_ context.Context, identifier string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.principals {
		if p.Email == identifier || (p.Phone != "" && p.Phone == identifier) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPrincipalNotFound
}

func (m *memCredStore) FindPrincipalByID(_ context.Context, id string) (*Principal, error) {
	if p := m.get(id); p != nil {
		return p, nil
	}
	return nil, ErrPrincipalNotFound
}

func (m *memCredStore) UpdateLockoutState(_ context.Context, id string, expectedFailed, newFailed int, lockedUntil *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	if p.FailedLogins != expectedFailed {
		return ErrLockoutConflict
	}
	p.FailedLogins = newFailed
	p.LockedUntil = lockedUntil
	return nil
}

func (m *memCredStore) RecordLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.FailedLogins = 0
	p.LockedUntil = nil
	p.LastLoginAt = &at
	return nil
}

func (m *memCredStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.PasswordHash = hash
	return nil
}

func (m *memCredStore) UpdateStatus(_ context.Context, id string, status AccountStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.Status = status
	return nil
}

func (m *memCredStore) EnableTwoFactor(_ context.Context, id, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.TwoFactorSecret = secret
	return nil
}

func (m *memCredStore) DisableTwoFactor(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.TwoFactorSecret = ""
	p.TOTPLastUsed = 0
	delete(m.backupCodes, id)
	return nil
}

func (m *memCredStore) UpdateTOTPLastUsed(_ context.Context, id string, step int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.TOTPLastUsed = step
	return nil
}

func (m *memCredStore) ReplaceBackupCodes(_ context.Context, id string, hashes []BackupCodeHash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[BackupCodeHash]bool, len(hashes))
	for _, h := range hashes {
		set[h] = true
	}
	m.backupCodes[id] = set
	return nil
}

func (m *memCredStore) ConsumeBackupCode(_ context.Context, id string, hash BackupCodeHash) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.backupCodes[id]
	if !set[hash] {
		return false, nil
	}
	delete(set, hash)
	return true, nil
}

// testClock is an adjustable time source shared with the engine.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	// Cheapest parameters the hasher accepts; production cost is not the
	// point of engine tests.
	cfg.Password = PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *memCredStore, *testClock) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	creds := newMemCredStore()
	clock := newTestClock()

	engine, err := New().
		WithConfig(cfg).
		WithCredentialStore(creds).
		WithRedis(client, "t").
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	return engine, creds, clock
}

// seedPrincipal registers an active principal with the given password.
func seedPrincipal(t *testing.T, e *Engine, creds *memCredStore, id, email, phone, pass string) {
	t.Helper()
	hash, err := e.hasher.Hash(pass)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	creds.add(&Principal{
		ID:           id,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		Role:         "guest",
		Status:       AccountActive,
		CreatedAt:    time.Now(),
	})
}
