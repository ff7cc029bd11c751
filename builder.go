package authengine

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/staynest/authengine/internal/audit"
	"github.com/staynest/authengine/internal/stores"
	"github.com/staynest/authengine/jwtkit"
	"github.com/staynest/authengine/password"
	"github.com/staynest/authengine/session"
)

// Builder assembles an [Engine]. Zero value is not usable; start from
// [New], chain the With methods, finish with [Builder.Build].
type Builder struct {
	config    Config
	hasConfig bool
	creds     CredentialStore
	sessions  session.Store
	tokens    VerificationTokenStore
	sink      audit.Sink
	logger    *slog.Logger
	clock     func() time.Time
}

// New starts a builder with [DefaultConfig].
func New() *Builder {
	return &Builder{}
}

// WithConfig replaces the default configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	b.hasConfig = true
	return b
}

// WithCredentialStore sets the principal backend. Required.
func (b *Builder) WithCredentialStore(s CredentialStore) *Builder {
	b.creds = s
	return b
}

// WithSessionStore sets the session backend directly. Use [Builder.WithRedis]
// for the standard Redis wiring.
func (b *Builder) WithSessionStore(s session.Store) *Builder {
	b.sessions = s
	return b
}

// WithTokenStore sets the verification-token backend directly.
func (b *Builder) WithTokenStore(s VerificationTokenStore) *Builder {
	b.tokens = s
	return b
}

// WithRedis wires both the session store and the verification-token store
// onto one Redis client under the given key prefix.
func (b *Builder) WithRedis(client *redis.Client, prefix string) *Builder {
	b.sessions = session.NewRedisStore(client, prefix, 0)
	b.tokens = stores.NewVerificationStore(client, prefix)
	return b
}

// WithAuditSink sets the audit destination. Defaults to [NoOpSink].
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.sink = sink
	return b
}

// WithLogger sets the operational logger. Defaults to a discard logger;
// security events go to the audit sink either way.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides the time source. Test hook.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration and wiring and returns a ready engine.
func (b *Builder) Build() (*Engine, error) {
	cfg := b.config
	if !b.hasConfig {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.creds == nil {
		return nil, errors.New("credential store is required")
	}
	if b.sessions == nil {
		return nil, errors.New("session store is required")
	}
	if b.tokens == nil {
		return nil, errors.New("verification token store is required")
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	jwtManager, err := jwtkit.NewManager(jwtkit.Config{
		Key:       cfg.Session.SigningKey,
		Issuer:    cfg.Session.Issuer,
		AccessTTL: cfg.Session.AccessTTL,
	})
	if err != nil {
		return nil, err
	}

	// The dummy hash is derived from a throwaway random password at
	// build time, never from anything attacker-observable.
	filler, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(filler)
	if err != nil {
		return nil, err
	}

	sink := b.sink
	if sink == nil {
		sink = audit.NoOpSink{}
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	return &Engine{
		config:     cfg,
		policy:     lockoutPolicy{threshold: cfg.Lockout.Threshold, window: cfg.Lockout.Window},
		creds:      b.creds,
		sessions:   b.sessions,
		tokens:     b.tokens,
		hasher:     hasher,
		jwt:        jwtManager,
		totp:       newTOTPManager(cfg.TOTP),
		dispatcher: audit.NewDispatcher(cfg.Audit.QueueSize, sink),
		logger:     logger,
		dummyHash:  dummy,
		now:        clock,
	}, nil
}
