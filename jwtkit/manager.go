// Package jwtkit signs and verifies the short-lived access credential.
// Access tokens are HS256 JWTs carrying the principal, session, and role
// claims; everything longer-lived is an opaque server-side secret.
package jwtkit

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is returned for any token that fails verification.
var ErrTokenInvalid = errors.New("invalid token")

// Config holds signing parameters. Key must be at least 32 bytes.
type Config struct {
	Key       []byte
	Issuer    string
	AccessTTL time.Duration
	Leeway    time.Duration
}

// AccessClaims is the access-token payload.
type AccessClaims struct {
	SID  string `json:"sid"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Manager is immutable after construction and safe for concurrent use.
type Manager struct {
	config Config
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Key) < 32 {
		return nil, errors.New("hs256 key must be >= 32 bytes")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// CreateAccess mints a signed access token bound to one session identity.
func (m *Manager) CreateAccess(principalID, sessionID, role string, now time.Time) (string, error) {
	claims := AccessClaims{
		SID:  sessionID,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Key)
}

// ParseAccess verifies signature, algorithm, issuer, and expiry.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &AccessClaims{},
		func(*jwt.Token) (interface{}, error) { return m.config.Key, nil })
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" || claims.SID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
