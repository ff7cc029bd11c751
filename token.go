package authengine

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
)

const (
	sessionIDBytes   = 32
	resetTokenBytes  = 32
	numericCodeWidth = 6
	backupCodeBytes  = 5

	totpCodeLength   = 6
	backupCodeLength = 2 * backupCodeBytes
)

// newOpaqueToken returns hex(32 random bytes): 256 bits of entropy, used
// for session identifiers and emailed reset tokens.
func newOpaqueToken() (string, error) {
	raw := make([]byte, sessionIDBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// newRefreshSecret returns the raw secret half of a refresh token. Only
// its SHA-256 digest is persisted.
func newRefreshSecret() ([32]byte, error) {
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return [32]byte{}, err
	}
	return secret, nil
}

// newNumericCode returns a uniformly random fixed-width numeric code for
// channels that cannot carry long tokens. Its low entropy is acceptable
// only because records are single-use, short-lived, and attempt-limited.
func newNumericCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < numericCodeWidth; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	code := n.String()
	for len(code) < numericCodeWidth {
		code = "0" + code
	}
	return code, nil
}

// newBackupCode returns one single-use 2FA fallback code: 10 lowercase
// hex characters, enough to resist online guessing on a consumable code.
func newBackupCode() (string, error) {
	raw := make([]byte, backupCodeBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// hashSecret is the one-way transform applied to refresh secrets, reset
// tokens, and backup codes before storage or comparison.
func hashSecret(value string) [32]byte {
	return sha256.Sum256([]byte(value))
}
