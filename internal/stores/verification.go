// Package stores holds Redis-backed persistence for short-lived
// verification tokens (password reset, email confirmation).
package stores

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrTokenNotFound covers missing, expired, and already-consumed
	// records. Callers cannot tell these apart.
	ErrTokenNotFound = errors.New("verification token not found")
	// ErrTokenMismatch is returned when the provided secret digest does
	// not match the stored one. One attempt is burned.
	ErrTokenMismatch = errors.New("verification token mismatch")
	// ErrTokenAttemptsExceeded is returned when the failed-match budget is
	// exhausted. The record is deleted.
	ErrTokenAttemptsExceeded = errors.New("verification token attempts exceeded")
	// ErrTokenUnavailable wraps backend failures.
	ErrTokenUnavailable = errors.New("verification token store unavailable")
)

// VerificationRecord is the stored half of a single-use token.
type VerificationRecord struct {
	PrincipalID string   `json:"principal_id"`
	Purpose     string   `json:"purpose"`
	SecretHash  [32]byte `json:"secret_hash"`
	ExpiresAt   int64    `json:"expires_at"`
	Attempts    uint16   `json:"attempts"`
}

// VerificationStore persists records in Redis under a key prefix. Consume
// runs as an optimistic WATCH transaction: when two consumers race, at
// most one wins and the record is gone afterwards either way.
type VerificationStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewVerificationStore(client redis.UniversalClient, prefix string) *VerificationStore {
	if prefix == "" {
		prefix = "avt"
	}
	return &VerificationStore{redis: client, prefix: prefix}
}

func (s *VerificationStore) key(k string) string { return s.prefix + ":" + k }

// Save stores the record with the given TTL, replacing any previous
// record under the same key.
func (s *VerificationStore) Save(ctx context.Context, key string, record *VerificationRecord, ttl time.Duration) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(key), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	return nil
}

// Consume validates providedHash and deletes the record on match. A
// mismatch increments the attempt counter in place; reaching maxAttempts
// deletes the record. All transitions are transactional.
func (s *VerificationStore) Consume(ctx context.Context, key string, providedHash [32]byte, maxAttempts int) (*VerificationRecord, error) {
	const maxRetries = 4
	k := s.key(key)

	for i := 0; i < maxRetries; i++ {
		var matched *VerificationRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, k).Bytes()
			if err != nil {
				return err
			}

			var record VerificationRecord
			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				return deleteInTx(ctx, tx, k, ErrTokenNotFound)
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					return deleteInTx(ctx, tx, k, ErrTokenAttemptsExceeded)
				}
				ttl := time.Until(time.Unix(record.ExpiresAt, 0))
				if ttl <= 0 {
					return deleteInTx(ctx, tx, k, ErrTokenNotFound)
				}
				updated, err := json.Marshal(&record)
				if err != nil {
					return err
				}
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, k, updated, ttl)
					return nil
				}); err != nil {
					return err
				}
				return ErrTokenMismatch
			}

			if err := deleteInTx(ctx, tx, k, nil); err != nil {
				return err
			}
			matched = &record
			return nil
		}, k)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrTokenNotFound
			case errors.Is(err, ErrTokenNotFound),
				errors.Is(err, ErrTokenMismatch),
				errors.Is(err, ErrTokenAttemptsExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
			}
		}
		return matched, nil
	}

	// Retries exhausted: someone else consumed it.
	return nil, ErrTokenNotFound
}

// deleteInTx deletes the key inside the transaction and returns result,
// propagating pipeline errors first.
func deleteInTx(ctx context.Context, tx *redis.Tx, key string, result error) error {
	if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	}); err != nil {
		return err
	}
	return result
}
