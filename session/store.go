package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3

	revokeStatusNotFound int64 = 0
	revokeStatusInactive int64 = 1
	revokeStatusRevoked  int64 = 2
)

const revokeScript = `
local owner = redis.call("HGET", KEYS[1], "principal")
if not owner or owner ~= ARGV[1] then
  return 0
end
if redis.call("HGET", KEYS[1], "active") ~= "1" then
  return 1
end
redis.call("HSET", KEYS[1], "active", "0")
return 2
`

var revokeLua = redis.NewScript(revokeScript)

const revokeAllScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local flipped = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  if redis.call("EXISTS", key) == 1 then
    if redis.call("HGET", key, "active") == "1" then
      redis.call("HSET", key, "active", "0")
      flipped = flipped + 1
    end
  else
    redis.call("SREM", KEYS[1], id)
  end
end
return flipped
`

var revokeAllLua = redis.NewScript(revokeAllScript)

const rotateScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "active") ~= "1" then
  return 0
end
local exp = tonumber(redis.call("HGET", KEYS[1], "expires_at") or "0")
if exp <= tonumber(ARGV[3]) then
  return 1
end
if redis.call("HGET", KEYS[1], "refresh_hash") ~= ARGV[1] then
  redis.call("HSET", KEYS[1], "active", "0")
  return 2
end
redis.call("HSET", KEYS[1], "refresh_hash", ARGV[2])
return 3
`

var rotateLua = redis.NewScript(rotateScript)

// RedisStore is the Redis-backed [Store]. Keys:
//
//	<prefix>:s:<sessionID>  hash, one per session
//	<prefix>:p:<principal>  set of the principal's session IDs
type RedisStore struct {
	redis    redis.UniversalClient
	prefix   string
	indexTTL time.Duration
}

// NewRedisStore creates a store under the given key prefix. indexTTL
// should be at least the longest session lifetime; index entries for
// expired sessions are pruned lazily during ListActive.
func NewRedisStore(client redis.UniversalClient, prefix string, indexTTL time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "auth"
	}
	if indexTTL <= 0 {
		indexTTL = 31 * 24 * time.Hour
	}
	return &RedisStore{redis: client, prefix: prefix, indexTTL: indexTTL}
}

func (s *RedisStore) sessionKey(id string) string { return s.prefix + ":s:" + id }

func (s *RedisStore) indexKey(principalID string) string { return s.prefix + ":p:" + principalID }

// Save persists the session hash and adds it to the owner's index.
func (s *RedisStore) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: non-positive ttl", ErrUnavailable)
	}
	key := s.sessionKey(sess.ID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"principal":    sess.PrincipalID,
			"role":         sess.Role,
			"device":       sess.Device,
			"ip":           sess.IP,
			"refresh_hash": hex.EncodeToString(sess.RefreshHash[:]),
			"remember":     boolField(sess.Remember),
			"active":       boolField(sess.Active),
			"created_at":   sess.CreatedAt,
			"expires_at":   sess.ExpiresAt,
		})
		pipe.Expire(ctx, key, ttl)
		pipe.SAdd(ctx, s.indexKey(sess.PrincipalID), sess.ID)
		pipe.Expire(ctx, s.indexKey(sess.PrincipalID), s.indexTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get loads one session. Rows Redis already expired surface as ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeSession(id, fields)
}

// ListActive returns active, unexpired sessions newest first. Index
// entries whose hash has expired are pruned as a side effect.
func (s *RedisStore) ListActive(ctx context.Context, principalID string, now time.Time) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.indexKey(principalID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.sessionKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var out []*Session
	var stale []any
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		sess, err := decodeSession(ids[i], fields)
		if err != nil {
			continue
		}
		if sess.PrincipalID != principalID {
			continue
		}
		if !sess.Active || sess.ExpiresAt <= now.Unix() {
			continue
		}
		out = append(out, sess)
	}
	if len(stale) > 0 {
		_ = s.redis.SRem(ctx, s.indexKey(principalID), stale...).Err()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// Revoke flips one owned session to inactive.
func (s *RedisStore) Revoke(ctx context.Context, principalID, id string) (bool, error) {
	status, err := revokeLua.Run(ctx, s.redis,
		[]string{s.sessionKey(id)}, principalID).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch status {
	case revokeStatusNotFound:
		return false, nil
	case revokeStatusInactive, revokeStatusRevoked:
		return true, nil
	default:
		return false, fmt.Errorf("%w: unexpected revoke status %d", ErrUnavailable, status)
	}
}

// RevokeAll sweeps the principal's index in one script execution so no
// session can slip through mid-iteration.
func (s *RedisStore) RevokeAll(ctx context.Context, principalID string) (int, error) {
	flipped, err := revokeAllLua.Run(ctx, s.redis,
		[]string{s.indexKey(principalID)}, s.prefix+":s:").Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(flipped), nil
}

// Rotate compares-and-swaps the refresh digest.
func (s *RedisStore) Rotate(ctx context.Context, id string, oldHash, newHash [32]byte, now time.Time) error {
	status, err := rotateLua.Run(ctx, s.redis,
		[]string{s.sessionKey(id)},
		hex.EncodeToString(oldHash[:]),
		hex.EncodeToString(newHash[:]),
		now.Unix(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch status {
	case rotateStatusNotFound, rotateStatusExpired:
		return ErrNotFound
	case rotateStatusMismatch:
		return ErrRefreshMismatch
	case rotateStatusRotated:
		return nil
	default:
		return fmt.Errorf("%w: unexpected rotate status %d", ErrUnavailable, status)
	}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func decodeSession(id string, fields map[string]string) (*Session, error) {
	sess := &Session{
		ID:          id,
		PrincipalID: fields["principal"],
		Role:        fields["role"],
		Device:      fields["device"],
		IP:          fields["ip"],
		Remember:    fields["remember"] == "1",
		Active:      fields["active"] == "1",
	}
	if sess.PrincipalID == "" {
		return nil, errors.New("session record missing principal")
	}

	hash, err := hex.DecodeString(fields["refresh_hash"])
	if err != nil || len(hash) != len(sess.RefreshHash) {
		return nil, errors.New("session record refresh hash corrupt")
	}
	copy(sess.RefreshHash[:], hash)

	sess.CreatedAt, err = strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, errors.New("session record created_at corrupt")
	}
	sess.ExpiresAt, err = strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, errors.New("session record expires_at corrupt")
	}
	return sess, nil
}
