package challenge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeKeyPrefix = "challenge:"

// usedMarker prefixes a consumed record's payload. JSON payloads start
// with '{', so the prefix is unambiguous.
const usedMarker = "used:"

// consumeScript atomically reads a challenge and marks it used, keeping
// the key's TTL. A plain GETDEL cannot distinguish "already used" from
// "never issued", which the protocol requires.
var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v == false then
  return false
end
if string.sub(v, 1, 5) == 'used:' then
  return v
end
redis.call('SET', KEYS[1], 'used:' .. v, 'KEEPTTL')
return v
`)

// RedisStore is a Store backed by Redis. Unlike the read cache, it fails
// closed: a Redis outage makes validation fail, never succeed.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed challenge store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Put stores a challenge with the retention TTL, replacing any outstanding
// one for the same card.
func (s *RedisStore) Put(ctx context.Context, uidHash string, rec Record, retention time.Duration) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}
	if err := s.client.Set(ctx, challengeKeyPrefix+uidHash, payload, retention).Err(); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

// Consume runs the atomic mark-used script.
func (s *RedisStore) Consume(ctx context.Context, uidHash string) (*Record, bool, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{challengeKeyPrefix + uidHash}).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("consume challenge: %w", err)
	}
	payload, ok := res.(string)
	if !ok {
		return nil, false, fmt.Errorf("consume challenge: unexpected reply type %T", res)
	}
	used := strings.HasPrefix(payload, usedMarker)
	payload = strings.TrimPrefix(payload, usedMarker)

	var rec Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, false, fmt.Errorf("unmarshal challenge: %w", err)
	}
	return &rec, used, nil
}
