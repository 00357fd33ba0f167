package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimbusworks/console-identity-service/internal/domain"
)

// RedisCodeStore keeps live verification codes and their send cooldowns in
// Redis. Codes are keyed by identifier and purpose so one phone number can
// hold independent codes for login and unbind at the same time.
type RedisCodeStore struct {
	client *redis.Client
}

func NewRedisCodeStore(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{client: client}
}

func codeKey(identifier string, purpose domain.Purpose) string {
	return "identity:code:" + string(purpose) + ":" + identifier
}

func cooldownKey(identifier string, purpose domain.Purpose) string {
	return "identity:code:cooldown:" + string(purpose) + ":" + identifier
}

// ReserveCooldown uses SETNX so exactly one sender wins the cooldown window
// under concurrent requests.
func (s *RedisCodeStore) ReserveCooldown(ctx context.Context, identifier string, purpose domain.Purpose, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, cooldownKey(identifier, purpose), "1", ttl).Result()
}

func (s *RedisCodeStore) Put(ctx context.Context, identifier string, purpose domain.Purpose, code domain.VerificationCode, ttl time.Duration) error {
	raw, err := json.Marshal(code)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, codeKey(identifier, purpose), raw, ttl).Err()
}

// consumeScript compares the submitted code against the stored payload and
// deletes the key only on a match, all inside Redis. Doing the compare here
// instead of in the service closes the window where a code reissued between
// read and delete would let the stale code through and burn the fresh one.
// Replies: {0} key missing, {1, raw} code mismatch, {2, raw} consumed.
var consumeScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
    return {0, ""}
end
local payload = cjson.decode(raw)
if payload["code"] ~= ARGV[1] then
    return {1, raw}
end
redis.call("DEL", KEYS[1])
return {2, raw}
`)

func (s *RedisCodeStore) Consume(ctx context.Context, identifier string, purpose domain.Purpose, submitted string) (*domain.VerificationCode, bool, error) {
	reply, err := consumeScript.Run(ctx, s.client, []string{codeKey(identifier, purpose)}, submitted).Slice()
	if err != nil {
		return nil, false, err
	}
	if len(reply) != 2 {
		return nil, false, errors.New("cache: unexpected consume script reply")
	}
	status, ok := reply[0].(int64)
	if !ok {
		return nil, false, errors.New("cache: unexpected consume script status")
	}
	if status == 0 {
		return nil, false, nil
	}
	raw, ok := reply[1].(string)
	if !ok {
		return nil, false, errors.New("cache: unexpected consume script payload")
	}
	var out domain.VerificationCode
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false, err
	}
	return &out, status == 2, nil
}
