package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimbusworks/console-identity-service/internal/ports"
)

// RedisChangeProofStore stores change-binding phase-one proofs in Redis.
type RedisChangeProofStore struct {
	client *redis.Client
}

func NewRedisChangeProofStore(client *redis.Client) *RedisChangeProofStore {
	return &RedisChangeProofStore{client: client}
}

func (s *RedisChangeProofStore) Put(ctx context.Context, proofID string, proof ports.ChangeProof, ttl time.Duration) error {
	raw, err := json.Marshal(proof)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, "identity:change:"+proofID, raw, ttl).Err()
}

func (s *RedisChangeProofStore) Get(ctx context.Context, proofID string) (*ports.ChangeProof, error) {
	raw, err := s.client.Get(ctx, "identity:change:"+proofID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out ports.ChangeProof
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *RedisChangeProofStore) Delete(ctx context.Context, proofID string) error {
	return s.client.Del(ctx, "identity:change:"+proofID).Err()
}
