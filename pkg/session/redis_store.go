package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "session:"

// RedisStore keeps sessions in Redis with a TTL matching their expiry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Find(ctx context.Context, token string) (*Session, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		// A corrupt record is indistinguishable from a missing one for the
		// caller; drop it so it cannot keep failing.
		_ = s.client.Del(ctx, redisKeyPrefix+token).Err()
		return nil, nil
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.Token == "" {
		return fmt.Errorf("session must have a token")
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, redisKeyPrefix+sess.Token, raw, ttl).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+token).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
