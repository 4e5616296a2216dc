package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"quizhub/internal/library"
)

// TokenStore keeps unlock tokens in Redis with a TTL, so grants survive
// restarts and are visible to every instance.
type TokenStore struct {
	client *redis.Client
}

func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

func (s *TokenStore) Put(ctx context.Context, token string, grant library.Grant, ttl time.Duration) error {
	data, err := json.Marshal(grant)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(token), data, ttl).Err()
}

func (s *TokenStore) Get(ctx context.Context, token string) (library.Grant, bool, error) {
	raw, err := s.client.Get(ctx, s.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return library.Grant{}, false, nil
	}
	if err != nil {
		return library.Grant{}, false, err
	}
	var grant library.Grant
	if err := json.Unmarshal([]byte(raw), &grant); err != nil {
		return library.Grant{}, false, err
	}
	return grant, true, nil
}

func (s *TokenStore) key(token string) string {
	return "unlock:token:" + token
}
