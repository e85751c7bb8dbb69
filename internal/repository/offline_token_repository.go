package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/observability"

	"github.com/redis/go-redis/v9"
)

var ErrOfflineTokenNotFound = errors.New("offline subscription token not found")

type OfflineSubscriptionTokenRepository interface {
	Save(ctx context.Context, token domain.OfflineSubscriptionToken, ttl time.Duration) error
	Find(ctx context.Context, token string) (*domain.OfflineSubscriptionToken, error)
}

type RedisOfflineSubscriptionTokenRepository struct {
	client redis.UniversalClient
}

func NewRedisOfflineSubscriptionTokenRepository(client redis.UniversalClient) *RedisOfflineSubscriptionTokenRepository {
	return &RedisOfflineSubscriptionTokenRepository{client: client}
}

func (r *RedisOfflineSubscriptionTokenRepository) Save(ctx context.Context, token domain.OfflineSubscriptionToken, ttl time.Duration) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode offline token: %w", err)
	}
	if err := r.client.Set(ctx, offlineTokenKey(token.Token), payload, ttl).Err(); err != nil {
		observability.RecordRepositoryOperation(ctx, "offline_token", "save", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "offline_token", "save", "success")
	return nil
}

func (r *RedisOfflineSubscriptionTokenRepository) Find(ctx context.Context, token string) (*domain.OfflineSubscriptionToken, error) {
	raw, err := r.client.Get(ctx, offlineTokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.RecordRepositoryOperation(ctx, "offline_token", "find", "not_found")
		return nil, ErrOfflineTokenNotFound
	}
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "offline_token", "find", "error")
		return nil, err
	}
	var out domain.OfflineSubscriptionToken
	if err := json.Unmarshal(raw, &out); err != nil {
		observability.RecordRepositoryOperation(ctx, "offline_token", "find", "error")
		return nil, fmt.Errorf("decode offline token: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "offline_token", "find", "success")
	return &out, nil
}

func offlineTokenKey(token string) string {
	return "offline-subscription-token:" + token
}
