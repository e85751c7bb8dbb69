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

// EphemeralSessionRepository keeps sessions that must not outlive EPHEMERAL_SESSION_AGE.
type EphemeralSessionRepository interface {
	Save(ctx context.Context, s *domain.Session, ttl time.Duration) error
	FindByUUID(ctx context.Context, uuid string) (*domain.Session, error)
	ListByUser(ctx context.Context, userUUID string) ([]domain.Session, error)
	RotateTokens(ctx context.Context, uuid, oldRefreshHash string, now time.Time, next SessionTokens, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, uuid string) (*domain.Session, error)
	DeleteByUser(ctx context.Context, userUUID string) ([]domain.Session, error)
}

type ephemeralSessionRecord struct {
	UUID               string    `json:"uuid"`
	UserUUID           string    `json:"user_uuid"`
	HashedAccessToken  string    `json:"hashed_access_token"`
	HashedRefreshToken string    `json:"hashed_refresh_token"`
	AccessExpiration   time.Time `json:"access_expiration"`
	RefreshExpiration  time.Time `json:"refresh_expiration"`
	APIVersion         string    `json:"api_version"`
	UserAgent          string    `json:"user_agent"`
	IP                 string    `json:"ip"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toEphemeralRecord(s *domain.Session) ephemeralSessionRecord {
	return ephemeralSessionRecord{
		UUID:               s.UUID,
		UserUUID:           s.UserUUID,
		HashedAccessToken:  s.HashedAccessToken,
		HashedRefreshToken: s.HashedRefreshToken,
		AccessExpiration:   s.AccessExpiration,
		RefreshExpiration:  s.RefreshExpiration,
		APIVersion:         s.APIVersion,
		UserAgent:          s.UserAgent,
		IP:                 s.IP,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func (rec ephemeralSessionRecord) session() *domain.Session {
	return &domain.Session{
		UUID:               rec.UUID,
		UserUUID:           rec.UserUUID,
		HashedAccessToken:  rec.HashedAccessToken,
		HashedRefreshToken: rec.HashedRefreshToken,
		AccessExpiration:   rec.AccessExpiration,
		RefreshExpiration:  rec.RefreshExpiration,
		APIVersion:         rec.APIVersion,
		UserAgent:          rec.UserAgent,
		IP:                 rec.IP,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
		Ephemeral:          true,
	}
}

type RedisEphemeralSessionRepository struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisEphemeralSessionRepository(client redis.UniversalClient, prefix string) *RedisEphemeralSessionRepository {
	if prefix == "" {
		prefix = "ephemeral-session"
	}
	return &RedisEphemeralSessionRepository{client: client, prefix: prefix}
}

func (r *RedisEphemeralSessionRepository) Save(ctx context.Context, s *domain.Session, ttl time.Duration) error {
	payload, err := json.Marshal(toEphemeralRecord(s))
	if err != nil {
		return fmt.Errorf("encode ephemeral session: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.sessionKey(s.UUID), payload, ttl)
	pipe.SAdd(ctx, r.userKey(s.UserUUID), s.UUID)
	pipe.Expire(ctx, r.userKey(s.UserUUID), ttl)
	_, err = pipe.Exec(ctx)
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "ephemeral_session", "save", "error")
		return err
	}
	s.Ephemeral = true
	observability.RecordRepositoryOperation(ctx, "ephemeral_session", "save", "success")
	return nil
}

func (r *RedisEphemeralSessionRepository) FindByUUID(ctx context.Context, uuid string) (*domain.Session, error) {
	raw, err := r.client.Get(ctx, r.sessionKey(uuid)).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.RecordRepositoryOperation(ctx, "ephemeral_session", "find_by_uuid", "not_found")
		return nil, ErrSessionNotFound
	}
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "ephemeral_session", "find_by_uuid", "error")
		return nil, err
	}
	var rec ephemeralSessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		observability.RecordRepositoryOperation(ctx, "ephemeral_session", "find_by_uuid", "error")
		return nil, fmt.Errorf("decode ephemeral session: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "ephemeral_session", "find_by_uuid", "success")
	return rec.session(), nil
}

func (r *RedisEphemeralSessionRepository) ListByUser(ctx context.Context, userUUID string) ([]domain.Session, error) {
	uuids, err := r.client.SMembers(ctx, r.userKey(userUUID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	sessions := make([]domain.Session, 0, len(uuids))
	for _, id := range uuids {
		s, err := r.FindByUUID(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			_ = r.client.SRem(ctx, r.userKey(userUUID), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, nil
}

// RotateTokens is a WATCH/MULTI compare-and-swap on the stored refresh hash. A concurrent
// writer touching the key makes this call lose.
func (r *RedisEphemeralSessionRepository) RotateTokens(ctx context.Context, uuid, oldRefreshHash string, now time.Time, next SessionTokens, ttl time.Duration) (bool, error) {
	key := r.sessionKey(uuid)
	swapped := false
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var rec ephemeralSessionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode ephemeral session: %w", err)
		}
		if rec.HashedRefreshToken != oldRefreshHash || !rec.RefreshExpiration.After(now) {
			return nil
		}
		rec.HashedAccessToken = next.HashedAccessToken
		rec.HashedRefreshToken = next.HashedRefreshToken
		rec.AccessExpiration = next.AccessExpiration
		rec.RefreshExpiration = next.RefreshExpiration
		rec.UpdatedAt = now
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode ephemeral session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			pipe.Expire(ctx, r.userKey(rec.UserUUID), ttl)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		observability.RecordRepositoryOperation(ctx, "ephemeral_session", "rotate_tokens", "conflict")
		return false, nil
	}
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "ephemeral_session", "rotate_tokens", "error")
		return false, err
	}
	if !swapped {
		observability.RecordRepositoryOperation(ctx, "ephemeral_session", "rotate_tokens", "conflict")
		return false, nil
	}
	observability.RecordRepositoryOperation(ctx, "ephemeral_session", "rotate_tokens", "success")
	return true, nil
}

// Delete removes the session and returns it, or nil when it was already gone.
func (r *RedisEphemeralSessionRepository) Delete(ctx context.Context, uuid string) (*domain.Session, error) {
	s, err := r.FindByUUID(ctx, uuid)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, r.sessionKey(uuid))
	pipe.SRem(ctx, r.userKey(s.UserUUID), uuid)
	if _, err := pipe.Exec(ctx); err != nil {
		observability.RecordRepositoryOperation(ctx, "ephemeral_session", "delete", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "ephemeral_session", "delete", "success")
	if del.Val() == 0 {
		return nil, nil
	}
	return s, nil
}

func (r *RedisEphemeralSessionRepository) DeleteByUser(ctx context.Context, userUUID string) ([]domain.Session, error) {
	sessions, err := r.ListByUser(ctx, userUUID)
	if err != nil {
		return nil, err
	}
	deleted := make([]domain.Session, 0, len(sessions))
	for _, s := range sessions {
		gone, err := r.Delete(ctx, s.UUID)
		if err != nil {
			return deleted, err
		}
		if gone != nil {
			deleted = append(deleted, *gone)
		}
	}
	return deleted, nil
}

func (r *RedisEphemeralSessionRepository) sessionKey(uuid string) string {
	return fmt.Sprintf("%s:%s", r.prefix, uuid)
}

func (r *RedisEphemeralSessionRepository) userKey(userUUID string) string {
	return fmt.Sprintf("%s-user:%s", r.prefix, userUUID)
}
