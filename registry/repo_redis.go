package registry

import (
	"context"
	"encoding/json"

	apperrors "github.com/coursekit/coursekit/internal/errors"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "sessionrecord:"

var _ Store = (*RedisStore)(nil)

// RedisStore persists session records in Redis, one key per user. A plain SET
// on the user key gives the create-or-replace semantics the uniqueness
// invariant relies on.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed session record store. The client is
// pinged once so misconfiguration surfaces at startup rather than on the
// first login.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "[NewRedisStore] redis.ParseURL")
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "[NewRedisStore] ping")
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Put(ctx context.Context, record SessionRecord) error {
	if record.UserID == "" {
		return errors.New("[RedisStore.Put] userID is required")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "[RedisStore.Put] marshal record")
	}

	if err := s.client.Set(ctx, redisKeyPrefix+record.UserID, payload, 0).Err(); err != nil {
		return errors.Wrap(err, "[RedisStore.Put] set")
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, userID string) (SessionRecord, error) {
	if userID == "" {
		return SessionRecord{}, errors.New("[RedisStore.Get] userID is required")
	}

	payload, err := s.client.Get(ctx, redisKeyPrefix+userID).Bytes()
	if err == redis.Nil {
		return SessionRecord{}, apperrors.ErrRecordNotFound
	}
	if err != nil {
		return SessionRecord{}, errors.Wrap(err, "[RedisStore.Get] get")
	}

	var record SessionRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return SessionRecord{}, errors.Wrap(err, "[RedisStore.Get] unmarshal record")
	}
	return record, nil
}

func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("[RedisStore.Delete] userID is required")
	}

	if err := s.client.Del(ctx, redisKeyPrefix+userID).Err(); err != nil {
		return errors.Wrap(err, "[RedisStore.Delete] del")
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
