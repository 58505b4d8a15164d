// Package redisstore persists auth sessions in Redis hashes.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/guarzo/substream/modules/auth"
)

const (
	DefaultKeyPrefix = "substream:"

	fieldAccessToken  = "access_token"
	fieldRefreshToken = "refresh_token"
	fieldTokenExpiry  = "token_expiry"
)

// Config for the Redis-backed session Storage.
type Config struct {
	Client    redis.UniversalClient
	KeyPrefix string
}

// Storage keeps one hash per namespace. Save replaces all three fields in a
// single MULTI/EXEC so readers never see a half-written session.
type Storage struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ auth.Storage = (*Storage)(nil)

func New(cfg Config) (*Storage, error) {
	if cfg.Client == nil {
		return nil, errors.New("redisstore: redis client is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Storage{client: cfg.Client, keyPrefix: prefix}, nil
}

func (s *Storage) key(namespace string) string {
	return s.keyPrefix + "session:" + namespace
}

func (s *Storage) Load(ctx context.Context, namespace string) (auth.Record, bool, error) {
	vals, err := s.client.HGetAll(ctx, s.key(namespace)).Result()
	if err != nil {
		return auth.Record{}, false, fmt.Errorf("redisstore: hgetall %s: %w", s.key(namespace), err)
	}
	if len(vals) == 0 {
		return auth.Record{}, false, nil
	}

	rec := auth.Record{
		AccessToken:  vals[fieldAccessToken],
		RefreshToken: vals[fieldRefreshToken],
	}
	if raw := vals[fieldTokenExpiry]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return auth.Record{}, false, fmt.Errorf("redisstore: bad %s %q: %w", fieldTokenExpiry, raw, err)
		}
		rec.ExpiresAtMillis = ms
	}
	return rec, true, nil
}

func (s *Storage) Save(ctx context.Context, namespace string, rec auth.Record) error {
	key := s.key(namespace)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldAccessToken, rec.AccessToken,
			fieldRefreshToken, rec.RefreshToken,
			fieldTokenExpiry, strconv.FormatInt(rec.ExpiresAtMillis, 10),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: save %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, namespace string) error {
	if err := s.client.Del(ctx, s.key(namespace)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete %s: %w", s.key(namespace), err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Storage) Close() error { return s.client.Close() }
