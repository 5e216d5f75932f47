package artifacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sethwebster/presentations-sub001/pkg/codec"
)

// RedisStoreConfig holds configuration for RedisStore.
type RedisStoreConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"` // Optional key prefix, default "deckpack:asset:"
}

// RedisStore implements Store on Redis. The blob and its CBOR-encoded
// AssetInfo are written together with MSETNX. Both keys share a hash tag so
// they land in one cluster slot.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisStoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg.Prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "deckpack:asset:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) keys(digest string) (blob, meta string) {
	tag := s.prefix + "{" + digest + "}"
	return tag + ":blob", tag + ":info"
}

func (s *RedisStore) Put(ctx context.Context, data []byte, meta *AssetInfo) (string, error) {
	hash := HashBytes(data)
	blobKey, metaKey := s.keys(hash[len(hashPrefix):])

	info := newAssetInfo(data, hash, meta, time.Now().UTC())
	encoded, err := codec.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to encode asset info: %w", err)
	}

	// MSETNX sets nothing when either key exists; a false result is a
	// duplicate Put and still succeeds.
	if err := s.client.MSetNX(ctx, blobKey, data, metaKey, encoded).Err(); err != nil {
		return "", fmt.Errorf("redis put failed: %w", err)
	}
	return hash, nil
}

func (s *RedisStore) Get(ctx context.Context, hash string) ([]byte, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return nil, err
	}
	blobKey, _ := s.keys(digest)

	data, err := s.client.Get(ctx, blobKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed for %s: %w", hash, err)
	}
	return data, nil
}

func (s *RedisStore) Info(ctx context.Context, hash string) (*AssetInfo, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return nil, err
	}
	_, metaKey := s.keys(digest)

	raw, err := s.client.Get(ctx, metaKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed for %s: %w", hash, err)
	}
	var info AssetInfo
	if err := codec.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("corrupt asset info for %s: %w", hash, err)
	}
	return &info, nil
}

func (s *RedisStore) Exists(ctx context.Context, hash string) (bool, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return false, err
	}
	blobKey, _ := s.keys(digest)

	n, err := s.client.Exists(ctx, blobKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed for %s: %w", hash, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, hash string) (bool, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return false, err
	}
	blobKey, metaKey := s.keys(digest)

	n, err := s.client.Del(ctx, blobKey, metaKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis delete failed for %s: %w", hash, err)
	}
	return n > 0, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
