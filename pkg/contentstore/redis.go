package contentstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultKeyPrefix = "content:"

// Redis stores blobs in Redis under their content hash.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis constructs a Redis-backed store. A zero ttl keeps blobs forever.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) Put(ctx context.Context, data []byte) (string, error) {
	hash, err := HashOf(data)
	if err != nil {
		return "", err
	}
	if err := r.client.Set(ctx, r.prefix+hash, data, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store content: %w", err)
	}
	return hash, nil
}

func (r *Redis) Fetch(ctx context.Context, hash string) ([]byte, error) {
	if _, err := ParseHash(hash); err != nil {
		return nil, err
	}

	data, err := r.client.Get(ctx, r.prefix+hash).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if err := Verify(hash, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Cached is a read-through Redis cache in front of another store. Content
// addressing makes cached entries valid for as long as they are kept.
type Cached struct {
	origin Store
	cache  *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCached wraps origin with a Redis cache.
func NewCached(origin Store, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) *Cached {
	return &Cached{
		origin: origin,
		cache:  cache,
		prefix: "content-cache:",
		ttl:    ttl,
		logger: logger.With().Str("component", "content_cache").Logger(),
	}
}

func (c *Cached) Put(ctx context.Context, data []byte) (string, error) {
	hash, err := c.origin.Put(ctx, data)
	if err != nil {
		return "", err
	}
	c.store(ctx, hash, data)
	return hash, nil
}

func (c *Cached) Fetch(ctx context.Context, hash string) ([]byte, error) {
	if _, err := ParseHash(hash); err != nil {
		return nil, err
	}

	if cached, err := c.cache.Get(ctx, c.prefix+hash).Bytes(); err == nil {
		if Verify(hash, cached) == nil {
			return cached, nil
		}
		c.logger.Warn().Str("content_hash", hash).Msg("discarding cached content that no longer matches its hash")
		_ = c.cache.Del(ctx, c.prefix+hash).Err()
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn().Err(err).Msg("failed to read content cache")
	}

	data, err := c.origin.Fetch(ctx, hash)
	if err != nil {
		return nil, err
	}
	c.store(ctx, hash, data)
	return data, nil
}

func (c *Cached) store(ctx context.Context, hash string, data []byte) {
	if err := c.cache.Set(ctx, c.prefix+hash, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("content_hash", hash).Msg("failed to store content cache")
	}
}
