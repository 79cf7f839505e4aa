// Package cache provides a Redis read-through cache for the globally
// readable book catalog. Chat sessions resolve their notebook's book
// selection on every turn, so catalog reads dominate; notebook-scoped data
// is never cached because it is ownership-checked per request.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"insidelm/pkg/domain"
)

const keyPrefix = "books:"

// DefaultTTL applies when no TTL is configured.
const DefaultTTL = 5 * time.Minute

// BookCache caches book listings in Redis with TTL.
type BookCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBookCache builds a Redis-backed book cache.
func NewBookCache(addr, password string, ttl time.Duration) *BookCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &BookCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

// NewBookCacheWithClient wraps an existing client; used by tests.
func NewBookCacheWithClient(client *redis.Client, ttl time.Duration) *BookCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &BookCache{client: client, ttl: ttl}
}

// ListKey derives the cache key for a genre/author filter pair.
func ListKey(genre, author string) string {
	return fmt.Sprintf("%sgenre=%s:author=%s", keyPrefix, genre, author)
}

// GetList returns a cached listing. The second return is false on a miss.
func (c *BookCache) GetList(ctx context.Context, key string) ([]domain.Book, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var books []domain.Book
	if err := json.Unmarshal(raw, &books); err != nil {
		// A corrupt entry is treated as a miss; the next SetList overwrites it.
		return nil, false, nil
	}
	return books, true, nil
}

// SetList stores a listing under key with the configured TTL.
func (c *BookCache) SetList(ctx context.Context, key string, books []domain.Book) error {
	raw, err := json.Marshal(books)
	if err != nil {
		return fmt.Errorf("encode cached books: %w", err)
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate drops every cached listing. Called after any book write so
// collaborators never read a stale catalog past one TTL window.
func (c *BookCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Close releases the underlying client.
func (c *BookCache) Close() error {
	return c.client.Close()
}
