// Package cache provides a Redis-backed read cache for the hot lookups on
// the synthesis workbench: document file types (hit on every report load by
// the legacy-pill repair pass) and media status. The cache is optional;
// callers must tolerate a nil *Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	typePrefix        = "doctype:"
	mediaStatusPrefix = "mediastatus:"

	typeTTL        = 12 * time.Hour
	mediaStatusTTL = 5 * time.Minute
)

// Redis is the cache client.
type Redis struct {
	client *redis.Client
}

// New connects to Redis at redisURL and verifies the connection.
func New(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Redis{client: client}, nil
}

// NewWithClient wraps an existing Redis client (tests use miniredis here).
func NewWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// DocumentTypes returns the cached file types for the given ids. Misses are
// simply absent from the result; the caller fetches them from the store and
// backfills with SetDocumentTypes.
func (r *Redis) DocumentTypes(ctx context.Context, docIDs []string) (map[string]string, error) {
	if r == nil || len(docIDs) == 0 {
		return map[string]string{}, nil
	}
	keys := make([]string, len(docIDs))
	for i, id := range docIDs {
		keys[i] = typePrefix + id
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget document types: %w", err)
	}
	types := make(map[string]string)
	for i, value := range values {
		if s, ok := value.(string); ok && s != "" {
			types[docIDs[i]] = s
		}
	}
	return types, nil
}

// SetDocumentTypes caches file types. A document's type never changes after
// ingestion, so the TTL is generous.
func (r *Redis) SetDocumentTypes(ctx context.Context, types map[string]string) error {
	if r == nil || len(types) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for id, fileType := range types {
		pipe.Set(ctx, typePrefix+id, fileType, typeTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set document types: %w", err)
	}
	return nil
}

// MediaStatus returns the cached media status payload for a document, or nil
// on a miss.
func (r *Redis) MediaStatus(ctx context.Context, docID string) (json.RawMessage, error) {
	if r == nil {
		return nil, nil
	}
	raw, err := r.client.Get(ctx, mediaStatusPrefix+docID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get media status: %w", err)
	}
	return json.RawMessage(raw), nil
}

// SetMediaStatus caches a media status payload.
func (r *Redis) SetMediaStatus(ctx context.Context, docID string, payload json.RawMessage) error {
	if r == nil {
		return nil
	}
	if err := r.client.Set(ctx, mediaStatusPrefix+docID, string(payload), mediaStatusTTL).Err(); err != nil {
		return fmt.Errorf("set media status: %w", err)
	}
	return nil
}

// InvalidateMediaStatus drops the cached status after any media mutation
// (link, unlink, offset save) so the next read is served fresh.
func (r *Redis) InvalidateMediaStatus(ctx context.Context, docID string) error {
	if r == nil {
		return nil
	}
	if err := r.client.Del(ctx, mediaStatusPrefix+docID).Err(); err != nil {
		return fmt.Errorf("invalidate media status: %w", err)
	}
	return nil
}
