package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// CountCachePrefix is the key prefix for per-subject aggregate counts
	CountCachePrefix = "counts:subject:"

	// CountCacheTTL is the TTL for count entries (24 hours)
	CountCacheTTL = 24 * time.Hour
)

// CountCache defines the interface for the hot like/comment count cache.
// Using an interface enables testing with mocks and potential future backends.
type CountCache interface {
	// Get returns the cached counts for a subject. found=false on a miss;
	// the service layer should warm the cache from the database.
	Get(ctx context.Context, subjectID string) (likes, comments int, found bool, err error)

	// Set writes the counts for a subject and refreshes the TTL.
	Set(ctx context.Context, subjectID string, likes, comments int) error

	// Invalidate drops a subject's entry so the next read warms from the DB.
	Invalidate(ctx context.Context, subjectID string) error
}

// RedisCountCache implements CountCache on a Redis hash per subject.
type RedisCountCache struct {
	client *redis.Client
}

// NewCountCache creates a CountCache backed by Redis.
func NewCountCache(client *redis.Client) CountCache {
	return &RedisCountCache{client: client}
}

func countKey(subjectID string) string {
	return CountCachePrefix + subjectID
}

func (c *RedisCountCache) Get(ctx context.Context, subjectID string) (int, int, bool, error) {
	key := countKey(subjectID)

	values, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		log.Printf("[CountCache] Get FAILED: subject=%s err=%v", subjectID, err)
		return 0, 0, false, fmt.Errorf("get counts: %w", err)
	}
	if len(values) == 0 {
		log.Printf("[CountCache] Get: subject=%s MISS", subjectID)
		return 0, 0, false, nil
	}

	var likes, comments int
	fmt.Sscanf(values["likes"], "%d", &likes)
	fmt.Sscanf(values["comments"], "%d", &comments)

	log.Printf("[CountCache] Get OK: subject=%s likes=%d comments=%d", subjectID, likes, comments)
	return likes, comments, true, nil
}

// Set writes both counters in one pipeline: HSET + EXPIRE.
func (c *RedisCountCache) Set(ctx context.Context, subjectID string, likes, comments int) error {
	key := countKey(subjectID)
	startTime := time.Now()

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, "likes", likes, "comments", comments)
	pipe.Expire(ctx, key, CountCacheTTL)

	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Printf("[CountCache] Set FAILED: subject=%s err=%v", subjectID, err)
		return fmt.Errorf("set counts: %w", err)
	}

	log.Printf("[CountCache] Set OK: subject=%s likes=%d comments=%d duration=%v",
		subjectID, likes, comments, time.Since(startTime))
	return nil
}

func (c *RedisCountCache) Invalidate(ctx context.Context, subjectID string) error {
	key := countKey(subjectID)

	if err := c.client.Del(ctx, key).Err(); err != nil {
		log.Printf("[CountCache] Invalidate FAILED: subject=%s err=%v", subjectID, err)
		return fmt.Errorf("invalidate counts: %w", err)
	}

	log.Printf("[CountCache] Invalidate OK: subject=%s", subjectID)
	return nil
}
