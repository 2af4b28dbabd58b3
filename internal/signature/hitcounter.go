package signature

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// HitCounter records signature sightings and reports how many were seen
// within the trailing window.
type HitCounter interface {
	Record(ctx context.Context, sig string) (int, error)
}

type bucket struct {
	start time.Time
	count int
}

// MemoryHitCounter is a bounded, age-evicted sliding window counter: each
// signature gets its own ring of buckets covering the configured window, and
// buckets older than the window are dropped lazily on the next Record call
// instead of by a background sweep. Uses the read-first locking pattern:
// most calls only need to mutate their own signature's bucket slice, so a
// single mutex is acceptable here (unlike a global rate limiter, contention
// is spread across many distinct signature keys).
type MemoryHitCounter struct {
	mu         sync.Mutex
	buckets    map[string][]bucket
	windowSec  int
	bucketSec  int
	bucketCap  int
}

// NewMemoryHitCounter builds an in-process hit counter covering windowSec
// seconds split into bucketCount buckets.
func NewMemoryHitCounter(windowSec, bucketCount int) *MemoryHitCounter {
	if bucketCount < 1 {
		bucketCount = 1
	}
	bucketSec := windowSec / bucketCount
	if bucketSec < 1 {
		bucketSec = 1
	}
	return &MemoryHitCounter{
		buckets:   make(map[string][]bucket),
		windowSec: windowSec,
		bucketSec: bucketSec,
		bucketCap: bucketCount,
	}
}

func (c *MemoryHitCounter) Record(ctx context.Context, sig string) (int, error) {
	now := time.Now()
	cutoff := now.Add(-time.Duration(c.windowSec) * time.Second)

	c.mu.Lock()
	defer c.mu.Unlock()

	buckets := c.buckets[sig]
	live := buckets[:0]
	for _, b := range buckets {
		if b.start.After(cutoff) {
			live = append(live, b)
		}
	}

	bucketStart := now.Truncate(time.Duration(c.bucketSec) * time.Second)
	if n := len(live); n > 0 && live[n-1].start.Equal(bucketStart) {
		live[n-1].count++
	} else {
		live = append(live, bucket{start: bucketStart, count: 1})
		if len(live) > c.bucketCap {
			live = live[len(live)-c.bucketCap:]
		}
	}
	c.buckets[sig] = live

	total := 0
	for _, b := range live {
		total += b.count
	}
	return total, nil
}

// RedisHitCounter backs the same interface with a Redis sorted set per
// signature so hit counts survive process restarts and are shared across
// replicas. Falls back silently is not attempted here: callers should check
// the error and fall back to a MemoryHitCounter if Redis is unreachable.
type RedisHitCounter struct {
	rdb       *redis.Client
	windowSec int
}

// NewRedisHitCounter wraps an existing go-redis client.
func NewRedisHitCounter(rdb *redis.Client, windowSec int) *RedisHitCounter {
	return &RedisHitCounter{rdb: rdb, windowSec: windowSec}
}

func (c *RedisHitCounter) Record(ctx context.Context, sig string) (int, error) {
	key := "sentinel:sig:" + sig
	now := time.Now()
	member := now.UnixNano()
	cutoff := now.Add(-time.Duration(c.windowSec) * time.Second).UnixNano()

	pipe := c.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(member), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
	pipe.Expire(ctx, key, time.Duration(c.windowSec)*time.Second)
	card := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("signature: redis hit counter record failed", "signature", sig, "error", err)
		return 0, err
	}
	return int(card.Val()), nil
}
