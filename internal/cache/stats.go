// Package cache holds the Redis-backed statistics cache. The cache is an
// optimization only: a nil client (or any Redis failure) degrades to a miss
// and the caller reads from the database instead.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/gatherhq/ticketing/internal/domain"
)

const defaultStatsTTL = 30 * time.Second

// StatsCache caches per-event booking statistics under a short TTL.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Logger
}

func NewStatsCache(client *redis.Client, log *logrus.Logger) *StatsCache {
	return &StatsCache{client: client, ttl: defaultStatsTTL, log: log}
}

func statsKey(eventID string) string {
	return "stats:event:" + eventID
}

// Get returns the cached statistics for an event, or a miss.
func (c *StatsCache) Get(ctx context.Context, eventID string) (domain.EventStatistics, bool) {
	if c == nil || c.client == nil {
		return domain.EventStatistics{}, false
	}
	raw, err := c.client.Get(ctx, statsKey(eventID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Warn("stats cache: get failed")
		}
		return domain.EventStatistics{}, false
	}
	var stats domain.EventStatistics
	if err := json.Unmarshal(raw, &stats); err != nil {
		c.log.WithError(err).Warn("stats cache: corrupt entry")
		return domain.EventStatistics{}, false
	}
	return stats, true
}

// Set stores statistics for the configured TTL.
func (c *StatsCache) Set(ctx context.Context, eventID string, stats domain.EventStatistics) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		c.log.WithError(err).Warn("stats cache: marshal failed")
		return
	}
	if err := c.client.Set(ctx, statsKey(eventID), raw, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("stats cache: set failed")
	}
}

// Invalidate drops the cached entry after a booking mutation.
func (c *StatsCache) Invalidate(ctx context.Context, eventID string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, statsKey(eventID)).Err(); err != nil {
		c.log.WithError(err).Warn("stats cache: invalidate failed")
	}
}

// NewRedisClient builds a Redis client from an address. It pings with a
// short timeout and returns nil when the server is unreachable so the
// service runs without caching.
func NewRedisClient(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil
	}
	return client
}
