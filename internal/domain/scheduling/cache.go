package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinic/frontdesk/internal/domain/calendar"
	"github.com/clinic/frontdesk/internal/platform/metrics"
)

// RedisCountCache memoizes monthly occupancy counts in redis. Every cached
// month has a generation counter that the ledger bumps after each write;
// entries are stored under the generation read before the underlying view
// was consulted, so a fill that raced a write lands on a retired key.
// Redis failures fall through to the underlying view.
type RedisCountCache struct {
	next    OccupancyView
	rdb     redis.Cmdable
	ttl     time.Duration
	metrics *metrics.Ledger
	logger  zerolog.Logger
}

func NewRedisCountCache(next OccupancyView, rdb redis.Cmdable, ttl time.Duration, logger zerolog.Logger) *RedisCountCache {
	return &RedisCountCache{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With().Str("component", "count_cache").Logger(),
	}
}

func (c *RedisCountCache) WithMetrics(m *metrics.Ledger) *RedisCountCache {
	c.metrics = m
	return c
}

func countsKey(doctorID string, year int, month time.Month) string {
	return fmt.Sprintf("frontdesk:counts:%s:%04d-%02d", doctorID, year, int(month))
}

func generationKey(doctorID string, year int, month time.Month) string {
	return fmt.Sprintf("frontdesk:countgen:%s:%04d-%02d", doctorID, year, int(month))
}

func entryKey(base string, gen int64) string {
	return base + "@" + strconv.FormatInt(gen, 10)
}

func (c *RedisCountCache) CountForDay(ctx context.Context, key DayKey) (int, error) {
	counts, err := c.CountsForMonth(ctx, key.DoctorID, key.Date.Year, key.Date.Month)
	if err != nil {
		return 0, err
	}
	return counts[key.Date], nil
}

// generation returns the month's current generation. A missing counter is
// generation zero.
func (c *RedisCountCache) generation(ctx context.Context, doctorID string, year int, month time.Month) (int64, error) {
	gen, err := c.rdb.Get(ctx, generationKey(doctorID, year, month)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisCountCache) CountsForMonth(ctx context.Context, doctorID string, year int, month time.Month) (map[calendar.Date]int, error) {
	gen, err := c.generation(ctx, doctorID, year, month)
	if err != nil {
		c.logger.Warn().Err(err).Str("doctor_id", doctorID).Msg("count cache generation read failed")
		c.metrics.ObserveCache(false)
		return c.next.CountsForMonth(ctx, doctorID, year, month)
	}
	key := entryKey(countsKey(doctorID, year, month), gen)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var counts map[calendar.Date]int
		if jerr := json.Unmarshal(raw, &counts); jerr == nil {
			c.metrics.ObserveCache(true)
			return counts, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("key", key).Msg("count cache read failed")
	}
	c.metrics.ObserveCache(false)

	counts, err := c.next.CountsForMonth(ctx, doctorID, year, month)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(counts); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("count cache write failed")
		}
	}
	return counts, nil
}

// Invalidate retires the month's cached counts by advancing its generation.
func (c *RedisCountCache) Invalidate(ctx context.Context, doctorID string, year int, month time.Month) error {
	return c.rdb.Incr(ctx, generationKey(doctorID, year, month)).Err()
}
