// Package cache keeps computed free slots in Redis.
//
// Entries are keyed by a per-provider generation counter. Every committed change to a
// provider's calendar bumps the generation, which orphans all earlier entries; they
// then expire on their TTL. A Store computed against an older generation can never be
// read back, so there is no window in which stale slots are served after a commit.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tutorbook/backend/internal/domain"
)

const keyPrefix = "tutorbook:slots:"

type Config struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func Ping(ctx context.Context, client redis.UniversalClient) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

type SlotCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewSlotCache(rdb redis.Cmdable, ttl time.Duration) *SlotCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SlotCache{rdb: rdb, ttl: ttl}
}

// Generation identifies the calendar version a Lookup observed.
type Generation int64

// Lookup returns the cached slots for provider on date, if any, together with the
// generation the caller must pass back to Store.
func (c *SlotCache) Lookup(ctx context.Context, providerID string, date time.Time) ([]domain.Interval, bool, Generation, error) {
	gen, err := c.generation(ctx, providerID)
	if err != nil {
		return nil, false, 0, err
	}
	raw, err := c.rdb.Get(ctx, slotsKey(providerID, gen, date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, gen, nil
	}
	if err != nil {
		return nil, false, gen, err
	}
	slots, err := decodeSlots(raw)
	if err != nil {
		return nil, false, gen, err
	}
	return slots, true, gen, nil
}

func (c *SlotCache) Store(ctx context.Context, providerID string, date time.Time, gen Generation, slots []domain.Interval) error {
	raw, err := encodeSlots(slots)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, slotsKey(providerID, gen, date), raw, c.ttl).Err()
}

// Invalidate orphans every cached day of the provider.
func (c *SlotCache) Invalidate(ctx context.Context, providerID string) error {
	return c.rdb.Incr(ctx, generationKey(providerID)).Err()
}

func (c *SlotCache) generation(ctx context.Context, providerID string) (Generation, error) {
	n, err := c.rdb.Get(ctx, generationKey(providerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return Generation(n), nil
}

func generationKey(providerID string) string {
	return keyPrefix + "gen:{" + providerID + "}"
}

func slotsKey(providerID string, gen Generation, date time.Time) string {
	return fmt.Sprintf("%s{%s}:%d:%s", keyPrefix, providerID, gen, domain.FormatDate(date))
}

func encodeSlots(slots []domain.Interval) ([]byte, error) {
	pairs := make([][2]int, len(slots))
	for i, s := range slots {
		pairs[i] = [2]int{int(s.Start), int(s.End)}
	}
	return json.Marshal(pairs)
}

func decodeSlots(raw []byte) ([]domain.Interval, error) {
	var pairs [][2]int
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("decode cached slots: %w", err)
	}
	out := make([]domain.Interval, len(pairs))
	for i, p := range pairs {
		out[i] = domain.Interval{Start: domain.TimeOfDay(p[0]), End: domain.TimeOfDay(p[1])}
	}
	return out, nil
}
