package persona

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// CachedDirectory wraps an inner Directory with a Redis cache plus an
// in-process TinyLFU tier for hot personalities. Not-found results are
// cached too, on a shorter TTL, so misspelled names do not hammer the store.
//
// Cache keys carry a process-local generation number. Purging everything
// bumps the generation; orphaned keys fall out of Redis via their TTL.
type CachedDirectory struct {
	Inner       Directory
	HitTTL      time.Duration
	NotFoundTTL time.Duration

	data   *cache.Cache
	gen    atomic.Uint64
	logger *slog.Logger
}

var _ Directory = (*CachedDirectory)(nil)

type personaEntry struct {
	Personality *Personality
	NotFound    bool
}

func NewCachedDirectory(inner Directory, rdb *redis.Client, logger *slog.Logger, hitTTL, notFoundTTL time.Duration, lruSize int) *CachedDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDirectory{
		Inner:       inner,
		HitTTL:      hitTTL,
		NotFoundTTL: notFoundTTL,
		data: cache.New(&cache.Options{
			Redis:      rdb,
			LocalCache: cache.NewTinyLFU(lruSize, hitTTL),
		}),
		logger: logger.With("system", "persona"),
	}
}

func (d *CachedDirectory) nameKey(name string) string {
	return fmt.Sprintf("persona/%d/name/%s", d.gen.Load(), name)
}

func (d *CachedDirectory) userKey(discordID string) string {
	return fmt.Sprintf("persona/%d/user/%s", d.gen.Load(), discordID)
}

func (d *CachedDirectory) Lookup(ctx context.Context, name string) (*Personality, error) {
	key := d.nameKey(name)
	var entry personaEntry
	err := d.data.Get(ctx, key, &entry)
	if err == nil {
		lookupHits.Inc()
		if entry.NotFound {
			return nil, ErrNotFound
		}
		return entry.Personality, nil
	}
	if err != cache.ErrCacheMiss {
		// degraded cache is not a lookup failure; fall through to the store
		d.logger.Warn("persona cache read failed", "name", name, "err", err)
	}
	lookupMisses.Inc()

	p, err := d.Inner.Lookup(ctx, name)
	if err == ErrNotFound {
		d.set(ctx, key, personaEntry{NotFound: true}, d.NotFoundTTL)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.set(ctx, key, personaEntry{Personality: p}, d.HitTTL)
	return p, nil
}

func (d *CachedDirectory) ForUser(ctx context.Context, discordID string) ([]Personality, error) {
	key := d.userKey(discordID)
	var list []Personality
	err := d.data.Get(ctx, key, &list)
	if err == nil {
		lookupHits.Inc()
		return list, nil
	}
	if err != cache.ErrCacheMiss {
		d.logger.Warn("persona cache read failed", "discordID", discordID, "err", err)
	}
	lookupMisses.Inc()

	list, err = d.Inner.ForUser(ctx, discordID)
	if err != nil {
		return nil, err
	}
	d.set(ctx, key, list, d.HitTTL)
	return list, nil
}

func (d *CachedDirectory) set(ctx context.Context, key string, val any, ttl time.Duration) {
	err := d.data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: val,
		TTL:   ttl,
	})
	if err != nil {
		d.logger.Warn("persona cache write failed", "key", key, "err", err)
	}
}

// PurgeName evicts one personality by name.
func (d *CachedDirectory) PurgeName(ctx context.Context, name string) error {
	err := d.data.Delete(ctx, d.nameKey(name))
	if err == cache.ErrCacheMiss {
		return nil
	}
	return err
}

// PurgeUser evicts a user's personality listing.
func (d *CachedDirectory) PurgeUser(ctx context.Context, discordID string) error {
	err := d.data.Delete(ctx, d.userKey(discordID))
	if err == cache.ErrCacheMiss {
		return nil
	}
	return err
}

// PurgeAll makes every cached entry unreachable by bumping the generation.
func (d *CachedDirectory) PurgeAll() {
	d.gen.Add(1)
}
