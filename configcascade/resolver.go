package configcascade

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glimmerbot/glimmer/util/ttlmap"
)

// Cache keys are user:personality:channel with fixed sentinels for absent
// components. The sentinels cannot collide with real identifiers: Discord
// IDs are numeric snowflakes and personality IDs are hyphenated hex UUIDs.
const (
	keySep            = ":"
	sentinelAnon      = "anon"
	sentinelNoPersona = "none"
	sentinelNoChannel = "no-ch"
)

const (
	DefaultTTL           = 5 * time.Minute
	defaultSweepInterval = 10 * time.Minute
)

// Resolver computes the effective configuration for a (user, personality,
// channel) combination by merging the applicable override tiers in priority
// order, memoized in a TTL cache owned by this instance.
//
// A store failure on one tier never fails a resolution: the tier simply
// contributes nothing and lower-priority data (eventually the hardcoded
// baseline) shows through.
type Resolver struct {
	store  OverrideStore
	logger *slog.Logger
	cache  *ttlmap.Map[*Resolved]
}

// NewResolver creates a resolver with its own cache and starts the
// background sweep. Call StopCleanup on shutdown. A ttl of 0 means
// DefaultTTL; logger may be nil.
func NewResolver(store OverrideStore, logger *slog.Logger, ttl time.Duration) *Resolver {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		store:  store,
		logger: logger.With("system", "configcascade"),
		cache:  ttlmap.New[*Resolved](ttl),
	}
	r.cache.StartSweep(defaultSweepInterval)
	return r
}

func cacheKey(userID, personalityID, channelID string) string {
	if userID == "" {
		userID = sentinelAnon
	}
	if personalityID == "" {
		personalityID = sentinelNoPersona
	}
	if channelID == "" {
		channelID = sentinelNoChannel
	}
	return userID + keySep + personalityID + keySep + channelID
}

// keySegment returns the nth colon-delimited segment of a cache key.
// Matching by position rather than substring keeps an id that happens to be
// a prefix of another id from over-invalidating.
func keySegment(key string, n int) string {
	parts := strings.SplitN(key, keySep, 3)
	if n >= len(parts) {
		return ""
	}
	return parts[n]
}

// Resolve returns the effective configuration for the given identifiers,
// any of which may be empty. Results are memoized: within the TTL window,
// identical inputs return the identical object. Resolve never fails — a
// degraded merge over whichever tiers were reachable beats an error.
func (r *Resolver) Resolve(ctx context.Context, userID, personalityID, channelID string) *Resolved {
	key := cacheKey(userID, personalityID, channelID)
	if res, ok := r.cache.Get(key); ok {
		cacheHits.Inc()
		return res
	}
	cacheMisses.Inc()

	var (
		adminRaw   json.RawMessage
		personaRaw json.RawMessage
		channelRaw json.RawMessage
		userRows   UserOverrideRows
	)

	// all applicable tiers are fetched concurrently; errors are logged and
	// degrade to the lower tiers rather than aborting
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := r.store.AdminOverrides(gctx)
		if err != nil {
			r.tierFetchFailed(SourceAdmin, err)
			return nil
		}
		adminRaw = raw
		return nil
	})
	if personalityID != "" {
		g.Go(func() error {
			raw, err := r.store.PersonalityOverrides(gctx, personalityID)
			if err != nil {
				r.tierFetchFailed(SourcePersonality, err)
				return nil
			}
			personaRaw = raw
			return nil
		})
	}
	if channelID != "" {
		g.Go(func() error {
			raw, err := r.store.ChannelOverrides(gctx, channelID)
			if err != nil {
				r.tierFetchFailed(SourceChannel, err)
				return nil
			}
			channelRaw = raw
			return nil
		})
	}
	if userID != "" {
		g.Go(func() error {
			rows, err := r.store.UserOverrides(gctx, userID, personalityID)
			if err != nil {
				r.tierFetchFailed(SourceUserDefault, err)
				return nil
			}
			userRows = rows
			return nil
		})
	}
	_ = g.Wait()

	// merge order is load-bearing: strictly ascending tier priority
	res := Defaults()
	r.applyTier(res, adminRaw, SourceAdmin)
	r.applyTier(res, personaRaw, SourcePersonality)
	r.applyTier(res, channelRaw, SourceChannel)
	r.applyTier(res, userRows.Default, SourceUserDefault)
	r.applyTier(res, userRows.Personality, SourceUserPersonality)

	r.cache.Set(key, res)
	return res
}

func (r *Resolver) applyTier(res *Resolved, raw json.RawMessage, source string) {
	if len(raw) == 0 {
		return
	}
	o, err := decodeTier(raw)
	if err != nil {
		tiersRejected.WithLabelValues(source).Inc()
		r.logger.Warn("skipping invalid override tier", "source", source, "err", err)
		return
	}
	res.apply(o, source)
}

func (r *Resolver) tierFetchFailed(source string, err error) {
	tierFetchErrors.WithLabelValues(source).Inc()
	r.logger.Warn("override tier fetch failed", "source", source, "err", err)
}

// InvalidateUser evicts every cache entry whose user component equals
// userID, returning the number of entries removed.
func (r *Resolver) InvalidateUser(userID string) int {
	return r.cache.DeleteFunc(func(key string, _ *Resolved) bool {
		return keySegment(key, 0) == userID
	})
}

// InvalidatePersonality evicts every cache entry whose personality component
// equals personalityID.
func (r *Resolver) InvalidatePersonality(personalityID string) int {
	return r.cache.DeleteFunc(func(key string, _ *Resolved) bool {
		return keySegment(key, 1) == personalityID
	})
}

// InvalidateChannel evicts every cache entry whose channel component equals
// channelID.
func (r *Resolver) InvalidateChannel(channelID string) int {
	return r.cache.DeleteFunc(func(key string, _ *Resolved) bool {
		return keySegment(key, 2) == channelID
	})
}

// ClearCache drops every cached resolution.
func (r *Resolver) ClearCache() {
	r.cache.Clear()
}

// CacheLen reports how many resolutions are currently cached, expired or not.
func (r *Resolver) CacheLen() int {
	return r.cache.Len()
}

// StopCleanup stops the background sweep. The resolver remains usable;
// expired entries are still rejected on read.
func (r *Resolver) StopCleanup() {
	r.cache.StopSweep()
}
