// LLM parameter resolution: a degenerate two-tier cascade layered on top of
// a pre-loaded personality rather than a stored tier stack. The personality
// supplies the baseline; the user's default overrides and their
// per-personality overrides win field by field.
package llmconfig

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/glimmerbot/glimmer/persona"
	"github.com/glimmerbot/glimmer/util/ttlmap"
)

// Source labels recorded per field, in ascending priority.
const (
	SourceHardcoded       = "hardcoded"
	SourcePersonality     = "personality"
	SourceUserDefault     = "user-default"
	SourceUserPersonality = "user-personality"
)

const (
	keySep       = ":"
	sentinelAnon = "anon"

	DefaultTTL           = 5 * time.Minute
	defaultSweepInterval = 10 * time.Minute
)

// Overrides is one row's partial LLM parameter set; nil means no opinion.
type Overrides struct {
	Model            *string  `json:"model,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	MaxTokens        *int     `json:"maxTokens,omitempty"`
	PresencePenalty  *float64 `json:"presencePenalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequencyPenalty,omitempty"`
}

// Resolved is the effective LLM parameter set for one (user, personality)
// pair, with per-field provenance.
type Resolved struct {
	Model            string  `json:"model"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"topP"`
	MaxTokens        int     `json:"maxTokens"`
	PresencePenalty  float64 `json:"presencePenalty"`
	FrequencyPenalty float64 `json:"frequencyPenalty"`

	Sources map[string]string `json:"sources"`

	// ConfigIDs are the store rows that contributed overrides, for targeted
	// invalidation when one row changes.
	ConfigIDs []string `json:"-"`
}

func (r *Resolved) apply(o Overrides, source string) {
	if o.Model != nil {
		r.Model = *o.Model
		r.Sources["model"] = source
	}
	if o.Temperature != nil {
		r.Temperature = *o.Temperature
		r.Sources["temperature"] = source
	}
	if o.TopP != nil {
		r.TopP = *o.TopP
		r.Sources["topP"] = source
	}
	if o.MaxTokens != nil {
		r.MaxTokens = *o.MaxTokens
		r.Sources["maxTokens"] = source
	}
	if o.PresencePenalty != nil {
		r.PresencePenalty = *o.PresencePenalty
		r.Sources["presencePenalty"] = source
	}
	if o.FrequencyPenalty != nil {
		r.FrequencyPenalty = *o.FrequencyPenalty
		r.Sources["frequencyPenalty"] = source
	}
}

// baseline builds the lowest tier from the personality object. Fields the
// personality does not model start from hardcoded values.
func baseline(p *persona.Personality) *Resolved {
	r := &Resolved{
		Model:       p.Model,
		Temperature: p.Temperature,
		TopP:        1.0,
		MaxTokens:   p.MaxTokens,
		Sources: map[string]string{
			"model":            SourcePersonality,
			"temperature":      SourcePersonality,
			"topP":             SourceHardcoded,
			"maxTokens":        SourcePersonality,
			"presencePenalty":  SourceHardcoded,
			"frequencyPenalty": SourceHardcoded,
		},
	}
	return r
}

// Resolver memoizes resolved LLM parameter sets in a TTL cache keyed by
// (user, personality name). Same degradation rules as the config cascade:
// a store failure yields the personality baseline, never an error.
type Resolver struct {
	store  Store
	logger *slog.Logger
	cache  *ttlmap.Map[*Resolved]
}

// NewResolver starts the background sweep; call StopCleanup on shutdown.
func NewResolver(store Store, logger *slog.Logger, ttl time.Duration) *Resolver {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		store:  store,
		logger: logger.With("system", "llmconfig"),
		cache:  ttlmap.New[*Resolved](ttl),
	}
	r.cache.StartSweep(defaultSweepInterval)
	return r
}

func cacheKey(discordID, personaName string) string {
	if discordID == "" {
		discordID = sentinelAnon
	}
	return discordID + keySep + personaName
}

// Resolve returns the effective LLM parameters for discordID talking to p.
// An empty discordID skips the store entirely and yields the baseline.
func (r *Resolver) Resolve(ctx context.Context, discordID string, p *persona.Personality) *Resolved {
	key := cacheKey(discordID, p.Name)
	if res, ok := r.cache.Get(key); ok {
		cacheHits.Inc()
		return res
	}
	cacheMisses.Inc()

	res := baseline(p)
	if discordID != "" {
		rows, err := r.store.Overrides(ctx, discordID, p.Name)
		if err != nil {
			fetchErrors.Inc()
			r.logger.Warn("llm override fetch failed", "discordID", discordID, "err", err)
		} else {
			r.applyRow(res, rows.Default, SourceUserDefault)
			r.applyRow(res, rows.Personality, SourceUserPersonality)
		}
	}

	r.cache.Set(key, res)
	return res
}

func (r *Resolver) applyRow(res *Resolved, row *Row, source string) {
	if row == nil {
		return
	}
	o, err := decodeOverrides(row.Overrides)
	if err != nil {
		rowsRejected.Inc()
		r.logger.Warn("skipping invalid llm override row", "configID", row.ConfigID, "source", source, "err", err)
		return
	}
	res.apply(o, source)
	res.ConfigIDs = append(res.ConfigIDs, row.ConfigID)
}

// InvalidateUser evicts every cached resolution for discordID.
func (r *Resolver) InvalidateUser(discordID string) int {
	prefix := discordID + keySep
	return r.cache.DeleteFunc(func(key string, _ *Resolved) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// InvalidateConfig evicts every cached resolution that one store row
// contributed to.
func (r *Resolver) InvalidateConfig(configID string) int {
	return r.cache.DeleteFunc(func(_ string, res *Resolved) bool {
		return slices.Contains(res.ConfigIDs, configID)
	})
}

func (r *Resolver) ClearCache() {
	r.cache.Clear()
}

func (r *Resolver) CacheLen() int {
	return r.cache.Len()
}

func (r *Resolver) StopCleanup() {
	r.cache.StopSweep()
}
