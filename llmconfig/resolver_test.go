package llmconfig

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/glimmerbot/glimmer/persona"
)

type fakeStore struct {
	mu    sync.Mutex
	calls int
	rows  Rows
	err   error
}

func (f *fakeStore) Overrides(ctx context.Context, discordID, personaName string) (Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Rows{}, f.err
	}
	return f.rows, nil
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func strPtr(v string) *string { return &v }
func floatPtr(v float64) *float64 { return &v }

func testPersonality() *persona.Personality {
	return &persona.Personality{
		ID:          "3f2c8a9e-1d4b-4e6f-8a7c-9b0d1e2f3a4b",
		Name:        "lilith",
		Model:       "claude-3-5-sonnet",
		Temperature: 0.9,
		MaxTokens:   1024,
	}
}

func testResolver(store Store) *Resolver {
	r := NewResolver(store, nil, time.Minute)
	r.StopCleanup()
	return r
}

func TestResolveBaselineOnly(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := &fakeStore{}
	r := testResolver(store)

	// anonymous resolution never touches the store
	res := r.Resolve(ctx, "", testPersonality())
	assert.Equal(0, store.callCount())
	assert.Equal("claude-3-5-sonnet", res.Model)
	assert.Equal(SourcePersonality, res.Sources["model"])
	assert.Equal(1.0, res.TopP)
	assert.Equal(SourceHardcoded, res.Sources["topP"])
}

func TestResolveMergesUserTiers(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := &fakeStore{rows: Rows{
		Default:     &Row{ConfigID: "7", Overrides: json.RawMessage(`{"temperature":0.5,"topP":0.95}`)},
		Personality: &Row{ConfigID: "8", Overrides: json.RawMessage(`{"model":"claude-3-opus","temperature":0.2}`)},
	}}
	r := testResolver(store)

	res := r.Resolve(ctx, "123", testPersonality())
	assert.Equal("claude-3-opus", res.Model)
	assert.Equal(SourceUserPersonality, res.Sources["model"])
	assert.Equal(0.2, res.Temperature)
	assert.Equal(SourceUserPersonality, res.Sources["temperature"])
	assert.Equal(0.95, res.TopP)
	assert.Equal(SourceUserDefault, res.Sources["topP"])
	assert.Equal(1024, res.MaxTokens)
	assert.Equal(SourcePersonality, res.Sources["maxTokens"])
	assert.ElementsMatch([]string{"7", "8"}, res.ConfigIDs)
}

func TestResolveCachesAndInvalidates(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := &fakeStore{rows: Rows{
		Default: &Row{ConfigID: "7", Overrides: json.RawMessage(`{"temperature":0.5}`)},
	}}
	r := testResolver(store)
	p := testPersonality()

	first := r.Resolve(ctx, "123", p)
	second := r.Resolve(ctx, "123", p)
	assert.Same(first, second)
	assert.Equal(1, store.callCount())

	// invalidating a different user leaves the entry alone
	assert.Equal(0, r.InvalidateUser("456"))
	assert.Equal(1, r.CacheLen())

	assert.Equal(1, r.InvalidateUser("123"))
	r.Resolve(ctx, "123", p)
	assert.Equal(2, store.callCount())

	// invalidation by the contributing config row
	assert.Equal(1, r.InvalidateConfig("7"))
	assert.Equal(0, r.InvalidateConfig("999"))
	r.Resolve(ctx, "123", p)
	assert.Equal(3, store.callCount())

	r.ClearCache()
	assert.Equal(0, r.CacheLen())
}

func TestResolveStoreFailureDegrades(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := &fakeStore{err: errors.New("store down")}
	r := testResolver(store)

	res := r.Resolve(ctx, "123", testPersonality())
	assert.Equal("claude-3-5-sonnet", res.Model)
	assert.Equal(SourcePersonality, res.Sources["model"])
	assert.Empty(res.ConfigIDs)
}

func TestResolveInvalidRowSkippedEntirely(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := &fakeStore{rows: Rows{
		Default:     &Row{ConfigID: "7", Overrides: json.RawMessage(`{"temperature":0.5}`)},
		Personality: &Row{ConfigID: "8", Overrides: json.RawMessage(`{"temperature":0.2,"jailbreak":true}`)},
	}}
	r := testResolver(store)

	res := r.Resolve(ctx, "123", testPersonality())
	// the malformed row contributes nothing at all
	assert.Equal(0.5, res.Temperature)
	assert.Equal(SourceUserDefault, res.Sources["temperature"])
	assert.Equal([]string{"7"}, res.ConfigIDs)
}

func TestOverridesModelAlwaysFromOverride(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := &fakeStore{rows: Rows{
		Default: &Row{ConfigID: "7", Overrides: json.RawMessage(`{"model":"gpt-4o"}`)},
	}}
	r := testResolver(store)

	res := r.Resolve(ctx, "123", testPersonality())
	assert.Equal("gpt-4o", res.Model)
	assert.Equal(SourceUserDefault, res.Sources["model"])
}
