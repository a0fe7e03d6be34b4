package configcascade

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeStore serves canned tier blobs and counts calls per tier.
type fakeStore struct {
	mu    sync.Mutex
	calls map[string]int

	admin           json.RawMessage
	personality     json.RawMessage
	channel         json.RawMessage
	userDefault     json.RawMessage
	userPersonality json.RawMessage

	failTier string
}

var errStore = errors.New("store unavailable")

func newFakeStore() *fakeStore {
	return &fakeStore{calls: make(map[string]int)}
}

func (f *fakeStore) record(tier string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[tier]++
	if f.failTier == tier {
		return errStore
	}
	return nil
}

func (f *fakeStore) callCount(tier string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[tier]
}

func (f *fakeStore) AdminOverrides(ctx context.Context) (json.RawMessage, error) {
	if err := f.record(SourceAdmin); err != nil {
		return nil, err
	}
	return f.admin, nil
}

func (f *fakeStore) PersonalityOverrides(ctx context.Context, personalityID string) (json.RawMessage, error) {
	if err := f.record(SourcePersonality); err != nil {
		return nil, err
	}
	return f.personality, nil
}

func (f *fakeStore) ChannelOverrides(ctx context.Context, channelID string) (json.RawMessage, error) {
	if err := f.record(SourceChannel); err != nil {
		return nil, err
	}
	return f.channel, nil
}

func (f *fakeStore) UserOverrides(ctx context.Context, discordID, personalityID string) (UserOverrideRows, error) {
	if err := f.record(SourceUserDefault); err != nil {
		return UserOverrideRows{}, err
	}
	return UserOverrideRows{Default: f.userDefault, Personality: f.userPersonality}, nil
}

const (
	testUser        = "123456789012345678"
	testPersonality = "3f2c8a9e-1d4b-4e6f-8a7c-9b0d1e2f3a4b"
	testChannel     = "987654321098765432"
)

func testResolver(store OverrideStore) *Resolver {
	r := NewResolver(store, nil, time.Minute)
	r.StopCleanup()
	return r
}

func TestMergePrecedence(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := newFakeStore()
	store.admin = json.RawMessage(`{"maxMessages":75,"temperature":0.7}`)
	store.personality = json.RawMessage(`{"maxMessages":30,"model":"claude-3-5-sonnet"}`)
	store.userPersonality = json.RawMessage(`{"maxMessages":10}`)

	r := testResolver(store)
	res := r.Resolve(ctx, testUser, testPersonality, "")

	// highest tier wins per field
	assert.Equal(10, res.MaxMessages)
	assert.Equal(SourceUserPersonality, res.Sources["maxMessages"])

	// lower tiers show through on fields the higher tiers left alone
	assert.Equal(0.7, res.Temperature)
	assert.Equal(SourceAdmin, res.Sources["temperature"])
	assert.Equal("claude-3-5-sonnet", res.Model)
	assert.Equal(SourcePersonality, res.Sources["model"])

	// untouched fields fall back to the hardcoded baseline
	assert.Equal(2048, res.MaxTokens)
	assert.Equal(SourceHardcoded, res.Sources["maxTokens"])

	// every recognized field has a value and a source
	for _, name := range FieldNames {
		assert.Contains(res.Sources, name)
	}
}

func TestResolveSkipsInapplicableTiers(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := newFakeStore()
	r := testResolver(store)

	r.Resolve(ctx, "", "", "")
	assert.Equal(1, store.callCount(SourceAdmin))
	assert.Equal(0, store.callCount(SourcePersonality))
	assert.Equal(0, store.callCount(SourceChannel))
	assert.Equal(0, store.callCount(SourceUserDefault))

	r.Resolve(ctx, testUser, "", "")
	assert.Equal(1, store.callCount(SourceUserDefault))
	assert.Equal(0, store.callCount(SourcePersonality))
}

func TestCacheHitReturnsIdenticalObject(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := newFakeStore()
	store.admin = json.RawMessage(`{"maxMessages":75}`)
	r := testResolver(store)

	first := r.Resolve(ctx, testUser, testPersonality, testChannel)
	second := r.Resolve(ctx, testUser, testPersonality, testChannel)
	assert.Same(first, second)
	assert.Equal(1, store.callCount(SourceAdmin))

	// differing in one component is a different key
	other := r.Resolve(ctx, testUser, testPersonality, "")
	assert.NotSame(first, other)
	assert.Equal(2, store.callCount(SourceAdmin))
}

func TestTTLExpiryRequeries(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := newFakeStore()
	r := testResolver(store)

	now := time.Now()
	r.cache.TimeNow = func() time.Time { return now }

	r.Resolve(ctx, testUser, "", "")
	r.Resolve(ctx, testUser, "", "")
	assert.Equal(1, store.callCount(SourceAdmin))

	now = now.Add(2 * time.Minute)
	r.Resolve(ctx, testUser, "", "")
	assert.Equal(2, store.callCount(SourceAdmin))
}

func TestTargetedInvalidation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := newFakeStore()
	r := testResolver(store)

	r.Resolve(ctx, testUser, testPersonality, testChannel)
	r.Resolve(ctx, testUser, testPersonality, "555555")
	r.Resolve(ctx, "42", testPersonality, testChannel)
	assert.Equal(3, r.CacheLen())

	// channel invalidation leaves other channels for the same user intact
	n := r.InvalidateChannel(testChannel)
	assert.Equal(2, n)
	assert.Equal(1, r.CacheLen())
	assert.Equal(3, store.callCount(SourceAdmin))
	r.Resolve(ctx, testUser, testPersonality, "555555")
	assert.Equal(3, store.callCount(SourceAdmin)) // still cached

	r.Resolve(ctx, testUser, testPersonality, testChannel)
	n = r.InvalidateUser(testUser)
	assert.Equal(2, n)

	r.Resolve(ctx, testUser, testPersonality, testChannel)
	n = r.InvalidatePersonality(testPersonality)
	assert.Equal(1, n)

	r.Resolve(ctx, testUser, testPersonality, testChannel)
	r.ClearCache()
	assert.Equal(0, r.CacheLen())
}

func TestInvalidationMatchesBySegmentNotSubstring(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := newFakeStore()
	r := testResolver(store)

	// "12" is a prefix of "123": substring matching would over-invalidate
	r.Resolve(ctx, "12", "", "")
	r.Resolve(ctx, "123", "", "")
	// and a channel id equal to a user id must not cross-match positions
	r.Resolve(ctx, "", "", "12")

	n := r.InvalidateUser("12")
	assert.Equal(1, n)
	assert.Equal(2, r.CacheLen())
}

func TestPartialTierFailureDegrades(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := newFakeStore()
	store.admin = json.RawMessage(`{"maxMessages":75}`)
	store.channel = json.RawMessage(`{"maxMessages":20}`)
	store.failTier = SourceChannel

	r := testResolver(store)
	res := r.Resolve(ctx, testUser, "", testChannel)

	// the failed channel tier contributes nothing; admin shows through
	assert.Equal(75, res.MaxMessages)
	assert.Equal(SourceAdmin, res.Sources["maxMessages"])
	for _, name := range FieldNames {
		assert.Contains(res.Sources, name)
	}
}

func TestInvalidTierSkippedEntirely(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := newFakeStore()
	store.admin = json.RawMessage(`{"maxMessages":75}`)
	// one valid field mixed with one unknown field: the whole tier is out
	store.personality = json.RawMessage(`{"maxMessages":30,"turboMode":true}`)

	r := testResolver(store)
	res := r.Resolve(ctx, "", testPersonality, "")

	assert.Equal(75, res.MaxMessages)
	assert.Equal(SourceAdmin, res.Sources["maxMessages"])
}

func TestInvalidTierWrongType(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := newFakeStore()
	store.admin = json.RawMessage(`{"maxMessages":"many"}`)

	r := testResolver(store)
	res := r.Resolve(ctx, "", "", "")
	assert.Equal(50, res.MaxMessages)
	assert.Equal(SourceHardcoded, res.Sources["maxMessages"])
}

func TestCacheKeySentinels(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("anon:none:no-ch", cacheKey("", "", ""))
	assert.Equal(testUser+":none:no-ch", cacheKey(testUser, "", ""))
	assert.NotEqual(cacheKey(testUser, "", ""), cacheKey("", testUser, ""))
}
