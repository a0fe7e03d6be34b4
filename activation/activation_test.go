package activation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/glimmerbot/glimmer/invalidation"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	c, err := NewCache(db, 100, time.Minute)
	require.NoError(t, err)
	return c
}

func TestActivationLifecycle(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	c := testCache(t)

	st, err := c.Lookup(ctx, "111")
	require.NoError(err)
	assert.False(st.Active)

	require.NoError(c.Activate(ctx, "111", "g1", "persona-1", "123456789012345678"))
	st, err = c.Lookup(ctx, "111")
	require.NoError(err)
	assert.True(st.Active)
	assert.Equal("persona-1", st.PersonalityID)

	// re-activating with a different personality replaces the pin
	require.NoError(c.Activate(ctx, "111", "g1", "persona-2", "123456789012345678"))
	st, err = c.Lookup(ctx, "111")
	require.NoError(err)
	assert.Equal("persona-2", st.PersonalityID)

	require.NoError(c.Deactivate(ctx, "111"))
	st, err = c.Lookup(ctx, "111")
	require.NoError(err)
	assert.False(st.Active)
}

func TestActivationNegativeCaching(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	c := testCache(t)

	_, err := c.Lookup(ctx, "222")
	require.NoError(err)
	assert.Equal(1, c.lru.Len())

	// the negative entry is served from cache until invalidated
	_, err = c.Lookup(ctx, "222")
	require.NoError(err)
	c.Invalidate("222")
	assert.Equal(0, c.lru.Len())
}

func TestBindActivationEvents(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := testCache(t)
	svc := invalidation.NewActivationService(client, nil)
	defer svc.Unsubscribe()
	require.NoError(Bind(ctx, svc, c))

	_, err = c.Lookup(ctx, "333")
	require.NoError(err)
	require.NoError(svc.InvalidateChannel(ctx, "333"))
	assert.Eventually(func() bool { return c.lru.Len() == 0 }, 5*time.Second, 10*time.Millisecond)

	_, err = c.Lookup(ctx, "333")
	require.NoError(err)
	_, err = c.Lookup(ctx, "444")
	require.NoError(err)
	require.NoError(svc.InvalidateAll(ctx))
	assert.Eventually(func() bool { return c.lru.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}
