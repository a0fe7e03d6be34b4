package apikey

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

func testChecker(t *testing.T) *Checker {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	c, err := NewChecker(db, 100, time.Minute)
	require.NoError(t, err)
	return c
}

func TestCheckerBasics(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	c := testChecker(t)

	_, err := c.Check(ctx, "glm_secret_1")
	assert.ErrorIs(err, ErrUnknownKey)

	issued, err := c.Issue(ctx, "glm_secret_1", "123456789012345678", "gateway")
	require.NoError(err)
	assert.Equal(HashKey("glm_secret_1"), issued.KeyHash)

	k, err := c.Check(ctx, "glm_secret_1")
	require.NoError(err)
	assert.Equal("123456789012345678", k.DiscordID)

	// second check is served from cache: disabling in the store alone does
	// not bite until the cache is invalidated
	require.NoError(c.Disable(ctx, "123456789012345678"))
	_, err = c.Check(ctx, "glm_secret_1")
	require.NoError(err)

	c.InvalidateUser("123456789012345678")
	_, err = c.Check(ctx, "glm_secret_1")
	assert.ErrorIs(err, ErrUnknownKey)
}

func TestCheckerInvalidateUserScope(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	c := testChecker(t)

	_, err := c.Issue(ctx, "key-a", "1", "")
	require.NoError(err)
	_, err = c.Issue(ctx, "key-b", "2", "")
	require.NoError(err)
	_, err = c.Check(ctx, "key-a")
	require.NoError(err)
	_, err = c.Check(ctx, "key-b")
	require.NoError(err)

	c.InvalidateUser("1")
	assert.Equal(1, c.cache.Len())

	c.Reset()
	assert.Equal(0, c.cache.Len())
}

func TestBindAPIKeyEvents(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := testChecker(t)
	svc := invalidation.NewAPIKeyService(client, nil)
	defer svc.Unsubscribe()
	require.NoError(Bind(ctx, svc, c))

	_, err = c.Issue(ctx, "key-a", "1", "")
	require.NoError(err)
	_, err = c.Check(ctx, "key-a")
	require.NoError(err)

	require.NoError(svc.InvalidateUser(ctx, "1"))
	assert.Eventually(func() bool { return c.cache.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}
