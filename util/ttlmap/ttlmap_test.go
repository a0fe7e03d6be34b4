package ttlmap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMapBasics(t *testing.T) {
	assert := assert.New(t)

	m := New[string](time.Minute)
	_, ok := m.Get("a")
	assert.False(ok)

	m.Set("a", "one")
	v, ok := m.Get("a")
	assert.True(ok)
	assert.Equal("one", v)
	assert.Equal(1, m.Len())

	m.Set("a", "two")
	v, _ = m.Get("a")
	assert.Equal("two", v)
	assert.Equal(1, m.Len())

	m.Delete("a")
	_, ok = m.Get("a")
	assert.False(ok)
}

func TestMapExpiry(t *testing.T) {
	assert := assert.New(t)

	now := time.Now()
	m := New[int](time.Minute)
	m.TimeNow = func() time.Time { return now }

	m.Set("k", 42)
	v, ok := m.Get("k")
	assert.True(ok)
	assert.Equal(42, v)

	// entry expired but not swept: still a miss on read
	now = now.Add(2 * time.Minute)
	_, ok = m.Get("k")
	assert.False(ok)
	assert.Equal(1, m.Len())

	// sweep reclaims it
	assert.Equal(1, m.Sweep())
	assert.Equal(0, m.Len())
}

func TestMapDeleteFunc(t *testing.T) {
	assert := assert.New(t)

	m := New[int](time.Minute)
	m.Set("user1:a", 1)
	m.Set("user1:b", 2)
	m.Set("user2:a", 3)

	n := m.DeleteFunc(func(key string, val int) bool {
		return key[:5] == "user1"
	})
	assert.Equal(2, n)
	assert.Equal(1, m.Len())
	_, ok := m.Get("user2:a")
	assert.True(ok)
}

func TestMapSweepLifecycle(t *testing.T) {
	m := New[int](time.Minute)
	m.StartSweep(10 * time.Millisecond)
	m.StartSweep(10 * time.Millisecond) // no-op
	m.StopSweep()
	m.StopSweep() // idempotent
}
