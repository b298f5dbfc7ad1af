package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyDeterministicForEqualPairs(t *testing.T) {
	assert.Equal(t, Key("summarize doc", "writer"), Key("summarize doc", "writer"))
}

func TestKeyDiffersOnTaskOrAgent(t *testing.T) {
	base := Key("summarize doc", "writer")
	assert.NotEqual(t, base, Key("summarize doc", "editor"))
	assert.NotEqual(t, base, Key("translate doc", "writer"))
}

func TestMemoryStoreGetMissOnEmpty(t *testing.T) {
	c := NewMemoryStore(time.Minute)
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestMemoryStoreSetThenGetRoundTrips(t *testing.T) {
	c := NewMemoryStore(time.Minute)
	c.Set("k1", "hello")
	v, ok := c.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestMemoryStoreExpiresAfterTTL(t *testing.T) {
	c := NewMemoryStore(10 * time.Millisecond)
	c.Set("k1", "hello")
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get("k1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryStoreZeroTTLNeverExpires(t *testing.T) {
	c := NewMemoryStore(0)
	c.Set("k1", "hello")
	time.Sleep(20 * time.Millisecond)
	v, ok := c.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestMemoryStoreSetOverwritesExistingValue(t *testing.T) {
	c := NewMemoryStore(time.Minute)
	c.Set("k1", "first")
	c.Set("k1", "second")
	v, ok := c.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestMemoryStoreValuesDoNotLeakBetweenKeys(t *testing.T) {
	c := NewMemoryStore(time.Minute)
	c.Set("k1", "v1")
	c.Set("k2", "v2")
	v, ok := c.Get("k2")
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
}
