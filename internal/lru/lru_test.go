package lru_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optimode/mailprobe/internal/lru"
)

func TestCache_GetPut(t *testing.T) {
	c := lru.New[int](4)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Put("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	c.Put("a", 2)
	v, _ = c.Get("a")
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestCache_EvictsOldest(t *testing.T) {
	c := lru.New[int](3)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	// touch "a" so "b" becomes the oldest
	_, _ = c.Get("a")
	c.Put("d", 4)

	_, ok := c.Get("b")
	assert.False(t, ok)
	for _, k := range []string{"a", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, "key %q", k)
	}
	assert.Equal(t, 3, c.Len())
}

func TestCache_Delete(t *testing.T) {
	c := lru.New[int](2)
	c.Put("a", 1)
	c.Delete("a")
	c.Delete("missing")
	assert.Equal(t, 0, c.Len())
}

func TestCache_BoundHolds(t *testing.T) {
	c := lru.New[int](16)
	for i := 0; i < 1000; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}
	assert.Equal(t, 16, c.Len())
}
