package exprtmpl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTemplateCacheLRU(t *testing.T) {
	var evicted []string
	cache := NewTemplateCacheWithConfig(CacheConfig{
		MaxSize: 2,
		OnEvict: func(key string) { evicted = append(evicted, key) },
	})
	a, b, c := &Template{name: "a"}, &Template{name: "b"}, &Template{name: "c"}

	cache.Set("a", a)
	cache.Set("b", b)
	got, ok := cache.Get("a")
	assert.True(t, ok)
	assert.Same(t, a, got)

	// b is now least recently used
	cache.Set("c", c)
	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, 2, cache.Size())
	_, ok = cache.Get("b")
	assert.False(t, ok)

	// replacing an entry does not evict
	a2 := &Template{name: "a"}
	cache.Set("a", a2)
	got, _ = cache.Get("a")
	assert.Same(t, a2, got)
	assert.Equal(t, []string{"b"}, evicted)

	cache.Remove("c")
	cache.Remove("c")
	assert.Equal(t, []string{"b", "c"}, evicted)

	cache.Clear()
	assert.Equal(t, []string{"b", "c", "a"}, evicted)
	assert.Zero(t, cache.Size())
}

func TestTemplateCacheTTL(t *testing.T) {
	var evicted []string
	cache := NewTemplateCacheWithConfig(CacheConfig{
		MaxSize: 10,
		TTL:     time.Minute,
		OnEvict: func(key string) { evicted = append(evicted, key) },
	})
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	cache.Set("a", &Template{name: "a"})
	clock = clock.Add(30 * time.Second)
	_, ok := cache.Get("a")
	assert.True(t, ok)

	clock = clock.Add(31 * time.Second)
	_, ok = cache.Get("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"a"}, evicted)
	assert.Zero(t, cache.Size())
}

func TestTemplateCacheDisabled(t *testing.T) {
	cache := NewTemplateCacheWithConfig(CacheConfig{MaxSize: 0})
	cache.Set("a", &Template{name: "a"})
	_, ok := cache.Get("a")
	assert.False(t, ok)
	assert.Zero(t, cache.Size())
}

func TestNewTemplateCacheUsesGlobalConfig(t *testing.T) {
	original := GetGlobalConfig()
	t.Cleanup(func() { SetGlobalConfig(original) })

	SetGlobalConfig(&Config{CacheMaxSize: 1, LogLevel: "info", MaxIncludeDepth: 4})
	cache := NewTemplateCache()
	cache.Set("a", &Template{name: "a"})
	cache.Set("b", &Template{name: "b"})
	assert.Equal(t, 1, cache.Size())
}
