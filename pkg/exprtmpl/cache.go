package exprtmpl

import (
	"container/list"
	"sync"
	"time"
)

// CacheConfig contains configuration options for the template cache
type CacheConfig struct {
	// MaxSize is the maximum number of templates to cache. 0 disables caching.
	MaxSize int
	// TTL is the time-to-live for cached templates. 0 means no expiration.
	TTL time.Duration
	// OnEvict is called with the key of every entry that leaves the cache.
	OnEvict func(key string)
}

// TemplateCache is an LRU cache of compiled templates with optional
// expiry.
type TemplateCache struct {
	mu     sync.Mutex
	cache  map[string]*cacheEntry
	lru    *list.List
	config CacheConfig
	now    func() time.Time
}

type cacheEntry struct {
	key      string
	template *Template
	expiry   time.Time
	element  *list.Element
}

// NewTemplateCache creates a new template cache configured from the global config
func NewTemplateCache() *TemplateCache {
	config := GetGlobalConfig()
	return NewTemplateCacheWithConfig(CacheConfig{
		MaxSize: config.CacheMaxSize,
		TTL:     config.CacheTTL,
	})
}

// NewTemplateCacheWithConfig creates a new template cache with the given configuration
func NewTemplateCacheWithConfig(config CacheConfig) *TemplateCache {
	return &TemplateCache{
		cache:  make(map[string]*cacheEntry),
		lru:    list.New(),
		config: config,
		now:    time.Now,
	}
}

// Get returns a cached template. Expired entries are evicted on access.
func (tc *TemplateCache) Get(key string) (*Template, bool) {
	tc.mu.Lock()
	entry, exists := tc.cache[key]
	if !exists {
		tc.mu.Unlock()
		return nil, false
	}
	if tc.config.TTL > 0 && tc.now().After(entry.expiry) {
		tc.removeLocked(entry)
		tc.mu.Unlock()
		tc.evicted(key)
		return nil, false
	}
	tc.lru.MoveToFront(entry.element)
	tc.mu.Unlock()
	return entry.template, true
}

// Set adds a template to the cache
func (tc *TemplateCache) Set(key string, template *Template) {
	if tc.config.MaxSize == 0 {
		return
	}

	var evictedKey string
	tc.mu.Lock()
	if existing, exists := tc.cache[key]; exists {
		existing.template = template
		existing.expiry = tc.expiry()
		tc.lru.MoveToFront(existing.element)
		tc.mu.Unlock()
		return
	}

	if tc.lru.Len() >= tc.config.MaxSize {
		if oldest := tc.lru.Back(); oldest != nil {
			old := oldest.Value.(*cacheEntry)
			tc.removeLocked(old)
			evictedKey = old.key
		}
	}

	entry := &cacheEntry{
		key:      key,
		template: template,
		expiry:   tc.expiry(),
	}
	entry.element = tc.lru.PushFront(entry)
	tc.cache[key] = entry
	tc.mu.Unlock()

	if evictedKey != "" {
		tc.evicted(evictedKey)
	}
}

// Remove removes a template from the cache
func (tc *TemplateCache) Remove(key string) {
	tc.mu.Lock()
	entry, exists := tc.cache[key]
	if exists {
		tc.removeLocked(entry)
	}
	tc.mu.Unlock()
	if exists {
		tc.evicted(key)
	}
}

// Clear removes all templates from the cache
func (tc *TemplateCache) Clear() {
	tc.mu.Lock()
	keys := make([]string, 0, len(tc.cache))
	for key := range tc.cache {
		keys = append(keys, key)
	}
	tc.cache = make(map[string]*cacheEntry)
	tc.lru = list.New()
	tc.mu.Unlock()

	for _, key := range keys {
		tc.evicted(key)
	}
}

// Size returns the current number of cached templates
func (tc *TemplateCache) Size() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.cache)
}

func (tc *TemplateCache) expiry() time.Time {
	if tc.config.TTL <= 0 {
		return time.Time{}
	}
	return tc.now().Add(tc.config.TTL)
}

func (tc *TemplateCache) removeLocked(entry *cacheEntry) {
	delete(tc.cache, entry.key)
	tc.lru.Remove(entry.element)
}

// evicted runs the callback outside the lock.
func (tc *TemplateCache) evicted(key string) {
	if tc.config.OnEvict != nil {
		tc.config.OnEvict(key)
	}
}
