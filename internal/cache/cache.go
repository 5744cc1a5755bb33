package cache

import (
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Cache maps opaque string keys to values that expire after a fixed TTL.
// Keys conventionally start with the task id followed by ":" so every entry
// of a task can be dropped at once.
type Cache[V any] struct {
	items *ttlcache.Cache[string, V]
}

func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		items: ttlcache.New[string, V](
			ttlcache.WithTTL[string, V](ttl),
			ttlcache.WithDisableTouchOnHit[string, V](),
		),
	}
}

// Key builds the "<taskID>:<part>:<part>" key layout.
func Key(taskID string, parts ...string) string {
	return taskID + ":" + strings.Join(parts, ":")
}

// Get returns the value if it is still fresh. An expired entry is evicted.
func (c *Cache[V]) Get(key string) (V, bool) {
	item := c.items.Get(key)
	if item == nil || item.IsExpired() {
		c.items.Delete(key)
		var zero V
		return zero, false
	}
	return item.Value(), true
}

func (c *Cache[V]) Set(key string, value V) {
	c.items.Set(key, value, ttlcache.DefaultTTL)
}

func (c *Cache[V]) Invalidate(key string) {
	c.items.Delete(key)
}

// InvalidatePrefix drops every key starting with prefix and reports how many
// entries were removed.
func (c *Cache[V]) InvalidatePrefix(prefix string) int {
	return c.deleteMatching(func(key string) bool { return strings.HasPrefix(key, prefix) })
}

func (c *Cache[V]) InvalidateContaining(substr string) int {
	return c.deleteMatching(func(key string) bool { return strings.Contains(key, substr) })
}

func (c *Cache[V]) Len() int {
	c.items.DeleteExpired()
	return c.items.Len()
}

func (c *Cache[V]) deleteMatching(match func(string) bool) int {
	n := 0
	for _, key := range c.items.Keys() {
		if match(key) {
			c.items.Delete(key)
			n++
		}
	}
	return n
}
