package objectionary

import (
	"context"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/objectionary/eoprobe/internal/ctxlog"
)

type cacheEntry struct {
	obj   Object
	found bool
}

// Cached memoizes lookups of its origin for one commit hash. Both hits and
// misses are remembered; errors are not, so a failed lookup is retried.
// Concurrent lookups of one name share a single origin call.
type Cached struct {
	origin Objectionary
	hash   string
	cache  *gocache.Cache
	group  singleflight.Group
}

// NewCached wraps origin. Entries never expire: the cache lives as long as
// the run that owns it.
func NewCached(origin Objectionary, hash string) *Cached {
	return &Cached{
		origin: origin,
		hash:   hash,
		cache:  gocache.New(gocache.NoExpiration, 0),
	}
}

func (c *Cached) key(name string) string {
	return c.hash + "/" + name
}

// Get implements Objectionary.
func (c *Cached) Get(ctx context.Context, name string) (Object, bool, error) {
	key := c.key(name)
	if v, ok := c.cache.Get(key); ok {
		if e, ok := v.(cacheEntry); ok {
			ctxlog.FromContext(ctx).Debug("objectionary cache hit", "object", name, "found", e.found)
			return e.obj, e.found, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A call that finished between the lookup above and Do has filled the cache.
		if v, ok := c.cache.Get(key); ok {
			return v, nil
		}
		obj, found, err := c.origin.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		e := cacheEntry{obj: obj, found: found}
		c.cache.Set(key, e, gocache.NoExpiration)
		return e, nil
	})
	if err != nil {
		return Object{}, false, err
	}
	e, ok := v.(cacheEntry)
	if !ok {
		return Object{}, false, fmt.Errorf("unexpected cache entry %T for %s", v, name)
	}
	return e.obj, e.found, nil
}

// Len returns the number of cached lookups.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}
