package search

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"episode-finder/internal/models"
)

// UnboundedLimit is the engine page size used for results that are cached
// whole.
const UnboundedLimit = 99_999_999

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "episode_finder",
		Subsystem: "search_cache",
		Name:      "hits_total",
		Help:      "Search requests answered from the result cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "episode_finder",
		Subsystem: "search_cache",
		Name:      "misses_total",
		Help:      "Search requests dispatched to the engine.",
	})
)

// Key identifies a cached result: optional query text, tag set and length
// bounds. Paging parameters are not part of the key.
type Key struct {
	Query     *string
	Tags      []models.Tag
	MinLength *int
	MaxLength *int
}

// String renders a stable cache key. Tags are sorted so the key does not
// depend on the order they were given in.
func (k Key) String() string {
	tags := models.TagStrings(k.Tags)
	sort.Strings(tags)

	var b strings.Builder
	b.WriteString("q=")
	if k.Query != nil {
		b.WriteString(strconv.Quote(*k.Query))
	}
	b.WriteString("|tags=")
	for i, tag := range tags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(tag))
	}
	b.WriteString("|min=")
	writeBound(&b, k.MinLength)
	b.WriteString("|max=")
	writeBound(&b, k.MaxLength)
	return b.String()
}

func writeBound(b *strings.Builder, bound *int) {
	if bound != nil {
		b.WriteString(strconv.Itoa(*bound))
	}
}

// FetchFunc performs one engine request for a page of results.
type FetchFunc func(ctx context.Context, limit, offset int) (Result, error)

// ResultCache keeps whole, unpaged engine results in an LRU and answers
// paged requests by slicing a clone of a cached result.
//
// The mutex guards the LRU only and is never held while the engine is
// called. Concurrent misses for the same unpaged key share one engine call.
type ResultCache struct {
	mu     sync.Mutex
	lru    *simplelru.LRU[string, Result]
	flight singleflight.Group
}

// NewResultCache returns a cache holding up to capacity results. A capacity
// of zero or less disables caching.
func NewResultCache(capacity int) *ResultCache {
	c := &ResultCache{}
	if capacity > 0 {
		// NewLRU only fails for non-positive sizes.
		c.lru, _ = simplelru.NewLRU[string, Result](capacity, nil)
	}
	return c
}

// Enabled reports whether results are retained.
func (c *ResultCache) Enabled() bool {
	return c.lru != nil
}

// Len returns the number of cached results.
func (c *ResultCache) Len() int {
	if !c.Enabled() {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge drops every cached result.
func (c *ResultCache) Purge() {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

func (c *ResultCache) get(key string) (Result, bool) {
	if !c.Enabled() {
		return Result{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

func (c *ResultCache) add(key string, result Result) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, result)
}

// Search answers the request for key from the cache when possible and
// otherwise calls fetch. Only unpaged requests (nil limit, zero offset) are
// stored. A cancelled ctx returns ctx.Err() without aborting a fetch other
// callers are waiting on.
func (c *ResultCache) Search(ctx context.Context, key Key, limit *int, offset int, fetch FetchFunc) (Result, error) {
	k := key.String()
	if cached, ok := c.get(k); ok {
		cacheHitsTotal.Inc()
		return cached.Page(offset, limit), nil
	}
	cacheMissesTotal.Inc()

	if limit != nil || offset != 0 || !c.Enabled() {
		pageLimit := UnboundedLimit
		if limit != nil {
			pageLimit = *limit
		}
		return fetch(ctx, pageLimit, offset)
	}

	// The shared fetch outlives any single caller; each caller only waits
	// for as long as its own context allows.
	shared := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(k, func() (any, error) {
		result, err := fetch(shared, UnboundedLimit, 0)
		if err != nil {
			return Result{}, err
		}
		c.add(k, result)
		return result, nil
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		return res.Val.(Result).Clone(), nil
	}
}
