// Package framecache memoizes decoded frames per (source, frame index) and
// coalesces concurrent fetches of the same frame.
package framecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/user/dusk/pkg/media"
	"github.com/user/dusk/pkg/ports"
)

// ErrInvalidCapacity is returned for a non-positive capacity.
var ErrInvalidCapacity = errors.New("framecache: capacity must be positive")

// Key identifies a cached frame. Index is the source time rounded to the
// nearest frame boundary, so any time within half a period maps to it.
type Key struct {
	Source media.SourceID
	Index  int64
}

// Config configures a Cache.
type Config struct {
	Capacity         int     // Maximum frames held, pinned stills excluded
	DefaultFrameRate float64 // Frame rate for sources that report none
}

// Stats counts cache activity.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Coalesced uint64
	Evictions uint64
	Failures  uint64
	Len       int
	Pinned    int
	InFlight  int
}

// Cache is a bounded frame cache. Eviction only ever touches completed
// frames: in-flight fetches are tracked separately until they resolve.
type Cache struct {
	cfg    Config
	logger ports.Logger

	mu       sync.Mutex
	lru      *simplelru.LRU[Key, *media.Frame]
	inflight map[Key]*call
	pinned   map[media.SourceID]*media.Frame

	hits      atomic.Uint64
	misses    atomic.Uint64
	coalesced atomic.Uint64
	evictions atomic.Uint64
	failures  atomic.Uint64
}

type call struct {
	done  chan struct{}
	frame *media.Frame
	err   error
}

// New creates a cache.
func New(cfg Config, logger ports.Logger) (*Cache, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, cfg.Capacity)
	}
	if cfg.DefaultFrameRate <= 0 {
		cfg.DefaultFrameRate = 30
	}
	c := &Cache{
		cfg:      cfg,
		logger:   logger.WithComponent("framecache"),
		inflight: make(map[Key]*call),
		pinned:   make(map[media.SourceID]*media.Frame),
	}
	lru, err := simplelru.NewLRU[Key, *media.Frame](cfg.Capacity, func(Key, *media.Frame) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	c.lru = lru
	return c, nil
}

// KeyFor maps a source time to its cache key.
func (c *Cache) KeyFor(info media.Info, t time.Duration) Key {
	period := info.FramePeriod(c.cfg.DefaultFrameRate)
	return Key{
		Source: info.ID,
		Index:  media.FrameIndex(t, period),
	}
}

// GetOrFetch returns the frame of src at t, asking the source at most once
// per key no matter how many callers are waiting. A caller whose ctx ends
// stops waiting; the fetch itself continues and still populates the cache.
func (c *Cache) GetOrFetch(ctx context.Context, src media.Source, t time.Duration) (*media.Frame, error) {
	info := src.Info()
	if info.Kind == media.KindImage {
		return c.still(src)
	}

	key := c.KeyFor(info, t)

	c.mu.Lock()
	if f, ok := c.lru.Get(key); ok {
		c.mu.Unlock()
		c.hits.Add(1)
		return f, nil
	}
	cl, ok := c.inflight[key]
	if ok {
		c.coalesced.Add(1)
	} else {
		c.misses.Add(1)
		cl = &call{done: make(chan struct{})}
		c.inflight[key] = cl
	}
	c.mu.Unlock()

	if !ok {
		p := src.RequestFrame(t)
		go c.complete(key, cl, p)
	}

	select {
	case <-cl.done:
		return cl.frame, cl.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) complete(key Key, cl *call, p *media.Pending) {
	f, err := p.Result()

	c.mu.Lock()
	delete(c.inflight, key)
	if err == nil {
		c.lru.Add(key, f)
	}
	c.mu.Unlock()

	if err != nil {
		c.failures.Add(1)
		if !errors.Is(err, media.ErrSuperseded) {
			c.logger.Debug("Frame fetch failed for %s at index %d: %v", key.Source, key.Index, err)
		}
	}
	cl.frame, cl.err = f, err
	close(cl.done)
}

func (c *Cache) still(src media.Source) (*media.Frame, error) {
	id := src.ID()
	c.mu.Lock()
	if f, ok := c.pinned[id]; ok {
		c.mu.Unlock()
		c.hits.Add(1)
		return f, nil
	}
	c.mu.Unlock()

	c.misses.Add(1)
	f, err := src.RequestFrame(0).Result()
	if err != nil {
		c.failures.Add(1)
		return nil, err
	}
	c.mu.Lock()
	c.pinned[id] = f
	c.mu.Unlock()
	return f, nil
}

// Peek returns a cached frame without fetching or touching recency.
func (c *Cache) Peek(src media.Source, t time.Duration) (*media.Frame, bool) {
	info := src.Info()
	c.mu.Lock()
	defer c.mu.Unlock()
	if info.Kind == media.KindImage {
		f, ok := c.pinned[info.ID]
		return f, ok
	}
	return c.lru.Peek(c.KeyFor(info, t))
}

// Invalidate drops every frame of a source, for example when it is closed.
func (c *Cache) Invalidate(id media.SourceID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, k := range c.lru.Keys() {
		if k.Source == id {
			c.lru.Remove(k)
			n++
		}
	}
	if _, ok := c.pinned[id]; ok {
		delete(c.pinned, id)
		n++
	}
	return n
}

// Purge empties the cache. In-flight fetches are unaffected.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.pinned = make(map[media.SourceID]*media.Frame)
}

// Len returns the number of frames counted against capacity.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Capacity returns the configured capacity.
func (c *Cache) Capacity() int {
	return c.cfg.Capacity
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	n, pinned, inflight := c.lru.Len(), len(c.pinned), len(c.inflight)
	c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Coalesced: c.coalesced.Load(),
		Evictions: c.evictions.Load(),
		Failures:  c.failures.Load(),
		Len:       n,
		Pinned:    pinned,
		InFlight:  inflight,
	}
}
