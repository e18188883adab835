// Package arp keeps the IPv4 neighbor table and answers ARP requests for the
// stack's own address.
//
// Learning is passive and unauthenticated: every ARP packet seen overwrites
// the entry of its sender. A forged reply therefore redirects traffic until
// the entry is replaced or expires.
package arp

import (
	"net/netip"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"firestige.xyz/tapstack/internal/core/codec"
	"firestige.xyz/tapstack/internal/metrics"
)

const DefaultTimeout = 60 * time.Second

// entry is the value stored per IP.
type entry struct {
	mac        codec.MAC
	insertedAt time.Time
}

// Entry is a snapshot of one cache line.
type Entry struct {
	IP         netip.Addr
	MAC        codec.MAC
	InsertedAt time.Time
}

// Cache maps IPv4 addresses to MAC addresses. An entry is fresh while
// now-insertedAt < timeout; stale entries are never returned and are removed
// on lookup or Sweep.
//
// The store never expires items itself: insertedAt and the cache clock are
// the only freshness authority, so every removal is seen and counted.
type Cache struct {
	mu      sync.Mutex
	store   *cache.Cache // ip.String() → entry
	timeout time.Duration
	now     func() time.Time

	stop      chan struct{}
	done      chan struct{} // nil without a janitor
	closeOnce sync.Once
}

// CacheOption configures a Cache.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	janitor time.Duration
	now     func() time.Time
}

// WithJanitor runs Sweep every interval on a background goroutine until
// Close. Without it, entries leave only through Lookup, Evict and Sweep.
func WithJanitor(interval time.Duration) CacheOption {
	return func(o *cacheOptions) { o.janitor = interval }
}

// WithClock replaces time.Now as the freshness clock.
func WithClock(now func() time.Time) CacheOption {
	return func(o *cacheOptions) { o.now = now }
}

// NewCache creates a cache whose entries live for timeout. A non-positive
// timeout selects DefaultTimeout.
func NewCache(timeout time.Duration, opts ...CacheOption) *Cache {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	o := cacheOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Cache{
		store:   cache.New(cache.NoExpiration, 0),
		timeout: timeout,
		now:     o.now,
		stop:    make(chan struct{}),
	}
	if o.janitor > 0 {
		c.done = make(chan struct{})
		go c.janitor(o.janitor)
	}
	return c
}

func (c *Cache) janitor(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stop:
			return
		}
	}
}

// Close stops the janitor, if any, and waits for it to exit. The cache
// stays usable.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		if c.done != nil {
			<-c.done
		}
	})
}

// Timeout returns the entry lifetime.
func (c *Cache) Timeout() time.Duration {
	return c.timeout
}

// Insert records ip → mac, replacing any previous mapping and restarting its
// lifetime.
func (c *Cache) Insert(ip netip.Addr, mac codec.MAC) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Set(ip.Unmap().String(), entry{mac: mac, insertedAt: c.now()}, cache.NoExpiration)
	c.updateGauge()
}

// Lookup returns the MAC for ip if a fresh entry exists. A stale entry is
// removed as a side effect.
func (c *Cache) Lookup(ip netip.Addr) (codec.MAC, bool) {
	key := ip.Unmap().String()

	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.store.Get(key)
	if !ok {
		return codec.MAC{}, false
	}
	e := v.(entry)
	if c.stale(e) {
		c.store.Delete(key)
		metrics.ARPCacheEvictionsTotal.WithLabelValues(metrics.EvictStale).Inc()
		c.updateGauge()
		return codec.MAC{}, false
	}
	return e.mac, true
}

// Evict removes the entry for ip, fresh or not.
func (c *Cache) Evict(ip netip.Addr) {
	key := ip.Unmap().String()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, found := c.store.Get(key); found {
		c.store.Delete(key)
		metrics.ARPCacheEvictionsTotal.WithLabelValues(metrics.EvictManual).Inc()
		c.updateGauge()
	}
}

// Sweep removes every stale entry and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, item := range c.store.Items() {
		if c.stale(item.Object.(entry)) {
			c.store.Delete(key)
			removed++
		}
	}

	if removed > 0 {
		metrics.ARPCacheEvictionsTotal.WithLabelValues(metrics.EvictSweep).Add(float64(removed))
	}
	c.updateGauge()
	return removed
}

// Len returns the number of fresh entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freshLocked()
}

func (c *Cache) freshLocked() int {
	n := 0
	for _, item := range c.store.Items() {
		if !c.stale(item.Object.(entry)) {
			n++
		}
	}
	return n
}

// updateGauge reports fresh entries only; stale ones awaiting removal are
// not counted. Callers hold c.mu.
func (c *Cache) updateGauge() {
	metrics.ARPCacheEntries.Set(float64(c.freshLocked()))
}

// Entries returns a snapshot of the fresh entries.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, 0, c.store.ItemCount())
	for key, item := range c.store.Items() {
		e := item.Object.(entry)
		if c.stale(e) {
			continue
		}
		ip, err := netip.ParseAddr(key)
		if err != nil {
			continue
		}
		out = append(out, Entry{IP: ip, MAC: e.mac, InsertedAt: e.insertedAt})
	}
	return out
}

// Flush drops all entries.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Flush()
	c.updateGauge()
}

func (c *Cache) stale(e entry) bool {
	return c.now().Sub(e.insertedAt) >= c.timeout
}
