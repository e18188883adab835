package arp

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tapstack/internal/core/codec"
	"firestige.xyz/tapstack/internal/metrics"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var (
	ip10 = netip.MustParseAddr("192.168.1.10")
	ip11 = netip.MustParseAddr("192.168.1.11")
	mac1 = codec.MAC{0x02, 0, 0, 0, 0, 0x01}
	mac2 = codec.MAC{0x02, 0, 0, 0, 0, 0x02}
)

func TestCacheInsertLookup(t *testing.T) {
	c := NewCache(time.Minute)

	_, ok := c.Lookup(ip10)
	assert.False(t, ok)

	c.Insert(ip10, mac1)
	mac, ok := c.Lookup(ip10)
	require.True(t, ok)
	assert.Equal(t, mac1, mac)
	assert.Equal(t, 1, c.Len())
}

func TestCacheEntryExpires(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(60*time.Second, WithClock(clock.Now))

	c.Insert(ip10, mac1)
	clock.Advance(59 * time.Second)
	_, ok := c.Lookup(ip10)
	assert.True(t, ok, "entry is fresh just before the timeout")

	clock.Advance(time.Second)
	_, ok = c.Lookup(ip10)
	assert.False(t, ok, "entry is stale at now-insertedAt == timeout")
	assert.Equal(t, 0, c.Len())

	// Lookup removed the stale entry from the store itself.
	clock.Advance(-time.Hour)
	_, ok = c.Lookup(ip10)
	assert.False(t, ok)
}

func TestCacheLenIgnoresStale(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(10*time.Second, WithClock(clock.Now))

	c.Insert(ip10, mac1)
	clock.Advance(5 * time.Second)
	c.Insert(ip11, mac2)
	assert.Equal(t, 2, c.Len())

	clock.Advance(6 * time.Second)
	assert.Equal(t, 1, c.Len())

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, ip11, entries[0].IP)
	assert.Equal(t, mac2, entries[0].MAC)
}

func TestCacheSweep(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(10*time.Second, WithClock(clock.Now))

	c.Insert(ip10, mac1)
	c.Insert(ip11, mac2)
	assert.Equal(t, 0, c.Sweep())

	clock.Advance(10 * time.Second)
	c.Insert(netip.MustParseAddr("192.168.1.12"), mac1)

	assert.Equal(t, 2, c.Sweep())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 0, c.Sweep())
}

func TestCacheInsertOverwrites(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(10*time.Second, WithClock(clock.Now))

	c.Insert(ip10, mac1)
	clock.Advance(8 * time.Second)
	c.Insert(ip10, mac2)
	clock.Advance(8 * time.Second)

	mac, ok := c.Lookup(ip10)
	require.True(t, ok, "overwrite restarts the lifetime")
	assert.Equal(t, mac2, mac)
	assert.Equal(t, 1, c.Len())
}

func TestCacheEvictAndFlush(t *testing.T) {
	c := NewCache(time.Minute)
	c.Insert(ip10, mac1)
	c.Insert(ip11, mac2)

	c.Evict(ip10)
	_, ok := c.Lookup(ip10)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Evict(ip10) // absent: no-op

	c.Flush()
	assert.Equal(t, 0, c.Len())
}

func TestCacheMappedAddressSharesKey(t *testing.T) {
	c := NewCache(time.Minute)
	c.Insert(netip.AddrFrom16(ip10.As16()), mac1)

	mac, ok := c.Lookup(ip10)
	require.True(t, ok)
	assert.Equal(t, mac1, mac)
}

func TestCacheDefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, NewCache(0).Timeout())
	assert.Equal(t, time.Second, NewCache(time.Second).Timeout())
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache(time.Minute, WithJanitor(time.Millisecond))
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ip := netip.AddrFrom4([4]byte{10, 0, 0, byte(i)})
			for j := 0; j < 200; j++ {
				c.Insert(ip, mac1)
				c.Lookup(ip)
				c.Sweep()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, c.Len())
}

func TestCacheRealClockLookupRemovesStale(t *testing.T) {
	c := NewCache(20 * time.Millisecond)

	c.Insert(ip10, mac1)
	time.Sleep(40 * time.Millisecond)

	_, ok := c.Lookup(ip10)
	assert.False(t, ok)
	assert.Equal(t, 0, c.store.ItemCount(), "stale entry is deleted by the lookup")
	assert.Equal(t, 0, c.Sweep(), "nothing left for the sweep")
}

func TestCacheRealClockSweepCounts(t *testing.T) {
	c := NewCache(20 * time.Millisecond)
	stale := testutil.ToFloat64(metrics.ARPCacheEvictionsTotal.WithLabelValues(metrics.EvictSweep))

	c.Insert(ip10, mac1)
	c.Insert(ip11, mac2)
	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, 2, c.Sweep())
	assert.Equal(t, 0, c.store.ItemCount())
	assert.Equal(t, stale+2, testutil.ToFloat64(metrics.ARPCacheEvictionsTotal.WithLabelValues(metrics.EvictSweep)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ARPCacheEntries))
}

func TestCacheJanitorSweeps(t *testing.T) {
	c := NewCache(10*time.Millisecond, WithJanitor(5*time.Millisecond))
	defer c.Close()

	c.Insert(ip10, mac1)
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.store.ItemCount() == 0
	}, time.Second, 5*time.Millisecond)

	c.Close() // idempotent
}

func TestCacheGaugeCountsFreshEntries(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(10*time.Second, WithClock(clock.Now))

	c.Insert(ip10, mac1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ARPCacheEntries))

	clock.Advance(10 * time.Second)
	c.Insert(ip11, mac2)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ARPCacheEntries), "stale entry not reported")

	c.Flush()
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ARPCacheEntries))
}
