package resolver

import (
	"net/netip"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// Entries above this are evicted before inserting new ones
const cacheLimit = 4096

const srvQtype = dns.TypeSRV

type cacheKey struct {
	name  string
	qtype uint16
}
type cacheEntry struct {
	addrs   []netip.Addr
	srvs    []SRV
	expires time.Time
}

// cache keeps positive answers until their ttl runs out. Safe for
// concurrent readers, writes take the exclusive lock.
type cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry
}

func newCache() *cache {
	return &cache{
		entries: make(map[cacheKey]cacheEntry),
	}
}
func (c *cache) addresses(name string, qtype uint16) (addrs []netip.Addr, ok bool) {
	entry, ok := c.get(cacheKey{name, qtype})
	if ok {
		addrs = entry.addrs
	}
	return
}
func (c *cache) srv(name string) (srvs []SRV, ok bool) {
	entry, ok := c.get(cacheKey{name, srvQtype})
	if ok {
		srvs = entry.srvs
	}
	return
}
func (c *cache) get(key cacheKey) (entry cacheEntry, ok bool) {
	c.mu.RLock()
	entry, ok = c.entries[key]
	c.mu.RUnlock()
	if ok && time.Now().After(entry.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		ok = false
	}
	return
}
func (c *cache) storeAddresses(name string, qtype uint16, addrs []netip.Addr, ttl uint32) {
	c.store(cacheKey{name, qtype}, cacheEntry{addrs: addrs, expires: expires(ttl)})
}
func (c *cache) storeSRV(name string, srvs []SRV, ttl uint32) {
	c.store(cacheKey{name, srvQtype}, cacheEntry{srvs: srvs, expires: expires(ttl)})
}
func (c *cache) store(key cacheKey, entry cacheEntry) {
	if entry.expires.Before(time.Now()) {
		return
	}
	c.mu.Lock()
	if len(c.entries) >= cacheLimit {
		for victim := range c.entries {
			delete(c.entries, victim)
			if len(c.entries) < cacheLimit {
				break
			}
		}
	}
	c.entries[key] = entry
	c.mu.Unlock()
}

func expires(ttl uint32) time.Time {
	return time.Now().Add(time.Duration(ttl) * time.Second)
}
