package geoip

import "sync"

// Cached memoizes lookups per host. Node addresses rarely change, and node
// metrics resolve every node on each request. Failed lookups are not cached.
type Cached struct {
	inner CountryResolver

	mu    sync.RWMutex
	hosts map[string]string
}

func NewCached(inner CountryResolver) *Cached {
	return &Cached{inner: inner, hosts: map[string]string{}}
}

func (c *Cached) CountryCode(host string) (string, error) {
	c.mu.RLock()
	cc, ok := c.hosts[host]
	c.mu.RUnlock()
	if ok {
		return cc, nil
	}
	cc, err := c.inner.CountryCode(host)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.hosts[host] = cc
	c.mu.Unlock()
	return cc, nil
}
