package pool

import (
	"sync"

	tvchart "github.com/anjanpoonacha/tvchart"
	"github.com/anjanpoonacha/tvchart/cvdconfig"
)

var (
	registryMu sync.Mutex
	registry   = map[string]*Pool{}
)

// ForToken returns the process-wide Pool for token, creating it (and its
// background reaper) on first use. Every caller sharing a credential
// token shares the same bounded set of Connections.
func ForToken(token string, cfg tvchart.Config, newAdapter AdapterFactory, cvdProvider cvdconfig.Provider, maxSlots int) *Pool {
	registryMu.Lock()
	defer registryMu.Unlock()

	if p, ok := registry[token]; ok {
		return p
	}
	p := New(cfg, newAdapter, cvdProvider, maxSlots)
	registry[token] = p
	return p
}

// Forget stops and removes token's Pool from the registry, if present.
// Subsequent ForToken calls for the same token build a fresh Pool.
func Forget(token string) {
	registryMu.Lock()
	p, ok := registry[token]
	delete(registry, token)
	registryMu.Unlock()

	if ok {
		p.Stop()
	}
}
