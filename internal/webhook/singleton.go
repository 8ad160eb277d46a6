package webhook

import (
	"sync"

	"github.com/catherinevee/reghook/internal/registry"
)

var (
	registryMu  sync.Mutex
	dispatchers = make(map[registry.Store]*Dispatcher)
)

// GetDispatcher returns the dispatcher bound to the given store, creating
// and starting it on first use. One dispatcher exists per store instance.
func GetDispatcher(store registry.Store, opts Options) *Dispatcher {
	registryMu.Lock()
	defer registryMu.Unlock()

	if d, ok := dispatchers[store]; ok {
		return d
	}
	d := NewDispatcher(store, opts)
	d.Start()
	dispatchers[store] = d
	return d
}

// ShutdownDispatcher stops and forgets the dispatcher bound to the given
// store. A later GetDispatcher for the same store creates a fresh one.
func ShutdownDispatcher(store registry.Store) {
	registryMu.Lock()
	d, ok := dispatchers[store]
	if ok {
		delete(dispatchers, store)
	}
	registryMu.Unlock()

	if ok {
		d.Stop()
	}
}

// ShutdownAll stops every dispatcher. Used on process shutdown.
func ShutdownAll() {
	registryMu.Lock()
	all := make([]*Dispatcher, 0, len(dispatchers))
	for _, d := range dispatchers {
		all = append(all, d)
	}
	dispatchers = make(map[registry.Store]*Dispatcher)
	registryMu.Unlock()

	for _, d := range all {
		d.Stop()
	}
}
