package provider

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Adapter{}
)

// Register adds an adapter to the registry. It panics on duplicate IDs;
// adapters register once from init.
func Register(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[a.ID()]; dup {
		panic(fmt.Sprintf("provider: duplicate adapter %q", a.ID()))
	}
	registry[a.ID()] = a
}

// Get returns the adapter with the given ID.
func Get(id string) (Adapter, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	a, ok := registry[id]
	return a, ok
}

// All returns all registered adapters sorted by ID.
func All() []Adapter {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Adapter, 0, len(registry))
	for _, a := range registry {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// IDs returns the sorted IDs of all registered adapters.
func IDs() []string {
	all := All()
	ids := make([]string, len(all))
	for i, a := range all {
		ids[i] = a.ID()
	}
	return ids
}

// ResetForTesting clears the registry.
func ResetForTesting() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = map[string]Adapter{}
}
