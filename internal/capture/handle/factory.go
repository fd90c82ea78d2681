package handle

import (
	"fmt"
	"sort"
	"sync"
)

// OpenFunc opens a handle of one registered kind.
type OpenFunc func(opts Options) (Handle, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]OpenFunc)
)

// Register makes a handle kind available to Open. Implementations register
// themselves from init.
func Register(kind string, fn OpenFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = fn
}

// Open opens a handle of the given kind.
func Open(kind string, opts Options) (Handle, error) {
	registryMu.RLock()
	fn, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown capture handle kind: %q (available: %v)", kind, Kinds())
	}
	return fn(opts)
}

// Kinds returns the registered handle kinds, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
