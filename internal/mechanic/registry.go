package mechanic

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownMechanic is returned when an id is not in the catalogue.
var ErrUnknownMechanic = errors.New("unknown mechanic")

// Factory builds a fresh mechanic instance wired to the given deps.
type Factory func(deps Deps) Mechanic

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	manifests  = make(map[string]Manifest)
)

// Register adds a mechanic to the catalogue. Mechanic packages call it
// from init, so registering an id twice or with a nil factory panics.
func Register(m Manifest, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if m.ID == "" {
		panic("mechanic: Register with empty id")
	}
	if f == nil {
		panic(fmt.Sprintf("mechanic: Register %q with nil factory", m.ID))
	}
	if _, dup := factories[m.ID]; dup {
		panic(fmt.Sprintf("mechanic: Register called twice for %q", m.ID))
	}
	factories[m.ID] = f
	manifests[m.ID] = m
}

// Create instantiates a registered mechanic with defaulted deps.
func Create(id string, deps Deps) (Mechanic, error) {
	registryMu.RLock()
	f, ok := factories[id]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mechanic: %w: %q", ErrUnknownMechanic, id)
	}
	return f(deps.WithDefaults()), nil
}

// Exists reports whether a mechanic id is registered.
func Exists(id string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[id]
	return ok
}

// Manifests lists the catalogue sorted by id.
func Manifests() []Manifest {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Manifest, 0, len(manifests))
	for _, m := range manifests {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
