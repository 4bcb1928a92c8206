package device

import (
	"encoding/json"
	"sync"

	"env_automation/internal/models"
)

// Registry keeps one driver instance per device. A driver is rebuilt only
// when the device's type or config changes.
type Registry struct {
	factory *Factory

	mu      sync.Mutex
	entries map[int64]registryEntry
}

type registryEntry struct {
	key string
	dev Device
}

func NewRegistry(f *Factory) *Registry {
	return &Registry{factory: f, entries: make(map[int64]registryEntry)}
}

// Factory returns the factory the registry builds drivers with.
func (r *Registry) Factory() *Factory { return r.factory }

// Resolve returns the driver for d, building it on first use.
func (r *Registry) Resolve(d models.Device) (Device, error) {
	key := entryKey(d)

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[d.ID]; ok && e.key == key {
		return e.dev, nil
	}
	dev, err := r.factory.New(d.Type, d.Config)
	if err != nil {
		return nil, err
	}
	r.entries[d.ID] = registryEntry{key: key, dev: dev}
	return dev, nil
}

// Forget drops the cached driver of a device.
func (r *Registry) Forget(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len returns the number of resolved drivers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func entryKey(d models.Device) string {
	// json.Marshal sorts map keys, so equal configs give equal keys.
	b, _ := json.Marshal(d.Config)
	return normalizeTag(d.Type) + "|" + string(b)
}
