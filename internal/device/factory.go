package device

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Type tags of the built-in families.
const (
	TypeThermal = "thermal"
	TypeRelay   = "relay"
	TypeMQTT    = "mqtt"
)

// Deps are the shared handles a constructor may need.
type Deps struct {
	Messenger Messenger        // nil disables the mqtt family
	Now       func() time.Time // defaults to time.Now
}

// Constructor builds a driver from its persisted config.
type Constructor func(cfg map[string]any, deps Deps) (Device, error)

// Factory maps type tags to constructors.
type Factory struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
	deps  Deps
}

// NewFactory returns a factory with the built-in families registered.
func NewFactory(deps Deps) *Factory {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	f := &Factory{ctors: make(map[string]Constructor), deps: deps}
	f.Register(TypeThermal, newThermal)
	f.Register(TypeRelay, newRelay)
	f.Register(TypeMQTT, newMQTT)
	return f
}

// Register adds or replaces the constructor for tag.
func (f *Factory) Register(tag string, c Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctors[normalizeTag(tag)] = c
}

// Supports reports whether tag has a constructor.
func (f *Factory) Supports(tag string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.ctors[normalizeTag(tag)]
	return ok
}

// Types lists the registered tags in order.
func (f *Factory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.ctors))
	for tag := range f.ctors {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// New builds a driver for tag.
func (f *Factory) New(tag string, cfg map[string]any) (Device, error) {
	f.mu.RLock()
	c, ok := f.ctors[normalizeTag(tag)]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", tag, ErrUnknownType)
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	d, err := c(cfg, f.deps)
	if err != nil {
		return nil, fmt.Errorf("build %s device: %w", tag, err)
	}
	return d, nil
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
