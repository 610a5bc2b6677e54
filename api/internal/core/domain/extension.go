package domain

import (
	"fmt"
	"sync"
)

// Extension is a named capability module. Once added to a domain or host it
// never changes; swapping a module means removing and adding it.
type Extension struct {
	Module string `json:"module" yaml:"module" validate:"required"`
}

func (e *Extension) Fingerprint() uint64 {
	return newHasher("extension").str("module", e.Module).sum()
}

// Capability is what an extension contributes: subsystem kinds for a set of namespaces.
type Capability interface {
	Namespaces() []string
	NewSubsystem(qname QName) Subsystem
}

// ExtensionLoader resolves a module name to its capabilities.
type ExtensionLoader interface {
	Load(module string) ([]Capability, error)
}

// StaticLoader serves capabilities from a fixed table, keyed by module name.
type StaticLoader map[string][]Capability

func (l StaticLoader) Load(module string) ([]Capability, error) {
	caps, ok := l[module]
	if !ok {
		return nil, fmt.Errorf("extension module %q: %w", module, ErrNotFound)
	}
	return caps, nil
}

// NamespaceCapability contributes generic attribute-bag subsystems for its namespaces.
type NamespaceCapability []string

func (c NamespaceCapability) Namespaces() []string { return c }

func (c NamespaceCapability) NewSubsystem(qname QName) Subsystem {
	return NewGenericSubsystem(qname)
}

// ExtensionRegistry loads each distinct module at most once and maps
// namespaces to the capability that owns them.
type ExtensionRegistry struct {
	loader ExtensionLoader

	mu         sync.RWMutex
	loaded     map[string][]Capability
	namespaces map[string]Capability
}

func NewExtensionRegistry(loader ExtensionLoader) *ExtensionRegistry {
	return &ExtensionRegistry{
		loader:     loader,
		loaded:     make(map[string][]Capability),
		namespaces: make(map[string]Capability),
	}
}

// Resolve loads module if it has not been seen yet.
func (r *ExtensionRegistry) Resolve(module string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.loaded[module]; ok {
		return nil
	}
	if r.loader == nil {
		return fmt.Errorf("extension module %q: no loader configured", module)
	}
	caps, err := r.loader.Load(module)
	if err != nil {
		return fmt.Errorf("failed to load extension %q: %w", module, err)
	}
	r.loaded[module] = caps
	for _, c := range caps {
		for _, ns := range c.Namespaces() {
			r.namespaces[ns] = c
		}
	}
	return nil
}

func (r *ExtensionRegistry) Loaded(module string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.loaded[module]
	return ok
}

func (r *ExtensionRegistry) KnownNamespace(ns string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.namespaces[ns]
	return ok
}

// NewSubsystem creates an empty subsystem for qname, falling back to the
// generic kind for namespaces no loaded extension claims.
func (r *ExtensionRegistry) NewSubsystem(qname QName) Subsystem {
	r.mu.RLock()
	c, ok := r.namespaces[qname.Namespace]
	r.mu.RUnlock()
	if ok {
		if s := c.NewSubsystem(qname); s != nil {
			return s
		}
	}
	return NewGenericSubsystem(qname)
}
