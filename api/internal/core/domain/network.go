package domain

import "sync"

// Interface resolution kinds.
const (
	CriteriaInetAddress = "inet-address"
	CriteriaNIC         = "nic"
	CriteriaLoopback    = "loopback"
	CriteriaAnyAddress  = "any-address"
	CriteriaAnyIPv4     = "any-ipv4-address"
	CriteriaAnyIPv6     = "any-ipv6-address"
	CriteriaLinkLocal   = "link-local-address"
)

// Criteria is the rule that resolves a named interface to an address.
type Criteria struct {
	Kind  string `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=inet-address nic loopback any-address any-ipv4-address any-ipv6-address link-local-address"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// Interface is a named network interface. An interface without criteria is a
// placeholder that a more specific layer has to complete. Interfaces are
// never edited in place; a change replaces the whole value.
type Interface struct {
	Name     string   `json:"name" yaml:"name" validate:"required"`
	Criteria Criteria `json:"criteria" yaml:"criteria"`
}

// FullySpecified reports whether the interface carries a resolution rule.
func (i *Interface) FullySpecified() bool { return i.Criteria.Kind != "" }

func (i *Interface) Fingerprint() uint64 {
	return newHasher("interface").
		str("name", i.Name).
		str("kind", i.Criteria.Kind).
		str("value", i.Criteria.Value).
		sum()
}

// SocketBinding is a named port bound to an interface. An empty Interface
// means the owning group's default interface.
type SocketBinding struct {
	Name             string `json:"name" yaml:"name" validate:"required"`
	Interface        string `json:"interface,omitempty" yaml:"interface,omitempty"`
	Port             int    `json:"port" yaml:"port" validate:"gte=0,lte=65535"`
	FixedPort        bool   `json:"fixedPort,omitempty" yaml:"fixed-port,omitempty"`
	MulticastAddress string `json:"multicastAddress,omitempty" yaml:"multicast-address,omitempty"`
	MulticastPort    int    `json:"multicastPort,omitempty" yaml:"multicast-port,omitempty" validate:"gte=0,lte=65535"`
}

func (b *SocketBinding) Fingerprint() uint64 {
	return newHasher("socket-binding").
		str("name", b.Name).
		str("interface", b.Interface).
		int("port", b.Port).
		bool("fixed", b.FixedPort).
		str("mcast-addr", b.MulticastAddress).
		int("mcast-port", b.MulticastPort).
		sum()
}

// SocketBindingGroup is a named set of bindings with a default interface.
type SocketBindingGroup struct {
	name string

	mu               sync.RWMutex
	defaultInterface string

	bindings keyed[string, *SocketBinding]
	includes keyed[string, struct{}]
}

func NewSocketBindingGroup(name, defaultInterface string) *SocketBindingGroup {
	return &SocketBindingGroup{name: name, defaultInterface: defaultInterface}
}

func (g *SocketBindingGroup) Name() string { return g.name }

func (g *SocketBindingGroup) DefaultInterface() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.defaultInterface
}

// SetDefaultInterface swaps the default interface and returns the previous one.
func (g *SocketBindingGroup) SetDefaultInterface(name string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.defaultInterface
	g.defaultInterface = name
	return old
}

func (g *SocketBindingGroup) Binding(name string) (*SocketBinding, bool) { return g.bindings.get(name) }

func (g *SocketBindingGroup) Bindings() []*SocketBinding { return g.bindings.values() }

func (g *SocketBindingGroup) BindingSnapshot() map[string]*SocketBinding { return g.bindings.snapshot() }

func (g *SocketBindingGroup) AddBinding(b *SocketBinding) error {
	if !g.bindings.add(b.Name, b) {
		return UpdateFailed("socket binding %q already exists in group %q", b.Name, g.name)
	}
	return nil
}

func (g *SocketBindingGroup) ReplaceBinding(b *SocketBinding) (*SocketBinding, error) {
	old, ok := g.bindings.replace(b.Name, b)
	if !ok {
		return nil, UpdateFailed("socket binding %q does not exist in group %q", b.Name, g.name)
	}
	return old, nil
}

func (g *SocketBindingGroup) RemoveBinding(name string) (*SocketBinding, error) {
	old, ok := g.bindings.remove(name)
	if !ok {
		return nil, UpdateFailed("socket binding %q does not exist in group %q", name, g.name)
	}
	return old, nil
}

func (g *SocketBindingGroup) Includes() []string { return g.includes.keys() }

func (g *SocketBindingGroup) IncludesGroup(name string) bool { return g.includes.has(name) }

func (g *SocketBindingGroup) AddInclude(name string) error {
	if name == g.name {
		return UpdateFailed("socket binding group %q cannot include itself", name)
	}
	if !g.includes.add(name, struct{}{}) {
		return UpdateFailed("socket binding group %q already includes %q", g.name, name)
	}
	return nil
}

func (g *SocketBindingGroup) RemoveInclude(name string) error {
	if _, ok := g.includes.remove(name); !ok {
		return UpdateFailed("socket binding group %q does not include %q", g.name, name)
	}
	return nil
}

// Empty reports whether the group has neither bindings nor includes.
func (g *SocketBindingGroup) Empty() bool {
	return g.bindings.len() == 0 && g.includes.len() == 0
}

func (g *SocketBindingGroup) DeepCopy() *SocketBindingGroup {
	out := NewSocketBindingGroup(g.name, g.DefaultInterface())
	for _, inc := range g.includes.keys() {
		out.includes.put(inc, struct{}{})
	}
	// bindings are immutable values, sharing them is safe
	for k, b := range g.bindings.snapshot() {
		out.bindings.put(k, b)
	}
	return out
}

func (g *SocketBindingGroup) Fingerprint() uint64 {
	h := newHasher("socket-binding-group").
		str("name", g.name).
		str("default-interface", g.DefaultInterface()).
		strs("include", g.includes.keys())
	foldChildren(h, "binding", g.bindings.values())
	return h.sum()
}
