package domain

// Properties is a sorted name to value map. Values are pointers so that a nil
// entry can stand for "unset", which only some contexts allow: system
// properties must carry a value, JVM environment variables may be placeholders.
type Properties struct {
	allowNull bool
	values    keyed[string, *string]
}

// NewProperties returns an empty property map.
func NewProperties(allowNull bool) *Properties {
	return &Properties{allowNull: allowNull}
}

// Ptr returns a pointer to a copy of s.
func Ptr(s string) *string {
	return &s
}

func (p *Properties) AllowsNull() bool { return p.allowNull }

func (p *Properties) Len() int { return p.values.len() }

// Get returns the value stored under name. A nil value with ok=true is a null placeholder.
func (p *Properties) Get(name string) (*string, bool) {
	v, ok := p.values.get(name)
	return clonePtr(v), ok
}

func (p *Properties) Has(name string) bool { return p.values.has(name) }

// Set adds or replaces a property.
func (p *Properties) Set(name string, value *string) error {
	if name == "" {
		return UpdateFailed("property name must not be empty")
	}
	if value == nil && !p.allowNull {
		return UpdateFailed("property %q requires a value", name)
	}
	p.values.put(name, clonePtr(value))
	return nil
}

// Remove deletes a property, failing when it is absent.
func (p *Properties) Remove(name string) error {
	if _, ok := p.values.remove(name); !ok {
		return UpdateFailed("property %q is not defined", name)
	}
	return nil
}

// Names returns the property names in sorted order.
func (p *Properties) Names() []string { return p.values.keys() }

// Snapshot returns a copy of the map.
func (p *Properties) Snapshot() map[string]*string {
	out := p.values.snapshot()
	for k, v := range out {
		out[k] = clonePtr(v)
	}
	return out
}

// Clone copies the map including its null policy.
func (p *Properties) Clone() *Properties {
	out := NewProperties(p.allowNull)
	for k, v := range p.values.snapshot() {
		out.values.put(k, clonePtr(v))
	}
	return out
}

// Merge copies every entry of other into p. Later merges win on key collision.
// Null entries are skipped when p does not allow them.
func (p *Properties) Merge(other *Properties) {
	if other == nil {
		return
	}
	for k, v := range other.values.snapshot() {
		if v == nil && !p.allowNull {
			continue
		}
		p.values.put(k, clonePtr(v))
	}
}

func (p *Properties) Fingerprint() uint64 {
	h := newHasher("properties").bool("allow-null", p.allowNull)
	snap := p.values.snapshot()
	names := p.values.keys()
	h.int("size", len(names))
	for _, name := range names {
		h.str("name", name).optional("value", snap[name])
	}
	return h.sum()
}

func clonePtr(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
