package domain

// Profile is a named bundle of subsystems. Included profiles are weak
// references resolved by name against the owning domain.
type Profile struct {
	name       string
	includes   keyed[string, struct{}]
	subsystems keyed[string, Subsystem]
}

func NewProfile(name string) *Profile {
	return &Profile{name: name}
}

func (p *Profile) Name() string { return p.name }

// Includes returns the included profile names in sorted order.
func (p *Profile) Includes() []string { return p.includes.keys() }

func (p *Profile) IncludesProfile(name string) bool { return p.includes.has(name) }

// AddInclude records an include. Existence and cycles are checked by the domain.
func (p *Profile) AddInclude(name string) error {
	if name == p.name {
		return UpdateFailed("profile %q cannot include itself", name)
	}
	if !p.includes.add(name, struct{}{}) {
		return UpdateFailed("profile %q already includes %q", p.name, name)
	}
	return nil
}

func (p *Profile) RemoveInclude(name string) error {
	if _, ok := p.includes.remove(name); !ok {
		return UpdateFailed("profile %q does not include %q", p.name, name)
	}
	return nil
}

func (p *Profile) Subsystem(qname QName) (Subsystem, bool) {
	return p.subsystems.get(qname.String())
}

// Subsystems returns the subsystems ordered by qualified name.
func (p *Profile) Subsystems() []Subsystem { return p.subsystems.values() }

// SubsystemSnapshot returns a copy of the subsystem map keyed by QName.String().
func (p *Profile) SubsystemSnapshot() map[string]Subsystem { return p.subsystems.snapshot() }

func (p *Profile) AddSubsystem(s Subsystem) error {
	if !p.subsystems.add(s.QName().String(), s) {
		return UpdateFailed("subsystem %s already exists in profile %q", s.QName(), p.name)
	}
	return nil
}

// PutSubsystem adds or replaces a subsystem.
func (p *Profile) PutSubsystem(s Subsystem) (Subsystem, bool) {
	return p.subsystems.put(s.QName().String(), s)
}

func (p *Profile) ReplaceSubsystem(s Subsystem) (Subsystem, error) {
	old, ok := p.subsystems.replace(s.QName().String(), s)
	if !ok {
		return nil, UpdateFailed("subsystem %s does not exist in profile %q", s.QName(), p.name)
	}
	return old, nil
}

func (p *Profile) RemoveSubsystem(qname QName) (Subsystem, error) {
	old, ok := p.subsystems.remove(qname.String())
	if !ok {
		return nil, UpdateFailed("subsystem %s does not exist in profile %q", qname, p.name)
	}
	return old, nil
}

// Empty reports whether the profile has neither includes nor subsystems.
func (p *Profile) Empty() bool {
	return p.includes.len() == 0 && p.subsystems.len() == 0
}

func (p *Profile) DeepCopy() *Profile {
	out := NewProfile(p.name)
	for _, inc := range p.includes.keys() {
		out.includes.put(inc, struct{}{})
	}
	for k, s := range p.subsystems.snapshot() {
		out.subsystems.put(k, s.Copy())
	}
	return out
}

func (p *Profile) Fingerprint() uint64 {
	h := newHasher("profile").str("name", p.name).strs("include", p.includes.keys())
	foldChildren(h, "subsystem", p.subsystems.values())
	return h.sum()
}
