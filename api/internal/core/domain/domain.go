package domain

// Domain is the top-level configuration shared by every host and server.
type Domain struct {
	extensions    keyed[string, *Extension]
	profiles      keyed[string, *Profile]
	interfaces    keyed[string, *Interface]
	bindingGroups keyed[string, *SocketBindingGroup]
	deployments   keyed[string, *Deployment] // keyed by DeploymentKey.String()
	serverGroups  keyed[string, *ServerGroup]
	properties    *Properties
}

func NewDomain() *Domain {
	return &Domain{properties: NewProperties(false)}
}

func (d *Domain) Properties() *Properties { return d.properties }

// ===========================================================================
// Extensions
// ===========================================================================

func (d *Domain) Extension(module string) (*Extension, bool) { return d.extensions.get(module) }
func (d *Domain) Extensions() []*Extension                   { return d.extensions.values() }
func (d *Domain) ExtensionSnapshot() map[string]*Extension   { return d.extensions.snapshot() }

func (d *Domain) AddExtension(e *Extension) error {
	if !d.extensions.add(e.Module, e) {
		return UpdateFailed("extension %q already exists", e.Module)
	}
	return nil
}

func (d *Domain) RemoveExtension(module string) (*Extension, error) {
	old, ok := d.extensions.remove(module)
	if !ok {
		return nil, UpdateFailed("extension %q does not exist", module)
	}
	return old, nil
}

// ===========================================================================
// Profiles
// ===========================================================================

func (d *Domain) Profile(name string) (*Profile, bool) { return d.profiles.get(name) }
func (d *Domain) Profiles() []*Profile                 { return d.profiles.values() }
func (d *Domain) ProfileSnapshot() map[string]*Profile { return d.profiles.snapshot() }

// AddProfile adds p after checking that every profile it includes exists.
func (d *Domain) AddProfile(p *Profile) error {
	if d.profiles.has(p.Name()) {
		return UpdateFailed("profile %q already exists", p.Name())
	}
	for _, inc := range p.Includes() {
		if !d.profiles.has(inc) {
			return UpdateFailed("profile %q includes unknown profile %q", p.Name(), inc)
		}
	}
	if !d.profiles.add(p.Name(), p) {
		return UpdateFailed("profile %q already exists", p.Name())
	}
	return nil
}

// RemoveProfile removes a profile that no sibling includes and no server
// group uses.
func (d *Domain) RemoveProfile(name string) (*Profile, error) {
	if !d.profiles.has(name) {
		return nil, UpdateFailed("profile %q does not exist", name)
	}
	for _, other := range d.profiles.values() {
		if other.IncludesProfile(name) {
			return nil, UpdateFailed("profile %q is still included by %q", name, other.Name())
		}
	}
	for _, g := range d.serverGroups.values() {
		if g.Profile() == name {
			return nil, UpdateFailed("profile %q is still used by server group %q", name, g.Name())
		}
	}
	old, _ := d.profiles.remove(name)
	return old, nil
}

// CheckProfileInclude validates that profile may include include: both exist
// and the new edge does not close a cycle.
func (d *Domain) CheckProfileInclude(profile, include string) error {
	if !d.profiles.has(profile) {
		return UpdateFailed("profile %q does not exist", profile)
	}
	if !d.profiles.has(include) {
		return UpdateFailed("profile %q includes unknown profile %q", profile, include)
	}
	if d.profileReaches(include, profile) {
		return UpdateFailed("including %q in %q would create a cycle", include, profile)
	}
	return nil
}

// profileReaches reports whether from transitively includes (or is) to.
func (d *Domain) profileReaches(from, to string) bool {
	seen := map[string]bool{}
	var walk func(string) bool
	walk = func(name string) bool {
		if name == to {
			return true
		}
		if seen[name] {
			return false
		}
		seen[name] = true
		p, ok := d.profiles.get(name)
		if !ok {
			return false
		}
		for _, inc := range p.Includes() {
			if walk(inc) {
				return true
			}
		}
		return false
	}
	return walk(from)
}

// ServerGroupsUsingProfile lists the groups whose profile is, or includes, name.
func (d *Domain) ServerGroupsUsingProfile(name string) []string {
	var out []string
	for _, g := range d.serverGroups.values() {
		if d.profileReaches(g.Profile(), name) {
			out = append(out, g.Name())
		}
	}
	return out
}

// ===========================================================================
// Interfaces
// ===========================================================================

func (d *Domain) Interface(name string) (*Interface, bool) { return d.interfaces.get(name) }
func (d *Domain) Interfaces() []*Interface                 { return d.interfaces.values() }
func (d *Domain) InterfaceSnapshot() map[string]*Interface { return d.interfaces.snapshot() }

func (d *Domain) AddInterface(i *Interface) error {
	if !d.interfaces.add(i.Name, i) {
		return UpdateFailed("interface %q already exists", i.Name)
	}
	return nil
}

func (d *Domain) ReplaceInterface(i *Interface) (*Interface, error) {
	old, ok := d.interfaces.replace(i.Name, i)
	if !ok {
		return nil, UpdateFailed("interface %q does not exist", i.Name)
	}
	return old, nil
}

func (d *Domain) RemoveInterface(name string) (*Interface, error) {
	old, ok := d.interfaces.remove(name)
	if !ok {
		return nil, UpdateFailed("interface %q does not exist", name)
	}
	return old, nil
}

// ===========================================================================
// Socket binding groups
// ===========================================================================

func (d *Domain) SocketBindingGroup(name string) (*SocketBindingGroup, bool) {
	return d.bindingGroups.get(name)
}
func (d *Domain) SocketBindingGroups() []*SocketBindingGroup { return d.bindingGroups.values() }
func (d *Domain) SocketBindingGroupSnapshot() map[string]*SocketBindingGroup {
	return d.bindingGroups.snapshot()
}

func (d *Domain) AddSocketBindingGroup(g *SocketBindingGroup) error {
	if d.bindingGroups.has(g.Name()) {
		return UpdateFailed("socket binding group %q already exists", g.Name())
	}
	for _, inc := range g.Includes() {
		if !d.bindingGroups.has(inc) {
			return UpdateFailed("socket binding group %q includes unknown group %q", g.Name(), inc)
		}
	}
	if !d.bindingGroups.add(g.Name(), g) {
		return UpdateFailed("socket binding group %q already exists", g.Name())
	}
	return nil
}

// RemoveSocketBindingGroup removes a binding group that no sibling includes
// and no server group uses. Servers declared on hosts are not checked here.
func (d *Domain) RemoveSocketBindingGroup(name string) (*SocketBindingGroup, error) {
	if !d.bindingGroups.has(name) {
		return nil, UpdateFailed("socket binding group %q does not exist", name)
	}
	for _, other := range d.bindingGroups.values() {
		if other.IncludesGroup(name) {
			return nil, UpdateFailed("socket binding group %q is still included by %q", name, other.Name())
		}
	}
	for _, g := range d.serverGroups.values() {
		if sbg, _ := g.SocketBinding(); sbg == name {
			return nil, UpdateFailed("socket binding group %q is still used by server group %q", name, g.Name())
		}
	}
	old, _ := d.bindingGroups.remove(name)
	return old, nil
}

// CheckBindingGroupInclude mirrors CheckProfileInclude for binding groups.
func (d *Domain) CheckBindingGroupInclude(group, include string) error {
	if !d.bindingGroups.has(group) {
		return UpdateFailed("socket binding group %q does not exist", group)
	}
	if !d.bindingGroups.has(include) {
		return UpdateFailed("socket binding group %q includes unknown group %q", group, include)
	}
	if d.bindingGroupReaches(include, group) {
		return UpdateFailed("including %q in %q would create a cycle", include, group)
	}
	return nil
}

func (d *Domain) bindingGroupReaches(from, to string) bool {
	seen := map[string]bool{}
	var walk func(string) bool
	walk = func(name string) bool {
		if name == to {
			return true
		}
		if seen[name] {
			return false
		}
		seen[name] = true
		g, ok := d.bindingGroups.get(name)
		if !ok {
			return false
		}
		for _, inc := range g.Includes() {
			if walk(inc) {
				return true
			}
		}
		return false
	}
	return walk(from)
}

// ===========================================================================
// Deployments
// ===========================================================================

func (d *Domain) Deployment(key DeploymentKey) (*Deployment, bool) {
	return d.deployments.get(key.String())
}
func (d *Domain) Deployments() []*Deployment                 { return d.deployments.values() }
func (d *Domain) DeploymentSnapshot() map[string]*Deployment { return d.deployments.snapshot() }

func (d *Domain) AddDeployment(dep *Deployment) error {
	if !d.deployments.add(dep.Key.String(), dep) {
		return UpdateFailed("deployment %s already exists", dep.Key)
	}
	return nil
}

// ReplaceDeployment swaps the deployment stored under dep's key. Group
// mappings refer to the key and stay valid.
func (d *Domain) ReplaceDeployment(dep *Deployment) (*Deployment, error) {
	old, ok := d.deployments.replace(dep.Key.String(), dep)
	if !ok {
		return nil, UpdateFailed("deployment %s does not exist", dep.Key)
	}
	return old, nil
}

// RemoveDeployment removes a deployment that no server group maps.
func (d *Domain) RemoveDeployment(key DeploymentKey) (*Deployment, error) {
	if !d.deployments.has(key.String()) {
		return nil, UpdateFailed("deployment %s does not exist", key)
	}
	if groups := d.ServerGroupsMapping(key); len(groups) > 0 {
		return nil, UpdateFailed("deployment %s is still mapped by server group %q", key, groups[0])
	}
	old, _ := d.deployments.remove(key.String())
	return old, nil
}

// ServerGroupsMapping lists the groups with a mapping of the deployment key.
func (d *Domain) ServerGroupsMapping(key DeploymentKey) []string {
	var out []string
	for _, g := range d.serverGroups.values() {
		for _, m := range g.Deployments() {
			if m.Key() == key {
				out = append(out, g.Name())
				break
			}
		}
	}
	return out
}

// ===========================================================================
// Server groups
// ===========================================================================

func (d *Domain) ServerGroup(name string) (*ServerGroup, bool) { return d.serverGroups.get(name) }
func (d *Domain) ServerGroups() []*ServerGroup                 { return d.serverGroups.values() }
func (d *Domain) ServerGroupSnapshot() map[string]*ServerGroup { return d.serverGroups.snapshot() }

func (d *Domain) ServerGroupNames() []string { return d.serverGroups.keys() }

// AddServerGroup validates the group's references before adding it.
func (d *Domain) AddServerGroup(g *ServerGroup) error {
	if d.serverGroups.has(g.Name()) {
		return UpdateFailed("server group %q already exists", g.Name())
	}
	if err := d.CheckServerGroupRefs(g); err != nil {
		return err
	}
	if !d.serverGroups.add(g.Name(), g) {
		return UpdateFailed("server group %q already exists", g.Name())
	}
	return nil
}

// CheckServerGroupRefs validates the profile, binding group and deployment
// references of g against the domain.
func (d *Domain) CheckServerGroupRefs(g *ServerGroup) error {
	if !d.profiles.has(g.Profile()) {
		return UpdateFailed("server group %q references unknown profile %q", g.Name(), g.Profile())
	}
	if sbg, _ := g.SocketBinding(); sbg != "" && !d.bindingGroups.has(sbg) {
		return UpdateFailed("server group %q references unknown socket binding group %q", g.Name(), sbg)
	}
	for _, dep := range g.Deployments() {
		if !d.deployments.has(dep.Key().String()) {
			return UpdateFailed("server group %q maps unknown deployment %s", g.Name(), dep.Key())
		}
	}
	return nil
}

func (d *Domain) RemoveServerGroup(name string) (*ServerGroup, error) {
	old, ok := d.serverGroups.remove(name)
	if !ok {
		return nil, UpdateFailed("server group %q does not exist", name)
	}
	return old, nil
}

// ServerGroupsUsingBindingGroup lists the groups whose binding group is, or includes, name.
func (d *Domain) ServerGroupsUsingBindingGroup(name string) []string {
	var out []string
	for _, g := range d.serverGroups.values() {
		if sbg, _ := g.SocketBinding(); sbg != "" && d.bindingGroupReaches(sbg, name) {
			out = append(out, g.Name())
		}
	}
	return out
}

// ===========================================================================
// Whole tree
// ===========================================================================

// DeepCopy returns an independent copy. Immutable leaves are shared.
func (d *Domain) DeepCopy() *Domain {
	out := NewDomain()
	for k, e := range d.extensions.snapshot() {
		out.extensions.put(k, e)
	}
	for k, p := range d.profiles.snapshot() {
		out.profiles.put(k, p.DeepCopy())
	}
	for k, i := range d.interfaces.snapshot() {
		out.interfaces.put(k, i)
	}
	for k, g := range d.bindingGroups.snapshot() {
		out.bindingGroups.put(k, g.DeepCopy())
	}
	for k, dep := range d.deployments.snapshot() {
		out.deployments.put(k, dep)
	}
	for k, g := range d.serverGroups.snapshot() {
		out.serverGroups.put(k, g.DeepCopy())
	}
	out.properties = d.properties.Clone()
	return out
}

func (d *Domain) Fingerprint() uint64 {
	h := newHasher("domain")
	foldChildren(h, "extension", d.extensions.values())
	foldChildren(h, "profile", d.profiles.values())
	foldChildren(h, "interface", d.interfaces.values())
	foldChildren(h, "socket-binding-group", d.bindingGroups.values())
	foldChildren(h, "deployment", d.deployments.values())
	foldChildren(h, "server-group", d.serverGroups.values())
	h.child(d.properties.Fingerprint())
	return h.sum()
}
