package domain

import "sync"

// ServerGroup is a set of servers sharing a profile, JVM and socket binding defaults.
type ServerGroup struct {
	name string

	mu                 sync.RWMutex
	profile            string
	jvm                *JVM
	socketBindingGroup string
	portOffset         int

	deployments keyed[string, *ServerGroupDeployment]
	properties  *Properties
}

func NewServerGroup(name, profile string) *ServerGroup {
	return &ServerGroup{name: name, profile: profile, properties: NewProperties(false)}
}

func (g *ServerGroup) Name() string { return g.name }

func (g *ServerGroup) Profile() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.profile
}

// SetProfile swaps the profile reference and returns the previous one.
func (g *ServerGroup) SetProfile(name string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.profile
	g.profile = name
	return old
}

// JVM returns the group's JVM settings or nil when the group sets none.
func (g *ServerGroup) JVM() *JVM {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.jvm
}

func (g *ServerGroup) SetJVM(j *JVM) *JVM {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.jvm
	g.jvm = j
	return old
}

// SocketBinding returns the binding group reference and the port offset.
func (g *ServerGroup) SocketBinding() (string, int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.socketBindingGroup, g.portOffset
}

func (g *ServerGroup) SetSocketBinding(group string, offset int) (string, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	oldGroup, oldOffset := g.socketBindingGroup, g.portOffset
	g.socketBindingGroup, g.portOffset = group, offset
	return oldGroup, oldOffset
}

func (g *ServerGroup) Deployment(name string) (*ServerGroupDeployment, bool) {
	return g.deployments.get(name)
}

func (g *ServerGroup) Deployments() []*ServerGroupDeployment { return g.deployments.values() }

func (g *ServerGroup) DeploymentSnapshot() map[string]*ServerGroupDeployment {
	return g.deployments.snapshot()
}

func (g *ServerGroup) AddDeployment(d *ServerGroupDeployment) error {
	if !g.deployments.add(d.UniqueName, d) {
		return UpdateFailed("deployment %q is already mapped to server group %q", d.UniqueName, g.name)
	}
	return nil
}

func (g *ServerGroup) ReplaceDeployment(d *ServerGroupDeployment) (*ServerGroupDeployment, error) {
	old, ok := g.deployments.replace(d.UniqueName, d)
	if !ok {
		return nil, UpdateFailed("deployment %q is not mapped to server group %q", d.UniqueName, g.name)
	}
	return old, nil
}

func (g *ServerGroup) RemoveDeployment(name string) (*ServerGroupDeployment, error) {
	old, ok := g.deployments.remove(name)
	if !ok {
		return nil, UpdateFailed("deployment %q is not mapped to server group %q", name, g.name)
	}
	return old, nil
}

func (g *ServerGroup) Properties() *Properties { return g.properties }

func (g *ServerGroup) DeepCopy() *ServerGroup {
	g.mu.RLock()
	out := &ServerGroup{
		name:               g.name,
		profile:            g.profile,
		jvm:                g.jvm.Clone(),
		socketBindingGroup: g.socketBindingGroup,
		portOffset:         g.portOffset,
	}
	g.mu.RUnlock()
	for k, d := range g.deployments.snapshot() {
		out.deployments.put(k, d)
	}
	out.properties = g.properties.Clone()
	return out
}

func (g *ServerGroup) Fingerprint() uint64 {
	g.mu.RLock()
	h := newHasher("server-group").
		str("name", g.name).
		str("profile", g.profile).
		str("socket-binding-group", g.socketBindingGroup).
		int("port-offset", g.portOffset)
	fingerprintJVM(h, g.jvm)
	g.mu.RUnlock()
	foldChildren(h, "deployment", g.deployments.values())
	h.child(g.properties.Fingerprint())
	return h.sum()
}
