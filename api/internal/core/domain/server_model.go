package domain

import (
	"sync"
)

// ServerModel is the flattened configuration one server instance runs with.
// It is derived from a Domain, a Host and a server name and never authored by hand.
type ServerModel struct {
	serverName string
	hostName   string
	groupName  string

	mu         sync.RWMutex
	bindings   *SocketBindingGroup
	portOffset int
	jvm        *JVM

	profile     *Profile
	interfaces  keyed[string, *Interface]
	deployments keyed[string, *ServerGroupDeployment]
	properties  *Properties
}

func (m *ServerModel) ServerName() string { return m.serverName }
func (m *ServerModel) HostName() string   { return m.hostName }

func (m *ServerModel) GroupName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.groupName
}

// Profile is the resolved profile: includes already merged in.
func (m *ServerModel) Profile() *Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profile
}

// SetGroup moves the model to another server group whose resolved profile is
// named profile. Subsystems carry over; they are reconciled separately.
func (m *ServerModel) SetGroup(group, profile string) (oldGroup, oldProfile string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldGroup, oldProfile = m.groupName, m.profile.Name()
	if profile != oldProfile {
		renamed := NewProfile(profile)
		for k, s := range m.profile.subsystems.snapshot() {
			renamed.subsystems.put(k, s)
		}
		m.profile = renamed
	}
	m.groupName = group
	return oldGroup, oldProfile
}

func (m *ServerModel) Properties() *Properties { return m.properties }

func (m *ServerModel) Interface(name string) (*Interface, bool) { return m.interfaces.get(name) }
func (m *ServerModel) Interfaces() []*Interface                 { return m.interfaces.values() }
func (m *ServerModel) InterfaceSnapshot() map[string]*Interface { return m.interfaces.snapshot() }

func (m *ServerModel) SetInterface(i *Interface) (*Interface, bool) { return m.interfaces.put(i.Name, i) }

func (m *ServerModel) RemoveInterface(name string) (*Interface, error) {
	old, ok := m.interfaces.remove(name)
	if !ok {
		return nil, UpdateFailed("server %q has no interface %q", m.serverName, name)
	}
	return old, nil
}

// SocketBindings returns the resolved binding group (nil when none) and port offset.
func (m *ServerModel) SocketBindings() (*SocketBindingGroup, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bindings, m.portOffset
}

func (m *ServerModel) SetSocketBindings(g *SocketBindingGroup, offset int) (*SocketBindingGroup, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldGroup, oldOffset := m.bindings, m.portOffset
	m.bindings, m.portOffset = g, offset
	return oldGroup, oldOffset
}

func (m *ServerModel) JVM() *JVM {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jvm
}

func (m *ServerModel) SetJVM(j *JVM) *JVM {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.jvm
	m.jvm = j
	return old
}

func (m *ServerModel) Deployment(name string) (*ServerGroupDeployment, bool) {
	return m.deployments.get(name)
}
func (m *ServerModel) Deployments() []*ServerGroupDeployment { return m.deployments.values() }
func (m *ServerModel) DeploymentSnapshot() map[string]*ServerGroupDeployment {
	return m.deployments.snapshot()
}

func (m *ServerModel) AddDeployment(d *ServerGroupDeployment) error {
	if !m.deployments.add(d.UniqueName, d) {
		return UpdateFailed("deployment %q already exists on server %q", d.UniqueName, m.serverName)
	}
	return nil
}

func (m *ServerModel) ReplaceDeployment(d *ServerGroupDeployment) (*ServerGroupDeployment, error) {
	old, ok := m.deployments.replace(d.UniqueName, d)
	if !ok {
		return nil, UpdateFailed("deployment %q does not exist on server %q", d.UniqueName, m.serverName)
	}
	return old, nil
}

func (m *ServerModel) RemoveDeployment(name string) (*ServerGroupDeployment, error) {
	old, ok := m.deployments.remove(name)
	if !ok {
		return nil, UpdateFailed("deployment %q does not exist on server %q", name, m.serverName)
	}
	return old, nil
}

// Skeleton returns a copy without subsystems or deployments. A booting server
// starts from the skeleton and replays its boot updates on top of it.
func (m *ServerModel) Skeleton() *ServerModel {
	out := m.shallow()
	out.profile = NewProfile(m.Profile().Name())
	return out
}

func (m *ServerModel) DeepCopy() *ServerModel {
	out := m.shallow()
	out.profile = m.Profile().DeepCopy()
	for k, d := range m.deployments.snapshot() {
		out.deployments.put(k, d)
	}
	return out
}

func (m *ServerModel) shallow() *ServerModel {
	m.mu.RLock()
	out := &ServerModel{
		serverName: m.serverName,
		hostName:   m.hostName,
		groupName:  m.groupName,
		portOffset: m.portOffset,
		jvm:        m.jvm.Clone(),
	}
	if m.bindings != nil {
		out.bindings = m.bindings.DeepCopy()
	}
	m.mu.RUnlock()
	for k, i := range m.interfaces.snapshot() {
		out.interfaces.put(k, i)
	}
	out.properties = m.properties.Clone()
	return out
}

func (m *ServerModel) Fingerprint() uint64 {
	m.mu.RLock()
	h := newHasher("server-model").
		str("server", m.serverName).
		str("host", m.hostName).
		str("group", m.groupName).
		int("port-offset", m.portOffset)
	if m.bindings == nil {
		h.optional("bindings", nil)
	} else {
		h.child(m.bindings.Fingerprint())
	}
	fingerprintJVM(h, m.jvm)
	profile := m.profile
	m.mu.RUnlock()
	h.child(profile.Fingerprint())
	foldChildren(h, "interface", m.interfaces.values())
	foldChildren(h, "deployment", m.deployments.values())
	h.child(m.properties.Fingerprint())
	return h.sum()
}
