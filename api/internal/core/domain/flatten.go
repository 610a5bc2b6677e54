package domain

// NewServerModel flattens the domain and host layers into the effective
// configuration of one server. No partial model is returned on error.
func NewServerModel(d *Domain, h *Host, serverName string) (*ServerModel, error) {
	// 1. Resolve the Server -> ServerGroup -> Profile chain
	server, ok := h.Server(serverName)
	if !ok {
		return nil, ConfigurationFailed("server %q is not declared on host %q", serverName, h.Name())
	}
	group, ok := d.ServerGroup(server.Group())
	if !ok {
		return nil, ConfigurationFailed("server %q references unknown server group %q", serverName, server.Group())
	}
	profile, err := resolveProfile(d, group.Profile(), map[string]bool{})
	if err != nil {
		return nil, err
	}

	m := &ServerModel{
		serverName: serverName,
		hostName:   h.Name(),
		groupName:  group.Name(),
		profile:    profile,
	}

	// 2. Properties: domain, group, host, server. Last write wins.
	m.properties = d.Properties().Clone()
	m.properties.Merge(group.Properties())
	m.properties.Merge(h.Properties())
	m.properties.Merge(server.Properties())

	// 3. Interfaces: fully specified domain interfaces, then host, then server overlays
	for _, i := range d.Interfaces() {
		if i.FullySpecified() {
			m.interfaces.put(i.Name, i)
		}
	}
	for _, i := range h.Interfaces() {
		m.interfaces.put(i.Name, i)
	}
	for _, i := range server.Interfaces() {
		m.interfaces.put(i.Name, i)
	}

	// 4. Socket bindings: the server's reference wins over the group's
	sbgName, offset := group.SocketBinding()
	serverSBG, serverOffset := server.SocketBinding()
	if serverSBG != "" {
		sbgName = serverSBG
	}
	if serverOffset != nil {
		offset = *serverOffset
	}
	if sbgName != "" {
		bindings, err := resolveBindingGroup(d, sbgName, map[string]bool{})
		if err != nil {
			return nil, err
		}
		if err := m.checkInterfaces(bindings); err != nil {
			return nil, err
		}
		m.bindings = bindings
	}
	m.portOffset = offset

	// 5. JVM: host definition named by the server or group, overlaid by group then server
	m.jvm = resolveJVM(h, group.JVM(), server.JVM())

	// 6. Deployments are immutable mappings and can be shared
	for _, dep := range group.Deployments() {
		m.deployments.put(dep.UniqueName, dep)
	}
	return m, nil
}

// checkInterfaces makes sure every interface the bindings need resolves to a
// fully specified definition.
func (m *ServerModel) checkInterfaces(g *SocketBindingGroup) error {
	need := func(name, user string) error {
		i, ok := m.interfaces.get(name)
		if !ok || !i.FullySpecified() {
			return ConfigurationFailed("interface %q required by %s is not resolved for server %q", name, user, m.serverName)
		}
		return nil
	}
	if def := g.DefaultInterface(); def != "" {
		if err := need(def, "socket binding group "+g.Name()); err != nil {
			return err
		}
	}
	for _, b := range g.Bindings() {
		name := b.Interface
		if name == "" {
			name = g.DefaultInterface()
			if name == "" {
				return ConfigurationFailed("socket binding %q has no interface and group %q has no default", b.Name, g.Name())
			}
		}
		if err := need(name, "socket binding "+b.Name); err != nil {
			return err
		}
	}
	return nil
}

// resolveProfile deep-copies a profile with its includes merged in. Included
// content is applied first so the including profile wins on conflicts.
func resolveProfile(d *Domain, name string, visiting map[string]bool) (*Profile, error) {
	if visiting[name] {
		return nil, ConfigurationFailed("profile %q includes itself", name)
	}
	p, ok := d.Profile(name)
	if !ok {
		return nil, ConfigurationFailed("profile %q does not exist", name)
	}
	visiting[name] = true
	defer delete(visiting, name)

	out := NewProfile(name)
	for _, inc := range p.Includes() {
		resolved, err := resolveProfile(d, inc, visiting)
		if err != nil {
			return nil, err
		}
		for _, s := range resolved.Subsystems() {
			out.PutSubsystem(s)
		}
	}
	for _, s := range p.Subsystems() {
		out.PutSubsystem(s.Copy())
	}
	return out, nil
}

func resolveBindingGroup(d *Domain, name string, visiting map[string]bool) (*SocketBindingGroup, error) {
	if visiting[name] {
		return nil, ConfigurationFailed("socket binding group %q includes itself", name)
	}
	g, ok := d.SocketBindingGroup(name)
	if !ok {
		return nil, ConfigurationFailed("socket binding group %q does not exist", name)
	}
	visiting[name] = true
	defer delete(visiting, name)

	out := NewSocketBindingGroup(name, g.DefaultInterface())
	for _, inc := range g.Includes() {
		resolved, err := resolveBindingGroup(d, inc, visiting)
		if err != nil {
			return nil, err
		}
		for _, b := range resolved.Bindings() {
			out.bindings.put(b.Name, b)
		}
	}
	for _, b := range g.Bindings() {
		out.bindings.put(b.Name, b)
	}
	return out, nil
}

func resolveJVM(h *Host, groupJVM, serverJVM *JVM) *JVM {
	name := ""
	if groupJVM != nil {
		name = groupJVM.Name
	}
	if serverJVM != nil && serverJVM.Name != "" {
		name = serverJVM.Name
	}
	var base *JVM
	if name != "" {
		if hostJVM, ok := h.JVM(name); ok {
			base = hostJVM
		}
	}
	return base.Merge(groupJVM).Merge(serverJVM)
}
