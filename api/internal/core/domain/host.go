package domain

import (
	"fmt"
	"sync"
)

// DomainControllerRef says where a host finds its domain controller: either
// the host runs it locally, or it connects to a remote address.
type DomainControllerRef struct {
	Local bool
	Host  string
	Port  int
}

// LocalController is the reference of a host that runs the domain controller itself.
func LocalController() DomainControllerRef { return DomainControllerRef{Local: true} }

// RemoteController points at a domain controller on another host.
func RemoteController(host string, port int) DomainControllerRef {
	return DomainControllerRef{Host: host, Port: port}
}

// Validate enforces that exactly one of the local marker and the remote address is set.
func (r DomainControllerRef) Validate() error {
	switch {
	case r.Local && (r.Host != "" || r.Port != 0):
		return UpdateFailed("domain controller cannot be both local and remote")
	case !r.Local && r.Host == "":
		return UpdateFailed("remote domain controller requires a host")
	case !r.Local && (r.Port <= 0 || r.Port > 65535):
		return UpdateFailed("remote domain controller port %d is out of range", r.Port)
	}
	return nil
}

func (r DomainControllerRef) String() string {
	if r.Local {
		return "local"
	}
	return fmt.Sprintf("remote://%s:%d", r.Host, r.Port)
}

// Server is a server instance declared on a host.
type Server struct {
	name string

	mu                 sync.RWMutex
	group              string
	jvm                *JVM
	socketBindingGroup string
	portOffset         *int
	autoStart          bool

	interfaces keyed[string, *Interface]
	properties *Properties
}

func NewServer(name, group string) *Server {
	return &Server{name: name, group: group, autoStart: true, properties: NewProperties(false)}
}

func (s *Server) Name() string { return s.name }

func (s *Server) Group() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.group
}

func (s *Server) SetGroup(group string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.group
	s.group = group
	return old
}

func (s *Server) JVM() *JVM {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jvm
}

func (s *Server) SetJVM(j *JVM) *JVM {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.jvm
	s.jvm = j
	return old
}

// SocketBinding returns the binding group override ("" when unset) and the
// port offset override (nil when unset).
func (s *Server) SocketBinding() (string, *int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.socketBindingGroup, cloneInt(s.portOffset)
}

func (s *Server) SetSocketBinding(group string, offset *int) (string, *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldGroup, oldOffset := s.socketBindingGroup, s.portOffset
	s.socketBindingGroup, s.portOffset = group, cloneInt(offset)
	return oldGroup, oldOffset
}

func (s *Server) AutoStart() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoStart
}

func (s *Server) SetAutoStart(v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.autoStart
	s.autoStart = v
	return old
}

func (s *Server) Interface(name string) (*Interface, bool) { return s.interfaces.get(name) }
func (s *Server) Interfaces() []*Interface                 { return s.interfaces.values() }
func (s *Server) InterfaceSnapshot() map[string]*Interface { return s.interfaces.snapshot() }

// SetInterface adds or replaces an interface override.
func (s *Server) SetInterface(i *Interface) (*Interface, bool) { return s.interfaces.put(i.Name, i) }

func (s *Server) RemoveInterface(name string) (*Interface, error) {
	old, ok := s.interfaces.remove(name)
	if !ok {
		return nil, UpdateFailed("server %q has no interface %q", s.name, name)
	}
	return old, nil
}

func (s *Server) Properties() *Properties { return s.properties }

func (s *Server) DeepCopy() *Server {
	s.mu.RLock()
	out := &Server{
		name:               s.name,
		group:              s.group,
		jvm:                s.jvm.Clone(),
		socketBindingGroup: s.socketBindingGroup,
		portOffset:         cloneInt(s.portOffset),
		autoStart:          s.autoStart,
	}
	s.mu.RUnlock()
	for k, i := range s.interfaces.snapshot() {
		out.interfaces.put(k, i)
	}
	out.properties = s.properties.Clone()
	return out
}

func (s *Server) Fingerprint() uint64 {
	s.mu.RLock()
	h := newHasher("server").
		str("name", s.name).
		str("group", s.group).
		str("socket-binding-group", s.socketBindingGroup).
		bool("auto-start", s.autoStart)
	if s.portOffset == nil {
		h.optional("port-offset", nil)
	} else {
		h.int("port-offset", *s.portOffset)
	}
	fingerprintJVM(h, s.jvm)
	s.mu.RUnlock()
	foldChildren(h, "interface", s.interfaces.values())
	h.child(s.properties.Fingerprint())
	return h.sum()
}

// Host is a machine running server instances.
type Host struct {
	name string

	mu               sync.RWMutex
	domainController DomainControllerRef

	extensions keyed[string, *Extension]
	interfaces keyed[string, *Interface]
	jvms       keyed[string, *JVM]
	servers    keyed[string, *Server]
	properties *Properties
}

// NewHost creates a host that runs the domain controller locally.
func NewHost(name string) *Host {
	return &Host{name: name, domainController: LocalController(), properties: NewProperties(false)}
}

func (h *Host) Name() string { return h.name }

func (h *Host) DomainController() DomainControllerRef {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.domainController
}

func (h *Host) SetDomainController(ref DomainControllerRef) (DomainControllerRef, error) {
	if err := ref.Validate(); err != nil {
		return DomainControllerRef{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.domainController
	h.domainController = ref
	return old, nil
}

func (h *Host) Extension(module string) (*Extension, bool) { return h.extensions.get(module) }
func (h *Host) Extensions() []*Extension                   { return h.extensions.values() }
func (h *Host) ExtensionSnapshot() map[string]*Extension   { return h.extensions.snapshot() }

func (h *Host) AddExtension(e *Extension) error {
	if !h.extensions.add(e.Module, e) {
		return UpdateFailed("extension %q already exists on host %q", e.Module, h.name)
	}
	return nil
}

func (h *Host) RemoveExtension(module string) (*Extension, error) {
	old, ok := h.extensions.remove(module)
	if !ok {
		return nil, UpdateFailed("extension %q does not exist on host %q", module, h.name)
	}
	return old, nil
}

func (h *Host) Interface(name string) (*Interface, bool) { return h.interfaces.get(name) }
func (h *Host) Interfaces() []*Interface                 { return h.interfaces.values() }
func (h *Host) InterfaceSnapshot() map[string]*Interface { return h.interfaces.snapshot() }

func (h *Host) AddInterface(i *Interface) error {
	if !h.interfaces.add(i.Name, i) {
		return UpdateFailed("interface %q already exists on host %q", i.Name, h.name)
	}
	return nil
}

func (h *Host) ReplaceInterface(i *Interface) (*Interface, error) {
	old, ok := h.interfaces.replace(i.Name, i)
	if !ok {
		return nil, UpdateFailed("interface %q does not exist on host %q", i.Name, h.name)
	}
	return old, nil
}

func (h *Host) RemoveInterface(name string) (*Interface, error) {
	old, ok := h.interfaces.remove(name)
	if !ok {
		return nil, UpdateFailed("interface %q does not exist on host %q", name, h.name)
	}
	return old, nil
}

func (h *Host) JVM(name string) (*JVM, bool) { return h.jvms.get(name) }
func (h *Host) JVMs() []*JVM                 { return h.jvms.values() }
func (h *Host) JVMSnapshot() map[string]*JVM { return h.jvms.snapshot() }

func (h *Host) AddJVM(j *JVM) error {
	if j.Name == "" {
		return UpdateFailed("host JVM definitions must be named")
	}
	if !h.jvms.add(j.Name, j) {
		return UpdateFailed("jvm %q already exists on host %q", j.Name, h.name)
	}
	return nil
}

func (h *Host) ReplaceJVM(j *JVM) (*JVM, error) {
	old, ok := h.jvms.replace(j.Name, j)
	if !ok {
		return nil, UpdateFailed("jvm %q does not exist on host %q", j.Name, h.name)
	}
	return old, nil
}

func (h *Host) RemoveJVM(name string) (*JVM, error) {
	old, ok := h.jvms.remove(name)
	if !ok {
		return nil, UpdateFailed("jvm %q does not exist on host %q", name, h.name)
	}
	return old, nil
}

func (h *Host) Server(name string) (*Server, bool) { return h.servers.get(name) }
func (h *Host) Servers() []*Server                 { return h.servers.values() }
func (h *Host) ServerSnapshot() map[string]*Server { return h.servers.snapshot() }
func (h *Host) ServerNames() []string              { return h.servers.keys() }

func (h *Host) AddServer(s *Server) error {
	if !h.servers.add(s.Name(), s) {
		return UpdateFailed("server %q already exists on host %q", s.Name(), h.name)
	}
	return nil
}

func (h *Host) RemoveServer(name string) (*Server, error) {
	old, ok := h.servers.remove(name)
	if !ok {
		return nil, UpdateFailed("server %q does not exist on host %q", name, h.name)
	}
	return old, nil
}

// ServersInGroups lists the servers whose group is one of groups.
func (h *Host) ServersInGroups(groups []string) []string {
	want := make(map[string]bool, len(groups))
	for _, g := range groups {
		want[g] = true
	}
	var out []string
	for _, s := range h.servers.values() {
		if want[s.Group()] {
			out = append(out, s.Name())
		}
	}
	return out
}

func (h *Host) Properties() *Properties { return h.properties }

func (h *Host) DeepCopy() *Host {
	out := &Host{name: h.name, domainController: h.DomainController()}
	for k, e := range h.extensions.snapshot() {
		out.extensions.put(k, e)
	}
	for k, i := range h.interfaces.snapshot() {
		out.interfaces.put(k, i)
	}
	for k, j := range h.jvms.snapshot() {
		out.jvms.put(k, j)
	}
	for k, s := range h.servers.snapshot() {
		out.servers.put(k, s.DeepCopy())
	}
	out.properties = h.properties.Clone()
	return out
}

func (h *Host) Fingerprint() uint64 {
	dc := h.DomainController()
	hs := newHasher("host").
		str("name", h.name).
		bool("dc-local", dc.Local).
		str("dc-host", dc.Host).
		int("dc-port", dc.Port)
	foldChildren(hs, "extension", h.extensions.values())
	foldChildren(hs, "interface", h.interfaces.values())
	foldChildren(hs, "jvm", h.jvms.values())
	foldChildren(hs, "server", h.servers.values())
	hs.child(h.properties.Fingerprint())
	return hs.sum()
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
