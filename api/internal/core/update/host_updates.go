package update

import (
	"fmt"
	"strconv"

	"github.com/irgordon/karidc/api/internal/core/domain"
)

type hostOnly struct{}

func (hostOnly) ServerModelUpdate() ServerModelUpdate  { return nil }
func (hostOnly) AffectedServers(*domain.Host) []string { return nil }

func allServers(h *domain.Host) []string { return h.ServerNames() }

// ===========================================================================
// Server element updates
// ===========================================================================

// ServerGroupRef moves a server into another server group.
type ServerGroupRef struct {
	Group string
}

func (u *ServerGroupRef) Apply(s *domain.Server) error {
	if u.Group == "" {
		return domain.UpdateFailed("server %q requires a server group", s.Name())
	}
	s.SetGroup(u.Group)
	return nil
}

func (u *ServerGroupRef) Compensate(orig *domain.Server) ServerUpdate {
	return &ServerGroupRef{Group: orig.Group()}
}

func (u *ServerGroupRef) String() string { return "group " + u.Group }

// ServerJVM replaces the server's JVM override; nil clears it.
type ServerJVM struct {
	JVM *domain.JVM
}

func (u *ServerJVM) Apply(s *domain.Server) error {
	s.SetJVM(u.JVM.Clone())
	return nil
}

func (u *ServerJVM) Compensate(orig *domain.Server) ServerUpdate {
	return &ServerJVM{JVM: orig.JVM().Clone()}
}

func (u *ServerJVM) String() string {
	if u.JVM == nil {
		return "jvm <none>"
	}
	return "jvm " + u.JVM.Name
}

// ServerSocketBinding sets the binding group and port offset overrides.
type ServerSocketBinding struct {
	Group      string
	PortOffset *int
}

func (u *ServerSocketBinding) Apply(s *domain.Server) error {
	s.SetSocketBinding(u.Group, u.PortOffset)
	return nil
}

func (u *ServerSocketBinding) Compensate(orig *domain.Server) ServerUpdate {
	group, offset := orig.SocketBinding()
	return &ServerSocketBinding{Group: group, PortOffset: offset}
}

func (u *ServerSocketBinding) String() string {
	offset := "<inherit>"
	if u.PortOffset != nil {
		offset = strconv.Itoa(*u.PortOffset)
	}
	return fmt.Sprintf("socket-binding %s+%s", u.Group, offset)
}

// ServerInterfaceSet adds or replaces an interface override.
type ServerInterfaceSet struct {
	Interface *domain.Interface
}

func (u *ServerInterfaceSet) Apply(s *domain.Server) error {
	s.SetInterface(u.Interface)
	return nil
}

func (u *ServerInterfaceSet) Compensate(orig *domain.Server) ServerUpdate {
	if i, ok := orig.Interface(u.Interface.Name); ok {
		return &ServerInterfaceSet{Interface: i}
	}
	return &ServerInterfaceRemove{Name: u.Interface.Name}
}

func (u *ServerInterfaceSet) modelProjection() ServerModelUpdate {
	return &ModelInterfaces{Set: []*domain.Interface{u.Interface}}
}

func (u *ServerInterfaceSet) String() string { return "interface-set " + u.Interface.Name }

type ServerInterfaceRemove struct {
	Name string
}

func (u *ServerInterfaceRemove) Apply(s *domain.Server) error {
	_, err := s.RemoveInterface(u.Name)
	return err
}

func (u *ServerInterfaceRemove) Compensate(orig *domain.Server) ServerUpdate {
	i, ok := orig.Interface(u.Name)
	if !ok {
		return nil
	}
	return &ServerInterfaceSet{Interface: i}
}

func (u *ServerInterfaceRemove) String() string { return "interface-remove " + u.Name }

type ServerPropertySet struct {
	Name  string
	Value *string
}

func (u *ServerPropertySet) Apply(s *domain.Server) error {
	return s.Properties().Set(u.Name, u.Value)
}

func (u *ServerPropertySet) Compensate(orig *domain.Server) ServerUpdate {
	if v, ok := orig.Properties().Get(u.Name); ok {
		return &ServerPropertySet{Name: u.Name, Value: v}
	}
	return &ServerPropertyRemove{Name: u.Name}
}

func (u *ServerPropertySet) modelProjection() ServerModelUpdate {
	return &ModelPropertySet{Name: u.Name, Value: u.Value}
}

func (u *ServerPropertySet) String() string {
	return fmt.Sprintf("property-set %s=%s", u.Name, fmtValue(u.Value))
}

type ServerPropertyRemove struct {
	Name string
}

func (u *ServerPropertyRemove) Apply(s *domain.Server) error {
	return s.Properties().Remove(u.Name)
}

func (u *ServerPropertyRemove) Compensate(orig *domain.Server) ServerUpdate {
	v, ok := orig.Properties().Get(u.Name)
	if !ok {
		return nil
	}
	return &ServerPropertySet{Name: u.Name, Value: v}
}

func (u *ServerPropertyRemove) modelProjection() ServerModelUpdate {
	return &ModelPropertyRemove{Name: u.Name}
}

func (u *ServerPropertyRemove) String() string { return "property-remove " + u.Name }

type ServerAutoStart struct {
	AutoStart bool
}

func (u *ServerAutoStart) Apply(s *domain.Server) error {
	s.SetAutoStart(u.AutoStart)
	return nil
}

func (u *ServerAutoStart) Compensate(orig *domain.Server) ServerUpdate {
	return &ServerAutoStart{AutoStart: orig.AutoStart()}
}

func (u *ServerAutoStart) String() string { return fmt.Sprintf("auto-start %t", u.AutoStart) }

// ===========================================================================
// Host updates
// ===========================================================================

type HostExtensionAdd struct {
	hostOnly
	Extension *domain.Extension
}

func (u *HostExtensionAdd) Apply(h *domain.Host) error { return h.AddExtension(u.Extension) }

func (u *HostExtensionAdd) Compensate(orig *domain.Host) Update[*domain.Host] {
	if _, ok := orig.Extension(u.Extension.Module); ok {
		return nil
	}
	return &HostExtensionRemove{Module: u.Extension.Module}
}

func (u *HostExtensionAdd) String() string { return "host extension-add " + u.Extension.Module }

type HostExtensionRemove struct {
	hostOnly
	Module string
}

func (u *HostExtensionRemove) Apply(h *domain.Host) error {
	_, err := h.RemoveExtension(u.Module)
	return err
}

func (u *HostExtensionRemove) Compensate(orig *domain.Host) Update[*domain.Host] {
	e, ok := orig.Extension(u.Module)
	if !ok {
		return nil
	}
	return &HostExtensionAdd{Extension: e}
}

func (u *HostExtensionRemove) String() string { return "host extension-remove " + u.Module }

type HostInterfaceAdd struct {
	Interface *domain.Interface
}

func (u *HostInterfaceAdd) Apply(h *domain.Host) error { return h.AddInterface(u.Interface) }

func (u *HostInterfaceAdd) Compensate(orig *domain.Host) Update[*domain.Host] {
	if _, ok := orig.Interface(u.Interface.Name); ok {
		return nil
	}
	return &HostInterfaceRemove{Name: u.Interface.Name}
}

func (u *HostInterfaceAdd) ServerModelUpdate() ServerModelUpdate {
	return &ModelInterfaces{Set: []*domain.Interface{u.Interface}}
}

func (u *HostInterfaceAdd) AffectedServers(h *domain.Host) []string { return allServers(h) }
func (u *HostInterfaceAdd) String() string                          { return "host interface-add " + u.Interface.Name }

type HostInterfaceRemove struct {
	Name string
}

func (u *HostInterfaceRemove) Apply(h *domain.Host) error {
	_, err := h.RemoveInterface(u.Name)
	return err
}

func (u *HostInterfaceRemove) Compensate(orig *domain.Host) Update[*domain.Host] {
	i, ok := orig.Interface(u.Name)
	if !ok {
		return nil
	}
	return &HostInterfaceAdd{Interface: i}
}

func (u *HostInterfaceRemove) ServerModelUpdate() ServerModelUpdate {
	return &ModelInterfaces{Remove: []string{u.Name}}
}

func (u *HostInterfaceRemove) AffectedServers(h *domain.Host) []string { return allServers(h) }
func (u *HostInterfaceRemove) String() string                          { return "host interface-remove " + u.Name }

type HostInterfaceReplace struct {
	Interface *domain.Interface
}

func (u *HostInterfaceReplace) Apply(h *domain.Host) error {
	_, err := h.ReplaceInterface(u.Interface)
	return err
}

func (u *HostInterfaceReplace) Compensate(orig *domain.Host) Update[*domain.Host] {
	i, ok := orig.Interface(u.Interface.Name)
	if !ok {
		return nil
	}
	return &HostInterfaceReplace{Interface: i}
}

func (u *HostInterfaceReplace) ServerModelUpdate() ServerModelUpdate {
	return &ModelInterfaces{Set: []*domain.Interface{u.Interface}}
}

func (u *HostInterfaceReplace) AffectedServers(h *domain.Host) []string { return allServers(h) }
func (u *HostInterfaceReplace) String() string                          { return "host interface-replace " + u.Interface.Name }

type HostJVMAdd struct {
	JVM *domain.JVM
}

func (u *HostJVMAdd) Apply(h *domain.Host) error { return h.AddJVM(u.JVM.Clone()) }

func (u *HostJVMAdd) Compensate(orig *domain.Host) Update[*domain.Host] {
	if _, ok := orig.JVM(u.JVM.Name); ok {
		return nil
	}
	return &HostJVMRemove{Name: u.JVM.Name}
}

func (u *HostJVMAdd) ServerModelUpdate() ServerModelUpdate    { return nil }
func (u *HostJVMAdd) AffectedServers(h *domain.Host) []string { return allServers(h) }
func (u *HostJVMAdd) String() string                          { return "host jvm-add " + u.JVM.Name }

type HostJVMRemove struct {
	Name string
}

func (u *HostJVMRemove) Apply(h *domain.Host) error {
	_, err := h.RemoveJVM(u.Name)
	return err
}

func (u *HostJVMRemove) Compensate(orig *domain.Host) Update[*domain.Host] {
	j, ok := orig.JVM(u.Name)
	if !ok {
		return nil
	}
	return &HostJVMAdd{JVM: j}
}

func (u *HostJVMRemove) ServerModelUpdate() ServerModelUpdate    { return nil }
func (u *HostJVMRemove) AffectedServers(h *domain.Host) []string { return allServers(h) }
func (u *HostJVMRemove) String() string                          { return "host jvm-remove " + u.Name }

type HostJVMReplace struct {
	JVM *domain.JVM
}

func (u *HostJVMReplace) Apply(h *domain.Host) error {
	_, err := h.ReplaceJVM(u.JVM.Clone())
	return err
}

func (u *HostJVMReplace) Compensate(orig *domain.Host) Update[*domain.Host] {
	j, ok := orig.JVM(u.JVM.Name)
	if !ok {
		return nil
	}
	return &HostJVMReplace{JVM: j}
}

func (u *HostJVMReplace) ServerModelUpdate() ServerModelUpdate    { return nil }
func (u *HostJVMReplace) AffectedServers(h *domain.Host) []string { return allServers(h) }
func (u *HostJVMReplace) String() string                          { return "host jvm-replace " + u.JVM.Name }

type HostServerAdd struct {
	Server *domain.Server
}

func (u *HostServerAdd) Apply(h *domain.Host) error { return h.AddServer(u.Server.DeepCopy()) }

func (u *HostServerAdd) Compensate(orig *domain.Host) Update[*domain.Host] {
	if _, ok := orig.Server(u.Server.Name()); ok {
		return nil
	}
	return &HostServerRemove{Name: u.Server.Name()}
}

func (u *HostServerAdd) ServerModelUpdate() ServerModelUpdate  { return nil }
func (u *HostServerAdd) AffectedServers(*domain.Host) []string { return []string{u.Server.Name()} }
func (u *HostServerAdd) String() string                        { return "host server-add " + u.Server.Name() }

type HostServerRemove struct {
	Name string
}

func (u *HostServerRemove) Apply(h *domain.Host) error {
	_, err := h.RemoveServer(u.Name)
	return err
}

func (u *HostServerRemove) Compensate(orig *domain.Host) Update[*domain.Host] {
	s, ok := orig.Server(u.Name)
	if !ok {
		return nil
	}
	return &HostServerAdd{Server: s.DeepCopy()}
}

func (u *HostServerRemove) ServerModelUpdate() ServerModelUpdate  { return nil }
func (u *HostServerRemove) AffectedServers(*domain.Host) []string { return []string{u.Name} }
func (u *HostServerRemove) String() string                        { return "host server-remove " + u.Name }

// HostServerUpdate applies an element update to one server declaration.
type HostServerUpdate struct {
	Server string
	Update ServerUpdate
}

func (u *HostServerUpdate) Apply(h *domain.Host) error {
	s, ok := h.Server(u.Server)
	if !ok {
		return domain.UpdateFailed("server %q does not exist on host %q", u.Server, h.Name())
	}
	return u.Update.Apply(s)
}

func (u *HostServerUpdate) Compensate(orig *domain.Host) Update[*domain.Host] {
	s, ok := orig.Server(u.Server)
	if !ok {
		return nil
	}
	inner := u.Update.Compensate(s)
	if inner == nil {
		return nil
	}
	return &HostServerUpdate{Server: u.Server, Update: inner}
}

func (u *HostServerUpdate) ServerModelUpdate() ServerModelUpdate  { return projectionOf(u.Update) }
func (u *HostServerUpdate) AffectedServers(*domain.Host) []string { return []string{u.Server} }

func (u *HostServerUpdate) String() string {
	return fmt.Sprintf("host server %s: %s", u.Server, u.Update)
}

type HostPropertySet struct {
	Name  string
	Value *string
}

func (u *HostPropertySet) Apply(h *domain.Host) error {
	return h.Properties().Set(u.Name, u.Value)
}

func (u *HostPropertySet) Compensate(orig *domain.Host) Update[*domain.Host] {
	if v, ok := orig.Properties().Get(u.Name); ok {
		return &HostPropertySet{Name: u.Name, Value: v}
	}
	return &HostPropertyRemove{Name: u.Name}
}

func (u *HostPropertySet) ServerModelUpdate() ServerModelUpdate {
	return &ModelPropertySet{Name: u.Name, Value: u.Value}
}

func (u *HostPropertySet) AffectedServers(h *domain.Host) []string { return allServers(h) }

func (u *HostPropertySet) String() string {
	return fmt.Sprintf("host property-set %s=%s", u.Name, fmtValue(u.Value))
}

type HostPropertyRemove struct {
	Name string
}

func (u *HostPropertyRemove) Apply(h *domain.Host) error {
	return h.Properties().Remove(u.Name)
}

func (u *HostPropertyRemove) Compensate(orig *domain.Host) Update[*domain.Host] {
	v, ok := orig.Properties().Get(u.Name)
	if !ok {
		return nil
	}
	return &HostPropertySet{Name: u.Name, Value: v}
}

func (u *HostPropertyRemove) ServerModelUpdate() ServerModelUpdate {
	return &ModelPropertyRemove{Name: u.Name}
}

func (u *HostPropertyRemove) AffectedServers(h *domain.Host) []string { return allServers(h) }
func (u *HostPropertyRemove) String() string                          { return "host property-remove " + u.Name }

// HostDomainController switches between a local and a remote domain controller.
type HostDomainController struct {
	hostOnly
	Ref domain.DomainControllerRef
}

func (u *HostDomainController) Apply(h *domain.Host) error {
	_, err := h.SetDomainController(u.Ref)
	return err
}

func (u *HostDomainController) Compensate(orig *domain.Host) Update[*domain.Host] {
	return &HostDomainController{Ref: orig.DomainController()}
}

func (u *HostDomainController) String() string { return "host domain-controller " + u.Ref.String() }
