package document

import (
	"fmt"
	"strconv"

	"github.com/irgordon/karidc/api/internal/core/domain"
)

// ===========================================================================
// Tree -> document
// ===========================================================================

// FromDomain captures d as a document. Every list comes out sorted by name.
func FromDomain(d *domain.Domain) *DomainDoc {
	doc := &DomainDoc{Properties: propertiesDoc(d.Properties())}
	for _, e := range d.Extensions() {
		doc.Extensions = append(doc.Extensions, e.Module)
	}
	for _, p := range d.Profiles() {
		doc.Profiles = append(doc.Profiles, profileDoc(p))
	}
	for _, i := range d.Interfaces() {
		doc.Interfaces = append(doc.Interfaces, *i)
	}
	for _, g := range d.SocketBindingGroups() {
		doc.SocketBindingGroups = append(doc.SocketBindingGroups, bindingGroupDoc(g))
	}
	for _, dep := range d.Deployments() {
		doc.Deployments = append(doc.Deployments, DeploymentDoc{
			Name:        dep.Key.Name,
			Hash:        dep.Key.Hash.String(),
			RuntimeName: dep.RuntimeName,
		})
	}
	for _, g := range d.ServerGroups() {
		sbg, offset := g.SocketBinding()
		gd := ServerGroupDoc{
			Name:               g.Name(),
			Profile:            g.Profile(),
			SocketBindingGroup: sbg,
			PortOffset:         offset,
			JVM:                jvmDoc(g.JVM()),
			Properties:         propertiesDoc(g.Properties()),
		}
		for _, m := range g.Deployments() {
			gd.Deployments = append(gd.Deployments, groupDeploymentDoc(m))
		}
		doc.ServerGroups = append(doc.ServerGroups, gd)
	}
	return doc
}

// FromHost captures h as a document.
func FromHost(h *domain.Host) *HostDoc {
	ref := h.DomainController()
	doc := &HostDoc{
		Name:             h.Name(),
		DomainController: ControllerDoc{Local: ref.Local, Host: ref.Host, Port: ref.Port},
		Properties:       propertiesDoc(h.Properties()),
	}
	for _, e := range h.Extensions() {
		doc.Extensions = append(doc.Extensions, e.Module)
	}
	for _, i := range h.Interfaces() {
		doc.Interfaces = append(doc.Interfaces, *i)
	}
	for _, j := range h.JVMs() {
		doc.JVMs = append(doc.JVMs, *jvmDoc(j))
	}
	for _, s := range h.Servers() {
		sbg, offset := s.SocketBinding()
		auto := s.AutoStart()
		sd := ServerDoc{
			Name:               s.Name(),
			Group:              s.Group(),
			AutoStart:          &auto,
			SocketBindingGroup: sbg,
			PortOffset:         offset,
			JVM:                jvmDoc(s.JVM()),
			Properties:         propertiesDoc(s.Properties()),
		}
		for _, i := range s.Interfaces() {
			sd.Interfaces = append(sd.Interfaces, *i)
		}
		doc.Servers = append(doc.Servers, sd)
	}
	return doc
}

// FromServerModel captures a composed server model.
func FromServerModel(m *domain.ServerModel) *ServerModelDoc {
	doc := &ServerModelDoc{
		Host:        m.HostName(),
		Server:      m.ServerName(),
		Group:       m.GroupName(),
		Fingerprint: strconv.FormatUint(m.Fingerprint(), 16),
		Profile:     profileDoc(m.Profile()),
		JVM:         jvmDoc(m.JVM()),
		Properties:  propertiesDoc(m.Properties()),
	}
	if g, offset := m.SocketBindings(); g != nil {
		gd := bindingGroupDoc(g)
		doc.SocketBindingGroup, doc.PortOffset = &gd, offset
	}
	for _, i := range m.Interfaces() {
		doc.Interfaces = append(doc.Interfaces, *i)
	}
	for _, d := range m.Deployments() {
		doc.Deployments = append(doc.Deployments, groupDeploymentDoc(d))
	}
	return doc
}

func profileDoc(p *domain.Profile) ProfileDoc {
	pd := ProfileDoc{Name: p.Name(), Includes: p.Includes()}
	for _, s := range p.Subsystems() {
		pd.Subsystems = append(pd.Subsystems, SubsystemDoc{
			Namespace:  s.QName().Namespace,
			Name:       s.QName().Local,
			Attributes: s.Attributes(),
		})
	}
	return pd
}

func bindingGroupDoc(g *domain.SocketBindingGroup) BindingGroupDoc {
	gd := BindingGroupDoc{Name: g.Name(), DefaultInterface: g.DefaultInterface(), Includes: g.Includes()}
	for _, b := range g.Bindings() {
		gd.Bindings = append(gd.Bindings, *b)
	}
	return gd
}

func groupDeploymentDoc(m *domain.ServerGroupDeployment) GroupDeploymentDoc {
	return GroupDeploymentDoc{
		Name:        m.UniqueName,
		RuntimeName: m.RuntimeName,
		Hash:        m.Hash.String(),
		Start:       m.Start,
	}
}

func propertiesDoc(p *domain.Properties) map[string]*string {
	if p == nil || p.Len() == 0 {
		return nil
	}
	return p.Snapshot()
}

func jvmDoc(j *domain.JVM) *JVMDoc {
	if j == nil {
		return nil
	}
	return &JVMDoc{
		Name:             j.Name,
		JavaHome:         j.JavaHome,
		HeapSize:         j.HeapSize,
		MaxHeapSize:      j.MaxHeapSize,
		DebugEnabled:     j.DebugEnabled,
		DebugOptions:     j.DebugOptions,
		Options:          j.Options,
		Environment:      propertiesDoc(j.Environment),
		SystemProperties: propertiesDoc(j.SystemProperties),
	}
}

// ===========================================================================
// Document -> tree
// ===========================================================================

// Builder turns documents into trees through the domain mutators, so a
// document is subject to the same checks as an update.
type Builder struct {
	// Registry, when set, must know every extension a document lists and
	// creates the subsystems of the namespaces they contribute.
	Registry *domain.ExtensionRegistry
}

func (b Builder) subsystem(sd SubsystemDoc) (domain.Subsystem, error) {
	q := domain.QName{Namespace: sd.Namespace, Local: sd.Name}
	var s domain.Subsystem
	if b.Registry == nil {
		s = domain.NewGenericSubsystem(q)
	} else {
		if !b.Registry.KnownNamespace(q.Namespace) {
			return nil, domain.ConfigurationFailed("no extension provides namespace %q", q.Namespace)
		}
		s = b.Registry.NewSubsystem(q)
	}
	for k, v := range sd.Attributes {
		s.SetAttribute(k, v)
	}
	return s, nil
}

func (b Builder) extensions(modules []string, add func(*domain.Extension) error) error {
	for _, m := range modules {
		if b.Registry != nil {
			if err := b.Registry.Resolve(m); err != nil {
				return domain.ConfigurationFailed("%v", err)
			}
		}
		if err := add(&domain.Extension{Module: m}); err != nil {
			return err
		}
	}
	return nil
}

// Domain builds a domain tree from doc. Includes may refer forward: they
// are resolved once every profile and binding group exists.
func (b Builder) Domain(doc *DomainDoc) (*domain.Domain, error) {
	d := domain.NewDomain()

	// 1. Extensions and scalars
	if err := b.extensions(doc.Extensions, d.AddExtension); err != nil {
		return nil, err
	}
	if err := setProperties(d.Properties(), doc.Properties); err != nil {
		return nil, err
	}
	for i := range doc.Interfaces {
		iface := doc.Interfaces[i]
		if err := d.AddInterface(&iface); err != nil {
			return nil, err
		}
	}

	// 2. Profiles, then their include edges
	for _, pd := range doc.Profiles {
		p := domain.NewProfile(pd.Name)
		for _, sd := range pd.Subsystems {
			s, err := b.subsystem(sd)
			if err != nil {
				return nil, fmt.Errorf("profile %q: %w", pd.Name, err)
			}
			if _, existed := p.PutSubsystem(s); existed {
				return nil, domain.UpdateFailed("profile %q declares subsystem %s twice", pd.Name, s.QName())
			}
		}
		if err := d.AddProfile(p); err != nil {
			return nil, err
		}
	}
	for _, pd := range doc.Profiles {
		p, _ := d.Profile(pd.Name)
		for _, inc := range pd.Includes {
			if err := d.CheckProfileInclude(pd.Name, inc); err != nil {
				return nil, err
			}
			if err := p.AddInclude(inc); err != nil {
				return nil, err
			}
		}
	}

	// 3. Binding groups, then their include edges
	for _, gd := range doc.SocketBindingGroups {
		g := domain.NewSocketBindingGroup(gd.Name, gd.DefaultInterface)
		for i := range gd.Bindings {
			binding := gd.Bindings[i]
			if err := g.AddBinding(&binding); err != nil {
				return nil, err
			}
		}
		if err := d.AddSocketBindingGroup(g); err != nil {
			return nil, err
		}
	}
	for _, gd := range doc.SocketBindingGroups {
		g, _ := d.SocketBindingGroup(gd.Name)
		for _, inc := range gd.Includes {
			if err := d.CheckBindingGroupInclude(gd.Name, inc); err != nil {
				return nil, err
			}
			if err := g.AddInclude(inc); err != nil {
				return nil, err
			}
		}
	}

	// 4. Content, then the groups mapping it
	for _, dd := range doc.Deployments {
		hash, err := domain.ParseContentHash(dd.Hash)
		if err != nil {
			return nil, domain.UpdateFailed("deployment %q: %v", dd.Name, err)
		}
		dep := &domain.Deployment{Key: domain.DeploymentKey{Name: dd.Name, Hash: hash}, RuntimeName: dd.RuntimeName}
		if err := d.AddDeployment(dep); err != nil {
			return nil, err
		}
	}
	for _, gd := range doc.ServerGroups {
		g := domain.NewServerGroup(gd.Name, gd.Profile)
		g.SetSocketBinding(gd.SocketBindingGroup, gd.PortOffset)
		jvm, err := buildJVM(gd.JVM)
		if err != nil {
			return nil, fmt.Errorf("server group %q: %w", gd.Name, err)
		}
		g.SetJVM(jvm)
		for _, md := range gd.Deployments {
			hash, err := domain.ParseContentHash(md.Hash)
			if err != nil {
				return nil, domain.UpdateFailed("server group %q deployment %q: %v", gd.Name, md.Name, err)
			}
			if err := g.AddDeployment(&domain.ServerGroupDeployment{
				UniqueName:  md.Name,
				RuntimeName: md.RuntimeName,
				Hash:        hash,
				Start:       md.Start,
			}); err != nil {
				return nil, err
			}
		}
		if err := setProperties(g.Properties(), gd.Properties); err != nil {
			return nil, fmt.Errorf("server group %q: %w", gd.Name, err)
		}
		if err := d.AddServerGroup(g); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Host builds a host tree from doc.
func (b Builder) Host(doc *HostDoc) (*domain.Host, error) {
	h := domain.NewHost(doc.Name)
	ref := domain.DomainControllerRef{
		Local: doc.DomainController.Local,
		Host:  doc.DomainController.Host,
		Port:  doc.DomainController.Port,
	}
	if _, err := h.SetDomainController(ref); err != nil {
		return nil, err
	}
	if err := b.extensions(doc.Extensions, h.AddExtension); err != nil {
		return nil, err
	}
	if err := setProperties(h.Properties(), doc.Properties); err != nil {
		return nil, err
	}
	for i := range doc.Interfaces {
		iface := doc.Interfaces[i]
		if err := h.AddInterface(&iface); err != nil {
			return nil, err
		}
	}
	for i := range doc.JVMs {
		jvm, err := buildJVM(&doc.JVMs[i])
		if err != nil {
			return nil, err
		}
		if err := h.AddJVM(jvm); err != nil {
			return nil, err
		}
	}
	for _, sd := range doc.Servers {
		s := domain.NewServer(sd.Name, sd.Group)
		if sd.AutoStart != nil {
			s.SetAutoStart(*sd.AutoStart)
		}
		s.SetSocketBinding(sd.SocketBindingGroup, sd.PortOffset)
		jvm, err := buildJVM(sd.JVM)
		if err != nil {
			return nil, fmt.Errorf("server %q: %w", sd.Name, err)
		}
		s.SetJVM(jvm)
		for i := range sd.Interfaces {
			iface := sd.Interfaces[i]
			s.SetInterface(&iface)
		}
		if err := setProperties(s.Properties(), sd.Properties); err != nil {
			return nil, fmt.Errorf("server %q: %w", sd.Name, err)
		}
		if err := h.AddServer(s); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func setProperties(p *domain.Properties, values map[string]*string) error {
	for name, v := range values {
		if err := p.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

func buildJVM(jd *JVMDoc) (*domain.JVM, error) {
	if jd == nil {
		return nil, nil
	}
	j := domain.NewJVM(jd.Name)
	j.JavaHome = jd.JavaHome
	j.HeapSize = jd.HeapSize
	j.MaxHeapSize = jd.MaxHeapSize
	j.DebugEnabled = jd.DebugEnabled
	j.DebugOptions = jd.DebugOptions
	j.Options = append([]string(nil), jd.Options...)
	if err := setProperties(j.Environment, jd.Environment); err != nil {
		return nil, fmt.Errorf("jvm %q environment: %w", jd.Name, err)
	}
	if err := setProperties(j.SystemProperties, jd.SystemProperties); err != nil {
		return nil, fmt.Errorf("jvm %q system properties: %w", jd.Name, err)
	}
	return j, nil
}
