package update

import (
	"github.com/irgordon/karidc/api/internal/core/domain"
)

// DomainDifference lists the updates that turn from into to. Collections are
// visited in a fixed order: extensions, profiles, interfaces, socket binding
// groups, deployments, server groups, then properties.
//
// Profiles and binding groups are reconciled in phases so that every
// intermediate state is valid: new entries are added empty, include edges are
// removed before new edges are added, content follows, and entries that go
// away are emptied. Profiles, binding groups and deployments are only removed
// after the server groups stopped using them.
func DomainDifference(from, to *domain.Domain) []DomainUpdate {
	var out []DomainUpdate
	emit := func(u DomainUpdate) { out = append(out, u) }

	// extensions never change in place
	Reconcile(from.ExtensionSnapshot(), to.ExtensionSnapshot(), Handlers[*domain.Extension]{
		OnAdd:    func(e *domain.Extension) { emit(&DomainExtensionAdd{Extension: e}) },
		OnRemove: func(e *domain.Extension) { emit(&DomainExtensionRemove{Module: e.Module}) },
	})

	removedProfiles := profileDifference(from, to, emit)

	Reconcile(from.InterfaceSnapshot(), to.InterfaceSnapshot(), Handlers[*domain.Interface]{
		OnAdd:    func(i *domain.Interface) { emit(&DomainInterfaceAdd{Interface: i}) },
		OnRemove: func(i *domain.Interface) { emit(&DomainInterfaceRemove{Name: i.Name}) },
		OnChange: func(o, n *domain.Interface) {
			if !sameFingerprint(o, n) {
				emit(&DomainInterfaceReplace{Interface: n})
			}
		},
	})

	removedBindingGroups := bindingGroupDifference(from, to, emit)

	var removedDeployments []domain.DeploymentKey
	Reconcile(from.DeploymentSnapshot(), to.DeploymentSnapshot(), Handlers[*domain.Deployment]{
		OnAdd:    func(d *domain.Deployment) { emit(&DomainDeploymentAdd{Deployment: d}) },
		OnRemove: func(d *domain.Deployment) { removedDeployments = append(removedDeployments, d.Key) },
		OnChange: func(o, n *domain.Deployment) {
			if !sameFingerprint(o, n) {
				emit(&DomainDeploymentReplace{Deployment: n})
			}
		},
	})

	Reconcile(from.ServerGroupSnapshot(), to.ServerGroupSnapshot(), Handlers[*domain.ServerGroup]{
		OnAdd: func(g *domain.ServerGroup) {
			bare := g.DeepCopy()
			for _, d := range bare.Deployments() {
				_, _ = bare.RemoveDeployment(d.UniqueName)
			}
			emit(&DomainServerGroupAdd{Group: bare})
			for _, d := range g.Deployments() {
				emit(&DomainServerGroupUpdate{Group: g.Name(), Update: &GroupDeploymentAdd{Deployment: d}})
			}
		},
		OnRemove: func(g *domain.ServerGroup) {
			for _, d := range g.Deployments() {
				emit(&DomainServerGroupUpdate{Group: g.Name(), Update: &GroupDeploymentRemove{Name: d.UniqueName}})
			}
			emit(&DomainServerGroupRemove{Name: g.Name()})
		},
		OnChange: func(o, n *domain.ServerGroup) {
			for _, u := range ServerGroupDifference(o, n) {
				emit(&DomainServerGroupUpdate{Group: n.Name(), Update: u})
			}
		},
	})

	for _, name := range removedProfiles {
		emit(&DomainProfileRemove{Name: name})
	}
	for _, name := range removedBindingGroups {
		emit(&DomainBindingGroupRemove{Name: name})
	}
	for _, key := range removedDeployments {
		emit(&DomainDeploymentRemove{Key: key})
	}

	for _, op := range propertyDiff(from.Properties(), to.Properties()) {
		if op.remove {
			emit(&DomainPropertyRemove{Name: op.name})
		} else {
			emit(&DomainPropertySet{Name: op.name, Value: op.value})
		}
	}
	return out
}

type profilePair struct {
	name     string
	from, to *domain.Profile
}

// profileDifference emits every profile update but the removals, and returns
// the names of the profiles to remove.
func profileDifference(from, to *domain.Domain, emit func(DomainUpdate)) []string {
	var added, removed []string
	var pairs []profilePair
	Reconcile(from.ProfileSnapshot(), to.ProfileSnapshot(), Handlers[*domain.Profile]{
		OnAdd: func(p *domain.Profile) {
			added = append(added, p.Name())
			pairs = append(pairs, profilePair{p.Name(), domain.NewProfile(p.Name()), p})
		},
		OnRemove: func(p *domain.Profile) {
			removed = append(removed, p.Name())
			pairs = append(pairs, profilePair{p.Name(), p, domain.NewProfile(p.Name())})
		},
		OnChange: func(o, n *domain.Profile) {
			pairs = append(pairs, profilePair{n.Name(), o, n})
		},
	})

	for _, name := range added {
		emit(&DomainProfileAdd{Name: name})
	}
	for _, p := range pairs {
		for _, inc := range missing(p.from.Includes(), p.to.Includes()) {
			emit(&DomainProfileUpdate{Profile: p.name, Update: &ProfileIncludeRemove{Include: inc}})
		}
	}
	for _, p := range pairs {
		for _, inc := range missing(p.to.Includes(), p.from.Includes()) {
			emit(&DomainProfileUpdate{Profile: p.name, Update: &ProfileIncludeAdd{Include: inc}})
		}
	}
	for _, p := range pairs {
		for _, op := range subsystemDiff(p.from.SubsystemSnapshot(), p.to.SubsystemSnapshot()) {
			emit(&DomainProfileUpdate{Profile: p.name, Update: op.profileUpdate()})
		}
	}
	return removed
}

type bindingGroupPair struct {
	name     string
	from, to *domain.SocketBindingGroup
}

func bindingGroupDifference(from, to *domain.Domain, emit func(DomainUpdate)) []string {
	var removed []string
	var pairs []bindingGroupPair
	Reconcile(from.SocketBindingGroupSnapshot(), to.SocketBindingGroupSnapshot(), Handlers[*domain.SocketBindingGroup]{
		OnAdd: func(g *domain.SocketBindingGroup) {
			emit(&DomainBindingGroupAdd{Name: g.Name(), DefaultInterface: g.DefaultInterface()})
			pairs = append(pairs, bindingGroupPair{g.Name(), domain.NewSocketBindingGroup(g.Name(), g.DefaultInterface()), g})
		},
		OnRemove: func(g *domain.SocketBindingGroup) {
			removed = append(removed, g.Name())
			pairs = append(pairs, bindingGroupPair{g.Name(), g, domain.NewSocketBindingGroup(g.Name(), g.DefaultInterface())})
		},
		OnChange: func(o, n *domain.SocketBindingGroup) {
			pairs = append(pairs, bindingGroupPair{n.Name(), o, n})
		},
	})

	for _, p := range pairs {
		for _, inc := range missing(p.from.Includes(), p.to.Includes()) {
			emit(&DomainBindingGroupUpdate{Group: p.name, Update: &BindingGroupIncludeRemove{Include: inc}})
		}
	}
	for _, p := range pairs {
		for _, inc := range missing(p.to.Includes(), p.from.Includes()) {
			emit(&DomainBindingGroupUpdate{Group: p.name, Update: &BindingGroupIncludeAdd{Include: inc}})
		}
	}
	for _, p := range pairs {
		for _, u := range bindingContentDifference(p.from, p.to) {
			emit(&DomainBindingGroupUpdate{Group: p.name, Update: u})
		}
	}
	return removed
}

// HostDifference lists the updates that turn one host tree into another.
func HostDifference(from, to *domain.Host) []HostUpdate {
	var out []HostUpdate
	emit := func(u HostUpdate) { out = append(out, u) }

	Reconcile(from.ExtensionSnapshot(), to.ExtensionSnapshot(), Handlers[*domain.Extension]{
		OnAdd:    func(e *domain.Extension) { emit(&HostExtensionAdd{Extension: e}) },
		OnRemove: func(e *domain.Extension) { emit(&HostExtensionRemove{Module: e.Module}) },
	})
	Reconcile(from.InterfaceSnapshot(), to.InterfaceSnapshot(), Handlers[*domain.Interface]{
		OnAdd:    func(i *domain.Interface) { emit(&HostInterfaceAdd{Interface: i}) },
		OnRemove: func(i *domain.Interface) { emit(&HostInterfaceRemove{Name: i.Name}) },
		OnChange: func(o, n *domain.Interface) {
			if !sameFingerprint(o, n) {
				emit(&HostInterfaceReplace{Interface: n})
			}
		},
	})
	Reconcile(from.JVMSnapshot(), to.JVMSnapshot(), Handlers[*domain.JVM]{
		OnAdd:    func(j *domain.JVM) { emit(&HostJVMAdd{JVM: j}) },
		OnRemove: func(j *domain.JVM) { emit(&HostJVMRemove{Name: j.Name}) },
		OnChange: func(o, n *domain.JVM) {
			if !sameFingerprint(o, n) {
				emit(&HostJVMReplace{JVM: n})
			}
		},
	})
	Reconcile(from.ServerSnapshot(), to.ServerSnapshot(), Handlers[*domain.Server]{
		OnAdd:    func(s *domain.Server) { emit(&HostServerAdd{Server: s}) },
		OnRemove: func(s *domain.Server) { emit(&HostServerRemove{Name: s.Name()}) },
		OnChange: func(o, n *domain.Server) {
			for _, u := range ServerDifference(o, n) {
				emit(&HostServerUpdate{Server: n.Name(), Update: u})
			}
		},
	})
	for _, op := range propertyDiff(from.Properties(), to.Properties()) {
		if op.remove {
			emit(&HostPropertyRemove{Name: op.name})
		} else {
			emit(&HostPropertySet{Name: op.name, Value: op.value})
		}
	}
	if from.DomainController() != to.DomainController() {
		emit(&HostDomainController{Ref: to.DomainController()})
	}
	return out
}

// ServerModelDifference lists the updates that turn a running server's model
// into a freshly flattened one. Restart-required changes come first, then
// group membership, properties, subsystems and deployments.
func ServerModelDifference(from, to *domain.ServerModel) []ServerModelUpdate {
	var out []ServerModelUpdate

	ifaces := &ModelInterfaces{}
	Reconcile(from.InterfaceSnapshot(), to.InterfaceSnapshot(), Handlers[*domain.Interface]{
		OnAdd:    func(i *domain.Interface) { ifaces.Set = append(ifaces.Set, i) },
		OnRemove: func(i *domain.Interface) { ifaces.Remove = append(ifaces.Remove, i.Name) },
		OnChange: func(o, n *domain.Interface) {
			if !sameFingerprint(o, n) {
				ifaces.Set = append(ifaces.Set, n)
			}
		},
	})
	if len(ifaces.Set) > 0 || len(ifaces.Remove) > 0 {
		out = append(out, ifaces)
	}

	fg, fo := from.SocketBindings()
	tg, tofs := to.SocketBindings()
	if fo != tofs || !sameBindings(fg, tg) {
		out = append(out, &ModelSocketBindings{Group: tg, PortOffset: tofs})
	}
	if !sameJVM(from.JVM(), to.JVM()) {
		out = append(out, &ModelJVM{JVM: to.JVM()})
	}

	if from.GroupName() != to.GroupName() || from.Profile().Name() != to.Profile().Name() {
		out = append(out, &ModelServerGroup{Group: to.GroupName(), Profile: to.Profile().Name()})
	}

	for _, op := range propertyDiff(from.Properties(), to.Properties()) {
		if op.remove {
			out = append(out, &ModelPropertyRemove{Name: op.name})
		} else {
			out = append(out, &ModelPropertySet{Name: op.name, Value: op.value})
		}
	}

	for _, op := range subsystemDiff(from.Profile().SubsystemSnapshot(), to.Profile().SubsystemSnapshot()) {
		out = append(out, op.modelUpdate())
	}

	Reconcile(from.DeploymentSnapshot(), to.DeploymentSnapshot(), Handlers[*domain.ServerGroupDeployment]{
		OnAdd: func(d *domain.ServerGroupDeployment) {
			out = append(out, &ModelDeploymentAdd{Deployment: d})
		},
		OnRemove: func(d *domain.ServerGroupDeployment) {
			out = append(out, &ModelDeploymentRemove{Name: d.UniqueName, RuntimeName: d.RuntimeName})
		},
		OnChange: func(o, n *domain.ServerGroupDeployment) {
			switch {
			case sameFingerprint(o, n):
			case o.RuntimeName == n.RuntimeName && o.Hash == n.Hash:
				out = append(out, &ModelDeploymentStart{Name: n.UniqueName, RuntimeName: n.RuntimeName, Hash: n.Hash, Start: n.Start})
			default:
				out = append(out,
					&ModelDeploymentRemove{Name: o.UniqueName, RuntimeName: o.RuntimeName},
					&ModelDeploymentAdd{Deployment: n})
			}
		},
	})
	return out
}

func sameBindings(a, b *domain.SocketBindingGroup) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Fingerprint() == b.Fingerprint()
}
