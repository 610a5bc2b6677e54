package update

import (
	"fmt"

	"github.com/irgordon/karidc/api/internal/core/domain"
)

// GroupProfile points a server group at another profile.
type GroupProfile struct {
	Profile string
}

func (u *GroupProfile) Apply(g *domain.ServerGroup) error {
	if u.Profile == "" {
		return domain.UpdateFailed("server group %q requires a profile", g.Name())
	}
	g.SetProfile(u.Profile)
	return nil
}

func (u *GroupProfile) Compensate(orig *domain.ServerGroup) Update[*domain.ServerGroup] {
	return &GroupProfile{Profile: orig.Profile()}
}

func (u *GroupProfile) checkDomain(d *domain.Domain, group string) error {
	if _, ok := d.Profile(u.Profile); !ok {
		return domain.UpdateFailed("server group %q references unknown profile %q", group, u.Profile)
	}
	return nil
}

func (u *GroupProfile) ServerModelUpdate() ServerModelUpdate { return nil }
func (u *GroupProfile) String() string                       { return "group-profile " + u.Profile }

// GroupJVM replaces the group's JVM settings; a nil JVM clears them.
type GroupJVM struct {
	JVM *domain.JVM
}

func (u *GroupJVM) Apply(g *domain.ServerGroup) error {
	g.SetJVM(u.JVM.Clone())
	return nil
}

func (u *GroupJVM) Compensate(orig *domain.ServerGroup) Update[*domain.ServerGroup] {
	return &GroupJVM{JVM: orig.JVM().Clone()}
}

func (u *GroupJVM) ServerModelUpdate() ServerModelUpdate { return nil }

func (u *GroupJVM) String() string {
	if u.JVM == nil {
		return "group-jvm <none>"
	}
	return "group-jvm " + u.JVM.Name
}

// GroupSocketBinding sets the group's binding group reference and port offset.
type GroupSocketBinding struct {
	Group      string
	PortOffset int
}

func (u *GroupSocketBinding) Apply(g *domain.ServerGroup) error {
	g.SetSocketBinding(u.Group, u.PortOffset)
	return nil
}

func (u *GroupSocketBinding) Compensate(orig *domain.ServerGroup) Update[*domain.ServerGroup] {
	group, offset := orig.SocketBinding()
	return &GroupSocketBinding{Group: group, PortOffset: offset}
}

func (u *GroupSocketBinding) checkDomain(d *domain.Domain, group string) error {
	if u.Group == "" {
		return nil
	}
	if _, ok := d.SocketBindingGroup(u.Group); !ok {
		return domain.UpdateFailed("server group %q references unknown socket binding group %q", group, u.Group)
	}
	return nil
}

func (u *GroupSocketBinding) ServerModelUpdate() ServerModelUpdate { return nil }

func (u *GroupSocketBinding) String() string {
	return fmt.Sprintf("group-socket-binding %s+%d", u.Group, u.PortOffset)
}

// GroupDeploymentAdd maps a domain deployment into the group.
type GroupDeploymentAdd struct {
	Deployment *domain.ServerGroupDeployment
}

func (u *GroupDeploymentAdd) Apply(g *domain.ServerGroup) error {
	return g.AddDeployment(u.Deployment)
}

func (u *GroupDeploymentAdd) Compensate(orig *domain.ServerGroup) Update[*domain.ServerGroup] {
	if _, ok := orig.Deployment(u.Deployment.UniqueName); ok {
		return nil
	}
	return &GroupDeploymentRemove{Name: u.Deployment.UniqueName}
}

func (u *GroupDeploymentAdd) checkDomain(d *domain.Domain, group string) error {
	if _, ok := d.Deployment(u.Deployment.Key()); !ok {
		return domain.UpdateFailed("server group %q maps unknown deployment %s", group, u.Deployment.Key())
	}
	return nil
}

func (u *GroupDeploymentAdd) ServerModelUpdate() ServerModelUpdate {
	return &ModelDeploymentAdd{Deployment: u.Deployment}
}

func (u *GroupDeploymentAdd) String() string { return "deployment-add " + u.Deployment.UniqueName }

// GroupDeploymentRemove unmaps a deployment from the group.
type GroupDeploymentRemove struct {
	Name string
}

func (u *GroupDeploymentRemove) Apply(g *domain.ServerGroup) error {
	_, err := g.RemoveDeployment(u.Name)
	return err
}

func (u *GroupDeploymentRemove) Compensate(orig *domain.ServerGroup) Update[*domain.ServerGroup] {
	d, ok := orig.Deployment(u.Name)
	if !ok {
		return nil
	}
	return &GroupDeploymentAdd{Deployment: d}
}

func (u *GroupDeploymentRemove) ServerModelUpdate() ServerModelUpdate {
	return &ModelDeploymentRemove{Name: u.Name}
}

func (u *GroupDeploymentRemove) String() string { return "deployment-remove " + u.Name }

// GroupDeploymentStart flips the start flag of a mapped deployment.
type GroupDeploymentStart struct {
	Name  string
	Start bool
}

func (u *GroupDeploymentStart) Apply(g *domain.ServerGroup) error {
	d, ok := g.Deployment(u.Name)
	if !ok {
		return domain.UpdateFailed("deployment %q is not mapped to server group %q", u.Name, g.Name())
	}
	_, err := g.ReplaceDeployment(d.WithStart(u.Start))
	return err
}

func (u *GroupDeploymentStart) Compensate(orig *domain.ServerGroup) Update[*domain.ServerGroup] {
	d, ok := orig.Deployment(u.Name)
	if !ok {
		return nil
	}
	return &GroupDeploymentStart{Name: u.Name, Start: d.Start}
}

func (u *GroupDeploymentStart) ServerModelUpdate() ServerModelUpdate {
	return &ModelDeploymentStart{Name: u.Name, Start: u.Start}
}

func (u *GroupDeploymentStart) String() string {
	return fmt.Sprintf("deployment-start %s=%t", u.Name, u.Start)
}

type GroupPropertySet struct {
	Name  string
	Value *string
}

func (u *GroupPropertySet) Apply(g *domain.ServerGroup) error {
	return g.Properties().Set(u.Name, u.Value)
}

func (u *GroupPropertySet) Compensate(orig *domain.ServerGroup) Update[*domain.ServerGroup] {
	if v, ok := orig.Properties().Get(u.Name); ok {
		return &GroupPropertySet{Name: u.Name, Value: v}
	}
	return &GroupPropertyRemove{Name: u.Name}
}

func (u *GroupPropertySet) ServerModelUpdate() ServerModelUpdate {
	return &ModelPropertySet{Name: u.Name, Value: u.Value}
}

func (u *GroupPropertySet) String() string {
	return fmt.Sprintf("property-set %s=%s", u.Name, fmtValue(u.Value))
}

type GroupPropertyRemove struct {
	Name string
}

func (u *GroupPropertyRemove) Apply(g *domain.ServerGroup) error {
	return g.Properties().Remove(u.Name)
}

func (u *GroupPropertyRemove) Compensate(orig *domain.ServerGroup) Update[*domain.ServerGroup] {
	v, ok := orig.Properties().Get(u.Name)
	if !ok {
		return nil
	}
	return &GroupPropertySet{Name: u.Name, Value: v}
}

func (u *GroupPropertyRemove) ServerModelUpdate() ServerModelUpdate {
	return &ModelPropertyRemove{Name: u.Name}
}

func (u *GroupPropertyRemove) String() string { return "property-remove " + u.Name }
