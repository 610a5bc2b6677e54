package update

import (
	"fmt"

	"github.com/irgordon/karidc/api/internal/core/domain"
)

type domainOnly struct{}

func (domainOnly) ServerModelUpdate() ServerModelUpdate         { return nil }
func (domainOnly) AffectedServerGroups(*domain.Domain) []string { return nil }

func allGroups(d *domain.Domain) []string { return d.ServerGroupNames() }

// ===========================================================================
// Extensions
// ===========================================================================

type DomainExtensionAdd struct {
	domainOnly
	Extension *domain.Extension
}

func (u *DomainExtensionAdd) Apply(d *domain.Domain) error { return d.AddExtension(u.Extension) }

func (u *DomainExtensionAdd) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	if _, ok := orig.Extension(u.Extension.Module); ok {
		return nil
	}
	return &DomainExtensionRemove{Module: u.Extension.Module}
}

func (u *DomainExtensionAdd) String() string { return "domain extension-add " + u.Extension.Module }

type DomainExtensionRemove struct {
	domainOnly
	Module string
}

func (u *DomainExtensionRemove) Apply(d *domain.Domain) error {
	_, err := d.RemoveExtension(u.Module)
	return err
}

func (u *DomainExtensionRemove) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	e, ok := orig.Extension(u.Module)
	if !ok {
		return nil
	}
	return &DomainExtensionAdd{Extension: e}
}

func (u *DomainExtensionRemove) String() string { return "domain extension-remove " + u.Module }

// ===========================================================================
// Profiles
// ===========================================================================

// DomainProfileAdd adds an empty profile. Includes and subsystems follow as
// DomainProfileUpdate entries.
type DomainProfileAdd struct {
	domainOnly
	Name string
}

func (u *DomainProfileAdd) Apply(d *domain.Domain) error {
	return d.AddProfile(domain.NewProfile(u.Name))
}

func (u *DomainProfileAdd) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	if _, ok := orig.Profile(u.Name); ok {
		return nil
	}
	return &DomainProfileRemove{Name: u.Name}
}

func (u *DomainProfileAdd) String() string { return "domain profile-add " + u.Name }

// DomainProfileRemove removes an empty profile that nothing includes.
type DomainProfileRemove struct {
	Name string
}

func (u *DomainProfileRemove) Apply(d *domain.Domain) error {
	p, ok := d.Profile(u.Name)
	if !ok {
		return domain.UpdateFailed("profile %q does not exist", u.Name)
	}
	if !p.Empty() {
		return domain.UpdateFailed("profile %q is not empty", u.Name)
	}
	_, err := d.RemoveProfile(u.Name)
	return err
}

func (u *DomainProfileRemove) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	if _, ok := orig.Profile(u.Name); !ok {
		return nil
	}
	return &DomainProfileAdd{Name: u.Name}
}

func (u *DomainProfileRemove) ServerModelUpdate() ServerModelUpdate { return nil }

func (u *DomainProfileRemove) AffectedServerGroups(d *domain.Domain) []string {
	return d.ServerGroupsUsingProfile(u.Name)
}

func (u *DomainProfileRemove) String() string { return "domain profile-remove " + u.Name }

// DomainProfileUpdate applies an element update to one profile.
type DomainProfileUpdate struct {
	Profile string
	Update  ProfileUpdate
}

func (u *DomainProfileUpdate) Apply(d *domain.Domain) error {
	p, ok := d.Profile(u.Profile)
	if !ok {
		return domain.UpdateFailed("profile %q does not exist", u.Profile)
	}
	if c, ok := u.Update.(domainChecker); ok {
		if err := c.checkDomain(d, u.Profile); err != nil {
			return err
		}
	}
	return u.Update.Apply(p)
}

func (u *DomainProfileUpdate) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	p, ok := orig.Profile(u.Profile)
	if !ok {
		return nil
	}
	inner := u.Update.Compensate(p)
	if inner == nil {
		return nil
	}
	return &DomainProfileUpdate{Profile: u.Profile, Update: inner}
}

func (u *DomainProfileUpdate) ServerModelUpdate() ServerModelUpdate { return projectionOf(u.Update) }

func (u *DomainProfileUpdate) AffectedServerGroups(d *domain.Domain) []string {
	return d.ServerGroupsUsingProfile(u.Profile)
}

func (u *DomainProfileUpdate) String() string {
	return fmt.Sprintf("domain profile %s: %s", u.Profile, u.Update)
}

// ===========================================================================
// Interfaces
// ===========================================================================

type DomainInterfaceAdd struct {
	Interface *domain.Interface
}

func (u *DomainInterfaceAdd) Apply(d *domain.Domain) error { return d.AddInterface(u.Interface) }

func (u *DomainInterfaceAdd) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	if _, ok := orig.Interface(u.Interface.Name); ok {
		return nil
	}
	return &DomainInterfaceRemove{Name: u.Interface.Name}
}

func (u *DomainInterfaceAdd) ServerModelUpdate() ServerModelUpdate {
	if !u.Interface.FullySpecified() {
		return nil
	}
	return &ModelInterfaces{Set: []*domain.Interface{u.Interface}}
}

func (u *DomainInterfaceAdd) AffectedServerGroups(d *domain.Domain) []string { return allGroups(d) }
func (u *DomainInterfaceAdd) String() string                                 { return "domain interface-add " + u.Interface.Name }

type DomainInterfaceRemove struct {
	Name string
}

func (u *DomainInterfaceRemove) Apply(d *domain.Domain) error {
	_, err := d.RemoveInterface(u.Name)
	return err
}

func (u *DomainInterfaceRemove) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	i, ok := orig.Interface(u.Name)
	if !ok {
		return nil
	}
	return &DomainInterfaceAdd{Interface: i}
}

func (u *DomainInterfaceRemove) ServerModelUpdate() ServerModelUpdate {
	return &ModelInterfaces{Remove: []string{u.Name}}
}

func (u *DomainInterfaceRemove) AffectedServerGroups(d *domain.Domain) []string { return allGroups(d) }
func (u *DomainInterfaceRemove) String() string                                 { return "domain interface-remove " + u.Name }

type DomainInterfaceReplace struct {
	Interface *domain.Interface
}

func (u *DomainInterfaceReplace) Apply(d *domain.Domain) error {
	_, err := d.ReplaceInterface(u.Interface)
	return err
}

func (u *DomainInterfaceReplace) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	i, ok := orig.Interface(u.Interface.Name)
	if !ok {
		return nil
	}
	return &DomainInterfaceReplace{Interface: i}
}

func (u *DomainInterfaceReplace) ServerModelUpdate() ServerModelUpdate {
	if !u.Interface.FullySpecified() {
		return &ModelInterfaces{Remove: []string{u.Interface.Name}}
	}
	return &ModelInterfaces{Set: []*domain.Interface{u.Interface}}
}

func (u *DomainInterfaceReplace) AffectedServerGroups(d *domain.Domain) []string { return allGroups(d) }
func (u *DomainInterfaceReplace) String() string                                 { return "domain interface-replace " + u.Interface.Name }

// ===========================================================================
// Socket binding groups
// ===========================================================================

// DomainBindingGroupAdd adds a binding group with no bindings or includes.
type DomainBindingGroupAdd struct {
	domainOnly
	Name             string
	DefaultInterface string
}

func (u *DomainBindingGroupAdd) Apply(d *domain.Domain) error {
	return d.AddSocketBindingGroup(domain.NewSocketBindingGroup(u.Name, u.DefaultInterface))
}

func (u *DomainBindingGroupAdd) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	if _, ok := orig.SocketBindingGroup(u.Name); ok {
		return nil
	}
	return &DomainBindingGroupRemove{Name: u.Name}
}

func (u *DomainBindingGroupAdd) String() string { return "domain socket-binding-group-add " + u.Name }

// DomainBindingGroupRemove removes an empty binding group that nothing includes.
type DomainBindingGroupRemove struct {
	Name string
}

func (u *DomainBindingGroupRemove) Apply(d *domain.Domain) error {
	g, ok := d.SocketBindingGroup(u.Name)
	if !ok {
		return domain.UpdateFailed("socket binding group %q does not exist", u.Name)
	}
	if !g.Empty() {
		return domain.UpdateFailed("socket binding group %q is not empty", u.Name)
	}
	_, err := d.RemoveSocketBindingGroup(u.Name)
	return err
}

func (u *DomainBindingGroupRemove) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	g, ok := orig.SocketBindingGroup(u.Name)
	if !ok {
		return nil
	}
	return &DomainBindingGroupAdd{Name: u.Name, DefaultInterface: g.DefaultInterface()}
}

func (u *DomainBindingGroupRemove) ServerModelUpdate() ServerModelUpdate { return nil }

func (u *DomainBindingGroupRemove) AffectedServerGroups(d *domain.Domain) []string {
	return d.ServerGroupsUsingBindingGroup(u.Name)
}

func (u *DomainBindingGroupRemove) String() string {
	return "domain socket-binding-group-remove " + u.Name
}

// DomainBindingGroupUpdate applies an element update to one binding group.
type DomainBindingGroupUpdate struct {
	Group  string
	Update BindingGroupUpdate
}

func (u *DomainBindingGroupUpdate) Apply(d *domain.Domain) error {
	g, ok := d.SocketBindingGroup(u.Group)
	if !ok {
		return domain.UpdateFailed("socket binding group %q does not exist", u.Group)
	}
	if c, ok := u.Update.(domainChecker); ok {
		if err := c.checkDomain(d, u.Group); err != nil {
			return err
		}
	}
	return u.Update.Apply(g)
}

func (u *DomainBindingGroupUpdate) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	g, ok := orig.SocketBindingGroup(u.Group)
	if !ok {
		return nil
	}
	inner := u.Update.Compensate(g)
	if inner == nil {
		return nil
	}
	return &DomainBindingGroupUpdate{Group: u.Group, Update: inner}
}

// ServerModelUpdate is nil: bindings only take effect through a restart,
// which the controller derives from the re-flattened model.
func (u *DomainBindingGroupUpdate) ServerModelUpdate() ServerModelUpdate { return nil }

// AffectedServerGroups is every group, because servers may override the
// group's binding group reference.
func (u *DomainBindingGroupUpdate) AffectedServerGroups(d *domain.Domain) []string {
	return allGroups(d)
}

func (u *DomainBindingGroupUpdate) String() string {
	return fmt.Sprintf("domain socket-binding-group %s: %s", u.Group, u.Update)
}

// ===========================================================================
// Deployments
// ===========================================================================

type DomainDeploymentAdd struct {
	domainOnly
	Deployment *domain.Deployment
}

func (u *DomainDeploymentAdd) Apply(d *domain.Domain) error { return d.AddDeployment(u.Deployment) }

func (u *DomainDeploymentAdd) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	if _, ok := orig.Deployment(u.Deployment.Key); ok {
		return nil
	}
	return &DomainDeploymentRemove{Key: u.Deployment.Key}
}

func (u *DomainDeploymentAdd) String() string { return "domain deployment-add " + u.Deployment.Key.String() }

type DomainDeploymentRemove struct {
	domainOnly
	Key domain.DeploymentKey
}

func (u *DomainDeploymentRemove) Apply(d *domain.Domain) error {
	_, err := d.RemoveDeployment(u.Key)
	return err
}

func (u *DomainDeploymentRemove) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	dep, ok := orig.Deployment(u.Key)
	if !ok {
		return nil
	}
	return &DomainDeploymentAdd{Deployment: dep}
}

func (u *DomainDeploymentRemove) String() string { return "domain deployment-remove " + u.Key.String() }

// DomainDeploymentReplace changes a deployment in place, keeping its key, so
// that group mappings of it stay valid.
type DomainDeploymentReplace struct {
	domainOnly
	Deployment *domain.Deployment
}

func (u *DomainDeploymentReplace) Apply(d *domain.Domain) error {
	_, err := d.ReplaceDeployment(u.Deployment)
	return err
}

func (u *DomainDeploymentReplace) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	dep, ok := orig.Deployment(u.Deployment.Key)
	if !ok {
		return nil
	}
	return &DomainDeploymentReplace{Deployment: dep}
}

func (u *DomainDeploymentReplace) String() string {
	return "domain deployment-replace " + u.Deployment.Key.String()
}

// ===========================================================================
// Server groups
// ===========================================================================

// DomainServerGroupAdd adds a server group without deployment mappings;
// mappings follow as DomainServerGroupUpdate entries.
type DomainServerGroupAdd struct {
	Group *domain.ServerGroup
}

func (u *DomainServerGroupAdd) Apply(d *domain.Domain) error {
	if len(u.Group.Deployments()) > 0 {
		return domain.UpdateFailed("server group %q must be added without deployments", u.Group.Name())
	}
	return d.AddServerGroup(u.Group.DeepCopy())
}

func (u *DomainServerGroupAdd) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	if _, ok := orig.ServerGroup(u.Group.Name()); ok {
		return nil
	}
	return &DomainServerGroupRemove{Name: u.Group.Name()}
}

func (u *DomainServerGroupAdd) ServerModelUpdate() ServerModelUpdate { return nil }

func (u *DomainServerGroupAdd) AffectedServerGroups(*domain.Domain) []string {
	return []string{u.Group.Name()}
}

func (u *DomainServerGroupAdd) String() string { return "domain server-group-add " + u.Group.Name() }

// DomainServerGroupRemove removes a server group that maps no deployments.
type DomainServerGroupRemove struct {
	Name string
}

func (u *DomainServerGroupRemove) Apply(d *domain.Domain) error {
	g, ok := d.ServerGroup(u.Name)
	if !ok {
		return domain.UpdateFailed("server group %q does not exist", u.Name)
	}
	if len(g.Deployments()) > 0 {
		return domain.UpdateFailed("server group %q still maps deployments", u.Name)
	}
	_, err := d.RemoveServerGroup(u.Name)
	return err
}

func (u *DomainServerGroupRemove) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	g, ok := orig.ServerGroup(u.Name)
	if !ok {
		return nil
	}
	return &DomainServerGroupAdd{Group: g.DeepCopy()}
}

func (u *DomainServerGroupRemove) ServerModelUpdate() ServerModelUpdate { return nil }

func (u *DomainServerGroupRemove) AffectedServerGroups(*domain.Domain) []string {
	return []string{u.Name}
}

func (u *DomainServerGroupRemove) String() string { return "domain server-group-remove " + u.Name }

// DomainServerGroupUpdate applies an element update to one server group.
type DomainServerGroupUpdate struct {
	Group  string
	Update ServerGroupUpdate
}

func (u *DomainServerGroupUpdate) Apply(d *domain.Domain) error {
	g, ok := d.ServerGroup(u.Group)
	if !ok {
		return domain.UpdateFailed("server group %q does not exist", u.Group)
	}
	if c, ok := u.Update.(domainChecker); ok {
		if err := c.checkDomain(d, u.Group); err != nil {
			return err
		}
	}
	return u.Update.Apply(g)
}

func (u *DomainServerGroupUpdate) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	g, ok := orig.ServerGroup(u.Group)
	if !ok {
		return nil
	}
	inner, ok := u.Update.Compensate(g).(ServerGroupUpdate)
	if !ok || inner == nil {
		return nil
	}
	return &DomainServerGroupUpdate{Group: u.Group, Update: inner}
}

func (u *DomainServerGroupUpdate) ServerModelUpdate() ServerModelUpdate {
	return u.Update.ServerModelUpdate()
}

func (u *DomainServerGroupUpdate) AffectedServerGroups(*domain.Domain) []string {
	return []string{u.Group}
}

func (u *DomainServerGroupUpdate) String() string {
	return fmt.Sprintf("domain server-group %s: %s", u.Group, u.Update)
}

// ===========================================================================
// Properties
// ===========================================================================

type DomainPropertySet struct {
	Name  string
	Value *string
}

func (u *DomainPropertySet) Apply(d *domain.Domain) error {
	return d.Properties().Set(u.Name, u.Value)
}

func (u *DomainPropertySet) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	if v, ok := orig.Properties().Get(u.Name); ok {
		return &DomainPropertySet{Name: u.Name, Value: v}
	}
	return &DomainPropertyRemove{Name: u.Name}
}

func (u *DomainPropertySet) ServerModelUpdate() ServerModelUpdate {
	return &ModelPropertySet{Name: u.Name, Value: u.Value}
}

func (u *DomainPropertySet) AffectedServerGroups(d *domain.Domain) []string { return allGroups(d) }

func (u *DomainPropertySet) String() string {
	return fmt.Sprintf("domain property-set %s=%s", u.Name, fmtValue(u.Value))
}

type DomainPropertyRemove struct {
	Name string
}

func (u *DomainPropertyRemove) Apply(d *domain.Domain) error {
	return d.Properties().Remove(u.Name)
}

func (u *DomainPropertyRemove) Compensate(orig *domain.Domain) Update[*domain.Domain] {
	v, ok := orig.Properties().Get(u.Name)
	if !ok {
		return nil
	}
	return &DomainPropertySet{Name: u.Name, Value: v}
}

func (u *DomainPropertyRemove) ServerModelUpdate() ServerModelUpdate {
	return &ModelPropertyRemove{Name: u.Name}
}

func (u *DomainPropertyRemove) AffectedServerGroups(d *domain.Domain) []string { return allGroups(d) }
func (u *DomainPropertyRemove) String() string                                 { return "domain property-remove " + u.Name }
