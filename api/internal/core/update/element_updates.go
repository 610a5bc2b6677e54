package update

import (
	"fmt"

	"github.com/irgordon/karidc/api/internal/core/domain"
)

// ===========================================================================
// Profile element updates
// ===========================================================================

// ProfileIncludeAdd makes a profile include another one.
type ProfileIncludeAdd struct {
	Include string
}

func (u *ProfileIncludeAdd) Apply(p *domain.Profile) error { return p.AddInclude(u.Include) }

func (u *ProfileIncludeAdd) Compensate(orig *domain.Profile) ProfileUpdate {
	if orig.IncludesProfile(u.Include) {
		return nil
	}
	return &ProfileIncludeRemove{Include: u.Include}
}

func (u *ProfileIncludeAdd) checkDomain(d *domain.Domain, profile string) error {
	return d.CheckProfileInclude(profile, u.Include)
}

func (u *ProfileIncludeAdd) String() string { return "include-add " + u.Include }

// ProfileIncludeRemove drops an include.
type ProfileIncludeRemove struct {
	Include string
}

func (u *ProfileIncludeRemove) Apply(p *domain.Profile) error { return p.RemoveInclude(u.Include) }

func (u *ProfileIncludeRemove) Compensate(orig *domain.Profile) ProfileUpdate {
	if !orig.IncludesProfile(u.Include) {
		return nil
	}
	return &ProfileIncludeAdd{Include: u.Include}
}

func (u *ProfileIncludeRemove) String() string { return "include-remove " + u.Include }

// ProfileSubsystemAdd adds an empty subsystem. Its configuration follows as
// attribute updates, so that the inverse is always a plain remove.
type ProfileSubsystemAdd struct {
	Subsystem domain.Subsystem
}

func (u *ProfileSubsystemAdd) Apply(p *domain.Profile) error {
	if !u.Subsystem.Empty() {
		return domain.UpdateFailed("subsystem %s must be added empty", u.Subsystem.QName())
	}
	return p.AddSubsystem(u.Subsystem.Copy())
}

func (u *ProfileSubsystemAdd) Compensate(orig *domain.Profile) ProfileUpdate {
	if _, ok := orig.Subsystem(u.Subsystem.QName()); ok {
		return nil
	}
	return &ProfileSubsystemRemove{QName: u.Subsystem.QName()}
}

func (u *ProfileSubsystemAdd) modelProjection() ServerModelUpdate {
	return &ModelSubsystemAdd{Subsystem: u.Subsystem.Copy()}
}

func (u *ProfileSubsystemAdd) String() string { return "subsystem-add " + u.Subsystem.QName().String() }

// ProfileSubsystemRemove removes an empty subsystem.
type ProfileSubsystemRemove struct {
	QName domain.QName
}

func (u *ProfileSubsystemRemove) Apply(p *domain.Profile) error {
	s, ok := p.Subsystem(u.QName)
	if !ok {
		return domain.UpdateFailed("subsystem %s does not exist in profile %q", u.QName, p.Name())
	}
	if !s.Empty() {
		return domain.UpdateFailed("subsystem %s in profile %q is not empty", u.QName, p.Name())
	}
	_, err := p.RemoveSubsystem(u.QName)
	return err
}

func (u *ProfileSubsystemRemove) Compensate(orig *domain.Profile) ProfileUpdate {
	s, ok := orig.Subsystem(u.QName)
	if !ok {
		return nil
	}
	return &ProfileSubsystemAdd{Subsystem: s.Blank()}
}

func (u *ProfileSubsystemRemove) modelProjection() ServerModelUpdate {
	return &ModelSubsystemRemove{QName: u.QName}
}

func (u *ProfileSubsystemRemove) String() string { return "subsystem-remove " + u.QName.String() }

// ProfileSubsystemReplace swaps a whole subsystem for another of the same name.
type ProfileSubsystemReplace struct {
	Subsystem domain.Subsystem
}

func (u *ProfileSubsystemReplace) Apply(p *domain.Profile) error {
	_, err := p.ReplaceSubsystem(u.Subsystem.Copy())
	return err
}

func (u *ProfileSubsystemReplace) Compensate(orig *domain.Profile) ProfileUpdate {
	s, ok := orig.Subsystem(u.Subsystem.QName())
	if !ok {
		return nil
	}
	return &ProfileSubsystemReplace{Subsystem: s.Copy()}
}

func (u *ProfileSubsystemReplace) modelProjection() ServerModelUpdate {
	return &ModelSubsystemReplace{Subsystem: u.Subsystem.Copy()}
}

func (u *ProfileSubsystemReplace) String() string {
	return "subsystem-replace " + u.Subsystem.QName().String()
}

// ProfileSubsystemAttribute sets one attribute of a subsystem, or removes it
// when Value is nil.
type ProfileSubsystemAttribute struct {
	QName domain.QName
	Name  string
	Value *string
}

func (u *ProfileSubsystemAttribute) Apply(p *domain.Profile) error {
	s, ok := p.Subsystem(u.QName)
	if !ok {
		return domain.UpdateFailed("subsystem %s does not exist in profile %q", u.QName, p.Name())
	}
	return applyAttribute(s, u.Name, u.Value)
}

func (u *ProfileSubsystemAttribute) Compensate(orig *domain.Profile) ProfileUpdate {
	s, ok := orig.Subsystem(u.QName)
	if !ok {
		return nil
	}
	prev, ok := attributeInverse(s, u.Name, u.Value)
	if !ok {
		return nil
	}
	return &ProfileSubsystemAttribute{QName: u.QName, Name: u.Name, Value: prev}
}

func (u *ProfileSubsystemAttribute) modelProjection() ServerModelUpdate {
	return &ModelSubsystemAttribute{QName: u.QName, Name: u.Name, Value: u.Value}
}

func (u *ProfileSubsystemAttribute) String() string {
	return fmt.Sprintf("subsystem-attribute %s %s=%s", u.QName, u.Name, fmtValue(u.Value))
}

func applyAttribute(s domain.Subsystem, name string, value *string) error {
	if value == nil {
		if _, had := s.RemoveAttribute(name); !had {
			return domain.UpdateFailed("subsystem %s has no attribute %q", s.QName(), name)
		}
		return nil
	}
	s.SetAttribute(name, *value)
	return nil
}

// attributeInverse returns the value that undoes setting name to value on s.
// ok is false when the update would fail against s.
func attributeInverse(s domain.Subsystem, name string, value *string) (*string, bool) {
	old, had := s.Attribute(name)
	switch {
	case had:
		return &old, true
	case value == nil:
		return nil, false
	default:
		return nil, true
	}
}

// ===========================================================================
// Socket binding group element updates
// ===========================================================================

// BindingGroupDefaultInterface changes a group's default interface.
type BindingGroupDefaultInterface struct {
	Interface string
}

func (u *BindingGroupDefaultInterface) Apply(g *domain.SocketBindingGroup) error {
	g.SetDefaultInterface(u.Interface)
	return nil
}

func (u *BindingGroupDefaultInterface) Compensate(orig *domain.SocketBindingGroup) BindingGroupUpdate {
	return &BindingGroupDefaultInterface{Interface: orig.DefaultInterface()}
}

func (u *BindingGroupDefaultInterface) String() string { return "default-interface " + u.Interface }

type BindingAdd struct {
	Binding *domain.SocketBinding
}

func (u *BindingAdd) Apply(g *domain.SocketBindingGroup) error { return g.AddBinding(u.Binding) }

func (u *BindingAdd) Compensate(orig *domain.SocketBindingGroup) BindingGroupUpdate {
	if _, ok := orig.Binding(u.Binding.Name); ok {
		return nil
	}
	return &BindingRemove{Name: u.Binding.Name}
}

func (u *BindingAdd) String() string { return "binding-add " + u.Binding.Name }

type BindingRemove struct {
	Name string
}

func (u *BindingRemove) Apply(g *domain.SocketBindingGroup) error {
	_, err := g.RemoveBinding(u.Name)
	return err
}

func (u *BindingRemove) Compensate(orig *domain.SocketBindingGroup) BindingGroupUpdate {
	b, ok := orig.Binding(u.Name)
	if !ok {
		return nil
	}
	return &BindingAdd{Binding: b}
}

func (u *BindingRemove) String() string { return "binding-remove " + u.Name }

type BindingReplace struct {
	Binding *domain.SocketBinding
}

func (u *BindingReplace) Apply(g *domain.SocketBindingGroup) error {
	_, err := g.ReplaceBinding(u.Binding)
	return err
}

func (u *BindingReplace) Compensate(orig *domain.SocketBindingGroup) BindingGroupUpdate {
	b, ok := orig.Binding(u.Binding.Name)
	if !ok {
		return nil
	}
	return &BindingReplace{Binding: b}
}

func (u *BindingReplace) String() string { return "binding-replace " + u.Binding.Name }

type BindingGroupIncludeAdd struct {
	Include string
}

func (u *BindingGroupIncludeAdd) Apply(g *domain.SocketBindingGroup) error {
	return g.AddInclude(u.Include)
}

func (u *BindingGroupIncludeAdd) Compensate(orig *domain.SocketBindingGroup) BindingGroupUpdate {
	if orig.IncludesGroup(u.Include) {
		return nil
	}
	return &BindingGroupIncludeRemove{Include: u.Include}
}

func (u *BindingGroupIncludeAdd) checkDomain(d *domain.Domain, group string) error {
	return d.CheckBindingGroupInclude(group, u.Include)
}

func (u *BindingGroupIncludeAdd) String() string { return "include-add " + u.Include }

type BindingGroupIncludeRemove struct {
	Include string
}

func (u *BindingGroupIncludeRemove) Apply(g *domain.SocketBindingGroup) error {
	return g.RemoveInclude(u.Include)
}

func (u *BindingGroupIncludeRemove) Compensate(orig *domain.SocketBindingGroup) BindingGroupUpdate {
	if !orig.IncludesGroup(u.Include) {
		return nil
	}
	return &BindingGroupIncludeAdd{Include: u.Include}
}

func (u *BindingGroupIncludeRemove) String() string { return "include-remove " + u.Include }
