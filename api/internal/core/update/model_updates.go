package update

import (
	"errors"
	"fmt"

	"github.com/irgordon/karidc/api/internal/core/domain"
)

var errNoContentStore = errors.New("no content store configured")

// liveUpdate is embedded by model updates that can be pushed into a running server.
type liveUpdate struct{}

func (liveUpdate) RequiresRestart() bool { return false }

// restartUpdate is embedded by model updates that only take effect at process
// start. Their runtime side is a no-op that succeeds, because it is only
// dispatched while the server boots.
type restartUpdate struct{}

func (restartUpdate) RequiresRestart() bool { return true }

func (restartUpdate) ApplyToRuntime(_ UpdateContext, handler ResultHandler, param any) {
	handler.HandleResult(param, Succeeded(nil))
}

// ===========================================================================
// Subsystems
// ===========================================================================

type ModelSubsystemAdd struct {
	liveUpdate
	Subsystem domain.Subsystem
}

func (u *ModelSubsystemAdd) Apply(m *domain.ServerModel) error {
	if !u.Subsystem.Empty() {
		return domain.UpdateFailed("subsystem %s must be added empty", u.Subsystem.QName())
	}
	return m.Profile().AddSubsystem(u.Subsystem.Copy())
}

func (u *ModelSubsystemAdd) Compensate(orig *domain.ServerModel) Update[*domain.ServerModel] {
	if _, ok := orig.Profile().Subsystem(u.Subsystem.QName()); ok {
		return nil
	}
	return &ModelSubsystemRemove{QName: u.Subsystem.QName()}
}

func (u *ModelSubsystemAdd) ApplyToRuntime(ctx UpdateContext, handler ResultHandler, param any) {
	server := ctx.ServerName()
	ctx.Services().Install(ctx.Context(), ServiceEntry{
		Name:      SubsystemServiceName(server, u.Subsystem.QName()),
		DependsOn: []string{ServerServiceName(server)},
		Config:    u.Subsystem.Attributes(),
	}, listen(handler, param, ServiceStarted))
}

func (u *ModelSubsystemAdd) String() string { return "model subsystem-add " + u.Subsystem.QName().String() }

type ModelSubsystemRemove struct {
	liveUpdate
	QName domain.QName
}

func (u *ModelSubsystemRemove) Apply(m *domain.ServerModel) error {
	return (&ProfileSubsystemRemove{QName: u.QName}).Apply(m.Profile())
}

func (u *ModelSubsystemRemove) Compensate(orig *domain.ServerModel) Update[*domain.ServerModel] {
	s, ok := orig.Profile().Subsystem(u.QName)
	if !ok {
		return nil
	}
	return &ModelSubsystemAdd{Subsystem: s.Blank()}
}

func (u *ModelSubsystemRemove) ApplyToRuntime(ctx UpdateContext, handler ResultHandler, param any) {
	ctx.Services().Remove(ctx.Context(), SubsystemServiceName(ctx.ServerName(), u.QName),
		listen(handler, param, ServiceRemoved))
}

func (u *ModelSubsystemRemove) String() string { return "model subsystem-remove " + u.QName.String() }

// ModelSubsystemReplace swaps a whole subsystem. The runtime side removes the
// service and installs it again with the new attributes.
type ModelSubsystemReplace struct {
	liveUpdate
	Subsystem domain.Subsystem
}

func (u *ModelSubsystemReplace) Apply(m *domain.ServerModel) error {
	return (&ProfileSubsystemReplace{Subsystem: u.Subsystem}).Apply(m.Profile())
}

func (u *ModelSubsystemReplace) Compensate(orig *domain.ServerModel) Update[*domain.ServerModel] {
	s, ok := orig.Profile().Subsystem(u.Subsystem.QName())
	if !ok {
		return nil
	}
	return &ModelSubsystemReplace{Subsystem: s.Copy()}
}

func (u *ModelSubsystemReplace) ApplyToRuntime(ctx UpdateContext, handler ResultHandler, param any) {
	server := ctx.ServerName()
	name := SubsystemServiceName(server, u.Subsystem.QName())
	ctx.Services().Remove(ctx.Context(), name, func(_ string, event ServiceEvent, err error) {
		if event != ServiceRemoved {
			listen(handler, param, ServiceRemoved)(name, event, err)
			return
		}
		ctx.Services().Install(ctx.Context(), ServiceEntry{
			Name:      name,
			DependsOn: []string{ServerServiceName(server)},
			Config:    u.Subsystem.Attributes(),
		}, listen(handler, param, ServiceStarted))
	})
}

func (u *ModelSubsystemReplace) String() string {
	return "model subsystem-replace " + u.Subsystem.QName().String()
}

// ModelSubsystemAttribute sets, or with a nil Value removes, one attribute.
type ModelSubsystemAttribute struct {
	liveUpdate
	QName domain.QName
	Name  string
	Value *string
}

func (u *ModelSubsystemAttribute) Apply(m *domain.ServerModel) error {
	return (&ProfileSubsystemAttribute{QName: u.QName, Name: u.Name, Value: u.Value}).Apply(m.Profile())
}

func (u *ModelSubsystemAttribute) Compensate(orig *domain.ServerModel) Update[*domain.ServerModel] {
	s, ok := orig.Profile().Subsystem(u.QName)
	if !ok {
		return nil
	}
	prev, ok := attributeInverse(s, u.Name, u.Value)
	if !ok {
		return nil
	}
	return &ModelSubsystemAttribute{QName: u.QName, Name: u.Name, Value: prev}
}

func (u *ModelSubsystemAttribute) ApplyToRuntime(ctx UpdateContext, handler ResultHandler, param any) {
	ctx.Services().Configure(ctx.Context(), SubsystemServiceName(ctx.ServerName(), u.QName),
		u.Name, u.Value, listen(handler, param, ServiceUpdated))
}

func (u *ModelSubsystemAttribute) String() string {
	return fmt.Sprintf("model subsystem-attribute %s %s=%s", u.QName, u.Name, fmtValue(u.Value))
}

// ===========================================================================
// Deployments
// ===========================================================================

func deploymentEntry(server, runtimeName string, hash domain.ContentHash, path string) ServiceEntry {
	return ServiceEntry{
		Name:      DeploymentServiceName(server, runtimeName),
		DependsOn: []string{ServerServiceName(server)},
		Config: map[string]string{
			"runtime-name": runtimeName,
			"hash":         hash.String(),
			"path":         path,
		},
	}
}

// putMount records m and releases the mount it replaces. The new mount stays
// recorded when the release fails, so a rollback can still release it.
func putMount(ctx UpdateContext, runtimeName string, m MountedContent) error {
	if err := ctx.Mounts().Put(runtimeName, m); err != nil {
		return fmt.Errorf("release previous mount of %s: %w", runtimeName, err)
	}
	return nil
}

// startDeployment mounts the content if needed and installs the deployment
// service. It runs on its own goroutine because mounting may block on I/O.
func startDeployment(ctx UpdateContext, runtimeName string, hash domain.ContentHash, handler ResultHandler, param any) {
	go func() {
		mounted, ok := ctx.Mounts().Get(runtimeName)
		if !ok || mounted.Hash() != hash {
			if ctx.Content() == nil {
				handler.HandleResult(param, Failed(errNoContentStore))
				return
			}
			m, err := ctx.Content().Mount(ctx.Context(), hash)
			if err != nil {
				handler.HandleResult(param, Failed(fmt.Errorf("mount %s: %w", runtimeName, err)))
				return
			}
			if err := putMount(ctx, runtimeName, m); err != nil {
				handler.HandleResult(param, Failed(err))
				return
			}
			mounted = m
		}
		ctx.Services().Install(ctx.Context(),
			deploymentEntry(ctx.ServerName(), runtimeName, hash, mounted.Path()),
			listen(handler, param, ServiceStarted))
	}()
}

type ModelDeploymentAdd struct {
	liveUpdate
	Deployment *domain.ServerGroupDeployment
}

func (u *ModelDeploymentAdd) Apply(m *domain.ServerModel) error {
	return m.AddDeployment(u.Deployment)
}

func (u *ModelDeploymentAdd) Compensate(orig *domain.ServerModel) Update[*domain.ServerModel] {
	if _, ok := orig.Deployment(u.Deployment.UniqueName); ok {
		return nil
	}
	return &ModelDeploymentRemove{Name: u.Deployment.UniqueName, RuntimeName: u.Deployment.RuntimeName}
}

func (u *ModelDeploymentAdd) ApplyToRuntime(ctx UpdateContext, handler ResultHandler, param any) {
	d := u.Deployment
	if d.Start {
		startDeployment(ctx, d.RuntimeName, d.Hash, handler, param)
		return
	}
	go func() {
		if ctx.Content() == nil {
			handler.HandleResult(param, Failed(errNoContentStore))
			return
		}
		m, err := ctx.Content().Mount(ctx.Context(), d.Hash)
		if err != nil {
			handler.HandleResult(param, Failed(fmt.Errorf("mount %s: %w", d.RuntimeName, err)))
			return
		}
		if err := putMount(ctx, d.RuntimeName, m); err != nil {
			handler.HandleResult(param, Failed(err))
			return
		}
		handler.HandleResult(param, Succeeded(d.RuntimeName))
	}()
}

func (u *ModelDeploymentAdd) String() string { return "model deployment-add " + u.Deployment.UniqueName }

type ModelDeploymentRemove struct {
	liveUpdate
	Name        string
	RuntimeName string
}

func (u *ModelDeploymentRemove) runtimeName() string {
	if u.RuntimeName == "" {
		return u.Name
	}
	return u.RuntimeName
}

func (u *ModelDeploymentRemove) Apply(m *domain.ServerModel) error {
	_, err := m.RemoveDeployment(u.Name)
	return err
}

func (u *ModelDeploymentRemove) Compensate(orig *domain.ServerModel) Update[*domain.ServerModel] {
	d, ok := orig.Deployment(u.Name)
	if !ok {
		return nil
	}
	return &ModelDeploymentAdd{Deployment: d}
}

func (u *ModelDeploymentRemove) ApplyToRuntime(ctx UpdateContext, handler ResultHandler, param any) {
	rn := u.runtimeName()
	ctx.Services().Remove(ctx.Context(), DeploymentServiceName(ctx.ServerName(), rn),
		func(name string, event ServiceEvent, err error) {
			if event == ServiceRemoved {
				if rerr := ctx.Mounts().Release(rn); rerr != nil {
					handler.HandleResult(param, Failed(fmt.Errorf("release %s: %w", rn, rerr)))
					return
				}
			}
			listen(handler, param, ServiceRemoved)(name, event, err)
		})
}

func (u *ModelDeploymentRemove) String() string { return "model deployment-remove " + u.Name }

// ModelDeploymentStart starts or stops a deployment that stays mapped.
type ModelDeploymentStart struct {
	liveUpdate
	Name        string
	RuntimeName string
	Hash        domain.ContentHash
	Start       bool
}

func (u *ModelDeploymentStart) Apply(m *domain.ServerModel) error {
	d, ok := m.Deployment(u.Name)
	if !ok {
		return domain.UpdateFailed("deployment %q does not exist on server %q", u.Name, m.ServerName())
	}
	_, err := m.ReplaceDeployment(d.WithStart(u.Start))
	return err
}

func (u *ModelDeploymentStart) Compensate(orig *domain.ServerModel) Update[*domain.ServerModel] {
	d, ok := orig.Deployment(u.Name)
	if !ok {
		return nil
	}
	return &ModelDeploymentStart{Name: d.UniqueName, RuntimeName: d.RuntimeName, Hash: d.Hash, Start: d.Start}
}

func (u *ModelDeploymentStart) ApplyToRuntime(ctx UpdateContext, handler ResultHandler, param any) {
	rn := u.RuntimeName
	if rn == "" {
		rn = u.Name
	}
	if u.Start {
		startDeployment(ctx, rn, u.Hash, handler, param)
		return
	}
	ctx.Services().Stop(ctx.Context(), DeploymentServiceName(ctx.ServerName(), rn),
		listen(handler, param, ServiceStopped))
}

func (u *ModelDeploymentStart) String() string {
	return fmt.Sprintf("model deployment-start %s=%t", u.Name, u.Start)
}

// ModelDeploymentRedeploy restarts a deployment in place. The model does not
// change; at runtime the start is issued as a continuation of the completed stop.
type ModelDeploymentRedeploy struct {
	liveUpdate
	Name        string
	RuntimeName string
	Hash        domain.ContentHash
}

func (u *ModelDeploymentRedeploy) Apply(m *domain.ServerModel) error {
	if _, ok := m.Deployment(u.Name); !ok {
		return domain.UpdateFailed("deployment %q does not exist on server %q", u.Name, m.ServerName())
	}
	return nil
}

func (u *ModelDeploymentRedeploy) Compensate(*domain.ServerModel) Update[*domain.ServerModel] {
	return nil
}

func (u *ModelDeploymentRedeploy) ApplyToRuntime(ctx UpdateContext, handler ResultHandler, param any) {
	rn := u.RuntimeName
	if rn == "" {
		rn = u.Name
	}
	ctx.Services().Stop(ctx.Context(), DeploymentServiceName(ctx.ServerName(), rn),
		func(name string, event ServiceEvent, err error) {
			if event != ServiceStopped {
				listen(handler, param, ServiceStopped)(name, event, err)
				return
			}
			// continuation: stop completed, issue the start
			startDeployment(ctx, rn, u.Hash, handler, param)
		})
}

func (u *ModelDeploymentRedeploy) String() string { return "model deployment-redeploy " + u.Name }

// ===========================================================================
// Group membership
// ===========================================================================

// ModelServerGroup records that the server moved to another server group.
// The content that differs between the groups follows as separate updates.
type ModelServerGroup struct {
	liveUpdate
	Group   string
	Profile string
}

func (u *ModelServerGroup) Apply(m *domain.ServerModel) error {
	if u.Group == "" || u.Profile == "" {
		return domain.UpdateFailed("server %q requires a server group and a profile", m.ServerName())
	}
	m.SetGroup(u.Group, u.Profile)
	return nil
}

func (u *ModelServerGroup) Compensate(orig *domain.ServerModel) Update[*domain.ServerModel] {
	return &ModelServerGroup{Group: orig.GroupName(), Profile: orig.Profile().Name()}
}

func (u *ModelServerGroup) ApplyToRuntime(ctx UpdateContext, handler ResultHandler, param any) {
	ctx.Services().Configure(ctx.Context(), ServerServiceName(ctx.ServerName()),
		"server-group", &u.Group, listen(handler, param, ServiceUpdated))
}

func (u *ModelServerGroup) String() string {
	return fmt.Sprintf("model server-group %s (profile %s)", u.Group, u.Profile)
}

// ===========================================================================
// Properties
// ===========================================================================

const propertyKeyPrefix = "property:"

type ModelPropertySet struct {
	liveUpdate
	Name  string
	Value *string
}

func (u *ModelPropertySet) Apply(m *domain.ServerModel) error {
	return m.Properties().Set(u.Name, u.Value)
}

func (u *ModelPropertySet) Compensate(orig *domain.ServerModel) Update[*domain.ServerModel] {
	if v, ok := orig.Properties().Get(u.Name); ok {
		return &ModelPropertySet{Name: u.Name, Value: v}
	}
	return &ModelPropertyRemove{Name: u.Name}
}

func (u *ModelPropertySet) ApplyToRuntime(ctx UpdateContext, handler ResultHandler, param any) {
	ctx.Services().Configure(ctx.Context(), ServerServiceName(ctx.ServerName()),
		propertyKeyPrefix+u.Name, u.Value, listen(handler, param, ServiceUpdated))
}

func (u *ModelPropertySet) String() string {
	return fmt.Sprintf("model property-set %s=%s", u.Name, fmtValue(u.Value))
}

type ModelPropertyRemove struct {
	liveUpdate
	Name string
}

func (u *ModelPropertyRemove) Apply(m *domain.ServerModel) error {
	return m.Properties().Remove(u.Name)
}

func (u *ModelPropertyRemove) Compensate(orig *domain.ServerModel) Update[*domain.ServerModel] {
	v, ok := orig.Properties().Get(u.Name)
	if !ok {
		return nil
	}
	return &ModelPropertySet{Name: u.Name, Value: v}
}

func (u *ModelPropertyRemove) ApplyToRuntime(ctx UpdateContext, handler ResultHandler, param any) {
	ctx.Services().Configure(ctx.Context(), ServerServiceName(ctx.ServerName()),
		propertyKeyPrefix+u.Name, nil, listen(handler, param, ServiceUpdated))
}

func (u *ModelPropertyRemove) String() string { return "model property-remove " + u.Name }

// ===========================================================================
// Restart-required updates
// ===========================================================================

// ModelInterfaces sets and removes resolved interfaces in one step.
type ModelInterfaces struct {
	restartUpdate
	Set    []*domain.Interface
	Remove []string
}

func (u *ModelInterfaces) Apply(m *domain.ServerModel) error {
	for _, name := range u.Remove {
		if _, ok := m.Interface(name); !ok {
			return domain.UpdateFailed("server %q has no interface %q", m.ServerName(), name)
		}
	}
	for _, name := range u.Remove {
		if _, err := m.RemoveInterface(name); err != nil {
			return err
		}
	}
	for _, i := range u.Set {
		m.SetInterface(i)
	}
	return nil
}

func (u *ModelInterfaces) Compensate(orig *domain.ServerModel) Update[*domain.ServerModel] {
	out := &ModelInterfaces{}
	for _, name := range u.Remove {
		i, ok := orig.Interface(name)
		if !ok {
			return nil
		}
		out.Set = append(out.Set, i)
	}
	for _, i := range u.Set {
		if old, ok := orig.Interface(i.Name); ok {
			out.Set = append(out.Set, old)
		} else {
			out.Remove = append(out.Remove, i.Name)
		}
	}
	return out
}

func (u *ModelInterfaces) String() string {
	return fmt.Sprintf("model interfaces set=%d remove=%d", len(u.Set), len(u.Remove))
}

// ModelSocketBindings replaces the resolved binding group and port offset.
type ModelSocketBindings struct {
	restartUpdate
	Group      *domain.SocketBindingGroup
	PortOffset int
}

func (u *ModelSocketBindings) Apply(m *domain.ServerModel) error {
	var g *domain.SocketBindingGroup
	if u.Group != nil {
		g = u.Group.DeepCopy()
	}
	m.SetSocketBindings(g, u.PortOffset)
	return nil
}

func (u *ModelSocketBindings) Compensate(orig *domain.ServerModel) Update[*domain.ServerModel] {
	g, offset := orig.SocketBindings()
	if g != nil {
		g = g.DeepCopy()
	}
	return &ModelSocketBindings{Group: g, PortOffset: offset}
}

func (u *ModelSocketBindings) String() string {
	if u.Group == nil {
		return "model socket-bindings <none>"
	}
	return fmt.Sprintf("model socket-bindings %s+%d", u.Group.Name(), u.PortOffset)
}

type ModelJVM struct {
	restartUpdate
	JVM *domain.JVM
}

func (u *ModelJVM) Apply(m *domain.ServerModel) error {
	m.SetJVM(u.JVM.Clone())
	return nil
}

func (u *ModelJVM) Compensate(orig *domain.ServerModel) Update[*domain.ServerModel] {
	return &ModelJVM{JVM: orig.JVM().Clone()}
}

func (u *ModelJVM) String() string {
	if u.JVM == nil {
		return "model jvm <none>"
	}
	return "model jvm " + u.JVM.Name
}

// ===========================================================================
// Enumerators
// ===========================================================================

// SubsystemUpdates lists the updates that reproduce s on a server that does not have it.
func SubsystemUpdates(s domain.Subsystem) []ServerModelUpdate {
	out := []ServerModelUpdate{&ModelSubsystemAdd{Subsystem: s.Blank()}}
	attrs := s.Attributes()
	for _, name := range domain.AttributeNames(s) {
		v := attrs[name]
		out = append(out, &ModelSubsystemAttribute{QName: s.QName(), Name: name, Value: &v})
	}
	return out
}

// BootUpdates lists the updates that bring m.Skeleton() up to m.
func BootUpdates(m *domain.ServerModel) []ServerModelUpdate {
	var out []ServerModelUpdate
	for _, s := range m.Profile().Subsystems() {
		out = append(out, SubsystemUpdates(s)...)
	}
	for _, d := range m.Deployments() {
		out = append(out, &ModelDeploymentAdd{Deployment: d})
	}
	return out
}
