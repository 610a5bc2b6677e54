package update

import (
	"cmp"
	"slices"

	"github.com/irgordon/karidc/api/internal/core/domain"
)

// Handlers receives the outcome of a Reconcile walk. Nil handlers are skipped.
type Handlers[V any] struct {
	OnAdd    func(added V)
	OnRemove func(removed V)
	OnChange func(from, to V)
}

// Reconcile walks the union of both key sets in sorted order. A key present
// on both sides is reported as changed only when the two values are not the
// same instance.
func Reconcile[K cmp.Ordered, V comparable](from, to map[K]V, h Handlers[V]) {
	keys := make([]K, 0, len(from)+len(to))
	for k := range from {
		keys = append(keys, k)
	}
	for k := range to {
		if _, ok := from[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	for _, k := range keys {
		o, inOld := from[k]
		n, inNew := to[k]
		switch {
		case inNew && !inOld:
			if h.OnAdd != nil {
				h.OnAdd(n)
			}
		case inOld && !inNew:
			if h.OnRemove != nil {
				h.OnRemove(o)
			}
		case o != n:
			if h.OnChange != nil {
				h.OnChange(o, n)
			}
		}
	}
}

// ===========================================================================
// Shared pieces
// ===========================================================================

type propertyOp struct {
	name   string
	value  *string
	remove bool
}

func propertyDiff(from, to *domain.Properties) []propertyOp {
	var ops []propertyOp
	o, n := from.Snapshot(), to.Snapshot()
	for _, name := range sortedKeys(o, n) {
		ov, inOld := o[name]
		nv, inNew := n[name]
		switch {
		case inOld && !inNew:
			ops = append(ops, propertyOp{name: name, remove: true})
		case !inOld || !sameValue(ov, nv):
			ops = append(ops, propertyOp{name: name, value: nv})
		}
	}
	return ops
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sortedKeys[V any](maps ...map[string]V) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range maps {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	slices.Sort(out)
	return out
}

func sameFingerprint[V interface{ Fingerprint() uint64 }](a, b V) bool {
	return a.Fingerprint() == b.Fingerprint()
}

func sameJVM(a, b *domain.JVM) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Fingerprint() == b.Fingerprint()
}

// missing returns the entries of have that set lacks.
func missing(have []string, set []string) []string {
	var out []string
	for _, s := range have {
		if !slices.Contains(set, s) {
			out = append(out, s)
		}
	}
	return out
}

// subsystemOp is a profile-agnostic step of a subsystem reconciliation.
type subsystemOp struct {
	kind      int // opAdd, opRemove or opAttribute
	qname     domain.QName
	subsystem domain.Subsystem
	name      string
	value     *string
}

const (
	opAdd = iota
	opRemove
	opAttribute
)

func attributeOps(q domain.QName, from, to map[string]string) []subsystemOp {
	var ops []subsystemOp
	for _, name := range sortedKeys(from, to) {
		ov, inOld := from[name]
		nv, inNew := to[name]
		switch {
		case inOld && !inNew:
			ops = append(ops, subsystemOp{kind: opAttribute, qname: q, name: name})
		case !inOld || ov != nv:
			v := nv
			ops = append(ops, subsystemOp{kind: opAttribute, qname: q, name: name, value: &v})
		}
	}
	return ops
}

// subsystemDiff reconciles two subsystem maps. New subsystems are added
// empty and filled attribute by attribute; removed ones are emptied first.
func subsystemDiff(from, to map[string]domain.Subsystem) []subsystemOp {
	var ops []subsystemOp
	Reconcile(from, to, Handlers[domain.Subsystem]{
		OnAdd: func(s domain.Subsystem) {
			ops = append(ops, subsystemOp{kind: opAdd, qname: s.QName(), subsystem: s.Blank()})
			ops = append(ops, attributeOps(s.QName(), nil, s.Attributes())...)
		},
		OnRemove: func(s domain.Subsystem) {
			ops = append(ops, attributeOps(s.QName(), s.Attributes(), nil)...)
			ops = append(ops, subsystemOp{kind: opRemove, qname: s.QName()})
		},
		OnChange: func(o, n domain.Subsystem) {
			ops = append(ops, attributeOps(n.QName(), o.Attributes(), n.Attributes())...)
		},
	})
	return ops
}

func (op subsystemOp) profileUpdate() ProfileUpdate {
	switch op.kind {
	case opAdd:
		return &ProfileSubsystemAdd{Subsystem: op.subsystem}
	case opRemove:
		return &ProfileSubsystemRemove{QName: op.qname}
	default:
		return &ProfileSubsystemAttribute{QName: op.qname, Name: op.name, Value: op.value}
	}
}

func (op subsystemOp) modelUpdate() ServerModelUpdate {
	switch op.kind {
	case opAdd:
		return &ModelSubsystemAdd{Subsystem: op.subsystem}
	case opRemove:
		return &ModelSubsystemRemove{QName: op.qname}
	default:
		return &ModelSubsystemAttribute{QName: op.qname, Name: op.name, Value: op.value}
	}
}

// ===========================================================================
// Element differences
// ===========================================================================

// ProfileDifference lists the updates that turn from into to: include
// removals, include additions, then subsystem changes.
func ProfileDifference(from, to *domain.Profile) []ProfileUpdate {
	var out []ProfileUpdate
	for _, inc := range missing(from.Includes(), to.Includes()) {
		out = append(out, &ProfileIncludeRemove{Include: inc})
	}
	for _, inc := range missing(to.Includes(), from.Includes()) {
		out = append(out, &ProfileIncludeAdd{Include: inc})
	}
	for _, op := range subsystemDiff(from.SubsystemSnapshot(), to.SubsystemSnapshot()) {
		out = append(out, op.profileUpdate())
	}
	return out
}

// BindingGroupDifference lists the updates that turn from into to.
func BindingGroupDifference(from, to *domain.SocketBindingGroup) []BindingGroupUpdate {
	var out []BindingGroupUpdate
	for _, inc := range missing(from.Includes(), to.Includes()) {
		out = append(out, &BindingGroupIncludeRemove{Include: inc})
	}
	for _, inc := range missing(to.Includes(), from.Includes()) {
		out = append(out, &BindingGroupIncludeAdd{Include: inc})
	}
	out = append(out, bindingContentDifference(from, to)...)
	return out
}

func bindingContentDifference(from, to *domain.SocketBindingGroup) []BindingGroupUpdate {
	var out []BindingGroupUpdate
	if from.DefaultInterface() != to.DefaultInterface() {
		out = append(out, &BindingGroupDefaultInterface{Interface: to.DefaultInterface()})
	}
	Reconcile(from.BindingSnapshot(), to.BindingSnapshot(), Handlers[*domain.SocketBinding]{
		OnAdd:    func(b *domain.SocketBinding) { out = append(out, &BindingAdd{Binding: b}) },
		OnRemove: func(b *domain.SocketBinding) { out = append(out, &BindingRemove{Name: b.Name}) },
		OnChange: func(o, n *domain.SocketBinding) {
			if !sameFingerprint(o, n) {
				out = append(out, &BindingReplace{Binding: n})
			}
		},
	})
	return out
}

// ServerGroupDifference lists the updates that turn from into to.
func ServerGroupDifference(from, to *domain.ServerGroup) []ServerGroupUpdate {
	var out []ServerGroupUpdate
	if from.Profile() != to.Profile() {
		out = append(out, &GroupProfile{Profile: to.Profile()})
	}
	if !sameJVM(from.JVM(), to.JVM()) {
		out = append(out, &GroupJVM{JVM: to.JVM()})
	}
	og, oo := from.SocketBinding()
	ng, no := to.SocketBinding()
	if og != ng || oo != no {
		out = append(out, &GroupSocketBinding{Group: ng, PortOffset: no})
	}
	Reconcile(from.DeploymentSnapshot(), to.DeploymentSnapshot(), Handlers[*domain.ServerGroupDeployment]{
		OnAdd: func(d *domain.ServerGroupDeployment) {
			out = append(out, &GroupDeploymentAdd{Deployment: d})
		},
		OnRemove: func(d *domain.ServerGroupDeployment) {
			out = append(out, &GroupDeploymentRemove{Name: d.UniqueName})
		},
		OnChange: func(o, n *domain.ServerGroupDeployment) {
			switch {
			case sameFingerprint(o, n):
			case o.RuntimeName == n.RuntimeName && o.Hash == n.Hash:
				out = append(out, &GroupDeploymentStart{Name: n.UniqueName, Start: n.Start})
			default:
				out = append(out,
					&GroupDeploymentRemove{Name: o.UniqueName},
					&GroupDeploymentAdd{Deployment: n})
			}
		},
	})
	for _, op := range propertyDiff(from.Properties(), to.Properties()) {
		if op.remove {
			out = append(out, &GroupPropertyRemove{Name: op.name})
		} else {
			out = append(out, &GroupPropertySet{Name: op.name, Value: op.value})
		}
	}
	return out
}

// ServerDifference transforms one server declaration into another.
func ServerDifference(from, to *domain.Server) []ServerUpdate {
	var out []ServerUpdate
	if from.Group() != to.Group() {
		out = append(out, &ServerGroupRef{Group: to.Group()})
	}
	if !sameJVM(from.JVM(), to.JVM()) {
		out = append(out, &ServerJVM{JVM: to.JVM()})
	}
	og, oo := from.SocketBinding()
	ng, no := to.SocketBinding()
	if og != ng || !sameOffset(oo, no) {
		out = append(out, &ServerSocketBinding{Group: ng, PortOffset: no})
	}
	Reconcile(from.InterfaceSnapshot(), to.InterfaceSnapshot(), Handlers[*domain.Interface]{
		OnAdd:    func(i *domain.Interface) { out = append(out, &ServerInterfaceSet{Interface: i}) },
		OnRemove: func(i *domain.Interface) { out = append(out, &ServerInterfaceRemove{Name: i.Name}) },
		OnChange: func(o, n *domain.Interface) {
			if !sameFingerprint(o, n) {
				out = append(out, &ServerInterfaceSet{Interface: n})
			}
		},
	})
	for _, op := range propertyDiff(from.Properties(), to.Properties()) {
		if op.remove {
			out = append(out, &ServerPropertyRemove{Name: op.name})
		} else {
			out = append(out, &ServerPropertySet{Name: op.name, Value: op.value})
		}
	}
	if from.AutoStart() != to.AutoStart() {
		out = append(out, &ServerAutoStart{AutoStart: to.AutoStart()})
	}
	return out
}

func sameOffset(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
