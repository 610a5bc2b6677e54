package domain

import (
	"fmt"
	"strings"
)

// QName is the namespace-qualified name of a subsystem.
type QName struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Local     string `json:"name" yaml:"name"`
}

// String renders the name as {namespace}local.
func (q QName) String() string {
	return "{" + q.Namespace + "}" + q.Local
}

// ParseQName is the inverse of QName.String.
func ParseQName(s string) (QName, error) {
	if !strings.HasPrefix(s, "{") {
		return QName{}, fmt.Errorf("qualified name %q must start with {namespace}", s)
	}
	end := strings.Index(s, "}")
	if end < 0 || end == len(s)-1 {
		return QName{}, fmt.Errorf("qualified name %q is malformed", s)
	}
	return QName{Namespace: s[1:end], Local: s[end+1:]}, nil
}

// Subsystem is an opaque configuration fragment contributed by an extension.
// The engine only ever sees it through this attribute view.
type Subsystem interface {
	QName() QName
	// Empty reports whether the subsystem carries no configuration and may be removed.
	Empty() bool
	Fingerprint() uint64
	Copy() Subsystem
	// Blank returns an empty subsystem of the same kind.
	Blank() Subsystem
	// Attributes returns a copy of the configuration.
	Attributes() map[string]string
	Attribute(name string) (string, bool)
	SetAttribute(name, value string) (previous string, existed bool)
	RemoveAttribute(name string) (previous string, existed bool)
}

// GenericSubsystem is an attribute bag. It backs every namespace whose
// extension does not contribute its own kind.
type GenericSubsystem struct {
	qname QName
	attrs keyed[string, string]
}

func NewGenericSubsystem(qname QName) *GenericSubsystem {
	return &GenericSubsystem{qname: qname}
}

func (s *GenericSubsystem) QName() QName { return s.qname }

func (s *GenericSubsystem) Empty() bool { return s.attrs.len() == 0 }

func (s *GenericSubsystem) Fingerprint() uint64 {
	h := newHasher("subsystem").str("qname", s.qname.String())
	snap := s.attrs.snapshot()
	names := s.attrs.keys()
	h.int("size", len(names))
	for _, name := range names {
		h.str("attr", name).str("value", snap[name])
	}
	return h.sum()
}

func (s *GenericSubsystem) Copy() Subsystem {
	out := NewGenericSubsystem(s.qname)
	for k, v := range s.attrs.snapshot() {
		out.attrs.put(k, v)
	}
	return out
}

func (s *GenericSubsystem) Blank() Subsystem { return NewGenericSubsystem(s.qname) }

func (s *GenericSubsystem) Attributes() map[string]string { return s.attrs.snapshot() }

func (s *GenericSubsystem) Attribute(name string) (string, bool) { return s.attrs.get(name) }

func (s *GenericSubsystem) SetAttribute(name, value string) (string, bool) {
	return s.attrs.put(name, value)
}

func (s *GenericSubsystem) RemoveAttribute(name string) (string, bool) {
	return s.attrs.remove(name)
}

// AttributeNames lists a subsystem's attribute names in sorted order.
func AttributeNames(s Subsystem) []string {
	var names keyed[string, struct{}]
	for name := range s.Attributes() {
		names.put(name, struct{}{})
	}
	return names.keys()
}
