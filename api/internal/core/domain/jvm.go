package domain

import "slices"

// JVM holds launch settings for a server process. A JVM value is treated as
// immutable once built; updates replace it wholesale.
type JVM struct {
	Name             string
	JavaHome         string
	HeapSize         string
	MaxHeapSize      string
	DebugEnabled     *bool
	DebugOptions     string
	Options          []string
	Environment      *Properties // nil values unset a variable
	SystemProperties *Properties
}

// NewJVM returns an empty JVM definition with initialized property maps.
func NewJVM(name string) *JVM {
	return &JVM{
		Name:             name,
		Environment:      NewProperties(true),
		SystemProperties: NewProperties(false),
	}
}

func (j *JVM) Clone() *JVM {
	if j == nil {
		return nil
	}
	out := *j
	out.Options = slices.Clone(j.Options)
	if j.DebugEnabled != nil {
		v := *j.DebugEnabled
		out.DebugEnabled = &v
	}
	out.Environment = cloneOrNew(j.Environment, true)
	out.SystemProperties = cloneOrNew(j.SystemProperties, false)
	return &out
}

// Merge overlays override onto a copy of j: set scalars win, options are
// appended, property maps merge last-write-wins. Either side may be nil.
func (j *JVM) Merge(override *JVM) *JVM {
	if j == nil {
		return override.Clone()
	}
	out := j.Clone()
	if override == nil {
		return out
	}
	if override.Name != "" {
		out.Name = override.Name
	}
	if override.JavaHome != "" {
		out.JavaHome = override.JavaHome
	}
	if override.HeapSize != "" {
		out.HeapSize = override.HeapSize
	}
	if override.MaxHeapSize != "" {
		out.MaxHeapSize = override.MaxHeapSize
	}
	if override.DebugEnabled != nil {
		v := *override.DebugEnabled
		out.DebugEnabled = &v
	}
	if override.DebugOptions != "" {
		out.DebugOptions = override.DebugOptions
	}
	out.Options = append(out.Options, override.Options...)
	out.Environment.Merge(override.Environment)
	out.SystemProperties.Merge(override.SystemProperties)
	return out
}

func (j *JVM) Fingerprint() uint64 {
	h := newHasher("jvm").
		str("name", j.Name).
		str("java-home", j.JavaHome).
		str("heap", j.HeapSize).
		str("max-heap", j.MaxHeapSize).
		str("debug-options", j.DebugOptions)
	if j.DebugEnabled == nil {
		h.optional("debug", nil)
	} else {
		h.bool("debug", *j.DebugEnabled)
	}
	// options are a sequence, order matters
	h.strs("option", j.Options)
	h.child(cloneOrNew(j.Environment, true).Fingerprint())
	h.child(cloneOrNew(j.SystemProperties, false).Fingerprint())
	return h.sum()
}

func cloneOrNew(p *Properties, allowNull bool) *Properties {
	if p == nil {
		return NewProperties(allowNull)
	}
	return p.Clone()
}

// fingerprintJVM handles the optional JVM slot of groups, servers and models.
func fingerprintJVM(h *hasher, j *JVM) {
	if j == nil {
		h.optional("jvm", nil)
		return
	}
	h.child(j.Fingerprint())
}
