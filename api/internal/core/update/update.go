// Package update holds the compensating update contract, every concrete
// update kind and the difference engine that emits them.
package update

import (
	"fmt"

	"github.com/irgordon/karidc/api/internal/core/domain"
)

// Update is a reversible mutation of a T.
type Update[T any] interface {
	// Apply mutates target, or fails with domain.ErrUpdateFailed and leaves it unchanged.
	Apply(target T) error

	// Compensate returns the update that, applied after Apply, restores
	// original. It must be computed from the pre-apply state. A nil result
	// means there is nothing to undo.
	Compensate(original T) Update[T]

	String() string
}

type (
	ProfileUpdate      = Update[*domain.Profile]
	BindingGroupUpdate = Update[*domain.SocketBindingGroup]
	ServerUpdate       = Update[*domain.Server]
)

// DomainUpdate is an update of the domain tree.
type DomainUpdate interface {
	Update[*domain.Domain]

	// ServerModelUpdate is the server level effect of this update, or nil
	// when a running server is not directly affected. It is an upper bound:
	// it ignores the domain < group < host < server precedence, so a key a
	// more specific layer overrides is still projected. ServerModelDifference
	// between the running and the recomposed model is what servers receive.
	ServerModelUpdate() ServerModelUpdate

	// AffectedServerGroups names the groups whose servers may need to change.
	// It is evaluated against the domain before the update is applied.
	AffectedServerGroups(d *domain.Domain) []string
}

// HostUpdate is an update of one host tree.
type HostUpdate interface {
	Update[*domain.Host]

	// ServerModelUpdate is an upper bound, as for DomainUpdate.
	ServerModelUpdate() ServerModelUpdate

	// AffectedServers is evaluated against the host before the update is applied.
	AffectedServers(h *domain.Host) []string
}

// ServerGroupUpdate is an update of one server group.
type ServerGroupUpdate interface {
	Update[*domain.ServerGroup]

	// ServerModelUpdate is an upper bound; host and server properties still
	// override what a group sets.
	ServerModelUpdate() ServerModelUpdate
}

// ServerModelUpdate is an update of a flattened server model that can also
// be pushed into the live runtime.
type ServerModelUpdate interface {
	Update[*domain.ServerModel]

	// RequiresRestart reports that the change only takes effect at process
	// start, so it is never pushed to a running server.
	RequiresRestart() bool

	// ApplyToRuntime starts the runtime side of the update and returns
	// immediately. The outcome is reported once through handler, possibly
	// from another goroutine.
	ApplyToRuntime(ctx UpdateContext, handler ResultHandler, param any)
}

// projector is implemented by element updates that have a server level effect.
type projector interface {
	modelProjection() ServerModelUpdate
}

// domainChecker is implemented by element updates whose preconditions
// reach beyond the element into the owning domain.
type domainChecker interface {
	checkDomain(d *domain.Domain, owner string) error
}

func projectionOf(u any) ServerModelUpdate {
	if p, ok := u.(projector); ok {
		return p.modelProjection()
	}
	return nil
}

// ApplyAll applies updates in order and returns the compensations of every
// applied update. On the first failure the already applied updates are
// compensated in reverse order, leaving target as it was.
func ApplyAll[T any, U Update[T]](target T, updates []U) ([]Update[T], error) {
	undo := make([]Update[T], 0, len(updates))
	for i, u := range updates {
		comp := u.Compensate(target)
		if err := u.Apply(target); err != nil {
			Revert(target, undo)
			return nil, fmt.Errorf("update %d (%s): %w", i, u, err)
		}
		undo = append(undo, comp)
	}
	return undo, nil
}

// Revert applies compensations in reverse order. Failures are collected, not
// fatal, so every compensation is attempted.
func Revert[T any](target T, undo []Update[T]) []error {
	var errs []error
	for i := len(undo) - 1; i >= 0; i-- {
		if undo[i] == nil {
			continue
		}
		if err := undo[i].Apply(target); err != nil {
			errs = append(errs, fmt.Errorf("compensate %s: %w", undo[i], err))
		}
	}
	return errs
}

func fmtValue(v *string) string {
	if v == nil {
		return "<null>"
	}
	return fmt.Sprintf("%q", *v)
}
