package update

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/irgordon/karidc/api/internal/core/domain"
)

// ServiceEvent is a terminal notification of the service graph.
type ServiceEvent int

const (
	ServiceStarted ServiceEvent = iota
	ServiceStopped
	ServiceRemoved
	ServiceUpdated
	ServiceFailed
	ServiceCancelled
)

func (e ServiceEvent) String() string {
	switch e {
	case ServiceStarted:
		return "started"
	case ServiceStopped:
		return "stopped"
	case ServiceRemoved:
		return "removed"
	case ServiceUpdated:
		return "updated"
	case ServiceFailed:
		return "failed"
	case ServiceCancelled:
		return "cancelled"
	}
	return "unknown"
}

// ServiceState is the observable state of a live service.
type ServiceState int

const (
	StateAbsent ServiceState = iota
	StateStarting
	StateUp
	StateStopped
	StateFailed
)

func (s ServiceState) String() string {
	return [...]string{"absent", "starting", "up", "stopped", "failed"}[s]
}

// ServiceListener receives exactly one terminal notification per request.
type ServiceListener func(name string, event ServiceEvent, err error)

// ServiceEntry describes a service to install.
type ServiceEntry struct {
	Name      string
	DependsOn []string
	Config    map[string]string
}

// ServiceGraph is the live runtime the server model is pushed into. Every
// call returns immediately and reports exactly one terminal notification.
type ServiceGraph interface {
	Install(ctx context.Context, entry ServiceEntry, listener ServiceListener)
	Configure(ctx context.Context, name, key string, value *string, listener ServiceListener)
	Stop(ctx context.Context, name string, listener ServiceListener)
	Remove(ctx context.Context, name string, listener ServiceListener)
	State(name string) ServiceState
}

// MountedContent is a handle on mounted deployment content. Close is idempotent.
type MountedContent interface {
	Path() string
	Hash() domain.ContentHash
	Close() error
}

// ContentStore resolves content hashes to mountable content. Mounting the
// same hash twice shares one underlying mount.
type ContentStore interface {
	Mount(ctx context.Context, hash domain.ContentHash) (MountedContent, error)
}

// ===========================================================================
// Service naming
// ===========================================================================

func ServerServiceName(server string) string { return "server/" + server }

func SubsystemServiceName(server string, q domain.QName) string {
	return "server/" + server + "/subsystem/" + q.String()
}

func DeploymentServiceName(server, runtimeName string) string {
	return "server/" + server + "/deployment/" + runtimeName
}

// ===========================================================================
// Update context
// ===========================================================================

// UpdateContext is what a server model update sees while it runs.
type UpdateContext interface {
	Context() context.Context
	WithContext(ctx context.Context) UpdateContext
	ServerName() string
	Services() ServiceGraph
	Content() ContentStore
	Mounts() *MountTable

	// RuntimeUpdatesAllowed is false for model-only contexts.
	RuntimeUpdatesAllowed() bool
	RollbackAllowed() bool

	// Booting is true while the server is starting, the only time
	// restart-required updates reach the runtime.
	Booting() bool
}

// RuntimeContext is the standard UpdateContext.
type RuntimeContext struct {
	Ctx           context.Context
	Server        string
	Graph         ServiceGraph
	Store         ContentStore
	MountTable    *MountTable
	AllowRuntime  bool
	AllowRollback bool
	Boot          bool
}

func (c *RuntimeContext) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

func (c *RuntimeContext) WithContext(ctx context.Context) UpdateContext {
	out := *c
	out.Ctx = ctx
	return &out
}

func (c *RuntimeContext) ServerName() string          { return c.Server }
func (c *RuntimeContext) Services() ServiceGraph      { return c.Graph }
func (c *RuntimeContext) Content() ContentStore       { return c.Store }
func (c *RuntimeContext) Mounts() *MountTable         { return c.MountTable }
func (c *RuntimeContext) RuntimeUpdatesAllowed() bool { return c.AllowRuntime }
func (c *RuntimeContext) RollbackAllowed() bool       { return c.AllowRollback }
func (c *RuntimeContext) Booting() bool               { return c.Boot }

// ===========================================================================
// Mount table
// ===========================================================================

// MountTable tracks the content mounted for one server, keyed by runtime name.
type MountTable struct {
	mu     sync.Mutex
	mounts map[string]MountedContent
}

func NewMountTable() *MountTable {
	return &MountTable{mounts: make(map[string]MountedContent)}
}

// Put records a mount, releasing any previous mount under the same name.
func (t *MountTable) Put(runtimeName string, c MountedContent) error {
	t.mu.Lock()
	old, had := t.mounts[runtimeName]
	t.mounts[runtimeName] = c
	t.mu.Unlock()
	if had && old != c {
		return old.Close()
	}
	return nil
}

func (t *MountTable) Get(runtimeName string) (MountedContent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.mounts[runtimeName]
	return c, ok
}

// Release closes and forgets a mount. Releasing an unknown name is a no-op.
func (t *MountTable) Release(runtimeName string) error {
	t.mu.Lock()
	c, ok := t.mounts[runtimeName]
	delete(t.mounts, runtimeName)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return c.Close()
}

func (t *MountTable) Names() []string {
	t.mu.Lock()
	out := make([]string, 0, len(t.mounts))
	for name := range t.mounts {
		out = append(out, name)
	}
	t.mu.Unlock()
	slices.Sort(out)
	return out
}

// Close releases every mount.
func (t *MountTable) Close() error {
	var errs []error
	for _, name := range t.Names() {
		if err := t.Release(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
