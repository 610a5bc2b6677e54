// Package runtime is the in-process service graph that server model updates
// are pushed into. It tracks service state and dependencies; the actual work
// of starting and stopping is delegated to a Starter.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/irgordon/karidc/api/internal/core/update"
)

var (
	ErrServiceNotFound = errors.New("service not found")
	ErrServiceExists   = errors.New("service already installed")
	ErrDependencyDown  = errors.New("dependency is not up")
)

// Starter performs the side effects behind the graph's state transitions.
type Starter interface {
	Start(ctx context.Context, entry update.ServiceEntry) error
	Configure(ctx context.Context, name, key string, value *string) error
	Stop(ctx context.Context, name string) error
}

// NopStarter succeeds at everything.
type NopStarter struct{}

func (NopStarter) Start(context.Context, update.ServiceEntry) error         { return nil }
func (NopStarter) Configure(context.Context, string, string, *string) error { return nil }
func (NopStarter) Stop(context.Context, string) error                       { return nil }

type service struct {
	entry update.ServiceEntry
	state update.ServiceState
}

// Graph implements update.ServiceGraph. Every request returns immediately and
// its listener is called exactly once from another goroutine.
type Graph struct {
	mu       sync.RWMutex
	services map[string]*service
	starter  Starter
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewGraph(starter Starter, logger *slog.Logger) *Graph {
	if starter == nil {
		starter = NopStarter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		services: make(map[string]*service),
		starter:  starter,
		logger:   logger,
	}
}

var _ update.ServiceGraph = (*Graph)(nil)

func (g *Graph) notify(listener update.ServiceListener, name string, event update.ServiceEvent, err error) {
	if listener == nil {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		listener(name, event, err)
	}()
}

// Wait blocks until every notification issued so far has been delivered.
func (g *Graph) Wait() { g.wg.Wait() }

// ===========================================================================
// Requests
// ===========================================================================

// Install starts a new service once all of its dependencies are up. A
// stopped or failed service of the same name is replaced.
func (g *Graph) Install(ctx context.Context, entry update.ServiceEntry, listener update.ServiceListener) {
	if err := ctx.Err(); err != nil {
		g.notify(listener, entry.Name, update.ServiceCancelled, err)
		return
	}

	g.mu.Lock()
	if s, ok := g.services[entry.Name]; ok && (s.state == update.StateUp || s.state == update.StateStarting) {
		g.mu.Unlock()
		g.notify(listener, entry.Name, update.ServiceFailed, fmt.Errorf("%w: %s", ErrServiceExists, entry.Name))
		return
	}
	for _, dep := range entry.DependsOn {
		if d, ok := g.services[dep]; !ok || d.state != update.StateUp {
			g.mu.Unlock()
			g.notify(listener, entry.Name, update.ServiceFailed, fmt.Errorf("%w: %s needs %s", ErrDependencyDown, entry.Name, dep))
			return
		}
	}
	s := &service{entry: cloneEntry(entry), state: update.StateStarting}
	g.services[entry.Name] = s
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		err := g.starter.Start(ctx, s.entry)

		g.mu.Lock()
		switch {
		case ctx.Err() != nil:
			if g.services[entry.Name] == s {
				delete(g.services, entry.Name)
			}
			g.mu.Unlock()
			if listener != nil {
				listener(entry.Name, update.ServiceCancelled, ctx.Err())
			}
		case err != nil:
			s.state = update.StateFailed
			g.mu.Unlock()
			g.logger.Warn("service failed to start", slog.String("service", entry.Name), slog.Any("error", err))
			if listener != nil {
				listener(entry.Name, update.ServiceFailed, err)
			}
		default:
			s.state = update.StateUp
			g.mu.Unlock()
			if listener != nil {
				listener(entry.Name, update.ServiceStarted, nil)
			}
		}
	}()
}

// Configure changes one configuration key of a running service. A nil value
// removes the key.
func (g *Graph) Configure(ctx context.Context, name, key string, value *string, listener update.ServiceListener) {
	if err := ctx.Err(); err != nil {
		g.notify(listener, name, update.ServiceCancelled, err)
		return
	}
	g.mu.RLock()
	s, ok := g.services[name]
	up := ok && s.state == update.StateUp
	g.mu.RUnlock()
	if !ok {
		g.notify(listener, name, update.ServiceFailed, fmt.Errorf("%w: %s", ErrServiceNotFound, name))
		return
	}
	if !up {
		g.notify(listener, name, update.ServiceFailed, fmt.Errorf("service %s is %s", name, g.State(name)))
		return
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.starter.Configure(ctx, name, key, value); err != nil {
			if listener != nil {
				listener(name, update.ServiceFailed, err)
			}
			return
		}
		g.mu.Lock()
		if value == nil {
			delete(s.entry.Config, key)
		} else {
			s.entry.Config[key] = *value
		}
		g.mu.Unlock()
		if listener != nil {
			listener(name, update.ServiceUpdated, nil)
		}
	}()
}

// Stop stops a service and keeps its entry so it can be installed again.
func (g *Graph) Stop(ctx context.Context, name string, listener update.ServiceListener) {
	if err := ctx.Err(); err != nil {
		g.notify(listener, name, update.ServiceCancelled, err)
		return
	}
	g.mu.RLock()
	s, ok := g.services[name]
	g.mu.RUnlock()
	if !ok {
		g.notify(listener, name, update.ServiceFailed, fmt.Errorf("%w: %s", ErrServiceNotFound, name))
		return
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.starter.Stop(ctx, name); err != nil {
			g.mu.Lock()
			s.state = update.StateFailed
			g.mu.Unlock()
			if listener != nil {
				listener(name, update.ServiceFailed, err)
			}
			return
		}
		g.mu.Lock()
		s.state = update.StateStopped
		g.mu.Unlock()
		if listener != nil {
			listener(name, update.ServiceStopped, nil)
		}
	}()
}

// Remove stops and forgets a service together with everything that depends
// on it. Removing an unknown service succeeds.
func (g *Graph) Remove(ctx context.Context, name string, listener update.ServiceListener) {
	if err := ctx.Err(); err != nil {
		g.notify(listener, name, update.ServiceCancelled, err)
		return
	}
	g.mu.Lock()
	victims := g.dependentsLocked(name)
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		var errs []error
		// dependents first, the requested service last
		for i := len(victims) - 1; i >= 0; i-- {
			v := victims[i]
			g.mu.Lock()
			s, ok := g.services[v]
			running := ok && (s.state == update.StateUp || s.state == update.StateStarting)
			g.mu.Unlock()
			if running {
				if err := g.starter.Stop(ctx, v); err != nil {
					errs = append(errs, fmt.Errorf("stop %s: %w", v, err))
				}
			}
			g.mu.Lock()
			delete(g.services, v)
			g.mu.Unlock()
		}
		if listener == nil {
			return
		}
		if err := errors.Join(errs...); err != nil {
			listener(name, update.ServiceFailed, err)
			return
		}
		listener(name, update.ServiceRemoved, nil)
	}()
}

// dependentsLocked returns name followed by its transitive dependents, parents
// before children.
func (g *Graph) dependentsLocked(name string) []string {
	out := []string{}
	seen := map[string]bool{}
	var walk func(string)
	walk = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		if _, ok := g.services[n]; ok {
			out = append(out, n)
		}
		for _, other := range sortedNames(g.services) {
			for _, dep := range g.services[other].entry.DependsOn {
				if dep == n {
					walk(other)
				}
			}
		}
	}
	walk(name)
	return out
}

// ===========================================================================
// Queries
// ===========================================================================

func (g *Graph) State(name string) update.ServiceState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if s, ok := g.services[name]; ok {
		return s.state
	}
	return update.StateAbsent
}

// Config returns a copy of a service's current configuration.
func (g *Graph) Config(name string) (map[string]string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.services[name]
	if !ok {
		return nil, false
	}
	return cloneEntry(s.entry).Config, true
}

// Services lists the state of every service whose name starts with prefix.
func (g *Graph) Services(prefix string) map[string]update.ServiceState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]update.ServiceState)
	for name, s := range g.services {
		if strings.HasPrefix(name, prefix) {
			out[name] = s.state
		}
	}
	return out
}

func cloneEntry(e update.ServiceEntry) update.ServiceEntry {
	out := update.ServiceEntry{Name: e.Name, Config: make(map[string]string, len(e.Config))}
	out.DependsOn = append(out.DependsOn, e.DependsOn...)
	for k, v := range e.Config {
		out.Config[k] = v
	}
	return out
}

func sortedNames(m map[string]*service) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
