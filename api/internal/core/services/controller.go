package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/irgordon/karidc/api/internal/core/domain"
	"github.com/irgordon/karidc/api/internal/core/update"
	"github.com/irgordon/karidc/api/internal/telemetry"
)

// Batch event types published on the hub.
const (
	EventBatch      = "batch"
	EventServerUp   = "server-up"
	EventServerDown = "server-down"
	EventModel      = "model"
)

var ErrServerBooted = errors.New("server already booted")

// Dispatcher runs batch jobs. Jobs for one server are never run concurrently
// by the controller, whatever the dispatcher does.
type Dispatcher interface {
	Submit(job func(ctx context.Context)) error
}

// InlineDispatcher runs each job on the caller's goroutine.
type InlineDispatcher struct{}

func (InlineDispatcher) Submit(job func(ctx context.Context)) error {
	job(context.Background())
	return nil
}

// ServerRef names one server.
type ServerRef struct {
	Host   string `json:"host"`
	Server string `json:"server"`
}

func (r ServerRef) String() string { return r.Host + "/" + r.Server }

// ChangeResult describes an accepted model change.
type ChangeResult struct {
	Version     int         `json:"version"`
	Fingerprint string      `json:"fingerprint"`
	Updates     []string    `json:"updates"`
	Scheduled   []ServerRef `json:"scheduled"`
}

// ServerStatus is the runtime view of one declared server.
type ServerStatus struct {
	ServerRef
	Group       string `json:"group"`
	AutoStart   bool   `json:"auto_start"`
	Booted      bool   `json:"booted"`
	State       string `json:"state"`
	Fingerprint string `json:"fingerprint,omitempty"`
	InSync      bool   `json:"in_sync"`
}

type hostEntry struct {
	host    *domain.Host
	version int
}

type liveServer struct {
	mu     sync.Mutex // one batch at a time
	ref    ServerRef
	model  *domain.ServerModel
	mounts *update.MountTable
}

// ControllerDeps are the collaborators of a Controller. Only Graph is required.
type ControllerDeps struct {
	Graph       update.ServiceGraph
	Content     update.ContentStore
	Coordinator *Coordinator
	Snapshots   *SnapshotService
	Journal     domain.BatchJournal
	Dispatcher  Dispatcher
	Hub         *telemetry.Hub
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger
}

// Controller owns the domain tree and the host trees. Reads run concurrently;
// changes are applied one at a time.
type Controller struct {
	mu            sync.RWMutex
	domain        *domain.Domain
	domainVersion int
	hosts         map[string]*hostEntry

	liveMu sync.Mutex
	live   map[ServerRef]*liveServer

	reportsMu sync.Mutex
	reports   []*BatchReport

	fingerprints singleflight.Group

	graph       update.ServiceGraph
	content     update.ContentStore
	coordinator *Coordinator
	snapshots   *SnapshotService
	journal     domain.BatchJournal
	dispatcher  Dispatcher
	hub         *telemetry.Hub
	metrics     *telemetry.Metrics
	logger      *slog.Logger
}

const recentReports = 64

func NewController(d *domain.Domain, hosts []*domain.Host, deps ControllerDeps) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Coordinator == nil {
		deps.Coordinator = NewCoordinator(0, deps.Logger)
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = InlineDispatcher{}
	}
	if d == nil {
		d = domain.NewDomain()
	}
	c := &Controller{
		domain:      d,
		hosts:       make(map[string]*hostEntry),
		live:        make(map[ServerRef]*liveServer),
		graph:       deps.Graph,
		content:     deps.Content,
		coordinator: deps.Coordinator,
		snapshots:   deps.Snapshots,
		journal:     deps.Journal,
		dispatcher:  deps.Dispatcher,
		hub:         deps.Hub,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
	for _, h := range hosts {
		c.hosts[h.Name()] = &hostEntry{host: h}
	}
	return c
}

// Restore replaces the in-memory trees with stored snapshots where they
// exist. Hosts without a snapshot keep their in-memory tree.
func (c *Controller) Restore(ctx context.Context) error {
	if c.snapshots == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	d, v, err := c.snapshots.LoadDomain(ctx)
	switch {
	case err == nil:
		c.domain, c.domainVersion = d, v
		c.logger.Info("domain restored", slog.Int("version", v))
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}
	for name, entry := range c.hosts {
		h, v, err := c.snapshots.LoadHost(ctx, name)
		switch {
		case err == nil:
			entry.host, entry.version = h, v
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
	}
	return nil
}

// ===========================================================================
// Reads
// ===========================================================================

// Domain returns a copy of the domain tree and its stored version.
func (c *Controller) Domain() (*domain.Domain, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.domain.DeepCopy(), c.domainVersion
}

// Host returns a copy of one host tree and its stored version.
func (c *Controller) Host(name string) (*domain.Host, int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.hosts[name]
	if !ok {
		return nil, 0, fmt.Errorf("host %q: %w", name, domain.ErrNotFound)
	}
	return e.host.DeepCopy(), e.version, nil
}

func (c *Controller) HostNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.hosts))
	for n := range c.hosts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DomainFingerprint computes the domain fingerprint, sharing the work
// between concurrent callers.
func (c *Controller) DomainFingerprint() uint64 {
	v, _, _ := c.fingerprints.Do("domain", func() (any, error) {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.domain.Fingerprint(), nil
	})
	return v.(uint64)
}

// FlattenServer composes the effective model of one declared server.
func (c *Controller) FlattenServer(hostName, server string) (*domain.ServerModel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flattenLocked(hostName, server)
}

func (c *Controller) flattenLocked(hostName, server string) (*domain.ServerModel, error) {
	e, ok := c.hosts[hostName]
	if !ok {
		return nil, fmt.Errorf("host %q: %w", hostName, domain.ErrNotFound)
	}
	if _, ok := e.host.Server(server); !ok {
		return nil, fmt.Errorf("server %q on host %q: %w", server, hostName, domain.ErrNotFound)
	}
	start := time.Now()
	m, err := domain.NewServerModel(c.domain, e.host, server)
	c.metrics.ObserveFlatten(start)
	return m, err
}

// FlattenHost composes every server of a host concurrently.
func (c *Controller) FlattenHost(ctx context.Context, hostName string) (map[string]*domain.ServerModel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.hosts[hostName]
	if !ok {
		return nil, fmt.Errorf("host %q: %w", hostName, domain.ErrNotFound)
	}
	names := e.host.ServerNames()
	models := make([]*domain.ServerModel, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := c.flattenLocked(hostName, name)
			if err != nil {
				return err
			}
			models[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]*domain.ServerModel, len(names))
	for i, name := range names {
		out[name] = models[i]
	}
	return out, nil
}

// RunningModel returns a copy of the model a booted server currently runs.
func (c *Controller) RunningModel(ref ServerRef) (*domain.ServerModel, error) {
	ls, ok := c.liveServer(ref)
	if !ok {
		return nil, fmt.Errorf("server %s is not booted: %w", ref, domain.ErrNotFound)
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.model.DeepCopy(), nil
}

// Status reports every declared server of a host.
func (c *Controller) Status(hostName string) ([]ServerStatus, error) {
	c.mu.RLock()
	e, ok := c.hosts[hostName]
	if !ok {
		c.mu.RUnlock()
		return nil, fmt.Errorf("host %q: %w", hostName, domain.ErrNotFound)
	}
	var out []ServerStatus
	fresh := map[string]uint64{}
	for _, s := range e.host.Servers() {
		st := ServerStatus{
			ServerRef: ServerRef{Host: hostName, Server: s.Name()},
			Group:     s.Group(),
			AutoStart: s.AutoStart(),
			State:     update.StateAbsent.String(),
		}
		if m, err := c.flattenLocked(hostName, s.Name()); err == nil {
			fresh[s.Name()] = m.Fingerprint()
		}
		out = append(out, st)
	}
	c.mu.RUnlock()

	for i := range out {
		ls, ok := c.liveServer(out[i].ServerRef)
		if !ok {
			continue
		}
		ls.mu.Lock()
		fp := ls.model.Fingerprint()
		ls.mu.Unlock()
		out[i].Booted = true
		out[i].Fingerprint = strconv.FormatUint(fp, 16)
		out[i].InSync = fresh[out[i].Server] == fp
		if c.graph != nil {
			out[i].State = c.graph.State(update.ServerServiceName(out[i].Server)).String()
		}
	}
	return out, nil
}

// BootedServers lists the servers currently running.
func (c *Controller) BootedServers() []ServerRef {
	c.liveMu.Lock()
	defer c.liveMu.Unlock()
	out := make([]ServerRef, 0, len(c.live))
	for ref := range c.live {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (c *Controller) liveServer(ref ServerRef) (*liveServer, bool) {
	c.liveMu.Lock()
	defer c.liveMu.Unlock()
	ls, ok := c.live[ref]
	return ls, ok
}

// Reports returns the most recent batch reports, newest first.
func (c *Controller) Reports(limit int) []*BatchReport {
	c.reportsMu.Lock()
	defer c.reportsMu.Unlock()
	if limit <= 0 || limit > len(c.reports) {
		limit = len(c.reports)
	}
	out := make([]*BatchReport, 0, limit)
	for i := len(c.reports) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, c.reports[i])
	}
	return out
}

// ===========================================================================
// Changes
// ===========================================================================

// ApplyDomainUpdates applies a batch to the domain all-or-nothing, stores the
// result and schedules the affected booted servers to converge on it.
func (c *Controller) ApplyDomainUpdates(ctx context.Context, updates []update.DomainUpdate, trigger string) (*ChangeResult, error) {
	c.mu.Lock()
	result, err := c.applyDomainLocked(ctx, updates)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c.domainChanged(result, trigger)
	return result, nil
}

// Reconcile replaces the domain with target through the minimal update list.
// The difference is taken under the same write lock that applies it.
func (c *Controller) Reconcile(ctx context.Context, target *domain.Domain, trigger string) (*ChangeResult, error) {
	c.mu.Lock()
	result, err := c.applyDomainLocked(ctx, update.DomainDifference(c.domain, target))
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c.domainChanged(result, trigger)
	return result, nil
}

// applyDomainLocked requires c.mu held for writing.
func (c *Controller) applyDomainLocked(ctx context.Context, updates []update.DomainUpdate) (*ChangeResult, error) {
	// 1. Structural validation and in-memory apply
	undo, groups, err := applyScoped(c.domain, updates, func(u update.DomainUpdate) []string {
		return u.AffectedServerGroups(c.domain)
	})
	if err != nil {
		return nil, err
	}

	// 2. Every affected booted server must still compose
	var scope []ServerRef
	for _, ref := range c.BootedServers() {
		e, ok := c.hosts[ref.Host]
		if !ok {
			continue
		}
		s, ok := e.host.Server(ref.Server)
		if !ok || !groups[s.Group()] {
			continue
		}
		if _, err := c.flattenLocked(ref.Host, ref.Server); err != nil {
			update.Revert(c.domain, undo)
			return nil, fmt.Errorf("server %s: %w", ref, err)
		}
		scope = append(scope, ref)
	}

	// 3. Persist
	if c.snapshots != nil {
		v, err := c.snapshots.SaveDomain(ctx, c.domain, c.domainVersion)
		if err != nil {
			update.Revert(c.domain, undo)
			return nil, err
		}
		c.domainVersion = v
		c.metrics.SetVersion(domain.SnapshotDomain, "", v)
	}
	return &ChangeResult{
		Version:     c.domainVersion,
		Fingerprint: strconv.FormatUint(c.domain.Fingerprint(), 16),
		Updates:     describe(updates),
		Scheduled:   scope,
	}, nil
}

func (c *Controller) domainChanged(result *ChangeResult, trigger string) {
	c.publish(telemetry.NewEvent(domain.SnapshotDomain, EventModel, result))
	c.logger.Info("domain updated",
		slog.Int("updates", len(result.Updates)),
		slog.Int("version", result.Version),
		slog.Int("servers", len(result.Scheduled)))

	// 4. Converge outside the lock
	for _, ref := range result.Scheduled {
		c.schedule(ref, trigger)
	}
}

// ApplyHostUpdates is ApplyDomainUpdates for one host tree.
func (c *Controller) ApplyHostUpdates(ctx context.Context, hostName string, updates []update.HostUpdate, trigger string) (*ChangeResult, error) {
	c.mu.Lock()
	result, err := c.applyHostLocked(ctx, hostName, func(*domain.Host) []update.HostUpdate { return updates })
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c.hostChanged(hostName, result, trigger)
	return result, nil
}

// ReconcileHost replaces one host tree with target.
func (c *Controller) ReconcileHost(ctx context.Context, target *domain.Host, trigger string) (*ChangeResult, error) {
	c.mu.Lock()
	result, err := c.applyHostLocked(ctx, target.Name(), func(current *domain.Host) []update.HostUpdate {
		return update.HostDifference(current, target)
	})
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c.hostChanged(target.Name(), result, trigger)
	return result, nil
}

// applyHostLocked requires c.mu held for writing. updates is called with the
// current host tree once it is known to exist.
func (c *Controller) applyHostLocked(ctx context.Context, hostName string, updates func(*domain.Host) []update.HostUpdate) (*ChangeResult, error) {
	e, ok := c.hosts[hostName]
	if !ok {
		return nil, fmt.Errorf("host %q: %w", hostName, domain.ErrNotFound)
	}
	batch := updates(e.host)

	undo, servers, err := applyScoped(e.host, batch, func(u update.HostUpdate) []string {
		return u.AffectedServers(e.host)
	})
	if err != nil {
		return nil, err
	}
	if err := c.checkServerNamesLocked(e.host); err != nil {
		update.Revert(e.host, undo)
		return nil, err
	}

	var scope []ServerRef
	for _, ref := range c.BootedServers() {
		if ref.Host != hostName || !servers[ref.Server] {
			continue
		}
		if _, ok := e.host.Server(ref.Server); !ok {
			// the declaration went away; the server keeps running until stopped
			continue
		}
		if _, err := c.flattenLocked(ref.Host, ref.Server); err != nil {
			update.Revert(e.host, undo)
			return nil, fmt.Errorf("server %s: %w", ref, err)
		}
		scope = append(scope, ref)
	}

	if c.snapshots != nil {
		v, err := c.snapshots.SaveHost(ctx, e.host, e.version)
		if err != nil {
			update.Revert(e.host, undo)
			return nil, err
		}
		e.version = v
		c.metrics.SetVersion(domain.SnapshotHost, hostName, v)
	}
	return &ChangeResult{
		Version:     e.version,
		Fingerprint: strconv.FormatUint(e.host.Fingerprint(), 16),
		Updates:     describe(batch),
		Scheduled:   scope,
	}, nil
}

func (c *Controller) hostChanged(hostName string, result *ChangeResult, trigger string) {
	c.publish(telemetry.NewEvent(hostName, EventModel, result))
	for _, ref := range result.Scheduled {
		c.schedule(ref, trigger)
	}
}

// AddHost registers a host tree that the controller did not know yet.
func (c *Controller) AddHost(ctx context.Context, h *domain.Host) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.hosts[h.Name()]; ok {
		return domain.UpdateFailed("host %q already exists", h.Name())
	}
	if err := c.checkServerNamesLocked(h); err != nil {
		return err
	}
	e := &hostEntry{host: h}
	if c.snapshots != nil {
		v, err := c.snapshots.SaveHost(ctx, h, 0)
		if err != nil {
			return err
		}
		e.version = v
	}
	c.hosts[h.Name()] = e
	return nil
}

// checkServerNamesLocked fails when h declares a server name that another
// host already uses. Runtime services are named by server alone.
func (c *Controller) checkServerNamesLocked(h *domain.Host) error {
	for name, other := range c.hosts {
		if name == h.Name() {
			continue
		}
		for _, s := range h.ServerNames() {
			if _, taken := other.host.Server(s); taken {
				return domain.UpdateFailed("server %q is already declared on host %q", s, name)
			}
		}
	}
	return nil
}

// applyScoped is update.ApplyAll that also collects the scope of each update,
// judged against the target just before that update is applied.
func applyScoped[T any, U update.Update[T]](target T, updates []U, scope func(U) []string) ([]update.Update[T], map[string]bool, error) {
	seen := make(map[string]bool)
	undo := make([]update.Update[T], 0, len(updates))
	for i, u := range updates {
		for _, name := range scope(u) {
			seen[name] = true
		}
		comp := u.Compensate(target)
		if err := u.Apply(target); err != nil {
			update.Revert(target, undo)
			return nil, nil, fmt.Errorf("update %d (%s): %w", i, u, err)
		}
		undo = append(undo, comp)
	}
	return undo, seen, nil
}

func describe[U fmt.Stringer](updates []U) []string {
	out := make([]string, len(updates))
	for i, u := range updates {
		out[i] = u.String()
	}
	return out
}

// ===========================================================================
// Plan
// ===========================================================================

// PlannedUpdate is one update of a dry run. Projection is an upper bound on
// the server level effect; ServerPlan holds what each server would receive.
type PlannedUpdate struct {
	Update          string   `json:"update"`
	Projection      string   `json:"projection,omitempty"`
	RestartRequired bool     `json:"restart_required"`
	Groups          []string `json:"groups,omitempty"`
}

// ServerPlan is what a booted server would go through.
type ServerPlan struct {
	ServerRef
	Updates         []string `json:"updates"`
	RestartRequired bool     `json:"restart_required"`
}

// Plan is the outcome of a dry run.
type Plan struct {
	Fingerprint string          `json:"fingerprint"`
	Updates     []PlannedUpdate `json:"updates"`
	Servers     []ServerPlan    `json:"servers"`
}

// PlanDomainUpdates applies updates to a copy of the domain and reports what
// would happen, without changing anything.
func (c *Controller) PlanDomainUpdates(updates []update.DomainUpdate) (*Plan, error) {
	c.mu.RLock()
	scratch, hosts := c.scratchLocked()
	c.mu.RUnlock()
	return c.plan(scratch, hosts, updates)
}

// PlanReconcile is the dry run of Reconcile(target). The difference and the
// scratch copy come from the same read section.
func (c *Controller) PlanReconcile(target *domain.Domain) (*Plan, error) {
	c.mu.RLock()
	updates := update.DomainDifference(c.domain, target)
	scratch, hosts := c.scratchLocked()
	c.mu.RUnlock()
	return c.plan(scratch, hosts, updates)
}

// scratchLocked requires c.mu held. The hosts are shared, not copied; read
// them only under c.mu.
func (c *Controller) scratchLocked() (*domain.Domain, map[string]*domain.Host) {
	hosts := make(map[string]*domain.Host, len(c.hosts))
	for name, e := range c.hosts {
		hosts[name] = e.host
	}
	return c.domain.DeepCopy(), hosts
}

func (c *Controller) plan(scratch *domain.Domain, hosts map[string]*domain.Host, updates []update.DomainUpdate) (*Plan, error) {
	plan := &Plan{}
	for i, u := range updates {
		pu := PlannedUpdate{Update: u.String(), Groups: u.AffectedServerGroups(scratch)}
		if p := u.ServerModelUpdate(); p != nil {
			pu.Projection = p.String()
			pu.RestartRequired = p.RequiresRestart()
		}
		if err := u.Apply(scratch); err != nil {
			return nil, fmt.Errorf("update %d (%s): %w", i, u, err)
		}
		plan.Updates = append(plan.Updates, pu)
	}
	plan.Fingerprint = strconv.FormatUint(scratch.Fingerprint(), 16)

	for _, ref := range c.BootedServers() {
		h, ok := hosts[ref.Host]
		if !ok {
			continue
		}
		fresh, declared, err := c.composeScratch(scratch, h, ref.Server)
		if !declared {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("server %s: %w", ref, err)
		}
		running, err := c.RunningModel(ref)
		if err != nil {
			continue
		}
		diff := update.ServerModelDifference(running, fresh)
		if len(diff) == 0 {
			continue
		}
		sp := ServerPlan{ServerRef: ref, Updates: describe(diff)}
		for _, d := range diff {
			if d.RequiresRestart() {
				sp.RestartRequired = true
			}
		}
		plan.Servers = append(plan.Servers, sp)
	}
	return plan, nil
}

// composeScratch reads the shared host under c.mu.
func (c *Controller) composeScratch(scratch *domain.Domain, h *domain.Host, server string) (*domain.ServerModel, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := h.Server(server); !ok {
		return nil, false, nil
	}
	m, err := domain.NewServerModel(scratch, h, server)
	return m, true, err
}

// ===========================================================================
// Runtime
// ===========================================================================

func (c *Controller) runtimeContext(ls *liveServer, boot bool) *update.RuntimeContext {
	return &update.RuntimeContext{
		Server:        ls.ref.Server,
		Graph:         c.graph,
		Store:         c.content,
		MountTable:    ls.mounts,
		AllowRuntime:  c.graph != nil,
		AllowRollback: true,
		Boot:          boot,
	}
}

// BootServer starts a declared server: its root service first, then every
// subsystem and deployment of its composed model.
func (c *Controller) BootServer(ctx context.Context, ref ServerRef) (*BatchReport, error) {
	if c.graph == nil {
		return nil, errors.New("no runtime configured")
	}
	model, err := c.FlattenServer(ref.Host, ref.Server)
	if err != nil {
		return nil, err
	}

	c.liveMu.Lock()
	for other := range c.live {
		if other.Server == ref.Server {
			c.liveMu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrServerBooted, other)
		}
	}
	ls := &liveServer{ref: ref, model: model.Skeleton(), mounts: update.NewMountTable()}
	c.live[ref] = ls
	c.liveMu.Unlock()

	ls.mu.Lock()
	defer ls.mu.Unlock()

	// 1. Root service
	root := update.NewChanHandler()
	c.graph.Install(ctx, update.ServiceEntry{
		Name:   update.ServerServiceName(ref.Server),
		Config: map[string]string{"host": ref.Host, "server-group": model.GroupName()},
	}, func(name string, event update.ServiceEvent, err error) {
		if event == update.ServiceStarted {
			root.HandleResult(nil, update.Succeeded(name))
			return
		}
		if err == nil {
			err = fmt.Errorf("root service %s", event)
		}
		root.HandleResult(nil, update.Failed(err))
	})
	var res update.Result
	select {
	case res = <-root:
	case <-ctx.Done():
		res = update.Cancelled(ctx.Err())
	}
	if !res.OK() {
		c.forget(ref)
		return nil, fmt.Errorf("boot %s: %w", ref, res.Err)
	}

	// 2. Content, with restart-required updates allowed through
	report := c.coordinator.Run(ctx, ls.model, update.BootUpdates(model), c.runtimeContext(ls, true), nil)
	report.Trigger = "boot"
	c.record(ctx, report)
	if report.State != StateCommitted || report.Failed() {
		c.teardown(ref, ls)
		return report, fmt.Errorf("boot %s ended %s", ref, report.State)
	}

	c.metrics.SetBooted(len(c.BootedServers()))
	c.publish(telemetry.NewEvent(ref.Host, EventServerUp, ref))
	c.logger.Info("server booted", slog.String("server", ref.String()), slog.Int("updates", len(report.Records)))
	return report, nil
}

// StopServer removes a booted server's services and releases its mounts.
func (c *Controller) StopServer(ctx context.Context, ref ServerRef) error {
	ls, ok := c.liveServer(ref)
	if !ok {
		return fmt.Errorf("server %s is not booted: %w", ref, domain.ErrNotFound)
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return c.teardownCtx(ctx, ref, ls)
}

func (c *Controller) teardown(ref ServerRef, ls *liveServer) {
	if err := c.teardownCtx(context.Background(), ref, ls); err != nil {
		c.logger.Warn("teardown incomplete", slog.String("server", ref.String()), slog.Any("error", err))
	}
}

func (c *Controller) teardownCtx(ctx context.Context, ref ServerRef, ls *liveServer) error {
	done := update.NewChanHandler()
	c.graph.Remove(ctx, update.ServerServiceName(ref.Server), func(name string, event update.ServiceEvent, err error) {
		if event == update.ServiceRemoved {
			done.HandleResult(nil, update.Succeeded(name))
			return
		}
		done.HandleResult(nil, update.Failed(err))
	})
	var res update.Result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = update.Cancelled(ctx.Err())
	}
	mountErr := ls.mounts.Close()
	c.forget(ref)
	c.metrics.SetBooted(len(c.BootedServers()))
	c.publish(telemetry.NewEvent(ref.Host, EventServerDown, ref))
	if !res.OK() {
		return fmt.Errorf("stop %s: %w", ref, res.Err)
	}
	return mountErr
}

func (c *Controller) forget(ref ServerRef) {
	c.liveMu.Lock()
	delete(c.live, ref)
	c.liveMu.Unlock()
}

// Converge brings one booted server in line with the current trees now.
func (c *Controller) Converge(ctx context.Context, ref ServerRef, trigger string) (*BatchReport, error) {
	ls, ok := c.liveServer(ref)
	if !ok {
		return nil, fmt.Errorf("server %s is not booted: %w", ref, domain.ErrNotFound)
	}
	fresh, err := c.FlattenServer(ref.Host, ref.Server)
	if err != nil {
		return nil, err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	updates := update.ServerModelDifference(ls.model, fresh)
	if len(updates) == 0 {
		return nil, nil
	}
	report := c.coordinator.Run(ctx, ls.model, updates, c.runtimeContext(ls, false), nil)
	report.Trigger = trigger
	c.record(ctx, report)
	return report, nil
}

func (c *Controller) schedule(ref ServerRef, trigger string) {
	err := c.dispatcher.Submit(func(ctx context.Context) {
		if _, err := c.Converge(ctx, ref, trigger); err != nil {
			c.logger.Warn("converge failed", slog.String("server", ref.String()), slog.Any("error", err))
		}
	})
	if err != nil {
		c.logger.Error("could not schedule batch", slog.String("server", ref.String()), slog.Any("error", err))
	}
}

func (c *Controller) record(ctx context.Context, report *BatchReport) {
	c.reportsMu.Lock()
	c.reports = append(c.reports, report)
	if len(c.reports) > recentReports {
		c.reports = c.reports[len(c.reports)-recentReports:]
	}
	c.reportsMu.Unlock()

	var outcomes, rollbacks []string
	restart := 0
	for _, r := range report.Records {
		outcomes = append(outcomes, r.Outcome)
		if r.Rollback != "" {
			rollbacks = append(rollbacks, r.Rollback)
		}
		if r.RestartRequired {
			restart++
		}
	}
	c.metrics.ObserveBatch(report.State.String(), outcomes, rollbacks, restart)
	c.publish(telemetry.NewEvent(report.Host, EventBatch, report))

	if c.journal != nil {
		if err := c.journal.Record(ctx, JournalRecord(report)); err != nil {
			c.logger.Error("journal write failed", slog.String("batch", report.ID.String()), slog.Any("error", err))
		}
	}
}

func (c *Controller) publish(e telemetry.Event) {
	if c.hub != nil {
		c.hub.Broadcast(e)
	}
}

// JournalRecord summarises a report for the batch journal.
func JournalRecord(r *BatchReport) *domain.BatchRecord {
	rec := &domain.BatchRecord{
		ID:              r.ID,
		Host:            r.Host,
		Server:          r.Server,
		Trigger:         r.Trigger,
		State:           r.State.String(),
		Updates:         len(r.Records),
		RestartRequired: r.RestartRequired(),
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
	}
	for _, u := range r.Records {
		if u.Outcome != "" && u.Outcome != update.OutcomeSuccess.String() {
			rec.Failed++
			if rec.Detail == "" {
				rec.Detail = u.Update + ": " + u.Error
			}
		}
		if u.Rollback != "" {
			rec.RolledBack++
		}
	}
	return rec
}
