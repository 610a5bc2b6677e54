package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/karidc/api/internal/core/update"
	"github.com/irgordon/karidc/api/internal/runtime"
)

type notification struct {
	name  string
	event update.ServiceEvent
	err   error
}

// collector records every notification it receives.
type collector struct {
	mu  sync.Mutex
	got []notification
	ch  chan notification
}

func newCollector() *collector { return &collector{ch: make(chan notification, 16)} }

func (c *collector) listen(name string, event update.ServiceEvent, err error) {
	c.mu.Lock()
	c.got = append(c.got, notification{name, event, err})
	c.mu.Unlock()
	c.ch <- notification{name, event, err}
}

func (c *collector) next(t *testing.T) notification {
	t.Helper()
	select {
	case n := <-c.ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
		return notification{}
	}
}

type failingStarter struct {
	runtime.NopStarter
	fail map[string]error
}

func (f failingStarter) Start(_ context.Context, e update.ServiceEntry) error { return f.fail[e.Name] }

func TestGraph_InstallStartsAfterDependencies(t *testing.T) {
	g := runtime.NewGraph(nil, nil)
	ctx := context.Background()
	c := newCollector()

	g.Install(ctx, update.ServiceEntry{Name: "child", DependsOn: []string{"root"}}, c.listen)
	n := c.next(t)
	assert.Equal(t, update.ServiceFailed, n.event)
	assert.ErrorIs(t, n.err, runtime.ErrDependencyDown)

	g.Install(ctx, update.ServiceEntry{Name: "root"}, c.listen)
	assert.Equal(t, update.ServiceStarted, c.next(t).event)

	g.Install(ctx, update.ServiceEntry{Name: "child", DependsOn: []string{"root"}, Config: map[string]string{"k": "v"}}, c.listen)
	assert.Equal(t, update.ServiceStarted, c.next(t).event)
	assert.Equal(t, update.StateUp, g.State("child"))

	g.Install(ctx, update.ServiceEntry{Name: "root"}, c.listen)
	n = c.next(t)
	assert.Equal(t, update.ServiceFailed, n.event)
	assert.ErrorIs(t, n.err, runtime.ErrServiceExists)
}

func TestGraph_ExactlyOneNotificationPerRequest(t *testing.T) {
	g := runtime.NewGraph(nil, nil)
	ctx := context.Background()
	c := newCollector()

	g.Install(ctx, update.ServiceEntry{Name: "root"}, c.listen)
	g.Wait()
	g.Configure(ctx, "root", "level", stringPtr("DEBUG"), c.listen)
	g.Wait()
	g.Stop(ctx, "root", c.listen)
	g.Wait()
	g.Remove(ctx, "root", c.listen)
	g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.got, 4)
	assert.Equal(t, update.ServiceStarted, c.got[0].event)
	assert.Equal(t, update.ServiceUpdated, c.got[1].event)
	assert.Equal(t, update.ServiceStopped, c.got[2].event)
	assert.Equal(t, update.ServiceRemoved, c.got[3].event)
	assert.Equal(t, update.StateAbsent, g.State("root"))
}

func TestGraph_ConfigureUpdatesConfig(t *testing.T) {
	g := runtime.NewGraph(nil, nil)
	ctx := context.Background()
	c := newCollector()

	g.Install(ctx, update.ServiceEntry{Name: "svc", Config: map[string]string{"a": "1", "b": "2"}}, c.listen)
	c.next(t)

	g.Configure(ctx, "svc", "a", stringPtr("10"), c.listen)
	c.next(t)
	g.Configure(ctx, "svc", "b", nil, c.listen)
	c.next(t)

	cfg, ok := g.Config("svc")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"a": "10"}, cfg)

	g.Configure(ctx, "ghost", "a", nil, c.listen)
	assert.ErrorIs(t, c.next(t).err, runtime.ErrServiceNotFound)
}

func TestGraph_StartFailureIsReported(t *testing.T) {
	boom := errors.New("port in use")
	g := runtime.NewGraph(failingStarter{fail: map[string]error{"web": boom}}, nil)
	c := newCollector()

	g.Install(context.Background(), update.ServiceEntry{Name: "web"}, c.listen)
	n := c.next(t)
	assert.Equal(t, update.ServiceFailed, n.event)
	assert.ErrorIs(t, n.err, boom)
	assert.Equal(t, update.StateFailed, g.State("web"))
}

func TestGraph_CancelledContext(t *testing.T) {
	g := runtime.NewGraph(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newCollector()

	g.Install(ctx, update.ServiceEntry{Name: "svc"}, c.listen)
	n := c.next(t)
	assert.Equal(t, update.ServiceCancelled, n.event)
	assert.ErrorIs(t, n.err, context.Canceled)
	assert.Equal(t, update.StateAbsent, g.State("svc"))
}

func TestGraph_RemoveCascadesAndIsIdempotent(t *testing.T) {
	g := runtime.NewGraph(nil, nil)
	ctx := context.Background()
	c := newCollector()

	g.Install(ctx, update.ServiceEntry{Name: "server/a"}, c.listen)
	c.next(t)
	g.Install(ctx, update.ServiceEntry{Name: "server/a/deployment/x", DependsOn: []string{"server/a"}}, c.listen)
	c.next(t)
	assert.Len(t, g.Services("server/a"), 2)

	g.Remove(ctx, "server/a", c.listen)
	assert.Equal(t, update.ServiceRemoved, c.next(t).event)
	assert.Empty(t, g.Services("server/a"))

	g.Remove(ctx, "server/a", c.listen)
	assert.Equal(t, update.ServiceRemoved, c.next(t).event)
}

func stringPtr(s string) *string { return &s }
