package workers_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/karidc/api/internal/core/services"
	"github.com/irgordon/karidc/api/internal/telemetry"
	"github.com/irgordon/karidc/api/internal/workers"
)

type fakeSource struct {
	mu        sync.Mutex
	statuses  []services.ServerStatus
	converged []services.ServerRef
}

func (f *fakeSource) HostNames() []string { return []string{"node-1"} }

func (f *fakeSource) Status(string) ([]services.ServerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]services.ServerStatus(nil), f.statuses...), nil
}

func (f *fakeSource) Converge(_ context.Context, ref services.ServerRef, trigger string) (*services.BatchReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.converged = append(f.converged, ref)
	return &services.BatchReport{Host: ref.Host, Server: ref.Server, Trigger: trigger, State: services.StateCommitted}, nil
}

func (f *fakeSource) set(st ...services.ServerStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = st
}

func status(server, state string, booted, inSync bool) services.ServerStatus {
	return services.ServerStatus{
		ServerRef: services.ServerRef{Host: "node-1", Server: server},
		Booted:    booted,
		State:     state,
		InSync:    inSync,
	}
}

func drain(ch chan telemetry.Event) []string {
	var types []string
	for {
		select {
		case e := <-ch:
			types = append(types, e.Type)
		default:
			return types
		}
	}
}

func TestServerMonitor_RepairsDrift(t *testing.T) {
	src := &fakeSource{}
	src.set(
		status("server-one", "up", true, false),
		status("server-two", "up", true, true),
		status("server-three", "absent", false, false),
	)
	m := workers.NewServerMonitor(src, nil, nil, time.Minute).WithJitter(0)

	m.Sweep(context.Background())

	assert.Equal(t, []services.ServerRef{{Host: "node-1", Server: "server-one"}}, src.converged)
}

func TestServerMonitor_ReportsTransitionsOnce(t *testing.T) {
	hub := telemetry.NewHub()
	events := hub.Subscribe(telemetry.AllTopics)
	src := &fakeSource{}
	m := workers.NewServerMonitor(src, hub, nil, time.Minute).WithJitter(0)
	ctx := context.Background()

	src.set(status("server-one", "failed", true, false))
	m.Sweep(ctx)
	m.Sweep(ctx)
	assert.Equal(t, []string{workers.EventServerDegraded}, drain(events))
	assert.Empty(t, src.converged, "a failed runtime is not converged")

	src.set(status("server-one", "up", true, true))
	m.Sweep(ctx)
	m.Sweep(ctx)
	assert.Equal(t, []string{workers.EventServerRecovered}, drain(events))
}

func TestServerMonitor_StopsWithContext(t *testing.T) {
	m := workers.NewServerMonitor(&fakeSource{}, nil, nil, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "monitor ignored cancellation")
	}
}
