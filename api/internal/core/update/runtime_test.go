package update_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/karidc/api/internal/core/domain"
	"github.com/irgordon/karidc/api/internal/core/domain/domaintest"
	"github.com/irgordon/karidc/api/internal/core/update"
	"github.com/irgordon/karidc/api/internal/runtime"
)

type stubMount struct {
	hash     domain.ContentHash
	closeErr error
	closed   bool
}

func (m *stubMount) Path() string             { return "/content/" + m.hash.String() }
func (m *stubMount) Hash() domain.ContentHash { return m.hash }
func (m *stubMount) Close() error {
	m.closed = true
	return m.closeErr
}

type stubStore struct{}

func (stubStore) Mount(_ context.Context, hash domain.ContentHash) (update.MountedContent, error) {
	return &stubMount{hash: hash}, nil
}

type resultChan chan update.Result

func (c resultChan) HandleResult(_ any, r update.Result)         { c <- r }
func (c resultChan) HandleRollbackResult(_ any, r update.Result) { c <- r }

func TestModelDeploymentAdd_ReportsFailedRelease(t *testing.T) {
	errBusy := errors.New("device busy")
	stale := &stubMount{hash: domain.HashContent([]byte("v1")), closeErr: errBusy}
	mounts := update.NewMountTable()
	require.NoError(t, mounts.Put("app.war", stale))

	ctx := &update.RuntimeContext{Server: "server-one", Store: stubStore{}, MountTable: mounts, AllowRuntime: true}
	fresh := domain.HashContent([]byte("v2"))
	results := make(resultChan, 1)
	u := &update.ModelDeploymentAdd{Deployment: &domain.ServerGroupDeployment{
		UniqueName: "app.war", RuntimeName: "app.war", Hash: fresh,
	}}
	u.ApplyToRuntime(ctx, results, nil)

	select {
	case r := <-results:
		assert.Equal(t, update.OutcomeFailure, r.Outcome)
		assert.ErrorIs(t, r.Err, errBusy)
		assert.ErrorContains(t, r.Err, "app.war")
	case <-time.After(5 * time.Second):
		t.Fatal("no result reported")
	}
	assert.True(t, stale.closed)

	// the replacement stays recorded for a rollback to release
	current, ok := mounts.Get("app.war")
	require.True(t, ok)
	assert.Equal(t, fresh, current.Hash())
}

func TestModelDeploymentAdd_ReplacesMount(t *testing.T) {
	stale := &stubMount{hash: domain.HashContent([]byte("v1"))}
	mounts := update.NewMountTable()
	require.NoError(t, mounts.Put("app.war", stale))

	ctx := &update.RuntimeContext{Server: "server-one", Store: stubStore{}, MountTable: mounts, AllowRuntime: true}
	results := make(resultChan, 1)
	u := &update.ModelDeploymentAdd{Deployment: &domain.ServerGroupDeployment{
		UniqueName: "app.war", RuntimeName: "app.war", Hash: domain.HashContent([]byte("v2")),
	}}
	u.ApplyToRuntime(ctx, results, nil)

	select {
	case r := <-results:
		assert.Equal(t, update.OutcomeSuccess, r.Outcome)
	case <-time.After(5 * time.Second):
		t.Fatal("no result reported")
	}
	assert.True(t, stale.closed)
}

func awaitResult(t *testing.T, results resultChan) update.Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no result reported")
	}
	return update.Result{}
}

func TestModelSubsystemReplace_ReinstallsService(t *testing.T) {
	g := runtime.NewGraph(nil, nil)
	ctx := &update.RuntimeContext{Server: domaintest.ServerOne, Graph: g, AllowRuntime: true}
	bg := context.Background()
	server := update.ServerServiceName(domaintest.ServerOne)
	name := update.SubsystemServiceName(domaintest.ServerOne, domaintest.LoggingQName)

	results := make(resultChan, 1)
	listener := func(_ string, event update.ServiceEvent, err error) {
		if err != nil || event != update.ServiceStarted {
			results <- update.Failed(err)
			return
		}
		results <- update.Succeeded(nil)
	}
	g.Install(bg, update.ServiceEntry{Name: server}, listener)
	require.Equal(t, update.OutcomeSuccess, awaitResult(t, results).Outcome)
	g.Install(bg, update.ServiceEntry{
		Name:      name,
		DependsOn: []string{server},
		Config:    map[string]string{"level": "INFO", "format": "json"},
	}, listener)
	require.Equal(t, update.OutcomeSuccess, awaitResult(t, results).Outcome)

	u := &update.ModelSubsystemReplace{Subsystem: domaintest.Subsystem(domaintest.LoggingQName, "level", "DEBUG")}
	u.ApplyToRuntime(ctx, results, nil)
	r := awaitResult(t, results)
	require.Equal(t, update.OutcomeSuccess, r.Outcome, "%v", r.Err)
	g.Wait()

	assert.Equal(t, update.StateUp, g.State(name))
	cfg, ok := g.Config(name)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"level": "DEBUG"}, cfg)
}

func TestModelSubsystemReplace_FailsWithoutServer(t *testing.T) {
	g := runtime.NewGraph(nil, nil)
	ctx := &update.RuntimeContext{Server: domaintest.ServerOne, Graph: g, AllowRuntime: true}

	results := make(resultChan, 1)
	u := &update.ModelSubsystemReplace{Subsystem: domaintest.Subsystem(domaintest.LoggingQName, "level", "DEBUG")}
	u.ApplyToRuntime(ctx, results, nil)
	assert.Equal(t, update.OutcomeFailure, awaitResult(t, results).Outcome)
}
