package update_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/karidc/api/internal/core/domain"
	"github.com/irgordon/karidc/api/internal/core/domain/domaintest"
	"github.com/irgordon/karidc/api/internal/core/update"
)

func TestReconcile_WalksKeysInOrder(t *testing.T) {
	one, two, three := domain.Ptr("1"), domain.Ptr("2"), domain.Ptr("3")
	from := map[string]*string{"a": one, "b": two, "c": three}
	to := map[string]*string{"b": two, "c": one, "d": three}

	var seen []string
	update.Reconcile(from, to, update.Handlers[*string]{
		OnAdd:    func(*string) { seen = append(seen, "add") },
		OnRemove: func(*string) { seen = append(seen, "remove") },
		OnChange: func(o, n *string) { seen = append(seen, "change:"+*o+">"+*n) },
	})

	// b holds the same instance on both sides
	assert.Equal(t, []string{"remove", "change:3>1", "add"}, seen)
}

func TestDifference_IdenticalTreesAreEmpty(t *testing.T) {
	assert.Empty(t, update.DomainDifference(domaintest.Domain(), domaintest.Domain()))
	assert.Empty(t, update.HostDifference(domaintest.Host(), domaintest.Host()))
	assert.Empty(t, update.ServerModelDifference(domaintest.ServerModel(), domaintest.ServerModel()))
}

// reshapedDomain drops the base profile and other-group, adds a profile, a
// binding group, a deployment and a group that maps it.
func reshapedDomain(t *testing.T) *domain.Domain {
	t.Helper()
	d := domaintest.Domain()

	_, err := d.RemoveServerGroup(domaintest.OtherGroup)
	require.NoError(t, err)
	web, _ := d.Profile("web")
	require.NoError(t, web.RemoveInclude("base"))
	web.PutSubsystem(domaintest.Subsystem(domaintest.LoggingQName, "level", "WARN"))
	_, err = d.RemoveProfile("base")
	require.NoError(t, err)

	extra := domain.NewProfile("extra")
	require.NoError(t, extra.AddInclude("web"))
	require.NoError(t, extra.AddSubsystem(domaintest.Subsystem(domain.QName{Namespace: "urn:karidc:jobs:1.0", Local: "jobs"}, "workers", "4")))
	require.NoError(t, d.AddProfile(extra))

	alt := domain.NewSocketBindingGroup("alt", "public")
	require.NoError(t, alt.AddInclude("standard"))
	require.NoError(t, alt.AddBinding(&domain.SocketBinding{Name: "https", Port: 8443}))
	require.NoError(t, d.AddSocketBindingGroup(alt))

	std, _ := d.SocketBindingGroup("standard")
	_, err = std.ReplaceBinding(&domain.SocketBinding{Name: "http", Port: 8081})
	require.NoError(t, err)

	apiHash := domain.HashContent([]byte("api.war v1"))
	require.NoError(t, d.AddDeployment(&domain.Deployment{Key: domain.DeploymentKey{Name: "api.war", Hash: apiHash}, RuntimeName: "api.war"}))

	api := domain.NewServerGroup("api-group", "extra")
	api.SetSocketBinding("alt", 200)
	require.NoError(t, api.AddDeployment(&domain.ServerGroupDeployment{UniqueName: "api.war", RuntimeName: "api.war", Hash: apiHash, Start: true}))
	require.NoError(t, d.AddServerGroup(api))

	main, _ := d.ServerGroup(domaintest.MainGroup)
	_, err = main.ReplaceDeployment(&domain.ServerGroupDeployment{UniqueName: "app.war", RuntimeName: "app.war", Hash: domaintest.AppHash, Start: false})
	require.NoError(t, err)

	require.NoError(t, d.Properties().Remove("a"))
	require.NoError(t, d.Properties().Set("region", domain.Ptr("eu")))
	return d
}

func TestDomainDifference_ApplyReachesTarget(t *testing.T) {
	from := domaintest.Domain()
	to := reshapedDomain(t)

	ups := update.DomainDifference(from, to)
	require.NotEmpty(t, ups)

	_, err := update.ApplyAll(from, ups)
	require.NoError(t, err)
	assert.Equal(t, to.Fingerprint(), from.Fingerprint())
}

func TestDomainDifference_ReverseApplyReachesOrigin(t *testing.T) {
	from := reshapedDomain(t)
	to := domaintest.Domain()

	_, err := update.ApplyAll(from, update.DomainDifference(from, to))
	require.NoError(t, err)
	assert.Equal(t, to.Fingerprint(), from.Fingerprint())
}

func TestDomainDifference_AddsBeforeEdgesAndRemovesLast(t *testing.T) {
	ups := update.DomainDifference(domaintest.Domain(), reshapedDomain(t))

	index := func(s string) int {
		for i, u := range ups {
			if u.String() == s {
				return i
			}
		}
		t.Fatalf("update %q not emitted", s)
		return -1
	}

	assert.Less(t, index("domain profile-add extra"), index("domain profile extra: include-add web"))
	assert.Less(t, index("domain profile web: include-remove base"), index("domain profile-remove base"))
	assert.Less(t, index("domain server-group-add api-group"), index("domain server-group api-group: deployment-add api.war"))
	assert.Less(t, index("domain deployment-add api.war@"+domain.HashContent([]byte("api.war v1")).String()),
		index("domain server-group api-group: deployment-add api.war"))
}

func TestDomainDifference_RemovesElementsAfterGroupsLetGo(t *testing.T) {
	forward := update.DomainDifference(domaintest.Domain(), reshapedDomain(t))
	reverse := update.DomainDifference(reshapedDomain(t), domaintest.Domain())

	index := func(ups []update.DomainUpdate, s string) int {
		for i, u := range ups {
			if u.String() == s {
				return i
			}
		}
		t.Fatalf("update %q not emitted", s)
		return -1
	}
	apiKey := domain.DeploymentKey{Name: "api.war", Hash: domain.HashContent([]byte("api.war v1"))}

	assert.Less(t, index(forward, "domain server-group-remove "+domaintest.OtherGroup), index(forward, "domain profile-remove base"))
	assert.Less(t, index(reverse, "domain server-group-remove api-group"), index(reverse, "domain profile-remove extra"))
	assert.Less(t, index(reverse, "domain server-group-remove api-group"), index(reverse, "domain socket-binding-group-remove alt"))
	assert.Less(t, index(reverse, "domain server-group-remove api-group"), index(reverse, "domain deployment-remove "+apiKey.String()))
}

func TestDomainDifference_ChangedDeploymentIsReplacedInPlace(t *testing.T) {
	from := domaintest.Domain()
	to := domaintest.Domain()
	key := domain.DeploymentKey{Name: "app.war", Hash: domaintest.AppHash}
	_, err := to.ReplaceDeployment(&domain.Deployment{Key: key, RuntimeName: "app-renamed.war"})
	require.NoError(t, err)

	ups := update.DomainDifference(from, to)
	require.Len(t, ups, 1)
	assert.Equal(t, "domain deployment-replace "+key.String(), ups[0].String())

	undo, err := update.ApplyAll(from, ups)
	require.NoError(t, err)
	assert.Equal(t, to.Fingerprint(), from.Fingerprint())

	assert.Empty(t, update.Revert(from, undo))
	assert.Equal(t, domaintest.Domain().Fingerprint(), from.Fingerprint())
}

func TestHostDifference_ApplyReachesTarget(t *testing.T) {
	from := domaintest.Host()
	to := domaintest.Host()

	_, err := to.RemoveServer(domaintest.ServerTwo)
	require.NoError(t, err)
	three := domain.NewServer("server-three", domaintest.OtherGroup)
	offset := 300
	three.SetSocketBinding("standard", &offset)
	require.NoError(t, to.AddServer(three))

	one, _ := to.Server(domaintest.ServerOne)
	require.NoError(t, one.Properties().Set("c", domain.Ptr("44")))
	one.SetInterface(&domain.Interface{Name: "public", Criteria: domain.Criteria{Kind: domain.CriteriaNIC, Value: "eth1"}})

	_, err = to.ReplaceJVM(&domain.JVM{Name: "default", HeapSize: "1g"})
	require.NoError(t, err)
	require.NoError(t, to.AddJVM(&domain.JVM{Name: "small", MaxHeapSize: "128m"}))
	_, err = to.SetDomainController(domain.RemoteController("dc.example.org", 9999))
	require.NoError(t, err)

	ups := update.HostDifference(from, to)
	_, err = update.ApplyAll(from, ups)
	require.NoError(t, err)
	assert.Equal(t, to.Fingerprint(), from.Fingerprint())
}

func TestServerModelDifference_LiveChangesOnly(t *testing.T) {
	d := domaintest.Domain()
	h := domaintest.Host()
	running, err := domain.NewServerModel(d, h, domaintest.ServerOne)
	require.NoError(t, err)

	base, _ := d.Profile("base")
	require.NoError(t, (&update.ProfileSubsystemAttribute{QName: domaintest.LoggingQName, Name: "level", Value: domain.Ptr("DEBUG")}).Apply(base))
	main, _ := d.ServerGroup(domaintest.MainGroup)
	require.NoError(t, main.Properties().Set("a", domain.Ptr("20")))
	_, err = main.ReplaceDeployment(&domain.ServerGroupDeployment{UniqueName: "app.war", RuntimeName: "app.war", Hash: domaintest.AppHash, Start: false})
	require.NoError(t, err)

	fresh, err := domain.NewServerModel(d, h, domaintest.ServerOne)
	require.NoError(t, err)

	ups := update.ServerModelDifference(running, fresh)
	require.NotEmpty(t, ups)
	for _, u := range ups {
		assert.False(t, u.RequiresRestart(), u.String())
	}

	_, err = update.ApplyAll(running, ups)
	require.NoError(t, err)
	assert.Equal(t, fresh.Fingerprint(), running.Fingerprint())
}

func TestServerModelDifference_GroupMoveAndRestartRequired(t *testing.T) {
	d := domaintest.Domain()
	h := domaintest.Host()
	running, err := domain.NewServerModel(d, h, domaintest.ServerOne)
	require.NoError(t, err)

	one, _ := h.Server(domaintest.ServerOne)
	one.SetGroup(domaintest.OtherGroup)
	one.SetJVM(nil)

	fresh, err := domain.NewServerModel(d, h, domaintest.ServerOne)
	require.NoError(t, err)

	ups := update.ServerModelDifference(running, fresh)
	var restart int
	for _, u := range ups {
		if u.RequiresRestart() {
			restart++
		}
	}
	assert.Positive(t, restart)

	_, err = update.ApplyAll(running, ups)
	require.NoError(t, err)
	assert.Equal(t, domaintest.OtherGroup, running.GroupName())
	assert.Equal(t, fresh.Fingerprint(), running.Fingerprint())
}
