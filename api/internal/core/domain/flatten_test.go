package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/karidc/api/internal/core/domain"
	"github.com/irgordon/karidc/api/internal/core/domain/domaintest"
)

func TestNewServerModel_PropertyPrecedence(t *testing.T) {
	// 1. Setup: domain {a=1}, group {a=2,b=2}, host {b=3,c=3}, server {c=4}
	d := domaintest.Domain()
	h := domaintest.Host()

	// 2. Execution
	m, err := domain.NewServerModel(d, h, domaintest.ServerOne)
	require.NoError(t, err)

	// 3. Verification
	got := map[string]string{}
	for name, v := range m.Properties().Snapshot() {
		got[name] = *v
	}
	assert.Equal(t, map[string]string{"a": "2", "b": "3", "c": "4"}, got)
}

func TestNewServerModel_ResolvesLayers(t *testing.T) {
	m := domaintest.ServerModel()

	assert.Equal(t, domaintest.ServerOne, m.ServerName())
	assert.Equal(t, domaintest.HostName, m.HostName())
	assert.Equal(t, domaintest.MainGroup, m.GroupName())

	// profile includes are merged in
	_, ok := m.Profile().Subsystem(domaintest.LoggingQName)
	assert.True(t, ok)
	_, ok = m.Profile().Subsystem(domaintest.WebQName)
	assert.True(t, ok)
	assert.Empty(t, m.Profile().Includes())

	// host completes the management placeholder
	mgmt, ok := m.Interface("management")
	require.True(t, ok)
	assert.Equal(t, domain.CriteriaLoopback, mgmt.Criteria.Kind)

	sbg, offset := m.SocketBindings()
	require.NotNil(t, sbg)
	assert.Equal(t, "standard", sbg.Name())
	assert.Equal(t, 100, offset)

	jvm := m.JVM()
	require.NotNil(t, jvm)
	assert.Equal(t, "256m", jvm.HeapSize)
	assert.Equal(t, "1g", jvm.MaxHeapSize)
	assert.Equal(t, []string{"-server"}, jvm.Options)

	dep, ok := m.Deployment("app.war")
	require.True(t, ok)
	assert.True(t, dep.Start)
}

func TestNewServerModel_ServerOverridesSocketBinding(t *testing.T) {
	d := domaintest.Domain()
	h := domaintest.Host()

	alt := domain.NewSocketBindingGroup("alt", "public")
	require.NoError(t, alt.AddInclude("standard"))
	require.NoError(t, alt.AddBinding(&domain.SocketBinding{Name: "https", Port: 8443}))
	require.NoError(t, d.AddSocketBindingGroup(alt))

	s, _ := h.Server(domaintest.ServerOne)
	zero := 0
	s.SetSocketBinding("alt", &zero)

	m, err := domain.NewServerModel(d, h, domaintest.ServerOne)
	require.NoError(t, err)

	sbg, offset := m.SocketBindings()
	assert.Equal(t, "alt", sbg.Name())
	assert.Equal(t, 0, offset)
	names := []string{}
	for _, b := range sbg.Bindings() {
		names = append(names, b.Name)
	}
	assert.Equal(t, []string{"admin", "http", "https"}, names)
}

func TestNewServerModel_UnresolvedInterfaceFails(t *testing.T) {
	d := domaintest.Domain()
	h := domaintest.Host()
	_, err := h.RemoveInterface("management")
	require.NoError(t, err)

	m, err := domain.NewServerModel(d, h, domaintest.ServerOne)
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), `"management"`)
	assert.Nil(t, m)
}

func TestNewServerModel_UnresolvedDefaultInterfaceFails(t *testing.T) {
	d := domaintest.Domain()
	h := domaintest.Host()

	sbg := domain.NewSocketBindingGroup("placeholder-default", "management")
	require.NoError(t, d.AddSocketBindingGroup(sbg))
	g, _ := d.ServerGroup(domaintest.OtherGroup)
	g.SetSocketBinding("placeholder-default", 0)
	_, err := h.RemoveInterface("management")
	require.NoError(t, err)

	_, err = domain.NewServerModel(d, h, domaintest.ServerTwo)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNewServerModel_MissingLinks(t *testing.T) {
	t.Run("unknown server", func(t *testing.T) {
		_, err := domain.NewServerModel(domaintest.Domain(), domaintest.Host(), "nope")
		require.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("unknown group", func(t *testing.T) {
		h := domaintest.Host()
		require.NoError(t, h.AddServer(domain.NewServer("orphan", "missing-group")))
		_, err := domain.NewServerModel(domaintest.Domain(), h, "orphan")
		require.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("profile removed after group was added", func(t *testing.T) {
		d := domaintest.Domain()
		g, _ := d.ServerGroup(domaintest.OtherGroup)
		g.SetProfile("gone")
		_, err := domain.NewServerModel(d, domaintest.Host(), domaintest.ServerTwo)
		require.ErrorIs(t, err, domain.ErrConfiguration)
	})
}

func TestNewServerModel_OwnsDeepCopy(t *testing.T) {
	d := domaintest.Domain()
	m, err := domain.NewServerModel(d, domaintest.Host(), domaintest.ServerOne)
	require.NoError(t, err)
	before := m.Fingerprint()

	p, _ := d.Profile("web")
	s, _ := p.Subsystem(domaintest.WebQName)
	s.SetAttribute("port", "1")

	assert.Equal(t, before, m.Fingerprint(), "later domain edits must not leak into a flattened model")
}

func TestServerModel_Skeleton(t *testing.T) {
	m := domaintest.ServerModel()
	sk := m.Skeleton()

	assert.Empty(t, sk.Profile().Subsystems())
	assert.Empty(t, sk.Deployments())
	assert.Equal(t, m.Properties().Fingerprint(), sk.Properties().Fingerprint())
	assert.Equal(t, m.Profile().Name(), sk.Profile().Name())
}

func TestServerModel_IncludingProfileWins(t *testing.T) {
	d := domaintest.Domain()
	web, _ := d.Profile("web")
	web.PutSubsystem(domaintest.Subsystem(domaintest.LoggingQName, "level", "WARN"))

	m, err := domain.NewServerModel(d, domaintest.Host(), domaintest.ServerOne)
	require.NoError(t, err)
	s, _ := m.Profile().Subsystem(domaintest.LoggingQName)
	level, _ := s.Attribute("level")
	assert.Equal(t, "WARN", level)
}
