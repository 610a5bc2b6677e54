package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/karidc/api/internal/core/domain"
	"github.com/irgordon/karidc/api/internal/core/domain/domaintest"
)

func TestFingerprint_StableWithoutMutation(t *testing.T) {
	d := domaintest.Domain()
	assert.Equal(t, d.Fingerprint(), d.Fingerprint())

	h := domaintest.Host()
	assert.Equal(t, h.Fingerprint(), h.Fingerprint())
}

func TestFingerprint_InsertionOrderInsensitive(t *testing.T) {
	build := func(order []string) *domain.Profile {
		p := domain.NewProfile("p")
		for _, ns := range order {
			require.NoError(t, p.AddSubsystem(domaintest.Subsystem(domain.QName{Namespace: ns, Local: "s"}, "k", ns)))
		}
		return p
	}

	a := build([]string{"urn:a", "urn:b", "urn:c"})
	b := build([]string{"urn:c", "urn:a", "urn:b"})
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	pa := domain.NewProperties(false)
	pb := domain.NewProperties(false)
	require.NoError(t, pa.Set("x", domain.Ptr("1")))
	require.NoError(t, pa.Set("y", domain.Ptr("2")))
	require.NoError(t, pb.Set("y", domain.Ptr("2")))
	require.NoError(t, pb.Set("x", domain.Ptr("1")))
	assert.Equal(t, pa.Fingerprint(), pb.Fingerprint())
}

func TestFingerprint_DetectsChanges(t *testing.T) {
	d := domaintest.Domain()
	before := d.Fingerprint()

	p, ok := d.Profile("base")
	require.True(t, ok)
	s, ok := p.Subsystem(domaintest.LoggingQName)
	require.True(t, ok)
	s.SetAttribute("level", "DEBUG")

	assert.NotEqual(t, before, d.Fingerprint())
}

func TestFingerprint_NullDiffersFromEmpty(t *testing.T) {
	a := domain.NewProperties(true)
	b := domain.NewProperties(true)
	require.NoError(t, a.Set("x", nil))
	require.NoError(t, b.Set("x", domain.Ptr("")))
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprint_JVMOptionsAreOrdered(t *testing.T) {
	a := domain.NewJVM("j")
	a.Options = []string{"-a", "-b"}
	b := domain.NewJVM("j")
	b.Options = []string{"-b", "-a"}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestDomain_DuplicateRejection(t *testing.T) {
	d := domaintest.Domain()

	cases := []struct {
		name string
		add  func() error
	}{
		{"profile", func() error { return d.AddProfile(domain.NewProfile("base")) }},
		{"interface", func() error { return d.AddInterface(&domain.Interface{Name: "public"}) }},
		{"socket binding group", func() error { return d.AddSocketBindingGroup(domain.NewSocketBindingGroup("standard", "")) }},
		{"server group", func() error { return d.AddServerGroup(domain.NewServerGroup(domaintest.MainGroup, "base")) }},
		{"deployment", func() error {
			return d.AddDeployment(&domain.Deployment{Key: domain.DeploymentKey{Name: "app.war", Hash: domaintest.AppHash}})
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := d.Fingerprint()
			err := tc.add()
			require.ErrorIs(t, err, domain.ErrUpdateFailed)
			assert.Equal(t, before, d.Fingerprint(), "a rejected add must leave the domain untouched")
		})
	}
}

func TestDomain_IncludeValidation(t *testing.T) {
	d := domaintest.Domain()

	t.Run("unknown include", func(t *testing.T) {
		p := domain.NewProfile("broken")
		require.NoError(t, p.AddInclude("missing"))
		require.ErrorIs(t, d.AddProfile(p), domain.ErrUpdateFailed)
		_, ok := d.Profile("broken")
		assert.False(t, ok)
	})

	t.Run("cycle", func(t *testing.T) {
		err := d.CheckProfileInclude("base", "web")
		require.ErrorIs(t, err, domain.ErrUpdateFailed)
	})

	t.Run("self include", func(t *testing.T) {
		p, _ := d.Profile("base")
		require.ErrorIs(t, p.AddInclude("base"), domain.ErrUpdateFailed)
	})

	t.Run("still included", func(t *testing.T) {
		_, err := d.RemoveProfile("base")
		require.ErrorIs(t, err, domain.ErrUpdateFailed)
		_, ok := d.Profile("base")
		assert.True(t, ok)
	})

	t.Run("group references unknown profile", func(t *testing.T) {
		err := d.AddServerGroup(domain.NewServerGroup("ghost", "nope"))
		require.ErrorIs(t, err, domain.ErrUpdateFailed)
	})
}

func TestDomain_RemovalRejectedWhileGroupUsesElement(t *testing.T) {
	appKey := domain.DeploymentKey{Name: "app.war", Hash: domaintest.AppHash}

	t.Run("profile", func(t *testing.T) {
		d := domaintest.Domain()
		_, err := d.RemoveProfile("web")
		require.ErrorIs(t, err, domain.ErrUpdateFailed)
		assert.Contains(t, err.Error(), domaintest.MainGroup)
		_, ok := d.Profile("web")
		assert.True(t, ok)

		_, err = d.RemoveServerGroup(domaintest.MainGroup)
		require.NoError(t, err)
		_, err = d.RemoveProfile("web")
		assert.NoError(t, err)
	})

	t.Run("socket binding group", func(t *testing.T) {
		d := domaintest.Domain()
		_, err := d.RemoveSocketBindingGroup("standard")
		require.ErrorIs(t, err, domain.ErrUpdateFailed)
		_, ok := d.SocketBindingGroup("standard")
		assert.True(t, ok)

		main, _ := d.ServerGroup(domaintest.MainGroup)
		main.SetSocketBinding("", 0)
		_, err = d.RemoveSocketBindingGroup("standard")
		assert.NoError(t, err)
	})

	t.Run("deployment", func(t *testing.T) {
		d := domaintest.Domain()
		assert.Equal(t, []string{domaintest.MainGroup}, d.ServerGroupsMapping(appKey))

		_, err := d.RemoveDeployment(appKey)
		require.ErrorIs(t, err, domain.ErrUpdateFailed)
		_, ok := d.Deployment(appKey)
		assert.True(t, ok)

		main, _ := d.ServerGroup(domaintest.MainGroup)
		_, err = main.RemoveDeployment("app.war")
		require.NoError(t, err)
		_, err = d.RemoveDeployment(appKey)
		assert.NoError(t, err)
	})
}

func TestDomain_ReplaceDeploymentKeepsMappings(t *testing.T) {
	d := domaintest.Domain()
	key := domain.DeploymentKey{Name: "app.war", Hash: domaintest.AppHash}

	old, err := d.ReplaceDeployment(&domain.Deployment{Key: key, RuntimeName: "app-v1.war"})
	require.NoError(t, err)
	assert.Equal(t, "app.war", old.RuntimeName)
	assert.Equal(t, []string{domaintest.MainGroup}, d.ServerGroupsMapping(key))

	_, err = d.ReplaceDeployment(&domain.Deployment{Key: domain.DeploymentKey{Name: "ghost.war"}})
	assert.ErrorIs(t, err, domain.ErrUpdateFailed)
}

func TestDomain_ServerGroupsUsingProfile(t *testing.T) {
	d := domaintest.Domain()
	assert.Equal(t, []string{domaintest.MainGroup, domaintest.OtherGroup}, d.ServerGroupsUsingProfile("base"))
	assert.Equal(t, []string{domaintest.MainGroup}, d.ServerGroupsUsingProfile("web"))
}

func TestDomain_DeepCopyIsIndependent(t *testing.T) {
	d := domaintest.Domain()
	c := d.DeepCopy()
	require.Equal(t, d.Fingerprint(), c.Fingerprint())

	require.NoError(t, c.Properties().Set("new", domain.Ptr("v")))
	p, _ := c.Profile("web")
	s, _ := p.Subsystem(domaintest.WebQName)
	s.SetAttribute("port", "9090")

	assert.NotEqual(t, d.Fingerprint(), c.Fingerprint())
	orig, _ := d.Profile("web")
	os, _ := orig.Subsystem(domaintest.WebQName)
	port, _ := os.Attribute("port")
	assert.Equal(t, "8080", port)
}

func TestProperties_NullPolicy(t *testing.T) {
	sys := domain.NewProperties(false)
	require.ErrorIs(t, sys.Set("x", nil), domain.ErrUpdateFailed)
	assert.False(t, sys.Has("x"))

	env := domain.NewProperties(true)
	require.NoError(t, env.Set("x", nil))
	v, ok := env.Get("x")
	assert.True(t, ok)
	assert.Nil(t, v)

	require.ErrorIs(t, env.Remove("missing"), domain.ErrUpdateFailed)
}

func TestDomainControllerRef_Validate(t *testing.T) {
	assert.NoError(t, domain.LocalController().Validate())
	assert.NoError(t, domain.RemoteController("dc.example", 9999).Validate())
	assert.Error(t, domain.DomainControllerRef{Local: true, Host: "x", Port: 1}.Validate())
	assert.Error(t, domain.DomainControllerRef{}.Validate())
	assert.Error(t, domain.RemoteController("dc.example", 0).Validate())
}

func TestQName_RoundTrip(t *testing.T) {
	q, err := domain.ParseQName(domaintest.LoggingQName.String())
	require.NoError(t, err)
	assert.Equal(t, domaintest.LoggingQName, q)

	_, err = domain.ParseQName("logging")
	assert.Error(t, err)
}

func TestContentHash_RoundTrip(t *testing.T) {
	h, err := domain.ParseContentHash(domaintest.AppHash.String())
	require.NoError(t, err)
	assert.Equal(t, domaintest.AppHash, h)

	_, err = domain.ParseContentHash("abcd")
	assert.Error(t, err)
}

func TestExtensionRegistry_LoadsOnce(t *testing.T) {
	loader := &countingLoader{caps: domain.StaticLoader{
		"org.karidc.web": {domain.NamespaceCapability{domaintest.WebNS}},
	}}
	reg := domain.NewExtensionRegistry(loader)

	require.NoError(t, reg.Resolve("org.karidc.web"))
	require.NoError(t, reg.Resolve("org.karidc.web"))
	assert.Equal(t, 1, loader.calls)
	assert.True(t, reg.KnownNamespace(domaintest.WebNS))
	assert.False(t, reg.KnownNamespace("urn:unknown"))

	err := reg.Resolve("org.karidc.missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	s := reg.NewSubsystem(domaintest.WebQName)
	assert.True(t, s.Empty())
	assert.Equal(t, domaintest.WebQName, s.QName())
}

type countingLoader struct {
	caps  domain.StaticLoader
	calls int
}

func (l *countingLoader) Load(module string) ([]domain.Capability, error) {
	l.calls++
	return l.caps.Load(module)
}
