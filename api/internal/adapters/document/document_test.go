package document_test

import (
	"encoding/json"
	"io"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/karidc/api/internal/adapters/document"
	"github.com/irgordon/karidc/api/internal/core/domain"
	"github.com/irgordon/karidc/api/internal/core/domain/domaintest"
)

var _ domain.ModelCodec = document.Codec{}

func TestRoundTrip_PreservesFingerprints(t *testing.T) {
	d := domaintest.Domain()
	h := domaintest.Host()
	require.NoError(t, h.Properties().Set("empty", domain.Ptr("")))
	jvm, _ := h.JVM("default")
	require.NoError(t, jvm.Environment.Set("PLACEHOLDER", nil))

	for _, format := range []document.Format{document.YAML, document.JSON, document.JSONC} {
		t.Run(string(format), func(t *testing.T) {
			var b document.Builder

			data, err := document.MarshalDomain(d, format)
			require.NoError(t, err)
			back, err := b.ParseDomain(data, format)
			require.NoError(t, err)
			assert.Equal(t, d.Fingerprint(), back.Fingerprint())

			data, err = document.MarshalHost(h, format)
			require.NoError(t, err)
			hostBack, err := b.ParseHost(data, format)
			require.NoError(t, err)
			assert.Equal(t, h.Fingerprint(), hostBack.Fingerprint())
		})
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	c := document.Codec{}
	d := domaintest.Domain()

	data, err := c.EncodeDomain(d)
	require.NoError(t, err)
	back, err := c.DecodeDomain(data)
	require.NoError(t, err)
	assert.Equal(t, d.Fingerprint(), back.Fingerprint())
}

const forwardIncludes = `
profiles:
  - name: web
    includes: [base]
    subsystems:
      - namespace: urn:karidc:web:1.0
        name: web
        attributes: {port: "8080"}
  - name: base
interfaces:
  - name: public
    criteria: {kind: loopback}
socket-binding-groups:
  - name: full
    default-interface: public
    includes: [standard]
  - name: standard
    default-interface: public
    bindings:
      - {name: http, port: 8080}
server-groups:
  - name: main
    profile: web
    socket-binding-group: full
`

func TestParseDomain_ResolvesForwardIncludes(t *testing.T) {
	d, err := document.Builder{}.ParseDomain([]byte(forwardIncludes), document.YAML)
	require.NoError(t, err)

	web, ok := d.Profile("web")
	require.True(t, ok)
	assert.Equal(t, []string{"base"}, web.Includes())
	full, ok := d.SocketBindingGroup("full")
	require.True(t, ok)
	assert.True(t, full.IncludesGroup("standard"))
}

func TestParseDomain_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		format document.Format
		doc    string
		target error
	}{
		{
			name:   "include cycle",
			format: document.YAML,
			doc: `
profiles:
  - {name: a, includes: [b]}
  - {name: b, includes: [a]}
`,
			target: domain.ErrUpdateFailed,
		},
		{
			name:   "group without profile",
			format: document.YAML,
			doc: `
server-groups:
  - name: main
`,
			target: domain.ErrUpdateFailed,
		},
		{
			name:   "unknown profile",
			format: document.JSON,
			doc:    `{"serverGroups": [{"name": "main", "profile": "nope"}]}`,
			target: domain.ErrUpdateFailed,
		},
		{
			name:   "bad hash",
			format: document.JSON,
			doc:    `{"deployments": [{"name": "a.war", "hash": "abc", "runtimeName": "a.war"}]}`,
			target: domain.ErrUpdateFailed,
		},
		{
			name:   "bad interface criteria",
			format: document.YAML,
			doc: `
interfaces:
  - name: public
    criteria: {kind: carrier-pigeon}
`,
			target: domain.ErrUpdateFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := document.Builder{}.ParseDomain([]byte(tt.doc), tt.format)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestParseDomain_UnknownFieldsFail(t *testing.T) {
	_, err := document.Builder{}.ParseDomain([]byte("profile:\n  - name: a\n"), document.YAML)
	assert.ErrorIs(t, err, domain.ErrUpdateFailed)

	_, err = document.Builder{}.ParseDomain([]byte(`{"profile": []}`), document.JSON)
	assert.ErrorIs(t, err, domain.ErrUpdateFailed)
}

// Syntax errors are client errors and keep the decoder's cause.
func TestParseDomain_MalformedDocumentIsUpdateFailure(t *testing.T) {
	_, err := document.Builder{}.ParseDomain([]byte("{"), document.JSON)
	require.ErrorIs(t, err, domain.ErrUpdateFailed)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = document.Builder{}.ParseDomain([]byte(`{"profiles": [}`), document.JSON)
	var syntax *json.SyntaxError
	require.ErrorAs(t, err, &syntax)
	assert.ErrorIs(t, err, domain.ErrUpdateFailed)

	_, err = document.Builder{}.ParseDomain([]byte("profiles: [\n"), document.YAML)
	assert.ErrorIs(t, err, domain.ErrUpdateFailed)

	_, err = document.Builder{}.ParseHost([]byte("name: [oops"), document.YAML)
	assert.ErrorIs(t, err, domain.ErrUpdateFailed)

	_, err = document.Builder{}.ParseDomain([]byte("{}"), document.Format("toml"))
	assert.ErrorIs(t, err, domain.ErrUpdateFailed)
}

func TestParseDomain_AcceptsJSONC(t *testing.T) {
	doc := `{
	// the only profile
	"profiles": [
		{"name": "base", /* no includes */},
	],
}`
	d, err := document.Builder{}.ParseDomain([]byte(doc), document.JSONC)
	require.NoError(t, err)
	_, ok := d.Profile("base")
	assert.True(t, ok)
}

func TestBuilder_RegistryGatesNamespaces(t *testing.T) {
	reg := domain.NewExtensionRegistry(domain.StaticLoader{
		"org.karidc.web": {domain.NamespaceCapability{domaintest.WebNS}},
	})
	b := document.Builder{Registry: reg}

	_, err := b.ParseDomain([]byte(forwardIncludes), document.YAML)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	withExt := "extensions: [org.karidc.web]\n" + forwardIncludes
	d, err := b.ParseDomain([]byte(withExt), document.YAML)
	require.NoError(t, err)
	assert.True(t, reg.Loaded("org.karidc.web"))
	_, ok := d.Extension("org.karidc.web")
	assert.True(t, ok)

	_, err = b.ParseDomain([]byte("extensions: [org.karidc.missing]\n"), document.YAML)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestParseHost_RemoteController(t *testing.T) {
	doc := `
name: node-2
domain-controller: {host: dc.example, port: 9999}
servers:
  - name: s1
    group: main
    auto-start: false
    port-offset: 0
`
	h, err := document.Builder{}.ParseHost([]byte(doc), document.YAML)
	require.NoError(t, err)
	assert.Equal(t, domain.RemoteController("dc.example", 9999), h.DomainController())
	s, ok := h.Server("s1")
	require.True(t, ok)
	assert.False(t, s.AutoStart())
	_, offset := s.SocketBinding()
	require.NotNil(t, offset)
	assert.Equal(t, 0, *offset)

	_, err = document.Builder{}.ParseHost([]byte("name: x\ndomain-controller: {local: true, host: dc}\n"), document.YAML)
	assert.ErrorIs(t, err, domain.ErrUpdateFailed)
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, document.JSON, document.FormatOf("domain.JSON"))
	assert.Equal(t, document.JSONC, document.FormatOf("/etc/karidc/domain.jsonc"))
	assert.Equal(t, document.YAML, document.FormatOf("domain.yml"))
}

func TestFromServerModel(t *testing.T) {
	m := domaintest.ServerModel()

	doc := document.FromServerModel(m)

	assert.Equal(t, domaintest.HostName, doc.Host)
	assert.Equal(t, domaintest.ServerOne, doc.Server)
	assert.Equal(t, domaintest.MainGroup, doc.Group)
	assert.Equal(t, strconv.FormatUint(m.Fingerprint(), 16), doc.Fingerprint)
	assert.Equal(t, m.Profile().Name(), doc.Profile.Name)
	require.NotNil(t, doc.SocketBindingGroup)
	require.Len(t, doc.Deployments, 1)
	assert.Equal(t, "app.war", doc.Deployments[0].Name)
	assert.Equal(t, domaintest.AppHash.String(), doc.Deployments[0].Hash)
}
