package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/karidc/api/internal/adapters/document"
	"github.com/irgordon/karidc/api/internal/core/domain/domaintest"
)

const goodKey = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

func TestCheckKeys(t *testing.T) {
	tests := []struct {
		name    string
		primary string
		retired string
		pass    bool
	}{
		{"strong", goodKey, "", true},
		{"short", "abcd", "", false},
		{"not hex", strings.Repeat("zz", 32), "", false},
		{"repeated", strings.Repeat("ab", 32), "", false},
		{"retired malformed", goodKey, "1234", false},
		{"retired equals primary", goodKey, " " + strings.ToUpper(goodKey), false},
		{"retired ok", goodKey, "ffeeddccbbaa99887766554433221100ffeeddccbbaa99887766554433221100", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.pass, checkKeys(tt.primary, tt.retired).pass)
		})
	}
}

func TestCheckDatabase(t *testing.T) {
	assert.False(t, checkDatabase("").pass)
	assert.False(t, checkDatabase("postgres://kari:dev_password@db/karidc").pass)

	f := checkDatabase("postgres://kari:s3cret@db/karidc?sslmode=disable")
	assert.True(t, f.pass)
	assert.True(t, f.warning)

	assert.False(t, checkDatabase("postgres://kari:s3cret@db/karidc").warning)
}

func TestCheckCORS(t *testing.T) {
	assert.False(t, checkCORS("").pass)
	assert.False(t, checkCORS("https://a.example, *").pass)
	assert.True(t, checkCORS("https://a.example").pass)
}

func TestCheckDomainFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "domain.yaml")
	data, err := document.MarshalDomain(domaintest.Domain(), document.YAML)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(good, data, 0o600))
	assert.True(t, checkDomainFile(good).pass)

	bad := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("profiles: [oops"), 0o600))
	assert.False(t, checkDomainFile(bad).pass)

	assert.False(t, checkDomainFile(filepath.Join(dir, "missing.yaml")).pass)
	assert.True(t, checkDomainFile("").warning)
}

func TestCheckContentRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o700))
	assert.True(t, checkContentRoot(dir).pass)

	assert.True(t, checkContentRoot(filepath.Join(dir, "later")).warning)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	assert.False(t, checkContentRoot(file).pass)

	open := filepath.Join(dir, "open")
	require.NoError(t, os.Mkdir(open, 0o700))
	require.NoError(t, os.Chmod(open, 0o777))
	assert.False(t, checkContentRoot(open).pass)
}

func TestAudit_Verdict(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Chmod(root, 0o700))
	env := map[string]string{
		"ENCRYPTION_KEY":       goodKey,
		"DATABASE_URL":         "postgres://kari:s3cret@db/karidc",
		"CORS_ALLOWED_ORIGINS": "https://panel.example",
		"KARIDC_HOST_NAME":     "node-1",
		"KARIDC_CONTENT_ROOT":  root,
	}

	var out bytes.Buffer
	assert.True(t, audit(func(k string) string { return env[k] }, &out))
	assert.Contains(t, out.String(), "VALIDATED")

	env["DATABASE_URL"] = "postgres://kari:dev_password@db/karidc"
	out.Reset()
	assert.False(t, audit(func(k string) string { return env[k] }, &out))
	assert.Contains(t, out.String(), "❌ FAIL")
	assert.Contains(t, out.String(), "POSTURE FAILED")
}
