package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
domains:
  - name: auth
    task: "Implement session tokens"
  - name: payments
    depends_on: [auth]
    task: "Charge flow against the billing API"
  - name: profile
    depends_on: [auth]
    task: "Profile editing UI"
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, []string{"auth", "payments", "profile"}, m.Names())
	assert.Equal(t, map[string][]string{
		"payments": {"auth"},
		"profile":  {"auth"},
	}, m.DependencyMap())

	descs := m.Descriptors()
	require.Len(t, descs, 3)
	assert.Equal(t, "payments", descs[1].Name)
	assert.Equal(t, "Charge flow against the billing API", descs[1].Task)
	assert.Equal(t, []string{"auth"}, descs[1].DependsOn)
}

func TestParseManifest_UndeclaredDependency(t *testing.T) {
	_, err := ParseManifest([]byte(`
domains:
  - name: payments
    depends_on: [auth]
`))
	assert.ErrorContains(t, err, "undeclared domain")
}

func TestParseManifest_DuplicateDomain(t *testing.T) {
	_, err := ParseManifest([]byte(`
domains:
  - name: auth
  - name: auth
`))
	assert.ErrorContains(t, err, "duplicate domain")
}

func TestParseManifest_Empty(t *testing.T) {
	_, err := ParseManifest([]byte("domains: []"))
	assert.ErrorContains(t, err, "no domains")
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crew.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o600))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Len(t, m.Domains, 3)

	_, err = LoadManifest(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
