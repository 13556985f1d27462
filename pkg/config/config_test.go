package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLayout(t *testing.T) {
	c := Default("/srv/cloud")

	assert.Equal(t, "/srv/cloud/etc/configuration.json", c.ConfigurationFile())
	assert.Equal(t, "/srv/cloud/etc/users.json", c.UsersFile())
	assert.Equal(t, "/srv/cloud/etc/actions.json", c.ActionsFile())
	assert.Equal(t, "/srv/cloud/etc/processes.json", c.ProcessesFile())
	assert.Equal(t, "/srv/cloud/cert/server", c.ServerCertificateDirectory())
	assert.Equal(t, "/srv/cloud/cert/ca", c.CaCertificateDirectory())
	assert.Equal(t, "/srv/cloud/store", c.FileStore)
	assert.Equal(t, "/srv/cloud/log/range-cloud.log", c.LogFile())
	assert.Equal(t, DefaultPublicPort, c.PublicPort)
	assert.Equal(t, DefaultPrivatePort, c.PrivatePort)
}

func TestStoreLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	c := Default(dir)
	c.PublicPort = 9080
	c.PrivatePort = 9443
	c.FileStoreMaxSize = 12345
	c.SenderEmailAddress = "cloud@example.com"

	require.NoError(t, os.MkdirAll(c.ConfigurationDirectory(), 0o755))
	require.NoError(t, c.Store())

	loaded, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9080, loaded.PublicPort)
	assert.Equal(t, 9443, loaded.PrivatePort)
	assert.Equal(t, int64(12345), loaded.FileStoreMaxSize)
	assert.Equal(t, "cloud@example.com", loaded.SenderEmailAddress)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()

	c, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultPublicPort, c.PublicPort)
	assert.Equal(t, DefaultMaxStoreSize, c.FileStoreMaxSize)
}

func TestNumericFieldsStoredAsStrings(t *testing.T) {
	dir := t.TempDir()

	c := Default(dir)
	require.NoError(t, os.MkdirAll(c.ConfigurationDirectory(), 0o755))
	require.NoError(t, c.Store())

	data, err := os.ReadFile(filepath.Join(dir, "etc", "configuration.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"publicHttpPort": "8080"`)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	c := Default(dir)
	require.NoError(t, c.EnsureDirectories())

	for _, sub := range []string{"etc", "log", "var", "processes", "reports", "store", "cert/server", "cert/ca"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err, sub)
		assert.True(t, info.IsDir())
	}
}
