package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chtemp(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	return dir
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pagegraph", config.Server.Name)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "info", config.Log.Level)
	assert.Equal(t, "name", config.Auth.LoginKey)
	assert.Equal(t, 7*24*time.Hour, config.Auth.SessionTTL)
	assert.Equal(t, "sqlite", config.Store.Driver)
}

func TestLoadFromFile(t *testing.T) {
	dir := chtemp(t)

	yml := []byte(`
server:
  port: 9999
  debug: true
store:
  driver: memory
auth:
  jwt_secret: file-secret
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pagegraph.yaml"), yml, 0o600))

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, config.Server.Port)
	assert.True(t, config.Server.Debug)
	assert.Equal(t, "memory", config.Store.Driver)
	assert.Equal(t, "file-secret", config.Auth.JWTSecret)
	// Untouched keys keep their defaults.
	assert.Equal(t, "pagegraph", config.Server.Name)
}

func TestLoadFromEnv(t *testing.T) {
	chtemp(t)
	t.Setenv("PAGEGRAPH_SERVER_PORT", "7070")
	t.Setenv("PAGEGRAPH_AUTH_JWT_SECRET", "env-secret")

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, "env-secret", config.Auth.JWTSecret)
}

func TestUnpack(t *testing.T) {
	config, err := Load()
	require.NoError(t, err)

	serverCfg, logCfg, authCfg, storeCfg := Unpack(config)
	assert.Equal(t, config.Server, serverCfg)
	assert.Equal(t, config.Log, logCfg)
	assert.Equal(t, config.Auth, authCfg)
	assert.Equal(t, config.Store, storeCfg)
}
