package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, ".", cfg.Server.Root)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Address())
	assert.Equal(t, 10*time.Second, cfg.Server.GetShutdownTimeout())
	assert.Empty(t, cfg.Metrics.Listen)
	assert.False(t, cfg.Metrics.Runtime)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "isoserve.json", `{
		"server": {"host": "127.0.0.1", "port": 9000, "root": "/srv", "shutdown_timeout": "3s"},
		"log": {"level": "debug", "format": "json"},
		"metrics": {"listen": "127.0.0.1:9100", "runtime": true}
	}`)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address())
	assert.Equal(t, "/srv", cfg.Server.Root)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Listen)
	assert.True(t, cfg.Metrics.Runtime)
	assert.Equal(t, 3*time.Second, cfg.Server.GetShutdownTimeout())
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"), "")
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := writeFile(t, dir, "bad.json", `{"server": `)
	_, err = Load(bad, "")
	assert.Error(t, err)

	badDuration := writeFile(t, dir, "dur.json", `{"server": {"shutdown_timeout": "soon"}}`)
	_, err = Load(badDuration, "")
	assert.Error(t, err)
}

func TestEnvOverridesFileAndDotenv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "isoserve.json", `{"server": {"port": 9000, "host": "127.0.0.1"}}`)
	env := writeFile(t, dir, ".env", "ISOSERVE_PORT=9001\nISOSERVE_ROOT=/from/dotenv\n")

	cfg, err := Load(path, env)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "/from/dotenv", cfg.Server.Root)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)

	t.Setenv(EnvPort, "9002")
	t.Setenv(EnvMaxConcurrent, "1")
	cfg, err = Load(path, env)
	require.NoError(t, err)
	assert.Equal(t, 9002, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Server.MaxConcurrent)
}

func TestMissingDotenvIgnored(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestInvalidEnvPort(t *testing.T) {
	t.Setenv(EnvPort, "eighty")
	_, err := Load("", "")
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func TestMetricsRuntimeFromEnv(t *testing.T) {
	t.Setenv(EnvMetricsRuntime, "true")
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.True(t, cfg.Metrics.Runtime)

	t.Setenv(EnvMetricsRuntime, "sometimes")
	_, err = Load("", "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	cfg.Server.Root = dir
	require.NoError(t, cfg.Validate())
	assert.True(t, filepath.IsAbs(cfg.Server.Root))

	cfg = Default()
	cfg.Server.Root = dir
	cfg.Server.Port = 70000
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidPort)

	cfg = Default()
	cfg.Server.Root = dir
	cfg.Server.MaxConcurrent = -1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConcurrency)

	cfg = Default()
	cfg.Server.Root = writeFile(t, dir, "file.txt", "x")
	assert.ErrorIs(t, cfg.Validate(), ErrRootNotDir)

	cfg = Default()
	cfg.Server.Root = filepath.Join(dir, "nope")
	assert.ErrorIs(t, cfg.Validate(), os.ErrNotExist)

	cfg = Default()
	cfg.Server.Root = dir
	cfg.Log.Level = "chatty"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.Root = dir
	cfg.Log.Format = "xml"
	assert.Error(t, cfg.Validate())
}
