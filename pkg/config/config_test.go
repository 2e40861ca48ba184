package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "http://localhost:8080", cfg.Backend.URL)
	assert.Equal(t, 2, cfg.Resolver.MinChars)
	assert.Equal(t, 300*time.Millisecond, cfg.Resolver.Debounce)
	assert.Equal(t, 5*time.Second, cfg.Stream.HandshakeTimeout)
	assert.Equal(t, 30*time.Second, cfg.Stream.HeartbeatInterval)
	assert.Equal(t, 5, cfg.Stream.ReconnectAttempts)
	assert.Equal(t, time.Second, cfg.Stream.ReconnectBackoff)
}

func TestLoadPriority(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relgraph.toml")
	content := `
port = 4000

[backend]
url = "http://file:9000"

[stream]
handshake_timeout = "2s"
reconnect_attempts = 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("RELGRAPH_BACKEND_URL", "http://env:9001")
	t.Setenv("RELGRAPH_STREAM_RECONNECT_ATTEMPTS", "7")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port", "5000"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Port, "flag beats file")
	assert.Equal(t, "http://env:9001", cfg.Backend.URL, "env beats file")
	assert.Equal(t, 2*time.Second, cfg.Stream.HandshakeTimeout, "file beats default")
	assert.Equal(t, 7, cfg.Stream.ReconnectAttempts)
}

func TestLoadUnchangedFlagsKeepLowerLayers(t *testing.T) {
	t.Setenv("RELGRAPH_BACKEND_URL", "http://env:9001")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, "http://env:9001", cfg.Backend.URL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"), nil)
	assert.Error(t, err)
}

func TestValidateRejectsBadBackend(t *testing.T) {
	t.Setenv("RELGRAPH_BACKEND_URL", "not a url")
	_, err := Load("", nil)
	assert.Error(t, err)
}
