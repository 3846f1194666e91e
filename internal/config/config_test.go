package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fawkes74/jcon-cpp/internal/config"
)

func TestDefaultAppliesCallTimeout(t *testing.T) {
	cfg := config.Default()
	require.Equal(t, 5000, cfg.Client.CallTimeoutMS)
	require.Equal(t, config.TransportTCP, cfg.Server.Transport)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := []byte(`
[client]
call_timeout_ms = 750

[server]
listen_port = 9100
bind_host = "0.0.0.0"
transport = "websocket"
`)
	require.NoError(t, os.WriteFile(path, body, 0600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 750, cfg.Client.CallTimeoutMS)
	require.Equal(t, 9100, cfg.Server.ListenPort)
	require.Equal(t, "0.0.0.0", cfg.Server.BindHost)
	require.Equal(t, config.TransportWebSocket, cfg.Server.Transport)
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`[server]
transport = "carrier-pigeon"
`), 0600))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := config.Load("/nonexistent/path/config.toml")
	require.Error(t, err)
}
