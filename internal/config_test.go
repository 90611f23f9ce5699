package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "novagather.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "novagather", cfg.AppName)
	require.Equal(t, 2*time.Second, cfg.Broker.NodeTimeout)
	require.Equal(t, int32(2), cfg.Node.WireVersion)
	require.Equal(t, 8<<20, cfg.Node.MaxFrameSize)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_File(t *testing.T) {
	p := writeConfig(t, `
app_name: demo
log:
  level: debug
  format: json
node:
  id: n1
  addr: 127.0.0.1:9001
  compress: true
  wire_version: 3
broker:
  node_timeout: 750ms
  metrics_addr: 127.0.0.1:9100
  nodes:
    - id: n1
      addr: 127.0.0.1:9001
    - id: n2
      addr: 127.0.0.1:9002
`)
	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "demo", cfg.AppName)
	require.Equal(t, "json", cfg.Log.Format)
	require.True(t, cfg.Node.Compress)
	require.Equal(t, int32(3), cfg.Node.WireVersion)
	require.Equal(t, 750*time.Millisecond, cfg.Broker.NodeTimeout)
	require.Equal(t, []NodeAddr{{ID: "n1", Addr: "127.0.0.1:9001"}, {ID: "n2", Addr: "127.0.0.1:9002"}}, cfg.Broker.Nodes)
	require.Equal(t, 8, cfg.Node.Rows)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "broker:\n  node_timeout: 0s\n"))
	require.ErrorContains(t, err, "node_timeout")

	_, err = LoadConfig(writeConfig(t, "broker:\n  nodes:\n    - id: n1\n"))
	require.ErrorContains(t, err, "nodes[0]")
}
