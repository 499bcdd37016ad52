package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
stream:
  addr: "localhost:15991"
nats:
  url: "nats://localhost:4222"
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:15991", config.Stream.Addr)
	assert.Equal(t, 30*time.Second, config.Stream.Timeout)
	assert.Equal(t, "updatestream.events", config.NATS.Subject)
	assert.Equal(t, 2*time.Second, config.NATS.ReconnectWait)
	assert.Equal(t, "position.checkpoint", config.Checkpoint.PositionFile)
	assert.Nil(t, config.Source)
}

func TestLoadConfigFull(t *testing.T) {
	path := writeConfig(t, `
stream:
  addr: "stream.internal:15991"
  timeout: 5s
  user: "vt_app"
  password: "secret"
  encrypted: true
  key_file: "/etc/certs/client.key"
  cert_file: "/etc/certs/client.crt"
checkpoint:
  position_file: "/var/lib/cdc/position"
  start_group_id: "g-1000"
nats:
  url: "nats://nats.internal:4222"
  subject: "cdc.events"
  max_reconnect: 5
  reconnect_wait: 500ms
processor:
  enabled: true
  rules:
    - table: "audit_log"
      drop: true
    - table: "users"
      categories: ["DML"]
source:
  host: "db.internal"
  port: 3306
  user: "cdc"
  password: "pw"
logging:
  level: "debug"
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, config.Stream.Timeout)
	assert.True(t, config.Stream.Encrypted)
	assert.Equal(t, "g-1000", config.Checkpoint.StartGroupId)
	assert.Equal(t, "cdc.events", config.NATS.Subject)
	require.Len(t, config.Processor.Rules, 2)
	assert.True(t, config.Processor.Rules[0].Drop)
	assert.Equal(t, []string{"DML"}, config.Processor.Rules[1].Categories)
	require.NotNil(t, config.Source)
	assert.Equal(t, "db.internal", config.Source.Host)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := writeConfig(t, "stream: [not a mapping")
	_, err := LoadConfig(path)
	require.Error(t, err)
}
