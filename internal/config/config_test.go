package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Device.Bus)
	assert.Equal(t, 8, cfg.Device.CSPin)
	assert.Equal(t, 10*time.Second, cfg.Sample.Interval)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Metrics.Enable)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.MQTT.Enable)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opcr2.yaml")
	err := os.WriteFile(path, []byte(`
device:
  bus: SPI0.1
  csPin: 7
sample:
  interval: 1s
  count: 3
mqtt:
  enable: true
  topic: lab/opc
  qos: 0
`), 0o644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "SPI0.1", cfg.Device.Bus)
	assert.Equal(t, 7, cfg.Device.CSPin)
	assert.Equal(t, time.Second, cfg.Sample.Interval)
	assert.Equal(t, 3, cfg.Sample.Count)
	assert.True(t, cfg.MQTT.Enable)
	assert.Equal(t, "lab/opc", cfg.MQTT.Topic)
	assert.Equal(t, byte(0), cfg.MQTT.QoS)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker, "unset keys keep defaults")
}

func TestLoadEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("OPCR2_DEVICE_CSPIN", "25")
	t.Setenv("OPCR2_SAMPLE_INTERVAL", "2s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Device.CSPin)
	assert.Equal(t, 2*time.Second, cfg.Sample.Interval)
}

func TestLoadInvalid(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("OPCR2_SAMPLE_INTERVAL", "0s")

	_, err := Load("")
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test
// (equivalent to testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
