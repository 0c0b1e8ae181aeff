package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapdial/home"
)

const file = `
mqtt:
  host: broker.local
  username: dial
zigbee:
  prefix: z2m
hass:
  url: http://homeassistant.local:8123
log_level: debug
discovery:
  auto_add: true
  timeout: 3s
devices:
  - device_id: living_room/tap_dial
    name: Couch dial
  - device_id: hallway_tap_dial
    skip_validation: true
`

func write(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestGet(t *testing.T) {
	t.Setenv("MQTT_PASSWORD", "secret")
	t.Setenv("HASS_TOKEN", "token")
	t.Setenv("MQTT_HOST", "mosquitto")

	cfg, err := Get(write(t, file))
	require.NoError(t, err)

	assert.Equal(t, "mosquitto", cfg.MQTT.Host)
	assert.Equal(t, "dial", cfg.MQTT.Username)
	assert.Equal(t, "secret", cfg.MQTT.Password)
	assert.Equal(t, "1883", cfg.MQTT.Port)
	assert.Equal(t, "z2m", cfg.Zigbee.Prefix)
	assert.True(t, cfg.Hass.BusEnabled())
	assert.Equal(t, "homeassistant", cfg.Hass.DiscoveryPrefix)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.True(t, cfg.Discovery.AutoAdd)
	assert.Equal(t, 3*time.Second, cfg.Discovery.Timeout)
	assert.Equal(t, "tap_dial", cfg.Discovery.Match)
	assert.Equal(t, ":8090", cfg.HTTP.Addr)

	assert.Equal(t, []home.Entry{
		{ID: "living_room/tap_dial", Name: "Couch dial"},
		{ID: "hallway_tap_dial", SkipValidation: true},
	}, cfg.Devices)
}

func TestGetMissingFile(t *testing.T) {
	t.Setenv("ZIGBEE2MQTT_PREFIX", "zigbee")

	cfg, err := Get(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, "zigbee", cfg.Zigbee.Prefix)
	assert.Equal(t, "localhost", cfg.MQTT.Host)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
	assert.Empty(t, cfg.Devices)
}

func TestGetInvalid(t *testing.T) {
	_, err := Get(write(t, "mqtt: ["))
	assert.Error(t, err)

	t.Setenv("DISCOVERY_TIMEOUT", "soon")
	_, err = Get(write(t, ""))
	assert.Error(t, err)
}
