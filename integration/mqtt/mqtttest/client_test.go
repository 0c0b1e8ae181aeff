package mqtttest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"zigbee2mqtt/+", "zigbee2mqtt/tap_dial", true},
		{"zigbee2mqtt/+", "zigbee2mqtt/living_room/tap_dial", false},
		{"zigbee2mqtt/#", "zigbee2mqtt/living_room/tap_dial", true},
		{"zigbee2mqtt/bridge/devices", "zigbee2mqtt/bridge/devices", true},
		{"zigbee2mqtt/bridge/devices", "zigbee2mqtt/bridge", false},
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b/d", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Match(tt.filter, tt.topic), "%s %s", tt.filter, tt.topic)
	}
}
