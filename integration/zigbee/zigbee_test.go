package zigbee

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTapDial(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want bool
	}{
		{"model id", Info{FriendlyName: "hallway", ModelID: "RDM002"}, true},
		{"product code", Info{FriendlyName: "hallway", Definition: &Definition{Model: "8719514440937/8719514440999"}}, true},
		{"definition", Info{FriendlyName: "hallway", Definition: &Definition{Description: "Hue Tap Dial switch"}}, true},
		{"philips dial", Info{FriendlyName: "hallway", Manufacturer: "Philips", Definition: &Definition{Description: "Hue dial switch"}}, true},
		{"friendly name", Info{FriendlyName: "living_room/tap_dial"}, true},
		{"dimmer", Info{FriendlyName: "hallway", ModelID: "RWL021", Manufacturer: "Philips", Definition: &Definition{Description: "Hue dimmer switch"}}, false},
		{"coordinator", Info{FriendlyName: "Coordinator", Type: "Coordinator"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.IsTapDial("tap_dial"))
		})
	}

	assert.False(t, Info{FriendlyName: "living_room/tap_dial"}.IsTapDial(""))
}

func TestModel(t *testing.T) {
	assert.Equal(t, "RDM002", Info{ModelID: "RDM002"}.Model())
	assert.Equal(t, "8719514440937", Info{ModelID: "RDM002", Definition: &Definition{Model: "8719514440937"}}.Model())
}
