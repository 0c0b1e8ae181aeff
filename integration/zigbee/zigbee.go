package zigbee

import (
	"strings"

	"tapdial/device"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const DefaultPrefix = "zigbee2mqtt"

// Product codes the Tap Dial is sold under
var productCodes = []string{"8719514440937", "8719514440999", "8719514491069"}

type Definition struct {
	Model       string `json:"model"`
	Vendor      string `json:"vendor"`
	Description string `json:"description"`
}

// Info is a single entry of the device list zigbee2mqtt publishes on bridge/devices
type Info struct {
	IEEEAddress     string              `json:"ieee_address"`
	FriendlyName    device.InternalName `json:"friendly_name"`
	Type            string              `json:"type"`
	Description     string              `json:"description"`
	Manufacturer    string              `json:"manufacturer"`
	ModelID         string              `json:"model_id"`
	SoftwareBuildID string              `json:"software_build_id"`
	Definition      *Definition         `json:"definition"`
}

// Model prefers the zigbee2mqtt definition over the raw model id
func (i Info) Model() string {
	if i.Definition != nil && i.Definition.Model != "" {
		return i.Definition.Model
	}
	return i.ModelID
}

// IsTapDial reports whether the entry looks like a Hue Tap Dial Switch.
// match is a friendly name substring that also counts, empty disables that check.
func (i Info) IsTapDial(match string) bool {
	if i.Type == "Coordinator" {
		return false
	}

	model := strings.ToLower(i.ModelID)
	var description, vendor string
	if i.Definition != nil {
		model += " " + strings.ToLower(i.Definition.Model)
		description = strings.ToLower(i.Definition.Description)
		vendor = strings.ToLower(i.Definition.Vendor)
	}
	description += " " + strings.ToLower(i.Description)
	manufacturer := strings.ToLower(i.Manufacturer) + " " + vendor

	if strings.Contains(model, "rdm002") {
		return true
	}
	for _, code := range productCodes {
		if strings.Contains(model, code) {
			return true
		}
	}
	if strings.Contains(model, "tap dial") || strings.Contains(description, "tap dial") {
		return true
	}
	if strings.Contains(manufacturer, "philips") && (strings.Contains(model, "dial") || strings.Contains(description, "dial")) {
		return true
	}

	return match != "" && strings.Contains(strings.ToLower(i.FriendlyName.String()), strings.ToLower(match))
}

type Device interface {
	device.Basic

	IsZigbeeDevice()
	Delete(client paho.Client) error
}
