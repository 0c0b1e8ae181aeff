package tapdial

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Payload is a single message published by zigbee2mqtt on the device topic
type Payload struct {
	Action                string          `json:"action"`
	ActionDuration        json.RawMessage `json:"action_duration"`
	ActionBrightnessDelta *float64        `json:"action_brightness_delta"`
	ActionStepSize        *float64        `json:"action_step_size"`
	ActionTransitionTime  json.RawMessage `json:"action_transition_time"`
	ActionTime            json.RawMessage `json:"action_time"`
	ActionType            json.RawMessage `json:"action_type"`
	Brightness            *float64        `json:"brightness"`

	Battery         *float64    `json:"battery"`
	LinkQuality     *float64    `json:"linkquality"`
	Update          *UpdateInfo `json:"update"`
	UpdateAvailable *bool       `json:"update_available"`
}

type UpdateInfo struct {
	State            string          `json:"state"`
	InstalledVersion json.RawMessage `json:"installed_version"`
	LatestVersion    json.RawMessage `json:"latest_version"`
}

// zigbee2mqtt reports versions either as numbers or as strings
func versionString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}

	return string(raw), true
}

func rawFloat(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}

	return 0, false
}

func (p Payload) sensorUpdates(deviceID string) []SensorUpdate {
	var updates []SensorUpdate
	add := func(sensor Sensor, value any) {
		updates = append(updates, SensorUpdate{DeviceID: deviceID, Sensor: sensor, Value: value})
	}

	if p.Battery != nil {
		add(SensorBattery, *p.Battery)
	}
	if p.LinkQuality != nil {
		add(SensorLinkQuality, *p.LinkQuality)
	}

	if p.Update != nil {
		if v, ok := versionString(p.Update.InstalledVersion); ok {
			add(SensorInstalledVersion, v)
		}
		if v, ok := versionString(p.Update.LatestVersion); ok {
			add(SensorLatestVersion, v)
		}
	}

	switch {
	case p.UpdateAvailable != nil:
		add(SensorUpdateAvailable, *p.UpdateAvailable)
	case p.Update != nil:
		add(SensorUpdateAvailable, p.Update.State == "available")
	}

	return updates
}
