package tapdial

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Event is the normalized record fired for a button, dial or combined action.
// The JSON form is the event data sent to Home Assistant.
type Event struct {
	Type     EventType `json:"-"`
	DeviceID string    `json:"device_id"`
	Action   string    `json:"action"`

	Button    int         `json:"button,omitempty"`
	EventType ButtonEvent `json:"event_type,omitempty"`
	PressType string      `json:"press_type,omitempty"`
	Rotated   bool        `json:"rotated,omitempty"`
	Duration  *float64    `json:"duration,omitempty"`

	HeldButton         int      `json:"held_button,omitempty"`
	Direction          string   `json:"direction,omitempty"`
	Speed              string   `json:"speed,omitempty"`
	Brightness         *float64 `json:"brightness,omitempty"`
	BrightnessDelta    *float64 `json:"brightness_delta,omitempty"`
	AbsBrightnessDelta *float64 `json:"abs_brightness_delta,omitempty"`
	StepSize           *float64 `json:"step_size,omitempty"`

	TransitionTime json.RawMessage `json:"transition_time,omitempty"`
	ActionTime     json.RawMessage `json:"action_time,omitempty"`
	ActionType     json.RawMessage `json:"action_type,omitempty"`
	ActionDuration json.RawMessage `json:"action_duration,omitempty"`
}

// EntityEventType is the event type reported by the matching HA event entity
func (e Event) EntityEventType() string {
	switch e.Type {
	case EventButton:
		return string(e.EventType)
	case EventCombined:
		return fmt.Sprintf("button_%d_brightness_step_%s", e.HeldButton, e.Direction)
	}

	if a, ok := ParseAction(e.Action); ok && a.Kind == KindRotate {
		return fmt.Sprintf("rotate_%s_%s", a.Side, a.Speed)
	}
	return "brightness_step_" + e.Direction
}

// TriggerAction is the action in the long button_N_<event> form, matching the discovered device triggers
func (e Event) TriggerAction() string {
	if e.Type == EventButton && e.Button != 0 {
		return fmt.Sprintf("button_%d_%s", e.Button, e.EventType)
	}
	return e.Action
}

// Entity is the suffix of the HA event entity the event belongs to
func (e Event) Entity() string {
	switch e.Type {
	case EventButton:
		return fmt.Sprintf("button_%d", e.Button)
	case EventCombined:
		return "combined"
	}
	return "dial"
}

type Sensor string

const (
	SensorBattery          Sensor = "battery"
	SensorLinkQuality      Sensor = "linkquality"
	SensorInstalledVersion Sensor = "installed_version"
	SensorLatestVersion    Sensor = "latest_version"
	SensorUpdateAvailable  Sensor = "update_available"
)

var Sensors = []Sensor{SensorBattery, SensorLinkQuality, SensorInstalledVersion, SensorLatestVersion, SensorUpdateAvailable}

type SensorUpdate struct {
	DeviceID string
	Sensor   Sensor
	Value    any
}

// State renders the value the way it is published on the state topic
func (s SensorUpdate) State() string {
	switch v := s.Value.(type) {
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	}
	return fmt.Sprint(s.Value)
}

// Result is everything produced from one payload
type Result struct {
	DeviceID string
	Events   []Event
	Sensors  []SensorUpdate

	// Set when an action was present but produced no event
	Dropped string
}

func (r Result) Empty() bool {
	return len(r.Events) == 0 && len(r.Sensors) == 0
}
