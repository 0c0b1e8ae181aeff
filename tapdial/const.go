package tapdial

import "fmt"

const (
	Manufacturer = "Philips"
	Model        = "Hue Tap Dial Switch"

	// Physical buttons on the switch, numbered from the top
	ButtonCount = 4
)

type EventType string

const (
	EventButton   EventType = "hue_tap_dial_button"
	EventDial     EventType = "hue_tap_dial_dial"
	EventCombined EventType = "hue_tap_dial_combined"
)

type ButtonEvent string

const (
	Press        ButtonEvent = "press"
	PressRelease ButtonEvent = "press_release"
	Hold         ButtonEvent = "hold"
	HoldRelease  ButtonEvent = "hold_release"
)

var ButtonEvents = []ButtonEvent{Press, PressRelease, Hold, HoldRelease}

const (
	ActionBrightnessStepUp   = "brightness_step_up"
	ActionBrightnessStepDown = "brightness_step_down"
)

var (
	rotateSides  = []string{"left", "right"}
	rotateSpeeds = []string{"step", "slow", "fast"}
)

// Actions lists every action string zigbee2mqtt publishes for the Tap Dial
func Actions() []string {
	var actions []string
	for button := 1; button <= ButtonCount; button++ {
		for _, e := range ButtonEvents {
			actions = append(actions, fmt.Sprintf("button_%d_%s", button, e))
		}
	}

	for _, side := range rotateSides {
		for _, speed := range rotateSpeeds {
			actions = append(actions, fmt.Sprintf("dial_rotate_%s_%s", side, speed))
		}
	}

	return append(actions, ActionBrightnessStepUp, ActionBrightnessStepDown)
}

// DialEventTypes are the event types of the dial event entity
func DialEventTypes() []string {
	var types []string
	for _, side := range rotateSides {
		for _, speed := range rotateSpeeds {
			types = append(types, fmt.Sprintf("rotate_%s_%s", side, speed))
		}
	}

	return append(types, ActionBrightnessStepUp, ActionBrightnessStepDown)
}

// CombinedEventTypes are the event types of the button+dial event entity
func CombinedEventTypes() []string {
	var types []string
	for button := 1; button <= ButtonCount; button++ {
		types = append(types,
			fmt.Sprintf("button_%d_%s", button, ActionBrightnessStepUp),
			fmt.Sprintf("button_%d_%s", button, ActionBrightnessStepDown),
		)
	}

	return types
}
