package tapdial

import (
	"regexp"
	"strconv"
)

type ActionKind int

const (
	KindUnknown ActionKind = iota
	KindButton
	KindRotate
	KindBrightnessStep
)

// Action is a parsed zigbee2mqtt action string
type Action struct {
	Kind ActionKind

	Button int
	Event  ButtonEvent

	// left or right, rotations only
	Side      string
	Speed     string
	Direction string
}

// zigbee2mqtt has published both "button_1_hold" and "1_hold" over time
var (
	buttonPattern = regexp.MustCompile(`^(?:button_)?([1-4])_(press|press_release|hold|hold_release)$`)
	rotatePattern = regexp.MustCompile(`^dial_rotate_(left|right)_(step|slow|fast)$`)
)

func ParseAction(action string) (Action, bool) {
	if m := buttonPattern.FindStringSubmatch(action); m != nil {
		button, _ := strconv.Atoi(m[1])
		return Action{Kind: KindButton, Button: button, Event: ButtonEvent(m[2])}, true
	}

	if m := rotatePattern.FindStringSubmatch(action); m != nil {
		direction := "down"
		if m[1] == "right" {
			direction = "up"
		}
		return Action{Kind: KindRotate, Side: m[1], Speed: m[2], Direction: direction}, true
	}

	switch action {
	case ActionBrightnessStepUp:
		return Action{Kind: KindBrightnessStep, Direction: "up"}, true
	case ActionBrightnessStepDown:
		return Action{Kind: KindBrightnessStep, Direction: "down"}, true
	}

	return Action{}, false
}

func (a Action) IsDial() bool {
	return a.Kind == KindRotate || a.Kind == KindBrightnessStep
}
