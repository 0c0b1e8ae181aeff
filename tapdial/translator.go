package tapdial

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

var ErrMalformedPayload = errors.New("malformed payload")

// Default window in which zigbee2mqtt may publish the same action twice
const DefaultDedupWindow = 100 * time.Millisecond

type buttonState struct {
	down      bool
	since     time.Time
	holdSince time.Time
	rotated   bool
}

// Translator turns the payloads of a single Tap Dial into events and sensor updates.
// It keeps the per-button down/rotated bookkeeping needed for hold durations and
// combined button+dial events.
type Translator struct {
	deviceID string

	now         func() time.Time
	dedupWindow time.Duration

	mu           sync.Mutex
	buttons      [ButtonCount + 1]buttonState
	lastAction   string
	lastActionAt time.Time
}

type Option func(*Translator)

func WithClock(now func() time.Time) Option {
	return func(t *Translator) {
		t.now = now
	}
}

// WithDedupWindow sets how close together identical actions must be to get dropped, zero disables it
func WithDedupWindow(window time.Duration) Option {
	return func(t *Translator) {
		t.dedupWindow = window
	}
}

func NewTranslator(deviceID string, opts ...Option) *Translator {
	t := &Translator{deviceID: deviceID, now: time.Now, dedupWindow: DefaultDedupWindow}
	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (t *Translator) Translate(data []byte) (Result, error) {
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Result{DeviceID: t.deviceID}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return t.Apply(payload), nil
}

func (t *Translator) Apply(p Payload) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	r := Result{DeviceID: t.deviceID, Sensors: p.sensorUpdates(t.deviceID)}

	if p.Action == "" {
		return r
	}

	if t.duplicate(p.Action, now) {
		r.Dropped = "duplicate action"
		return r
	}

	action, ok := ParseAction(p.Action)
	if !ok {
		r.Dropped = "unrecognized action"
		return r
	}

	switch action.Kind {
	case KindButton:
		r.Events = append(r.Events, t.button(action, p, now))
	case KindRotate, KindBrightnessStep:
		if reason := dialNoise(action, p); reason != "" {
			r.Dropped = reason
			return r
		}
		r.Events = append(r.Events, t.dial(action, p))
	}

	return r
}

func (t *Translator) duplicate(action string, now time.Time) bool {
	if t.dedupWindow > 0 && action == t.lastAction && now.Sub(t.lastActionAt) < t.dedupWindow {
		return true
	}

	t.lastAction = action
	t.lastActionAt = now
	return false
}

func (t *Translator) button(a Action, p Payload, now time.Time) Event {
	b := &t.buttons[a.Button]
	e := Event{
		Type:           EventButton,
		DeviceID:       t.deviceID,
		Action:         p.Action,
		Button:         a.Button,
		EventType:      a.Event,
		ActionDuration: p.ActionDuration,
	}

	switch a.Event {
	case Press:
		b.press(now)

	case Hold:
		b.press(now)
		if b.holdSince.IsZero() {
			b.holdSince = now
		}
		e.Duration = seconds(now.Sub(b.holdSince))

	case PressRelease, HoldRelease:
		e.PressType = "short"
		if a.Event == HoldRelease {
			e.PressType = "long"

			if b.down {
				e.Duration = seconds(now.Sub(b.heldSince()))
			} else if d, ok := rawFloat(p.ActionDuration); ok && d >= 0 {
				e.Duration = &d
			} else {
				e.Duration = seconds(0)
			}
		}
		e.Rotated = b.rotated

		*b = buttonState{}
	}

	return e
}

func (b *buttonState) press(now time.Time) {
	if !b.down {
		*b = buttonState{down: true, since: now}
	}
}

// Start of the hold, falls back to the press when no hold was seen
func (b *buttonState) heldSince() time.Time {
	if !b.holdSince.IsZero() {
		return b.holdSince
	}
	return b.since
}

// Bogus messages zigbee2mqtt emits alongside real rotations
func dialNoise(a Action, p Payload) string {
	if a.Kind == KindRotate {
		// The brightness_step_* that follows carries the actual delta
		if a.Speed == "step" {
			return "step rotation"
		}
		if p.ActionBrightnessDelta == nil {
			return "rotation without brightness delta"
		}
		return ""
	}

	if p.ActionBrightnessDelta != nil && p.ActionStepSize != nil &&
		math.Abs(*p.ActionBrightnessDelta) == 255 && *p.ActionStepSize == 255 {
		return "full scale brightness step"
	}

	if brightnessDelta(a, p) == 0 {
		return "zero brightness step"
	}

	return ""
}

func brightnessDelta(a Action, p Payload) float64 {
	if p.ActionBrightnessDelta != nil {
		return *p.ActionBrightnessDelta
	}

	if p.ActionStepSize != nil {
		if a.Direction == "down" {
			return -math.Abs(*p.ActionStepSize)
		}
		return math.Abs(*p.ActionStepSize)
	}

	return 0
}

func (t *Translator) dial(a Action, p Payload) Event {
	delta := brightnessDelta(a, p)
	abs := math.Abs(delta)

	e := Event{
		Type:               EventDial,
		DeviceID:           t.deviceID,
		Action:             p.Action,
		Direction:          a.Direction,
		Speed:              a.Speed,
		Brightness:         p.Brightness,
		BrightnessDelta:    &delta,
		AbsBrightnessDelta: &abs,
		ActionTime:         p.ActionTime,
		ActionType:         p.ActionType,
	}

	if held := t.heldButton(); held != 0 {
		t.buttons[held].rotated = true

		e.Type = EventCombined
		e.HeldButton = held
		return e
	}

	e.StepSize = p.ActionStepSize
	e.TransitionTime = p.ActionTransitionTime
	return e
}

// The lowest numbered button that is currently down, or 0
func (t *Translator) heldButton() int {
	for i := 1; i <= ButtonCount; i++ {
		if t.buttons[i].down {
			return i
		}
	}

	return 0
}

// HeldButton reports the button that is currently down, or 0 if none is
func (t *Translator) HeldButton() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.heldButton()
}

func seconds(d time.Duration) *float64 {
	s := d.Seconds()
	if s < 0 {
		s = 0
	}
	return &s
}
