package zigbee

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tapdial/device"
	"tapdial/integration/mqtt"
	"tapdial/tapdial"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Status is a snapshot of a configured Tap Dial
type Status struct {
	ID              device.InternalName `json:"device_id"`
	Name            string              `json:"name"`
	Room            string              `json:"room,omitempty"`
	IEEEAddress     string              `json:"ieee_address,omitempty"`
	Model           string              `json:"model,omitempty"`
	SoftwareBuildID string              `json:"software_build_id,omitempty"`
	Subscribed      bool                `json:"subscribed"`
	LastSeen        *time.Time          `json:"last_seen,omitempty"`
	HeldButton      int                 `json:"held_button,omitempty"`
	Sensors         map[string]any      `json:"sensors"`
	LastEvent       *tapdial.Event      `json:"last_event,omitempty"`
}

type TapDial struct {
	info   Info
	name   string
	prefix string

	translator *tapdial.Translator
	onResult   func(tapdial.Result)

	mu         sync.Mutex
	subscribed bool
	lastSeen   time.Time
	sensors    map[tapdial.Sensor]any
	lastEvent  *tapdial.Event
}

// NewTapDial creates the device, Subscribe has to be called before it receives anything.
// name falls back to the friendly name.
func NewTapDial(info Info, name string, prefix string, onResult func(tapdial.Result), opts ...tapdial.Option) *TapDial {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if name == "" {
		name = info.FriendlyName.Name()
	}

	return &TapDial{
		info:       info,
		name:       name,
		prefix:     prefix,
		translator: tapdial.NewTranslator(info.FriendlyName.String(), opts...),
		onResult:   onResult,
		sensors:    make(map[tapdial.Sensor]any),
	}
}

func (t *TapDial) Topic() string {
	return fmt.Sprintf("%s/%s", t.prefix, t.info.FriendlyName)
}

func (t *TapDial) Info() Info {
	return t.info
}

func (t *TapDial) Name() string {
	return t.name
}

func (t *TapDial) Subscribe(client paho.Client) error {
	if token := client.Subscribe(t.Topic(), 1, t.stateHandler); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	t.mu.Lock()
	t.subscribed = true
	t.mu.Unlock()

	return nil
}

func (t *TapDial) stateHandler(_ paho.Client, msg paho.Message) {
	// Retained message got cleared
	if len(msg.Payload()) == 0 {
		return
	}

	result, err := t.translator.Translate(msg.Payload())
	if err != nil {
		slog.Warn("Dropping payload", "device", t.GetID(), "error", err)
		return
	}

	t.record(result)

	if result.Dropped != "" {
		slog.Debug("Dropped action", "device", t.GetID(), "reason", result.Dropped)
	}

	if result.Empty() {
		return
	}

	if t.onResult != nil {
		t.onResult(result)
	}
}

func (t *TapDial) record(result tapdial.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastSeen = time.Now()
	for _, s := range result.Sensors {
		t.sensors[s.Sensor] = s.Value
	}
	if n := len(result.Events); n > 0 {
		e := result.Events[n-1]
		t.lastEvent = &e
	}
}

// Sensor returns the last known value of s
func (t *TapDial) Sensor(s tapdial.Sensor) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.sensors[s]
	return v, ok
}

func (t *TapDial) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	status := Status{
		ID:              t.GetID(),
		Name:            t.name,
		Room:            t.GetID().Room(),
		IEEEAddress:     t.info.IEEEAddress,
		Model:           t.info.Model(),
		SoftwareBuildID: t.info.SoftwareBuildID,
		Subscribed:      t.subscribed,
		HeldButton:      t.translator.HeldButton(),
		Sensors:         make(map[string]any, len(t.sensors)),
		LastEvent:       t.lastEvent,
	}

	if !t.lastSeen.IsZero() {
		lastSeen := t.lastSeen
		status.LastSeen = &lastSeen
	}
	for sensor, value := range t.sensors {
		status.Sensors[string(sensor)] = value
	}

	return status
}

// zigbee.Device
var _ Device = (*TapDial)(nil)

func (t *TapDial) IsZigbeeDevice() {}

func (t *TapDial) Delete(client paho.Client) error {
	t.mu.Lock()
	subscribed := t.subscribed
	t.subscribed = false
	t.mu.Unlock()

	if !subscribed {
		return nil
	}

	if err := mqtt.Unsubscribe(client, t.Topic()); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", t.Topic(), err)
	}

	return nil
}

// device.Basic
var _ device.Basic = (*TapDial)(nil)

func (t *TapDial) GetID() device.InternalName {
	return t.info.FriendlyName
}
