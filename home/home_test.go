package home

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapdial/device"
	"tapdial/integration/mqtt/mqtttest"
	"tapdial/integration/zigbee"
	"tapdial/tapdial"
)

type catalog map[device.InternalName]zigbee.Info

func (c catalog) Lookup(id device.InternalName) (zigbee.Info, bool) {
	info, ok := c[id]
	return info, ok
}

type recorder struct {
	mu        sync.Mutex
	events    []tapdial.Event
	sensors   []tapdial.SensorUpdate
	announced []device.InternalName
	withdrawn []device.InternalName
	err       error
}

func (r *recorder) FireEvent(_ context.Context, event tapdial.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recorder) UpdateSensor(_ context.Context, update tapdial.SensorUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensors = append(r.sensors, update)
	return r.err
}

func (r *recorder) Announce(d *zigbee.TapDial) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.announced = append(r.announced, d.GetID())
	return nil
}

func (r *recorder) Withdraw(d *zigbee.TapDial) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.withdrawn = append(r.withdrawn, d.GetID())
	return nil
}

func (r *recorder) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

var known = catalog{
	"living_room/tap_dial": {IEEEAddress: "0x01", FriendlyName: "living_room/tap_dial", ModelID: "RDM002"},
}

func newHome(opts ...Option) (*Home, *mqtttest.Client, *recorder) {
	client := mqtttest.New()
	r := &recorder{}

	opts = append([]Option{
		WithCatalog(known),
		WithAnnouncer(r),
		WithEventSinks(r),
		WithSensorSinks(r),
		WithTranslatorOptions(tapdial.WithDedupWindow(0)),
	}, opts...)

	return New(client, opts...), client, r
}

func TestAddDevice(t *testing.T) {
	h, client, r := newHome()

	d, err := h.AddDevice(context.Background(), Entry{ID: "living_room/tap_dial", Name: "Couch dial"})
	require.NoError(t, err)
	assert.Equal(t, "Couch dial", d.Name())
	assert.Equal(t, []string{"zigbee2mqtt/living_room/tap_dial"}, client.Subscriptions())
	assert.Equal(t, []device.InternalName{"living_room/tap_dial"}, r.announced)

	_, err = h.AddDevice(context.Background(), Entry{ID: "living_room/tap_dial"})
	assert.ErrorIs(t, err, ErrAlreadyConfigured)

	status, err := h.Device("living_room/tap_dial")
	require.NoError(t, err)
	assert.Equal(t, "0x01", status.IEEEAddress)
	assert.Len(t, h.Devices(), 1)
}

func TestAddDeviceValidation(t *testing.T) {
	t.Run("empty id", func(t *testing.T) {
		h, _, _ := newHome()
		_, err := h.AddDevice(context.Background(), Entry{})
		assert.ErrorIs(t, err, ErrInvalidEntry)
	})

	t.Run("mqtt unavailable", func(t *testing.T) {
		h, client, _ := newHome()
		client.SetConnected(false)

		_, err := h.AddDevice(context.Background(), Entry{ID: "living_room/tap_dial"})
		assert.ErrorIs(t, err, ErrMQTTUnavailable)
		assert.Empty(t, h.Devices())
	})

	t.Run("unknown device", func(t *testing.T) {
		h, _, _ := newHome()

		_, err := h.AddDevice(context.Background(), Entry{ID: "hallway/tap_dial"})
		assert.ErrorIs(t, err, ErrUnknownDevice)
	})

	t.Run("cannot subscribe", func(t *testing.T) {
		h, client, _ := newHome()
		client.FailSubscribe(errors.New("not authorized"))

		_, err := h.AddDevice(context.Background(), Entry{ID: "living_room/tap_dial"})
		assert.ErrorIs(t, err, ErrCannotConnect)
		assert.Empty(t, h.Devices())

		// The reservation is released again
		client.FailSubscribe(nil)
		_, err = h.AddDevice(context.Background(), Entry{ID: "living_room/tap_dial"})
		assert.NoError(t, err)
	})

	t.Run("skip validation", func(t *testing.T) {
		h, client, _ := newHome()
		client.SetConnected(false)
		client.FailSubscribe(errors.New("not connected"))

		d, err := h.AddDevice(context.Background(), Entry{ID: "hallway/tap_dial", SkipValidation: true})
		require.NoError(t, err)
		assert.Equal(t, "Tap Dial", d.Name())
		assert.False(t, d.Status().Subscribed)

		// Picked up again once the broker is back
		client.SetConnected(true)
		client.FailSubscribe(nil)
		h.Resubscribe()
		assert.True(t, d.Status().Subscribed)
	})
}

func TestRemoveDevice(t *testing.T) {
	h, client, r := newHome()

	_, err := h.AddDevice(context.Background(), Entry{ID: "living_room/tap_dial"})
	require.NoError(t, err)

	require.NoError(t, h.RemoveDevice("living_room/tap_dial"))
	assert.Empty(t, client.Subscriptions())
	assert.Equal(t, []device.InternalName{"living_room/tap_dial"}, r.withdrawn)
	assert.Empty(t, h.Devices())

	assert.ErrorIs(t, h.RemoveDevice("living_room/tap_dial"), ErrNotConfigured)
	_, err = h.Device("living_room/tap_dial")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDiscoveryConfirm(t *testing.T) {
	h, _, _ := newHome()

	info := known["living_room/tap_dial"]
	h.OnDiscovered(info)
	assert.Equal(t, []zigbee.Info{info}, h.Discovered())

	_, err := h.Confirm(context.Background(), "hallway/tap_dial", "")
	assert.ErrorIs(t, err, ErrNotDiscovered)

	d, err := h.Confirm(context.Background(), "living_room/tap_dial", "Couch dial")
	require.NoError(t, err)
	assert.Equal(t, "Couch dial", d.Name())
	assert.Empty(t, h.Discovered())

	// Already configured devices are not offered again
	h.OnDiscovered(info)
	assert.Empty(t, h.Discovered())
}

func TestDiscoveryAutoAdd(t *testing.T) {
	h, _, _ := newHome(WithAutoAdd(true))

	h.OnDiscovered(known["living_room/tap_dial"])

	assert.Eventually(t, func() bool {
		return len(h.Devices()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.Discovered())
}

func TestDispatch(t *testing.T) {
	h, client, r := newHome()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	_, err := h.AddDevice(ctx, Entry{ID: "living_room/tap_dial"})
	require.NoError(t, err)

	topic := "zigbee2mqtt/living_room/tap_dial"
	client.Deliver(topic, []byte(`{"action": "button_1_press", "battery": 90}`))
	client.Deliver(topic, []byte(`{"action": "button_1_press_release"}`))
	client.Deliver(topic, []byte(`{"action": "dial_rotate_left_fast", "action_brightness_delta": -50, "action_step_size": 50}`))

	require.Eventually(t, func() bool {
		return r.eventCount() == 3
	}, time.Second, 5*time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()

	assert.Equal(t, "button_1_press", r.events[0].Action)
	assert.Equal(t, "button_1_press_release", r.events[1].Action)
	assert.Equal(t, tapdial.EventDial, r.events[2].Type)
	require.Len(t, r.sensors, 1)
	assert.Equal(t, tapdial.SensorBattery, r.sensors[0].Sensor)
}

func TestDispatchSinkErrors(t *testing.T) {
	h, _, r := newHome()
	r.err = errors.New("unreachable")

	second := &recorder{}
	h.eventSinks = append(h.eventSinks, second)

	h.dispatch(context.Background(), tapdial.Result{Events: []tapdial.Event{{Type: tapdial.EventButton}}})

	assert.Equal(t, 1, second.eventCount())
}

func TestQueueFull(t *testing.T) {
	h, _, _ := newHome(WithQueueSize(1))

	h.enqueue(tapdial.Result{DeviceID: "a"})
	h.enqueue(tapdial.Result{DeviceID: "b"})

	assert.Len(t, h.queue, 1)
	assert.Equal(t, "a", (<-h.queue).DeviceID)
}
