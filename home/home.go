package home

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"tapdial/device"
	"tapdial/integration/mqtt"
	"tapdial/integration/zigbee"
	"tapdial/tapdial"

	paho "github.com/eclipse/paho.mqtt.golang"
)

var (
	ErrInvalidEntry      = errors.New("device id is required")
	ErrAlreadyConfigured = errors.New("device is already configured")
	ErrMQTTUnavailable   = errors.New("mqtt is not available")
	ErrUnknownDevice     = errors.New("device is not known to zigbee2mqtt")
	ErrCannotConnect     = errors.New("cannot subscribe to device topic")
	ErrNotConfigured     = errors.New("device is not configured")
	ErrNotDiscovered     = errors.New("device has not been discovered")
)

const DefaultQueueSize = 64

// Entry is a configured Tap Dial
type Entry struct {
	ID             device.InternalName `yaml:"device_id" json:"device_id"`
	Name           string              `yaml:"name" json:"name"`
	SkipValidation bool                `yaml:"skip_validation" json:"skip_validation"`
}

type EventSink interface {
	FireEvent(ctx context.Context, event tapdial.Event) error
}

type SensorSink interface {
	UpdateSensor(ctx context.Context, update tapdial.SensorUpdate) error
}

// Announcer makes devices known to whatever consumes the events
type Announcer interface {
	Announce(d *zigbee.TapDial) error
	Withdraw(d *zigbee.TapDial) error
}

type Catalog interface {
	Lookup(id device.InternalName) (zigbee.Info, bool)
}

type Home struct {
	client paho.Client
	prefix string

	catalog        Catalog
	announcer      Announcer
	eventSinks     []EventSink
	sensorSinks    []SensorSink
	autoAdd        bool
	translatorOpts []tapdial.Option

	queue chan tapdial.Result

	mu         sync.Mutex
	devices    map[device.InternalName]device.Basic
	pending    map[device.InternalName]bool
	discovered map[device.InternalName]zigbee.Info
}

type Option func(*Home)

func WithPrefix(prefix string) Option {
	return func(h *Home) {
		h.prefix = prefix
	}
}

func WithCatalog(catalog Catalog) Option {
	return func(h *Home) {
		h.catalog = catalog
	}
}

func WithAnnouncer(announcer Announcer) Option {
	return func(h *Home) {
		h.announcer = announcer
	}
}

func WithEventSinks(sinks ...EventSink) Option {
	return func(h *Home) {
		h.eventSinks = append(h.eventSinks, sinks...)
	}
}

func WithSensorSinks(sinks ...SensorSink) Option {
	return func(h *Home) {
		h.sensorSinks = append(h.sensorSinks, sinks...)
	}
}

// WithAutoAdd configures discovered devices without waiting for confirmation
func WithAutoAdd(autoAdd bool) Option {
	return func(h *Home) {
		h.autoAdd = autoAdd
	}
}

func WithTranslatorOptions(opts ...tapdial.Option) Option {
	return func(h *Home) {
		h.translatorOpts = append(h.translatorOpts, opts...)
	}
}

func WithQueueSize(size int) Option {
	return func(h *Home) {
		h.queue = make(chan tapdial.Result, size)
	}
}

func New(client paho.Client, opts ...Option) *Home {
	h := &Home{
		client:     client,
		prefix:     zigbee.DefaultPrefix,
		queue:      make(chan tapdial.Result, DefaultQueueSize),
		devices:    make(map[device.InternalName]device.Basic),
		pending:    make(map[device.InternalName]bool),
		discovered: make(map[device.InternalName]zigbee.Info),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *Home) reserve(id device.InternalName) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.devices[id]; ok || h.pending[id] {
		return fmt.Errorf("%w: %s", ErrAlreadyConfigured, id)
	}
	h.pending[id] = true

	return nil
}

func (h *Home) release(id device.InternalName) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.pending, id)
}

func (h *Home) lookup(id device.InternalName) (zigbee.Info, bool) {
	if h.catalog == nil {
		return zigbee.Info{}, false
	}
	return h.catalog.Lookup(id)
}

// AddDevice runs the config flow for entry and starts listening to the device.
// The device lock is not held while talking to the broker, handlers may be waiting on it.
func (h *Home) AddDevice(ctx context.Context, entry Entry) (*zigbee.TapDial, error) {
	if entry.ID == "" {
		return nil, ErrInvalidEntry
	}

	if err := h.reserve(entry.ID); err != nil {
		return nil, err
	}
	defer h.release(entry.ID)

	info, known := h.lookup(entry.ID)
	if !known {
		info = zigbee.Info{FriendlyName: entry.ID}
	}

	d := zigbee.NewTapDial(info, entry.Name, h.prefix, h.enqueue, h.translatorOpts...)

	if entry.SkipValidation {
		slog.Info("Skipping validation", "device", entry.ID)
	} else {
		if !h.client.IsConnected() {
			return nil, ErrMQTTUnavailable
		}
		if !known {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, entry.ID)
		}
		if err := mqtt.Probe(h.client, d.Topic()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCannotConnect, d.Topic(), err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := d.Subscribe(h.client); err != nil {
		if !entry.SkipValidation {
			return nil, fmt.Errorf("%w: %s: %v", ErrCannotConnect, d.Topic(), err)
		}
		slog.Warn("Failed to subscribe, retrying on reconnect", "device", entry.ID, "error", err)
	}

	if h.announcer != nil {
		if err := h.announcer.Announce(d); err != nil {
			slog.Warn("Failed to announce device", "device", entry.ID, "error", err)
		}
	}

	h.mu.Lock()
	h.devices[d.GetID()] = d
	delete(h.discovered, d.GetID())
	h.mu.Unlock()

	slog.Info("Added device", "name", d.Name(), "room", d.GetID().Room(), "id", d.GetID())

	return d, nil
}

func (h *Home) RemoveDevice(id device.InternalName) error {
	h.mu.Lock()
	d, err := device.GetDevice[*zigbee.TapDial](&h.devices, id)
	if err != nil {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotConfigured, id)
	}
	delete(h.devices, id)
	h.mu.Unlock()

	if err := d.Delete(h.client); err != nil {
		slog.Warn("Failed to unsubscribe", "device", id, "error", err)
	}

	if h.announcer != nil {
		if err := h.announcer.Withdraw(d); err != nil {
			slog.Warn("Failed to withdraw device", "device", id, "error", err)
		}
	}

	slog.Info("Removed device", "id", id)

	return nil
}

func (h *Home) tapDials() []*zigbee.TapDial {
	h.mu.Lock()
	defer h.mu.Unlock()

	var dials []*zigbee.TapDial
	for _, d := range device.GetDevices[*zigbee.TapDial](&h.devices) {
		dials = append(dials, d)
	}
	sort.Slice(dials, func(i, j int) bool {
		return dials[i].GetID() < dials[j].GetID()
	})

	return dials
}

func (h *Home) Device(id device.InternalName) (zigbee.Status, error) {
	h.mu.Lock()
	d, err := device.GetDevice[*zigbee.TapDial](&h.devices, id)
	h.mu.Unlock()
	if err != nil {
		return zigbee.Status{}, fmt.Errorf("%w: %s", ErrNotConfigured, id)
	}

	return d.Status(), nil
}

func (h *Home) Devices() []zigbee.Status {
	statuses := []zigbee.Status{}
	for _, d := range h.tapDials() {
		statuses = append(statuses, d.Status())
	}

	return statuses
}

// OnDiscovered is called by discovery for every Tap Dial found on the bridge
func (h *Home) OnDiscovered(info zigbee.Info) {
	h.mu.Lock()
	_, configured := h.devices[info.FriendlyName]
	if configured || h.pending[info.FriendlyName] {
		h.mu.Unlock()
		slog.Debug("Device already configured, skipping discovery", "device", info.FriendlyName)
		return
	}
	h.discovered[info.FriendlyName] = info
	h.mu.Unlock()

	if !h.autoAdd {
		slog.Info("Device waiting for confirmation", "device", info.FriendlyName)
		return
	}

	// Called from an mqtt handler, subscribing has to happen elsewhere
	go func() {
		if _, err := h.AddDevice(context.Background(), Entry{ID: info.FriendlyName}); err != nil {
			slog.Error("Failed to add discovered device", "device", info.FriendlyName, "error", err)
		}
	}()
}

// Discovered returns the devices that are waiting for confirmation
func (h *Home) Discovered() []zigbee.Info {
	h.mu.Lock()
	defer h.mu.Unlock()

	infos := []zigbee.Info{}
	for _, info := range h.discovered {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].FriendlyName < infos[j].FriendlyName
	})

	return infos
}

// Confirm configures a discovered device, name falls back to the friendly name
func (h *Home) Confirm(ctx context.Context, id device.InternalName, name string) (*zigbee.TapDial, error) {
	h.mu.Lock()
	_, ok := h.discovered[id]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotDiscovered, id)
	}

	return h.AddDevice(ctx, Entry{ID: id, Name: name})
}

// Resubscribe subscribes and announces every device again, used after a reconnect
func (h *Home) Resubscribe() {
	for _, d := range h.tapDials() {
		if err := d.Subscribe(h.client); err != nil {
			slog.Error("Failed to resubscribe", "device", d.GetID(), "error", err)
		}

		if h.announcer != nil {
			if err := h.announcer.Announce(d); err != nil {
				slog.Warn("Failed to announce device", "device", d.GetID(), "error", err)
			}
		}
	}
}

// Shutdown unsubscribes every device
func (h *Home) Shutdown() {
	for _, d := range h.tapDials() {
		if err := d.Delete(h.client); err != nil {
			slog.Warn("Failed to unsubscribe", "device", d.GetID(), "error", err)
		}
	}
}

// Never blocks, it runs inside the mqtt handler
func (h *Home) enqueue(result tapdial.Result) {
	select {
	case h.queue <- result:
	default:
		slog.Warn("Dispatch queue is full, dropping result", "device", result.DeviceID, "events", len(result.Events))
	}
}

// Run hands queued results to the sinks until ctx is done
func (h *Home) Run(ctx context.Context) {
	slog.Info("Starting dispatch loop")
	for {
		select {
		case result := <-h.queue:
			h.dispatch(ctx, result)

		case <-ctx.Done():
			return
		}
	}
}

func (h *Home) dispatch(ctx context.Context, result tapdial.Result) {
	for _, event := range result.Events {
		slog.Debug("Event", "device", event.DeviceID, "type", event.Type, "action", event.Action)

		for _, sink := range h.eventSinks {
			if err := sink.FireEvent(ctx, event); err != nil {
				slog.Error("Failed to fire event", "device", event.DeviceID, "type", event.Type, "error", err)
			}
		}
	}

	for _, update := range result.Sensors {
		for _, sink := range h.sensorSinks {
			if err := sink.UpdateSensor(ctx, update); err != nil {
				slog.Error("Failed to update sensor", "device", update.DeviceID, "sensor", update.Sensor, "error", err)
			}
		}
	}
}
