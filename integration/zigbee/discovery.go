package zigbee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tapdial/device"
	"tapdial/integration/mqtt"
	"tapdial/tapdial"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jellydator/ttlcache/v3"
	"github.com/kr/pretty"
)

// How long to stay quiet about a device that is missing from the catalog
const missingWarnInterval = 5 * time.Minute

// Discovery follows the zigbee2mqtt bridge and reports every Tap Dial it finds once
type Discovery struct {
	client paho.Client
	prefix string
	match  string

	onDiscovered func(Info)

	mu      sync.Mutex
	catalog map[device.InternalName]Info
	seen    map[string]bool

	ready     chan struct{}
	readyOnce sync.Once

	warned *ttlcache.Cache[string, struct{}]
}

func NewDiscovery(client paho.Client, prefix string, match string, onDiscovered func(Info)) *Discovery {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	d := &Discovery{
		client:       client,
		prefix:       prefix,
		match:        match,
		onDiscovered: onDiscovered,
		catalog:      make(map[device.InternalName]Info),
		seen:         make(map[string]bool),
		ready:        make(chan struct{}),
		warned: ttlcache.New(
			ttlcache.WithTTL[string, struct{}](missingWarnInterval),
		),
	}

	go d.warned.Start()

	return d
}

func (d *Discovery) devicesTopic() string {
	return d.prefix + "/bridge/devices"
}

func (d *Discovery) logTopic() string {
	return d.prefix + "/bridge/log"
}

func (d *Discovery) announceTopic() string {
	return d.prefix + "/+"
}

// Start subscribes to the bridge topics, it is safe to call again after a reconnect
func (d *Discovery) Start() error {
	if err := mqtt.On(d.client, d.devicesTopic(), d.devicesHandler); err != nil {
		return fmt.Errorf("subscribe %s: %w", d.devicesTopic(), err)
	}

	if err := mqtt.On(d.client, d.logTopic(), d.logHandler); err != nil {
		return fmt.Errorf("subscribe %s: %w", d.logTopic(), err)
	}

	// Carries the state of every device, most of which are not JSON objects
	if token := d.client.Subscribe(d.announceTopic(), 1, d.announceHandler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", d.announceTopic(), token.Error())
	}

	return nil
}

func (d *Discovery) Stop() {
	if err := mqtt.Unsubscribe(d.client, d.devicesTopic(), d.logTopic(), d.announceTopic()); err != nil {
		slog.Warn("Failed to unsubscribe from bridge", "error", err)
	}

	d.warned.Stop()
}

// AwaitDevices blocks until the first device list has been received
func (d *Discovery) AwaitDevices(ctx context.Context) error {
	select {
	case <-d.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s: %w", d.devicesTopic(), ctx.Err())
	}
}

// Ready reports whether a device list has been received
func (d *Discovery) Ready() bool {
	select {
	case <-d.ready:
		return true
	default:
		return false
	}
}

func (d *Discovery) Lookup(id device.InternalName) (Info, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, ok := d.catalog[id]
	return info, ok
}

// TapDials returns every Tap Dial currently in the catalog
func (d *Discovery) TapDials() []Info {
	d.mu.Lock()
	defer d.mu.Unlock()

	var infos []Info
	for _, info := range d.catalog {
		if info.IsTapDial(d.match) {
			infos = append(infos, info)
		}
	}
	return infos
}

// zigbee2mqtt publishes the full list, but a single object is accepted as well
func decodeDevices(raw json.RawMessage) ([]Info, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var info Info
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, err
		}
		return []Info{info}, nil
	}

	var infos []Info
	if err := json.Unmarshal(raw, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

func (d *Discovery) devicesHandler(topic string, raw json.RawMessage) {
	infos, err := decodeDevices(raw)
	if err != nil {
		slog.Error("Failed to decode device list", "topic", topic, "error", err)
		return
	}

	slog.Info("Processing devices from zigbee2mqtt", "count", len(infos))

	var found []Info
	d.mu.Lock()
	for _, info := range infos {
		if info.FriendlyName == "" {
			continue
		}
		d.catalog[info.FriendlyName] = info

		if !info.IsTapDial(d.match) {
			continue
		}

		key := info.IEEEAddress
		if key == "" {
			key = info.FriendlyName.String()
		}
		if d.seen[key] {
			continue
		}
		d.seen[key] = true
		found = append(found, info)
	}
	d.mu.Unlock()

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug("Bridge catalog", "devices", pretty.Sprint(infos))
	}

	d.readyOnce.Do(func() { close(d.ready) })

	for _, info := range found {
		slog.Info("Discovered Hue Tap Dial", "device", info.FriendlyName, "ieee_address", info.IEEEAddress, "model", info.Model())
		if d.onDiscovered != nil {
			d.onDiscovered(info)
		}
	}
}

type bridgeLog struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

func (d *Discovery) logHandler(_ string, entry bridgeLog) {
	if entry.Type != "device_connected" {
		return
	}

	message := strings.ToLower(string(entry.Message))
	if strings.Contains(message, "tap dial") || strings.Contains(message, "rdm002") {
		slog.Debug("Tap Dial connected", "message", string(entry.Message))
	}
}

// Catches devices that publish like a Tap Dial before the catalog knows about them
func (d *Discovery) announceHandler(_ paho.Client, msg paho.Message) {
	id := device.InternalName(strings.TrimPrefix(msg.Topic(), d.prefix+"/"))
	if id == "bridge" || id == "availability" {
		return
	}

	if !d.Ready() {
		return
	}

	if _, ok := d.Lookup(id); ok {
		return
	}

	raw := bytes.TrimSpace(msg.Payload())
	if len(raw) == 0 || raw[0] != '{' {
		return
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		slog.Debug("Ignoring undecodable state", "device", id, "error", err)
		return
	}

	if !d.looksLikeTapDial(id, payload) {
		return
	}

	if d.warned.Get(id.String()) != nil {
		return
	}
	d.warned.Set(id.String(), struct{}{}, ttlcache.DefaultTTL)

	slog.Warn("Device is publishing but missing from the bridge device list", "device", id)
}

func (d *Discovery) looksLikeTapDial(id device.InternalName, payload map[string]json.RawMessage) bool {
	if raw, ok := payload["action"]; ok {
		var action string
		if err := json.Unmarshal(raw, &action); err == nil {
			if _, ok := tapdial.ParseAction(action); ok {
				return true
			}
		}
	}

	if _, ok := payload["battery"]; !ok {
		return false
	}
	return d.match != "" && strings.Contains(strings.ToLower(id.String()), strings.ToLower(d.match))
}
