package hass

import (
	"context"
	"encoding/json"
	"fmt"

	"tapdial/device"
	"tapdial/integration/mqtt"
	"tapdial/integration/zigbee"
	"tapdial/tapdial"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

var sensors = map[tapdial.Sensor]sensorConfig{
	tapdial.SensorBattery: {
		component:   "sensor",
		name:        "Battery",
		deviceClass: "battery",
		stateClass:  "measurement",
		unit:        "%",
	},
	tapdial.SensorLinkQuality: {
		component:      "sensor",
		name:           "Linkquality",
		stateClass:     "measurement",
		entityCategory: "diagnostic",
		unit:           "lqi",
		icon:           "mdi:signal",
	},
	tapdial.SensorInstalledVersion: {
		component:      "sensor",
		name:           "Installed firmware",
		entityCategory: "diagnostic",
		icon:           "mdi:chip",
	},
	tapdial.SensorLatestVersion: {
		component:      "sensor",
		name:           "Latest firmware",
		entityCategory: "diagnostic",
		icon:           "mdi:chip",
	},
	tapdial.SensorUpdateAvailable: {
		component:      "binary_sensor",
		name:           "Update available",
		deviceClass:    "update",
		entityCategory: "diagnostic",
	},
}

// Publisher exposes Tap Dials to Home Assistant through MQTT discovery
type Publisher struct {
	client paho.Client
	config Config
}

func NewPublisher(client paho.Client, config Config) *Publisher {
	config.SetDefaults()
	return &Publisher{client: client, config: config}
}

func (p *Publisher) AvailabilityTopic() string {
	return p.config.AvailabilityTopic()
}

func (p *Publisher) Online() error {
	return mqtt.Publish(p.client, p.AvailabilityTopic(), true, []byte(payloadOnline))
}

func (p *Publisher) Offline() error {
	return mqtt.Publish(p.client, p.AvailabilityTopic(), true, []byte(payloadOffline))
}

func (p *Publisher) topic(deviceID string, suffix string) string {
	return fmt.Sprintf("%s/%s/%s", p.config.BaseTopic, key(deviceID), suffix)
}

// ActionTopic receives the raw action string, device triggers match on it
func (p *Publisher) ActionTopic(deviceID string) string {
	return p.topic(deviceID, "action")
}

func (p *Publisher) discoveryTopic(component string, deviceID string, objectID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", p.config.DiscoveryPrefix, component, key(deviceID), objectID)
}

func key(deviceID string) string {
	return device.InternalName(deviceID).Key()
}

func uniqueID(deviceID string, objectID string) string {
	return fmt.Sprintf("hue_tap_dial_%s_%s", key(deviceID), objectID)
}

func deviceInfo(d *zigbee.TapDial) Device {
	info := d.Info()

	return Device{
		Identifiers:   []string{"hue_tap_dial_" + key(d.GetID().String())},
		Name:          d.Name(),
		Manufacturer:  tapdial.Manufacturer,
		Model:         tapdial.Model,
		SWVersion:     info.SoftwareBuildID,
		SuggestedArea: d.GetID().Room(),
	}
}

type config struct {
	topic   string
	payload any
}

func (p *Publisher) configs(d *zigbee.TapDial) []config {
	id := d.GetID().String()
	dev := deviceInfo(d)

	entity := func(objectID string, name string) Entity {
		return Entity{
			Name:              name,
			UniqueID:          uniqueID(id, objectID),
			ObjectID:          uniqueID(id, objectID),
			StateTopic:        p.topic(id, objectID),
			AvailabilityTopic: p.AvailabilityTopic(),
			Device:            dev,
		}
	}

	var configs []config

	for i := 1; i <= tapdial.ButtonCount; i++ {
		objectID := fmt.Sprintf("button_%d", i)
		e := entity(objectID, fmt.Sprintf("Button %d", i))
		e.DeviceClass = "button"
		for _, event := range tapdial.ButtonEvents {
			e.EventTypes = append(e.EventTypes, string(event))
		}
		configs = append(configs, config{p.discoveryTopic("event", id, objectID), e})
	}

	dial := entity("dial", "Dial")
	dial.Icon = "mdi:knob"
	dial.EventTypes = tapdial.DialEventTypes()
	configs = append(configs, config{p.discoveryTopic("event", id, "dial"), dial})

	combined := entity("combined", "Button and dial")
	combined.Icon = "mdi:gesture-tap-button"
	combined.EventTypes = tapdial.CombinedEventTypes()
	configs = append(configs, config{p.discoveryTopic("event", id, "combined"), combined})

	for _, sensor := range tapdial.Sensors {
		sc := sensors[sensor]
		e := entity(string(sensor), sc.name)
		e.DeviceClass = sc.deviceClass
		e.StateClass = sc.stateClass
		e.EntityCategory = sc.entityCategory
		e.UnitOfMeasurement = sc.unit
		e.Icon = sc.icon
		if sc.component == "binary_sensor" {
			e.PayloadOn = "true"
			e.PayloadOff = "false"
		}
		configs = append(configs, config{p.discoveryTopic(sc.component, id, string(sensor)), e})
	}

	for _, action := range tapdial.Actions() {
		trigger := Trigger{
			AutomationType: "trigger",
			Type:           "action",
			Subtype:        action,
			Payload:        action,
			Topic:          p.ActionTopic(id),
			Device:         dev,
		}
		configs = append(configs, config{p.discoveryTopic("device_automation", id, "action_"+action), trigger})
	}

	return configs
}

// Announce publishes the retained discovery config of every entity and trigger of d
func (p *Publisher) Announce(d *zigbee.TapDial) error {
	for _, c := range p.configs(d) {
		payload, err := json.Marshal(c.payload)
		if err != nil {
			return err
		}

		if err := mqtt.Publish(p.client, c.topic, true, payload); err != nil {
			return fmt.Errorf("publish %s: %w", c.topic, err)
		}
	}

	return nil
}

// Withdraw clears the retained discovery configs, Home Assistant removes the entities
func (p *Publisher) Withdraw(d *zigbee.TapDial) error {
	for _, c := range p.configs(d) {
		if err := mqtt.Publish(p.client, c.topic, true, []byte{}); err != nil {
			return fmt.Errorf("clear %s: %w", c.topic, err)
		}
	}

	return nil
}

// FireEvent publishes the event to its event entity and the action to the trigger topic
func (p *Publisher) FireEvent(_ context.Context, e tapdial.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	payload["event_type"] = e.EntityEventType()

	data, err = json.Marshal(payload)
	if err != nil {
		return err
	}

	if err := mqtt.Publish(p.client, p.topic(e.DeviceID, e.Entity()), false, data); err != nil {
		return err
	}

	return mqtt.Publish(p.client, p.ActionTopic(e.DeviceID), false, []byte(e.TriggerAction()))
}

func (p *Publisher) UpdateSensor(_ context.Context, u tapdial.SensorUpdate) error {
	return mqtt.Publish(p.client, p.topic(u.DeviceID, string(u.Sensor)), true, []byte(u.State()))
}
