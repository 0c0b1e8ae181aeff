package hass

// Device groups the entities of a single Tap Dial in Home Assistant
type Device struct {
	Identifiers   []string `json:"identifiers"`
	Name          string   `json:"name"`
	Manufacturer  string   `json:"manufacturer,omitempty"`
	Model         string   `json:"model,omitempty"`
	SWVersion     string   `json:"sw_version,omitempty"`
	SuggestedArea string   `json:"suggested_area,omitempty"`
}

// Entity is the discovery config of an event, sensor or binary_sensor entity
type Entity struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	ObjectID          string   `json:"object_id"`
	StateTopic        string   `json:"state_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	DeviceClass       string   `json:"device_class,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	EntityCategory    string   `json:"entity_category,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	Icon              string   `json:"icon,omitempty"`
	EventTypes        []string `json:"event_types,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	Device            Device   `json:"device"`
}

// Trigger is the discovery config of a device trigger
type Trigger struct {
	AutomationType string `json:"automation_type"`
	Type           string `json:"type"`
	Subtype        string `json:"subtype"`
	Payload        string `json:"payload"`
	Topic          string `json:"topic"`
	Device         Device `json:"device"`
}

type sensorConfig struct {
	component      string
	name           string
	deviceClass    string
	stateClass     string
	entityCategory string
	unit           string
	icon           string
}
