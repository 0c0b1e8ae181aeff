package hass

type Config struct {
	DiscoveryPrefix string `yaml:"discovery_prefix" envconfig:"HASS_DISCOVERY_PREFIX"`
	BaseTopic       string `yaml:"base_topic" envconfig:"HASS_BASE_TOPIC"`

	// The REST event bus is only used when both are set
	URL   string `yaml:"url" envconfig:"HASS_URL"`
	Token string `yaml:"token" envconfig:"HASS_TOKEN"`
}

func (c *Config) SetDefaults() {
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = "homeassistant"
	}
	if c.BaseTopic == "" {
		c.BaseTopic = "hue_tap_dial"
	}
}

func (c Config) BusEnabled() bool {
	return c.URL != "" && c.Token != ""
}

func (c Config) AvailabilityTopic() string {
	return c.BaseTopic + "/availability"
}
