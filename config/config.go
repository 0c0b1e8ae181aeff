package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"tapdial/home"
	"tapdial/integration/hass"
	"tapdial/integration/mqtt"
	"tapdial/integration/ntfy"
	"tapdial/integration/zigbee"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yml"

type Config struct {
	MQTT mqtt.Config `yaml:"mqtt"`

	Zigbee struct {
		Prefix string `yaml:"prefix" envconfig:"ZIGBEE2MQTT_PREFIX"`
	} `yaml:"zigbee"`

	Hass hass.Config `yaml:"hass"`
	Ntfy ntfy.Config `yaml:"ntfy"`

	HTTP struct {
		Addr string `yaml:"addr" envconfig:"HTTP_ADDR"`
	} `yaml:"http"`

	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	Discovery struct {
		Disabled bool          `yaml:"disabled" envconfig:"DISCOVERY_DISABLED"`
		AutoAdd  bool          `yaml:"auto_add" envconfig:"DISCOVERY_AUTO_ADD"`
		Match    string        `yaml:"match" envconfig:"DISCOVERY_MATCH"`
		Timeout  time.Duration `yaml:"timeout" envconfig:"DISCOVERY_TIMEOUT"`
	} `yaml:"discovery"`

	Devices []home.Entry `yaml:"devices" ignored:"true"`
}

func (c *Config) SetDefaults() {
	c.MQTT.SetDefaults()
	c.Hass.SetDefaults()
	c.Ntfy.SetDefaults()

	if c.Zigbee.Prefix == "" {
		c.Zigbee.Prefix = zigbee.DefaultPrefix
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8090"
	}
	if c.Discovery.Match == "" {
		c.Discovery.Match = "tap_dial"
	}
	if c.Discovery.Timeout == 0 {
		c.Discovery.Timeout = 10 * time.Second
	}
}

// Level is the configured log level, anything unknown is info
func (c Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Get reads the yaml file at path and then applies the environment on top.
// A missing file is not an error, everything can come from the environment.
func Get(path string) (Config, error) {
	var cfg Config

	// First load the config from the yaml file
	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("open config file: %w", err)
	default:
		defer f.Close()

		// An empty file decodes to io.EOF
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Then load values from environment
	// This can be used to either override the config or pass in secrets
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("parse environment config: %w", err)
	}

	cfg.SetDefaults()

	return cfg, nil
}
