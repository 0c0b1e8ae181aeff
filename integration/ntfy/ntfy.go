package ntfy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"tapdial/tapdial"

	"github.com/go-resty/resty/v2"
)

var (
	ErrPublishFailed = errors.New("ntfy publish failed")
	ErrInvalidTopic  = errors.New("invalid ntfy topic")
)

// Topic names the ntfy server accepts
var topicPattern = regexp.MustCompile(`^[-_A-Za-z0-9]{1,64}$`)

type Config struct {
	Server string `yaml:"server" envconfig:"NTFY_SERVER"`
	Topic  string `yaml:"topic" envconfig:"NTFY_TOPIC"`
}

func (c *Config) SetDefaults() {
	if c.Server == "" {
		c.Server = "https://ntfy.sh"
	}
}

// Notify sends a notice whenever a firmware update becomes available for a device
type Notify struct {
	topic  string
	client *resty.Client

	mu        sync.Mutex
	available map[string]bool
	latest    map[string]string
}

func New(config Config) (*Notify, error) {
	config.SetDefaults()

	if !topicPattern.MatchString(config.Topic) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, config.Topic)
	}

	return &Notify{
		topic:     config.Topic,
		client:    resty.New().SetBaseURL(config.Server).SetTimeout(10 * time.Second),
		available: make(map[string]bool),
		latest:    make(map[string]string),
	}, nil
}

// UpdateSensor only acts on update_available going from false (or unknown) to true
func (n *Notify) UpdateSensor(ctx context.Context, u tapdial.SensorUpdate) error {
	n.mu.Lock()
	switch u.Sensor {
	case tapdial.SensorLatestVersion:
		n.latest[u.DeviceID] = u.State()
		n.mu.Unlock()
		return nil

	case tapdial.SensorUpdateAvailable:
		available, _ := u.Value.(bool)
		was := n.available[u.DeviceID]
		n.available[u.DeviceID] = available
		latest := n.latest[u.DeviceID]
		n.mu.Unlock()

		if !available || was {
			return nil
		}
		return n.publish(ctx, u.DeviceID, latest)

	default:
		n.mu.Unlock()
		return nil
	}
}

func (n *Notify) publish(ctx context.Context, deviceID string, latest string) error {
	message := fmt.Sprintf("A firmware update is available for %s", deviceID)
	if latest != "" {
		message = fmt.Sprintf("Firmware %s is available for %s", latest, deviceID)
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Title", "Hue Tap Dial").
		SetHeader("Tags", "arrow_up").
		SetHeader("Priority", "2").
		SetBody(message).
		SetPathParam("topic", n.topic).
		Post("/{topic}")
	if err != nil {
		return err
	}

	if resp.IsError() {
		return fmt.Errorf("%w: %s", ErrPublishFailed, resp.Status())
	}

	slog.Info("Sent update notice", "device", deviceID, "version", latest)

	return nil
}
