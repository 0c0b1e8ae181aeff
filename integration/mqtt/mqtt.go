package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

var ErrUnavailable = errors.New("mqtt broker not available")

// This is the default message handler, it just logs the topic and message
var defaultHandler paho.MessageHandler = func(client paho.Client, msg paho.Message) {
	slog.Debug("Unhandled message", "topic", msg.Topic(), "payload", string(msg.Payload()))
}

type Option func(*paho.ClientOptions)

// WithWill publishes payload retained on topic when the connection drops unexpectedly
func WithWill(topic, payload string) Option {
	return func(opts *paho.ClientOptions) {
		opts.SetWill(topic, payload, 1, true)
	}
}

// WithOnConnect runs handler after every (re)connect
func WithOnConnect(handler func(paho.Client)) Option {
	return func(opts *paho.ClientOptions) {
		opts.SetOnConnectHandler(handler)
	}
}

// New creates the client, Connect has to be called before it can be used
func New(config Config, options ...Option) paho.Client {
	config.SetDefaults()

	opts := paho.NewClientOptions().AddBroker(fmt.Sprintf("tcp://%s:%s", config.Host, config.Port))
	opts.SetClientID(config.ClientID)
	opts.SetDefaultPublishHandler(defaultHandler)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetConnectTimeout(config.ConnectTimeout)
	// Let the broker keep our subscriptions across reconnects, the handlers stay registered in paho's router
	opts.SetCleanSession(false)
	opts.SetResumeSubs(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		slog.Warn("Lost connection to broker", "error", err)
	})

	for _, option := range options {
		option(opts)
	}

	return paho.NewClient(opts)
}

// Connect waits up to timeout for the first connection, paho keeps retrying in the background afterwards
func Connect(client paho.Client, timeout time.Duration) error {
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: no connection after %s", ErrUnavailable, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

func Delete(m paho.Client) {
	m.Disconnect(250)
}

func wait(token paho.Token) error {
	token.Wait()
	return token.Error()
}

func Publish(client paho.Client, topic string, retained bool, payload []byte) error {
	return wait(client.Publish(topic, 1, retained, payload))
}

func Unsubscribe(client paho.Client, topics ...string) error {
	return wait(client.Unsubscribe(topics...))
}

// Probe checks that the broker accepts a subscription on topic without keeping it
func Probe(client paho.Client, topic string) error {
	if err := wait(client.Subscribe(topic, 1, func(paho.Client, paho.Message) {})); err != nil {
		return err
	}

	return Unsubscribe(client, topic)
}

// On subscribes to topic and decodes every message as JSON into M.
// Empty payloads clear retained messages and are skipped.
func On[M any](client paho.Client, topic string, onMessage func(topic string, message M)) error {
	var handler paho.MessageHandler = func(c paho.Client, m paho.Message) {
		if len(m.Payload()) == 0 {
			return
		}

		var message M
		if err := json.Unmarshal(m.Payload(), &message); err != nil {
			slog.Warn("Failed to decode message", "topic", m.Topic(), "error", err)
			return
		}

		if onMessage != nil {
			onMessage(m.Topic(), message)
		}
	}

	return wait(client.Subscribe(topic, 1, handler))
}
