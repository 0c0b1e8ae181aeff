// Package mqtttest provides an in-memory paho.Client for tests
package mqtttest

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type Token struct {
	err error
}

func (t *Token) Wait() bool                     { return true }
func (t *Token) WaitTimeout(time.Duration) bool { return true }
func (t *Token) Error() error                   { return t.err }

func (t *Token) Done() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

type Message struct {
	topic    string
	payload  []byte
	retained bool
}

func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return 1 }
func (m *Message) Retained() bool    { return m.retained }
func (m *Message) Topic() string     { return m.topic }
func (m *Message) MessageID() uint16 { return 0 }
func (m *Message) Payload() []byte   { return m.payload }
func (m *Message) Ack()              {}

// Client records publishes and routes Deliver calls to subscribed handlers
type Client struct {
	mu sync.Mutex

	connected    bool
	subscribeErr error
	handlers     map[string]paho.MessageHandler
	published    []*Message
}

var _ paho.Client = (*Client)(nil)

func New() *Client {
	return &Client{connected: true, handlers: make(map[string]paho.MessageHandler)}
}

func (c *Client) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

// FailSubscribe makes every following Subscribe fail with err
func (c *Client) FailSubscribe(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeErr = err
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) IsConnectionOpen() bool {
	return c.IsConnected()
}

func (c *Client) Connect() paho.Token {
	c.SetConnected(true)
	return &Token{}
}

func (c *Client) Disconnect(uint) {
	c.SetConnected(false)
}

func (c *Client) Publish(topic string, _ byte, retained bool, payload interface{}) paho.Token {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	default:
		return &Token{err: fmt.Errorf("unknown payload type %T", payload)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, &Message{topic: topic, payload: b, retained: retained})
	return &Token{}
}

func (c *Client) Subscribe(topic string, _ byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscribeErr != nil {
		return &Token{err: c.subscribeErr}
	}
	c.handlers[topic] = callback
	return &Token{}
}

func (c *Client) SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token {
	for topic, qos := range filters {
		if t := c.Subscribe(topic, qos, callback); t.Error() != nil {
			return t
		}
	}
	return &Token{}
}

func (c *Client) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, topic := range topics {
		delete(c.handlers, topic)
	}
	return &Token{}
}

func (c *Client) AddRoute(topic string, callback paho.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
}

func (c *Client) OptionsReader() paho.ClientOptionsReader {
	return paho.ClientOptionsReader{}
}

// Subscriptions returns the currently subscribed topic filters, sorted
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var topics []string
	for topic := range c.handlers {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Deliver hands payload to every handler whose filter matches topic
func (c *Client) Deliver(topic string, payload []byte) int {
	c.mu.Lock()
	var handlers []paho.MessageHandler
	for filter, handler := range c.handlers {
		if Match(filter, topic) {
			handlers = append(handlers, handler)
		}
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(c, &Message{topic: topic, payload: payload})
	}
	return len(handlers)
}

// Published returns every message published to topic, oldest first
func (c *Client) Published(topic string) []paho.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	var msgs []paho.Message
	for _, m := range c.published {
		if m.topic == topic {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

// Last returns the most recent message published to topic, or nil
func (c *Client) Last(topic string) paho.Message {
	msgs := c.Published(topic)
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

// Topics returns every topic that has been published to, in order of first publish
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool)
	var topics []string
	for _, m := range c.published {
		if !seen[m.topic] {
			seen[m.topic] = true
			topics = append(topics, m.topic)
		}
	}
	return topics
}

// Match reports whether an MQTT topic filter matches topic
func Match(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")

	for i, part := range f {
		switch {
		case part == "#":
			return true
		case i >= len(t):
			return false
		case part != "+" && part != t[i]:
			return false
		}
	}

	return len(f) == len(t)
}
