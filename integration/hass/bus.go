package hass

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tapdial/tapdial"

	"github.com/go-resty/resty/v2"
)

var ErrRequestFailed = errors.New("home assistant request failed")

const apiRunning = "API running."

// Bus fires events on the Home Assistant event bus through the REST API
type Bus struct {
	client *resty.Client
}

func NewBus(config Config) *Bus {
	return &Bus{
		client: resty.New().
			SetBaseURL(config.URL).
			SetAuthToken(config.Token).
			SetTimeout(10 * time.Second),
	}
}

func (b *Bus) FireEvent(ctx context.Context, e tapdial.Event) error {
	resp, err := b.client.R().
		SetContext(ctx).
		SetPathParam("event_type", string(e.Type)).
		SetBody(e).
		Post("/api/events/{event_type}")
	if err != nil {
		return err
	}

	if resp.IsError() {
		return fmt.Errorf("%w: fire %s: %s", ErrRequestFailed, e.Type, resp.Status())
	}

	return nil
}

// Ping checks that the API is reachable and the token is accepted
func (b *Bus) Ping(ctx context.Context) error {
	var result struct {
		Message string `json:"message"`
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/api/")
	if err != nil {
		return err
	}

	if resp.IsError() {
		return fmt.Errorf("%w: %s", ErrRequestFailed, resp.Status())
	}
	if result.Message != apiRunning {
		return fmt.Errorf("%w: unexpected response %q", ErrRequestFailed, result.Message)
	}

	return nil
}
