package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapdial/device"
	"tapdial/home"
	"tapdial/integration/mqtt/mqtttest"
	"tapdial/integration/zigbee"
	"tapdial/tapdial"
)

type catalog map[device.InternalName]zigbee.Info

func (c catalog) Lookup(id device.InternalName) (zigbee.Info, bool) {
	info, ok := c[id]
	return info, ok
}

var known = catalog{
	"living_room/tap_dial": {IEEEAddress: "0x01", FriendlyName: "living_room/tap_dial", ModelID: "RDM002"},
	"hallway_tap_dial":     {IEEEAddress: "0x02", FriendlyName: "hallway_tap_dial", ModelID: "RDM002"},
}

func newServer(t *testing.T) (*httptest.Server, *home.Home, *mqtttest.Client, *Events) {
	client := mqtttest.New()
	events := NewEvents()
	h := home.New(client, home.WithCatalog(known), home.WithEventSinks(events))

	srv := httptest.NewServer(New(h, events).Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(events.Close)

	return srv, h, client, events
}

func do(t *testing.T, method string, url string, body string) *http.Response {
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func TestAddDevice(t *testing.T) {
	srv, _, client, _ := newServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/devices", `{"device_id": "living_room/tap_dial", "name": "Couch dial"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var status zigbee.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "Couch dial", status.Name)
	assert.True(t, status.Subscribed)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"missing id", `{"name": "dial"}`, http.StatusBadRequest},
		{"duplicate", `{"device_id": "living_room/tap_dial"}`, http.StatusConflict},
		{"unknown", `{"device_id": "kitchen/tap_dial"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, srv.URL+"/devices", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	client.SetConnected(false)
	resp = do(t, http.MethodPost, srv.URL+"/devices", `{"device_id": "hallway_tap_dial"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestDevices(t *testing.T) {
	srv, h, _, _ := newServer(t)

	_, err := h.AddDevice(context.Background(), home.Entry{ID: "living_room/tap_dial"})
	require.NoError(t, err)

	resp := do(t, http.MethodGet, srv.URL+"/devices", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var statuses []zigbee.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&statuses))
	assert.Len(t, statuses, 1)

	resp = do(t, http.MethodGet, srv.URL+"/devices/living_room/tap_dial", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var status zigbee.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "Living Room", status.Room)

	resp = do(t, http.MethodDelete, srv.URL+"/devices/living_room/tap_dial", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/devices/living_room/tap_dial", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodDelete, srv.URL+"/devices/living_room/tap_dial", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDiscovered(t *testing.T) {
	srv, h, _, _ := newServer(t)

	h.OnDiscovered(known["hallway_tap_dial"])

	resp := do(t, http.MethodGet, srv.URL+"/discovered", "")
	var infos []zigbee.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "hallway_tap_dial", infos[0].FriendlyName.String())

	resp = do(t, http.MethodPost, srv.URL+"/discovered/confirm", `{"device_id": "kitchen_tap_dial"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/discovered/confirm", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/discovered/confirm", `{"device_id": "hallway_tap_dial", "name": "Hallway"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Empty(t, h.Discovered())
}

func TestEventStream(t *testing.T) {
	srv, _, _, events := newServer(t)

	client := sse.NewClient(srv.URL + "/events")
	received := make(chan *sse.Event)
	require.NoError(t, client.SubscribeChanRaw(received))
	defer client.Unsubscribe(received)

	e := tapdial.Event{Type: tapdial.EventButton, DeviceID: "tap_dial", Action: "button_3_hold", Button: 3, EventType: tapdial.Hold}
	require.NoError(t, events.FireEvent(context.Background(), e))

	select {
	case msg := <-received:
		assert.Equal(t, "hue_tap_dial_button", string(msg.Event))
		assert.NotEmpty(t, msg.ID)

		var got tapdial.Event
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "button_3_hold", got.Action)
		assert.Equal(t, 3, got.Button)

	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}
