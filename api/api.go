package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tapdial/device"
	"tapdial/home"
	"tapdial/integration/zigbee"
	"tapdial/tapdial"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/r3labs/sse/v2"
)

const eventStream = "events"

type Home interface {
	AddDevice(ctx context.Context, entry home.Entry) (*zigbee.TapDial, error)
	RemoveDevice(id device.InternalName) error
	Device(id device.InternalName) (zigbee.Status, error)
	Devices() []zigbee.Status
	Discovered() []zigbee.Info
	Confirm(ctx context.Context, id device.InternalName, name string) (*zigbee.TapDial, error)
}

// Events streams every emitted event to SSE clients
type Events struct {
	server *sse.Server
}

func NewEvents() *Events {
	server := sse.New()
	server.AutoReplay = false
	server.CreateStream(eventStream)

	return &Events{server: server}
}

func (e *Events) FireEvent(_ context.Context, event tapdial.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	e.server.Publish(eventStream, &sse.Event{
		ID:    []byte(uuid.New().String()),
		Event: []byte(event.Type),
		Data:  data,
	})

	return nil
}

func (e *Events) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("stream") == "" {
		q.Set("stream", eventStream)
		r.URL.RawQuery = q.Encode()
	}

	e.server.ServeHTTP(w, r)
}

// Close disconnects every client
func (e *Events) Close() {
	e.server.Close()
}

// Server is the local HTTP API
type Server struct {
	home   Home
	router *mux.Router
}

func New(h Home, events *Events) *Server {
	s := &Server{home: h, router: mux.NewRouter()}

	s.router.HandleFunc("/devices", s.listDevices).Methods(http.MethodGet)
	s.router.HandleFunc("/devices", s.addDevice).Methods(http.MethodPost)
	s.router.HandleFunc("/devices/{id:.+}", s.getDevice).Methods(http.MethodGet)
	s.router.HandleFunc("/devices/{id:.+}", s.removeDevice).Methods(http.MethodDelete)
	s.router.HandleFunc("/discovered", s.listDiscovered).Methods(http.MethodGet)
	s.router.HandleFunc("/discovered/confirm", s.confirm).Methods(http.MethodPost)
	s.router.Handle("/events", events).Methods(http.MethodGet)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, home.ErrInvalidEntry):
		status = http.StatusBadRequest
	case errors.Is(err, home.ErrAlreadyConfigured):
		status = http.StatusConflict
	case errors.Is(err, home.ErrUnknownDevice), errors.Is(err, home.ErrNotConfigured), errors.Is(err, home.ErrNotDiscovered):
		status = http.StatusNotFound
	case errors.Is(err, home.ErrMQTTUnavailable), errors.Is(err, home.ErrCannotConnect):
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) listDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.home.Devices())
}

func (s *Server) addDevice(w http.ResponseWriter, r *http.Request) {
	var entry home.Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	d, err := s.home.AddDevice(r.Context(), entry)
	if err != nil {
		slog.Warn("Failed to add device", "device", entry.ID, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, d.Status())
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	status, err := s.home.Device(device.InternalName(mux.Vars(r)["id"]))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) removeDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.home.RemoveDevice(device.InternalName(mux.Vars(r)["id"])); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listDiscovered(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.home.Discovered())
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ID   device.InternalName `json:"device_id"`
		Name string              `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "device_id is required"})
		return
	}

	d, err := s.home.Confirm(r.Context(), request.ID, request.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, d.Status())
}
