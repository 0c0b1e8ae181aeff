package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tapdial/api"
	"tapdial/config"
	"tapdial/home"
	"tapdial/integration/hass"
	"tapdial/integration/mqtt"
	"tapdial/integration/ntfy"
	"tapdial/integration/zigbee"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	path, ok := os.LookupEnv("CONFIG_FILE")
	if !ok {
		path = config.DefaultPath
	}

	cfg, err := config.Get(path)
	if err != nil {
		slog.Error("Failed to load config", "path", path, "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		h         *home.Home
		publisher *hass.Publisher
		discovery *zigbee.Discovery
	)

	// Runs in its own goroutine after every (re)connect
	onConnect := func(paho.Client) {
		slog.Info("Connected to broker", "host", cfg.MQTT.Host)

		if err := publisher.Online(); err != nil {
			slog.Error("Failed to publish availability", "error", err)
		}
		if err := discovery.Start(); err != nil {
			slog.Error("Failed to start discovery", "error", err)
		}
		h.Resubscribe()
	}

	// MQTT
	client := mqtt.New(cfg.MQTT,
		mqtt.WithWill(cfg.Hass.AvailabilityTopic(), "offline"),
		mqtt.WithOnConnect(onConnect),
	)

	publisher = hass.NewPublisher(client, cfg.Hass)

	events := api.NewEvents()
	eventSinks := []home.EventSink{publisher, events}
	sensorSinks := []home.SensorSink{publisher}

	// Home Assistant event bus
	if cfg.Hass.BusEnabled() {
		bus := hass.NewBus(cfg.Hass)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := bus.Ping(pingCtx); err != nil {
			slog.Warn("Home Assistant API is not reachable", "url", cfg.Hass.URL, "error", err)
		}
		cancel()

		eventSinks = append(eventSinks, bus)
	}

	// ntfy.sh
	if cfg.Ntfy.Topic != "" {
		notify, err := ntfy.New(cfg.Ntfy)
		if err != nil {
			slog.Error("Failed to set up ntfy", "error", err)
			os.Exit(1)
		}
		sensorSinks = append(sensorSinks, notify)
	}

	onDiscovered := func(info zigbee.Info) {
		h.OnDiscovered(info)
	}
	if cfg.Discovery.Disabled {
		onDiscovered = nil
	}
	discovery = zigbee.NewDiscovery(client, cfg.Zigbee.Prefix, cfg.Discovery.Match, onDiscovered)

	h = home.New(client,
		home.WithPrefix(cfg.Zigbee.Prefix),
		home.WithCatalog(discovery),
		home.WithAnnouncer(publisher),
		home.WithEventSinks(eventSinks...),
		home.WithSensorSinks(sensorSinks...),
		home.WithAutoAdd(cfg.Discovery.AutoAdd),
	)

	if err := mqtt.Connect(client, cfg.MQTT.ConnectTimeout); err != nil {
		slog.Error("Failed to connect to broker", "host", cfg.MQTT.Host, "port", cfg.MQTT.Port, "error", err)
		os.Exit(1)
	}

	go h.Run(ctx)

	awaitCtx, cancel := context.WithTimeout(ctx, cfg.Discovery.Timeout)
	if err := discovery.AwaitDevices(awaitCtx); err != nil {
		slog.Warn("No device list from zigbee2mqtt yet, validated devices will fail to add", "error", err)
	}
	cancel()

	for _, entry := range cfg.Devices {
		if _, err := h.AddDevice(ctx, entry); err != nil {
			slog.Error("Failed to add configured device", "device", entry.ID, "error", err)
		}
	}

	srv := http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: api.New(h, events).Handler(),
	}

	go func() {
		slog.Info("Starting server", "addr", cfg.HTTP.Addr, "pid", os.Getpid())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	events.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Failed to stop server", "error", err)
	}

	h.Shutdown()
	discovery.Stop()
	if err := publisher.Offline(); err != nil {
		slog.Warn("Failed to publish availability", "error", err)
	}
	mqtt.Delete(client)
}
