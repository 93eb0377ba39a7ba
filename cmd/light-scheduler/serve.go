package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sweeney/light-scheduler/internal/clock"
	"github.com/sweeney/light-scheduler/internal/config"
	"github.com/sweeney/light-scheduler/internal/control"
	"github.com/sweeney/light-scheduler/internal/gpio"
	"github.com/sweeney/light-scheduler/internal/light"
	"github.com/sweeney/light-scheduler/internal/mqtt"
	"github.com/sweeney/light-scheduler/internal/ota"
	"github.com/sweeney/light-scheduler/internal/scheduler"
	"github.com/sweeney/light-scheduler/internal/status"
	"github.com/sweeney/light-scheduler/internal/store"
	"github.com/sweeney/light-scheduler/internal/web"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		return serve(cfg, sigCh)
	},
}

// openStore opens the configured schedule store.
func openStore(path string) (store.Store, error) {
	if path == ":memory:" {
		log.Warn().Msg("using in-memory schedule store, schedule will not survive restarts")
		return store.NewMemory(), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	return store.OpenSQLite(path)
}

func serve(cfg *config.Config, sig <-chan os.Signal) error {
	loc, err := clock.LoadLocation(cfg.Clock.Timezone)
	if err != nil {
		return err
	}

	db, err := openStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	pin, err := gpio.NewRealWriter(cfg.GPIO.Chip, cfg.GPIO.Line, cfg.GPIO.ActiveLow)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer pin.Close()

	var ln net.Listener
	if cfg.HTTP.Addr != "" {
		ln, err = net.Listen("tcp", cfg.HTTP.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var clk clock.Clock = clock.NewSystem(loc)
	if cfg.Clock.NTPServer != "" {
		ntpClock := clock.NewNTP(cfg.Clock.NTPServer, loc)
		go ntpClock.Run(ctx, cfg.Clock.NTPInterval.Duration())
		clk = ntpClock
	}

	bootID := uuid.NewString()
	publisher, conn := newPublisher(cfg, bootID)

	tracker := status.NewTracker(time.Now(), bootID, status.Config{
		HTTPAddr:     cfg.HTTP.Addr,
		Database:     cfg.Database.Path,
		GPIOChip:     cfg.GPIO.Chip,
		GPIOLine:     cfg.GPIO.Line,
		Timezone:     loc.String(),
		NTPServer:    cfg.Clock.NTPServer,
		TickOffsetMs: cfg.Scheduler.TickOffset.Duration().Milliseconds(),
		HeartbeatMs:  cfg.Scheduler.Heartbeat.Duration().Milliseconds(),
		Broker:       cfg.MQTT.Broker,
		TopicPrefix:  cfg.MQTT.TopicPrefix,
	})
	if ni := readNetworkInfo(); ni != nil {
		tracker.SetNetwork(ni)
	}

	publishLifecycle(publisher, conn, tracker, "STARTUP", "")

	lamp := light.New()
	svc := control.New(control.Config{
		Light:     lamp,
		Store:     db,
		Clock:     clk,
		Publisher: publisher,
		Recorder:  tracker,
	})

	if ln != nil {
		var updater web.Updater
		if cfg.OTA.Enabled {
			updater = ota.NewTrigger(ota.SelfUpdater{}, ota.ExecRestarter{
				Before: func(reason string) {
					publishLifecycle(publisher, conn, tracker, "RESTART", reason)
					publisher.Close()
				},
			})
		}
		srv := web.New(cfg.HTTP.Addr, svc, updater, tracker)
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			srv.Shutdown(sctx)
		}()
		log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")
	}

	loop := scheduler.New(scheduler.Config{
		Light:     lamp,
		Store:     db,
		Clock:     clk,
		Pin:       pin,
		Publisher: publisher,
		MQTT:      conn,
		Tracker:   tracker,
		Heartbeat: cfg.Scheduler.Heartbeat.Duration(),
		Network:   readNetworkInfo,
	})

	log.Info().
		Str("boot_id", bootID).
		Str("tz", loc.String()).
		Str("ntp", cfg.Clock.NTPServer).
		Str("broker", cfg.MQTT.Broker).
		Int("line", cfg.GPIO.Line).
		Dur("heartbeat", cfg.Scheduler.Heartbeat.Duration()).
		Msg("started")

	reason := make(chan string, 1)
	go func() {
		select {
		case s := <-sig:
			log.Info().Str("signal", s.String()).Msg("shutting down")
			reason <- signalName(s)
			cancel()
		case <-ctx.Done():
		}
	}()

	err = loop.Run(ctx, scheduler.Ticks(ctx, clk, cfg.Scheduler.TickOffset.Duration()))

	r := "UNKNOWN"
	select {
	case r = <-reason:
	default:
	}
	publishLifecycle(publisher, conn, tracker, "SHUTDOWN", r)
	publisher.Close()
	return err
}

func newPublisher(cfg *config.Config, bootID string) (mqtt.Publisher, mqtt.ConnectionStatus) {
	if cfg.MQTT.Broker == "" {
		log.Info().Msg("mqtt disabled")
		d := mqtt.Discard{}
		return d, d
	}
	// Client IDs are unique per boot.
	clientID := cfg.MQTT.ClientID + "-" + bootID[:8]
	p := mqtt.NewRealPublisher(cfg.MQTT.Broker, clientID, cfg.MQTT.TopicPrefix)
	return p, p
}

// publishLifecycle publishes a retained system event carrying a status snapshot.
func publishLifecycle(pub mqtt.Publisher, conn mqtt.ConnectionStatus, tracker *status.Tracker, event, reason string) {
	tracker.SetMQTTConnected(conn.IsConnected())
	snap := tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := pub.PublishSystem(ev); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	log.Info().Str("event", event).Msg("published system event")
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
