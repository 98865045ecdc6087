// Command irrigation-controller drives a four-mode pump controller from GPIO
// buttons, with an HTTP control page and MQTT events.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/sweeney/irrigation-controller/internal/command"
	"github.com/sweeney/irrigation-controller/internal/config"
	"github.com/sweeney/irrigation-controller/internal/display"
	"github.com/sweeney/irrigation-controller/internal/gpio"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/metrics"
	"github.com/sweeney/irrigation-controller/internal/mqtt"
	"github.com/sweeney/irrigation-controller/internal/network"
	"github.com/sweeney/irrigation-controller/internal/schedule"
	"github.com/sweeney/irrigation-controller/internal/status"
	"github.com/sweeney/irrigation-controller/internal/store"
	"github.com/sweeney/irrigation-controller/internal/web"
)

func main() {
	configPath := flag.String("config", "/etc/irrigation-controller/config.yaml", "YAML config file")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config)")
	heartbeat := flag.Duration("heartbeat", 0, "Heartbeat interval (overrides config)")
	noHTTP := flag.Bool("no-http", false, "Disable the HTTP server")
	printState := flag.Bool("print-state", false, "Print button levels and stored volumes, then exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "broker":
			cfg.MQTT.Broker = *broker
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "heartbeat":
			cfg.MQTT.Heartbeat = *heartbeat
		}
	})
	if *noHTTP {
		cfg.HTTP.Addr = ""
	}

	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config, printState bool) error {
	settings := cfg.Settings()

	// Initialize GPIO
	reader, err := gpio.NewRealReader(cfg.Buttons.Pins)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	// Initialize persistent volumes
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	eeprom, err := store.OpenEEPROM(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer eeprom.Close()
	volumes := store.NewVolumeStore(eeprom, settings.MinVolume, settings.MaxVolume).
		WithDefaults(settings.DefaultVolumes())

	if printState {
		return printCurrentState(reader, volumes)
	}

	relay, err := gpio.NewRealRelay(cfg.Relay.Pin, cfg.Relay.ActiveLow)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	defer relay.Close()

	// Display: in-memory buffer for the status page, mirrored to the LCD
	buffer := display.NewBuffer()
	var surface display.Surface = buffer
	if cfg.LCD.Enabled {
		lcd, err := display.OpenLCD(cfg.LCD.Bus, cfg.LCD.Addr)
		if err != nil {
			log.Printf("display: lcd unavailable: %v", err)
		} else {
			defer lcd.Close()
			surface = display.Tee{buffer, lcd}
		}
	}

	core := logic.NewCore(settings, logic.Deps{
		Persistence: volumes,
		Display:     display.NewScreen(surface),
		Actuator:    relay,
		Sleep:       time.Sleep,
	})
	if err := core.LoadError(); err != nil {
		log.Printf("store: load volumes: %v (using defaults)", err)
	}

	queue := command.NewQueue(command.DefaultCapacity)

	// Initialize MQTT
	var publisher mqttClient = offlinePublisher{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTTOptions(), func(cmd logic.Command) {
			if err := queue.TrySubmit(cmd); err != nil {
				log.Printf("mqtt: command %s dropped: %v", cmd.Kind, err)
			}
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher = p
	}
	defer publisher.Close()

	sched, err := schedule.New(cfg.Entries(), queue)
	if err != nil {
		return fmt.Errorf("init schedule: %w", err)
	}

	collector := metrics.New()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:      cfg.Loop.Tick.Milliseconds(),
		DebounceMs:  settings.Debounce.Milliseconds(),
		LongPressMs: settings.LongPress.Milliseconds(),
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		MinMl:       settings.MinVolume,
		MaxMl:       settings.MaxVolume,
		IncrementMl: settings.Increment,
		FlowMlPerS:  settings.FlowRateMlPerS,
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		WSBroker:    cfg.WSBroker(),
		Schedules:   sched.Describe(),
	})
	if info := network.ReadInfo(); info != nil {
		tracker.SetNetwork(info)
	}
	tracker.Update(core.State(time.Now()), buffer.Lines())

	var reconnector network.Reconnector
	if rc := cfg.Network.ReconnectCommand; len(rc) > 0 {
		reconnector = network.CommandReconnector{Name: rc[0], Args: rc[1:]}
	}
	manager := network.NewManager(network.InterfaceProbe{}, reconnector, cfg.Network.ProbeInterval, cfg.Network.ReconnectInterval)

	var server serverControl
	if cfg.HTTP.Addr != "" {
		ws := &webServer{
			addr: cfg.HTTP.Addr,
			newServer: func() *web.Server {
				return web.New(cfg.HTTP.Addr, tracker, queue, collector.Handler())
			},
		}
		server = ws
		defer func() {
			ws.Stop()
			ws.Wait()
		}()
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.SystemStartup,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.SystemStartup, ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	sched.Start()
	defer sched.Stop()

	notify := func(state string) {
		if _, err := daemon.SdNotify(false, state); err != nil {
			log.Printf("systemd: notify %q: %v", state, err)
		}
	}
	var watchdog time.Duration
	if cfg.Watchdog.Enabled {
		if d, err := daemon.SdWatchdogEnabled(false); err == nil {
			watchdog = d
		}
	}
	notify(daemon.SdNotifyReady)

	log.Printf("started: tick=%v debounce=%v long_press=%v flow=%vml/s broker=%q heartbeat=%v schedules=%d",
		cfg.Loop.Tick, settings.Debounce, settings.LongPress, settings.FlowRateMlPerS, cfg.MQTT.Broker, cfg.MQTT.Heartbeat, sched.Len())

	ticker := time.NewTicker(cfg.Loop.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := &loop{
		core:       core,
		reader:     reader,
		queue:      queue,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		lines:      buffer,
		metrics:    collector,
		network:    manager,
		server:     server,
		heartbeat:  cfg.MQTT.Heartbeat,
		watchdog:   watchdog,
		notify:     notify,
	}
	return runLoop(l, time.Now, ticker.C, sigCh)
}

// mqttClient is what run needs from the broker connection.
type mqttClient interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
}

// offlinePublisher stands in when no broker is configured.
type offlinePublisher struct{}

func (offlinePublisher) Publish(logic.Event) error            { return nil }
func (offlinePublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (offlinePublisher) Close() error                         { return nil }
func (offlinePublisher) IsConnected() bool                    { return false }

// serverControl starts and stops the HTTP server on connectivity edges.
type serverControl interface {
	Start()
	Stop()
}

// webServer runs a fresh web.Server for every start; an http.Server cannot
// be reused after Shutdown.
type webServer struct {
	addr      string
	newServer func() *web.Server
	srv       *web.Server
	stopping  sync.WaitGroup
}

func (w *webServer) Start() {
	if w.srv != nil {
		return
	}
	srv := w.newServer()
	w.srv = srv
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()
	log.Printf("http status server listening on %s", w.addr)
}

// Stop shuts the server down in the background. Open control requests
// wait on the loop, so the loop must not wait on them.
func (w *webServer) Stop() {
	if w.srv == nil {
		return
	}
	srv := w.srv
	w.srv = nil
	w.stopping.Add(1)
	go func() {
		defer w.stopping.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
		log.Printf("http status server stopped")
	}()
}

// Wait blocks until every background shutdown has returned.
func (w *webServer) Wait() {
	w.stopping.Wait()
}

// lineSource provides the text currently shown on the display.
type lineSource interface {
	Lines() [display.Rows]string
}

// loop holds everything the poll loop drives. Optional collaborators
// (tracker, lines, metrics, network, server, notify) may be nil.
type loop struct {
	core       *logic.Core
	reader     gpio.Reader
	queue      *command.Queue
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	lines      lineSource
	metrics    *metrics.Collector
	network    *network.Manager
	server     serverControl
	heartbeat  time.Duration
	watchdog   time.Duration
	notify     func(state string)
}

func runLoop(l *loop, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	lastHeartbeat := startTime
	lastWatchdog := startTime

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			return l.shutdown(now(), signalName(s))

		case <-tick:
			t := now()

			var events []logic.Event
			levels, err := l.reader.Read()
			if err != nil {
				log.Printf("gpio read error: %v", err)
				events = l.core.TickTimer(t)
			} else if len(levels) != logic.NumButtons {
				log.Printf("gpio read error: got %d levels, want %d", len(levels), logic.NumButtons)
				events = l.core.TickTimer(t)
			} else {
				in := logic.Input{Time: t}
				copy(in.Pressed[:], levels)
				events = l.core.Tick(in)
			}

			if l.network != nil {
				switch l.network.Step(t) {
				case network.ActionStartServer:
					log.Printf("network: online")
					if l.server != nil {
						l.server.Start()
					}
				case network.ActionStopServer:
					log.Printf("network: offline")
					if l.server != nil {
						l.server.Stop()
					}
				}
			}

			events = append(events, l.queue.Drain(func(cmd logic.Command) []logic.Event {
				return l.core.Apply(cmd, t)
			})...)

			for _, event := range events {
				logEvent(event)
				if err := l.publisher.Publish(event); err != nil {
					log.Printf("publish error: %v", err)
					// Don't crash on publish failure
				}
			}

			l.refresh(t, events)

			if l.heartbeat > 0 && t.Sub(lastHeartbeat) >= l.heartbeat {
				lastHeartbeat = t
				l.sendHeartbeat(t)
			}

			if l.watchdog > 0 && l.notify != nil && t.Sub(lastWatchdog) >= l.watchdog/2 {
				lastWatchdog = t
				l.notify(daemon.SdNotifyWatchdog)
			}
		}
	}
}

// refresh publishes the tick's state to the status tracker and metrics.
func (l *loop) refresh(t time.Time, events []logic.Event) {
	state := l.core.State(t)
	connected := l.mqttStatus != nil && l.mqttStatus.IsConnected()
	online := l.network == nil || l.network.Online()

	if l.metrics != nil {
		l.metrics.Observe(events)
		l.metrics.ObserveState(state, connected, online)
	}
	if l.tracker != nil {
		var lines [display.Rows]string
		if l.lines != nil {
			lines = l.lines.Lines()
		}
		l.tracker.Update(state, lines)
		l.tracker.SetMQTTConnected(connected)
		l.tracker.SetOnline(online)
	}
}

func (l *loop) sendHeartbeat(t time.Time) {
	state := l.core.State(t)
	log.Printf("heartbeat: presses=%d pump_runs=%d saves=%d save_errors=%d",
		state.Counts.Presses, state.Counts.PumpRuns, state.Counts.Saves, state.Counts.SaveErrors)

	event := mqtt.SystemEvent{
		Timestamp: t,
		Event:     mqtt.SystemHeartbeat,
	}
	if l.tracker != nil {
		// Refresh network info for heartbeat
		if info := network.ReadInfo(); info != nil {
			l.tracker.SetNetwork(info)
		}
		event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), mqtt.SystemHeartbeat, "")
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

// shutdown switches the pump off and announces the shutdown.
func (l *loop) shutdown(t time.Time, reason string) error {
	if l.notify != nil {
		l.notify(daemon.SdNotifyStopping)
	}
	if err := l.core.Shutdown(); err != nil {
		log.Printf("shutdown: %v", err)
	}

	event := mqtt.SystemEvent{
		Timestamp: t,
		Event:     mqtt.SystemShutdown,
		Reason:    reason,
		Retained:  true,
	}
	if l.tracker != nil {
		l.refresh(t, nil)
		event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), mqtt.SystemShutdown, reason)
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
	return nil
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

func logEvent(e logic.Event) {
	switch {
	case e.Err != nil:
		log.Printf("event: %s (mode=%d): %v", e.Type, e.Mode.Number(), e.Err)
	case e.Type == logic.EventButtonPress:
		log.Printf("event: %s (button=%s press=%s held=%v)", e.Type, e.Button, e.Press, e.Duration)
	case e.Mode != logic.ModeNone:
		log.Printf("event: %s (mode=%d volume=%dml)", e.Type, e.Mode.Number(), e.VolumeMl)
	default:
		log.Printf("event: %s", e.Type)
	}
}

func printCurrentState(reader gpio.Reader, volumes *store.VolumeStore) error {
	levels, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	for i, pressed := range levels {
		fmt.Printf("%s: %s\n", logic.ButtonID(i), pressString(pressed))
	}

	vols, err := volumes.LoadVolumes()
	if err != nil {
		return fmt.Errorf("load volumes: %w", err)
	}
	for m := logic.Mode1; m < logic.NumModes; m++ {
		fmt.Printf("%s: %d ml\n", m, vols[m])
	}
	return nil
}

func pressString(pressed bool) string {
	if pressed {
		return "PRESSED"
	}
	return "RELEASED"
}
