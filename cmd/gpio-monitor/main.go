// Command gpio-monitor watches GPIO inputs, debounces them and publishes
// their state changes over HTTP and MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/gpio-monitor/internal/config"
	"github.com/sweeney/gpio-monitor/internal/discovery"
	"github.com/sweeney/gpio-monitor/internal/gpio"
	"github.com/sweeney/gpio-monitor/internal/monitor"
	"github.com/sweeney/gpio-monitor/internal/mqtt"
	"github.com/sweeney/gpio-monitor/internal/status"
	"github.com/sweeney/gpio-monitor/internal/storage"
	"github.com/sweeney/gpio-monitor/internal/web"
)

const defaultConfigPath = "/etc/gpio-monitor.yaml"

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := run(cfg, f.printPins); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// flags holds the command line. Only flags that were given override the
// config file.
type flags struct {
	config    string
	httpAddr  string
	board     string
	driver    string
	debounce  time.Duration
	poll      time.Duration
	storage   string
	broker    string
	heartbeat time.Duration
	printPins bool

	set map[string]bool
}

func parseFlags(args []string) (*flags, error) {
	d := config.Defaults()
	f := &flags{set: make(map[string]bool)}

	fs := flag.NewFlagSet("gpio-monitor", flag.ContinueOnError)
	fs.StringVar(&f.config, "config", defaultConfigPath, "YAML configuration file")
	fs.StringVar(&f.httpAddr, "http", d.HTTPAddr, "HTTP listen address (empty to disable)")
	fs.StringVar(&f.board, "board", d.Board, `Pin map: "rpi" or "esp32"`)
	fs.StringVar(&f.driver, "driver", d.Driver, `GPIO driver: "gpiocdev" or "periph"`)
	fs.DurationVar(&f.debounce, "debounce", d.Debounce, "Debounce window (0 to disable)")
	fs.DurationVar(&f.poll, "poll", d.PollInterval, "Interval between full pin polls")
	fs.StringVar(&f.storage, "storage", d.StoragePath, "Pin list file (empty to disable persistence)")
	fs.StringVar(&f.broker, "broker", d.MQTT.Broker, "MQTT broker address (empty to disable)")
	fs.DurationVar(&f.heartbeat, "heartbeat", d.Heartbeat, "Heartbeat interval (0 to disable)")
	fs.BoolVar(&f.printPins, "print-pins", false, "Print the watched pins and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

func (f *flags) apply(cfg *config.Config) {
	if f.set["http"] {
		cfg.HTTPAddr = f.httpAddr
	}
	if f.set["board"] {
		cfg.Board = f.board
	}
	if f.set["driver"] {
		cfg.Driver = f.driver
	}
	if f.set["debounce"] {
		cfg.Debounce = f.debounce
	}
	if f.set["poll"] {
		cfg.PollInterval = f.poll
	}
	if f.set["storage"] {
		cfg.StoragePath = f.storage
	}
	if f.set["broker"] {
		cfg.MQTT.Broker = f.broker
	}
	if f.set["heartbeat"] {
		cfg.Heartbeat = f.heartbeat
	}
}

func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}
	f.apply(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.Config, printPins bool) error {
	board, err := gpio.LookupBoard(cfg.Board)
	if err != nil {
		return err
	}
	hw, err := gpio.Open(cfg.Driver, cfg.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer hw.Close()

	var store *storage.File
	if cfg.StoragePath != "" {
		store = storage.New(cfg.StoragePath)
	}

	// Print mode reads the pins without edge callbacks and never writes.
	if printPins {
		m := monitor.New(hw, board, monitor.WithDebounce(cfg.Debounce), monitor.WithInterrupts(false))
		loadPins(m, store, cfg.Pins)
		printPinTable(os.Stdout, m.Snapshot())
		return nil
	}

	m := monitor.New(hw, board, monitor.WithDebounce(cfg.Debounce), monitor.WithInterrupts(cfg.Interrupts))
	if store != nil {
		m.SetPersister(store)
	}
	loadPins(m, store, cfg.Pins)

	// Initialize MQTT
	var publisher interface {
		mqtt.Publisher
		mqtt.ConnectionStatus
	} = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			BufferSize:  cfg.MQTT.BufferSize,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher = p
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      cfg.PollInterval.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Board:       cfg.Board,
		Driver:      cfg.Driver,
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTPAddr,
		StoragePath: cfg.StoragePath,
	}, m)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.SetMQTTConnected(publisher.IsConnected())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, m, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http server listening on %s", cfg.HTTPAddr)

		if cfg.MDNS {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go advertise(ctx, cfg)
		}
	}

	log.Printf("started: board=%s driver=%s pins=%d debounce=%v poll=%v broker=%s heartbeat=%v",
		cfg.Board, cfg.Driver, len(m.Snapshot()), cfg.Debounce, cfg.PollInterval, cfg.MQTT.Broker, cfg.Heartbeat)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	var beat <-chan time.Time
	if cfg.Heartbeat > 0 {
		hb := time.NewTicker(cfg.Heartbeat)
		defer hb.Stop()
		beat = hb.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(m, publisher, publisher, tracker, time.Now, ticker.C, beat, sigCh)
}

// loadPins restores the pin list from storage. Only when there is no
// storage file yet are the pins from the config file registered.
func loadPins(m *monitor.Monitor, store *storage.File, seeds []config.PinConfig) {
	if store != nil {
		err := store.LoadInto(m)
		switch {
		case err == nil:
			log.Printf("storage: loaded %d pins from %s", len(m.Snapshot()), store.Path())
			return
		case !errors.Is(err, storage.ErrNotFound):
			log.Printf("storage: load %s: %v", store.Path(), err)
			return
		}
		log.Printf("storage: %s does not exist yet", store.Path())
	}

	for _, p := range seeds {
		pull, err := p.Pull()
		if err != nil {
			log.Printf("config: pin %d: %v", p.Pin, err)
			continue
		}
		if err := m.Register(p.Pin, p.Name, pull); err != nil {
			log.Printf("config: register pin %d: %v", p.Pin, err)
		}
	}
}

func advertise(ctx context.Context, cfg *config.Config) {
	port, err := discovery.Port(cfg.HTTPAddr)
	if err != nil {
		log.Printf("mdns: %v", err)
		return
	}
	instance := cfg.Hostname
	if instance == "" {
		if instance, err = os.Hostname(); err != nil {
			instance = "gpio-monitor"
		}
	}
	meta := map[string]string{"path": "/index.html", "board": cfg.Board}
	if err := discovery.Advertise(ctx, instance, port, meta); err != nil {
		log.Printf("mdns: %v", err)
	}
}

func runLoop(m *monitor.Monitor, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, poll, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	report := func(changes []monitor.Change) {
		for _, c := range changes {
			log.Printf("change: pin %d (%s) %s changes=%d", c.Pin, c.Label, status.Level(c.State), c.Changes)
			if err := publisher.Publish(c); err != nil {
				log.Printf("publish error: %v", err)
				// Don't crash on publish failure
			}
			if tracker != nil {
				tracker.RecordChange(c)
			}
		}
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			report(m.DrainEdges())
			if err := m.Flush(true); err != nil {
				log.Printf("storage: final write: %v", err)
			}

			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-m.EdgeReady():
			report(m.DrainEdges())

		case <-m.TimerC():
			report(m.Sweep())

		case <-poll:
			changes, err := m.Poll()
			if err != nil {
				log.Printf("gpio poll error: %v", err)
			}
			report(changes)
			if err := m.Flush(false); err != nil {
				log.Printf("storage: %v", err)
			}
			if tracker != nil && mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

		case <-heartbeat:
			hbEvent := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				log.Printf("heartbeat: uptime=%v pins=%d commits=%d", snap.Uptime().Truncate(time.Second), len(snap.Pins), snap.Commits)
				hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

func printPinTable(w io.Writer, pins []monitor.Pin) {
	if len(pins) == 0 {
		fmt.Fprintln(w, "no pins are watched")
		return
	}
	for _, p := range pins {
		fmt.Fprintf(w, "pin %2d  %-32s  %-9s  %-4s  changes=%d\n", p.ID, p.Label, p.Pull, status.Level(p.State), p.Changes)
	}
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
