package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("alertsliderd v%s\n", version)
	fmt.Println("Alert slider daemon: maps a three-position switch to ringer, zen and haptics")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  alertsliderd [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Listens for alert slider key events, reads the slider position and")
	fmt.Println("  drives ringer mode, zen mode and haptic feedback through the platform")
	fmt.Println("  bridge according to the user's position-to-mode preferences.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file (flags override values from the file)")
	fmt.Println()
	fmt.Println("  -status-path string")
	fmt.Printf("        Slider status file (default %q)\n", defaultStatusPath)
	fmt.Println()
	fmt.Println("  -platform-ws-url string")
	fmt.Printf("        Platform bridge websocket URL (default %q)\n", defaultPlatformWsURL)
	fmt.Println()
	fmt.Println("  -prefs-backend string")
	fmt.Println("        Preference store: yaml|sqlite (default \"yaml\")")
	fmt.Println()
	fmt.Println("  -prefs-path string")
	fmt.Println("        Preference store file")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultIPCSocket)
	fmt.Println()
	fmt.Println("  -http-port int")
	fmt.Printf("        HTTP port for /ws, /metrics and /healthz; 0 disables (default %d)\n", defaultHTTPPort)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  alertsliderd -config /etc/alertslider/config.yaml")
	fmt.Println("  alertsliderd -status-path /tmp/tri_state -log-level debug")
	fmt.Println()
}

func main() {
	var (
		configPath    = flag.String("config", "", "YAML config file")
		statusPath    = flag.String("status-path", defaultStatusPath, "Slider status file")
		platformWsURL = flag.String("platform-ws-url", defaultPlatformWsURL, "Platform bridge websocket URL")
		prefsBackend  = flag.String("prefs-backend", prefsBackendYAML, "Preference store: yaml|sqlite")
		prefsPath     = flag.String("prefs-path", "", "Preference store file")
		ipcSocketPath = flag.String("ipc-socket", defaultIPCSocket, "Unix domain socket path for IPC")
		httpPort      = flag.Int("http-port", defaultHTTPPort, "HTTP port; 0 disables")
		logLevelStr   = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion   = flag.Bool("version", false, "Print version and exit")
		showHelp      = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "status-path":
			o.StatusPath = statusPath
		case "platform-ws-url":
			o.PlatformWsURL = platformWsURL
		case "prefs-backend":
			o.PrefsBackend = prefsBackend
		case "prefs-path":
			o.PrefsPath = prefsPath
		case "ipc-socket":
			o.IPCSocketPath = ipcSocketPath
		case "http-port":
			o.HTTPPort = httpPort
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid config:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(os.Stdout, logLevel)

	logger.Debug("starting alertsliderd", "version", version)
	logger.Debug("configuration",
		"input_devices", cfg.Input.Devices,
		"input_sources", cfg.Input.Sources,
		"status_path", cfg.Status.Path,
		"status_watch", cfg.Status.Watch,
		"gpio_enabled", cfg.GPIO.Enabled,
		"platform_ws_url", cfg.Platform.WsURL,
		"prefs_backend", cfg.Preferences.Backend,
		"prefs_path", cfg.Preferences.Path,
		"recheck_delay_ms", cfg.Reconciler.RecheckDelayMS,
		"zen_preserve_rule", cfg.Reconciler.ZenPreserveRule,
		"ipc_socket", cfg.IPC.SocketPath,
		"http_port", cfg.HTTP.Port,
		"mqtt_enabled", cfg.MQTT.Enabled,
		"log_level", logLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("alertsliderd exiting", "error", err)
		os.Exit(1)
	}
	logger.Info("alertsliderd stopped")
}

// run wires every component and blocks until ctx is canceled or a
// supervised goroutine fails.
func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	kv, err := openPreferenceStore(cfg.Preferences)
	if err != nil {
		return err
	}
	defer kv.Close()
	prefs := NewPreferences(kv, logger)

	reader, closeReader, err := openPositionReader(cfg)
	if err != nil {
		return err
	}
	defer closeReader()

	platform, err := NewPlatformClient(
		cfg.Platform.WsURL,
		time.Duration(cfg.Platform.TimeoutMS)*time.Millisecond,
		cfg.Platform.ConnectAttempts,
		logger,
	)
	if err != nil {
		return err
	}
	defer platform.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := NewMetrics(reg)

	// Open everything that can fail before the first goroutine starts; past
	// this point run only returns through g.Wait.
	var pub mqttPublisher
	if cfg.MQTT.Enabled {
		p, err := newPahoPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		pub = p
	}

	var (
		files   []*os.File
		sources []string
	)
	if len(cfg.Input.Devices) > 0 {
		files, sources, err = openInputDevices(cfg.Input.Devices, logger)
		if err != nil {
			if pub != nil {
				pub.Close()
			}
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	events := make(chan Event, 64)
	post := poster(gctx, events)

	notifiers := MultiNotifier{logNotifier{logger: logger}}

	if cfg.HTTP.Port > 0 {
		hub := NewHub(logger, HubConfig{})
		wsNotifier := NewWSNotifier(logger)
		notifiers = append(notifiers, wsNotifier)

		mux := newHTTPMux(NewStateServer(logger, hub, events), reg)
		addr := fmt.Sprintf(":%d", cfg.HTTP.Port)

		g.Go(func() error { hub.Run(gctx); return nil })
		g.Go(func() error { RunBroadcaster(gctx, hub, wsNotifier, logger); return nil })
		g.Go(func() error { return runHTTPServer(gctx, addr, mux, logger) })
	}

	if pub != nil {
		mqttNotifier := NewMQTTNotifier(pub, cfg.MQTT.Topic, logger)
		notifiers = append(notifiers, mqttNotifier)
		g.Go(func() error { mqttNotifier.Run(gctx); return nil })
	}

	rec := NewReconciler(cfg.ReconcilerConfig(), NewReconcilerState(), ReconcilerDeps{
		Audio:    platform,
		Zen:      platform,
		Haptics:  platform,
		Notifier: notifiers,
		Volume:   NewVolumeMemory(prefs),
		Debounce: NewDebouncer(post),
		Metrics:  metrics,
	}, logger)
	handler := NewKeyHandler(cfg.KeyFilter(), reader, prefs, rec, metrics, logger)

	g.Go(func() error {
		runDaemon(gctx, events, handler, rec, logger)
		return nil
	})
	g.Go(func() error { return runIPCServer(gctx, cfg.IPC.SocketPath, events, logger) })

	if cfg.Status.Watch {
		w := NewStatusWatcher(cfg.Status.Path, time.Duration(cfg.Status.SettleMS)*time.Millisecond, post, logger)
		g.Go(func() error { return w.Run(gctx) })
	}

	if len(files) > 0 {
		g.Go(func() error { return runInput(gctx, files, sources, post, logger) })
	}

	return g.Wait()
}

func openPreferenceStore(cfg PreferencesConfig) (KVStore, error) {
	switch cfg.Backend {
	case prefsBackendSQLite:
		return NewSQLiteStore(cfg.Path)
	default:
		return NewYAMLStore(cfg.Path), nil
	}
}

func openPositionReader(cfg Config) (PositionReader, func() error, error) {
	if cfg.GPIO.Enabled {
		r, err := NewGPIOReader(cfg.GPIO.Chip, cfg.GPIO.TopLine, cfg.GPIO.BottomLine)
		if err != nil {
			return nil, nil, fmt.Errorf("open gpio position reader: %w", err)
		}
		return r, r.Close, nil
	}
	return NewFileReader(cfg.Status.Path), func() error { return nil }, nil
}

func openInputDevices(paths []string, logger *slog.Logger) ([]*os.File, []string, error) {
	files := make([]*os.File, 0, len(paths))
	sources := make([]string, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			for _, opened := range files {
				opened.Close()
			}
			return nil, nil, fmt.Errorf("open input device %s: %w", p, err)
		}
		name := deviceName(p)
		logger.Info("reading input device", "device", p, "name", name)
		files = append(files, f)
		sources = append(sources, name)
	}
	return files, sources, nil
}

// runInput reads the input devices until ctx is canceled or a read fails.
func runInput(ctx context.Context, files []*os.File, sources []string, post func(Event), logger *slog.Logger) error {
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	raw := make(chan deviceEvent, 64)
	readErr := make(chan error, 1)
	if len(files) == 1 {
		go readInputEvents(files[0], sources[0], raw, readErr, ctx.Done())
	} else {
		go readInputEventsEpoll(files, sources, raw, readErr, ctx.Done())
	}
	go pumpKeyEvents(ctx, raw, post)

	select {
	case <-ctx.Done():
		logger.Debug("input reader stopping")
		return nil
	case err := <-readErr:
		return fmt.Errorf("input read: %w", err)
	}
}
