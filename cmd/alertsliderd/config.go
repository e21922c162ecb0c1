package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for alertsliderd.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config. Flags override individual fields on top of the file.
type Config struct {
	Input       InputConfig       `yaml:"input"`
	Status      StatusConfig      `yaml:"status"`
	GPIO        GPIOConfig        `yaml:"gpio"`
	Platform    PlatformConfig    `yaml:"platform"`
	Preferences PreferencesConfig `yaml:"preferences"`
	Reconciler  ReconcilerSection `yaml:"reconciler"`
	IPC         IPCConfig         `yaml:"ipc"`
	HTTP        HTTPConfig        `yaml:"http"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type InputConfig struct {
	Devices []string `yaml:"devices"` // evdev nodes to read
	Sources []string `yaml:"sources"` // accepted kernel device names
	KeyCode int      `yaml:"key_code"` // 0 accepts any key code
}

type StatusConfig struct {
	Path     string `yaml:"path"`
	Watch    bool   `yaml:"watch"`
	SettleMS int    `yaml:"settle_ms"`
}

// GPIOConfig selects the hall-sensor backend instead of the status file.
type GPIOConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Chip       string `yaml:"chip"`
	TopLine    int    `yaml:"top_line"`
	BottomLine int    `yaml:"bottom_line"`
}

type PlatformConfig struct {
	WsURL           string `yaml:"ws_url"`
	TimeoutMS       int    `yaml:"timeout_ms"`
	ConnectAttempts int    `yaml:"connect_attempts"`
}

type PreferencesConfig struct {
	Backend string `yaml:"backend"` // "yaml" or "sqlite"
	Path    string `yaml:"path"`
}

type ReconcilerSection struct {
	RecheckDelayMS  int    `yaml:"recheck_delay_ms"`
	ZenPreserveRule string `yaml:"zen_preserve_rule"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Port int `yaml:"port"` // 0 disables the HTTP server
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

const (
	prefsBackendYAML   = "yaml"
	prefsBackendSQLite = "sqlite"
)

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Input: InputConfig{
			Devices: []string{defaultInputDev},
			Sources: append([]string(nil), defaultSliderSources...),
		},
		Status: StatusConfig{
			Path:     defaultStatusPath,
			SettleMS: 50,
		},
		GPIO: GPIOConfig{
			Chip:       "gpiochip0",
			TopLine:    -1,
			BottomLine: -1,
		},
		Platform: PlatformConfig{
			WsURL:           defaultPlatformWsURL,
			TimeoutMS:       defaultPlatformTimeoutMS,
			ConnectAttempts: 3,
		},
		Preferences: PreferencesConfig{
			Backend: prefsBackendYAML,
			Path:    "/var/lib/alertslider/preferences.yaml",
		},
		Reconciler: ReconcilerSection{
			RecheckDelayMS:  int(defaultRecheckDelay / time.Millisecond),
			ZenPreserveRule: string(ZenPreservePermissiveOnly),
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocket,
		},
		HTTP: HTTPConfig{
			Port: defaultHTTPPort,
		},
		MQTT: MQTTConfig{
			Topic:    defaultMQTTTopic,
			ClientID: "alertsliderd",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the
// defaults. Unknown fields and trailing documents are rejected.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}
	if err := dec.Decode(new(yaml.Node)); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds flag values that were explicitly set. A nil pointer
// means the flag was not given.
type FlagOverrides struct {
	StatusPath    *string
	PlatformWsURL *string
	PrefsBackend  *string
	PrefsPath     *string
	IPCSocketPath *string
	HTTPPort      *int
	LogLevel      *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.StatusPath != nil {
		cfg.Status.Path = *o.StatusPath
	}
	if o.PlatformWsURL != nil {
		cfg.Platform.WsURL = *o.PlatformWsURL
	}
	if o.PrefsBackend != nil {
		cfg.Preferences.Backend = *o.PrefsBackend
	}
	if o.PrefsPath != nil {
		cfg.Preferences.Path = *o.PrefsPath
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults, file and overrides are applied.
func (c *Config) Validate() error {
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}
	if len(c.Input.Devices) > 0 && len(c.Input.Sources) == 0 {
		return errors.New("input.sources must not be empty when input.devices is set")
	}
	if c.Input.KeyCode < 0 || c.Input.KeyCode > 0x2ff {
		return errors.New("input.key_code must be between 0 and 0x2ff")
	}

	if c.GPIO.Enabled {
		if c.GPIO.Chip == "" {
			return errors.New("gpio.enabled is true but gpio.chip is empty")
		}
		if c.GPIO.TopLine < 0 || c.GPIO.BottomLine < 0 {
			return errors.New("gpio.top_line and gpio.bottom_line must be set when gpio.enabled is true")
		}
		if c.GPIO.TopLine == c.GPIO.BottomLine {
			return errors.New("gpio.top_line and gpio.bottom_line must differ")
		}
	} else if c.Status.Path == "" {
		return errors.New("status.path must not be empty")
	}
	if c.Status.Watch && c.Status.SettleMS < 0 {
		return errors.New("status.settle_ms must be >= 0")
	}

	if c.Platform.WsURL == "" {
		return errors.New("platform.ws_url must not be empty")
	}
	if c.Platform.TimeoutMS <= 0 {
		return errors.New("platform.timeout_ms must be > 0")
	}
	if c.Platform.ConnectAttempts <= 0 {
		return errors.New("platform.connect_attempts must be > 0")
	}

	switch c.Preferences.Backend {
	case prefsBackendYAML, prefsBackendSQLite:
	default:
		return fmt.Errorf("preferences.backend must be %q or %q", prefsBackendYAML, prefsBackendSQLite)
	}
	if c.Preferences.Path == "" {
		return errors.New("preferences.path must not be empty")
	}

	if c.Reconciler.RecheckDelayMS <= 0 {
		return errors.New("reconciler.recheck_delay_ms must be > 0")
	}
	if !ZenPreserveRule(c.Reconciler.ZenPreserveRule).Valid() {
		return fmt.Errorf("reconciler.zen_preserve_rule must be %q or %q",
			ZenPreservePermissiveOnly, ZenPreserveAnyRelaxation)
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 0 and 65535")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.enabled is true but mqtt.broker is empty")
		}
		if c.MQTT.Topic == "" {
			return errors.New("mqtt.topic must not be empty")
		}
	}

	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	return nil
}

// ReconcilerConfig converts the file section into reconciler tunables.
func (c *Config) ReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		RecheckDelay: time.Duration(c.Reconciler.RecheckDelayMS) * time.Millisecond,
		ZenRule:      ZenPreserveRule(c.Reconciler.ZenPreserveRule),
	}
}

// KeyFilter builds the slider key filter. The status watcher's synthetic
// source is accepted when the watcher is on.
func (c *Config) KeyFilter() KeyFilter {
	sources := append([]string(nil), c.Input.Sources...)
	if c.Status.Watch {
		sources = append(sources, statusWatchSource)
	}
	return KeyFilter{Sources: sources, Code: uint16(c.Input.KeyCode)}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
