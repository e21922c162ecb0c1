package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Preference keys shared with the settings UI.
const (
	prefSliderTop               = "slider_top"
	prefSliderMiddle            = "slider_middle"
	prefSliderBottom            = "slider_bottom"
	prefMuteMediaOnSilent       = "mute_media_on_silent"
	prefShowTransientNotif      = "show_transient_notification"
	prefPreserveZenOnExitSilent = "preserve_zen_on_exit_silent"
	prefLastMediaLevelPercent   = "last_media_level_percent"
	prefUserSetupComplete       = "user_setup_complete"
)

const defaultMediaLevelPercent = 50

// ErrSetupIncomplete means the one-time user setup flag is not set yet.
var ErrSetupIncomplete = errors.New("user setup not complete")

// ErrCorruptPreferences is wrapped by stores whose backing data could not be
// decoded at all.
var ErrCorruptPreferences = errors.New("corrupt preference store")

// corruptWarnInterval bounds how often an undecodable store is logged.
const corruptWarnInterval = time.Minute

// KVStore is a flat string key/value preference store.
// Load returns every stored value; it is called once per event so that
// changes made between events are always seen.
type KVStore interface {
	Load() (map[string]string, error)
	Set(key, value string) error
	Close() error
}

// Preferences decodes typed values out of a KVStore, applying the documented
// defaults for missing or corrupt entries.
type Preferences struct {
	kv     KVStore
	logger *slog.Logger
	now    func() time.Time

	mu            sync.Mutex
	lastCorruptAt time.Time
}

// NewPreferences wraps kv.
func NewPreferences(kv KVStore, logger *slog.Logger) *Preferences {
	return &Preferences{kv: kv, logger: logger, now: time.Now}
}

// load reads every stored value. An undecodable store reads as empty so
// that each key falls back to its default.
func (p *Preferences) load() (map[string]string, error) {
	vals, err := p.kv.Load()
	if errors.Is(err, ErrCorruptPreferences) {
		p.warnCorrupt(err)
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	return vals, nil
}

func (p *Preferences) warnCorrupt(err error) {
	p.mu.Lock()
	now := p.now()
	due := p.lastCorruptAt.IsZero() || now.Sub(p.lastCorruptAt) >= corruptWarnInterval
	if due {
		p.lastCorruptAt = now
	}
	p.mu.Unlock()

	if due {
		p.logger.Warn("preference store unreadable, using defaults", "error", err)
	}
}

// Settings reads the slider configuration for one event.
func (p *Preferences) Settings() (Settings, error) {
	vals, err := p.load()
	if err != nil {
		return Settings{}, err
	}

	s := Settings{PositionModes: make(map[SliderPosition]string, 3)}
	for pos, key := range map[SliderPosition]string{
		PositionTop:    prefSliderTop,
		PositionMiddle: prefSliderMiddle,
		PositionBottom: prefSliderBottom,
	} {
		if v, ok := vals[key]; ok {
			s.PositionModes[pos] = v
		}
	}

	s.MuteMediaOnSilent = p.boolValue(vals, prefMuteMediaOnSilent, false)
	s.ShowTransientNotification = p.boolValue(vals, prefShowTransientNotif, true)
	s.PreserveZenOnExitSilent = p.boolValue(vals, prefPreserveZenOnExitSilent, false)
	return s, nil
}

// SetupComplete reports the user setup gate.
func (p *Preferences) SetupComplete() (bool, error) {
	vals, err := p.load()
	if err != nil {
		return false, err
	}
	return p.boolValue(vals, prefUserSetupComplete, false), nil
}

// MediaLevelPercent returns the stored media level, defaulting to 50.
func (p *Preferences) MediaLevelPercent() (int, error) {
	vals, err := p.load()
	if err != nil {
		return 0, err
	}
	raw, ok := vals[prefLastMediaLevelPercent]
	if !ok {
		return defaultMediaLevelPercent, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.logger.Warn("corrupt preference, using default", "key", prefLastMediaLevelPercent, "value", raw)
		return defaultMediaLevelPercent, nil
	}
	return clampPercent(n), nil
}

// SetMediaLevelPercent stores percent (clamped to [0,100]).
func (p *Preferences) SetMediaLevelPercent(percent int) error {
	if err := p.kv.Set(prefLastMediaLevelPercent, strconv.Itoa(clampPercent(percent))); err != nil {
		return fmt.Errorf("store %s: %w", prefLastMediaLevelPercent, err)
	}
	return nil
}

func (p *Preferences) boolValue(vals map[string]string, key string, def bool) bool {
	raw, ok := vals[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		p.logger.Warn("corrupt preference, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return b
}
