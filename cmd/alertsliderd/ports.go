package main

import (
	"errors"
	"time"
)

// The reconciler drives three platform-owned states through these ports.
// PlatformClient implements all three against the platform bridge; tests
// substitute fakes.

// AudioService owns ringer mode and the media stream volume.
type AudioService interface {
	RingerMode() (RingerMode, error)
	SetRingerMode(mode RingerMode) error

	// Media volume is an absolute index in [0, MediaMaxVolume()].
	MediaVolume() (int, error)
	MediaMaxVolume() (int, error)
	SetMediaVolume(index int) error
}

// NotificationPolicy owns the zen mode.
type NotificationPolicy interface {
	ZenMode() (ZenMode, error)
	// SetZenMode sets mode with no condition; tag identifies the caller.
	SetZenMode(mode ZenMode, tag string) error
}

// Haptics plays vibration effects.
type Haptics interface {
	HasVibrator() bool
	Vibrate(pattern HapticPattern) error
}

// SliderUpdate describes an applied slider position.
type SliderUpdate struct {
	Position SliderPosition
	Mode     LogicalMode
	At       time.Time
}

// Notifier receives applied slider updates (transient on-screen indicator,
// MQTT, logs). Implementations must not block.
type Notifier interface {
	SliderUpdated(u SliderUpdate)
}

// ErrPlatform wraps failures reported by the platform bridge.
var ErrPlatform = errors.New("platform call failed")

// MultiNotifier fans an update out to several sinks.
type MultiNotifier []Notifier

// SliderUpdated forwards u to every sink.
func (m MultiNotifier) SliderUpdated(u SliderUpdate) {
	for _, n := range m {
		if n != nil {
			n.SliderUpdated(u)
		}
	}
}
