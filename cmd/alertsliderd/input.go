package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// KeyPhase is the action phase of a key event.
type KeyPhase int

const (
	KeyPhaseDown KeyPhase = iota
	KeyPhaseUp
	KeyPhaseRepeat
)

func (p KeyPhase) String() string {
	switch p {
	case KeyPhaseDown:
		return "down"
	case KeyPhaseUp:
		return "up"
	case KeyPhaseRepeat:
		return "repeat"
	default:
		return "unknown"
	}
}

// KeyEvent is a decoded key event tagged with the device it came from.
type KeyEvent struct {
	Source string
	Code   uint16
	Phase  KeyPhase
	At     time.Time
}

// deviceEvent couples a raw event with the source name of its device.
type deviceEvent struct {
	source string
	ev     inputEvent
}

// toKeyEvent converts a raw evdev event into a KeyEvent.
// Returns false for anything that is not EV_KEY.
func toKeyEvent(source string, ev inputEvent) (KeyEvent, bool) {
	if ev.Type != EV_KEY {
		return KeyEvent{}, false
	}

	var phase KeyPhase
	switch ev.Value {
	case evValueRelease:
		phase = KeyPhaseUp
	case evValuePress:
		phase = KeyPhaseDown
	case evValueRepeat:
		phase = KeyPhaseRepeat
	default:
		return KeyEvent{}, false
	}

	return KeyEvent{
		Source: source,
		Code:   ev.Code,
		Phase:  phase,
		At:     time.Unix(ev.Sec, ev.Usec*1000),
	}, true
}

// sysfsInputRoot is overridden in tests.
var sysfsInputRoot = "/sys/class/input"

// deviceName returns the kernel name of an evdev node
// (/sys/class/input/eventN/device/name). Falls back to the path itself.
func deviceName(devPath string) string {
	b, err := os.ReadFile(filepath.Join(sysfsInputRoot, filepath.Base(devPath), "device", "name"))
	if err != nil {
		return devPath
	}
	name := strings.TrimSpace(string(b))
	if name == "" {
		return devPath
	}
	return name
}

// readInputEvents reads input events from a file descriptor and sends them to a channel
// This runs in a dedicated goroutine and blocks on read operations. It returns
// once done is closed and the pending send or read gives up.
func readInputEvents(f *os.File, source string, events chan<- deviceEvent, readErr chan<- error, done <-chan struct{}) {
	evSize := binary.Size(inputEvent{})
	buf := make([]byte, evSize)
	reader := bytes.NewReader(buf) // Reusable reader, reset on each iteration

	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			sendReadErr(readErr, err, done)
			return
		}

		reader.Reset(buf)
		var ev inputEvent
		if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
			// Skip malformed events
			continue
		}

		select {
		case events <- deviceEvent{source: source, ev: ev}:
		case <-done:
			return
		}
	}
}

func sendReadErr(readErr chan<- error, err error, done <-chan struct{}) {
	select {
	case readErr <- err:
	case <-done:
	}
}

// pumpKeyEvents decodes raw device events and posts the key events to the
// daemon loop until ctx is canceled or raw is closed.
func pumpKeyEvents(ctx context.Context, raw <-chan deviceEvent, post func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case de, ok := <-raw:
			if !ok {
				return
			}
			if ke, ok := toKeyEvent(de.source, de.ev); ok {
				post(KeyInput{Key: ke})
			}
		}
	}
}
