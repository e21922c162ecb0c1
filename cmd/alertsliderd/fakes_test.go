package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// callLog records platform writes across every fake so tests can assert
// ordering between ports.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

var errFake = errors.New("fake failure")

// fakeAudio implements AudioService.
type fakeAudio struct {
	log *callLog

	ringer    RingerMode
	volume    int
	maxVolume int

	setRingerErr error
	setVolumeErr error
	getRingerErr error
}

func (a *fakeAudio) RingerMode() (RingerMode, error) {
	if a.getRingerErr != nil {
		return 0, a.getRingerErr
	}
	return a.ringer, nil
}

func (a *fakeAudio) SetRingerMode(m RingerMode) error {
	if a.setRingerErr != nil {
		return a.setRingerErr
	}
	a.log.add("ringer=%s", m)
	a.ringer = m
	return nil
}

func (a *fakeAudio) MediaVolume() (int, error)    { return a.volume, nil }
func (a *fakeAudio) MediaMaxVolume() (int, error) { return a.maxVolume, nil }

func (a *fakeAudio) SetMediaVolume(i int) error {
	if a.setVolumeErr != nil {
		return a.setVolumeErr
	}
	a.log.add("volume=%d", i)
	a.volume = i
	return nil
}

// fakeZen implements NotificationPolicy.
type fakeZen struct {
	log *callLog

	mode   ZenMode
	tags   []string
	setErr error
}

func (z *fakeZen) ZenMode() (ZenMode, error) { return z.mode, nil }

func (z *fakeZen) SetZenMode(m ZenMode, tag string) error {
	if z.setErr != nil {
		return z.setErr
	}
	z.log.add("zen=%s", m)
	z.mode = m
	z.tags = append(z.tags, tag)
	return nil
}

// fakeHaptics implements Haptics.
type fakeHaptics struct {
	log *callLog

	present bool
	err     error
}

func (h *fakeHaptics) HasVibrator() bool { return h.present }

func (h *fakeHaptics) Vibrate(p HapticPattern) error {
	if h.err != nil {
		return h.err
	}
	h.log.add("haptic=%s", p)
	return nil
}

// recordingNotifier implements Notifier.
type recordingNotifier struct {
	mu      sync.Mutex
	updates []SliderUpdate
}

func (n *recordingNotifier) SliderUpdated(u SliderUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, u)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.updates)
}

// memKV is an in-memory KVStore.
type memKV struct {
	mu      sync.Mutex
	vals    map[string]string
	loadErr error
	setErr  error
}

func newMemKV(vals map[string]string) *memKV {
	m := &memKV{vals: map[string]string{}}
	for k, v := range vals {
		m.vals[k] = v
	}
	return m
}

func (m *memKV) Load() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(map[string]string, len(m.vals))
	for k, v := range m.vals {
		out[k] = v
	}
	return out, nil
}

func (m *memKV) Set(k, v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.vals[k] = v
	return nil
}

func (m *memKV) get(k string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[k]
	return v, ok
}

func (m *memKV) Close() error { return nil }

// fakeReader implements PositionReader.
type fakeReader struct {
	pos   SliderPosition
	err   error
	reads int
}

func (r *fakeReader) Read() (SliderPosition, error) {
	r.reads++
	return r.pos, r.err
}

// manualTimer is a stopper whose callback the test fires by hand.
type manualTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (m *manualTimer) Stop() bool {
	was := !m.stopped
	m.stopped = true
	return was
}

// manualClock replaces time.AfterFunc in a Debouncer.
type manualClock struct {
	timers []*manualTimer
}

func (c *manualClock) afterFunc(d time.Duration, f func()) stopper {
	t := &manualTimer{delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// live returns timers that were not stopped.
func (c *manualClock) live() []*manualTimer {
	var out []*manualTimer
	for _, t := range c.timers {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

// harness is a reconciler with fakes on every port.
type harness struct {
	log      *callLog
	audio    *fakeAudio
	zen      *fakeZen
	haptics  *fakeHaptics
	notifier *recordingNotifier
	kv       *memKV
	prefs    *Preferences
	clock    *manualClock
	posted   []Event
	debounce *Debouncer
	state    *ReconcilerState
	rec      *Reconciler
}

func newHarness(t *testing.T, cfg ReconcilerConfig) *harness {
	t.Helper()
	h := &harness{log: &callLog{}, clock: &manualClock{}}
	h.audio = &fakeAudio{log: h.log, ringer: RingerNormal, volume: 7, maxVolume: 15}
	h.zen = &fakeZen{log: h.log, mode: ZenOff}
	h.haptics = &fakeHaptics{log: h.log, present: true}
	h.notifier = &recordingNotifier{}
	h.kv = newMemKV(map[string]string{prefUserSetupComplete: "true"})
	h.prefs = NewPreferences(h.kv, discardLogger())

	h.debounce = NewDebouncer(func(ev Event) { h.posted = append(h.posted, ev) })
	h.debounce.afterFunc = h.clock.afterFunc

	h.state = NewReconcilerState()
	h.rec = NewReconciler(cfg, h.state, ReconcilerDeps{
		Audio:    h.audio,
		Zen:      h.zen,
		Haptics:  h.haptics,
		Notifier: h.notifier,
		Volume:   NewVolumeMemory(h.prefs),
		Debounce: h.debounce,
	}, discardLogger())
	return h
}

// apply runs one transition with the given settings.
func (h *harness) apply(t *testing.T, mode LogicalMode, s Settings) error {
	t.Helper()
	return h.rec.Apply(SliderChange{Position: PositionMiddle, Mode: mode, Settings: s})
}

// fireLive fires every live timer, delivering RecheckDue to the reconciler
// the way the daemon loop would.
func (h *harness) fireLive(t *testing.T) {
	t.Helper()
	for _, tm := range h.clock.live() {
		tm.stopped = true
		tm.fn()
	}
	posted := h.posted
	h.posted = nil
	for _, ev := range posted {
		due, ok := ev.(RecheckDue)
		if !ok {
			t.Fatalf("unexpected posted event %T", ev)
		}
		if err := h.rec.HandleRecheck(due.Token); err != nil {
			t.Fatalf("HandleRecheck: %v", err)
		}
	}
}
