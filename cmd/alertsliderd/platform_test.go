package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBridge is a platform bridge that answers from a small state table
// and records every raw request.
type fakeBridge struct {
	mu       sync.Mutex
	requests []string
	ringer   string
	zen      string
	volume   int
	vibrator bool
	fail     map[string]string // command -> result to report instead of Ok
	silent   bool              // never reply
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{ringer: "normal", zen: "off", volume: 5, vibrator: true, fail: map[string]string{}}
}

func (b *fakeBridge) serve(t *testing.T) *httptest.Server {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			reply, ok := b.handle(msg)
			if !ok {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (b *fakeBridge) handle(msg []byte) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, string(msg))
	if b.silent {
		return nil, false
	}

	var cmd string
	var arg json.RawMessage
	if err := json.Unmarshal(msg, &cmd); err != nil {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			return nil, false
		}
		for k, v := range m {
			cmd, arg = k, v
		}
	}

	var value any
	switch cmd {
	case "GetRingerMode":
		value = b.ringer
	case "SetRingerMode":
		_ = json.Unmarshal(arg, &b.ringer)
	case "GetZenMode":
		value = b.zen
	case "SetZenMode":
		var z zenArg
		_ = json.Unmarshal(arg, &z)
		b.zen = z.Mode
	case "GetStreamVolume":
		value = b.volume
	case "GetStreamMaxVolume":
		value = 15
	case "SetStreamVolume":
		var s streamArg
		_ = json.Unmarshal(arg, &s)
		if s.Index != nil {
			b.volume = *s.Index
		}
	case "HasVibrator":
		value = b.vibrator
	case "Vibrate":
	}

	result := "Ok"
	if r, ok := b.fail[cmd]; ok {
		result = r
	}
	out, _ := json.Marshal(map[string]any{cmd: map[string]any{"result": result, "value": value}})
	return out, true
}

func (b *fakeBridge) requestLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

func newTestPlatform(t *testing.T, srv *httptest.Server) *PlatformClient {
	t.Helper()
	p, err := NewPlatformClient("ws"+strings.TrimPrefix(srv.URL, "http"), 200*time.Millisecond, 1, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPlatformClient_RingerAndZen(t *testing.T) {
	b := newFakeBridge()
	p := newTestPlatform(t, b.serve(t))

	m, err := p.RingerMode()
	require.NoError(t, err)
	assert.Equal(t, RingerNormal, m)

	require.NoError(t, p.SetRingerMode(RingerVibrate))
	m, err = p.RingerMode()
	require.NoError(t, err)
	assert.Equal(t, RingerVibrate, m)

	require.NoError(t, p.SetZenMode(ZenImportantInterruptions, zenTag))
	z, err := p.ZenMode()
	require.NoError(t, err)
	assert.Equal(t, ZenImportantInterruptions, z)

	reqs := b.requestLog()
	assert.Equal(t, `"GetRingerMode"`, reqs[0])
	assert.Equal(t, `{"SetRingerMode":"vibrate"}`, reqs[1])
	assert.Equal(t, `{"SetZenMode":{"mode":"important_interruptions","condition":null,"tag":"alertslider"}}`, reqs[3])
}

func TestPlatformClient_MediaVolume(t *testing.T) {
	b := newFakeBridge()
	p := newTestPlatform(t, b.serve(t))

	v, err := p.MediaVolume()
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	maxIdx, err := p.MediaMaxVolume()
	require.NoError(t, err)
	assert.Equal(t, 15, maxIdx)

	require.NoError(t, p.SetMediaVolume(0))
	v, err = p.MediaVolume()
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	reqs := b.requestLog()
	assert.Equal(t, `{"GetStreamVolume":{"stream":"music"}}`, reqs[0])
	assert.Equal(t, `{"SetStreamVolume":{"stream":"music","index":0}}`, reqs[2])
}

func TestPlatformClient_HasVibratorCached(t *testing.T) {
	b := newFakeBridge()
	p := newTestPlatform(t, b.serve(t))

	assert.True(t, p.HasVibrator())
	assert.True(t, p.HasVibrator())
	require.NoError(t, p.Vibrate(HapticThud))

	reqs := b.requestLog()
	require.Len(t, reqs, 2, "second HasVibrator must be served from cache")
	assert.Equal(t, `{"Vibrate":{"pattern":"thud"}}`, reqs[1])
}

func TestPlatformClient_ErrorResult(t *testing.T) {
	b := newFakeBridge()
	b.fail["SetRingerMode"] = "Error"
	p := newTestPlatform(t, b.serve(t))

	err := p.SetRingerMode(RingerSilent)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlatform)

	var pe *PlatformError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "SetRingerMode", pe.Cmd)
}

func TestPlatformClient_ReadTimeout(t *testing.T) {
	b := newFakeBridge()
	b.silent = true
	p := newTestPlatform(t, b.serve(t))

	_, err := p.ZenMode()
	assert.ErrorIs(t, err, ErrPlatform)
	assert.False(t, p.HasVibrator(), "failed query reports no vibrator")
}

func TestPlatformClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	p, err := NewPlatformClient(url, 100*time.Millisecond, 1, discardLogger())
	require.NoError(t, err, "dialing is lazy")
	defer p.Close()

	_, err = p.RingerMode()
	assert.ErrorIs(t, err, ErrPlatform)
}

func TestPlatformClient_DrivesReconciler(t *testing.T) {
	b := newFakeBridge()
	b.ringer, b.zen = "silent", "no_interruptions"
	p := newTestPlatform(t, b.serve(t))

	state := NewReconcilerState()
	state.PreviousMode = ModeTotalSilence
	rec := NewReconciler(ReconcilerConfig{}, state, ReconcilerDeps{
		Audio:    p,
		Zen:      p,
		Haptics:  p,
		Volume:   NewVolumeMemory(NewPreferences(newMemKV(nil), discardLogger())),
		Debounce: NewDebouncer(func(Event) {}),
	}, discardLogger())

	require.NoError(t, rec.Apply(SliderChange{Position: PositionBottom, Mode: ModeNormal}))
	rec.debounce.CancelAll()

	var writes []string
	for _, r := range b.requestLog() {
		if strings.HasPrefix(r, `{"Set`) {
			writes = append(writes, r[:strings.Index(r, `":`)+1])
		}
	}
	assert.Equal(t, []string{`{"SetZenMode"`, `{"SetRingerMode"`}, writes)
}
