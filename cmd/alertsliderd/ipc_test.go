package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestUnmarshalEvent(t *testing.T) {
	ev, err := UnmarshalEvent([]byte(`{"type":"simulate_position","data":{"position":"bottom"}}`))
	require.NoError(t, err)
	assert.Equal(t, SimulatePosition{Position: "bottom"}, ev)

	ev, err = UnmarshalEvent([]byte(`{"type":"get_state"}`))
	require.NoError(t, err)
	assert.Equal(t, GetState{}, ev)
}

func TestUnmarshalEvent_Rejects(t *testing.T) {
	for name, in := range map[string]string{
		"not json":         `position=top`,
		"unknown type":     `{"type":"rotate"}`,
		"internal event":   `{"type":"recheck_due","data":{"Token":1}}`,
		"bad position":     `{"type":"simulate_position","data":{"position":"left"}}`,
		"missing position": `{"type":"simulate_position","data":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := UnmarshalEvent([]byte(in))
			assert.Error(t, err)
		})
	}
}

func TestMarshalEvent_RoundTrip(t *testing.T) {
	for _, ev := range []Event{SimulatePosition{Position: "top"}, GetState{}} {
		b, err := MarshalEvent(ev)
		require.NoError(t, err)
		back, err := UnmarshalEvent(b)
		require.NoError(t, err)
		assert.Equal(t, ev, back)
	}

	_, err := MarshalEvent(RecheckDue{Token: 3})
	assert.Error(t, err, "internal events are not addressable")
}

func TestHandleIPCLine(t *testing.T) {
	ctx := context.Background()

	t.Run("simulate waits for apply", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		events := make(chan Event)
		got := make(chan string, 1)
		go answerPosition(cctx, events, nil, got)

		resp := handleIPCLine(ctx, []byte(`{"type":"simulate_position","data":{"position":"top"}}`), events)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "top", <-got)
	})

	t.Run("simulate reports apply error", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		events := make(chan Event)
		go answerPosition(cctx, events, ErrSetupIncomplete, nil)

		resp := handleIPCLine(ctx, []byte(`{"type":"simulate_position","data":{"position":"top"}}`), events)
		assert.Equal(t, "error", resp.Status)
		assert.Contains(t, resp.Error, ErrSetupIncomplete.Error())
	})

	t.Run("loop not running", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		resp := handleIPCLine(cctx, []byte(`{"type":"simulate_position","data":{"position":"top"}}`), make(chan Event))
		assert.Equal(t, "error", resp.Status)
		assert.Contains(t, resp.Error, "context canceled")
	})

	t.Run("parse error", func(t *testing.T) {
		resp := handleIPCLine(ctx, []byte(`{`), make(chan Event, 1))
		assert.Equal(t, "error", resp.Status)
		assert.Contains(t, resp.Error, "parse event")
	})

	t.Run("get state", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		events := make(chan Event)
		go answerState(cctx, events, StateSnapshot{Mode: "silent", Position: "top"})

		resp := handleIPCLine(ctx, []byte(`{"type":"get_state"}`), events)
		require.Equal(t, "ok", resp.Status)
		require.NotNil(t, resp.State)
		assert.Equal(t, "silent", resp.State.Mode)
	})
}

func TestIPCServer_EndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)

	// Unix socket paths are length limited; keep it short.
	dir, err := os.MkdirTemp("", "as")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "s.sock")

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, 4)
	srvErr := make(chan error, 1)
	go func() { srvErr <- runIPCServer(ctx, sock, events, discardLogger()) }()

	waitUntil(t, time.Second, func() bool {
		_, err := os.Stat(sock)
		return err == nil
	}, "socket not created")

	info, err := os.Stat(sock)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o660), info.Mode().Perm())

	answerCtx, stopAnswer := context.WithCancel(context.Background())
	got := make(chan string, 1)
	answered := make(chan struct{})
	go func() {
		answerPosition(answerCtx, events, nil, got)
		answerState(answerCtx, events, StateSnapshot{Mode: "normal"})
		close(answered)
	}()

	resp, err := SendIPCEvent(sock, SimulatePosition{Position: "middle"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "middle", <-got)

	resp, err = SendIPCEvent(sock, GetState{})
	require.NoError(t, err)
	require.NotNil(t, resp.State)
	assert.Equal(t, "normal", resp.State.Mode)
	stopAnswer()
	<-answered

	cancel()
	select {
	case err := <-srvErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("IPC server did not stop")
	}
	_, err = os.Stat(sock)
	assert.True(t, os.IsNotExist(err), "socket removed on shutdown")
}

// answerPosition plays the daemon loop for one positionRequest.
func answerPosition(ctx context.Context, events <-chan Event, result error, got chan<- string) {
	select {
	case ev := <-events:
		req, ok := ev.(positionRequest)
		if !ok {
			return
		}
		if got != nil {
			got <- req.position
		}
		req.reply <- result
	case <-ctx.Done():
	}
}
