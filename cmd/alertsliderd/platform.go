package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PlatformClient speaks to the platform bridge, the process that owns the
// real audio, notification policy and vibrator services. It implements
// AudioService, NotificationPolicy and Haptics.
//
// Wire format: a command without arguments is a bare JSON string
// ("GetRingerMode"); one with arguments is {"SetRingerMode": "vibrate"}.
// Every reply is {"<Command>": {"result": "Ok", "value": ...}}.
type PlatformClient struct {
	conn   *bridgeConn
	logger *slog.Logger

	vibMu      sync.Mutex
	vibKnown   bool
	vibPresent bool
}

// NewPlatformClient dials lazily: the first call connects.
func NewPlatformClient(wsURL string, readTimeout time.Duration, attempts int, logger *slog.Logger) (*PlatformClient, error) {
	conn, err := newBridgeConn(wsURL, readTimeout, attempts, logger)
	if err != nil {
		return nil, err
	}
	return &PlatformClient{conn: conn, logger: logger}, nil
}

// Close closes the bridge connection.
func (p *PlatformClient) Close() error {
	return p.conn.Close()
}

// PlatformError is a bridge command that failed. It matches ErrPlatform.
type PlatformError struct {
	Cmd string
	Err error
}

func (e *PlatformError) Error() string { return fmt.Sprintf("platform %s: %v", e.Cmd, e.Err) }
func (e *PlatformError) Unwrap() error { return e.Err }
func (e *PlatformError) Is(target error) bool { return target == ErrPlatform }

type bridgeReply struct {
	Result string          `json:"result"`
	Value  json.RawMessage `json:"value"`
}

// call sends cmd and returns the reply value. arg may be nil.
func (p *PlatformClient) call(cmd string, arg any) (json.RawMessage, error) {
	var req any = cmd
	if arg != nil {
		req = map[string]any{cmd: arg}
	}

	raw, err := p.conn.roundTrip(req)
	if err != nil {
		return nil, &PlatformError{Cmd: cmd, Err: err}
	}

	var resp map[string]bridgeReply
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &PlatformError{Cmd: cmd, Err: fmt.Errorf("decode reply: %w", err)}
	}
	r, ok := resp[cmd]
	if !ok {
		return nil, &PlatformError{Cmd: cmd, Err: errors.New("reply for a different command")}
	}
	if r.Result != "Ok" {
		return nil, &PlatformError{Cmd: cmd, Err: fmt.Errorf("result %q", r.Result)}
	}

	p.logger.Debug("platform call", "cmd", cmd, "arg", arg, "value", string(r.Value))
	return r.Value, nil
}

func (p *PlatformClient) callString(cmd string) (string, error) {
	v, err := p.call(cmd, nil)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", &PlatformError{Cmd: cmd, Err: fmt.Errorf("expected string value: %w", err)}
	}
	return s, nil
}

func (p *PlatformClient) callInt(cmd string, arg any) (int, error) {
	v, err := p.call(cmd, arg)
	if err != nil {
		return 0, err
	}
	var n int
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, &PlatformError{Cmd: cmd, Err: fmt.Errorf("expected integer value: %w", err)}
	}
	return n, nil
}

// RingerMode implements AudioService.
func (p *PlatformClient) RingerMode() (RingerMode, error) {
	s, err := p.callString("GetRingerMode")
	if err != nil {
		return 0, err
	}
	m, err := ParseRingerMode(s)
	if err != nil {
		return 0, &PlatformError{Cmd: "GetRingerMode", Err: err}
	}
	return m, nil
}

// SetRingerMode implements AudioService.
func (p *PlatformClient) SetRingerMode(mode RingerMode) error {
	_, err := p.call("SetRingerMode", mode.String())
	return err
}

type streamArg struct {
	Stream string `json:"stream"`
	Index  *int   `json:"index,omitempty"`
}

const musicStream = "music"

// MediaVolume implements AudioService.
func (p *PlatformClient) MediaVolume() (int, error) {
	return p.callInt("GetStreamVolume", streamArg{Stream: musicStream})
}

// MediaMaxVolume implements AudioService.
func (p *PlatformClient) MediaMaxVolume() (int, error) {
	return p.callInt("GetStreamMaxVolume", streamArg{Stream: musicStream})
}

// SetMediaVolume implements AudioService.
func (p *PlatformClient) SetMediaVolume(index int) error {
	_, err := p.call("SetStreamVolume", streamArg{Stream: musicStream, Index: &index})
	return err
}

// ZenMode implements NotificationPolicy.
func (p *PlatformClient) ZenMode() (ZenMode, error) {
	s, err := p.callString("GetZenMode")
	if err != nil {
		return 0, err
	}
	z, err := ParseZenMode(s)
	if err != nil {
		return 0, &PlatformError{Cmd: "GetZenMode", Err: err}
	}
	return z, nil
}

type zenArg struct {
	Mode      string  `json:"mode"`
	Condition *string `json:"condition"`
	Tag       string  `json:"tag"`
}

// SetZenMode implements NotificationPolicy. The condition is always null:
// the mode holds until changed again.
func (p *PlatformClient) SetZenMode(mode ZenMode, tag string) error {
	_, err := p.call("SetZenMode", zenArg{Mode: mode.String(), Tag: tag})
	return err
}

// HasVibrator implements Haptics. The answer is cached after the first
// successful query; a failed query reports false.
func (p *PlatformClient) HasVibrator() bool {
	p.vibMu.Lock()
	defer p.vibMu.Unlock()
	if p.vibKnown {
		return p.vibPresent
	}

	v, err := p.call("HasVibrator", nil)
	if err != nil {
		p.logger.Warn("vibrator query failed", "error", err)
		return false
	}
	var present bool
	if err := json.Unmarshal(v, &present); err != nil {
		p.logger.Warn("vibrator query returned non-boolean", "value", string(v))
		return false
	}
	p.vibKnown, p.vibPresent = true, present
	return present
}

// Vibrate implements Haptics.
func (p *PlatformClient) Vibrate(pattern HapticPattern) error {
	_, err := p.call("Vibrate", map[string]string{"pattern": string(pattern)})
	return err
}
