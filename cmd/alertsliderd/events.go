package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Events consumed by the daemon loop
// ============================================================================
// Every source (evdev readers, status-file watcher, re-check timer, IPC)
// turns what it sees into an Event and posts it to the loop. The loop is
// the only goroutine that touches reconciler state.
// ============================================================================

// Event is a marker interface for daemon loop inputs.
type Event interface {
	eventMarker()
}

// KeyInput carries one decoded key event from an input device.
type KeyInput struct {
	Key KeyEvent
}

func (KeyInput) eventMarker() {}

// RecheckDue is posted by the re-check timer.
type RecheckDue struct {
	Token RecheckToken
}

func (RecheckDue) eventMarker() {}

// SimulatePosition applies a position as if the slider had been moved
// there, bypassing the position reader. Used for testing on hardware and
// from sliderctl.
type SimulatePosition struct {
	Position string `json:"position"`
}

func (SimulatePosition) eventMarker() {}

// GetState asks for the current reconciler snapshot.
type GetState struct{}

func (GetState) eventMarker() {}

// stateRequest is GetState with a reply channel. It never crosses the wire.
type stateRequest struct {
	reply chan<- StateSnapshot
}

func (stateRequest) eventMarker() {}

// positionRequest is SimulatePosition with a reply channel carrying the
// outcome of the apply. It never crosses the wire.
type positionRequest struct {
	position string
	reply    chan<- error
}

func (positionRequest) eventMarker() {}

// StateSnapshot is the externally visible reconciler state.
type StateSnapshot struct {
	Position       string    `json:"position,omitempty"`
	Mode           string    `json:"mode"`
	RecheckPending bool      `json:"recheck_pending"`
	Applied        uint64    `json:"applied"`
	AppliedAt      time.Time `json:"applied_at,omitzero"`
}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event.
// Only the externally addressable events are accepted.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "simulate_position":
		var e SimulatePosition
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal SimulatePosition: %w", err)
		}
		if _, err := ParsePosition(e.Position); err != nil {
			return nil, fmt.Errorf("simulate_position: %w", err)
		}
		return e, nil

	case "get_state":
		return GetState{}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case SimulatePosition:
		env.Type = "simulate_position"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SimulatePosition: %w", err)
		}
		env.Data = data

	case GetState:
		env.Type = "get_state"

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
