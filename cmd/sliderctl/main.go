package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"
)

// ============================================================================
// sliderctl - Command-line IPC Client
// ============================================================================
// Talks to alertsliderd over its Unix socket.
//
// Usage:
//   sliderctl position top
//   sliderctl state
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/alertslider.sock)
// ============================================================================

const defaultSocket = "/tmp/alertslider.sock"

// Request mirrors the daemon's event envelope.
type Request struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SimulatePosition is the payload of a "simulate_position" request.
type SimulatePosition struct {
	Position string `json:"position"`
}

// State is the daemon's reconciler snapshot.
type State struct {
	Position       string    `json:"position,omitempty"`
	Mode           string    `json:"mode"`
	RecheckPending bool      `json:"recheck_pending"`
	Applied        uint64    `json:"applied"`
	AppliedAt      time.Time `json:"applied_at"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	State  *State `json:"state,omitempty"`
}

var errUsage = errors.New("usage")

func main() {
	socketPath := defaultSocket

	args := os.Args[1:]
	if len(args) >= 1 && (args[0] == "-socket" || args[0] == "--socket") {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) > 0 && (args[0] == "help" || args[0] == "-h" || args[0] == "--help") {
		printUsage(os.Stdout)
		return
	}

	req, err := buildRequest(args)
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		printUsage(os.Stderr)
		os.Exit(1)
	}

	resp, err := send(socketPath, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if resp.State != nil {
		printState(os.Stdout, *resp.State)
		return
	}
	fmt.Println("ok")
}

// buildRequest turns command-line arguments into a request.
func buildRequest(args []string) (Request, error) {
	if len(args) == 0 {
		return Request{}, errUsage
	}

	switch args[0] {
	case "position", "pos", "set":
		if len(args) < 2 {
			return Request{}, errors.New("position requires top, middle or bottom")
		}
		return positionRequest(args[1])

	case "top", "middle", "bottom":
		return positionRequest(args[0])

	case "state", "status":
		return Request{Type: "get_state"}, nil

	default:
		return Request{}, fmt.Errorf("unknown command: %s", args[0])
	}
}

func positionRequest(pos string) (Request, error) {
	pos = strings.ToLower(pos)
	switch pos {
	case "top", "middle", "bottom":
	default:
		return Request{}, fmt.Errorf("invalid position %q (want top, middle or bottom)", pos)
	}
	data, err := json.Marshal(SimulatePosition{Position: pos})
	if err != nil {
		return Request{}, fmt.Errorf("marshal SimulatePosition: %w", err)
	}
	return Request{Type: "simulate_position", Data: data}, nil
}

func send(socketPath string, req Request) (IPCResponse, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	data, err := json.Marshal(req)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	// Line-delimited JSON.
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return IPCResponse{}, fmt.Errorf("send request: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status == "error" {
		return resp, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp, nil
}

func printState(w io.Writer, s State) {
	pos := s.Position
	if pos == "" {
		pos = "(none yet)"
	}
	fmt.Fprintf(w, "position:        %s\n", pos)
	fmt.Fprintf(w, "mode:            %s\n", s.Mode)
	fmt.Fprintf(w, "recheck pending: %t\n", s.RecheckPending)
	fmt.Fprintf(w, "applied:         %d\n", s.Applied)
	if !s.AppliedAt.IsZero() {
		fmt.Fprintf(w, "last applied:    %s\n", s.AppliedAt.Local().Format(time.RFC3339))
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `sliderctl - Control alertsliderd via IPC

Usage:
  sliderctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s)

Commands:
  position, pos <top|middle|bottom>   Apply a slider position as if the slider moved
  top, middle, bottom                 Shorthand for position <name>
  state, status                       Print the daemon's current slider state
  help, -h, --help                    Show this help message

Examples:
  sliderctl top
  sliderctl state
  sliderctl -socket /run/alertslider.sock position bottom
`, defaultSocket)
}
