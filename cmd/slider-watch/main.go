package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// slider-watch follows alertsliderd's /ws stream and prints every slider
// transition. With -cmd it instead sends one command to a platform bridge
// and prints the reply, which is handy when bringing up a new bridge.

type frame struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type stateInit struct {
	Position       string `json:"position"`
	Mode           string `json:"mode"`
	RecheckPending bool   `json:"recheck_pending"`
	Applied        uint64 `json:"applied"`
}

type sliderUpdated struct {
	Position string `json:"position"`
	Mode     string `json:"mode"`
}

func main() {
	var (
		wsURL   = flag.String("ws", "ws://127.0.0.1:3002/ws", "alertsliderd state websocket (or platform bridge URL with -cmd)")
		command = flag.String("cmd", "", "Send one platform bridge command and exit (e.g. 'GetRingerMode' or '{\"GetStreamVolume\":{\"stream\":\"music\"}}')")
		raw     = flag.Bool("raw", false, "Print frames verbatim")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	if *command != "" {
		if err := bridgeCommand(conn, *command, os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	log.Printf("connected (press Ctrl+C to exit)")

	// Protects writes: pings and the final close frame.
	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	// The daemon pings us; answering resets the deadline too.
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()
	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				log.Printf("ping failed: %v", err)
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			if *raw {
				fmt.Printf("%s\n", message)
				continue
			}
			printFrame(os.Stdout, message)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// printFrame renders one daemon frame as a single line.
func printFrame(w io.Writer, message []byte) {
	var f frame
	if err := json.Unmarshal(message, &f); err != nil {
		fmt.Fprintf(w, "[TEXT] %s\n", message)
		return
	}

	ts := ""
	if f.Ts != nil {
		ts = f.Ts.Local().Format("15:04:05.000") + " "
	}

	switch f.Type {
	case "state_init":
		var s stateInit
		if err := json.Unmarshal(f.Data, &s); err != nil {
			fmt.Fprintf(w, "[INIT] %s\n", f.Data)
			return
		}
		pos := s.Position
		if pos == "" {
			pos = "-"
		}
		fmt.Fprintf(w, "%s[INIT] position=%s mode=%s applied=%d recheck_pending=%t\n",
			ts, pos, s.Mode, s.Applied, s.RecheckPending)

	case "slider_updated":
		var u sliderUpdated
		if err := json.Unmarshal(f.Data, &u); err != nil {
			fmt.Fprintf(w, "[SLIDER] %s\n", f.Data)
			return
		}
		fmt.Fprintf(w, "%s[SLIDER] %s -> %s\n", ts, u.Position, u.Mode)

	default:
		fmt.Fprintf(w, "%s[%s] %s\n", ts, f.Type, f.Data)
	}
}

// bridgeCommand sends cmd to a platform bridge and pretty-prints the reply.
// A cmd that is already JSON is sent as is; anything else is sent as a
// bare command name.
func bridgeCommand(conn *websocket.Conn, cmd string, w io.Writer) error {
	var payload []byte
	if json.Valid([]byte(cmd)) {
		payload = []byte(cmd)
	} else {
		b, err := json.Marshal(cmd)
		if err != nil {
			return fmt.Errorf("marshal command: %w", err)
		}
		payload = b
	}

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("send command: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var jsonData map[string]any
	if err := json.Unmarshal(message, &jsonData); err != nil {
		fmt.Fprintf(w, "%s\n", message)
		return nil
	}
	pretty, _ := json.MarshalIndent(jsonData, "", "  ")
	fmt.Fprintf(w, "%s\n", pretty)
	return nil
}
