package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBuildRequest(t *testing.T) {
	tests := []struct {
		args     []string
		wantType string
		wantPos  string
		wantErr  bool
	}{
		{[]string{"position", "top"}, "simulate_position", "top", false},
		{[]string{"pos", "Bottom"}, "simulate_position", "bottom", false},
		{[]string{"middle"}, "simulate_position", "middle", false},
		{[]string{"state"}, "get_state", "", false},
		{[]string{"position"}, "", "", true},
		{[]string{"position", "left"}, "", "", true},
		{[]string{"volume-up"}, "", "", true},
	}

	for _, tt := range tests {
		req, err := buildRequest(tt.args)
		if tt.wantErr {
			if err == nil {
				t.Errorf("buildRequest(%v) = %+v, want error", tt.args, req)
			}
			continue
		}
		if err != nil {
			t.Errorf("buildRequest(%v): %v", tt.args, err)
			continue
		}
		if req.Type != tt.wantType {
			t.Errorf("buildRequest(%v).Type = %q, want %q", tt.args, req.Type, tt.wantType)
		}
		if tt.wantPos != "" {
			var sp SimulatePosition
			if err := json.Unmarshal(req.Data, &sp); err != nil || sp.Position != tt.wantPos {
				t.Errorf("buildRequest(%v).Data = %s", tt.args, req.Data)
			}
		}
	}

	if _, err := buildRequest(nil); !errors.Is(err, errUsage) {
		t.Errorf("empty args err = %v, want errUsage", err)
	}
}

func TestSend(t *testing.T) {
	dir, err := os.MkdirTemp("", "sc")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "s.sock")

	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		got <- strings.TrimSpace(line)
		_, _ = conn.Write([]byte(`{"status":"ok","state":{"position":"top","mode":"silent","recheck_pending":false,"applied":4}}` + "\n"))
	}()

	resp, err := send(sock, Request{Type: "get_state"})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case line := <-got:
		if line != `{"type":"get_state"}` {
			t.Errorf("request line = %s", line)
		}
	case <-time.After(time.Second):
		t.Fatal("server saw nothing")
	}
	if resp.State == nil || resp.State.Mode != "silent" || resp.State.Applied != 4 {
		t.Fatalf("resp = %+v", resp)
	}

	var buf bytes.Buffer
	printState(&buf, *resp.State)
	if !strings.Contains(buf.String(), "mode:            silent") {
		t.Errorf("printState output:\n%s", buf.String())
	}
}
