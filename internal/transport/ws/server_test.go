package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"neonlane.ai/internal/protocol"
	"neonlane.ai/internal/sim/runner"
	"neonlane.ai/internal/sim/tuning"
)

func startRun(t *testing.T) (*runner.Runner, string) {
	t.Helper()
	r, err := runner.New(runner.Config{RunID: "ws-run", Seed: 3, Tuning: tuning.Defaults(), FixedStep: true})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	srv := httptest.NewServer(NewServer(r, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return r, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func hello(t *testing.T, conn *websocket.Conn, version string) map[string]any {
	t.Helper()
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: version, PilotName: "ace"}); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	return readMsg(t, conn)
}

func readMsg(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return m
}

// readUntil reads messages until pred matches or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, pred func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		m := readMsg(t, conn)
		if pred(m) {
			return m
		}
	}
	t.Fatalf("no matching message before deadline")
	return nil
}

func TestHandshakeAndInput(t *testing.T) {
	_, url := startRun(t)
	conn := dial(t, url)

	w := hello(t, conn, protocol.Version)
	if w["type"] != protocol.TypeWelcome || w["run_id"] != "ws-run" {
		t.Fatalf("welcome=%v", w)
	}
	if sid, _ := w["session_id"].(string); sid == "" {
		t.Fatalf("missing session id: %v", w)
	}

	if err := conn.WriteJSON(protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Seq: 1, Verb: "LANE_SHIFT", Dir: 1}); err != nil {
		t.Fatalf("write input: %v", err)
	}
	readUntil(t, conn, func(m map[string]any) bool {
		if m["type"] != protocol.TypeFrame {
			return false
		}
		p, _ := m["player"].(map[string]any)
		return p["lane"] == float64(2)
	})
}

func TestSecondPilotIsBusy(t *testing.T) {
	_, url := startRun(t)
	first := dial(t, url)
	if m := hello(t, first, protocol.Version); m["type"] != protocol.TypeWelcome {
		t.Fatalf("first=%v", m)
	}

	second := dial(t, url)
	m := hello(t, second, protocol.Version)
	if m["type"] != protocol.TypeError || m["code"] != protocol.ErrRunBusy {
		t.Fatalf("second=%v", m)
	}
}

func TestBadVersionRefused(t *testing.T) {
	_, url := startRun(t)
	conn := dial(t, url)
	m := hello(t, conn, "0.0")
	if m["code"] != protocol.ErrProtoVersion {
		t.Fatalf("got %v", m)
	}
}

func TestUnknownVerbAnsweredWithError(t *testing.T) {
	_, url := startRun(t)
	conn := dial(t, url)
	hello(t, conn, protocol.Version)

	if err := conn.WriteJSON(protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Seq: 9, Verb: "JUMP"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := readUntil(t, conn, func(m map[string]any) bool { return m["type"] == protocol.TypeError })
	if m["code"] != protocol.ErrUnknownVerb || m["ref"] != float64(9) {
		t.Fatalf("error=%v", m)
	}

	if err := conn.WriteJSON(protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Seq: 10, Verb: "LANE_SHIFT", Dir: 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	m = readUntil(t, conn, func(m map[string]any) bool { return m["type"] == protocol.TypeError })
	if m["code"] != protocol.ErrBadRequest {
		t.Fatalf("error=%v", m)
	}
}

func TestPilotSlotFreedOnDisconnect(t *testing.T) {
	_, url := startRun(t)
	first := dial(t, url)
	hello(t, first, protocol.Version)
	_ = first.Close()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		m := hello(t, conn, protocol.Version)
		_ = conn.Close()
		if m["type"] == protocol.TypeWelcome {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("pilot slot never freed")
}

func TestRateWindow(t *testing.T) {
	w := newRateWindow(2, time.Second)
	now := time.Unix(100, 0)
	if !w.allow(now) || !w.allow(now) {
		t.Fatalf("first two should pass")
	}
	if w.allow(now.Add(500 * time.Millisecond)) {
		t.Fatalf("third within window should fail")
	}
	if !w.allow(now.Add(time.Second)) {
		t.Fatalf("new window should reset")
	}
}
