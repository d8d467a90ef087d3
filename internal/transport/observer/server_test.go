package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"neonlane.ai/internal/observerproto"
	"neonlane.ai/internal/sim/runner"
	"neonlane.ai/internal/sim/tuning"
)

func startRun(t *testing.T) (*runner.Runner, *httptest.Server) {
	t.Helper()
	r, err := runner.New(runner.Config{RunID: "obs-run", Seed: 11, Tuning: tuning.Defaults(), FixedStep: true})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	s := NewServer(r, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/v1/observer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", s.WSHandler())
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return r, srv
}

func TestBootstrap(t *testing.T) {
	r, srv := startRun(t)
	resp, err := http.Get(srv.URL + "/admin/v1/observer/bootstrap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var b observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.RunID != "obs-run" || b.RunParams.Seed != 11 || len(b.RunParams.Lanes) != 3 {
		t.Fatalf("bootstrap=%+v", b)
	}
	if b.TuningDigest != r.TuningDigest() || b.ProtocolVersion != observerproto.Version {
		t.Fatalf("bootstrap=%+v", b)
	}

	post, err := http.Post(srv.URL+"/admin/v1/observer/bootstrap", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", post.StatusCode)
	}
}

func TestSubscribeStreamsHUD(t *testing.T) {
	_, srv := startRun(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version, EveryTicks: 2}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	var last uint64
	for i := 0; i < 3; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var msg observerproto.HudMsg
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type != observerproto.TypeHUD || msg.Tick%2 != 0 || msg.Tick <= last {
			t.Fatalf("hud=%+v last=%d", msg, last)
		}
		if msg.Frame.HUD.Text.Integrity == "" || msg.Pilots != 0 {
			t.Fatalf("hud frame=%+v", msg.Frame.HUD)
		}
		last = msg.Tick
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:1234": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}

func TestNormalizeSubscribe(t *testing.T) {
	sub := observerproto.SubscribeMsg{EveryTicks: -3}
	normalizeSubscribe(&sub)
	if sub.EveryTicks != 1 {
		t.Fatalf("every=%d", sub.EveryTicks)
	}
	sub.EveryTicks = 10000
	normalizeSubscribe(&sub)
	if sub.EveryTicks != 600 {
		t.Fatalf("every=%d", sub.EveryTicks)
	}
}
