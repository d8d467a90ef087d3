package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"neonlane.ai/internal/persistence/indexdb"
	"neonlane.ai/internal/persistence/snapshot"
	"neonlane.ai/internal/sim/runner"
	"neonlane.ai/internal/sim/tuning"
)

type fakeIndex struct {
	ticks   int
	runs    []runner.Summary
	tickErr error
}

func (f *fakeIndex) WriteTick(runner.TickLogEntry) error       { f.ticks++; return f.tickErr }
func (f *fakeIndex) Close() error                               { return nil }
func (f *fakeIndex) UpsertTuning(tuning.Tuning) error           { return nil }
func (f *fakeIndex) RecordSnapshot(string, snapshot.SnapshotV1) {}
func (f *fakeIndex) RecordRun(s runner.Summary)                 { f.runs = append(f.runs, s) }
func (f *fakeIndex) Stats() indexdb.QueueStats {
	return indexdb.QueueStats{QueueCapacity: 8, DropTickTotal: 2}
}

func newTestRunner(t *testing.T) *runner.Runner {
	t.Helper()
	rt, err := runner.New(runner.Config{RunID: "mux-run", Seed: 1, Tuning: tuning.Defaults(), FixedStep: true})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	for i := 0; i < 30; i++ {
		rt.StepOnce(1.0/60, nil)
	}
	return rt
}

func TestBuildMux_AdminLoopbackOnly(t *testing.T) {
	rt := newTestRunner(t)
	mux := buildMux(rt, nil, log.New(io.Discard, "", 0), true, false)

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "8.8.8.8:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-loopback admin state, got %d body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("state status=%d body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		RunID string `json:"run_id"`
		Tick  uint64 `json:"tick"`
		Frame struct {
			HUD struct {
				Text struct {
					Integrity string `json:"integrity"`
				} `json:"text"`
			} `json:"hud"`
		} `json:"frame"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if body.RunID != "mux-run" || body.Tick != 30 || !strings.HasSuffix(body.Frame.HUD.Text.Integrity, "%") {
		t.Fatalf("state=%+v", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("snapshot GET status=%d", rec.Code)
	}
}

func TestBuildMux_AdminDisabled(t *testing.T) {
	rt := newTestRunner(t)
	mux := buildMux(rt, nil, log.New(io.Discard, "", 0), false, false)
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with admin disabled, got %d", rec.Code)
	}
}

func TestBuildMux_SnapshotWhileRunning(t *testing.T) {
	rt := newTestRunner(t)
	sink := make(chan snapshot.SnapshotV1, 1)
	rt.SetSnapshotSink(sink)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rt.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	mux := buildMux(rt, nil, log.New(io.Discard, "", 0), true, false)
	req := httptest.NewRequest(http.MethodPost, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status=%d body=%s", rec.Code, rec.Body.String())
	}
	snap := <-sink
	if snap.Header.RunID != "mux-run" || snap.Header.Tick < 30 {
		t.Fatalf("snapshot header=%+v", snap.Header)
	}
}

func TestBuildMux_Metrics(t *testing.T) {
	rt := newTestRunner(t)
	mux := buildMux(rt, &fakeIndex{}, log.New(io.Discard, "", 0), true, false)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`neonlane_run_tick{run="mux-run"} 30`,
		`neonlane_meter{run="mux-run",meter="integrity"} `,
		`neonlane_run_clients{run="mux-run",role="pilot"} 0`,
		`neonlane_index_dropped_total{run="mux-run",kind="tick"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestMultiTickLogger_FansOut(t *testing.T) {
	a, b := &fakeIndex{}, &fakeIndex{}
	m := multiTickLogger{a: a, b: b}
	_ = m.WriteTick(runner.TickLogEntry{Tick: 1})
	if a.ticks != 1 || b.ticks != 1 {
		t.Fatalf("a=%d b=%d", a.ticks, b.ticks)
	}
	_ = multiTickLogger{a: a}.WriteTick(runner.TickLogEntry{Tick: 2})
	if a.ticks != 2 {
		t.Fatalf("a=%d", a.ticks)
	}
}

func TestMultiTickLogger_ReturnsWriteErrors(t *testing.T) {
	logErr := errors.New("zstd: disk full")
	idxErr := errors.New("queue closed")
	a, b := &fakeIndex{tickErr: logErr}, &fakeIndex{}
	m := multiTickLogger{a: a, b: b}

	err := m.WriteTick(runner.TickLogEntry{Tick: 1})
	if !errors.Is(err, logErr) {
		t.Fatalf("err=%v, want tick log error", err)
	}
	if b.ticks != 1 {
		t.Fatalf("second logger skipped after first failed")
	}

	b.tickErr = idxErr
	err = m.WriteTick(runner.TickLogEntry{Tick: 2})
	if !errors.Is(err, logErr) || !errors.Is(err, idxErr) {
		t.Fatalf("err=%v, want both errors", err)
	}

	a.tickErr, b.tickErr = nil, nil
	if err := m.WriteTick(runner.TickLogEntry{Tick: 3}); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("NL_TEST_BOOL", "true")
	t.Setenv("NL_TEST_INT", "-4")
	if !envBool("NL_TEST_BOOL", false) || envBool("NL_TEST_MISSING", false) {
		t.Fatalf("envBool")
	}
	if envInt("NL_TEST_INT", 7) != 7 || envInt("NL_TEST_MISSING", 3) != 3 {
		t.Fatalf("envInt should fall back on non-positive and missing values")
	}
	t.Setenv("DEPLOY_ENV", "production")
	if defaultEnableAdminHTTP() {
		t.Fatalf("admin http should default off in production")
	}
}

func TestOpenRuntimeIndex_Backends(t *testing.T) {
	t.Setenv("NL_INDEX_BACKEND", "none")
	idx, err := openRuntimeIndex(t.TempDir(), "r", false, nil)
	if err != nil || idx != nil {
		t.Fatalf("none backend: idx=%v err=%v", idx, err)
	}

	t.Setenv("NL_INDEX_BACKEND", "d1")
	t.Setenv("NL_INDEX_D1_INGEST_URL", "")
	if _, err := openRuntimeIndex(t.TempDir(), "r", false, nil); err == nil {
		t.Fatalf("d1 without url should fail")
	}

	t.Setenv("NL_INDEX_BACKEND", "bogus")
	if _, err := openRuntimeIndex(t.TempDir(), "r", false, nil); err == nil {
		t.Fatalf("unknown backend should fail")
	}

	t.Setenv("NL_INDEX_BACKEND", "sqlite")
	idx, err = openRuntimeIndex(t.TempDir(), "r", false, nil)
	if err != nil || idx == nil {
		t.Fatalf("sqlite backend: err=%v", err)
	}
	_ = idx.Close()
}
