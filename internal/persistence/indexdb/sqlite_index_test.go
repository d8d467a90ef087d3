package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	"neonlane.ai/internal/persistence/snapshot"
	"neonlane.ai/internal/sim/runner"
	"neonlane.ai/internal/sim/tuning"
)

func TestSQLiteIndex_WritesRunTables(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "index", "run.sqlite")

	idx, err := OpenSQLite(dbPath, "run_1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tu := tuning.Defaults()
	if err := idx.UpsertTuning(tu); err != nil {
		t.Fatalf("tuning: %v", err)
	}

	for tick := uint64(1); tick <= 3; tick++ {
		e := runner.TickLogEntry{Tick: tick, DT: 1.0 / 60, Digest: "d"}
		if tick == 2 {
			e.Inputs = []runner.RecordedInput{
				{SessionID: "S1", Seq: 1, Verb: "LANE_SHIFT", Dir: 1},
				{SessionID: "S1", Seq: 2, Verb: "VAULT"},
			}
			e.Events = []runner.Event{
				{Tick: 2, Type: runner.EventVault},
				{Tick: 2, Type: runner.EventIon, Slot: 4, Value: 1.5},
			}
		}
		_ = idx.WriteTick(e)
	}
	idx.RecordSnapshot("/data/runs/run_1/snapshots/3.snap.zst", snapshot.SnapshotV1{
		Header:   snapshot.Header{Version: snapshot.Version, RunID: "run_1", Tick: 3},
		Seed:     7,
		Distance: 42,
		Player:   snapshot.PlayerV1{Mode: "GROUNDED"},
		Meter:    snapshot.MeterV1{Lattice: 1.5, Combo: 1, Integrity: 100},
	})
	idx.RecordRun(runner.Summary{RunID: "run_1", Seed: 7, TuningDigest: runner.TuningDigest(tu), Ticks: 3, Distance: 42, Pickups: 1})

	// Close drains the queue and commits.
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ticks WHERE run_id='run_1'`).Scan(&n); err != nil || n != 3 {
		t.Fatalf("ticks=%d err=%v", n, err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM inputs WHERE tick=2`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("inputs=%d err=%v", n, err)
	}

	var typ string
	var slot int
	var value float64
	if err := db.QueryRow(`SELECT type,slot,value FROM events WHERE tick=2 AND seq=1`).Scan(&typ, &slot, &value); err != nil {
		t.Fatalf("event: %v", err)
	}
	if typ != runner.EventIon || slot != 4 || value != 1.5 {
		t.Fatalf("event=%s slot=%d value=%v", typ, slot, value)
	}

	var mode string
	var lattice float64
	if err := db.QueryRow(`SELECT mode,lattice FROM snapshots WHERE tick=3`).Scan(&mode, &lattice); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if mode != "GROUNDED" || lattice != 1.5 {
		t.Fatalf("snapshot mode=%s lattice=%v", mode, lattice)
	}

	var digest string
	var pickups int
	if err := db.QueryRow(`SELECT tuning_digest,pickups FROM runs WHERE run_id='run_1'`).Scan(&digest, &pickups); err != nil {
		t.Fatalf("run: %v", err)
	}
	if digest != runner.TuningDigest(tu) || pickups != 1 {
		t.Fatalf("run digest=%s pickups=%d", digest, pickups)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM tuning WHERE digest=?`, digest).Scan(&n); err != nil || n != 1 {
		t.Fatalf("tuning rows=%d err=%v", n, err)
	}
}

func TestOpenSQLite_RejectsEmptyArgs(t *testing.T) {
	if _, err := OpenSQLite("", "r"); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := OpenSQLite(filepath.Join(t.TempDir(), "x.sqlite"), ""); err == nil {
		t.Fatalf("expected error for empty run id")
	}
}
