package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"neonlane.ai/internal/persistence/snapshot"
	"neonlane.ai/internal/sim/runner"
	"neonlane.ai/internal/sim/tuning"
)

const schemaVersion = "1"

// SQLiteIndex is a queryable secondary index over one run directory. The
// zstd JSONL logs stay the source of truth; writes here are best-effort and
// batched off the run loop.
type SQLiteIndex struct {
	db    *sql.DB
	runID string

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
	drops  dropCounters
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
	reqRun
)

type req struct {
	kind reqKind

	tick     runner.TickLogEntry
	snapshot snapshotRow
	run      runner.Summary
}

type snapshotRow struct {
	Tick      uint64
	Path      string
	Seed      int64
	Distance  float64
	Lattice   float64
	Combo     float64
	Integrity float64
	Mode      string
}

func snapshotRowOf(path string, snap snapshot.SnapshotV1) snapshotRow {
	return snapshotRow{
		Tick:      snap.Header.Tick,
		Path:      path,
		Seed:      snap.Seed,
		Distance:  snap.Distance,
		Lattice:   snap.Meter.Lattice,
		Combo:     snap.Meter.Combo,
		Integrity: snap.Meter.Integrity,
		Mode:      snap.Player.Mode,
	}
}

func OpenSQLite(path, runID string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if runID == "" {
		return nil, fmt.Errorf("empty run id")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:    db,
		runID: runID,
		// 60 Hz ticks plus bursts of events; a minute of backlog before drops.
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tuning (
			digest TEXT PRIMARY KEY,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			tuning_digest TEXT NOT NULL,
			ticks INTEGER NOT NULL,
			time REAL NOT NULL,
			distance REAL NOT NULL,
			peak_combo REAL NOT NULL,
			pickups INTEGER NOT NULL,
			hits INTEGER NOT NULL,
			rail_entries INTEGER NOT NULL,
			integrity REAL NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			dt REAL NOT NULL,
			digest TEXT NOT NULL,
			inputs INTEGER NOT NULL,
			events INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS inputs (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			verb TEXT NOT NULL,
			dir INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			slot INTEGER NOT NULL,
			shape TEXT,
			value REAL NOT NULL,
			PRIMARY KEY (run_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_type_tick ON events(run_id, type, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			distance REAL NOT NULL,
			lattice REAL NOT NULL,
			combo REAL NOT NULL,
			integrity REAL NOT NULL,
			mode TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteTick(entry runner.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.drops.tick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: snapshotRowOf(path, snap)}:
	default:
		s.drops.snapshot.Add(1)
	}
}

// RecordRun upserts the run summary row.
func (s *SQLiteIndex) RecordRun(sum runner.Summary) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqRun, run: sum}:
	default:
		s.drops.run.Add(1)
	}
}

// UpsertTuning stores the tuning values the run actually applies (canonical
// JSON keyed by digest). It runs synchronously at startup.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO tuning(digest,json,updated_at) VALUES(?,?,?)`, runner.TuningDigest(tune), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) Stats() QueueStats {
	if s == nil {
		return QueueStats{}
	}
	return QueueStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.drops.tick.Load(),
		DropSnapshotTotal: s.drops.snapshot.Load(),
		DropRunTotal:      s.drops.run.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run_id,tick,dt,digest,inputs,events,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertInput, _ := s.db.Prepare(`INSERT OR REPLACE INTO inputs(run_id,tick,seq,session_id,verb,dir) VALUES(?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(run_id,tick,seq,type,slot,shape,value) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(run_id,tick,path,seed,distance,lattice,combo,integrity,mode) VALUES(?,?,?,?,?,?,?,?,?)`)
	upsertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,seed,tuning_digest,ticks,time,distance,peak_combo,pickups,hits,rail_entries,integrity,updated_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertInput, insertEvent, insertSnapshot, upsertRun} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			tick := int64(e.Tick)
			b, _ := json.Marshal(e)
			if !exec(insertTick, s.runID, tick, e.DT, e.Digest, len(e.Inputs), len(e.Events), string(b)) {
				continue
			}
			for i, in := range e.Inputs {
				if !exec(insertInput, s.runID, tick, i, in.SessionID, in.Verb, in.Dir) {
					break
				}
			}
			for i, ev := range e.Events {
				if !exec(insertEvent, s.runID, tick, i, ev.Type, ev.Slot, ev.Shape, ev.Value) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, s.runID, int64(sn.Tick), sn.Path, sn.Seed, sn.Distance, sn.Lattice, sn.Combo, sn.Integrity, sn.Mode)

		case reqRun:
			ru := r.run
			exec(upsertRun, ru.RunID, ru.Seed, ru.TuningDigest, int64(ru.Ticks), ru.Time, ru.Distance, ru.PeakCombo,
				int64(ru.Pickups), int64(ru.Hits), int64(ru.RailEntries), ru.Integrity, time.Now().UTC().Format(time.RFC3339Nano))
		}
		flushIfNeeded()
	}

	commit()
}
