package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	tick := fs.Uint64("tick", 0, "tick filter (ticks/inputs/events; optional)")
	typ := fs.String("type", "", "event type filter (events)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*runID) == "" {
			fmt.Fprintln(os.Stderr, "missing -run or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "runs", *runID, "index", "run.sqlite")
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "runs":
		rows, err := db.Query(`SELECT run_id,seed,tuning_digest,ticks,time,distance,peak_combo,pickups,hits,rail_entries,integrity,updated_at FROM runs ORDER BY updated_at DESC LIMIT ?`, *limit)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RunID        string  `json:"run_id"`
				Seed         int64   `json:"seed"`
				TuningDigest string  `json:"tuning_digest"`
				Ticks        int64   `json:"ticks"`
				Time         float64 `json:"time"`
				Distance     float64 `json:"distance"`
				PeakCombo    float64 `json:"peak_combo"`
				Pickups      int64   `json:"pickups"`
				Hits         int64   `json:"hits"`
				RailEntries  int64   `json:"rail_entries"`
				Integrity    float64 `json:"integrity"`
				UpdatedAt    string  `json:"updated_at"`
			}
			if err := rows.Scan(&r.RunID, &r.Seed, &r.TuningDigest, &r.Ticks, &r.Time, &r.Distance, &r.PeakCombo, &r.Pickups, &r.Hits, &r.RailEntries, &r.Integrity, &r.UpdatedAt); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		checkRows(rows)

	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,seed,distance,lattice,combo,integrity,mode FROM snapshots ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick      int64   `json:"tick"`
				Path      string  `json:"path"`
				Seed      int64   `json:"seed"`
				Distance  float64 `json:"distance"`
				Lattice   float64 `json:"lattice"`
				Combo     float64 `json:"combo"`
				Integrity float64 `json:"integrity"`
				Mode      string  `json:"mode"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Seed, &r.Distance, &r.Lattice, &r.Combo, &r.Integrity, &r.Mode); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		checkRows(rows)

	case "ticks":
		rows, err := db.Query(`SELECT tick,dt,digest,inputs,events FROM ticks WHERE (?=0 OR tick=?) ORDER BY tick DESC LIMIT ?`, *tick, *tick, *limit)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick   int64   `json:"tick"`
				DT     float64 `json:"dt"`
				Digest string  `json:"digest"`
				Inputs int     `json:"inputs"`
				Events int     `json:"events"`
			}
			if err := rows.Scan(&r.Tick, &r.DT, &r.Digest, &r.Inputs, &r.Events); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		checkRows(rows)

	case "inputs":
		rows, err := db.Query(`SELECT tick,seq,session_id,verb,dir FROM inputs WHERE (?=0 OR tick=?) ORDER BY tick DESC, seq LIMIT ?`, *tick, *tick, *limit)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick      int64  `json:"tick"`
				Seq       int    `json:"seq"`
				SessionID string `json:"session_id"`
				Verb      string `json:"verb"`
				Dir       int    `json:"dir,omitempty"`
			}
			if err := rows.Scan(&r.Tick, &r.Seq, &r.SessionID, &r.Verb, &r.Dir); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		checkRows(rows)

	case "events":
		t := strings.ToUpper(strings.TrimSpace(*typ))
		rows, err := db.Query(`SELECT tick,seq,type,slot,shape,value FROM events WHERE (?=0 OR tick=?) AND (?='' OR type=?) ORDER BY tick DESC, seq LIMIT ?`, *tick, *tick, t, t, *limit)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick  int64          `json:"tick"`
				Seq   int            `json:"seq"`
				Type  string         `json:"type"`
				Slot  int            `json:"slot"`
				Shape sql.NullString `json:"-"`
				Value float64        `json:"value"`
				Form  string         `json:"shape,omitempty"`
			}
			if err := rows.Scan(&r.Tick, &r.Seq, &r.Type, &r.Slot, &r.Shape, &r.Value); err != nil {
				fail("scan", err)
			}
			r.Form = r.Shape.String
			printJSON(r)
		}
		checkRows(rows)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-run RUN|-db PATH] [-tick T] [-type TYPE] runs|snapshots|ticks|inputs|events")
		os.Exit(2)
	}
}

func fail(what string, err error) {
	fmt.Fprintln(os.Stderr, what+":", err)
	os.Exit(1)
}

func checkRows(rows *sql.Rows) {
	if err := rows.Err(); err != nil {
		fail("rows", err)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
