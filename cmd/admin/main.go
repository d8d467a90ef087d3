package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	persistlog "neonlane.ai/internal/persistence/log"
	"neonlane.ai/internal/persistence/snapshot"
	"neonlane.ai/internal/sim/runner"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "events":
			eventsCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints one line per run directory with its latest snapshot and the
// size of its logs.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "runs")
	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		runDir := filepath.Join(base, e.Name())
		latest := "-"
		var modified time.Time
		if p := snapshot.Latest(runDir); p != "" {
			if h, err := snapshot.ReadHeader(p); err == nil {
				latest = humanize.Comma(int64(h.Tick))
			}
			if st, err := os.Stat(p); err == nil {
				modified = st.ModTime()
			}
		}
		when := "never"
		if !modified.IsZero() {
			when = humanize.Time(modified)
		}
		fmt.Printf("%-24s snapshot_tick=%-10s logs=%-8s last_snapshot=%s\n",
			e.Name(), latest, humanize.Bytes(uint64(dirSize(runDir))), when)
	}
}

func dirSize(dir string) int64 {
	var n int64
	_ = filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			n += info.Size()
		}
		return nil
	})
	return n
}

// eventsCmd streams gameplay events from a run's compressed event logs.
func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id")
	typ := fs.String("type", "", "event type filter (ION, RAIL_ENTER, HOSTILE, ...)")
	sinceTick := fs.Uint64("since_tick", 0, "only events at or after tick")
	toTick := fs.Uint64("to_tick", 0, "only events up to tick (inclusive, optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*runID) == "" {
		fmt.Fprintln(os.Stderr, "missing -run")
		os.Exit(2)
	}
	dir := filepath.Join(*dataDir, "runs", *runID, "events")
	files, err := persistlog.Files(dir, "events")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	want := strings.ToUpper(strings.TrimSpace(*typ))
	counts := map[string]int{}
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var e runner.Event
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			if e.Tick < *sinceTick || (*toTick != 0 && e.Tick > *toTick) {
				return nil
			}
			if want != "" && e.Type != want {
				return nil
			}
			counts[e.Type]++
			printJSON(e)
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, filepath.Base(path)+":", err)
			os.Exit(1)
		}
	}
	for t, n := range counts {
		fmt.Fprintf(os.Stderr, "%s=%s\n", t, humanize.Comma(int64(n)))
	}
}

// inspectCmd prints a snapshot's header, meters and ring occupancy.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id (uses latest snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (overrides -run)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*runID) == "" {
			fmt.Fprintln(os.Stderr, "missing -run or -snapshot")
			os.Exit(2)
		}
		path = snapshot.Latest(filepath.Join(*dataDir, "runs", *runID))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("run=%s tick=%s seed=%d time=%.1fs distance=%.1f mode=%s lane=%d\n",
		snap.Header.RunID, humanize.Comma(int64(snap.Header.Tick)), snap.Seed, snap.Time, snap.Distance,
		snap.Player.Mode, snap.Player.Lane)
	fmt.Printf("lattice=%.1f combo=x%.1f integrity=%.0f%% pickups=%s hits=%s rails=%s\n",
		snap.Meter.Lattice, snap.Meter.Combo, snap.Meter.Integrity,
		humanize.Comma(int64(snap.Stats.Pickups)), humanize.Comma(int64(snap.Stats.Hits)), humanize.Comma(int64(snap.Stats.RailEntries)))
	for _, r := range snap.Rings {
		consumed := 0
		for _, o := range r.Objects {
			if o.Consumed {
				consumed++
			}
		}
		fmt.Printf("ring %-10s objects=%d consumed=%d recycled=%s\n", r.Kind, len(r.Objects), consumed, humanize.Comma(int64(r.Recycled)))
	}
}
