package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	persistlog "neonlane.ai/internal/persistence/log"
	"neonlane.ai/internal/persistence/snapshot"
	"neonlane.ai/internal/sim/runner"
	"neonlane.ai/internal/sim/tuning"
)

var errStop = errors.New("stop")

func main() {
	var (
		runDir     = flag.String("run_dir", "", "run directory containing ticks/ (e.g. ./data/runs/run_1)")
		snapPath   = flag.String("snapshot", "", "path to .snap.zst to start from (optional; default: replay from tick 0)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning.yaml used by the run (ignored when -snapshot is set)")
		seed       = flag.Int64("seed", 1337, "run seed (ignored when -snapshot is set)")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *runDir == "" {
		fmt.Fprintln(os.Stderr, "missing -run_dir")
		os.Exit(2)
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}

	var rt *runner.Runner
	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d run=%s tick=%s seed=%d distance=%.1f lattice=%.1f integrity=%.0f mode=%s\n",
			snap.Header.Version, snap.Header.RunID, humanize.Comma(int64(snap.Header.Tick)), snap.Seed,
			snap.Distance, snap.Meter.Lattice, snap.Meter.Integrity, snap.Player.Mode)
		rt, err = runner.Resume(runner.Config{Tuning: tune}, snap)
		if err != nil {
			fmt.Fprintln(os.Stderr, "resume:", err)
			os.Exit(1)
		}
	} else {
		rt, err = runner.New(runner.Config{RunID: filepath.Base(*runDir), Seed: *seed, Tuning: tune})
		if err != nil {
			fmt.Fprintln(os.Stderr, "runner:", err)
			os.Exit(1)
		}
	}

	files, err := persistlog.Files(filepath.Join(*runDir, "ticks"), "ticks")
	if err != nil || len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick logs found in", filepath.Join(*runDir, "ticks"), err)
		os.Exit(1)
	}
	var size int64
	for _, f := range files {
		if st, err := os.Stat(f); err == nil {
			size += st.Size()
		}
	}
	fmt.Printf("tick logs: %d files, %s\n", len(files), humanize.Bytes(uint64(size)))

	startTick := rt.CurrentTick()
	verifyFrom := *fromTick
	var checked uint64
	err = persistlog.ReadTicks(*runDir, func(entry runner.TickLogEntry) error {
		if entry.Tick <= startTick {
			return nil
		}
		if *toTick != 0 && entry.Tick > *toTick {
			return errStop
		}
		return replayEntry(rt, entry, verifyFrom, &checked)
	})
	if err != nil && !errors.Is(err, errStop) {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}

	sum := rt.Summary()
	fmt.Printf("replay ok: checked=%s ticks (from tick=%s) distance=%.1f pickups=%s hits=%s\n",
		humanize.Comma(int64(checked)), humanize.Comma(int64(startTick)), sum.Distance,
		humanize.Comma(int64(sum.Pickups)), humanize.Comma(int64(sum.Hits)))
}

// replayEntry steps rt once with the recorded inputs and compares digests.
func replayEntry(rt *runner.Runner, entry runner.TickLogEntry, verifyFrom uint64, checked *uint64) error {
	if want := rt.CurrentTick() + 1; entry.Tick != want {
		return fmt.Errorf("tick gap: want=%d got=%d", want, entry.Tick)
	}

	envs := make([]runner.Envelope, 0, len(entry.Inputs))
	for _, ri := range entry.Inputs {
		in, ok := ri.Input()
		if !ok {
			return fmt.Errorf("tick %d: unknown recorded verb %q", entry.Tick, ri.Verb)
		}
		envs = append(envs, runner.Envelope{SessionID: ri.SessionID, Seq: ri.Seq, Input: in})
	}

	tick, gotDigest := rt.StepOnce(entry.DT, envs)

	// Sanity check: StepOnce should have stepped the same tick.
	if tick != entry.Tick {
		return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, entry.Tick)
	}
	if tick >= verifyFrom {
		*checked++
		if gotDigest != entry.Digest {
			return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
		}
	}
	return nil
}
