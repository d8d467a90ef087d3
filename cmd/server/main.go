package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "neonlane.ai/internal/persistence/log"
	"neonlane.ai/internal/persistence/snapshot"
	"neonlane.ai/internal/sim/runner"
	"neonlane.ai/internal/sim/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		runID      = flag.String("run", "run_1", "run id (data lives under <data>/runs/<run>)")
		seed       = flag.Int64("seed", 1337, "run seed (used only when starting a fresh run)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (ticks/events + tuning + snapshot metadata)")
		fixedStep  = flag.Bool("fixed_step", false, "advance exactly 1/tick_rate per tick instead of wall-clock delta")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	runDir := filepath.Join(*dataDir, "runs", *runID)
	_ = os.MkdirAll(runDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.Latest(runDir)
	}

	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	cfg := runner.Config{RunID: *runID, Seed: *seed, Tuning: tune, FixedStep: *fixedStep}
	var rt *runner.Runner
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.RunID != "" && snap.Header.RunID != *runID {
			logger.Fatalf("snapshot run id mismatch: flag=%s snap=%s", *runID, snap.Header.RunID)
		}
		rt, err = runner.Resume(cfg, snap)
		if err != nil {
			logger.Fatalf("resume: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), rt.CurrentTick())
	} else {
		rt, err = runner.New(cfg)
		if err != nil {
			logger.Fatalf("run: %v", err)
		}
	}
	rt.SetLogger(logger)

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(runDir, rt.RunID(), *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(runDir)
	eventLog := persistlog.NewEventLogger(runDir)
	defer tickLog.Close()
	defer eventLog.Close()
	rt.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	rt.SetEventLogger(eventLog)

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	rt.SetSnapshotSink(snapCh)
	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := snapshot.PathFor(runDir, snap.Header.Tick)
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
					idx.RecordRun(rt.Summary())
				}
			}
		}
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := rt.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("run stopped: %v", err)
		}
	}()

	mux := buildMux(rt, idx,
		logger,
		envBool("NL_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		envBool("NL_ENABLE_PPROF_HTTP", false),
	)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("run=%s listening on %s", rt.RunID(), *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	cancel()
	<-runDone
	<-snapDone
	sum := rt.Summary()
	if idx != nil {
		idx.RecordRun(sum)
	}
	logger.Printf("run=%s stopped tick=%d distance=%.1f pickups=%d hits=%d", sum.RunID, sum.Ticks, sum.Distance, sum.Pickups, sum.Hits)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
