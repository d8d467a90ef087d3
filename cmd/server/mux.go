package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"neonlane.ai/internal/protocol"
	"neonlane.ai/internal/sim/runner"
	"neonlane.ai/internal/transport/observer"
	"neonlane.ai/internal/transport/ws"
)

func buildMux(rt *runner.Runner, idx runtimeIndex, logger *log.Logger, enableAdminHTTP, enablePprofHTTP bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeRunMetrics(rw, rt)
		writeIndexMetrics(rw, rt.RunID(), idx)
	})

	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				RunID   string            `json:"run_id"`
				Tick    uint64            `json:"tick"`
				Metrics runner.RunMetrics `json:"metrics"`
				Summary runner.Summary    `json:"summary"`
				Frame   protocol.FrameMsg `json:"frame"`
			}{
				RunID:   rt.RunID(),
				Tick:    rt.CurrentTick(),
				Metrics: rt.Metrics(),
				Summary: rt.Summary(),
				Frame:   runner.Frame(rt.Latest(), nil, false),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			tick, err := rt.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})

		obsSrv := observer.NewServer(rt, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else if logger != nil {
		logger.Printf("admin endpoints disabled (NL_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else if logger != nil {
		logger.Printf("pprof endpoints disabled (NL_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(rt, logger).Handler())
	return mux
}

func writeRunMetrics(w io.Writer, rt *runner.Runner) {
	m := rt.Metrics()
	run := rt.RunID()
	tick := rt.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	// Minimal Prometheus exposition format.
	fmt.Fprintf(w, "# HELP neonlane_run_tick Current run tick.\n")
	fmt.Fprintf(w, "# TYPE neonlane_run_tick gauge\n")
	fmt.Fprintf(w, "neonlane_run_tick{run=%q} %d\n", run, tick)

	fmt.Fprintf(w, "# HELP neonlane_run_clients Connected sessions by role.\n")
	fmt.Fprintf(w, "# TYPE neonlane_run_clients gauge\n")
	fmt.Fprintf(w, "neonlane_run_clients{run=%q,role=%q} %d\n", run, "pilot", m.Pilots)
	fmt.Fprintf(w, "neonlane_run_clients{run=%q,role=%q} %d\n", run, "observer", m.Observers)

	fmt.Fprintf(w, "# HELP neonlane_run_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(w, "# TYPE neonlane_run_queue_depth gauge\n")
	fmt.Fprintf(w, "neonlane_run_queue_depth{run=%q,queue=%q} %d\n", run, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(w, "neonlane_run_queue_depth{run=%q,queue=%q} %d\n", run, "join", m.QueueDepths.Join)
	fmt.Fprintf(w, "neonlane_run_queue_depth{run=%q,queue=%q} %d\n", run, "leave", m.QueueDepths.Leave)
	fmt.Fprintf(w, "neonlane_run_queue_depth{run=%q,queue=%q} %d\n", run, "admin", m.QueueDepths.Admin)

	fmt.Fprintf(w, "# HELP neonlane_run_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(w, "# TYPE neonlane_run_step_ms gauge\n")
	fmt.Fprintf(w, "neonlane_run_step_ms{run=%q} %.3f\n", run, m.StepMS)

	fmt.Fprintf(w, "# HELP neonlane_run_distance Distance travelled.\n")
	fmt.Fprintf(w, "# TYPE neonlane_run_distance gauge\n")
	fmt.Fprintf(w, "neonlane_run_distance{run=%q} %.3f\n", run, m.Distance)

	fmt.Fprintf(w, "# HELP neonlane_meter Meter readings.\n")
	fmt.Fprintf(w, "# TYPE neonlane_meter gauge\n")
	fmt.Fprintf(w, "neonlane_meter{run=%q,meter=%q} %.6f\n", run, "lattice", m.Lattice)
	fmt.Fprintf(w, "neonlane_meter{run=%q,meter=%q} %.6f\n", run, "combo", m.Combo)
	fmt.Fprintf(w, "neonlane_meter{run=%q,meter=%q} %.6f\n", run, "integrity", m.Integrity)
	fmt.Fprintf(w, "neonlane_meter{run=%q,meter=%q} %.6f\n", run, "altitude", m.Altitude)

	fmt.Fprintf(w, "# HELP neonlane_events_total Gameplay events since run start.\n")
	fmt.Fprintf(w, "# TYPE neonlane_events_total counter\n")
	fmt.Fprintf(w, "neonlane_events_total{run=%q,type=%q} %d\n", run, runner.EventIon, m.Stats.Pickups)
	fmt.Fprintf(w, "neonlane_events_total{run=%q,type=%q} %d\n", run, runner.EventRailEnter, m.Stats.RailEntries)
	fmt.Fprintf(w, "neonlane_events_total{run=%q,type=%q} %d\n", run, runner.EventHostile, m.Stats.Hits)
	fmt.Fprintf(w, "neonlane_events_total{run=%q,type=%q} %d\n", run, runner.EventHostileIgnored, m.Stats.HitsIgnored)
	fmt.Fprintf(w, "neonlane_events_total{run=%q,type=%q} %d\n", run, runner.EventBurst, m.Stats.Bursts)
	fmt.Fprintf(w, "neonlane_events_total{run=%q,type=%q} %d\n", run, runner.EventVault, m.Stats.Vaults)

	fmt.Fprintf(w, "# HELP neonlane_recycled_total Objects recycled ahead of the pilot.\n")
	fmt.Fprintf(w, "# TYPE neonlane_recycled_total counter\n")
	fmt.Fprintf(w, "neonlane_recycled_total{run=%q} %d\n", run, m.Stats.Recycled)

	depleted := 0
	if m.Depleted {
		depleted = 1
	}
	fmt.Fprintf(w, "# HELP neonlane_integrity_depleted 1 once integrity has reached zero.\n")
	fmt.Fprintf(w, "# TYPE neonlane_integrity_depleted gauge\n")
	fmt.Fprintf(w, "neonlane_integrity_depleted{run=%q} %d\n", run, depleted)
}

func writeIndexMetrics(w io.Writer, run string, idx runtimeIndex) {
	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(w, "# HELP neonlane_index_queue_depth Index writer queue depth.\n")
	fmt.Fprintf(w, "# TYPE neonlane_index_queue_depth gauge\n")
	fmt.Fprintf(w, "neonlane_index_queue_depth{run=%q} %d\n", run, s.QueueDepth)
	fmt.Fprintf(w, "neonlane_index_queue_capacity{run=%q} %d\n", run, s.QueueCapacity)

	fmt.Fprintf(w, "# HELP neonlane_index_dropped_total Index records dropped under backpressure.\n")
	fmt.Fprintf(w, "# TYPE neonlane_index_dropped_total counter\n")
	fmt.Fprintf(w, "neonlane_index_dropped_total{run=%q,kind=%q} %d\n", run, "tick", s.DropTickTotal)
	fmt.Fprintf(w, "neonlane_index_dropped_total{run=%q,kind=%q} %d\n", run, "snapshot", s.DropSnapshotTotal)
	fmt.Fprintf(w, "neonlane_index_dropped_total{run=%q,kind=%q} %d\n", run, "run", s.DropRunTotal)
	fmt.Fprintf(w, "neonlane_index_dropped_total{run=%q,kind=%q} %d\n", run, "retained", s.QueueDroppedTotal)

	fmt.Fprintf(w, "# HELP neonlane_index_flush_fail_total Failed remote index flushes.\n")
	fmt.Fprintf(w, "# TYPE neonlane_index_flush_fail_total counter\n")
	fmt.Fprintf(w, "neonlane_index_flush_fail_total{run=%q} %d\n", run, s.FlushFailTotal)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
