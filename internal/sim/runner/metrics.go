package runner

// RunMetrics is a thread-safe read-only view of key run signals.
// It is updated from the run loop goroutine and read from HTTP handlers/tests.
type RunMetrics struct {
	Tick      uint64 `json:"tick"`
	RunID     string `json:"run_id"`
	Pilots    int    `json:"pilots"`
	Observers int    `json:"observers"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	Distance  float64 `json:"distance"`
	Altitude  float64 `json:"altitude"`
	Lattice   float64 `json:"lattice"`
	Combo     float64 `json:"combo"`
	Integrity float64 `json:"integrity"`
	Mode      string  `json:"mode"`
	Lane      int     `json:"lane"`
	Depleted  bool    `json:"depleted"`

	Stats Stats `json:"stats"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
	Admin int `json:"admin"`
}

func (r *Runner) Metrics() RunMetrics {
	if r == nil {
		return RunMetrics{}
	}
	m, _ := r.metrics.Load().(RunMetrics)
	return m
}

func (r *Runner) publishMetrics(stepMS float64) {
	s := r.state
	pilots := 0
	if r.pilot != nil {
		pilots = 1
	}
	r.metrics.Store(RunMetrics{
		Tick:      s.Tick,
		RunID:     r.cfg.RunID,
		Pilots:    pilots,
		Observers: len(r.observers),
		QueueDepths: QueueDepths{
			Inbox: len(r.inbox),
			Join:  len(r.join),
			Leave: len(r.leave),
			Admin: len(r.admin),
		},
		StepMS:    stepMS,
		Distance:  s.Distance,
		Altitude:  s.Altitude,
		Lattice:   s.Meter.Lattice,
		Combo:     s.Meter.Combo,
		Integrity: s.Meter.Integrity,
		Mode:      s.Player.Mode.String(),
		Lane:      s.Player.Lane.Index,
		Depleted:  s.Meter.Integrity <= 0,
		Stats:     s.Stats,
	})
}

// Summary is the run record kept in the index database.
type Summary struct {
	RunID        string  `json:"run_id"`
	Seed         int64   `json:"seed"`
	TuningDigest string  `json:"tuning_digest"`
	Ticks        uint64  `json:"ticks"`
	Time         float64 `json:"time"`
	Distance     float64 `json:"distance"`
	PeakCombo    float64 `json:"peak_combo"`
	Pickups      uint64  `json:"pickups"`
	Hits         uint64  `json:"hits"`
	RailEntries  uint64  `json:"rail_entries"`
	Integrity    float64 `json:"integrity"`
}

func SummaryOf(runID string, seed int64, tuningDigest string, s State) Summary {
	return Summary{
		RunID:        runID,
		Seed:         seed,
		TuningDigest: tuningDigest,
		Ticks:        s.Tick,
		Time:         s.Time,
		Distance:     s.Distance,
		PeakCombo:    s.Stats.PeakCombo,
		Pickups:      s.Stats.Pickups,
		Hits:         s.Stats.Hits,
		RailEntries:  s.Stats.RailEntries,
		Integrity:    s.Meter.Integrity,
	}
}

// Summary is safe from any goroutine; it reads the latest published snapshot.
func (r *Runner) Summary() Summary {
	snap := r.Latest()
	return Summary{
		RunID:        r.cfg.RunID,
		Seed:         r.cfg.Seed,
		TuningDigest: TuningDigest(r.cfg.Tuning),
		Ticks:        snap.Tick,
		Time:         snap.Time,
		Distance:     snap.Distance,
		PeakCombo:    snap.Stats.PeakCombo,
		Pickups:      snap.Stats.Pickups,
		Hits:         snap.Stats.Hits,
		RailEntries:  snap.Stats.RailEntries,
		Integrity:    snap.Meter.Integrity,
	}
}
