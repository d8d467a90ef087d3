package runner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"neonlane.ai/internal/persistence/snapshot"
	"neonlane.ai/internal/sim/lane"
	"neonlane.ai/internal/sim/logic/mathx"
	"neonlane.ai/internal/sim/meter"
	"neonlane.ai/internal/sim/pool"
	"neonlane.ai/internal/sim/tuning"
)

// TuningDigest is the sha256 of the canonical JSON encoding of t.
func TuningDigest(t tuning.Tuning) string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func ExportSnapshot(runID string, t tuning.Tuning, s State) snapshot.SnapshotV1 {
	p := s.Player
	out := snapshot.SnapshotV1{
		Header:       snapshot.Header{Version: snapshot.Version, RunID: runID, Tick: s.Tick},
		Seed:         s.Rand.Seed,
		TickRate:     t.TickRateHz,
		TuningDigest: TuningDigest(t),
		Time:         s.Time,
		Distance:     s.Distance,
		Altitude:     s.Altitude,
		Player: snapshot.PlayerV1{
			Lane:         p.Lane.Index,
			Pos:          vec(p.Pos),
			Mode:         p.Mode.String(),
			VaultTimer:   p.VaultTimer,
			RailTimer:    p.RailTimer,
			DashCooldown: p.DashCooldown,
			PulseTimer:   p.PulseTimer,
		},
		Meter: snapshot.MeterV1{Lattice: s.Meter.Lattice, Combo: s.Meter.Combo, Integrity: s.Meter.Integrity},
		Rand:  snapshot.RandV1{Seed: s.Rand.Seed, Counter: s.Rand.Counter},
		Stats: snapshot.StatsV1(s.Stats),
	}
	for _, r := range []pool.Ring{s.City, s.Ions, s.Formations, s.Rails} {
		rv := snapshot.RingV1{Kind: r.Cfg.Kind.String(), Recycled: r.Recycled, Objects: make([]snapshot.ObjectV1, 0, len(r.Items))}
		for _, o := range r.Items {
			ov := snapshot.ObjectV1{
				Pos:        vec(o.Pos),
				Lane:       o.Lane,
				Lateral:    o.Lateral,
				BaseY:      o.BaseY,
				Scale:      o.Scale,
				Bonus:      o.Bonus,
				Speed:      o.Speed,
				Spin:       o.Spin,
				Phase:      o.Phase,
				Rotation:   o.Rotation,
				Parts:      o.Parts,
				Consumed:   o.Consumed,
				RearmIn:    o.RearmIn,
				Generation: o.Generation,
			}
			if o.Shape.Valid() {
				ov.Shape = o.Shape.String()
			}
			rv.Objects = append(rv.Objects, ov)
		}
		out.Rings = append(out.Rings, rv)
	}
	return out
}

func parseShape(s string) (pool.Shape, error) {
	if s == "" {
		return pool.ShapeNone, nil
	}
	for _, sh := range pool.Shapes {
		if sh.String() == s {
			return sh, nil
		}
	}
	return pool.ShapeNone, fmt.Errorf("unknown shape %q", s)
}

// StateFromSnapshot rebuilds a State under tuning t. The snapshot's tuning
// digest, when present, must equal t's; lanes and ring configs come from t.
func StateFromSnapshot(t tuning.Tuning, snap snapshot.SnapshotV1) (State, error) {
	var s State
	if snap.Header.Version != snapshot.Version {
		return s, fmt.Errorf("snapshot version %d", snap.Header.Version)
	}
	if d := TuningDigest(t); snap.TuningDigest != "" && snap.TuningDigest != d {
		return s, fmt.Errorf("snapshot tuning digest %s does not match active tuning %s", snap.TuningDigest, d)
	}
	mode, ok := ParseMode(snap.Player.Mode)
	if !ok {
		return s, fmt.Errorf("unknown player mode %q", snap.Player.Mode)
	}
	if snap.Player.Lane < 0 || snap.Player.Lane >= len(t.Lanes) {
		return s, fmt.Errorf("player lane %d outside %d lanes", snap.Player.Lane, len(t.Lanes))
	}

	s.Tick = snap.Header.Tick
	s.Time = snap.Time
	s.Distance = snap.Distance
	s.Altitude = snap.Altitude
	s.Player = Player{
		Lane:         lane.New(t.Lanes, snap.Player.Lane, t.LaneSmoothing),
		Pos:          mathx.V3(snap.Player.Pos[0], snap.Player.Pos[1], snap.Player.Pos[2]),
		Mode:         mode,
		VaultTimer:   snap.Player.VaultTimer,
		RailTimer:    snap.Player.RailTimer,
		DashCooldown: snap.Player.DashCooldown,
		PulseTimer:   snap.Player.PulseTimer,
	}
	s.Meter = meter.State{Lattice: snap.Meter.Lattice, Combo: snap.Meter.Combo, Integrity: snap.Meter.Integrity}.Clamped()
	s.Rand = mathx.Rand{Seed: snap.Rand.Seed, Counter: snap.Rand.Counter}
	s.Stats = Stats(snap.Stats)

	cfgs := RingConfigs(t)
	if len(snap.Rings) != len(cfgs) {
		return s, fmt.Errorf("snapshot has %d rings, want %d", len(snap.Rings), len(cfgs))
	}
	rings := s.rings()
	for i, rv := range snap.Rings {
		cfg := cfgs[i]
		if rv.Kind != cfg.Kind.String() {
			return s, fmt.Errorf("ring %d: kind %s, want %s", i, rv.Kind, cfg.Kind)
		}
		if len(rv.Objects) != cfg.Count {
			return s, fmt.Errorf("ring %s: %d objects, tuning wants %d", rv.Kind, len(rv.Objects), cfg.Count)
		}
		ring := pool.Ring{Cfg: cfg, Items: make([]pool.Object, len(rv.Objects)), Recycled: rv.Recycled}
		for j, ov := range rv.Objects {
			shape, err := parseShape(ov.Shape)
			if err != nil {
				return s, fmt.Errorf("ring %s slot %d: %w", rv.Kind, j, err)
			}
			ring.Items[j] = pool.Object{
				Kind:       cfg.Kind,
				Shape:      shape,
				Pos:        mathx.V3(ov.Pos[0], ov.Pos[1], ov.Pos[2]),
				Lane:       ov.Lane,
				Lateral:    ov.Lateral,
				BaseY:      ov.BaseY,
				Scale:      ov.Scale,
				Bonus:      ov.Bonus,
				Speed:      ov.Speed,
				Spin:       ov.Spin,
				Phase:      ov.Phase,
				Rotation:   ov.Rotation,
				Parts:      ov.Parts,
				Consumed:   ov.Consumed,
				RearmIn:    ov.RearmIn,
				Generation: ov.Generation,
			}
		}
		*rings[i] = ring
	}
	return s, nil
}
