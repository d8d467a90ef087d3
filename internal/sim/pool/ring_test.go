package pool

import (
	"testing"

	"neonlane.ai/internal/sim/logic/mathx"
)

var lanes = []float64{-8, 0, 8}

func cityCfg() Config {
	return Config{Kind: KindCity, Count: 120, PerRow: 3, Spacing: 8, Start: 0, Threshold: 8, Speed: 20,
		Lanes: lanes, Y: -0.5, Scale: 0.5, ScaleJitter: 4}
}

func ionCfg() Config {
	return Config{Kind: KindIon, Count: 12, PerRow: 1, Spacing: 10, Start: -4, Threshold: 4, Speed: 24,
		Lanes: lanes, Y: 1, YJitter: 1.5, Spin: 1}
}

func formationCfg() Config {
	return Config{Kind: KindFormation, Count: 6, PerRow: 1, Spacing: 20, Start: -12, Threshold: 6, Jitter: 20,
		Speed: 14, SpeedJitter: 4, Lanes: lanes, Y: 1.5, YJitter: 2, LateralSpread: 6, Spin: 0.3}
}

func railCfg() Config {
	return Config{Kind: KindRail, Count: 3, PerRow: 1, Spacing: 90, Start: -60, Threshold: 6, Speed: 20,
		Lanes: lanes, Y: 1.2, Bonus: 10, BonusJitter: 10}
}

func assertBounded(t *testing.T, r *Ring, step int) {
	t.Helper()
	if r.Len() != r.Cfg.Count {
		t.Fatalf("step %d: len=%d want %d", step, r.Len(), r.Cfg.Count)
	}
	floor := r.Cfg.Floor()
	for i, o := range r.Items {
		if o.Pos.Z > r.Cfg.Threshold || o.Pos.Z < floor {
			t.Fatalf("step %d: slot %d z=%.3f outside [%.3f, %.3f]", step, i, o.Pos.Z, floor, r.Cfg.Threshold)
		}
		if o.Kind != r.Cfg.Kind {
			t.Fatalf("step %d: slot %d kind=%s want %s", step, i, o.Kind, r.Cfg.Kind)
		}
	}
}

func TestConfig_Span(t *testing.T) {
	if got := cityCfg().Span(); got != 320 {
		t.Fatalf("city span=%v want 320", got)
	}
	if got := ionCfg().Span(); got != 120 {
		t.Fatalf("ion span=%v want 120", got)
	}
	if got := formationCfg().Floor(); got != 6-120-20 {
		t.Fatalf("formation floor=%v", got)
	}
	if rc := railCfg(); rc.Floor() != rc.Threshold-rc.Span() {
		t.Fatalf("jitter-free floor=%v want %v", rc.Floor(), rc.Threshold-rc.Span())
	}
}

func TestNew_SpawnsEverySlot(t *testing.T) {
	rng := mathx.NewRand(1)
	for _, cfg := range []Config{cityCfg(), ionCfg(), formationCfg(), railCfg()} {
		r := New(cfg, &rng)
		assertBounded(t, &r, 0)
	}
}

func TestNew_CityRowsCoverEveryLane(t *testing.T) {
	rng := mathx.NewRand(1)
	r := New(cityCfg(), &rng)
	for i, o := range r.Items {
		if o.Lane != i%3 {
			t.Fatalf("slot %d lane=%d want %d", i, o.Lane, i%3)
		}
		if o.Pos.X != lanes[o.Lane] {
			t.Fatalf("slot %d x=%v want %v", i, o.Pos.X, lanes[o.Lane])
		}
		if want := -float64(i/3) * 8; o.Pos.Z != want {
			t.Fatalf("slot %d z=%v want %v", i, o.Pos.Z, want)
		}
		if o.Scale < 0.5 || o.Scale >= 4.5 {
			t.Fatalf("slot %d scale=%v outside [0.5,4.5)", i, o.Scale)
		}
	}
}

func TestUpdate_CountAndBoundsHoldOverManyTicks(t *testing.T) {
	rng := mathx.NewRand(99)
	rings := []Ring{New(cityCfg(), &rng), New(ionCfg(), &rng), New(formationCfg(), &rng), New(railCfg(), &rng)}
	dtRng := mathx.NewRand(5)
	for step := 1; step <= 5000; step++ {
		dt := dtRng.Float64() * 0.05
		for i := range rings {
			rings[i].Update(dt, &rng)
			assertBounded(t, &rings[i], step)
		}
	}
	for i := range rings {
		var gens uint64
		for _, o := range rings[i].Items {
			gens += o.Generation
		}
		if gens != rings[i].Recycled {
			t.Fatalf("ring %s: generations=%d recycled=%d", rings[i].Cfg.Kind, gens, rings[i].Recycled)
		}
		if rings[i].Recycled == 0 {
			t.Fatalf("ring %s never recycled", rings[i].Cfg.Kind)
		}
	}
}

func TestUpdate_InPlaceRecycleWrapsBySpan(t *testing.T) {
	rng := mathx.NewRand(3)
	r := New(ionCfg(), &rng)
	r.Items[0].Pos.Z = 3.9
	r.Items[0].Consume(0)
	rec := r.Update(0.01, &rng) // 3.9 + 0.24 = 4.14 > 4
	if len(rec) != 1 || rec[0].Slot != 0 || rec[0].Replaced {
		t.Fatalf("unexpected recycles: %+v", rec)
	}
	o := r.Items[0]
	if want := 4.14 - 120; o.Pos.Z < want-1e-9 || o.Pos.Z > want+1e-9 {
		t.Fatalf("z=%v want %v", o.Pos.Z, want)
	}
	if o.Consumed {
		t.Fatalf("recycled ion should be armed again")
	}
	if o.Generation != 1 {
		t.Fatalf("generation=%d want 1", o.Generation)
	}
}

func TestUpdate_FormationsReplaceWithValidShapes(t *testing.T) {
	rng := mathx.NewRand(11)
	r := New(formationCfg(), &rng)
	seen := map[Shape]bool{}
	replaced := 0
	for step := 0; step < 20000; step++ {
		for _, rc := range r.Update(0.05, &rng) {
			if !rc.Replaced {
				t.Fatalf("formation recycle must replace: %+v", rc)
			}
			if !rc.From.Valid() || !rc.To.Valid() {
				t.Fatalf("invalid shape in recycle: %+v", rc)
			}
			o := r.Items[rc.Slot]
			if o.Shape != rc.To || o.Parts != o.Shape.Parts() {
				t.Fatalf("slot %d shape=%s parts=%d, recycle says %s", rc.Slot, o.Shape, o.Parts, rc.To)
			}
			if o.Rotation != 0 || o.Phase != 0 {
				t.Fatalf("replacement should be freshly built, rotation=%v phase=%v", o.Rotation, o.Phase)
			}
			seen[o.Shape] = true
			replaced++
		}
		for _, o := range r.Items {
			if !o.Shape.Valid() {
				t.Fatalf("step %d: invalid shape %d", step, o.Shape)
			}
		}
	}
	if replaced == 0 {
		t.Fatalf("no formation was replaced")
	}
	for _, s := range Shapes {
		if !seen[s] {
			t.Fatalf("shape %s never rolled", s)
		}
	}
}

func TestUpdate_TimedRearm(t *testing.T) {
	rng := mathx.NewRand(4)
	r := New(ionCfg(), &rng)
	r.Items[5].Consume(0.2)
	r.Update(0.1, &rng)
	if !r.Items[5].Consumed {
		t.Fatalf("should still be consumed after 0.1s")
	}
	r.Update(0.15, &rng)
	if r.Items[5].Consumed || r.Items[5].RearmIn != 0 {
		t.Fatalf("should be re-armed after 0.25s: %+v", r.Items[5])
	}
}

func TestUpdate_ConsumedUntilRecycle(t *testing.T) {
	rng := mathx.NewRand(4)
	r := New(railCfg(), &rng)
	r.Items[1].Consume(0)
	for i := 0; i < 10; i++ {
		r.Update(0.01, &rng)
	}
	if !r.Items[1].Consumed {
		t.Fatalf("rail node should stay consumed until recycled")
	}
}

func TestUpdate_SpiralDriftsAroundLateral(t *testing.T) {
	rng := mathx.NewRand(8)
	r := New(formationCfg(), &rng)
	r.Items[0].Shape = ShapeSpiral
	r.Items[0].Lateral = 1
	r.Items[0].Pos.Z = -100
	for i := 0; i < 40; i++ {
		r.Update(0.05, &rng)
		if r.Items[0].Generation != 0 {
			break
		}
		if dx := r.Items[0].Pos.X - 1; dx > spiralDriftAmp+1e-9 || dx < -spiralDriftAmp-1e-9 {
			t.Fatalf("spiral drift %v exceeds amplitude", dx)
		}
	}
}

func TestClone_IsIndependent(t *testing.T) {
	rng := mathx.NewRand(2)
	r := New(ionCfg(), &rng)
	c := r.Clone()
	c.Items[0].Pos.Z = 1000
	if r.Items[0].Pos.Z == 1000 {
		t.Fatalf("clone shares items with original")
	}
}

func TestRailBonusRange(t *testing.T) {
	rng := mathx.NewRand(6)
	r := New(railCfg(), &rng)
	for _, o := range r.Items {
		if o.Bonus < 10 || o.Bonus >= 20 {
			t.Fatalf("bonus=%v outside [10,20)", o.Bonus)
		}
	}
}
