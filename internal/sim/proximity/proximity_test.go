package proximity

import (
	"math"
	"testing"

	"neonlane.ai/internal/sim/logic/mathx"
	"neonlane.ai/internal/sim/pool"
	"neonlane.ai/internal/sim/tuning"
)

func ring(kind pool.Kind, pos ...mathx.Vec3) *pool.Ring {
	r := &pool.Ring{Cfg: pool.Config{Kind: kind, Count: len(pos)}}
	for _, p := range pos {
		r.Items = append(r.Items, pool.Object{Kind: kind, Pos: p, Bonus: 12})
	}
	return r
}

func TestDistance(t *testing.T) {
	if d := Distance(mathx.V3(0, 0, 0), mathx.V3(2, 3, 6)); d != 7 {
		t.Fatalf("distance=%v want 7", d)
	}
}

func TestFromTuning_RearmPolicy(t *testing.T) {
	tr := tuning.Defaults().Radii
	if r := FromTuning(tr); r.IonRearmSeconds != 0.2 || r.Ion != 1.4 {
		t.Fatalf("timed radii=%+v", r)
	}
	tr.IonRearm = tuning.RearmRecycle
	tr.Ion = 1.2
	if r := FromTuning(tr); r.IonRearmSeconds != 0 || r.Ion != 1.2 {
		t.Fatalf("recycle radii=%+v", r)
	}
}

func TestScan_IonRadiusIsStrict(t *testing.T) {
	d := New(Radii{Ion: 1.4})
	player := mathx.V3(0, 1.2, 2)
	r := ring(pool.KindIon,
		mathx.V3(0, 1.2, 2+1.39),
		mathx.V3(0, 1.2, 2+1.4),
		mathx.V3(8, 1.2, 2),
	)
	hits := d.Scan(player, r)
	if len(hits) != 1 || hits[0].Slot != 0 || hits[0].Kind != pool.KindIon {
		t.Fatalf("hits=%+v", hits)
	}
	if !r.Items[0].Consumed || r.Items[1].Consumed || r.Items[2].Consumed {
		t.Fatalf("consumed flags wrong: %+v", r.Items)
	}
}

func TestScan_FiresOncePerOverlap(t *testing.T) {
	d := New(Radii{Ion: 1.4, IonRearmSeconds: 0.2})
	player := mathx.V3(0, 1, 0)
	r := ring(pool.KindIon, player)
	if n := len(d.Scan(player, r)); n != 1 {
		t.Fatalf("first scan hits=%d want 1", n)
	}
	for i := 0; i < 5; i++ {
		if n := len(d.Scan(player, r)); n != 0 {
			t.Fatalf("scan %d re-fired a consumed ion", i)
		}
	}
	if r.Items[0].RearmIn != 0.2 {
		t.Fatalf("rearm=%v want 0.2", r.Items[0].RearmIn)
	}
}

func TestScan_RecyclePolicyLeavesNoTimer(t *testing.T) {
	d := New(Radii{Ion: 1.4})
	r := ring(pool.KindIon, mathx.V3(0, 0, 0))
	d.Scan(mathx.V3(0, 0, 0), r)
	if !r.Items[0].Consumed || r.Items[0].RearmIn != 0 {
		t.Fatalf("ion=%+v", r.Items[0])
	}
}

func TestScan_RailsAndFormationsStayConsumed(t *testing.T) {
	d := New(Radii{Rail: 1.6, Hostile: 2.5, IonRearmSeconds: 0.2})
	rails := ring(pool.KindRail, mathx.V3(0, 1.2, 3))
	forms := ring(pool.KindFormation, mathx.V3(1, 2, 3))
	player := mathx.V3(0, 1.2, 2)

	rh := d.Scan(player, rails)
	if len(rh) != 1 || rh[0].Bonus != 12 {
		t.Fatalf("rail hits=%+v", rh)
	}
	fh := d.Scan(player, forms)
	if len(fh) != 1 {
		t.Fatalf("formation hits=%+v", fh)
	}
	if rails.Items[0].RearmIn != 0 || forms.Items[0].RearmIn != 0 {
		t.Fatalf("rails and formations must not re-arm on a timer")
	}
}

func TestScan_CityNeverTriggers(t *testing.T) {
	d := New(Radii{Ion: 100, Rail: 100, Hostile: 100})
	r := ring(pool.KindCity, mathx.V3(0, 0, 0))
	if hits := d.Scan(mathx.V3(0, 0, 0), r); hits != nil {
		t.Fatalf("city hits=%+v", hits)
	}
}

func TestWithin(t *testing.T) {
	if Within(mathx.V3(0, 0, 0), mathx.V3(0, 0, 0), 0) {
		t.Fatalf("zero radius must never match")
	}
	if !Within(mathx.V3(0, 0, 0), mathx.V3(1, 1, 0), math.Sqrt2+0.01) {
		t.Fatalf("expected within")
	}
}
