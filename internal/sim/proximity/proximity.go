// Package proximity tests world objects against the player position.
package proximity

import (
	"neonlane.ai/internal/sim/logic/mathx"
	"neonlane.ai/internal/sim/pool"
	"neonlane.ai/internal/sim/tuning"
)

// Distance is the Euclidean distance between two points.
func Distance(a, b mathx.Vec3) float64 { return mathx.Dist(a, b) }

// Radii are the trigger distances per object kind. A hit requires a distance
// strictly below the radius.
type Radii struct {
	Ion     float64 `json:"ion"`
	Rail    float64 `json:"rail"`
	Hostile float64 `json:"hostile"`

	// IonRearmSeconds > 0 re-arms an ion that long after it fired; 0 keeps it
	// consumed until its ring recycles it.
	IonRearmSeconds float64 `json:"ion_rearm_seconds"`
}

// FromTuning maps the tuning radii onto a Radii value, resolving the ion
// re-arm policy into a duration.
func FromTuning(t tuning.Radii) Radii {
	r := Radii{Ion: t.Ion, Rail: t.Rail, Hostile: t.Hostile}
	if t.IonRearm == tuning.RearmTimed {
		r.IonRearmSeconds = t.IonRearmSeconds
	}
	return r
}

// For returns the radius for k. City columns never trigger.
func (r Radii) For(k pool.Kind) float64 {
	switch k {
	case pool.KindIon:
		return r.Ion
	case pool.KindRail:
		return r.Rail
	case pool.KindFormation:
		return r.Hostile
	default:
		return 0
	}
}

// Hit is one object that fired this tick.
type Hit struct {
	Kind     pool.Kind  `json:"kind"`
	Slot     int        `json:"slot"`
	Shape    pool.Shape `json:"shape,omitempty"`
	Bonus    float64    `json:"bonus,omitempty"`
	Distance float64    `json:"distance"`
}

type Detector struct {
	Radii Radii
}

func New(r Radii) Detector { return Detector{Radii: r} }

// Within reports whether a and b are closer than radius.
func Within(a, b mathx.Vec3, radius float64) bool {
	return radius > 0 && Distance(a, b) < radius
}

// Scan tests every armed object of ring against player once and marks the
// ones that fired as consumed, so a single overlap spanning several ticks is
// counted once. Hits are returned in slot order.
func (d Detector) Scan(player mathx.Vec3, ring *pool.Ring) []Hit {
	radius := d.Radii.For(ring.Cfg.Kind)
	if radius <= 0 {
		return nil
	}
	var hits []Hit
	for i := range ring.Items {
		o := &ring.Items[i]
		if o.Consumed {
			continue
		}
		dist := Distance(player, o.Pos)
		if dist >= radius {
			continue
		}
		rearm := 0.0
		if o.Kind == pool.KindIon {
			rearm = d.Radii.IonRearmSeconds
		}
		o.Consume(rearm)
		hits = append(hits, Hit{Kind: o.Kind, Slot: i, Shape: o.Shape, Bonus: o.Bonus, Distance: dist})
	}
	return hits
}
