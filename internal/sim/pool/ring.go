// Package pool implements fixed-size recycle rings of world objects laid out
// along the travel axis (z, increasing toward and past the player).
package pool

import (
	"neonlane.ai/internal/sim/logic/mathx"
)

// Config describes a ring. Objects share a row PerRow at a time (city columns
// fill every lane of a row); rows are Spacing apart starting at Start.
type Config struct {
	Kind Kind `json:"kind"`

	Count     int     `json:"count"`
	PerRow    int     `json:"per_row"`
	Spacing   float64 `json:"spacing"`
	Start     float64 `json:"start"`
	Threshold float64 `json:"threshold"`
	// Jitter adds up to this much extra pull-back on recycle, widening the
	// lower z bound from Threshold-Span to Threshold-Span-Jitter (see Floor).
	Jitter float64 `json:"jitter"`

	Speed       float64 `json:"speed"`
	SpeedJitter float64 `json:"speed_jitter"`

	Lanes         []float64 `json:"lanes"`
	Y             float64   `json:"y"`
	YJitter       float64   `json:"y_jitter"`
	LateralSpread float64   `json:"lateral_spread"`
	Scale         float64   `json:"scale"`
	ScaleJitter   float64   `json:"scale_jitter"`
	Bonus         float64   `json:"bonus"`
	BonusJitter   float64   `json:"bonus_jitter"`
	Spin          float64   `json:"spin"`
}

func (c Config) rows() int {
	per := c.PerRow
	if per <= 0 {
		per = 1
	}
	return (c.Count + per - 1) / per
}

// Span is the distance an object is moved back when it recycles.
func (c Config) Span() float64 { return float64(c.rows()) * c.Spacing }

// Floor is the lowest z any object can hold after an update.
func (c Config) Floor() float64 { return c.Threshold - c.Span() - c.Jitter }

// Ring holds exactly Cfg.Count objects for its whole life.
type Ring struct {
	Cfg   Config   `json:"cfg"`
	Items []Object `json:"items"`

	Recycled uint64 `json:"recycled"`
}

// Recycle reports one slot that crossed the threshold during Update.
type Recycle struct {
	Slot     int   `json:"slot"`
	Replaced bool  `json:"replaced,omitempty"`
	From     Shape `json:"from,omitempty"`
	To       Shape `json:"to,omitempty"`
}

// New builds a ring and spawns every slot at its initial row.
func New(cfg Config, rng *mathx.Rand) Ring {
	if cfg.PerRow <= 0 {
		cfg.PerRow = 1
	}
	r := Ring{Cfg: cfg, Items: make([]Object, cfg.Count)}
	for i := range r.Items {
		row := i / cfg.PerRow
		r.Items[i] = r.Spawn(i, cfg.Start-float64(row)*cfg.Spacing, rng)
	}
	return r
}

// Spawn constructs the object for slot at travel coordinate z with freshly
// rolled parameters.
func (r *Ring) Spawn(slot int, z float64, rng *mathx.Rand) Object {
	c := r.Cfg
	o := Object{Kind: c.Kind, Spin: c.Spin}
	o.Speed = c.Speed
	if c.SpeedJitter > 0 {
		o.Speed += rng.Float64() * c.SpeedJitter
	}
	r.roll(&o, slot, rng)
	o.Pos.Z = z
	return o
}

// roll re-randomizes placement and kind parameters, keeping z.
func (r *Ring) roll(o *Object, slot int, rng *mathx.Rand) {
	c := r.Cfg
	switch {
	case c.Kind == KindCity && len(c.Lanes) > 0:
		o.Lane = slot % c.PerRow % len(c.Lanes)
	case len(c.Lanes) > 0 && c.LateralSpread <= 0:
		o.Lane = rng.Intn(len(c.Lanes))
	}
	if c.LateralSpread > 0 {
		o.Lateral = rng.Spread(c.LateralSpread)
		o.Pos.X = o.Lateral
	} else if len(c.Lanes) > 0 {
		o.Pos.X = c.Lanes[o.Lane]
	}

	o.BaseY = c.Y
	if c.YJitter > 0 {
		o.BaseY += rng.Float64() * c.YJitter
	}
	o.Pos.Y = o.BaseY

	switch c.Kind {
	case KindCity:
		o.Scale = c.Scale + rng.Float64()*c.ScaleJitter
	case KindRail:
		o.Bonus = c.Bonus + rng.Float64()*c.BonusJitter
	case KindFormation:
		o.Shape = Shapes[rng.Intn(len(Shapes))]
		o.Parts = o.Shape.Parts()
		o.Spin = c.Spin * o.Shape.spinScale()
	}
}

// Update advances every object by its speed and recycles those that crossed
// the threshold. City columns, ions and rail nodes are recycled in place with
// new parameters; formations are replaced by a newly built object whose shape
// is rolled again. The returned slice lists recycled slots in slot order.
func (r *Ring) Update(dt float64, rng *mathx.Rand) []Recycle {
	var out []Recycle
	span := r.Cfg.Span()
	for i := range r.Items {
		o := &r.Items[i]
		o.Pos.Z += o.Speed * dt
		o.animate(dt)
		if o.RearmIn > 0 {
			o.RearmIn -= dt
			if o.RearmIn <= 0 {
				o.Arm()
			}
		}
		if o.Pos.Z <= r.Cfg.Threshold || span <= 0 {
			continue
		}

		z := o.Pos.Z
		for z > r.Cfg.Threshold {
			z -= span
		}
		if r.Cfg.Jitter > 0 {
			z -= rng.Float64() * r.Cfg.Jitter
		}
		gen := o.Generation + 1
		r.Recycled++

		if r.Cfg.Kind == KindFormation {
			from := o.Shape
			*o = r.Spawn(i, z, rng)
			o.Generation = gen
			out = append(out, Recycle{Slot: i, Replaced: true, From: from, To: o.Shape})
			continue
		}

		r.roll(o, i, rng)
		o.Pos.Z = z
		o.Arm()
		o.Generation = gen
		out = append(out, Recycle{Slot: i})
	}
	return out
}

// Clone returns a ring with its own Items slice.
func (r Ring) Clone() Ring {
	items := make([]Object, len(r.Items))
	copy(items, r.Items)
	r.Items = items
	return r
}

// Len is the live object count; it always equals Cfg.Count.
func (r *Ring) Len() int { return len(r.Items) }
