package pool

import (
	"math"

	"neonlane.ai/internal/sim/logic/mathx"
)

type Kind uint8

const (
	KindCity Kind = iota + 1
	KindIon
	KindRail
	KindFormation
)

func (k Kind) String() string {
	switch k {
	case KindCity:
		return "CITY"
	case KindIon:
		return "ION"
	case KindRail:
		return "RAIL"
	case KindFormation:
		return "FORMATION"
	default:
		return "UNKNOWN"
	}
}

// Shape is the closed set of hostile formation patterns.
type Shape uint8

const (
	ShapeNone Shape = iota
	ShapeArc
	ShapeSpiral
	ShapeBloom
)

// Shapes lists every formation shape; rolls draw uniformly from it.
var Shapes = [...]Shape{ShapeArc, ShapeSpiral, ShapeBloom}

func (s Shape) Valid() bool {
	switch s {
	case ShapeArc, ShapeSpiral, ShapeBloom:
		return true
	}
	return false
}

func (s Shape) String() string {
	switch s {
	case ShapeArc:
		return "ARC"
	case ShapeSpiral:
		return "SPIRAL"
	case ShapeBloom:
		return "BLOOM"
	default:
		return "NONE"
	}
}

// Parts is the number of segments the renderer draws for the formation.
func (s Shape) Parts() int {
	switch s {
	case ShapeArc:
		return 5
	case ShapeSpiral:
		return 8
	case ShapeBloom:
		return 6
	default:
		return 0
	}
}

// spinScale multiplies the ring's base spin.
func (s Shape) spinScale() float64 {
	switch s {
	case ShapeSpiral:
		return 4
	case ShapeBloom:
		return 2
	default:
		return 1
	}
}

const (
	spiralDriftAmp  = 1.5
	spiralDriftFreq = 2.0
	bloomBobAmp     = 0.5
	bloomBobFreq    = 3.0
)

// Object is one recycled world object. Which fields carry meaning depends on
// Kind: Scale for city columns, Bonus for rail nodes, Shape/Parts/Lateral for
// formations. Consumed/RearmIn implement one-shot pickup semantics.
type Object struct {
	Kind  Kind  `json:"kind"`
	Shape Shape `json:"shape,omitempty"`

	Pos     mathx.Vec3 `json:"pos"`
	Lane    int        `json:"lane"`
	Lateral float64    `json:"lateral,omitempty"`
	BaseY   float64    `json:"base_y"`

	Scale    float64 `json:"scale,omitempty"`
	Bonus    float64 `json:"bonus,omitempty"`
	Speed    float64 `json:"speed"`
	Spin     float64 `json:"spin,omitempty"`
	Phase    float64 `json:"phase,omitempty"`
	Rotation float64 `json:"rotation,omitempty"`
	Parts    int     `json:"parts,omitempty"`

	Consumed bool    `json:"consumed,omitempty"`
	RearmIn  float64 `json:"rearm_in,omitempty"`

	// Generation counts recycles of this slot.
	Generation uint64 `json:"generation"`
}

// Arm makes the object collectible again.
func (o *Object) Arm() {
	o.Consumed = false
	o.RearmIn = 0
}

// Consume marks the object as fired. rearmIn > 0 re-arms it after that many
// seconds; otherwise it stays consumed until recycled.
func (o *Object) Consume(rearmIn float64) {
	o.Consumed = true
	if rearmIn > 0 {
		o.RearmIn = rearmIn
	} else {
		o.RearmIn = 0
	}
}

// animate advances the kind-specific motion that does not depend on travel.
func (o *Object) animate(dt float64) {
	o.Phase += dt
	o.Rotation += o.Spin * dt
	if o.Kind != KindFormation {
		return
	}
	switch o.Shape {
	case ShapeSpiral:
		o.Pos.X = o.Lateral + math.Sin(o.Phase*spiralDriftFreq)*spiralDriftAmp
	case ShapeBloom:
		o.Pos.Y = o.BaseY + math.Sin(o.Phase*bloomBobFreq)*bloomBobAmp
	case ShapeArc:
		o.Pos.X = o.Lateral
	}
}
