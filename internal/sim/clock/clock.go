// Package clock turns frame callback timestamps into bounded step sizes.
package clock

import "neonlane.ai/internal/sim/logic/mathx"

// DefaultMaxStep bounds a single step after a stall (tab switch, GC pause).
const DefaultMaxStep = 0.05

// Clock keeps the previous timestamp only; it is not safe for concurrent use.
type Clock struct {
	MaxStep float64

	last    float64
	started bool
}

func New(maxStep float64) *Clock {
	if !(maxStep > 0) {
		maxStep = DefaultMaxStep
	}
	return &Clock{MaxStep: maxStep}
}

// Tick returns the seconds elapsed since the previous call, clamped to
// [0, MaxStep]. The first call returns 0. Non-finite timestamps are ignored.
func (c *Clock) Tick(nowMs float64) float64 {
	if !mathx.Finite(nowMs) {
		return 0
	}
	if !c.started {
		c.started = true
		c.last = nowMs
		return 0
	}
	delta := (nowMs - c.last) / 1000
	c.last = nowMs
	return Clamp(delta, c.MaxStep)
}

// Reset forgets the previous timestamp.
func (c *Clock) Reset() { c.started = false }

// Clamp bounds delta to [0, maxStep]; NaN and ±Inf map to 0.
func Clamp(delta, maxStep float64) float64 {
	if !mathx.Finite(delta) || delta < 0 {
		return 0
	}
	if delta > maxStep {
		return maxStep
	}
	return delta
}
