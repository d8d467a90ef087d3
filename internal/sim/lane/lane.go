// Package lane holds the discrete lane selection and the smoothed lateral
// position that chases it.
package lane

import "neonlane.ai/internal/sim/logic/mathx"

const DefaultSmoothing = 5.0

// Controller is a plain value: copying it copies the selection. Lanes is
// treated as read-only after construction.
type Controller struct {
	Lanes     []float64 `json:"lanes"`
	Smoothing float64   `json:"smoothing"`
	Index     int       `json:"index"`
}

func New(lanes []float64, start int, smoothing float64) Controller {
	if smoothing <= 0 {
		smoothing = DefaultSmoothing
	}
	c := Controller{Lanes: lanes, Smoothing: smoothing}
	c.Index = mathx.ClampInt(start, 0, c.max())
	return c
}

func (c Controller) Count() int { return len(c.Lanes) }

func (c Controller) max() int {
	if len(c.Lanes) == 0 {
		return 0
	}
	return len(c.Lanes) - 1
}

// Shift moves one lane left (-1) or right (+1). Boundaries and any other
// direction are no-ops. It reports whether the index changed.
func (c *Controller) Shift(dir int) bool {
	if dir != -1 && dir != 1 {
		return false
	}
	next := mathx.ClampInt(c.Index+dir, 0, c.max())
	if next == c.Index {
		return false
	}
	c.Index = next
	return true
}

// Target is the lateral coordinate of the selected lane.
func (c Controller) Target() float64 {
	if len(c.Lanes) == 0 {
		return 0
	}
	return c.Lanes[c.Index]
}

// Update moves x toward Target by Smoothing*dt of the remaining gap.
func (c Controller) Update(x, dt float64) float64 {
	k := c.Smoothing * dt
	if k > 1 {
		k = 1
	}
	if k < 0 {
		k = 0
	}
	return x + (c.Target()-x)*k
}
