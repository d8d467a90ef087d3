package main

import (
	"math"

	"neonlane.ai/internal/protocol"
)

// Look-ahead windows in world units along -Z.
const (
	dodgeRange = 40.0
	chaseRange = 60.0
	burstAbove = 60.0
)

type autopilot struct {
	lanes []float64
	seq   uint64
	// lastTick guards against acting twice on the same frame.
	lastTick uint64
}

type sighting struct {
	lane int
	dist float64
}

// decide returns the inputs for one frame: dodge a formation in the current
// lane first, otherwise steer toward the nearest ion or rail, and burst when
// the lattice meter is high.
func (a *autopilot) decide(f protocol.FrameMsg) []protocol.InputMsg {
	if len(a.lanes) == 0 || f.Tick == a.lastTick {
		return nil
	}
	a.lastTick = f.Tick

	var out []protocol.InputMsg
	cur := f.Player.Lane
	pz := f.Player.Pos[2]

	blocked := map[int]float64{}
	var target *sighting
	for _, o := range f.Objects {
		if o.Consumed {
			continue
		}
		dist := pz - o.Pos[2]
		if dist < 0 {
			continue
		}
		lane := a.laneOf(o.Pos[0])
		switch o.Kind {
		case "FORMATION":
			if dist <= dodgeRange {
				if d, ok := blocked[lane]; !ok || dist < d {
					blocked[lane] = dist
				}
			}
		case "ION", "RAIL":
			if dist <= chaseRange && (target == nil || dist < target.dist) {
				target = &sighting{lane: lane, dist: dist}
			}
		}
	}

	if _, danger := blocked[cur]; danger && f.Player.Mode != "ON_RAIL" {
		if dir := a.escape(cur, blocked); dir != 0 {
			out = append(out, a.input("LANE_SHIFT", dir))
		} else {
			out = append(out, a.input("VAULT", 0))
		}
	} else if target != nil && target.lane != cur {
		dir := 1
		if target.lane < cur {
			dir = -1
		}
		if _, danger := blocked[cur+dir]; !danger {
			out = append(out, a.input("LANE_SHIFT", dir))
		}
	}

	if f.HUD.Lattice >= burstAbove && f.Player.DashCooldown <= 0 {
		out = append(out, a.input("BURST", 0))
	}
	return out
}

// escape picks the neighbouring lane with no formation, preferring the one
// whose nearest formation is farthest away.
func (a *autopilot) escape(cur int, blocked map[int]float64) int {
	best, bestDist := 0, -1.0
	for _, dir := range []int{-1, 1} {
		lane := cur + dir
		if lane < 0 || lane >= len(a.lanes) {
			continue
		}
		d, ok := blocked[lane]
		if !ok {
			d = math.Inf(1)
		}
		if d > bestDist {
			best, bestDist = dir, d
		}
	}
	if bestDist <= blocked[cur] {
		return 0
	}
	return best
}

func (a *autopilot) laneOf(x float64) int {
	best, bestD := 0, math.Inf(1)
	for i, lx := range a.lanes {
		if d := math.Abs(lx - x); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

func (a *autopilot) input(verb string, dir int) protocol.InputMsg {
	a.seq++
	return protocol.InputMsg{
		Type:            protocol.TypeInput,
		ProtocolVersion: protocol.Version,
		Seq:             a.seq,
		Verb:            verb,
		Dir:             dir,
	}
}
