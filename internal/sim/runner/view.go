package runner

import (
	"fmt"
	"math"

	"neonlane.ai/internal/protocol"
	"neonlane.ai/internal/sim/logic/mathx"
	"neonlane.ai/internal/sim/meter"
	"neonlane.ai/internal/sim/pool"
)

// trailY is the trail's fixed height under the craft.
const trailY = 1.0

type HUD struct {
	Altitude  float64 `json:"altitude"`
	Lattice   float64 `json:"lattice"`
	Combo     float64 `json:"combo"`
	Integrity float64 `json:"integrity"`
}

// Text renders the HUD display strings.
func (h HUD) Text() protocol.HUDText {
	return protocol.HUDText{
		Altitude:  fmt.Sprintf("%.0fm", h.Altitude),
		Lattice:   fmt.Sprintf("%.0f%%", math.Min(meter.LatticeMax, h.Lattice)),
		Combo:     fmt.Sprintf("x%.1f", h.Combo),
		Integrity: fmt.Sprintf("%.0f%%", h.Integrity),
	}
}

type Camera struct {
	Pos    mathx.Vec3 `json:"pos"`
	LookAt mathx.Vec3 `json:"look_at"`
}

type Trail struct {
	Pos     mathx.Vec3 `json:"pos"`
	Opacity float64    `json:"opacity"`
}

type ObjectView struct {
	Kind     pool.Kind  `json:"kind"`
	Slot     int        `json:"slot"`
	Shape    pool.Shape `json:"shape,omitempty"`
	Pos      mathx.Vec3 `json:"pos"`
	Rotation float64    `json:"rotation,omitempty"`
	Scale    float64    `json:"scale,omitempty"`
	Parts    int        `json:"parts,omitempty"`
	Consumed bool       `json:"consumed,omitempty"`
}

// Snapshot is the read-only projection handed to renderers and the HUD once
// per tick. It shares no memory with the State it was built from.
type Snapshot struct {
	Tick     uint64  `json:"tick"`
	Time     float64 `json:"time"`
	Distance float64 `json:"distance"`

	Player Player      `json:"player"`
	Meter  meter.State `json:"meter"`
	HUD    HUD         `json:"hud"`
	Camera Camera      `json:"camera"`
	Trail  Trail       `json:"trail"`

	// Depleted is set while integrity sits at zero. The run continues.
	Depleted bool `json:"depleted"`

	Objects []ObjectView `json:"objects"`
	Stats   Stats        `json:"stats"`
}

func (r Rules) Snapshot(s State) Snapshot {
	t := r.Tuning
	p := s.Player
	p.Lane.Lanes = append([]float64(nil), p.Lane.Lanes...)

	cam := t.Camera
	pulse := t.Player.TrailOpacity
	if p.PulseTimer > 0 {
		pulse = t.Player.PulseOpacity
	}

	out := Snapshot{
		Tick:     s.Tick,
		Time:     s.Time,
		Distance: s.Distance,
		Player:   p,
		Meter:    s.Meter,
		HUD: HUD{
			Altitude:  s.Altitude,
			Lattice:   s.Meter.Lattice,
			Combo:     s.Meter.Combo,
			Integrity: s.Meter.Integrity,
		},
		Camera: Camera{
			Pos: mathx.V3(
				cam.Position[0]+p.Pos.X*cam.FollowX,
				cam.BaseY+math.Sin(s.Time*cam.SwayFrequency)*cam.SwayAmplitude,
				cam.Position[2],
			),
			LookAt: mathx.V3(cam.LookAt[0], cam.LookAt[1], cam.LookAt[2]),
		},
		Trail: Trail{
			Pos:     mathx.V3(p.Pos.X, trailY, p.Pos.Z+t.Player.TrailZOffset),
			Opacity: pulse,
		},
		Depleted: s.Meter.Integrity <= 0,
		Stats:    s.Stats,
	}

	n := s.City.Len() + s.Ions.Len() + s.Formations.Len() + s.Rails.Len()
	out.Objects = make([]ObjectView, 0, n)
	for _, ring := range []pool.Ring{s.City, s.Ions, s.Formations, s.Rails} {
		for i, o := range ring.Items {
			out.Objects = append(out.Objects, ObjectView{
				Kind:     o.Kind,
				Slot:     i,
				Shape:    o.Shape,
				Pos:      o.Pos,
				Rotation: o.Rotation,
				Scale:    o.Scale,
				Parts:    o.Parts,
				Consumed: o.Consumed,
			})
		}
	}
	return out
}

func vec(v mathx.Vec3) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// Frame converts a snapshot to its wire form. withObjects controls whether
// the object list is included.
func Frame(s Snapshot, events []Event, withObjects bool) protocol.FrameMsg {
	f := protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		Tick:            s.Tick,
		Time:            s.Time,
		Distance:        s.Distance,
		Player: protocol.PlayerFrame{
			Lane:         s.Player.Lane.Index,
			Pos:          vec(s.Player.Pos),
			Mode:         s.Player.Mode.String(),
			VaultTimer:   s.Player.VaultTimer,
			RailTimer:    s.Player.RailTimer,
			DashCooldown: s.Player.DashCooldown,
		},
		HUD: protocol.HUDFrame{
			Altitude:  s.HUD.Altitude,
			Lattice:   s.HUD.Lattice,
			Combo:     s.HUD.Combo,
			Integrity: s.HUD.Integrity,
			Text:      s.HUD.Text(),
		},
		Camera:   protocol.CameraFrame{Pos: vec(s.Camera.Pos), LookAt: vec(s.Camera.LookAt)},
		Trail:    protocol.TrailFrame{Pos: vec(s.Trail.Pos), Opacity: s.Trail.Opacity},
		Depleted: s.Depleted,
		Events:   EventFrames(events),
	}
	if withObjects {
		f.Objects = make([]protocol.ObjectFrame, 0, len(s.Objects))
		for _, o := range s.Objects {
			of := protocol.ObjectFrame{
				Kind:     o.Kind.String(),
				Slot:     o.Slot,
				Pos:      vec(o.Pos),
				Rotation: o.Rotation,
				Scale:    o.Scale,
				Parts:    o.Parts,
				Consumed: o.Consumed,
			}
			if o.Shape.Valid() {
				of.Shape = o.Shape.String()
			}
			f.Objects = append(f.Objects, of)
		}
	}
	return f
}

func EventFrames(events []Event) []protocol.EventFrame {
	if len(events) == 0 {
		return nil
	}
	out := make([]protocol.EventFrame, 0, len(events))
	for _, e := range events {
		ef := protocol.EventFrame{Tick: e.Tick, Type: e.Type, Shape: e.Shape, Value: e.Value}
		if e.HasObject() {
			slot := e.Slot
			ef.Slot = &slot
		}
		out = append(out, ef)
	}
	return out
}
