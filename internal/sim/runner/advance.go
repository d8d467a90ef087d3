package runner

import (
	"math"

	"neonlane.ai/internal/sim/clock"
	"neonlane.ai/internal/sim/input"
	"neonlane.ai/internal/sim/meter"
	"neonlane.ai/internal/sim/proximity"
	"neonlane.ai/internal/sim/tuning"
)

// Rules is the immutable part of a run.
type Rules struct {
	Tuning   tuning.Tuning
	Econ     meter.Economy
	Detector proximity.Detector
}

func NewRules(t tuning.Tuning) Rules {
	return Rules{
		Tuning:   t,
		Econ:     meter.New(t.Meter),
		Detector: proximity.New(proximity.FromTuning(t.Radii)),
	}
}

// Advance runs one tick. Order: clamp dt, count down timers, apply inputs
// in receive order, interpolate the lane, update rings, test proximity,
// apply passive economy then pickups, hits and rail entries, derive
// distance and altitude. prev is not modified.
func (r Rules) Advance(prev State, dt float64, inputs []input.Input) (State, []Event) {
	dt = clock.Clamp(dt, r.Tuning.MaxStepSeconds)
	s := prev.Clone()
	s.Tick++
	tick := s.Tick

	var events []Event
	emit := func(e Event) {
		e.Tick = tick
		events = append(events, e)
	}

	p := &s.Player
	r.countdown(p, dt, emit)
	for _, in := range inputs {
		r.apply(&s, in, emit)
	}

	p.Pos.X = p.Lane.Update(p.Pos.X, dt)
	p.Pos.Y = r.playerY(p.Mode)
	p.Pos.Z = r.Tuning.Player.Z

	for _, ring := range s.rings() {
		s.Stats.Recycled += uint64(len(ring.Update(dt, &s.Rand)))
	}

	ions := r.Detector.Scan(p.Pos, &s.Ions)
	hostiles := r.Detector.Scan(p.Pos, &s.Formations)
	rails := r.Detector.Scan(p.Pos, &s.Rails)

	wasDepleted := s.Meter.Integrity <= 0
	s.Meter = r.Econ.Passive(s.Meter, dt, p.Mode == ModeOnRail)

	for _, h := range ions {
		s.Meter = r.Econ.Ion(s.Meter)
		s.Stats.Pickups++
		emit(Event{Type: EventIon, Slot: h.Slot, Value: s.Meter.Lattice})
	}
	for _, h := range hostiles {
		if p.Mode == ModeOnRail {
			s.Stats.HitsIgnored++
			emit(Event{Type: EventHostileIgnored, Slot: h.Slot, Shape: h.Shape.String()})
			continue
		}
		s.Meter = r.Econ.Hostile(s.Meter)
		s.Stats.Hits++
		emit(Event{Type: EventHostile, Slot: h.Slot, Shape: h.Shape.String(), Value: s.Meter.Integrity})
	}
	for _, h := range rails {
		p.Mode = ModeOnRail
		p.RailTimer = r.Tuning.Player.RailSeconds
		p.VaultTimer = 0
		s.Meter = r.Econ.RailEntry(s.Meter, h.Bonus)
		s.Stats.RailEntries++
		emit(Event{Type: EventRailEnter, Slot: h.Slot, Value: h.Bonus})
	}
	// Scans above used the pre-entry height; publish the height of the mode
	// the tick ends in.
	p.Pos.Y = r.playerY(p.Mode)
	if !wasDepleted && s.Meter.Integrity <= 0 {
		emit(Event{Type: EventIntegrityDepleted})
	}

	s.Time += dt
	s.Distance += r.Tuning.Player.ForwardSpeed * dt
	hud := r.Tuning.HUD
	s.Altitude = hud.BaseAltitude + math.Sin(s.Distance*hud.AltitudeFrequency)*hud.AltitudeAmplitude
	if s.Meter.Combo > s.Stats.PeakCombo {
		s.Stats.PeakCombo = s.Meter.Combo
	}
	return s, events
}

// countdown runs before inputs so a cooldown set on tick k has elapsed
// exactly when the summed dt since then reaches its duration.
func (r Rules) countdown(p *Player, dt float64, emit func(Event)) {
	p.DashCooldown = math.Max(0, p.DashCooldown-dt)
	p.PulseTimer = math.Max(0, p.PulseTimer-dt)
	switch p.Mode {
	case ModeVaulting:
		p.VaultTimer -= dt
		if p.VaultTimer <= 0 {
			p.VaultTimer = 0
			p.Mode = ModeGrounded
		}
	case ModeOnRail:
		p.RailTimer -= dt
		if p.RailTimer <= 0 {
			p.RailTimer = 0
			p.Mode = ModeGrounded
			emit(Event{Type: EventRailExit})
		}
	}
}

// apply executes one verb. Refused verbs are silent no-ops.
func (r Rules) apply(s *State, in input.Input, emit func(Event)) {
	p := &s.Player
	switch in.Verb {
	case input.VerbLaneShift:
		p.Lane.Shift(in.Dir)
	case input.VerbVault:
		if p.Mode != ModeGrounded {
			return
		}
		p.Mode = ModeVaulting
		p.VaultTimer = r.Tuning.Player.VaultSeconds
		s.Meter = r.Econ.Vault(s.Meter)
		s.Stats.Vaults++
		emit(Event{Type: EventVault, Value: s.Meter.Combo})
	case input.VerbBurst:
		m, cd, ok := r.Econ.Burst(s.Meter, p.DashCooldown)
		if !ok {
			return
		}
		s.Meter = m
		p.DashCooldown = cd
		p.PulseTimer = r.Tuning.Player.PulseSeconds
		s.Stats.Bursts++
		emit(Event{Type: EventBurst, Value: s.Meter.Lattice})
	}
}

func (r Rules) playerY(m Mode) float64 {
	pl := r.Tuning.Player
	switch m {
	case ModeVaulting:
		return pl.VaultY
	case ModeOnRail:
		return pl.BaseY + pl.RailLift
	default:
		return pl.BaseY
	}
}
