// Package meter implements the lattice/combo/integrity economy. Every
// operation takes a State and returns the next one, clamped.
package meter

import (
	"neonlane.ai/internal/sim/logic/mathx"
	"neonlane.ai/internal/sim/tuning"
)

const (
	LatticeMax   = 100.0
	ComboMin     = 1.0
	ComboMax     = 5.0
	IntegrityMax = 100.0
)

type State struct {
	Lattice   float64 `json:"lattice"`
	Combo     float64 `json:"combo"`
	Integrity float64 `json:"integrity"`
}

// Clamped forces every field into range. NaN collapses to the floor.
func (s State) Clamped() State {
	s.Lattice = clampOr(s.Lattice, 0, LatticeMax)
	s.Combo = clampOr(s.Combo, ComboMin, ComboMax)
	s.Integrity = clampOr(s.Integrity, 0, IntegrityMax)
	return s
}

func clampOr(v, lo, hi float64) float64 {
	if v != v {
		return lo
	}
	return mathx.Clamp(v, lo, hi)
}

type Economy struct {
	Cfg tuning.Meter
}

func New(cfg tuning.Meter) Economy { return Economy{Cfg: cfg} }

// Start is the meter state of a fresh run.
func (e Economy) Start() State {
	return State{
		Lattice:   e.Cfg.StartLattice,
		Combo:     e.Cfg.StartCombo,
		Integrity: e.Cfg.StartIntegrity,
	}.Clamped()
}

// Passive applies one tick of decay and combo-driven regen. While on a rail
// integrity regenerates too.
func (e Economy) Passive(s State, dt float64, onRail bool) State {
	if !(dt > 0) {
		return s.Clamped()
	}
	s.Lattice += (s.Combo*e.Cfg.RegenFactor - e.Cfg.DecayRate) * dt
	if onRail {
		s.Integrity += e.Cfg.RailIntegrityRegen * dt
	}
	return s.Clamped()
}

func (e Economy) Ion(s State) State {
	s.Lattice += e.Cfg.IonValue
	s.Combo += e.Cfg.ComboGainSmall
	return s.Clamped()
}

// RailEntry credits a rail node worth bonus.
func (e Economy) RailEntry(s State, bonus float64) State {
	s.Combo += e.Cfg.ComboGainLarge
	s.Lattice += bonus * e.Cfg.RailBonusScale
	return s.Clamped()
}

// Hostile applies a formation collision. Callers suppress it while on a rail.
func (e Economy) Hostile(s State) State {
	s.Combo -= e.Cfg.ComboLossLarge
	s.Lattice -= e.Cfg.LatticeLossLarge
	s.Integrity -= e.Cfg.IntegrityLossLarge
	return s.Clamped()
}

// Burst spends BurstCost lattice when enough is banked and cooldown has run
// out. It returns the next state, the next cooldown and whether it fired.
// A refused burst returns s and cooldown unchanged.
func (e Economy) Burst(s State, cooldown float64) (State, float64, bool) {
	if s.Lattice < e.Cfg.BurstCost || cooldown > 0 {
		return s, cooldown, false
	}
	s.Lattice -= e.Cfg.BurstCost
	return s.Clamped(), e.Cfg.CooldownDuration, true
}

// Vault grants the vault combo bonus. Eligibility (not on a rail, not already
// vaulting) is the player state machine's call.
func (e Economy) Vault(s State) State {
	s.Combo += e.Cfg.VaultComboGain
	return s.Clamped()
}
