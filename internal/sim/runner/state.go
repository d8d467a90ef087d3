package runner

import (
	"neonlane.ai/internal/sim/lane"
	"neonlane.ai/internal/sim/logic/mathx"
	"neonlane.ai/internal/sim/meter"
	"neonlane.ai/internal/sim/pool"
	"neonlane.ai/internal/sim/tuning"
)

// Mode is the player state machine. Vaulting and OnRail are both timed;
// a rail entry cancels a vault and a vault is refused while on a rail.
type Mode uint8

const (
	ModeGrounded Mode = iota
	ModeVaulting
	ModeOnRail
)

func (m Mode) String() string {
	switch m {
	case ModeGrounded:
		return "GROUNDED"
	case ModeVaulting:
		return "VAULTING"
	case ModeOnRail:
		return "ON_RAIL"
	default:
		return "UNKNOWN"
	}
}

func ParseMode(s string) (Mode, bool) {
	switch s {
	case "GROUNDED":
		return ModeGrounded, true
	case "VAULTING":
		return ModeVaulting, true
	case "ON_RAIL":
		return ModeOnRail, true
	}
	return ModeGrounded, false
}

type Player struct {
	Lane lane.Controller `json:"lane"`
	Pos  mathx.Vec3      `json:"pos"`
	Mode Mode            `json:"mode"`

	VaultTimer   float64 `json:"vault_timer"`
	RailTimer    float64 `json:"rail_timer"`
	DashCooldown float64 `json:"dash_cooldown"`
	PulseTimer   float64 `json:"pulse_timer"`
}

// Stats are run totals. They feed the run summary and metrics.
type Stats struct {
	Pickups     uint64  `json:"pickups"`
	RailEntries uint64  `json:"rail_entries"`
	Hits        uint64  `json:"hits"`
	HitsIgnored uint64  `json:"hits_ignored"`
	Bursts      uint64  `json:"bursts"`
	Vaults      uint64  `json:"vaults"`
	Recycled    uint64  `json:"recycled"`
	PeakCombo   float64 `json:"peak_combo"`
}

// State is everything that evolves during a run. It is a value: Advance
// returns a new State and never mutates its argument.
type State struct {
	Tick     uint64  `json:"tick"`
	Time     float64 `json:"time"`
	Distance float64 `json:"distance"`
	Altitude float64 `json:"altitude"`

	Player Player      `json:"player"`
	Meter  meter.State `json:"meter"`

	City       pool.Ring `json:"city"`
	Ions       pool.Ring `json:"ions"`
	Formations pool.Ring `json:"formations"`
	Rails      pool.Ring `json:"rails"`

	Rand  mathx.Rand `json:"rand"`
	Stats Stats      `json:"stats"`
}

// NewState builds tick 0 of a run.
func NewState(t tuning.Tuning, seed int64) State {
	s := State{Rand: mathx.NewRand(seed)}
	s.Player.Lane = lane.New(t.Lanes, t.StartLane, t.LaneSmoothing)
	s.Player.Pos = mathx.V3(s.Player.Lane.Target(), t.Player.BaseY, t.Player.Z)
	s.Meter = meter.New(t.Meter).Start()
	s.Altitude = t.HUD.BaseAltitude

	cfgs := RingConfigs(t)
	s.City = pool.New(cfgs[0], &s.Rand)
	s.Ions = pool.New(cfgs[1], &s.Rand)
	s.Formations = pool.New(cfgs[2], &s.Rand)
	s.Rails = pool.New(cfgs[3], &s.Rand)

	s.Stats.PeakCombo = s.Meter.Combo
	return s
}

// RingConfigs maps tuning onto pool configs in update order: city, ions,
// formations, rails.
func RingConfigs(t tuning.Tuning) [4]pool.Config {
	return [4]pool.Config{
		ringConfig(pool.KindCity, t.Rings.City, t.Lanes),
		ringConfig(pool.KindIon, t.Rings.Ions, t.Lanes),
		ringConfig(pool.KindFormation, t.Rings.Formations, t.Lanes),
		ringConfig(pool.KindRail, t.Rings.Rails, t.Lanes),
	}
}

func ringConfig(kind pool.Kind, r tuning.Ring, lanes []float64) pool.Config {
	return pool.Config{
		Kind:          kind,
		Count:         r.Count,
		PerRow:        r.PerRow,
		Spacing:       r.Spacing,
		Start:         r.Start,
		Threshold:     r.Threshold,
		Jitter:        r.Jitter,
		Speed:         r.Speed,
		SpeedJitter:   r.SpeedJitter,
		Lanes:         lanes,
		Y:             r.Y,
		YJitter:       r.YJitter,
		LateralSpread: r.LateralSpread,
		Scale:         r.Scale,
		ScaleJitter:   r.ScaleJitter,
		Bonus:         r.Bonus,
		BonusJitter:   r.BonusJitter,
		Spin:          r.Spin,
	}
}

// Clone deep-copies the rings; lane and ring lane tables are shared
// read-only.
func (s State) Clone() State {
	s.City = s.City.Clone()
	s.Ions = s.Ions.Clone()
	s.Formations = s.Formations.Clone()
	s.Rails = s.Rails.Clone()
	return s
}

func (s *State) rings() [4]*pool.Ring {
	return [4]*pool.Ring{&s.City, &s.Ions, &s.Formations, &s.Rails}
}
