package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed tuning.schema.json
var schemaJSON []byte

const schemaURL = "tuning.schema.json"

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz         int     `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	MaxStepSeconds     float64 `yaml:"max_step_seconds" json:"max_step_seconds"`
	SnapshotEveryTicks int     `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
	FrameEveryTicks    int     `yaml:"frame_every_ticks" json:"frame_every_ticks"`

	Lanes         []float64 `yaml:"lanes" json:"lanes"`
	StartLane     int       `yaml:"start_lane" json:"start_lane"`
	LaneSmoothing float64   `yaml:"lane_smoothing" json:"lane_smoothing"`

	Player Player `yaml:"player" json:"player"`
	Meter  Meter  `yaml:"meter" json:"meter"`
	Radii  Radii  `yaml:"radii" json:"radii"`
	Rings  Rings  `yaml:"rings" json:"rings"`
	HUD    HUD    `yaml:"hud" json:"hud"`
	Camera Camera `yaml:"camera" json:"camera"`
}

type Player struct {
	BaseY        float64 `yaml:"base_y" json:"base_y"`
	Z            float64 `yaml:"z" json:"z"`
	VaultY       float64 `yaml:"vault_y" json:"vault_y"`
	VaultSeconds float64 `yaml:"vault_seconds" json:"vault_seconds"`
	RailLift     float64 `yaml:"rail_lift" json:"rail_lift"`
	RailSeconds  float64 `yaml:"rail_seconds" json:"rail_seconds"`
	TrailZOffset float64 `yaml:"trail_z_offset" json:"trail_z_offset"`
	TrailOpacity float64 `yaml:"trail_opacity" json:"trail_opacity"`
	PulseOpacity float64 `yaml:"pulse_opacity" json:"pulse_opacity"`
	PulseSeconds float64 `yaml:"pulse_seconds" json:"pulse_seconds"`
	ForwardSpeed float64 `yaml:"forward_speed" json:"forward_speed"`
}

type Meter struct {
	StartLattice   float64 `yaml:"start_lattice" json:"start_lattice"`
	StartCombo     float64 `yaml:"start_combo" json:"start_combo"`
	StartIntegrity float64 `yaml:"start_integrity" json:"start_integrity"`

	DecayRate   float64 `yaml:"decay_rate" json:"decay_rate"`
	RegenFactor float64 `yaml:"regen_factor" json:"regen_factor"`

	IonValue       float64 `yaml:"ion_value" json:"ion_value"`
	ComboGainSmall float64 `yaml:"combo_gain_small" json:"combo_gain_small"`
	ComboGainLarge float64 `yaml:"combo_gain_large" json:"combo_gain_large"`
	VaultComboGain float64 `yaml:"vault_combo_gain" json:"vault_combo_gain"`

	RailBonusScale     float64 `yaml:"rail_bonus_scale" json:"rail_bonus_scale"`
	RailIntegrityRegen float64 `yaml:"rail_integrity_regen" json:"rail_integrity_regen"`

	ComboLossLarge     float64 `yaml:"combo_loss_large" json:"combo_loss_large"`
	LatticeLossLarge   float64 `yaml:"lattice_loss_large" json:"lattice_loss_large"`
	IntegrityLossLarge float64 `yaml:"integrity_loss_large" json:"integrity_loss_large"`

	BurstCost        float64 `yaml:"burst_cost" json:"burst_cost"`
	CooldownDuration float64 `yaml:"cooldown_duration" json:"cooldown_duration"`
}

// Radii are the proximity thresholds. IonRearm is "timed" or "recycle".
type Radii struct {
	Ion             float64 `yaml:"ion" json:"ion"`
	Rail            float64 `yaml:"rail" json:"rail"`
	Hostile         float64 `yaml:"hostile" json:"hostile"`
	IonRearm        string  `yaml:"ion_rearm" json:"ion_rearm"`
	IonRearmSeconds float64 `yaml:"ion_rearm_seconds" json:"ion_rearm_seconds"`
}

type Rings struct {
	City       Ring `yaml:"city" json:"city"`
	Ions       Ring `yaml:"ions" json:"ions"`
	Formations Ring `yaml:"formations" json:"formations"`
	Rails      Ring `yaml:"rails" json:"rails"`
}

// Ring configures one recycle ring. Y/YJitter place objects vertically;
// LateralSpread > 0 places them freely across [-spread/2, spread/2) instead of
// on a lane.
type Ring struct {
	Count         int     `yaml:"count" json:"count"`
	PerRow        int     `yaml:"per_row" json:"per_row"`
	Spacing       float64 `yaml:"spacing" json:"spacing"`
	Start         float64 `yaml:"start" json:"start"`
	Threshold     float64 `yaml:"threshold" json:"threshold"`
	Jitter        float64 `yaml:"jitter" json:"jitter"`
	Speed         float64 `yaml:"speed" json:"speed"`
	SpeedJitter   float64 `yaml:"speed_jitter" json:"speed_jitter"`
	Y             float64 `yaml:"y" json:"y"`
	YJitter       float64 `yaml:"y_jitter" json:"y_jitter"`
	LateralSpread float64 `yaml:"lateral_spread" json:"lateral_spread"`
	Scale         float64 `yaml:"scale" json:"scale"`
	ScaleJitter   float64 `yaml:"scale_jitter" json:"scale_jitter"`
	Bonus         float64 `yaml:"bonus" json:"bonus"`
	BonusJitter   float64 `yaml:"bonus_jitter" json:"bonus_jitter"`
	Spin          float64 `yaml:"spin" json:"spin"`
}

type HUD struct {
	BaseAltitude      float64 `yaml:"base_altitude" json:"base_altitude"`
	AltitudeAmplitude float64 `yaml:"altitude_amplitude" json:"altitude_amplitude"`
	AltitudeFrequency float64 `yaml:"altitude_frequency" json:"altitude_frequency"`
}

type Camera struct {
	BaseY         float64    `yaml:"base_y" json:"base_y"`
	SwayAmplitude float64    `yaml:"sway_amplitude" json:"sway_amplitude"`
	SwayFrequency float64    `yaml:"sway_frequency" json:"sway_frequency"`
	FollowX       float64    `yaml:"follow_x" json:"follow_x"`
	LookAt        [3]float64 `yaml:"look_at" json:"look_at"`
	Position      [3]float64 `yaml:"position" json:"position"`
}

const (
	RearmTimed   = "timed"
	RearmRecycle = "recycle"
)

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         60,
		MaxStepSeconds:     0.05,
		SnapshotEveryTicks: 3600,
		FrameEveryTicks:    1,

		Lanes:         []float64{-8, 0, 8},
		StartLane:     1,
		LaneSmoothing: 5,

		Player: Player{
			BaseY:        1.2,
			Z:            2,
			VaultY:       2.4,
			VaultSeconds: 0.25,
			RailLift:     0.6,
			RailSeconds:  2,
			TrailZOffset: 1.5,
			TrailOpacity: 0.4,
			PulseOpacity: 0.9,
			PulseSeconds: 0.3,
			ForwardSpeed: 20,
		},
		Meter: Meter{
			StartLattice:       0,
			StartCombo:         1,
			StartIntegrity:     100,
			DecayRate:          1.5,
			RegenFactor:        0.4,
			IonValue:           8,
			ComboGainSmall:     0.05,
			ComboGainLarge:     0.5,
			VaultComboGain:     0.2,
			RailBonusScale:     1,
			RailIntegrityRegen: 8,
			ComboLossLarge:     1,
			LatticeLossLarge:   15,
			IntegrityLossLarge: 20,
			BurstCost:          30,
			CooldownDuration:   1.2,
		},
		Radii: Radii{
			Ion:             1.4,
			Rail:            1.6,
			Hostile:         2.5,
			IonRearm:        RearmTimed,
			IonRearmSeconds: 0.2,
		},
		Rings: Rings{
			City: Ring{
				Count: 120, PerRow: 3, Spacing: 8, Start: 0, Threshold: 8, Speed: 20,
				Y: -0.5, Scale: 0.5, ScaleJitter: 4,
			},
			Ions: Ring{
				Count: 12, PerRow: 1, Spacing: 10, Start: -4, Threshold: 4, Speed: 24,
				Y: 1, YJitter: 1.5, Spin: 1,
			},
			Formations: Ring{
				Count: 6, PerRow: 1, Spacing: 20, Start: -12, Threshold: 6, Jitter: 20, Speed: 14, SpeedJitter: 4,
				Y: 1.5, YJitter: 2, LateralSpread: 6, Spin: 0.3,
			},
			Rails: Ring{
				Count: 3, PerRow: 1, Spacing: 90, Start: -60, Threshold: 6, Speed: 20,
				Y: 1.2, Bonus: 10, BonusJitter: 10,
			},
		},
		HUD: HUD{
			BaseAltitude:      340,
			AltitudeAmplitude: 8,
			AltitudeFrequency: 0.01,
		},
		Camera: Camera{
			BaseY:         26,
			SwayAmplitude: 1.4,
			SwayFrequency: 0.3,
			FollowX:       0.1,
			LookAt:        [3]float64{0, 6, -10},
			Position:      [3]float64{-28, 26, 52},
		},
	}
}

// Load reads a yaml tuning file on top of Defaults and validates the result.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
}

// Validate checks t against the embedded JSON schema and the ring placement
// constraints the schema cannot express.
func (t Tuning) Validate() error {
	s, err := compileSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	if err := s.Validate(doc); err != nil {
		return err
	}

	if t.StartLane < 0 || t.StartLane >= len(t.Lanes) {
		return fmt.Errorf("start_lane %d outside %d lanes", t.StartLane, len(t.Lanes))
	}
	if t.LaneSmoothing*t.MaxStepSeconds >= 1 {
		return fmt.Errorf("lane_smoothing*max_step_seconds must be < 1 (got %.3f)", t.LaneSmoothing*t.MaxStepSeconds)
	}
	rings := []struct {
		name string
		r    Ring
	}{
		{"city", t.Rings.City},
		{"ions", t.Rings.Ions},
		{"formations", t.Rings.Formations},
		{"rails", t.Rings.Rails},
	}
	for _, e := range rings {
		if e.r.Start > e.r.Threshold || e.r.Start < e.r.Threshold-e.r.Spacing {
			return fmt.Errorf("rings.%s: start %.2f must lie in [threshold-spacing, threshold] = [%.2f, %.2f]",
				e.name, e.r.Start, e.r.Threshold-e.r.Spacing, e.r.Threshold)
		}
	}
	return nil
}
