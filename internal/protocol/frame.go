package protocol

// FRAME (server -> client): one simulation snapshot.
type FrameMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	Time            float64 `json:"time"`
	Distance        float64 `json:"distance"`

	Player PlayerFrame `json:"player"`
	HUD    HUDFrame    `json:"hud"`
	Camera CameraFrame `json:"camera"`
	Trail  TrailFrame  `json:"trail"`

	Depleted bool `json:"depleted,omitempty"`

	Objects []ObjectFrame `json:"objects,omitempty"`
	Events  []EventFrame  `json:"events,omitempty"`
}

type PlayerFrame struct {
	Lane         int        `json:"lane"`
	Pos          [3]float64 `json:"pos"`
	Mode         string     `json:"mode"`
	VaultTimer   float64    `json:"vault_timer"`
	RailTimer    float64    `json:"rail_timer"`
	DashCooldown float64    `json:"dash_cooldown"`
}

type HUDFrame struct {
	Altitude  float64 `json:"altitude"`
	Lattice   float64 `json:"lattice"`
	Combo     float64 `json:"combo"`
	Integrity float64 `json:"integrity"`
	Text      HUDText `json:"text"`
}

// HUDText carries the display strings ("340m", "42%", "x1.5", "100%").
type HUDText struct {
	Altitude  string `json:"altitude"`
	Lattice   string `json:"lattice"`
	Combo     string `json:"combo"`
	Integrity string `json:"integrity"`
}

type CameraFrame struct {
	Pos    [3]float64 `json:"pos"`
	LookAt [3]float64 `json:"look_at"`
}

type TrailFrame struct {
	Pos     [3]float64 `json:"pos"`
	Opacity float64    `json:"opacity"`
}

type ObjectFrame struct {
	Kind     string     `json:"kind"`
	Slot     int        `json:"slot"`
	Shape    string     `json:"shape,omitempty"`
	Pos      [3]float64 `json:"pos"`
	Rotation float64    `json:"rotation,omitempty"`
	Scale    float64    `json:"scale,omitempty"`
	Parts    int        `json:"parts,omitempty"`
	Consumed bool       `json:"consumed,omitempty"`
}

// EventFrame is one gameplay event. Slot is set only for events about a ring
// object, so slot 0 is distinguishable from "no object".
type EventFrame struct {
	Tick  uint64  `json:"tick"`
	Type  string  `json:"type"`
	Slot  *int    `json:"slot,omitempty"`
	Shape string  `json:"shape,omitempty"`
	Value float64 `json:"value"`
}
