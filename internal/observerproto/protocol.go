package observerproto

import "neonlane.ai/internal/protocol"

// Version is the observer protocol version (separate from the pilot WS protocol).
const Version = "0.1"

// Message types.
const (
	TypeSubscribe = "SUBSCRIBE"
	TypeHUD       = "HUD"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// EveryTicks throttles HUD messages; 0 or 1 means every tick.
	EveryTicks int `json:"every_ticks"`
	// Events includes the gameplay events since the previous HUD message.
	Events bool `json:"events"`
	// Objects includes the full object list.
	Objects bool `json:"objects,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string    `json:"protocol_version"`
	RunID           string    `json:"run_id"`
	Tick            uint64    `json:"tick"`
	RunParams       RunParams `json:"run_params"`
	TuningDigest    string    `json:"tuning_digest"`
}

type RunParams struct {
	TickRateHz int       `json:"tick_rate_hz"`
	Seed       int64     `json:"seed"`
	Lanes      []float64 `json:"lanes"`
}

// Server -> Client.
type HudMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Pilots int `json:"pilots"`

	Frame protocol.FrameMsg `json:"frame"`
	Stats RunStats          `json:"stats"`
}

type RunStats struct {
	Pickups     uint64  `json:"pickups"`
	RailEntries uint64  `json:"rail_entries"`
	Hits        uint64  `json:"hits"`
	HitsIgnored uint64  `json:"hits_ignored"`
	Bursts      uint64  `json:"bursts"`
	Vaults      uint64  `json:"vaults"`
	Recycled    uint64  `json:"recycled"`
	PeakCombo   float64 `json:"peak_combo"`
}
