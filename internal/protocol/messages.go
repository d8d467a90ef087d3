package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	PilotName       string            `json:"pilot_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
	// Objects asks for every world object in each FRAME. Off by default: a
	// frame without objects is a HUD + player update.
	Objects bool `json:"objects,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	SessionID       string    `json:"session_id"`
	RunID           string    `json:"run_id"`
	Tick            uint64    `json:"tick"`
	RunParams       RunParams `json:"run_params"`
	TuningDigest    string    `json:"tuning_digest,omitempty"`
}

type RunParams struct {
	TickRateHz      int       `json:"tick_rate_hz"`
	FrameEveryTicks int       `json:"frame_every_ticks"`
	MaxStepSeconds  float64   `json:"max_step_seconds"`
	Seed            int64     `json:"seed"`
	Lanes           []float64 `json:"lanes"`
}

// INPUT (client -> server). Applied at the next tick boundary in receive order.
type InputMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq,omitempty"`
	Verb            string `json:"verb"`
	Dir             int    `json:"dir,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
	Ref             uint64 `json:"ref,omitempty"`
}
