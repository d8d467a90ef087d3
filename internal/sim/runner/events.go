package runner

// Gameplay event types.
const (
	EventIon               = "ION"
	EventRailEnter         = "RAIL_ENTER"
	EventRailExit          = "RAIL_EXIT"
	EventHostile           = "HOSTILE"
	EventHostileIgnored    = "HOSTILE_IGNORED"
	EventBurst             = "BURST"
	EventVault             = "VAULT"
	EventIntegrityDepleted = "INTEGRITY_DEPLETED"
)

// Event is one gameplay fact produced by a tick. Slot is the ring slot of the
// object involved, Value the meter reading the event is about (lattice after
// a pickup, integrity after a hit, bonus for a rail entry).
type Event struct {
	Tick  uint64  `json:"tick"`
	Type  string  `json:"type"`
	Slot  int     `json:"slot,omitempty"`
	Shape string  `json:"shape,omitempty"`
	Value float64 `json:"value"`
}

// HasObject reports whether the event refers to a ring slot.
func (e Event) HasObject() bool {
	switch e.Type {
	case EventIon, EventRailEnter, EventHostile, EventHostileIgnored:
		return true
	}
	return false
}
