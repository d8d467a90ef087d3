// Package input defines the player verbs and maps raw key and touch events
// onto them.
package input

import (
	"fmt"
	"math"
	"strings"
)

type Verb string

const (
	VerbLaneShift Verb = "LANE_SHIFT"
	VerbVault     Verb = "VAULT"
	VerbBurst     Verb = "BURST"
)

// Input is one queued player action. Dir is -1 or +1 for LANE_SHIFT and
// ignored otherwise.
type Input struct {
	Verb Verb `json:"verb"`
	Dir  int  `json:"dir,omitempty"`
}

func LaneShift(dir int) Input { return Input{Verb: VerbLaneShift, Dir: dir} }
func Vault() Input            { return Input{Verb: VerbVault} }
func Burst() Input            { return Input{Verb: VerbBurst} }

// Parse validates a verb received over the wire.
func Parse(verb string, dir int) (Input, error) {
	switch Verb(strings.ToUpper(strings.TrimSpace(verb))) {
	case VerbLaneShift:
		if dir != -1 && dir != 1 {
			return Input{}, fmt.Errorf("lane shift dir must be -1 or 1, got %d", dir)
		}
		return LaneShift(dir), nil
	case VerbVault:
		return Vault(), nil
	case VerbBurst:
		return Burst(), nil
	default:
		return Input{}, fmt.Errorf("unknown verb %q", verb)
	}
}

// Known reports whether verb names one of the player verbs.
func Known(verb string) bool {
	switch Verb(strings.ToUpper(strings.TrimSpace(verb))) {
	case VerbLaneShift, VerbVault, VerbBurst:
		return true
	}
	return false
}

// FromKey maps a KeyboardEvent.code to a verb.
func FromKey(code string) (Input, bool) {
	switch code {
	case "ArrowLeft", "KeyA":
		return LaneShift(-1), true
	case "ArrowRight", "KeyD":
		return LaneShift(1), true
	case "Space":
		return Vault(), true
	case "ShiftLeft":
		return Burst(), true
	}
	return Input{}, false
}

// TapThreshold is the horizontal travel in pixels below which a touch counts
// as a tap.
const TapThreshold = 20.0

// FromSwipe maps a touch gesture's horizontal travel to a verb: a tap vaults,
// a swipe shifts lanes in its direction.
func FromSwipe(dx float64) Input {
	switch {
	case math.Abs(dx) < TapThreshold:
		return Vault()
	case dx < 0:
		return LaneShift(-1)
	default:
		return LaneShift(1)
	}
}
