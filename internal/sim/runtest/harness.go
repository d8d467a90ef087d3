package runtest

import (
	"encoding/json"
	"testing"

	"neonlane.ai/internal/protocol"
	"neonlane.ai/internal/sim/input"
	"neonlane.ai/internal/sim/runner"
	"neonlane.ai/internal/sim/tuning"
)

// Harness is a small black-box test helper for driving a run via exported APIs:
// - Step()/StepN()/StepUntil() feed inputs through StepOnce()
// - Frame() renders the pilot's wire view of the latest snapshot
// - State() exposes a copy for assertions
//
// It intentionally avoids touching runner internals so tests can live outside the runner package.
type Harness struct {
	T *testing.T
	R *runner.Runner

	SessionID string
	DT        float64

	lastFrame protocol.FrameMsg
	events    []runner.Event
}

func NewHarness(t *testing.T, tu tuning.Tuning, seed int64) *Harness {
	t.Helper()
	r, err := runner.New(runner.Config{RunID: "harness", Seed: seed, Tuning: tu, FixedStep: true})
	if err != nil {
		t.Fatalf("runner.New: %v", err)
	}
	return NewHarnessWithRunner(t, r)
}

// NewHarnessWithRunner wraps an already constructed runner, e.g. one resumed
// from a snapshot.
func NewHarnessWithRunner(t *testing.T, r *runner.Runner) *Harness {
	t.Helper()
	if r == nil {
		t.Fatalf("NewHarnessWithRunner: nil runner")
	}
	h := &Harness{
		T:         t,
		R:         r,
		SessionID: "pilot",
		DT:        1.0 / float64(r.TickRateHz()),
	}
	r.SetEventLogger(h)
	return h
}

// WriteEvent collects events so tests can assert on them.
func (h *Harness) WriteEvent(e runner.Event) error {
	h.events = append(h.events, e)
	return nil
}

func (h *Harness) Step(inputs ...input.Input) (uint64, string) {
	envs := make([]runner.Envelope, len(inputs))
	for i, in := range inputs {
		envs[i] = runner.Envelope{SessionID: h.SessionID, Seq: uint64(i + 1), Input: in}
	}
	return h.R.StepOnce(h.DT, envs)
}

func (h *Harness) StepN(n int) {
	for i := 0; i < n; i++ {
		h.Step()
	}
}

// StepUntil steps until cond holds or max ticks pass. It reports whether
// cond held.
func (h *Harness) StepUntil(max int, cond func(runner.State) bool) bool {
	for i := 0; i < max; i++ {
		h.Step()
		if cond(h.R.State()) {
			return true
		}
	}
	return false
}

func (h *Harness) State() runner.State { return h.R.State() }

func (h *Harness) Events() []runner.Event { return h.events }

func (h *Harness) ClearEvents() { h.events = h.events[:0] }

func (h *Harness) CountEvents(typ string) int {
	n := 0
	for _, e := range h.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// Frame builds the wire frame for the current state, as a pilot would see it.
func (h *Harness) Frame() protocol.FrameMsg {
	h.T.Helper()
	snap := h.R.Latest()
	f := runner.Frame(snap, nil, true)
	b, err := json.Marshal(f)
	if err != nil {
		h.T.Fatalf("marshal frame: %v", err)
	}
	if err := json.Unmarshal(b, &h.lastFrame); err != nil {
		h.T.Fatalf("unmarshal frame: %v", err)
	}
	return h.lastFrame
}
