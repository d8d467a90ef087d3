package main

import (
	"testing"

	"neonlane.ai/internal/protocol"
)

func frame(tick uint64, lane int, objs ...protocol.ObjectFrame) protocol.FrameMsg {
	lanes := []float64{-8, 0, 8}
	return protocol.FrameMsg{
		Tick:    tick,
		Player:  protocol.PlayerFrame{Lane: lane, Pos: [3]float64{lanes[lane], 2, 0}, Mode: "GROUNDED"},
		Objects: objs,
	}
}

func obj(kind string, x, z float64) protocol.ObjectFrame {
	return protocol.ObjectFrame{Kind: kind, Pos: [3]float64{x, 2, z}}
}

func TestAutopilot_DodgesFormation(t *testing.T) {
	a := &autopilot{lanes: []float64{-8, 0, 8}}
	got := a.decide(frame(1, 1, obj("FORMATION", 0, -20), obj("FORMATION", -8, -10)))
	if len(got) != 1 || got[0].Verb != "LANE_SHIFT" || got[0].Dir != 1 {
		t.Fatalf("got %+v", got)
	}
	if got[0].Seq != 1 || got[0].ProtocolVersion != protocol.Version {
		t.Fatalf("envelope %+v", got[0])
	}
}

func TestAutopilot_VaultsWhenBoxedIn(t *testing.T) {
	a := &autopilot{lanes: []float64{-8, 0, 8}}
	got := a.decide(frame(1, 0, obj("FORMATION", -8, -5), obj("FORMATION", 0, -3)))
	if len(got) != 1 || got[0].Verb != "VAULT" {
		t.Fatalf("got %+v", got)
	}
}

func TestAutopilot_ChasesIon(t *testing.T) {
	a := &autopilot{lanes: []float64{-8, 0, 8}}
	got := a.decide(frame(1, 1, obj("ION", -8, -30), obj("ION", 8, -50)))
	if len(got) != 1 || got[0].Verb != "LANE_SHIFT" || got[0].Dir != -1 {
		t.Fatalf("got %+v", got)
	}
}

func TestAutopilot_IgnoresObjectsBehindAndConsumed(t *testing.T) {
	a := &autopilot{lanes: []float64{-8, 0, 8}}
	consumed := obj("FORMATION", 0, -5)
	consumed.Consumed = true
	if got := a.decide(frame(1, 1, obj("FORMATION", 0, 5), consumed)); len(got) != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestAutopilot_BurstAndOncePerTick(t *testing.T) {
	a := &autopilot{lanes: []float64{-8, 0, 8}}
	f := frame(7, 1)
	f.HUD.Lattice = 80
	if got := a.decide(f); len(got) != 1 || got[0].Verb != "BURST" {
		t.Fatalf("got %+v", got)
	}
	if got := a.decide(f); got != nil {
		t.Fatalf("same tick acted twice: %+v", got)
	}
}
