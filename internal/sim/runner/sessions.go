package runner

import (
	"encoding/json"

	"github.com/google/uuid"

	"neonlane.ai/internal/observerproto"
	"neonlane.ai/internal/protocol"
)

// JoinRequest attaches the pilot. A run has one craft, so a second pilot is
// refused with E_RUN_BUSY until the first leaves.
type JoinRequest struct {
	PilotName string
	Objects   bool
	Out       chan []byte
	Resp      chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Err     *protocol.ErrorMsg
}

type pilotClient struct {
	id      string
	name    string
	out     chan []byte
	objects bool

	// Events since the last frame sent.
	pending []Event
}

// ObserverJoinRequest registers a read-only observer session.
type ObserverJoinRequest struct {
	SessionID  string
	Out        chan []byte
	EveryTicks int
	Events     bool
	Objects    bool
}

type ObserverSubscribeRequest struct {
	SessionID  string
	EveryTicks int
	Events     bool
	Objects    bool
}

type observerClient struct {
	id      string
	out     chan []byte
	every   uint64
	events  bool
	objects bool
	pending []Event
}

func (r *Runner) handleJoin(req JoinRequest) {
	var resp JoinResponse
	if r.pilot != nil {
		e := protocol.NewError(protocol.ErrRunBusy, "a pilot is already attached", 0)
		resp.Err = &e
	} else {
		r.pilot = &pilotClient{
			id:      uuid.NewString(),
			name:    req.PilotName,
			out:     req.Out,
			objects: req.Objects,
		}
		resp.Welcome = r.welcome(r.pilot.id)
		r.logf("pilot %q joined run %s at tick %d", req.PilotName, r.cfg.RunID, r.state.Tick)
	}
	if req.Resp != nil {
		req.Resp <- resp
	}
}

func (r *Runner) welcome(sessionID string) protocol.WelcomeMsg {
	t := r.cfg.Tuning
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		RunID:           r.cfg.RunID,
		Tick:            r.state.Tick,
		RunParams: protocol.RunParams{
			TickRateHz:      t.TickRateHz,
			FrameEveryTicks: t.FrameEveryTicks,
			MaxStepSeconds:  t.MaxStepSeconds,
			Seed:            r.cfg.Seed,
			Lanes:           append([]float64(nil), t.Lanes...),
		},
		TuningDigest: TuningDigest(t),
	}
}

func (r *Runner) handleLeave(id string) {
	if r.pilot != nil && r.pilot.id == id {
		r.logf("pilot %q left run %s at tick %d", r.pilot.name, r.cfg.RunID, r.state.Tick)
		r.pilot = nil
	}
}

func (r *Runner) stepPilot(snap Snapshot, events []Event) {
	p := r.pilot
	if p == nil || p.out == nil {
		return
	}
	p.pending = append(p.pending, events...)
	every := uint64(r.cfg.Tuning.FrameEveryTicks)
	if every > 1 && snap.Tick%every != 0 {
		return
	}
	b, err := json.Marshal(Frame(snap, p.pending, p.objects))
	p.pending = p.pending[:0]
	if err != nil {
		return
	}
	sendLatest(p.out, b)
}

func (r *Runner) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.Out == nil {
		return
	}
	r.observers[req.SessionID] = &observerClient{
		id:      req.SessionID,
		out:     req.Out,
		every:   observerEvery(req.EveryTicks),
		events:  req.Events,
		objects: req.Objects,
	}
}

func (r *Runner) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := r.observers[req.SessionID]
	if c == nil {
		return
	}
	c.every = observerEvery(req.EveryTicks)
	c.events = req.Events
	c.objects = req.Objects
	if !c.events {
		c.pending = nil
	}
}

func (r *Runner) handleObserverLeave(id string) {
	delete(r.observers, id)
}

func observerEvery(n int) uint64 {
	if n <= 1 {
		return 1
	}
	return uint64(n)
}

func (r *Runner) stepObservers(snap Snapshot, events []Event) {
	if len(r.observers) == 0 {
		return
	}
	pilots := 0
	if r.pilot != nil {
		pilots = 1
	}
	stats := observerproto.RunStats(snap.Stats)
	for _, c := range r.observers {
		if c.events {
			c.pending = append(c.pending, events...)
		}
		if snap.Tick%c.every != 0 {
			continue
		}
		msg := observerproto.HudMsg{
			Type:            observerproto.TypeHUD,
			ProtocolVersion: observerproto.Version,
			Tick:            snap.Tick,
			Pilots:          pilots,
			Frame:           Frame(snap, c.pending, c.objects),
			Stats:           stats,
		}
		c.pending = c.pending[:0]
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		sendLatest(c.out, b)
	}
}
