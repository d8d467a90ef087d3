package runner

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"neonlane.ai/internal/persistence/snapshot"
	"neonlane.ai/internal/sim/clock"
	"neonlane.ai/internal/sim/input"
	"neonlane.ai/internal/sim/tuning"
)

type Config struct {
	RunID  string
	Seed   int64
	Tuning tuning.Tuning

	// FixedStep advances every tick by 1/TickRateHz instead of the measured
	// wall-clock delta.
	FixedStep bool
}

// Envelope is one pilot input as received by the transport.
type Envelope struct {
	SessionID string
	Seq       uint64
	Input     input.Input
}

type RecordedInput struct {
	SessionID string `json:"session_id"`
	Seq       uint64 `json:"seq,omitempty"`
	Verb      string `json:"verb"`
	Dir       int    `json:"dir,omitempty"`
}

// Input converts the record back to an input. Unknown verbs return false.
func (r RecordedInput) Input() (input.Input, bool) {
	in, err := input.Parse(r.Verb, r.Dir)
	return in, err == nil
}

type TickLogEntry struct {
	Tick   uint64          `json:"tick"`
	DT     float64         `json:"dt"`
	Inputs []RecordedInput `json:"inputs,omitempty"`
	Events []Event         `json:"events,omitempty"`
	Digest string          `json:"digest"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type EventLogger interface {
	WriteEvent(e Event) error
}

// Runner owns one run. All State access happens on the Run goroutine; other
// goroutines talk to it through channels and read published views.
type Runner struct {
	cfg   Config
	rules Rules
	state State
	clock *clock.Clock

	tick atomic.Uint64

	inbox         chan Envelope
	join          chan JoinRequest
	leave         chan string
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	admin         chan adminSnapshotReq
	stop          chan struct{}
	stopOnce      sync.Once

	pilot     *pilotClient
	observers map[string]*observerClient

	tickLogger   TickLogger
	eventLogger  EventLogger
	snapshotSink chan<- snapshot.SnapshotV1
	logger       *log.Logger

	metrics atomic.Value // RunMetrics
	latest  atomic.Value // Snapshot
}

func New(cfg Config) (*Runner, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	return newRunner(cfg, NewState(cfg.Tuning, cfg.Seed)), nil
}

// Resume continues a run from a snapshot taken under the same tuning.
func Resume(cfg Config, snap snapshot.SnapshotV1) (*Runner, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}
	s, err := StateFromSnapshot(cfg.Tuning, snap)
	if err != nil {
		return nil, err
	}
	cfg.RunID = snap.Header.RunID
	cfg.Seed = snap.Seed
	return newRunner(cfg, s), nil
}

func newRunner(cfg Config, s State) *Runner {
	r := &Runner{
		cfg:           cfg,
		rules:         NewRules(cfg.Tuning),
		state:         s,
		clock:         clock.New(cfg.Tuning.MaxStepSeconds),
		inbox:         make(chan Envelope, 1024),
		join:          make(chan JoinRequest, 16),
		leave:         make(chan string, 16),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 16),
		observerLeave: make(chan string, 16),
		admin:         make(chan adminSnapshotReq, 8),
		stop:          make(chan struct{}),
		observers:     map[string]*observerClient{},
	}
	r.tick.Store(s.Tick)
	r.latest.Store(r.rules.Snapshot(s))
	r.publishMetrics(0)
	return r
}

func (r *Runner) SetTickLogger(l TickLogger)                    { r.tickLogger = l }
func (r *Runner) SetEventLogger(l EventLogger)                  { r.eventLogger = l }
func (r *Runner) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { r.snapshotSink = ch }
func (r *Runner) SetLogger(l *log.Logger)                       { r.logger = l }

func (r *Runner) Inbox() chan<- Envelope                             { return r.inbox }
func (r *Runner) Join() chan<- JoinRequest                           { return r.join }
func (r *Runner) Leave() chan<- string                               { return r.leave }
func (r *Runner) ObserverJoin() chan<- ObserverJoinRequest           { return r.observerJoin }
func (r *Runner) ObserverSubscribe() chan<- ObserverSubscribeRequest { return r.observerSub }
func (r *Runner) ObserverLeave() chan<- string                       { return r.observerLeave }

func (r *Runner) Config() Config       { return r.cfg }
func (r *Runner) RunID() string        { return r.cfg.RunID }
func (r *Runner) CurrentTick() uint64  { return r.tick.Load() }
func (r *Runner) TickRateHz() int      { return r.cfg.Tuning.TickRateHz }
func (r *Runner) TuningDigest() string { return TuningDigest(r.cfg.Tuning) }

// Latest returns the most recent published snapshot. Safe from any goroutine.
func (r *Runner) Latest() Snapshot {
	v, _ := r.latest.Load().(Snapshot)
	return v
}

func (r *Runner) Run(ctx context.Context) error {
	hz := r.cfg.Tuning.TickRateHz
	if hz <= 0 {
		return errors.New("tick rate must be positive")
	}
	interval := time.Second / time.Duration(hz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	r.clock.Reset()
	r.clock.Tick(0)

	var pendingInputs []Envelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			return nil
		case req := <-r.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-r.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-r.observerJoin:
			r.handleObserverJoin(req)
		case req := <-r.observerSub:
			r.handleObserverSubscribe(req)
		case id := <-r.observerLeave:
			r.handleObserverLeave(id)
		case req := <-r.admin:
			pendingAdmin = append(pendingAdmin, req)
		case env := <-r.inbox:
			pendingInputs = append(pendingInputs, env)
		case now := <-ticker.C:
			dt := 1 / float64(hz)
			if !r.cfg.FixedStep {
				dt = r.clock.Tick(float64(now.Sub(start).Microseconds()) / 1000)
			}
			r.step(dt, pendingJoins, pendingLeaves, pendingInputs, true)
			r.handleAdminSnapshotRequests(pendingAdmin)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingInputs = pendingInputs[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (r *Runner) Stop() { r.stopOnce.Do(func() { close(r.stop) }) }

// step runs one tick. With fromPilot set, inputs not sent by the current
// pilot session are dropped; replays pass recorded inputs unfiltered.
func (r *Runner) step(dt float64, joins []JoinRequest, leaves []string, inputs []Envelope, fromPilot bool) {
	stepStart := time.Now()

	// Sessions change at the tick boundary, before inputs.
	for _, id := range leaves {
		r.handleLeave(id)
	}
	for _, req := range joins {
		r.handleJoin(req)
	}

	recorded := make([]RecordedInput, 0, len(inputs))
	ins := make([]input.Input, 0, len(inputs))
	for _, env := range inputs {
		if fromPilot && (r.pilot == nil || env.SessionID != r.pilot.id) {
			continue
		}
		recorded = append(recorded, RecordedInput{SessionID: env.SessionID, Seq: env.Seq, Verb: string(env.Input.Verb), Dir: env.Input.Dir})
		ins = append(ins, env.Input)
	}

	next, events := r.rules.Advance(r.state, dt, ins)
	r.state = next
	nowTick := next.Tick
	r.tick.Store(nowTick)

	snap := r.rules.Snapshot(next)
	r.latest.Store(snap)

	r.stepPilot(snap, events)
	r.stepObservers(snap, events)

	digest := Digest(next)
	if r.tickLogger != nil {
		if err := r.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, DT: dt, Inputs: recorded, Events: events, Digest: digest}); err != nil {
			r.logf("tick log: %v", err)
		}
	}
	if r.eventLogger != nil {
		for _, e := range events {
			if err := r.eventLogger.WriteEvent(e); err != nil {
				r.logf("event log: %v", err)
				break
			}
		}
	}

	if r.snapshotSink != nil && r.cfg.Tuning.SnapshotEveryTicks > 0 {
		if nowTick%uint64(r.cfg.Tuning.SnapshotEveryTicks) == 0 {
			select {
			case r.snapshotSink <- ExportSnapshot(r.cfg.RunID, r.cfg.Tuning, next):
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	r.publishMetrics(float64(time.Since(stepStart).Microseconds()) / 1000.0)
}

// StepOnce advances the run by a single tick with the same ordering as Run.
// It is intended for deterministic replays and tests.
func (r *Runner) StepOnce(dt float64, inputs []Envelope) (tick uint64, digest string) {
	r.step(dt, nil, nil, inputs, false)
	return r.state.Tick, Digest(r.state)
}

// StepInputs is StepOnce for bare inputs.
func (r *Runner) StepInputs(dt float64, inputs []input.Input) (tick uint64, digest string) {
	envs := make([]Envelope, len(inputs))
	for i, in := range inputs {
		envs[i] = Envelope{Input: in}
	}
	return r.StepOnce(dt, envs)
}

// State returns a deep copy of the current state. Only call it from the Run
// goroutine or when Run is not running.
func (r *Runner) State() State { return r.state.Clone() }

func (r *Runner) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
