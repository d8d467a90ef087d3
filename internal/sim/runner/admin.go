package runner

import (
	"context"
	"errors"
)

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Tick uint64
	Err  string
}

// RequestSnapshot asks the run loop goroutine to enqueue a snapshot of the
// state after the next tick. It is safe to call from other goroutines (e.g.
// HTTP handlers).
func (r *Runner) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	if r == nil || r.admin == nil {
		return 0, errors.New("admin snapshot not available")
	}
	resp := make(chan adminSnapshotResp, 1)
	req := adminSnapshotReq{Resp: resp}

	select {
	case r.admin <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case res := <-resp:
		if res.Err != "" {
			return res.Tick, errors.New(res.Err)
		}
		return res.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (r *Runner) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if len(reqs) == 0 {
		return
	}
	tick := r.state.Tick

	errStr := ""
	if r.snapshotSink == nil {
		errStr = "snapshot sink not configured"
	} else {
		select {
		case r.snapshotSink <- ExportSnapshot(r.cfg.RunID, r.cfg.Tuning, r.state):
		default:
			errStr = "snapshot sink backpressure"
		}
	}

	resp := adminSnapshotResp{Tick: tick, Err: errStr}
	for _, req := range reqs {
		if req.Resp == nil {
			continue
		}
		select {
		case req.Resp <- resp:
		default:
			// Client timed out; don't block the run loop.
		}
	}
}
