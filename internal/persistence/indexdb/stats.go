package indexdb

import "sync/atomic"

// QueueStats reports backpressure on an index writer. Both backends drop
// rather than block the run loop; these counters make the drops visible.
type QueueStats struct {
	QueueDepth    int `json:"queue_depth"`
	QueueCapacity int `json:"queue_capacity"`

	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	DropRunTotal      uint64 `json:"drop_run_total"`

	// Remote backend only.
	QueueDroppedTotal uint64 `json:"queue_dropped_total"`
	FlushFailTotal    uint64 `json:"flush_fail_total"`
}

type dropCounters struct {
	tick     atomic.Uint64
	snapshot atomic.Uint64
	run      atomic.Uint64
}
