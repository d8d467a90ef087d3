package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"neonlane.ai/internal/persistence/snapshot"
	"neonlane.ai/internal/sim/runner"
	"neonlane.ai/internal/sim/tuning"
)

// D1Config points the index at an HTTP ingest worker that fronts a
// Cloudflare D1 database with the same tables as the local SQLite index.
type D1Config struct {
	Endpoint      string
	Token         string
	RunID         string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// MaxRetained bounds the batch kept across failed flushes.
	MaxRetained int
	Logger      *log.Logger
}

type D1Index struct {
	cfg        D1Config
	httpClient *http.Client

	ch   chan d1Event
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
	drops  dropCounters

	queueDropped atomic.Uint64
	flushFails   atomic.Uint64
}

type d1Event struct {
	Kind    string `json:"kind"`
	RunID   string `json:"run_id"`
	Payload any    `json:"payload"`
}

type d1TickPayload struct {
	Tick   uint64                 `json:"tick"`
	DT     float64                `json:"dt"`
	Digest string                 `json:"digest"`
	Inputs []runner.RecordedInput `json:"inputs,omitempty"`
	Events []runner.Event         `json:"events,omitempty"`
}

type d1TuningPayload struct {
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

func OpenD1(cfg D1Config) (*D1Index, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.RunID = strings.TrimSpace(cfg.RunID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty d1 ingest endpoint")
	}
	if cfg.RunID == "" {
		return nil, fmt.Errorf("empty run id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = 16 * cfg.BatchSize
	}

	d := &D1Index{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		ch: make(chan d1Event, 32768),
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()

	return d, nil
}

func (d *D1Index) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *D1Index) WriteTick(entry runner.TickLogEntry) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	p := d1TickPayload{
		Tick:   entry.Tick,
		DT:     entry.DT,
		Digest: entry.Digest,
		Inputs: entry.Inputs,
		Events: entry.Events,
	}
	if !d.enqueue(d1Event{Kind: "tick", RunID: d.cfg.RunID, Payload: p}) {
		d.drops.tick.Add(1)
	}
	return nil
}

func (d *D1Index) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if d == nil || d.closed.Load() {
		return
	}
	if !d.enqueue(d1Event{Kind: "snapshot", RunID: d.cfg.RunID, Payload: snapshotRowOf(path, snap)}) {
		d.drops.snapshot.Add(1)
	}
}

func (d *D1Index) RecordRun(sum runner.Summary) {
	if d == nil || d.closed.Load() {
		return
	}
	if !d.enqueue(d1Event{Kind: "run", RunID: d.cfg.RunID, Payload: sum}) {
		d.drops.run.Add(1)
	}
}

func (d *D1Index) UpsertTuning(tune tuning.Tuning) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	d.enqueue(d1Event{Kind: "tuning", RunID: d.cfg.RunID, Payload: d1TuningPayload{
		Digest:    runner.TuningDigest(tune),
		JSON:      string(b),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}})
	return nil
}

func (d *D1Index) Stats() QueueStats {
	if d == nil {
		return QueueStats{}
	}
	return QueueStats{
		QueueDepth:        len(d.ch),
		QueueCapacity:     cap(d.ch),
		DropTickTotal:     d.drops.tick.Load(),
		DropSnapshotTotal: d.drops.snapshot.Load(),
		DropRunTotal:      d.drops.run.Load(),
		QueueDroppedTotal: d.queueDropped.Load(),
		FlushFailTotal:    d.flushFails.Load(),
	}
}

func (d *D1Index) enqueue(ev d1Event) bool {
	if d == nil || d.closed.Load() {
		return false
	}
	select {
	case d.ch <- ev:
		return true
	default:
		d.printf("d1 index queue full; drop kind=%s run=%s", ev.Kind, ev.RunID)
		return false
	}
}

func (d *D1Index) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]d1Event, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.flushFails.Add(1)
			d.printf("d1 index flush failed batch=%d err=%v", len(batch), err)
			// Keep the batch for the next flush; shed the oldest past the cap.
			if over := len(batch) - d.cfg.MaxRetained; over > 0 {
				d.queueDropped.Add(uint64(over))
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *D1Index) sendBatch(events []d1Event) error {
	if len(events) == 0 {
		return nil
	}

	body := struct {
		Events []d1Event `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("x-nl-index-token", d.cfg.Token)
		}

		resp, err := d.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (d *D1Index) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
