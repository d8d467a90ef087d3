package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is the full resumable state of a run. Ring configs are not
// stored: they are rebuilt from tuning on import and TuningDigest records
// which tuning the objects were rolled under.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed         int64  `json:"seed"`
	TickRate     int    `json:"tick_rate_hz"`
	TuningDigest string `json:"tuning_digest,omitempty"`

	Time     float64 `json:"time"`
	Distance float64 `json:"distance"`
	Altitude float64 `json:"altitude"`

	Player PlayerV1 `json:"player"`
	Meter  MeterV1  `json:"meter"`
	Rand   RandV1   `json:"rand"`
	Rings  []RingV1 `json:"rings"`
	Stats  StatsV1  `json:"stats"`
}

type PlayerV1 struct {
	Lane         int        `json:"lane"`
	Pos          [3]float64 `json:"pos"`
	Mode         string     `json:"mode"`
	VaultTimer   float64    `json:"vault_timer"`
	RailTimer    float64    `json:"rail_timer"`
	DashCooldown float64    `json:"dash_cooldown"`
	PulseTimer   float64    `json:"pulse_timer"`
}

type MeterV1 struct {
	Lattice   float64 `json:"lattice"`
	Combo     float64 `json:"combo"`
	Integrity float64 `json:"integrity"`
}

type RandV1 struct {
	Seed    int64  `json:"seed"`
	Counter uint64 `json:"counter"`
}

type RingV1 struct {
	Kind     string     `json:"kind"`
	Recycled uint64     `json:"recycled"`
	Objects  []ObjectV1 `json:"objects"`
}

type ObjectV1 struct {
	Shape      string     `json:"shape,omitempty"`
	Pos        [3]float64 `json:"pos"`
	Lane       int        `json:"lane"`
	Lateral    float64    `json:"lateral,omitempty"`
	BaseY      float64    `json:"base_y"`
	Scale      float64    `json:"scale,omitempty"`
	Bonus      float64    `json:"bonus,omitempty"`
	Speed      float64    `json:"speed"`
	Spin       float64    `json:"spin,omitempty"`
	Phase      float64    `json:"phase,omitempty"`
	Rotation   float64    `json:"rotation,omitempty"`
	Parts      int        `json:"parts,omitempty"`
	Consumed   bool       `json:"consumed,omitempty"`
	RearmIn    float64    `json:"rearm_in,omitempty"`
	Generation uint64     `json:"generation"`
}

type StatsV1 struct {
	Pickups     uint64  `json:"pickups"`
	RailEntries uint64  `json:"rail_entries"`
	Hits        uint64  `json:"hits"`
	HitsIgnored uint64  `json:"hits_ignored"`
	Bursts      uint64  `json:"bursts"`
	Vaults      uint64  `json:"vaults"`
	Recycled    uint64  `json:"recycled"`
	PeakCombo   float64 `json:"peak_combo"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line; gob carries it too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

// PathFor is where the snapshot for tick lives under runDir.
func PathFor(runDir string, tick uint64) string {
	return filepath.Join(runDir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
}

// Latest returns the highest-tick snapshot under runDir, or "".
func Latest(runDir string) string {
	dir := filepath.Join(runDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
