package runner

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"neonlane.ai/internal/sim/pool"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Digest hashes every field that influences future ticks. Two runs fed the
// same seed, tuning, dt sequence and inputs produce identical digests.
func Digest(s State) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, s.Tick)
	digestWriteF64(h, &tmp, s.Time)
	digestWriteF64(h, &tmp, s.Distance)
	digestWriteF64(h, &tmp, s.Altitude)

	p := s.Player
	digestWriteU64(h, &tmp, uint64(p.Lane.Index))
	digestWriteF64(h, &tmp, p.Pos.X)
	digestWriteF64(h, &tmp, p.Pos.Y)
	digestWriteF64(h, &tmp, p.Pos.Z)
	h.Write([]byte{byte(p.Mode)})
	digestWriteF64(h, &tmp, p.VaultTimer)
	digestWriteF64(h, &tmp, p.RailTimer)
	digestWriteF64(h, &tmp, p.DashCooldown)
	digestWriteF64(h, &tmp, p.PulseTimer)

	digestWriteF64(h, &tmp, s.Meter.Lattice)
	digestWriteF64(h, &tmp, s.Meter.Combo)
	digestWriteF64(h, &tmp, s.Meter.Integrity)

	digestWriteU64(h, &tmp, uint64(s.Rand.Seed))
	digestWriteU64(h, &tmp, s.Rand.Counter)

	for _, ring := range []pool.Ring{s.City, s.Ions, s.Formations, s.Rails} {
		digestRing(h, &tmp, ring)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestRing(h hashWriter, tmp *[8]byte, r pool.Ring) {
	h.Write([]byte{byte(r.Cfg.Kind)})
	digestWriteU64(h, tmp, uint64(len(r.Items)))
	digestWriteU64(h, tmp, r.Recycled)
	for _, o := range r.Items {
		h.Write([]byte{byte(o.Kind), byte(o.Shape), boolByte(o.Consumed)})
		digestWriteU64(h, tmp, uint64(o.Lane))
		digestWriteF64(h, tmp, o.Pos.X)
		digestWriteF64(h, tmp, o.Pos.Y)
		digestWriteF64(h, tmp, o.Pos.Z)
		digestWriteF64(h, tmp, o.Lateral)
		digestWriteF64(h, tmp, o.BaseY)
		digestWriteF64(h, tmp, o.Scale)
		digestWriteF64(h, tmp, o.Bonus)
		digestWriteF64(h, tmp, o.Speed)
		digestWriteF64(h, tmp, o.Spin)
		digestWriteF64(h, tmp, o.Phase)
		digestWriteF64(h, tmp, o.Rotation)
		digestWriteF64(h, tmp, o.RearmIn)
		digestWriteU64(h, tmp, o.Generation)
	}
}
