package mathx

// Rand is a counter-based splitmix64 stream. It is a plain value so it can be
// copied with the state that owns it and written into snapshots.
type Rand struct {
	Seed    int64  `json:"seed"`
	Counter uint64 `json:"counter"`
}

func NewRand(seed int64) Rand { return Rand{Seed: seed} }

func (r *Rand) Uint64() uint64 {
	r.Counter++
	return mix64(uint64(r.Seed) ^ (r.Counter * 0x9e3779b97f4a7c15))
}

// Float64 returns a value in [0,1).
func (r *Rand) Float64() float64 {
	return float64(r.Uint64()>>11) / (1 << 53)
}

// Intn returns a value in [0,n). n <= 0 yields 0.
func (r *Rand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.Uint64() % uint64(n))
}

// Range returns a value in [lo, lo+width).
func (r *Rand) Range(lo, width float64) float64 {
	return lo + r.Float64()*width
}

// Spread returns a value in [-width/2, width/2).
func (r *Rand) Spread(width float64) float64 {
	return width * (r.Float64() - 0.5)
}
