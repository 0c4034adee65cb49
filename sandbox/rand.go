package sandbox

const (
	lcgMul  = 0x5DEECE66D
	lcgInc  = 0xB
	lcgMask = (1 << 48) - 1

	// RandMax is one past the largest value Next can return.
	RandMax = 1 << 31
)

// Rand is the 48-bit linear congruential generator scripts draw their random
// numbers from. Seeding it with the same value replays the same sequence, so
// every invocation of a script can be made to observe identical randomness.
// Not safe for concurrent use; each interpreter owns its own instance.
type Rand struct {
	x uint64
}

// NewRand returns a generator seeded with 0.
func NewRand() *Rand {
	r := &Rand{}
	r.Seed(0)
	return r
}

// Seed resets the generator state from a 32-bit seed value.
func (r *Rand) Seed(seed int64) {
	r.x = (uint64(uint32(seed))<<16 | 0x330E) & lcgMask
}

// Next returns the next value in [0, RandMax).
func (r *Rand) Next() int64 {
	r.x = (lcgMul*r.x + lcgInc) & lcgMask
	return int64(r.x >> 17)
}
