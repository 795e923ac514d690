package sbootseed

// Generator parameters. The bootloader runs a Mersenne Twister in the
// batch-reload arrangement: the full 624-word state is regenerated at once
// and a countdown tracks how many tempered words remain in the batch.
const (
	stateWords  = 624
	twistOffset = 397
	twistMatrix = 0x9908b0df
	upperMask   = 0x80000000
	lowerMask   = 0x7fffffff

	seedMultiplier = 69069

	temperMaskB = 0x9d2c5680
	temperMaskC = 0xefc60000
)

// Twister reproduces the bootloader's pseudo-random generator bit for bit.
//
// It is an MT19937 core with the bootloader's two deviations from the
// reference design: seeding forces the seed odd and expands it through a
// 69069 multiplicative congruential pass, and a generator that was never
// seeded silently falls back to seed 1 on first use.
//
// The zero value is only usable after Seed; use NewTwister to obtain a
// generator with the never-seeded fallback armed. A Twister is not safe for
// concurrent use.
type Twister struct {
	state [stateWords]uint32
	next  int // index of the next untempered word
	left  int // words remaining in the current batch
}

// NewTwister returns an unseeded generator. Drawing from it before calling
// Seed yields the same stream as Seed(1).
func NewTwister() *Twister {
	return &Twister{left: -1}
}

// Seed initializes the state from seed. The seed is forced odd, so seed and
// seed|1 produce identical streams. The first word drawn afterwards always
// triggers a full state generation.
func (t *Twister) Seed(seed uint32) {
	x := seed | 1
	t.state[0] = x
	for i := 1; i < stateWords; i++ {
		x *= seedMultiplier
		t.state[i] = x
	}
	t.left = 0
}

// Next returns the next tempered output word.
func (t *Twister) Next() uint32 {
	t.left--
	if t.left < 0 {
		return t.reload()
	}
	y := t.state[t.next]
	t.next++
	return temper(y)
}

// reload regenerates all 624 state words, resets the countdown and cursor,
// and returns the tempered first word of the new batch.
func (t *Twister) reload() uint32 {
	// left goes below -1 only when the generator was never seeded.
	if t.left < -1 {
		t.Seed(1)
	}

	for i := 0; i < stateWords; i++ {
		y := (t.state[i] & upperMask) | (t.state[(i+1)%stateWords] & lowerMask)
		v := t.state[(i+twistOffset)%stateWords] ^ (y >> 1)
		if y&1 != 0 {
			v ^= twistMatrix
		}
		t.state[i] = v
	}

	t.left = stateWords - 1
	t.next = 1
	return temper(t.state[0])
}

// temper applies the MT19937 output transform.
func temper(y uint32) uint32 {
	y ^= y >> 11
	y ^= (y << 7) & temperMaskB
	y ^= (y << 15) & temperMaskC
	return y ^ (y >> 18)
}
