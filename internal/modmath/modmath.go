// Package modmath provides the big-integer arithmetic behind the
// verification oracle. It wraps math/big behind a little-endian codec so
// callers never perform byte-order conversions themselves.
package modmath

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

// scratchPool recycles the byte-reversal buffers; SetLE runs once per
// search trial.
var scratchPool = sync.Pool{
	New: func() interface{} { return new([]byte) },
}

// SetLE interprets buf as a little-endian unsigned integer and stores it
// in z. The buffer is not modified. Returns z.
func SetLE(z *big.Int, buf []byte) *big.Int {
	p := scratchPool.Get().(*[]byte)
	rev := *p
	if cap(rev) < len(buf) {
		rev = make([]byte, len(buf))
		*p = rev
	}
	rev = rev[:len(buf)]
	for i, b := range buf {
		rev[len(buf)-1-i] = b
	}
	z.SetBytes(rev)
	scratchPool.Put(p) // SetBytes copies its input; rev does not escape
	return z
}

// FillLE encodes x as a little-endian unsigned integer into buf, padding
// the high-order tail with zeros. Returns an error if x is negative or
// does not fit in len(buf) bytes.
func FillLE(x *big.Int, buf []byte) error {
	if x.Sign() < 0 {
		return errors.New("modmath: cannot encode negative value")
	}
	if need := (x.BitLen() + 7) / 8; need > len(buf) {
		return fmt.Errorf("modmath: value needs %d bytes, buffer holds %d", need, len(buf))
	}
	x.FillBytes(buf)
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return nil
}

// Modexp computes base^exp mod mod and stores the result in z.
// Returns z. All four arguments may alias.
func Modexp(z, base, exp, mod *big.Int) *big.Int {
	return z.Exp(base, exp, mod)
}
