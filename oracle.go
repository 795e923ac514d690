package sbootseed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/blake2b"

	"github.com/sbootre/go-sbootseed/internal/modmath"
)

// ErrMaterialOutOfRange reports a key-material block that decodes to a
// value at or above the modulus. The derivation fixups keep real blocks
// below the supplier modulus, so this error means the material and the key
// do not belong together.
var ErrMaterialOutOfRange = errors.New("sbootseed: key material is not below the modulus")

// Ciphertext is a little-endian RSA output block.
type Ciphertext [KeyMaterialSize]byte

// Prefix returns the first eight bytes as a little-endian integer, the
// quantity the search compares against the leaked target value.
func (ct *Ciphertext) Prefix() uint64 {
	return binary.LittleEndian.Uint64(ct[:8])
}

// PublicKey identifies the RSA key a bootloader image encrypts against.
type PublicKey struct {
	N *big.Int // modulus
	E *big.Int // public exponent
}

// Size returns the modulus length in bytes.
func (k PublicKey) Size() int {
	return (k.N.BitLen() + 7) / 8
}

// Fingerprint returns the BLAKE2b-256 digest identifying the key: the
// modulus encoded little-endian at its natural width, followed by the
// big-endian exponent bytes.
func (k PublicKey) Fingerprint() [32]byte {
	size := k.Size()
	buf := make([]byte, size+len(k.E.Bytes()))
	_ = modmath.FillLE(k.N, buf[:size]) // cannot fail at the modulus's own width
	copy(buf[size:], k.E.Bytes())
	return blake2b.Sum256(buf)
}

// Oracle encrypts key-material blocks under a single public key, exactly as
// the bootloader does: the block is read as a little-endian integer, raised
// to the public exponent modulo the key, and written back little-endian
// with zero padding.
//
// An Oracle owns scratch big integers and is not safe for concurrent use;
// give each worker its own.
type Oracle struct {
	key PublicKey
	m   big.Int
	c   big.Int
}

// NewOracle validates key and returns an Oracle bound to it. The modulus
// must encode in exactly KeyMaterialSize bytes; the key-material layout is
// specific to 2048-bit targets.
func NewOracle(key PublicKey) (*Oracle, error) {
	switch {
	case key.N == nil || key.E == nil:
		return nil, errors.New("sbootseed: public key is incomplete")
	case key.N.Sign() <= 0 || key.N.Bit(0) == 0:
		return nil, errors.New("sbootseed: modulus must be positive and odd")
	case key.E.Cmp(big.NewInt(2)) < 0:
		return nil, errors.New("sbootseed: exponent must be at least 2")
	case key.Size() != KeyMaterialSize:
		return nil, fmt.Errorf("sbootseed: modulus encodes to %d bytes, need exactly %d",
			key.Size(), KeyMaterialSize)
	}
	return &Oracle{key: key}, nil
}

// Key returns the public key the Oracle is bound to.
func (o *Oracle) Key() PublicKey {
	return o.key
}

// Encrypt writes the encryption of km into ct. It fails only when km does
// not decode below the modulus.
func (o *Oracle) Encrypt(km *KeyMaterial, ct *Ciphertext) error {
	modmath.SetLE(&o.m, km[:])
	if o.m.Cmp(o.key.N) >= 0 {
		return ErrMaterialOutOfRange
	}
	modmath.Modexp(&o.c, &o.m, o.key.E, o.key.N)
	if err := modmath.FillLE(&o.c, ct[:]); err != nil {
		return fmt.Errorf("sbootseed: encode ciphertext: %w", err)
	}
	return nil
}
