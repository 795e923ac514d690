package sbootseed

import (
	"encoding/binary"
	"math/bits"
)

// KeyMaterialSize is the size in bytes of the key-material block the
// bootloader derives on every boot.
const KeyMaterialSize = 256

const keyMaterialWords = KeyMaterialSize / 4

// KeyMaterial is the bootloader's 256-byte RSA input block: 64 generator
// words laid out little-endian, with two fixups applied on top.
type KeyMaterial [KeyMaterialSize]byte

// DeriveKeyMaterial fills km from the generator's current position, drawing
// exactly 64 words from tw.
//
// Words 0 through 62 are stored as drawn. The final word is truncated to 16
// bits and merged with an 0200 marker through a byte-swapped add, and byte
// 245 is cleared outright (the store sits at 800167d4 in the SBOOT image).
// Both fixups are reproduced literally; together they keep the block
// numerically below the supplier modulus, so every derived block is a valid
// RSA input.
func DeriveKeyMaterial(tw *Twister, km *KeyMaterial) {
	for i := 0; i < keyMaterialWords; i++ {
		w := tw.Next()
		if i == keyMaterialWords-1 {
			w = bits.ReverseBytes32(bits.ReverseBytes32(w&0xffff) + 0x0200)
		}
		binary.LittleEndian.PutUint32(km[4*i:], w)
	}
	km[245] = 0
}
