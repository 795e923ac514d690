package sbootseed

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteReport prints the recovery report: the found seed followed by the
// key-material and ciphertext blocks as little-endian words, eight per
// line. The shape matches what operators paste into bootloader tooling, so
// it stays fixed.
func (r *Result) WriteReport(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "**** FOUND ****\nSeed: %08X\n", r.Seed); err != nil {
		return err
	}
	if err := writeWordBlock(w, "Key material", r.KeyMaterial[:]); err != nil {
		return err
	}
	return writeWordBlock(w, "Ciphertext", r.Ciphertext[:])
}

func writeWordBlock(w io.Writer, label string, b []byte) error {
	if _, err := fmt.Fprintf(w, "\n%s:\n", label); err != nil {
		return err
	}
	for line := 0; line < len(b)/32; line++ {
		for col := 0; col < 8; col++ {
			word := binary.LittleEndian.Uint32(b[line*32+col*4:])
			if _, err := fmt.Fprintf(w, " %08X", word); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}
