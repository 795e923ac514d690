package sbootseed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// parseHexArg validates a bare hex command argument. Anything the
// bootloader documentation would not print, a sign, a 0x prefix, stray
// characters, too many digits, is rejected outright rather than clamped.
func parseHexArg(s string, maxDigits int) (uint64, error) {
	switch {
	case s == "":
		return 0, errors.New("empty")
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		return 0, errors.New("must not carry a 0x prefix")
	case len(s) > maxDigits:
		return 0, fmt.Errorf("more than %d hex digits", maxDigits)
	}

	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errors.New("not valid hex")
	}
	return v, nil
}

// ParseSeed interprets s as a start seed: one to eight bare hex digits.
func ParseSeed(s string) (uint32, error) {
	v, err := parseHexArg(s, 8)
	if err != nil {
		return 0, fmt.Errorf("sbootseed: start seed %q: %w", s, err)
	}
	return uint32(v), nil
}

// ParseTargetPrefix interprets s as the leaked ciphertext prefix, the
// first eight ciphertext bytes read little-endian: one to sixteen bare hex
// digits.
func ParseTargetPrefix(s string) (uint64, error) {
	v, err := parseHexArg(s, 16)
	if err != nil {
		return 0, fmt.Errorf("sbootseed: target prefix %q: %w", s, err)
	}
	return v, nil
}
