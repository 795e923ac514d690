package sbootseed

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bodgit/plumbing"
	"golang.org/x/crypto/blake2b"
)

const (
	checkpointVersion      = 1
	checkpointReservedSize = 24
	checkpointSize         = 128
)

var checkpointMagic = [4]byte{'S', 'B', 'C', 'K'}

var (
	errCheckpointLength  = errors.New("wrong checkpoint length")
	errCheckpointMagic   = errors.New("not a checkpoint file")
	errCheckpointVersion = errors.New("unsupported checkpoint version")
	errCheckpointDigest  = errors.New("bad checkpoint digest")
	errCheckpointRange   = errors.New("checkpoint swept past its range")
)

// ErrCheckpointMismatch reports a checkpoint that is intact but was written
// by a run with different parameters.
var ErrCheckpointMismatch = errors.New("sbootseed: checkpoint belongs to a different run")

// checkpointHeader is the fixed on-disk layout ahead of the reserved
// region and the digest. All fields are big-endian.
type checkpointHeader struct {
	Magic       [4]byte
	Version     uint16
	_           uint16
	Fingerprint [32]byte
	Target      uint64
	Start       uint32
	_           uint32
	Count       uint64
	Swept       uint64
}

// Checkpoint records how far a run has swept, bound to the exact run
// parameters so a stale file cannot steer a different search.
type Checkpoint struct {
	Fingerprint [32]byte // fingerprint of the key the run used
	Target      uint64   // ciphertext prefix searched for
	Start       uint32   // folded start seed
	Count       uint64   // planned trials
	Swept       uint64   // contiguous trials already adjudicated
}

// Checkpoint snapshots the run's progress for later resumption.
func (s *Searcher) Checkpoint() Checkpoint {
	return Checkpoint{
		Fingerprint: s.cfg.Key.Fingerprint(),
		Target:      s.cfg.Target,
		Start:       s.cfg.Start | 1,
		Count:       s.cfg.Count,
		Swept:       s.Swept(),
	}
}

// MarshalBinary encodes the checkpoint as a 128-byte record: header,
// zeroed reserved region, then a BLAKE2b-256 digest of everything before
// it.
func (c *Checkpoint) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(checkpointSize)

	h := checkpointHeader{
		Magic:       checkpointMagic,
		Version:     checkpointVersion,
		Fingerprint: c.Fingerprint,
		Target:      c.Target,
		Start:       c.Start,
		Count:       c.Count,
		Swept:       c.Swept,
	}
	_ = binary.Write(buf, binary.BigEndian, h)
	_, _ = io.CopyN(buf, plumbing.FillReader(0), checkpointReservedSize)

	digest := blake2b.Sum256(buf.Bytes())
	_, _ = buf.Write(digest[:])

	return buf.Bytes(), nil
}

// UnmarshalBinary decodes and verifies a checkpoint record.
func (c *Checkpoint) UnmarshalBinary(b []byte) error {
	if len(b) != checkpointSize {
		return errCheckpointLength
	}

	body, stored := b[:checkpointSize-blake2b.Size256], b[checkpointSize-blake2b.Size256:]

	var h checkpointHeader
	_ = binary.Read(bytes.NewReader(body), binary.BigEndian, &h)

	if h.Magic != checkpointMagic {
		return errCheckpointMagic
	}
	if h.Version != checkpointVersion {
		return fmt.Errorf("%w: %d", errCheckpointVersion, h.Version)
	}
	if digest := blake2b.Sum256(body); !bytes.Equal(digest[:], stored) {
		return errCheckpointDigest
	}
	if h.Swept > h.Count {
		return errCheckpointRange
	}

	c.Fingerprint = h.Fingerprint
	c.Target = h.Target
	c.Start = h.Start
	c.Count = h.Count
	c.Swept = h.Swept
	return nil
}

// WriteFile atomically replaces path with the encoded checkpoint, going
// through a temporary file and a rename.
func (c *Checkpoint) WriteFile(path string) error {
	b, err := c.MarshalBinary()
	if err != nil {
		return fmt.Errorf("sbootseed: encode checkpoint: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("sbootseed: write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("sbootseed: write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads and verifies the checkpoint at path.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sbootseed: load checkpoint: %w", err)
	}

	c := new(Checkpoint)
	if err := c.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("sbootseed: load checkpoint %s: %w", path, err)
	}
	return c, nil
}

// Matches reports whether the checkpoint belongs to the run cfg describes.
// A zero cfg.Count is compared as the full seed space, mirroring the
// searcher's defaulting.
func (c *Checkpoint) Matches(cfg Config) error {
	count := cfg.Count
	if count == 0 {
		count = FullSeedSpace
	}

	switch {
	case c.Fingerprint != cfg.Key.Fingerprint():
		return fmt.Errorf("%w: key fingerprint differs", ErrCheckpointMismatch)
	case c.Target != cfg.Target:
		return fmt.Errorf("%w: target prefix differs", ErrCheckpointMismatch)
	case c.Start != cfg.Start|1:
		return fmt.Errorf("%w: start seed differs", ErrCheckpointMismatch)
	case c.Count != count:
		return fmt.Errorf("%w: trial count differs", ErrCheckpointMismatch)
	}
	return nil
}

// ResumeStart returns the seed a resumed run continues from. The addition
// wraps with the seed space.
func (c *Checkpoint) ResumeStart() uint32 {
	return c.Start + uint32(2*c.Swept)
}

// ResumeCount returns the number of trials a resumed run still has to do.
func (c *Checkpoint) ResumeCount() uint64 {
	return c.Count - c.Swept
}
