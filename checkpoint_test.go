package sbootseed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCheckpoint(t *testing.T) Checkpoint {
	t.Helper()

	return Checkpoint{
		Fingerprint: testKey(t).Fingerprint(),
		Target:      0x56d1dd902312c344,
		Start:       0xdeadbee1,
		Count:       1 << 20,
		Swept:       12345,
	}
}

func TestCheckpointMarshalLayout(t *testing.T) {
	t.Parallel()

	cp := sampleCheckpoint(t)
	b, err := cp.MarshalBinary()
	require.NoError(t, err)

	assert.Len(t, b, checkpointSize)
	assert.Equal(t, []byte("SBCK"), b[:4])
	assert.Equal(t, []byte{0x00, 0x01}, b[4:6])
}

func TestCheckpointRoundTrip(t *testing.T) {
	t.Parallel()

	cp := sampleCheckpoint(t)
	b, err := cp.MarshalBinary()
	require.NoError(t, err)

	var got Checkpoint
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, cp, got)
}

func TestCheckpointUnmarshalErrors(t *testing.T) {
	t.Parallel()

	valid := func(t *testing.T) []byte {
		t.Helper()
		cp := sampleCheckpoint(t)
		b, err := cp.MarshalBinary()
		require.NoError(t, err)
		return b
	}

	tables := []struct {
		name    string
		mangle  func(*testing.T, []byte) []byte
		message string
	}{
		{
			name:    "truncated",
			mangle:  func(_ *testing.T, b []byte) []byte { return b[:100] },
			message: "length",
		},
		{
			name: "bad magic",
			mangle: func(_ *testing.T, b []byte) []byte {
				b[0] = 'X'
				return b
			},
			message: "not a checkpoint",
		},
		{
			name: "future version",
			mangle: func(_ *testing.T, b []byte) []byte {
				b[5] = 2
				return b
			},
			message: "version",
		},
		{
			name: "flipped payload byte",
			mangle: func(_ *testing.T, b []byte) []byte {
				b[40] ^= 0x80
				return b
			},
			message: "digest",
		},
		{
			name: "swept past range",
			mangle: func(t *testing.T, _ []byte) []byte {
				cp := Checkpoint{Count: 4, Swept: 9}
				b, err := cp.MarshalBinary()
				require.NoError(t, err)
				return b
			},
			message: "swept",
		},
	}

	for _, table := range tables {
		table := table
		t.Run(table.name, func(t *testing.T) {
			t.Parallel()

			var cp Checkpoint
			err := cp.UnmarshalBinary(table.mangle(t, valid(t)))
			assert.ErrorContains(t, err, table.message)
		})
	}
}

func TestCheckpointFileRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.ckpt")
	cp := sampleCheckpoint(t)
	require.NoError(t, cp.WriteFile(path))
	assert.NoFileExists(t, path+".tmp")

	got, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, cp, *got)
}

func TestLoadCheckpointErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := LoadCheckpoint(filepath.Join(t.TempDir(), "absent.ckpt"))
		assert.Error(t, err)
	})

	t.Run("not a checkpoint", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "garbage.ckpt")
		require.NoError(t, os.WriteFile(path, make([]byte, checkpointSize), 0o644))

		_, err := LoadCheckpoint(path)
		assert.ErrorContains(t, err, "not a checkpoint")
	})
}

func TestCheckpointMatches(t *testing.T) {
	t.Parallel()

	base := func(t *testing.T) Config {
		t.Helper()
		return Config{
			Key:    testKey(t),
			Target: 0x56d1dd902312c344,
			Start:  0xdeadbee1,
			Count:  1 << 20,
		}
	}

	tables := []struct {
		name string
		cp   func(*testing.T) Checkpoint
		cfg  func(*testing.T) Config
		ok   bool
	}{
		{
			name: "same run",
			cp:   sampleCheckpoint,
			cfg:  base,
			ok:   true,
		},
		{
			name: "even start folds",
			cp:   sampleCheckpoint,
			cfg: func(t *testing.T) Config {
				cfg := base(t)
				cfg.Start = 0xdeadbee0
				return cfg
			},
			ok: true,
		},
		{
			name: "zero count compared as full space",
			cp: func(t *testing.T) Checkpoint {
				cp := sampleCheckpoint(t)
				cp.Count = FullSeedSpace
				return cp
			},
			cfg: func(t *testing.T) Config {
				cfg := base(t)
				cfg.Count = 0
				return cfg
			},
			ok: true,
		},
		{
			name: "different key",
			cp:   sampleCheckpoint,
			cfg: func(t *testing.T) Config {
				cfg := base(t)
				cfg.Key = SupplierKey()
				return cfg
			},
			ok: false,
		},
		{
			name: "different target",
			cp:   sampleCheckpoint,
			cfg: func(t *testing.T) Config {
				cfg := base(t)
				cfg.Target++
				return cfg
			},
			ok: false,
		},
		{
			name: "different start",
			cp:   sampleCheckpoint,
			cfg: func(t *testing.T) Config {
				cfg := base(t)
				cfg.Start += 2
				return cfg
			},
			ok: false,
		},
		{
			name: "different count",
			cp:   sampleCheckpoint,
			cfg: func(t *testing.T) Config {
				cfg := base(t)
				cfg.Count++
				return cfg
			},
			ok: false,
		},
	}

	for _, table := range tables {
		table := table
		t.Run(table.name, func(t *testing.T) {
			t.Parallel()

			cp := table.cp(t)
			err := cp.Matches(table.cfg(t))
			if table.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrCheckpointMismatch)
			}
		})
	}
}

func TestCheckpointResumeArithmetic(t *testing.T) {
	t.Parallel()

	cp := Checkpoint{Start: 0xdeadbedf, Count: 16, Swept: 8}
	assert.Equal(t, uint32(0xdeadbeef), cp.ResumeStart())
	assert.Equal(t, uint64(8), cp.ResumeCount())

	// The seed space is cyclic, so resumption wraps with it.
	wrap := Checkpoint{Start: 0xfffffff1, Count: 32, Swept: 8}
	assert.Equal(t, uint32(0x00000001), wrap.ResumeStart())
}

func TestSearcherCheckpoint(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Key:     testKey(t),
		Target:  0,
		Start:   0xdeadbee0,
		Count:   8,
		Workers: 3,
	}
	s, err := NewSearcher(cfg)
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.ErrorIs(t, err, ErrExhausted)

	cp := s.Checkpoint()
	assert.Equal(t, uint32(0xdeadbee1), cp.Start)
	assert.Equal(t, uint64(8), cp.Count)
	assert.Equal(t, uint64(8), cp.Swept)
	assert.Zero(t, cp.ResumeCount())
	assert.NoError(t, cp.Matches(cfg))
}

// A run interrupted halfway resumes exactly where the checkpoint says and
// still lands on the planted seed.
func TestCheckpointResumeFindsSeed(t *testing.T) {
	t.Parallel()

	cp := Checkpoint{
		Fingerprint: testKey(t).Fingerprint(),
		Target:      testKeyBeefPrefix,
		Start:       0xdeadbedf,
		Count:       16,
		Swept:       8,
	}

	r, err := Search(context.Background(), Config{
		Key:     testKey(t),
		Target:  cp.Target,
		Start:   cp.ResumeStart(),
		Count:   cp.ResumeCount(),
		Workers: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), r.Seed)
}
