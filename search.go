// Package sbootseed recovers the per-boot generator seed of the supplier
// secure bootloader.
//
// On every boot the bootloader seeds a Mersenne Twister variant, draws a
// 256-byte key-material block from it and encrypts the block with a
// 2048-bit RSA public key. Given the first eight bytes of one observed
// ciphertext, the seed falls to exhaustive search: regenerate the block for
// each candidate seed, encrypt it under the same key, and compare prefixes.
// Seeds are folded odd, so the full space is 2^31 trials.
//
// Example usage:
//
//	result, err := sbootseed.Search(ctx, sbootseed.Config{
//	    Key:    sbootseed.SupplierKey(),
//	    Target: 0xb9d4877ab1e3caa4,
//	    Start:  0x40000000,
//	})
//	if errors.Is(err, sbootseed.ErrExhausted) {
//	    // no seed in the range produces the prefix
//	}
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("seed %08X\n", result.Seed)
package sbootseed

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// FullSeedSpace is the number of distinct generator streams. Seeds are
// folded odd, so 2^31 trials at stride two cover every stream exactly once.
const FullSeedSpace = 1 << 31

// ErrExhausted reports that every seed in the configured range was tried
// and none produced the target ciphertext prefix.
var ErrExhausted = errors.New("sbootseed: seed range exhausted without a match")

// Config specifies a recovery run.
type Config struct {
	// Key is the public key candidate blocks are encrypted under.
	// Must be a valid Oracle key.
	Key PublicKey

	// Target is the leaked ciphertext prefix: its first eight bytes
	// interpreted as a little-endian integer.
	Target uint64

	// Start is the first seed to try. It is folded odd, the same folding
	// the bootloader applies to its own seeds.
	Start uint32

	// Count is the number of seeds to try, stepping by two from Start.
	// Zero means the full space of FullSeedSpace trials.
	Count uint64

	// Workers is the number of concurrent search workers.
	// Zero means runtime.NumCPU().
	Workers int
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Key.N == nil || c.Key.E == nil {
		return errors.New("sbootseed: config must carry a public key")
	}

	if c.Count > FullSeedSpace {
		return fmt.Errorf("sbootseed: count %d exceeds the %d distinct seeds", c.Count, FullSeedSpace)
	}

	if c.Workers < 0 {
		return fmt.Errorf("sbootseed: invalid worker count %d", c.Workers)
	}

	return nil
}

// Result describes a recovered seed.
type Result struct {
	Seed        uint32      // folded seed that produced the match
	KeyMaterial KeyMaterial // regenerated key-material block
	Ciphertext  Ciphertext  // its encryption under the search key
	Tried       uint64      // trials completed across all workers
}

// Searcher sweeps a seed range with a pool of workers. Each worker owns its
// generator, scratch buffers and Oracle; workers share nothing but atomic
// progress counters, so a found seed stops the others within one trial.
//
// Create a Searcher with NewSearcher and run it once with Run. The progress
// accessors may be called from other goroutines while Run executes.
type Searcher struct {
	cfg    Config
	counts []atomic.Uint64 // per-worker completed trials
}

// NewSearcher validates cfg, applies defaults and returns a Searcher.
func NewSearcher(cfg Config) (*Searcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Reject oracle-level problems before spawning workers.
	if _, err := NewOracle(cfg.Key); err != nil {
		return nil, err
	}

	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Count == 0 {
		cfg.Count = FullSeedSpace
	}

	return &Searcher{
		cfg:    cfg,
		counts: make([]atomic.Uint64, cfg.Workers),
	}, nil
}

// Search builds a Searcher from cfg and runs it to completion.
func Search(ctx context.Context, cfg Config) (*Result, error) {
	s, err := NewSearcher(cfg)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx)
}

// Run executes the sweep. It returns the Result of the first matching seed,
// ErrExhausted when the whole range was tried without a match, or the
// context error when cancelled externally.
func (s *Searcher) Run(ctx context.Context) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		found   atomic.Bool
		results = make(chan *Result, 1)
		errs    = make(chan error, s.cfg.Workers)
	)

	for w := 0; w < s.cfg.Workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.sweep(ctx, w, &found, results); err != nil {
				errs <- err
				cancel()
			}
		}()
	}

	wg.Wait()
	close(results)
	close(errs)

	if r, ok := <-results; ok {
		r.Tried = s.Tried()
		return r, nil
	}
	if err, ok := <-errs; ok {
		return nil, fmt.Errorf("sbootseed: search worker: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrExhausted
}

// sweep is one worker's loop over the trial indices congruent to its id
// modulo the worker count. Stop conditions return nil; only real failures
// return an error.
func (s *Searcher) sweep(ctx context.Context, worker int, found *atomic.Bool, results chan<- *Result) error {
	o, err := NewOracle(s.cfg.Key)
	if err != nil {
		return err
	}

	var (
		tw Twister
		km KeyMaterial
		ct Ciphertext
	)

	stride := uint32(2 * s.cfg.Workers)
	seed := (s.cfg.Start | 1) + 2*uint32(worker)

	for left := workerTrials(s.cfg.Count, worker, s.cfg.Workers); left > 0; left-- {
		if found.Load() || ctx.Err() != nil {
			return nil
		}

		tw.Seed(seed)
		DeriveKeyMaterial(&tw, &km)
		if err := o.Encrypt(&km, &ct); err != nil {
			return err
		}

		if ct.Prefix() == s.cfg.Target {
			s.counts[worker].Add(1)
			if found.CompareAndSwap(false, true) {
				results <- &Result{Seed: seed, KeyMaterial: km, Ciphertext: ct}
			}
			return nil
		}
		s.counts[worker].Add(1)

		seed += stride
	}
	return nil
}

// workerTrials splits count trials across workers rounds-robin: worker w
// takes the trial indices w, w+workers, w+2*workers and so on.
func workerTrials(count uint64, worker, workers int) uint64 {
	if uint64(worker) >= count {
		return 0
	}
	return (count - uint64(worker) + uint64(workers) - 1) / uint64(workers)
}

// Workers returns the resolved worker count.
func (s *Searcher) Workers() int {
	return s.cfg.Workers
}

// Tried returns the total number of completed trials.
func (s *Searcher) Tried() uint64 {
	var sum uint64
	for i := range s.counts {
		sum += s.counts[i].Load()
	}
	return sum
}

// Swept returns the length of the contiguous prefix of the trial sequence
// that is fully adjudicated. A resumed run may safely skip this many trials;
// Tried can run ahead of Swept because workers proceed at different speeds.
func (s *Searcher) Swept() uint64 {
	swept := s.cfg.Count
	for w := range s.counts {
		done := uint64(w) + uint64(s.cfg.Workers)*s.counts[w].Load()
		if done < swept {
			swept = done
		}
	}
	return swept
}
