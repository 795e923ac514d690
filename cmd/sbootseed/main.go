// Command sbootseed recovers the per-boot generator seed of the supplier
// bootloader from a leaked ciphertext prefix.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	sbootseed "github.com/sbootre/go-sbootseed"
)

const version = "1.0.0"

type options struct {
	workers    int
	count      uint64
	modulus    string
	exponent   uint64
	checkpoint string
	interval   time.Duration
	quiet      bool
	version    bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) int {
	logger := log.New()
	logger.SetOutput(stderr)

	var opts options
	fs := flag.NewFlagSet("sbootseed", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&opts.workers, "workers", 0, "parallel workers (0 = all CPUs)")
	fs.Uint64Var(&opts.count, "count", 0, "seeds to try, stepping by two (0 = full space)")
	fs.StringVar(&opts.modulus, "modulus", "", "hex RSA modulus overriding the built-in supplier key")
	fs.Uint64Var(&opts.exponent, "exponent", 65537, "RSA public exponent")
	fs.StringVar(&opts.checkpoint, "checkpoint", "", "progress file for resumable runs")
	fs.DurationVar(&opts.interval, "interval", 30*time.Second, "progress log and checkpoint cadence")
	fs.BoolVar(&opts.quiet, "quiet", false, "log warnings and errors only")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: sbootseed [flags] <start-seed-hex> <target-prefix-hex>

Sweeps bootloader seeds from the start seed until the derived key material
encrypts to the target prefix: the first eight ciphertext bytes read
little-endian, given as bare hex. Seeds step by two because the bootloader
folds them odd.

Exit codes: 0 seed found, 1 range exhausted, 2 bad usage, 3 interrupted or
failed.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if opts.version {
		fmt.Fprintf(stdout, "sbootseed version %s\n", version)
		return 0
	}

	if opts.quiet {
		logger.SetLevel(log.WarnLevel)
	}

	if fs.NArg() != 2 {
		fmt.Fprintln(stderr, "sbootseed: need exactly a start seed and a target prefix")
		fs.Usage()
		return 2
	}

	start, err := sbootseed.ParseSeed(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	target, err := sbootseed.ParseTargetPrefix(fs.Arg(1))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	key := sbootseed.SupplierKey()
	if opts.modulus != "" {
		if key, err = sbootseed.ParseKey(opts.modulus, opts.exponent); err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
	} else if opts.exponent != 65537 {
		key.E = new(big.Int).SetUint64(opts.exponent)
	}

	if opts.interval <= 0 {
		fmt.Fprintln(stderr, "sbootseed: interval must be positive")
		return 2
	}

	cfg := sbootseed.Config{
		Key:     key,
		Target:  target,
		Start:   start,
		Count:   opts.count,
		Workers: opts.workers,
	}

	// base always describes the whole run; a resumed process sweeps only
	// the tail but keeps writing whole-run checkpoints.
	var base *sbootseed.Checkpoint
	if opts.checkpoint != "" {
		cp, err := sbootseed.LoadCheckpoint(opts.checkpoint)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			fmt.Fprintln(stderr, err)
			return 2
		default:
			if err := cp.Matches(cfg); err != nil {
				fmt.Fprintln(stderr, err)
				return 2
			}
			base = cp
		}
	}

	effective := cfg
	if base != nil {
		if base.ResumeCount() == 0 {
			logger.Info("checkpoint already covers the whole range")
			return 1
		}
		effective.Start = base.ResumeStart()
		effective.Count = base.ResumeCount()
		logger.WithField("swept", base.Swept).Info("resuming from checkpoint")
	}

	s, err := sbootseed.NewSearcher(effective)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if base == nil {
		snap := s.Checkpoint()
		base = &snap
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fp := key.Fingerprint()
	logger.WithFields(log.Fields{
		"key":     hex.EncodeToString(fp[:8]),
		"target":  fmt.Sprintf("%016X", target),
		"start":   fmt.Sprintf("%08X", effective.Start|1),
		"trials":  base.Count - base.Swept,
		"workers": s.Workers(),
	}).Info("starting sweep")

	flush := func() {
		if opts.checkpoint == "" {
			return
		}
		cur := *base
		cur.Swept = base.Swept + s.Swept()
		if err := cur.WriteFile(opts.checkpoint); err != nil {
			logger.WithError(err).Warn("checkpoint write failed")
		}
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		progressLoop(logger, s, base, opts.interval, flush, stop)
	}()

	result, err := s.Run(ctx)
	close(stop)
	wg.Wait()
	if err != nil {
		flush()
	}

	switch {
	case err == nil:
		logger.WithFields(log.Fields{
			"seed":  fmt.Sprintf("%08X", result.Seed),
			"tried": result.Tried,
		}).Info("seed recovered")
		if opts.checkpoint != "" {
			_ = os.Remove(opts.checkpoint)
		}
		if err := result.WriteReport(stdout); err != nil {
			fmt.Fprintln(stderr, err)
			return 3
		}
		return 0
	case errors.Is(err, sbootseed.ErrExhausted):
		logger.WithField("tried", s.Tried()).Info("seed range exhausted without a match")
		return 1
	case errors.Is(err, context.Canceled):
		logger.Warn("interrupted")
		return 3
	default:
		logger.WithError(err).Error("search failed")
		return 3
	}
}

// progressLoop logs sweep rate and completion and flushes the checkpoint
// at every tick until stop closes.
func progressLoop(logger *log.Logger, s *sbootseed.Searcher, base *sbootseed.Checkpoint, interval time.Duration, flush func(), stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastTried := uint64(0)
	lastTime := time.Now()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			tried := s.Tried()
			now := time.Now()
			rate := float64(tried-lastTried) / now.Sub(lastTime).Seconds()
			lastTried, lastTime = tried, now

			done := base.Swept + tried
			fields := log.Fields{
				"tried": tried,
				"rate":  fmt.Sprintf("%.0f/s", rate),
				"done":  fmt.Sprintf("%.3f%%", 100*float64(done)/float64(base.Count)),
			}
			if rate > 0 {
				left := float64(base.Count-done) / rate
				fields["eta"] = time.Duration(left * float64(time.Second)).Round(time.Second).String()
			}
			logger.WithFields(fields).Info("sweeping")
			flush()
		}
	}
}
