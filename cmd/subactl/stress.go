package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/suballoc/hwqueue"
	"github.com/joshuapare/suballoc/internal/aperture"
	"github.com/joshuapare/suballoc/suballoc"
)

type stressOptions struct {
	Size       uint64
	Align      uint64
	Workers    int
	Iterations int
	MaxAlloc   uint64
	Queues     int
	Depth      int
	Cost       time.Duration
	Seed       int64
	Backing    bool
	Timeout    time.Duration
}

var stressOpts = stressOptions{
	Size:       1 << 20,
	Align:      256,
	Workers:    8,
	Iterations: 1000,
	MaxAlloc:   64 << 10,
	Queues:     2,
	Depth:      32,
	Seed:       1,
	Timeout:    time.Minute,
}

func init() {
	cmd := newStressCmd()
	f := cmd.Flags()
	f.Uint64Var(&stressOpts.Size, "size", stressOpts.Size, "Managed range size in bytes")
	f.Uint64Var(&stressOpts.Align, "align", stressOpts.Align, "Alignment of every range start")
	f.IntVar(&stressOpts.Workers, "workers", stressOpts.Workers, "Concurrent allocating workers")
	f.IntVar(&stressOpts.Iterations, "iterations", stressOpts.Iterations, "Allocations per worker")
	f.Uint64Var(&stressOpts.MaxAlloc, "max-alloc", stressOpts.MaxAlloc, "Largest single allocation")
	f.IntVar(&stressOpts.Queues, "queues", stressOpts.Queues, "Simulated hardware queues signalling fences")
	f.IntVar(&stressOpts.Depth, "depth", stressOpts.Depth, "Pending jobs per queue")
	f.DurationVar(&stressOpts.Cost, "cost", stressOpts.Cost, "Simulated execution time per job")
	f.Int64Var(&stressOpts.Seed, "seed", stressOpts.Seed, "Random seed")
	f.BoolVar(&stressOpts.Backing, "backing", stressOpts.Backing, "Back the range with mapped memory and touch every allocation")
	f.DurationVar(&stressOpts.Timeout, "timeout", stressOpts.Timeout, "Abort if the run takes longer than this")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stress",
		Short: "Run concurrent allocate/submit/free workers against one manager",
		Long: `The stress command creates one manager and a set of simulated hardware
queues. Each worker allocates a random size, submits a job, and frees the
range with the job's fence, so every free is completed from a queue's
completion goroutine.

Example:
  subactl stress --workers 16 --iterations 5000
  subactl stress --size 65536 --max-alloc 16384 --cost 50us --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runStress(cmd.Context(), stressOpts)
			if err != nil {
				return err
			}
			return printStress(res)
		},
	}
}

// StressResult summarizes a stress run.
type StressResult struct {
	Workers    int            `json:"workers"`
	Iterations int            `json:"iterations"`
	Elapsed    time.Duration  `json:"elapsed_ns"`
	PerSecond  float64        `json:"allocs_per_second"`
	Stats      suballoc.Stats `json:"stats"`
}

func runStress(ctx context.Context, opts stressOptions) (StressResult, error) {
	if opts.Workers < 1 || opts.Queues < 1 || opts.MaxAlloc == 0 {
		return StressResult{}, fmt.Errorf("workers, queues and max-alloc must be positive")
	}
	if opts.MaxAlloc > opts.Size {
		return StressResult{}, fmt.Errorf("max-alloc %d exceeds size %d", opts.MaxAlloc, opts.Size)
	}

	var mopts []suballoc.Option
	mopts = append(mopts, suballoc.WithName("stress"))
	if opts.Backing {
		mem, unmap, err := aperture.Map(int(opts.Size))
		if err != nil {
			return StressResult{}, fmt.Errorf("map backing: %w", err)
		}
		defer unmap()
		mopts = append(mopts, suballoc.WithBacking(mem))
	}

	m, err := suballoc.New(opts.Size, opts.Align, mopts...)
	if err != nil {
		return StressResult{}, err
	}

	queues := make([]*hwqueue.Queue, opts.Queues)
	for i := range queues {
		queues[i] = hwqueue.New(fmt.Sprintf("q%d", i), opts.Depth)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	printVerbose("Stressing %d bytes (align %d) with %d workers x %d iterations on %d queue(s)\n",
		opts.Size, opts.Align, opts.Workers, opts.Iterations, opts.Queues)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := range opts.Workers {
		q := queues[w%len(queues)]
		g.Go(func() error {
			return stressWorker(gctx, m, q, opts, opts.Seed+int64(w))
		})
	}
	runErr := g.Wait()

	for _, q := range queues {
		_ = q.Close()
	}
	m.DrainIdle()
	elapsed := time.Since(start)

	res := StressResult{
		Workers:    opts.Workers,
		Iterations: opts.Iterations,
		Elapsed:    elapsed,
		Stats:      m.Stats(),
	}
	if elapsed > 0 {
		res.PerSecond = float64(res.Stats.Allocs) / elapsed.Seconds()
	}

	if err := m.Close(); err != nil {
		return res, err
	}
	return res, runErr
}

func stressWorker(ctx context.Context, m *suballoc.Manager, q *hwqueue.Queue, opts stressOptions, seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	for i := range opts.Iterations {
		size := uint64(rng.Int63n(int64(opts.MaxAlloc))) + 1
		s, err := m.Alloc(ctx, size, suballoc.Interruptible)
		if err != nil {
			return fmt.Errorf("alloc %d bytes: %w", size, err)
		}

		if buf := s.Bytes(); buf != nil {
			buf[0] = byte(i)
			buf[len(buf)-1] = byte(i)
		}

		f, err := q.Submit(ctx, hwqueue.Job{Name: "stress", Cost: opts.Cost})
		if err != nil {
			m.Free(s, nil)
			return err
		}
		s.Free(f)
		f.Release()
	}
	return nil
}

func printStress(res StressResult) error {
	if jsonOut {
		return printJSON(res)
	}

	st := res.Stats
	printInfo("workers      %d x %d iterations\n", res.Workers, res.Iterations)
	printInfo("elapsed      %v (%.0f allocs/s)\n", res.Elapsed.Round(time.Millisecond), res.PerSecond)
	printInfo("allocs       %d\n", st.Allocs)
	printInfo("reclaimed    %d\n", st.Reclaimed)
	printInfo("waits        %d\n", st.Waits)
	printInfo("deferred     %d (drained %d)\n", st.Deferred, st.Drained)
	printInfo("peak in use  %d bytes\n", st.PeakInUse)
	return nil
}
