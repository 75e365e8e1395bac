package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/suballoc/hwqueue"
	"github.com/joshuapare/suballoc/suballoc"
)

var (
	watchOpts = stressOptions{
		Size:     1 << 16,
		Align:    256,
		Workers:  4,
		MaxAlloc: 8 << 10,
		Queues:   2,
		Depth:    16,
		Cost:     2 * time.Millisecond,
		Seed:     1,
	}
	watchInterval time.Duration
)

func init() {
	cmd := newWatchCmd()
	f := cmd.Flags()
	f.Uint64Var(&watchOpts.Size, "size", watchOpts.Size, "Managed range size in bytes")
	f.Uint64Var(&watchOpts.Align, "align", watchOpts.Align, "Alignment of every range start")
	f.IntVar(&watchOpts.Workers, "workers", watchOpts.Workers, "Concurrent allocating workers")
	f.Uint64Var(&watchOpts.MaxAlloc, "max-alloc", watchOpts.MaxAlloc, "Largest single allocation")
	f.IntVar(&watchOpts.Queues, "queues", watchOpts.Queues, "Simulated hardware queues signalling fences")
	f.IntVar(&watchOpts.Depth, "depth", watchOpts.Depth, "Pending jobs per queue")
	f.DurationVar(&watchOpts.Cost, "cost", watchOpts.Cost, "Simulated execution time per job")
	f.DurationVar(&watchInterval, "interval", 100*time.Millisecond, "Screen refresh interval")
	rootCmd.AddCommand(cmd)
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show a live view of a manager under load",
		Long: `The watch command runs the stress workload without an iteration limit
and shows the manager's range map, counters and allocated ranges, refreshed
until you quit.

Example:
  subactl watch
  subactl watch --size 1048576 --workers 16 --cost 500us`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), watchOpts, watchInterval)
		},
	}
}

func runWatch(ctx context.Context, opts stressOptions, interval time.Duration) error {
	if opts.Workers < 1 || opts.Queues < 1 || opts.MaxAlloc == 0 || opts.MaxAlloc > opts.Size {
		return fmt.Errorf("invalid workload: workers %d, queues %d, max-alloc %d, size %d",
			opts.Workers, opts.Queues, opts.MaxAlloc, opts.Size)
	}
	opts.Iterations = math.MaxInt

	m, err := suballoc.New(opts.Size, opts.Align,
		suballoc.WithName("watch"), suballoc.WithBackgroundReclaim(interval))
	if err != nil {
		return err
	}

	queues := make([]*hwqueue.Queue, opts.Queues)
	for i := range queues {
		queues[i] = hwqueue.New(fmt.Sprintf("q%d", i), opts.Depth)
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for w := range opts.Workers {
		q := queues[w%len(queues)]
		g.Go(func() error {
			err := stressWorker(gctx, m, q, opts, opts.Seed+int64(w))
			if errors.Is(err, suballoc.ErrInterrupted) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	_, uiErr := tea.NewProgram(newWatchModel(m, interval), tea.WithAltScreen()).Run()

	cancel()
	workErr := g.Wait()
	for _, q := range queues {
		_ = q.Close()
	}
	if err := m.Close(); err != nil {
		return err
	}
	return errors.Join(uiErr, workErr)
}
