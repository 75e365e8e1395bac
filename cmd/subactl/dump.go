package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/suballoc/hwqueue"
	"github.com/joshuapare/suballoc/suballoc"
)

type dumpOptions struct {
	Size  uint64
	Align uint64
	Base  uint64
	Count int
	Seed  int64
}

var dumpOpts = dumpOptions{
	Size:  1 << 16,
	Align: 64,
	Count: 8,
	Seed:  1,
}

func init() {
	cmd := newDumpCmd()
	f := cmd.Flags()
	f.Uint64Var(&dumpOpts.Size, "size", dumpOpts.Size, "Managed range size in bytes")
	f.Uint64Var(&dumpOpts.Align, "align", dumpOpts.Align, "Alignment of every range start")
	f.Uint64Var(&dumpOpts.Base, "base", dumpOpts.Base, "Offset added to every reported address")
	f.IntVar(&dumpOpts.Count, "count", dumpOpts.Count, "Number of ranges to allocate")
	f.Int64Var(&dumpOpts.Seed, "seed", dumpOpts.Seed, "Random seed")
	rootCmd.AddCommand(cmd)
}

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the allocation state of a manager with pending fences",
		Long: `The dump command allocates a set of random ranges, frees every other one
with a fence that has not signaled yet, and prints the manager state. Ranges
waiting on a fence show the fence as context#seqno.

Example:
  subactl dump --count 16 --base 0x100000
  subactl dump --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := runDump(cmd.Context(), dumpOpts)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(rep)
			}
			if !quiet {
				_, err = rep.WriteTo(os.Stdout)
			}
			return err
		},
	}
}

func runDump(ctx context.Context, opts dumpOptions) (rep suballoc.Report, err error) {
	if opts.Count < 1 {
		return suballoc.Report{}, fmt.Errorf("count must be positive")
	}
	maxAlloc := opts.Size / uint64(opts.Count) / 2
	if maxAlloc == 0 {
		return suballoc.Report{}, fmt.Errorf("size %d too small for %d ranges", opts.Size, opts.Count)
	}

	m, err := suballoc.New(opts.Size, opts.Align, suballoc.WithName("dump"))
	if err != nil {
		return suballoc.Report{}, err
	}
	var held []*suballoc.Suballocation
	defer func() {
		for _, s := range held {
			s.Free(nil)
		}
		if cerr := m.Close(); err == nil {
			err = cerr
		}
	}()

	// Hold the queue so every submitted fence stays pending while we dump.
	// Runs before the deferred frees above, so fenced ranges are reclaimed
	// by the time the manager closes.
	gate := make(chan struct{})
	q := hwqueue.New("dump", opts.Count+1)
	defer func() {
		close(gate)
		_ = q.Close()
	}()

	gf, err := q.Submit(ctx, hwqueue.Job{Name: "gate", Run: func() error { <-gate; return nil }})
	if err != nil {
		return suballoc.Report{}, err
	}
	gf.Release()

	rng := rand.New(rand.NewSource(opts.Seed))
	for i := range opts.Count {
		s, err := m.TryAlloc(uint64(rng.Int63n(int64(maxAlloc))) + 1)
		if err != nil {
			return suballoc.Report{}, fmt.Errorf("range %d: %w", i, err)
		}
		if i%2 == 0 {
			held = append(held, s)
			continue
		}
		f, err := q.Submit(ctx, hwqueue.Job{Name: fmt.Sprintf("job%d", i)})
		if err != nil {
			s.Free(nil)
			return suballoc.Report{}, err
		}
		s.Free(f)
		f.Release()
	}

	printVerbose("Allocated %d ranges, %d pending on fences\n", opts.Count, opts.Count-len(held))
	return m.Snapshot(opts.Base), nil
}
