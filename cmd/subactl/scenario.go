package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/suballoc/hwqueue"
	"github.com/joshuapare/suballoc/suballoc"
)

func init() {
	rootCmd.AddCommand(newScenarioCmd())
}

func newScenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenario",
		Short: "Replay the blocked allocation scenario",
		Long: `The scenario command replays the basic blocking case on a 1000 byte
range: A takes 600 bytes, B asks for 500 and blocks, A is freed with a fence
from a hardware queue, and B wakes up and is placed at offset 0.

Example:
  subactl scenario
  subactl scenario --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runScenario(cmd.Context(), os.Stdout)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(res)
			}
			return nil
		},
	}
}

// ScenarioResult records the states the scenario passed through.
type ScenarioResult struct {
	Blocked suballoc.Report `json:"blocked"`
	Final   suballoc.Report `json:"final"`
	BOffset uint64          `json:"b_offset"`
}

func runScenario(ctx context.Context, w io.Writer) (ScenarioResult, error) {
	var res ScenarioResult
	if jsonOut || quiet {
		w = io.Discard
	}

	m, err := suballoc.New(1000, 1, suballoc.WithName("scenario"))
	if err != nil {
		return res, err
	}
	q := hwqueue.New("scenario", 1)
	defer q.Close()

	a, err := m.Alloc(ctx, 600, suballoc.Uninterruptible)
	if err != nil {
		return res, err
	}
	fmt.Fprintf(w, "A allocated %s\n", a)

	type result struct {
		s   *suballoc.Suballocation
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := m.Alloc(ctx, 500, suballoc.Uninterruptible)
		done <- result{s, err}
	}()

	for m.Waiters() == 0 {
		time.Sleep(time.Millisecond)
	}
	res.Blocked = m.Snapshot(0)
	fmt.Fprintln(w, "B waiting for 500 bytes")
	if _, err := res.Blocked.WriteTo(w); err != nil {
		return res, err
	}

	f, err := q.Submit(ctx, hwqueue.Job{Name: "A", Cost: time.Millisecond})
	if err != nil {
		return res, err
	}
	a.Free(f)
	f.Release()
	fmt.Fprintf(w, "A freed with fence %s\n", f)

	r := <-done
	if r.err != nil {
		return res, r.err
	}
	res.BOffset = r.s.Offset()
	res.Final = m.Snapshot(0)
	fmt.Fprintf(w, "B allocated %s\n", r.s)
	if _, err := res.Final.WriteTo(w); err != nil {
		return res, err
	}

	m.Free(r.s, nil)
	return res, m.Close()
}
