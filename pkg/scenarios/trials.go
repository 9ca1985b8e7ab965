package scenarios

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// TrialFunc runs one trial and returns its observed output
type TrialFunc func(ctx context.Context, trial int) (string, error)

// Trials runs fn n times with at most limit trials in flight and returns
// each trial's output indexed by trial number. A non-positive limit means
// no limit. The first failing trial cancels the rest.
//
// Trials run in the same process, so fn must reap only the children it
// launched: WaitFor is safe, WaitAny is not.
func Trials(ctx context.Context, n, limit int, fn TrialFunc) ([]string, error) {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	outputs := make([]string, n)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := fn(gctx, i)
			if err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}
			outputs[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outputs, err
	}
	return outputs, nil
}
