package syncer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RunOutcome pairs one request of a multi-table run with its result.
type RunOutcome struct {
	Request Request
	Result  *Result
	Err     error
}

// RunMany executes independent sync jobs concurrently, at most limit at a
// time (limit <= 0 runs them all at once). Jobs are independent by
// construction: requests sharing a cursor key are rejected up front, because
// correctness depends on a single moving cursor per key. One failing job
// does not cancel the others; each outcome carries its own error.
func (e *Engine) RunMany(ctx context.Context, reqs []Request, limit int) []RunOutcome {
	outcomes := make([]RunOutcome, len(reqs))

	seen := make(map[CursorKey]int, len(reqs))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, req := range reqs {
		i, req := i, req
		outcomes[i].Request = req
		key := req.Key()
		if first, dup := seen[key]; dup {
			outcomes[i].Err = fmt.Errorf("duplicate cursor key %s (already requested at index %d)", key, first)
			continue
		}
		seen[key] = i

		g.Go(func() error {
			res, err := e.Run(ctx, req)
			outcomes[i].Result = res
			outcomes[i].Err = err
			return nil
		})
	}

	_ = g.Wait()
	return outcomes
}
