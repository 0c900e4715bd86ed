package curate

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// RunAll executes the requests with at most parallel runs in flight. Each
// run owns its own state. The first failure cancels the runs still in
// flight; results are returned in request order, nil for runs that never
// started.
func (r *Runner) RunAll(ctx context.Context, reqs []Request, parallel int) ([]*Result, error) {
	if parallel <= 0 {
		parallel = 1
	}

	results := make([]*Result, len(reqs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.Run(gctx, req)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("table %s: %w", tableName(req), err)
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

func tableName(req Request) string {
	if req.Table == nil {
		return "<none>"
	}
	return req.Table.Name
}
