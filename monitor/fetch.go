package monitor

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/okatz/steamwatch/telemetry"
)

// fetchAll retrieves the current status for every account id, batchSize
// accounts at a time. Fetches within a batch run concurrently; batches run
// sequentially, so total concurrency is bounded by the batch size rather
// than the account count. Accounts that fail to fetch are absent from the
// result and logged; a single failure never aborts the phase.
func fetchAll(ctx context.Context, src StatusSource, ids []string, batchSize int) map[string]AccountStatus {
	if batchSize <= 0 {
		batchSize = 5
	}
	out := make(map[string]AccountStatus, len(ids))
	var mu sync.Mutex
	for start := 0; start < len(ids); start += batchSize {
		if ctx.Err() != nil {
			return out
		}
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, id := range ids[start:end] {
			g.Go(func() error {
				st, err := src.FetchStatus(gctx, id)
				if err != nil {
					telemetry.FetchErrors.Inc()
					slog.Warn("status fetch failed; skipping account this cycle",
						slog.String("account", id), slog.Any("err", err), slog.String("component", "watch"))
					return nil
				}
				mu.Lock()
				out[id] = st
				mu.Unlock()
				return nil
			})
		}
		// Workers always return nil; Wait is a barrier so results merge
		// only after the whole batch settled.
		_ = g.Wait()
	}
	return out
}
