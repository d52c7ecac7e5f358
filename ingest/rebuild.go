package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/sales-engine/columnar"
)

// Result is the single message produced by one Rebuild run.
type Result struct {
	Store *columnar.Store
	Err   error
	Took  time.Duration
}

// Rebuild normalizes the raw rows into a fresh columnar store on its own
// goroutine. Datasets are replaced wholesale: the caller swaps the new
// store in only after receiving a successful Result, so a failed rebuild
// leaves the previous dataset untouched.
func Rebuild(ctx context.Context, log zerolog.Logger, sales, clients []columnar.RawRow) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		start := time.Now()
		store, err := columnar.Build(sales, clients)
		took := time.Since(start)
		if err != nil {
			log.Error().Err(err).Dur("took", took).Msg("rebuild failed")
		} else {
			log.Info().
				Int("records", len(store.Records)).
				Int("clients", len(store.Clients)).
				Int("dropped", store.DroppedRows).
				Dur("took", took).
				Msg("rebuild complete")
		}
		select {
		case out <- Result{Store: store, Err: err, Took: took}:
		case <-ctx.Done():
		}
	}()
	return out
}
