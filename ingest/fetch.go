/*
fetch.go - bounded-concurrency paged ingestion

PROTOCOL:
  Pages are requested in parallel (bounded by a weighted semaphore) and
  reassembled strictly in page order through a reorder buffer, so the
  caller sees rows exactly as a sequential fetch would produce them. The
  final page is detected by a short read. A page that still fails after
  all retry attempts stops the run: no further pages are requested and
  the partial result is discarded.

RETRY:
  Per page, up to MaxAttempts tries with exponential backoff starting at
  BaseDelay (1s, 2s, 4s, ...). Backoff honors context cancellation.
*/
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/warp/sales-engine/columnar"
)

const (
	DefaultPageSize    = 20000
	DefaultConcurrency = 4
	DefaultMaxAttempts = 4
	DefaultBaseDelay   = time.Second
)

// PageFunc fetches one zero-based page of at most pageSize rows.
type PageFunc func(ctx context.Context, page, pageSize int) ([]columnar.RawRow, error)

// Pager drives a full paged fetch. Zero fields take the defaults above.
type Pager struct {
	PageSize    int
	Concurrency int64
	MaxAttempts int
	BaseDelay   time.Duration
	Log         zerolog.Logger
}

type pageResult struct {
	page int
	rows []columnar.RawRow
	err  error
}

// FetchAll retrieves every page and returns the rows in page order.
func (p *Pager) FetchAll(ctx context.Context, fetch PageFunc) ([]columnar.RawRow, error) {
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runID := uuid.NewString()
	log := p.Log.With().Str("run", runID).Logger()
	start := time.Now()

	sem := semaphore.NewWeighted(concurrency)
	results := make(chan pageResult)
	stop := make(chan struct{})
	dispatched := make(chan struct{})
	var stopOnce sync.Once
	var wg sync.WaitGroup

	// Dispatcher: keeps requesting the next page until the last page is
	// known or the run fails. Every wg.Add happens before dispatched
	// closes, so the closer below cannot observe a transient zero counter.
	go func() {
		defer close(dispatched)
		for page := 0; ; page++ {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			default:
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			wg.Add(1)
			go func(page int) {
				defer wg.Done()
				defer sem.Release(1)
				rows, err := p.fetchWithRetry(ctx, log, fetch, page, pageSize)
				select {
				case results <- pageResult{page: page, rows: rows, err: err}:
				case <-ctx.Done():
				}
			}(page)
		}
	}()
	go func() {
		<-dispatched
		wg.Wait()
		close(results)
	}()

	var (
		out      []columnar.RawRow
		buffer   = make(map[int][]columnar.RawRow)
		next     = 0
		lastPage = -1
		firstErr error
	)

	for res := range results {
		if res.err != nil {
			// Overshoot pages past the known end fail once the run is
			// cancelled; those failures are not the run's outcome.
			if lastPage >= 0 && res.page > lastPage {
				continue
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("page %d: %w", res.page, res.err)
			}
			stopOnce.Do(func() { close(stop) })
			cancel()
			continue
		}
		if len(res.rows) < pageSize && (lastPage == -1 || res.page < lastPage) {
			lastPage = res.page
			stopOnce.Do(func() { close(stop) })
		}
		buffer[res.page] = res.rows

		for rows, ok := buffer[next]; ok; rows, ok = buffer[next] {
			delete(buffer, next)
			out = append(out, rows...)
			next++
		}
		if lastPage >= 0 && next > lastPage {
			stopOnce.Do(func() { close(stop) })
			cancel()
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil && (lastPage < 0 || next <= lastPage) {
		return nil, err
	}
	log.Info().Int("rows", len(out)).Int("pages", next).Dur("took", time.Since(start)).Msg("fetch complete")
	return out, nil
}

func (p *Pager) fetchWithRetry(ctx context.Context, log zerolog.Logger, fetch PageFunc, page, pageSize int) ([]columnar.RawRow, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = DefaultBaseDelay
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		rows, err := fetch(ctx, page, pageSize)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == attempts {
			break
		}
		log.Warn().Int("page", page).Int("attempt", attempt).Err(err).Msg("page fetch failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
