package extract

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/jaffleworks/shop-etl/pkg/source"
)

// Prometheus metrics for the extraction engine.
var (
	extractBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopetl_extract_batches_total",
		Help: "Completed page batches by endpoint",
	}, []string{"endpoint"})

	extractRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopetl_extract_records_total",
		Help: "Records accepted into chunks by endpoint",
	}, []string{"endpoint"})

	extractChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopetl_extract_chunks_total",
		Help: "Chunks emitted by endpoint",
	}, []string{"endpoint"})

	extractEmptyRunStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopetl_extract_empty_run_stops_total",
		Help: "Extractions stopped by the empty-batch heuristic, by endpoint",
	}, []string{"endpoint"})
)

// Fetcher fetches one page of one endpoint.
//
// Implementations must absorb failures: a returned error means the page
// contributed nothing, has already been logged, and must be treated
// exactly like a zero-record page for scheduling purposes. The error
// only feeds run statistics, so an outage-driven empty run stays
// distinguishable from genuinely reaching the end of the data.
type Fetcher interface {
	FetchPage(ctx context.Context, ep source.Endpoint, page int) ([]source.Record, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, ep source.Endpoint, page int) ([]source.Record, error)

// FetchPage implements Fetcher.
func (f FetcherFunc) FetchPage(ctx context.Context, ep source.Endpoint, page int) ([]source.Record, error) {
	return f(ctx, ep, page)
}

// BatchObserver is notified after every joined batch with the highest
// page number completed so far. Used to persist resume checkpoints.
type BatchObserver func(endpoint string, lastCompletedPage int)

// Stats summarizes one extraction run.
type Stats struct {
	// PagesScheduled is the number of pages submitted to the pool.
	PagesScheduled int

	// PagesFetched is the number of pages that completed without error
	// (including genuinely empty pages).
	PagesFetched int

	// PagesFailed is the number of absorbed fetch failures. A run that
	// ends with zero records but PagesFailed > 0 likely hit an outage
	// rather than the end of the data.
	PagesFailed int

	// PagesCancelled is the number of pages skipped or aborted because
	// the run's context was cancelled. Cancelled pages are not absorbed
	// failures: the interrupted batch does not count as completed and
	// the run returns the context error.
	PagesCancelled int

	// Records is the total record count accepted into chunks.
	Records int

	// Chunks is the number of chunks emitted, including the final
	// short chunk.
	Chunks int

	// NextPage is the page an incremental re-invocation should start
	// from: one past the last completed batch.
	NextPage int

	// EndOfData is true when the run stopped via the empty-batch
	// heuristic rather than by exhausting MaxPages.
	EndOfData bool
}

// pageResult is the outcome of one page fetch inside a batch.
type pageResult struct {
	page    int
	records []source.Record
	err     error
}

// scheduler drives pagination for a single run: it partitions the page
// range into batches, dispatches each batch to the pool, and joins on
// the whole batch before consulting the tracker or advancing.
type scheduler struct {
	fetcher   Fetcher
	pool      *WorkerPool
	batchSize int
	tracker   *EmptyRunTracker
	acc       *Accumulator
	observer  BatchObserver
	logger    zerolog.Logger
}

func (s *scheduler) run(ctx context.Context, ep source.Endpoint, startPage int) (Stats, error) {
	stats := Stats{NextPage: startPage}

	if startPage > ep.MaxPages {
		s.logger.Info().
			Int("start_page", startPage).
			Int("max_pages", ep.MaxPages).
			Msg("Start page beyond max pages, nothing to extract")
		return stats, nil
	}

	current := startPage
	for current <= ep.MaxPages {
		if err := ctx.Err(); err != nil {
			stats.NextPage = current
			return stats, err
		}

		end := min(current+s.batchSize-1, ep.MaxPages)
		n := end - current + 1

		s.logger.Debug().
			Int("batch_start", current).
			Int("batch_end", end).
			Msg("Processing batch")

		// Buffered to batch size so workers never block on the send.
		results := make(chan pageResult, n)

		var batch sync.WaitGroup
		batch.Add(n)
		for page := current; page <= end; page++ {
			page := page
			s.pool.Submit(func() {
				defer batch.Done()
				if err := ctx.Err(); err != nil {
					results <- pageResult{page: page, err: err}
					return
				}
				records, err := s.fetcher.FetchPage(ctx, ep, page)
				results <- pageResult{page: page, records: records, err: err}
			})
		}

		go func() {
			batch.Wait()
			close(results)
		}()

		// Barrier: every page in the batch completes (success or
		// absorbed failure) before the tracker is consulted. Records
		// reach the accumulator in page completion order.
		batchEmpty := true
		for res := range results {
			stats.PagesScheduled++
			if res.err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(res.err, ctxErr) {
					stats.PagesCancelled++
				} else {
					stats.PagesFailed++
				}
				continue
			}
			stats.PagesFetched++
			if len(res.records) > 0 {
				batchEmpty = false
				stats.Records += len(res.records)
				extractRecordsTotal.WithLabelValues(ep.Name).Add(float64(len(res.records)))
				s.acc.Accept(res.records...)
			}
		}

		// A batch interrupted by cancellation never joined completely.
		// Advancing the resume point past it would make the next run
		// skip pages that were never fetched, so the batch does not
		// count as completed and the observer is not notified.
		if err := ctx.Err(); err != nil {
			stats.NextPage = current
			return stats, err
		}

		extractBatchesTotal.WithLabelValues(ep.Name).Inc()

		if s.observer != nil {
			s.observer(ep.Name, end)
		}

		current = end + 1
		stats.NextPage = current

		if s.tracker.Observe(batchEmpty) {
			stats.EndOfData = true
			extractEmptyRunStopsTotal.WithLabelValues(ep.Name).Inc()
			s.logger.Info().
				Int("empty_batches", s.tracker.Run()).
				Int("next_page", stats.NextPage).
				Msg("Empty-batch threshold reached, assuming end of data")
			break
		}
	}

	return stats, nil
}
