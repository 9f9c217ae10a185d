package extract

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jaffleworks/shop-etl/pkg/source"
)

// Config holds the extraction engine configuration.
type Config struct {
	// BatchSize is the number of consecutive pages scheduled and joined
	// together. It governs the granularity of the empty-run decision.
	BatchSize int

	// Concurrency is the worker pool size per extraction run. It
	// governs simultaneous in-flight requests within a batch.
	Concurrency int

	// ChunkThreshold is the record count at which a chunk is emitted.
	ChunkThreshold int

	// EmptyBatchThreshold is the number of consecutive all-empty
	// batches that signals end of data.
	EmptyBatchThreshold int

	// BatchObserver, when set, is called after every joined batch.
	BatchObserver BatchObserver
}

// DefaultConfig returns safe defaults for the shop API.
func DefaultConfig() Config {
	return Config{
		BatchSize:           20,
		Concurrency:         8,
		ChunkThreshold:      1000,
		EmptyBatchThreshold: 3,
	}
}

// Engine composes the page fetcher, batch scheduler, empty-run tracker,
// and chunk accumulator into a per-endpoint producer of chunks.
// Endpoints share no extraction state; each Extract call builds its own
// run-scoped pool from the engine's factory.
type Engine struct {
	fetcher Fetcher
	cfg     Config
	pools   *PoolFactory
	logger  zerolog.Logger
}

// NewEngine creates an extraction engine.
func NewEngine(fetcher Fetcher, cfg Config) (*Engine, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.ChunkThreshold <= 0 {
		cfg.ChunkThreshold = 1000
	}
	if cfg.EmptyBatchThreshold <= 0 {
		cfg.EmptyBatchThreshold = 3
	}

	return &Engine{
		fetcher: fetcher,
		cfg:     cfg,
		pools:   NewPoolFactory(cfg.Concurrency),
		logger:  log.With().Str("component", "extract").Logger(),
	}, nil
}

// Run is one in-flight extraction. Chunks must be drained; Err and
// Stats block until the chunk channel has closed.
type Run struct {
	chunks chan Chunk
	done   chan struct{}
	err    error
	stats  Stats
}

// Chunks returns the lazy, finite sequence of emitted chunks. The
// channel closes when the run completes, fails, or is cancelled.
func (r *Run) Chunks() <-chan Chunk {
	return r.chunks
}

// Err returns the fatal error of the run, if any. Absorbed fetch
// failures never surface here; they are visible in Stats.PagesFailed.
func (r *Run) Err() error {
	<-r.done
	return r.err
}

// Stats returns the run summary.
func (r *Run) Stats() Stats {
	<-r.done
	return r.stats
}

// Extract starts one extraction run for the endpoint beginning at
// startPage (1 if startPage < 1). The run is finite and not
// restartable: re-invoking requires an explicit new start page, the
// engine holds no cursor.
func (e *Engine) Extract(ctx context.Context, ep source.Endpoint, startPage int) *Run {
	if startPage < 1 {
		startPage = 1
	}

	run := &Run{
		chunks: make(chan Chunk, 1),
		done:   make(chan struct{}),
	}

	logger := e.logger.With().Str("endpoint", ep.Name).Logger()

	go func() {
		defer close(run.done)
		defer close(run.chunks)

		pool := e.pools.New()
		defer pool.Close()

		var chunks int
		emit := func(c Chunk) {
			select {
			case run.chunks <- c:
				chunks++
				extractChunksTotal.WithLabelValues(ep.Name).Inc()
				logger.Debug().Int("records", len(c)).Msg("Chunk emitted")
			case <-ctx.Done():
			}
		}

		sched := &scheduler{
			fetcher:   e.fetcher,
			pool:      pool,
			batchSize: e.cfg.BatchSize,
			tracker:   NewEmptyRunTracker(e.cfg.EmptyBatchThreshold),
			acc:       NewAccumulator(e.cfg.ChunkThreshold, emit),
			observer:  e.cfg.BatchObserver,
			logger:    logger,
		}

		logger.Info().
			Int("start_page", startPage).
			Int("max_pages", ep.MaxPages).
			Msg("Starting extraction")

		stats, err := sched.run(ctx, ep, startPage)
		if err == nil {
			sched.acc.Flush()
		}
		stats.Chunks = chunks

		run.stats = stats
		run.err = err

		if err != nil {
			logger.Warn().
				Err(err).
				Int("records", stats.Records).
				Msg("Extraction aborted")
			return
		}

		logger.Info().
			Int("records", stats.Records).
			Int("chunks", stats.Chunks).
			Int("pages_fetched", stats.PagesFetched).
			Int("pages_failed", stats.PagesFailed).
			Bool("end_of_data", stats.EndOfData).
			Msg("Extraction completed")
	}()

	return run
}
