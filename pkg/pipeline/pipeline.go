// Package pipeline wires the extraction engine, merge-load sink, and
// checkpoint store together and drives all configured endpoints as
// independent concurrent jobs.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jaffleworks/shop-etl/pkg/checkpoint"
	"github.com/jaffleworks/shop-etl/pkg/extract"
	"github.com/jaffleworks/shop-etl/pkg/sink"
	"github.com/jaffleworks/shop-etl/pkg/source"
)

// checkpointTimeout bounds a single checkpoint write.
const checkpointTimeout = 5 * time.Second

// Config holds pipeline-level options.
type Config struct {
	// StartPage is the first page of each run (default 1). Ignored for
	// an endpoint when Resume finds a newer checkpoint.
	StartPage int

	// FullRefresh truncates each destination table before loading.
	FullRefresh bool

	// Resume starts each endpoint one page past its stored checkpoint.
	Resume bool
}

// Result summarizes one endpoint's run.
type Result struct {
	Endpoint string
	Stats    extract.Stats
	Duration time.Duration
}

// Pipeline extracts every endpoint and loads the chunks into the sink.
type Pipeline struct {
	engine      *extract.Engine
	sink        sink.Sink
	checkpoints checkpoint.Store
	cfg         Config
	logger      zerolog.Logger
}

// New creates a pipeline. checkpoints may be nil, disabling resume.
func New(fetcher extract.Fetcher, snk sink.Sink, engineCfg extract.Config, cfg Config, checkpoints checkpoint.Store) (*Pipeline, error) {
	if snk == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if cfg.StartPage < 1 {
		cfg.StartPage = 1
	}

	logger := log.With().Str("component", "pipeline").Logger()

	if checkpoints != nil {
		// Persist the resume point after every joined batch. A failed
		// save only degrades resume, never the run itself.
		engineCfg.BatchObserver = func(endpoint string, lastCompletedPage int) {
			ctx, cancel := context.WithTimeout(context.Background(), checkpointTimeout)
			defer cancel()

			cp := checkpoint.Checkpoint{
				Endpoint:          endpoint,
				LastCompletedPage: lastCompletedPage,
				UpdatedAt:         time.Now(),
			}
			if err := checkpoints.Save(ctx, cp); err != nil {
				logger.Warn().
					Err(err).
					Str("endpoint", endpoint).
					Int("last_completed_page", lastCompletedPage).
					Msg("Checkpoint save failed")
			}
		}
	}

	engine, err := extract.NewEngine(fetcher, engineCfg)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	return &Pipeline{
		engine:      engine,
		sink:        snk,
		checkpoints: checkpoints,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// Run extracts and loads every endpoint concurrently. It returns one
// Result per completed endpoint and the first fatal error, if any; a
// fatal error on one endpoint cancels the remaining runs.
func (p *Pipeline) Run(ctx context.Context, endpoints []source.Endpoint) ([]Result, error) {
	start := time.Now()
	results := make([]Result, len(endpoints))

	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range endpoints {
		i, ep := i, ep
		g.Go(func() error {
			res, err := p.runEndpoint(gctx, ep)
			if err != nil {
				return fmt.Errorf("endpoint %s: %w", ep.Name, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var records, chunks int
	for _, res := range results {
		records += res.Stats.Records
		chunks += res.Stats.Chunks
	}

	p.logger.Info().
		Int("endpoints", len(endpoints)).
		Int("records", records).
		Int("chunks", chunks).
		Dur("duration", time.Since(start)).
		Msg("Pipeline completed")

	return results, nil
}

// runEndpoint drives one endpoint's extraction into the sink.
func (p *Pipeline) runEndpoint(ctx context.Context, ep source.Endpoint) (Result, error) {
	start := time.Now()

	startPage, err := p.resolveStartPage(ctx, ep)
	if err != nil {
		return Result{}, err
	}

	if err := p.sink.Begin(ctx, ep, p.cfg.FullRefresh); err != nil {
		return Result{}, fmt.Errorf("begin load: %w", err)
	}

	run := p.engine.Extract(ctx, ep, startPage)

	for chunk := range run.Chunks() {
		if err := p.sink.Load(ctx, ep, chunk); err != nil {
			// Returning cancels gctx; the engine drains via the
			// cancelled context rather than leaking its goroutine.
			return Result{}, fmt.Errorf("load chunk: %w", err)
		}
	}

	if err := run.Err(); err != nil {
		return Result{}, fmt.Errorf("extract: %w", err)
	}

	// Clean completion: the next incremental run should start from the
	// configured start page again, so drop the resume point.
	if p.checkpoints != nil {
		if err := p.checkpoints.Delete(ctx, ep.Name); err != nil {
			p.logger.Warn().Err(err).Str("endpoint", ep.Name).Msg("Checkpoint delete failed")
		}
	}

	return Result{
		Endpoint: ep.Name,
		Stats:    run.Stats(),
		Duration: time.Since(start),
	}, nil
}

// resolveStartPage picks the configured start page or, in resume mode,
// one past the endpoint's stored checkpoint.
func (p *Pipeline) resolveStartPage(ctx context.Context, ep source.Endpoint) (int, error) {
	if !p.cfg.Resume || p.checkpoints == nil {
		return p.cfg.StartPage, nil
	}

	cp, err := p.checkpoints.Load(ctx, ep.Name)
	if err != nil {
		if err == checkpoint.ErrNotFound {
			return p.cfg.StartPage, nil
		}
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}

	resumeAt := cp.LastCompletedPage + 1
	if resumeAt < p.cfg.StartPage {
		resumeAt = p.cfg.StartPage
	}

	p.logger.Info().
		Str("endpoint", ep.Name).
		Int("last_completed_page", cp.LastCompletedPage).
		Int("start_page", resumeAt).
		Msg("Resuming from checkpoint")

	return resumeAt, nil
}
