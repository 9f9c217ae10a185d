// Command shop-etl extracts every configured endpoint of the shop API
// and merge-loads the records into a DuckDB database, then prints the
// post-load report.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jaffleworks/shop-etl/pkg/checkpoint"
	"github.com/jaffleworks/shop-etl/pkg/config"
	"github.com/jaffleworks/shop-etl/pkg/extract"
	"github.com/jaffleworks/shop-etl/pkg/logging"
	"github.com/jaffleworks/shop-etl/pkg/pipeline"
	"github.com/jaffleworks/shop-etl/pkg/report"
	"github.com/jaffleworks/shop-etl/pkg/sink"
	"github.com/jaffleworks/shop-etl/pkg/source"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	fullRefresh := flag.Bool("full-refresh", false, "truncate destination tables before loading")
	resume := flag.Bool("resume", false, "resume endpoints from stored checkpoints")
	startPage := flag.Int("start-page", 0, "override start page for every endpoint")
	logLevel := flag.String("log-level", "", "override log level (debug, info, warn, error)")
	pretty := flag.Bool("pretty", false, "human-readable log output")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		logger := logging.NewLogger("main")
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	if *fullRefresh {
		cfg.FullRefresh = true
	}
	if *resume {
		cfg.Resume = true
	}
	if *startPage > 0 {
		cfg.StartPage = *startPage
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *pretty {
		cfg.Logging.Pretty = true
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Pipeline failed")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	logger.Info().
		Str("base_url", cfg.BaseURL).
		Int("endpoints", len(cfg.Endpoints)).
		Int("concurrency", cfg.ConcurrencyLimit).
		Int("chunk_threshold", cfg.ChunkThreshold).
		Bool("full_refresh", cfg.FullRefresh).
		Msg("Starting shop ETL pipeline")

	// Destination database.
	db, err := sink.OpenDuckDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	duck, err := sink.NewDuckDB(db, logger)
	if err != nil {
		return err
	}

	// Optional Redis-backed checkpoints.
	var checkpoints checkpoint.Store
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
		checkpoints = checkpoint.NewRedisStore(redisClient, 0, logger)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Checkpoint store enabled")
	}

	// Source client.
	client, err := source.New(source.Config{
		BaseURL:  cfg.BaseURL,
		PageSize: cfg.PageSize,
		Timeout:  cfg.RequestTimeout(),
	}, logger)
	if err != nil {
		return err
	}

	engineCfg := extract.Config{
		BatchSize:           cfg.BatchSize,
		Concurrency:         cfg.ConcurrencyLimit,
		ChunkThreshold:      cfg.ChunkThreshold,
		EmptyBatchThreshold: cfg.EmptyBatchThreshold,
	}

	p, err := pipeline.New(client, duck, engineCfg, pipeline.Config{
		StartPage:   cfg.StartPage,
		FullRefresh: cfg.FullRefresh,
		Resume:      cfg.Resume,
	}, checkpoints)
	if err != nil {
		return err
	}

	endpoints := cfg.SourceEndpoints()
	results, err := p.Run(ctx, endpoints)
	if err != nil {
		return err
	}

	for _, res := range results {
		logger.Info().
			Str("endpoint", res.Endpoint).
			Int("records", res.Stats.Records).
			Int("chunks", res.Stats.Chunks).
			Int("pages_failed", res.Stats.PagesFailed).
			Bool("end_of_data", res.Stats.EndOfData).
			Dur("duration", res.Duration).
			Msg("Endpoint loaded")
	}

	// Post-load reporting.
	reporter, err := report.New(db)
	if err != nil {
		return err
	}
	if _, err := reporter.Summarize(ctx, endpoints); err != nil {
		return err
	}
	if _, err := reporter.TopProducts(ctx, 20); err != nil {
		logger.Warn().Err(err).Msg("Product analysis unavailable")
	}
	if _, err := reporter.SupplyChain(ctx, 15); err != nil {
		logger.Warn().Err(err).Msg("Supply chain analysis unavailable")
	}
	if _, err := reporter.Categories(ctx); err != nil {
		logger.Warn().Err(err).Msg("Category analysis unavailable")
	}

	return nil
}
