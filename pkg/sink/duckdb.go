package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/jaffleworks/shop-etl/pkg/extract"
	"github.com/jaffleworks/shop-etl/pkg/source"
)

// Prometheus metrics for sink operations.
var (
	sinkRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopetl_sink_rows_total",
		Help: "Rows upserted into the destination by endpoint",
	}, []string{"endpoint"})

	sinkLoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopetl_sink_load_duration_seconds",
		Help:    "Chunk load duration in seconds by endpoint",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"endpoint"})
)

// identifierPattern restricts table names to safe SQL identifiers.
// Endpoint names are interpolated into DDL, so anything else is
// rejected outright.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DuckDB loads chunks into a DuckDB database, one table per endpoint.
//
// Records are stored as (id, payload, loaded_at) rows where payload is
// the record serialized to JSON. This keeps the sink schema-free:
// record fields stay opaque, and reporting queries read them with
// DuckDB's JSON functions.
type DuckDB struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenDuckDB opens (and creates if missing) a DuckDB database file.
// An empty path opens an in-memory database.
func OpenDuckDB(path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return db, nil
}

// NewDuckDB creates a DuckDB sink over an open database handle. The
// caller retains ownership of db for post-load reporting; Close only
// detaches the sink.
func NewDuckDB(db *sql.DB, logger zerolog.Logger) (*DuckDB, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	return &DuckDB{
		db:     db,
		logger: logger.With().Str("component", "sink").Logger(),
	}, nil
}

// Begin implements Sink.
func (d *DuckDB) Begin(ctx context.Context, ep source.Endpoint, fullRefresh bool) error {
	if !identifierPattern.MatchString(ep.Name) {
		return fmt.Errorf("invalid endpoint name %q for table", ep.Name)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR PRIMARY KEY,
		payload JSON NOT NULL,
		loaded_at TIMESTAMP NOT NULL
	)`, ep.Name)

	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", ep.Name, err)
	}

	if fullRefresh {
		if _, err := d.db.ExecContext(ctx, "DELETE FROM "+ep.Name); err != nil {
			return fmt.Errorf("truncate table %s: %w", ep.Name, err)
		}
		d.logger.Info().Str("endpoint", ep.Name).Msg("Full refresh: destination table truncated")
	}

	return nil
}

// Load implements Sink. The whole chunk is applied in one transaction.
func (d *DuckDB) Load(ctx context.Context, ep source.Endpoint, chunk extract.Chunk) error {
	if len(chunk) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		sinkLoadDuration.WithLabelValues(ep.Name).Observe(time.Since(start).Seconds())
	}()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf("INSERT OR REPLACE INTO %s (id, payload, loaded_at) VALUES (?, ?, ?)", ep.Name))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	loadedAt := time.Now()
	for _, rec := range chunk {
		key, err := recordKey(rec, ep.PrimaryKey)
		if err != nil {
			return fmt.Errorf("endpoint %s: %w", ep.Name, err)
		}

		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", key, err)
		}

		if _, err := stmt.ExecContext(ctx, key, string(payload), loadedAt); err != nil {
			return fmt.Errorf("upsert record %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk: %w", err)
	}

	sinkRowsTotal.WithLabelValues(ep.Name).Add(float64(len(chunk)))

	d.logger.Debug().
		Str("endpoint", ep.Name).
		Int("rows", len(chunk)).
		Dur("duration", time.Since(start)).
		Msg("Chunk loaded")

	return nil
}

// Close implements Sink. The shared database handle stays open.
func (d *DuckDB) Close() error {
	return nil
}

// recordKey extracts and canonicalizes the primary key value.
func recordKey(rec source.Record, primaryKey string) (string, error) {
	v, ok := rec[primaryKey]
	if !ok || v == nil {
		return "", fmt.Errorf("record missing primary key %q", primaryKey)
	}

	switch k := v.(type) {
	case string:
		if k == "" {
			return "", fmt.Errorf("record has empty primary key %q", primaryKey)
		}
		return k, nil
	case float64:
		// JSON numbers decode to float64; integral keys round-trip.
		return strconv.FormatFloat(k, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(k), nil
	case int64:
		return strconv.FormatInt(k, 10), nil
	default:
		return "", fmt.Errorf("unsupported primary key type %T for %q", v, primaryKey)
	}
}
