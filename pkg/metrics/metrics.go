// Package metrics documents the Prometheus metrics exposed by the
// pipeline. Metrics are defined in their owning packages (source,
// extract, sink) via promauto to keep registration next to the code
// that drives them; this package is the reference for the full surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registerer used by all packages.
// Embedding hosts can expose it via promhttp.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Source Metrics (pkg/source):
//   - shopetl_source_requests_total{endpoint, status} (Counter): API requests by endpoint and HTTP status
//   - shopetl_source_request_duration_seconds{endpoint} (Histogram): request duration by endpoint
//   - shopetl_source_fetch_failures_total{endpoint, class} (Counter): absorbed fetch failures by error class
//
// Extraction Metrics (pkg/extract):
//   - shopetl_extract_batches_total{endpoint} (Counter): completed page batches
//   - shopetl_extract_records_total{endpoint} (Counter): records accepted into chunks
//   - shopetl_extract_chunks_total{endpoint} (Counter): chunks emitted
//   - shopetl_extract_empty_run_stops_total{endpoint} (Counter): runs stopped by the empty-batch heuristic
//
// Sink Metrics (pkg/sink):
//   - shopetl_sink_rows_total{endpoint} (Counter): rows upserted into the destination
//   - shopetl_sink_load_duration_seconds{endpoint} (Histogram): chunk load duration
//
// Example Prometheus Queries:
//
//   # Fetch failure rate per endpoint
//   rate(shopetl_source_fetch_failures_total[5m])
//
//   # Extraction throughput (records/second)
//   rate(shopetl_extract_records_total[5m])
//
//   # P95 page fetch latency
//   histogram_quantile(0.95, rate(shopetl_source_request_duration_seconds_bucket[5m]))
//
//   # Runs ending via the empty-batch heuristic vs max pages
//   increase(shopetl_extract_empty_run_stops_total[1h])
