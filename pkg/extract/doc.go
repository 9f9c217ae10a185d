// Package extract implements the concurrent pagination engine.
//
// The source API exposes no total count or next-cursor signal, so the
// engine probes an unbounded page space under a fixed worker budget and
// infers end-of-data from consecutive empty batches. Pages are grouped
// into contiguous batches; each batch is dispatched to a bounded worker
// pool and joined as a barrier before the next batch is scheduled.
// Fetched records accumulate into size-bounded chunks that are emitted
// lazily on a channel as soon as they fill.
//
// Example usage:
//
//	engine, _ := extract.NewEngine(client, extract.DefaultConfig())
//	run := engine.Extract(ctx, endpoint, 1)
//	for chunk := range run.Chunks() {
//	    // hand chunk to the load sink
//	}
//	if err := run.Err(); err != nil {
//	    // fatal (non-fetch) failure
//	}
//
// The engine:
//   - partitions [startPage, maxPages] into fixed-size batches
//   - bounds in-flight requests with a run-scoped worker pool
//   - absorbs individual page failures (a failed page counts as empty)
//   - stops after N consecutive all-empty batches or at maxPages
//   - honors context cancellation at batch boundaries and in workers
//
// A run is finite and not restartable; resuming requires a new call
// with an explicit start page.
package extract
