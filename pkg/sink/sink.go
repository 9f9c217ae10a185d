// Package sink provides merge-load destinations for extracted chunks.
//
// A sink receives chunks for one endpoint at a time and upserts them by
// the endpoint's primary key. Deduplication is entirely the sink's
// responsibility: the extraction engine forwards whatever the source
// returned, duplicates included.
package sink

import (
	"context"

	"github.com/jaffleworks/shop-etl/pkg/extract"
	"github.com/jaffleworks/shop-etl/pkg/source"
)

// Sink is a merge-load destination.
//
// Implementations must be safe for concurrent use across endpoints;
// chunks for a single endpoint arrive sequentially.
type Sink interface {
	// Begin prepares the destination dataset for an endpoint. When
	// fullRefresh is set, existing rows for the endpoint are discarded
	// before the first chunk is applied.
	Begin(ctx context.Context, ep source.Endpoint, fullRefresh bool) error

	// Load upserts one chunk into the endpoint's dataset, keyed by the
	// endpoint's primary key.
	Load(ctx context.Context, ep source.Endpoint, chunk extract.Chunk) error

	// Close releases sink resources.
	Close() error
}
