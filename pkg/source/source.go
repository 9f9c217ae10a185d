// Package source provides the HTTP client for the paginated shop API.
package source

import (
	"time"
)

// Record is one row returned by the source API. Field values are opaque;
// the extractor never inspects them and the sink serializes them as-is.
type Record map[string]any

// Endpoint describes one paginated data source.
type Endpoint struct {
	// Name is the unique endpoint identifier, also used as the
	// destination table name (e.g. "orders").
	Name string

	// Path is the resource path relative to the base URL (e.g. "/orders").
	Path string

	// PrimaryKey is the record field used for upsert identity downstream.
	PrimaryKey string

	// MaxPages is the upper bound on page numbers to probe. The API
	// exposes no total count, so extraction stops at MaxPages or when
	// the empty-batch heuristic fires, whichever comes first.
	MaxPages int
}

// Config holds the source client configuration.
type Config struct {
	// BaseURL is the API root (e.g. "https://jaffle-shop.scalevector.ai/api/v1").
	BaseURL string

	// PageSize is the per_page value sent with every request.
	PageSize int

	// Timeout bounds a single page request.
	Timeout time.Duration

	// UserAgent header sent with every request.
	UserAgent string
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		PageSize:  100,
		Timeout:   10 * time.Second,
		UserAgent: "shop-etl/1.0",
	}
}
