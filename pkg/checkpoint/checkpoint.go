// Package checkpoint provides pluggable resume-point storage for
// extraction runs. A checkpoint records the last fully joined batch per
// endpoint so a restarted process can resume with an explicit start
// page instead of re-probing from page one. Checkpoints are best-effort
// resume hints, not exactly-once guarantees.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no checkpoint exists for the endpoint.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is the resume point for one endpoint.
type Checkpoint struct {
	// Endpoint is the endpoint name the checkpoint belongs to.
	Endpoint string `json:"endpoint"`

	// LastCompletedPage is the highest page of the last joined batch.
	// The next run should start at LastCompletedPage + 1.
	LastCompletedPage int `json:"last_completed_page"`

	// UpdatedAt is when the checkpoint was written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists extraction checkpoints.
type Store interface {
	// Save persists a checkpoint, overwriting any previous one for the
	// same endpoint.
	Save(ctx context.Context, cp Checkpoint) error

	// Load retrieves the checkpoint for an endpoint.
	// Returns ErrNotFound when none exists.
	Load(ctx context.Context, endpoint string) (*Checkpoint, error)

	// Delete removes the checkpoint for an endpoint. Deleting a
	// missing checkpoint is not an error.
	Delete(ctx context.Context, endpoint string) error
}
