package extract

// EmptyRunTracker decides when consecutive empty batches signal the end
// of pagination. Requiring several empty batches (not merely empty
// pages) tolerates sparse endpoints without stopping prematurely while
// still bounding wasted probing.
type EmptyRunTracker struct {
	run       int
	threshold int
}

// NewEmptyRunTracker creates a tracker that signals end-of-data after
// threshold consecutive all-empty batches.
func NewEmptyRunTracker(threshold int) *EmptyRunTracker {
	if threshold <= 0 {
		threshold = 3
	}
	return &EmptyRunTracker{threshold: threshold}
}

// Observe records the outcome of one completed batch and reports
// whether extraction should stop. An all-empty batch increments the
// run; any batch with at least one non-empty page resets it to zero.
func (t *EmptyRunTracker) Observe(batchEmpty bool) bool {
	if batchEmpty {
		t.run++
	} else {
		t.run = 0
	}
	return t.run >= t.threshold
}

// Run returns the current count of consecutive empty batches.
func (t *EmptyRunTracker) Run() int {
	return t.run
}

// Threshold returns the configured empty-batch threshold.
func (t *EmptyRunTracker) Threshold() int {
	return t.threshold
}
