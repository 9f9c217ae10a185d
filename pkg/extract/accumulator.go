package extract

import (
	"github.com/jaffleworks/shop-etl/pkg/source"
)

// Chunk is an ordered, size-bounded group of records emitted as one
// unit to the downstream load sink.
type Chunk []source.Record

// Accumulator collects records across batches and emits complete chunks
// through the emit callback. Every emitted chunk except the one from
// the final Flush has exactly threshold records.
//
// Not safe for concurrent use; the scheduler feeds it from a single
// goroutine.
type Accumulator struct {
	threshold int
	buf       []source.Record
	emit      func(Chunk)
}

// NewAccumulator creates an accumulator emitting chunks of the given
// threshold through emit.
func NewAccumulator(threshold int, emit func(Chunk)) *Accumulator {
	if threshold <= 0 {
		threshold = 1000
	}
	return &Accumulator{
		threshold: threshold,
		buf:       make([]source.Record, 0, threshold),
		emit:      emit,
	}
}

// Accept appends records to the buffer in order and emits a chunk each
// time the buffer reaches the threshold.
func (a *Accumulator) Accept(records ...source.Record) {
	a.buf = append(a.buf, records...)

	for len(a.buf) >= a.threshold {
		chunk := a.buf[:a.threshold:a.threshold]
		a.buf = append(make([]source.Record, 0, a.threshold), a.buf[a.threshold:]...)
		a.emit(chunk)
	}
}

// Flush emits whatever remains in the buffer as a final, possibly
// short, chunk. Emits nothing when the buffer is empty.
func (a *Accumulator) Flush() {
	if len(a.buf) == 0 {
		return
	}
	chunk := a.buf
	a.buf = make([]source.Record, 0, a.threshold)
	a.emit(chunk)
}

// Len returns the number of buffered records awaiting emission.
func (a *Accumulator) Len() int {
	return len(a.buf)
}
