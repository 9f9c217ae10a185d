package extract

import (
	"sync"
)

// PoolFactory builds run-scoped worker pools with a centrally tuned
// size, so every extraction run shares the same concurrency limit
// without sharing pool state.
type PoolFactory struct {
	size int
}

// NewPoolFactory creates a factory producing pools of the given size.
func NewPoolFactory(size int) *PoolFactory {
	if size <= 0 {
		size = 8
	}
	return &PoolFactory{size: size}
}

// Size returns the configured pool size.
func (f *PoolFactory) Size() int {
	return f.size
}

// New builds a started worker pool. The caller owns the pool and must
// Close it when the run completes or is abandoned.
func (f *PoolFactory) New() *WorkerPool {
	return newWorkerPool(f.size)
}

// WorkerPool executes submitted tasks on a fixed set of goroutines,
// bounding the number of page fetches in flight.
type WorkerPool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

func newWorkerPool(size int) *WorkerPool {
	p := &WorkerPool{
		tasks: make(chan func()),
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// Submit hands a task to the pool, blocking while all workers are busy.
func (p *WorkerPool) Submit(task func()) {
	p.tasks <- task
}

// Close stops accepting tasks and waits for the workers to drain.
func (p *WorkerPool) Close() {
	close(p.tasks)
	p.wg.Wait()
}
