// Package work provides the bounded worker pool shared by all dispatch
// operations. The pool is deliberately small: connector tasks are I/O
// bound, and a fixed worker count prevents unbounded goroutine growth when
// many connectors exist.
package work

import (
	"runtime"
	"sync"
)

// DefaultSize returns the default pool size: half the available
// parallelism, minimum one worker.
func DefaultSize() int {
	size := runtime.NumCPU() / 2
	if size < 1 {
		size = 1
	}
	return size
}

// Pool is a fixed set of workers draining a task queue.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New creates a pool with the given number of workers, minimum one.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		tasks: make(chan func(), size*16),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit queues a task for execution. Submitting to a shut-down pool
// reports false and the task is not run.
func (p *Pool) Submit(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.tasks <- task
	return true
}

// Shutdown stops accepting tasks, drains the queue and waits for all
// workers to finish.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
