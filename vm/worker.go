package vm

import (
	"context"
	"fmt"
)

// workerRequest represents a unit of work to be executed on the machine
// goroutine.
type workerRequest struct {
	fn   func(*Machine) (any, error)
	done chan workerResult
}

// workerResult holds the return value from a machine operation.
type workerResult struct {
	value any
	err   error
}

// Worker serializes all machine access through a single goroutine. A
// Machine is single-threaded state; embedders with concurrent callers
// must go through a Worker to avoid data races.
type Worker struct {
	machine  *Machine
	requests chan workerRequest
	quit     chan struct{}
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(m *Machine) *Worker {
	w := &Worker{
		machine:  m,
		requests: make(chan workerRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the machine, recovering from panics.
func (w *Worker) execute(fn func(*Machine) (any, error)) workerResult {
	var result workerResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value, result.err = fn(w.machine)
	}()
	return result
}

// Do submits a function for execution on the machine goroutine and
// blocks until it completes or the context is cancelled. A cancelled
// context abandons the result but the submitted function still runs to
// completion on the worker goroutine.
func (w *Worker) Do(ctx context.Context, fn func(*Machine) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := workerRequest{
		fn:   fn,
		done: make(chan workerResult, 1),
	}

	select {
	case w.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.quit:
		return nil, fmt.Errorf("worker stopped")
	}

	select {
	case result := <-req.done:
		return result.value, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts down the worker goroutine.
func (w *Worker) Stop() {
	close(w.quit)
}
