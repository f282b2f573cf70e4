// Package async runs units of work on a bounded worker pool and hands the
// caller a future that completes with the outcome. Submission never blocks:
// a full queue fails the submission instead of parking the caller.
package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrCapacityExceeded = errors.New("async: queue capacity exceeded")
	ErrExecutorStopped  = errors.New("async: executor stopped")
)

type Executor struct {
	queue     chan func()
	workerNum int

	wg sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	ctx     context.Context
}

func NewExecutor(workerNum, queueSize int) *Executor {
	if workerNum <= 0 {
		workerNum = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	return &Executor{
		queue:     make(chan func(), queueSize),
		workerNum: workerNum,
	}
}

func (e *Executor) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.closed {
		return
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(e.workerNum)
	for i := 0; i < e.workerNum; i++ {
		go e.worker()
	}
}

// Stop rejects further submissions and waits for in-flight work until ctx
// expires. Queued but unstarted work is abandoned.
func (e *Executor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-doneCh:
		return nil
	}
}

func (e *Executor) worker() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case task, ok := <-e.queue:
			if !ok {
				return
			}
			task()
		}
	}
}

func (e *Executor) submit(task func()) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed || !e.started {
		return ErrExecutorStopped
	}

	select {
	case e.queue <- task:
		return nil
	default:
		return fmt.Errorf("%w: %d pending", ErrCapacityExceeded, len(e.queue))
	}
}

// Future completes exactly once; late completions are discarded.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(v T, err error) {
	f.once.Do(func() {
		f.value = v
		f.err = err
		close(f.done)
	})
}

// Join blocks until the future completes.
func (f *Future[T]) Join() (T, error) {
	<-f.done
	return f.value, f.err
}

// Done reports completion without blocking.
func (f *Future[T]) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
