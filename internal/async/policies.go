package async

import (
	"sync"
	"time"
)

// Run submits fire-and-forget work.
func Run(e *Executor, task func() error) (*Future[struct{}], error) {
	f := newFuture[struct{}]()
	if err := e.submit(func() {
		f.complete(struct{}{}, task())
	}); err != nil {
		return nil, err
	}
	return f, nil
}

// Supply submits result-producing work.
func Supply[T any](e *Executor, task func() (T, error)) (*Future[T], error) {
	f := newFuture[T]()
	if err := e.submit(func() {
		f.complete(task())
	}); err != nil {
		return nil, err
	}
	return f, nil
}

// ThenAccept schedules a continuation on the pool once prev completes. The
// continuation observes the prior result or its failure.
func ThenAccept[T any](e *Executor, prev *Future[T], accept func(T, error)) *Future[struct{}] {
	next := newFuture[struct{}]()
	go func() {
		v, err := prev.Join()
		if subErr := e.submit(func() {
			accept(v, err)
			next.complete(struct{}{}, nil)
		}); subErr != nil {
			next.complete(struct{}{}, subErr)
		}
	}()
	return next
}

// ThenMap schedules a transforming continuation on the pool once prev
// completes.
func ThenMap[T, U any](e *Executor, prev *Future[T], mapper func(T, error) (U, error)) *Future[U] {
	next := newFuture[U]()
	go func() {
		v, err := prev.Join()
		if subErr := e.submit(func() {
			next.complete(mapper(v, err))
		}); subErr != nil {
			var zero U
			next.complete(zero, subErr)
		}
	}()
	return next
}

// Result is one unit's outcome within a fan-out aggregate.
type Result[T any] struct {
	Value T
	Err   error
}

// SupplyAll submits every task and completes once all have finished. The
// aggregate keeps submission order and records each unit's failure instead
// of failing fast; a unit that could not even be enqueued carries the
// submission error in its slot.
func SupplyAll[T any](e *Executor, tasks ...func() (T, error)) *Future[[]Result[T]] {
	agg := newFuture[[]Result[T]]()
	results := make([]Result[T], len(tasks))

	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for i, task := range tasks {
		i, task := i, task
		if err := e.submit(func() {
			defer wg.Done()
			results[i].Value, results[i].Err = task()
		}); err != nil {
			results[i].Err = err
			wg.Done()
		}
	}

	go func() {
		wg.Wait()
		agg.complete(results, nil)
	}()
	return agg
}

// RunAll is the result-free fan-out variant; the aggregate slice holds each
// unit's error, nil for the ones that succeeded.
func RunAll(e *Executor, tasks ...func() error) *Future[[]error] {
	agg := newFuture[[]error]()
	errs := make([]error, len(tasks))

	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for i, task := range tasks {
		i, task := i, task
		if err := e.submit(func() {
			defer wg.Done()
			errs[i] = task()
		}); err != nil {
			errs[i] = err
			wg.Done()
		}
	}

	go func() {
		wg.Wait()
		agg.complete(errs, nil)
	}()
	return agg
}

// SupplyWithTimeout completes with def if the work has not finished within
// timeout. The work itself keeps running; its late result is discarded.
func SupplyWithTimeout[T any](e *Executor, task func() (T, error), timeout time.Duration, def T) (*Future[T], error) {
	inner, err := Supply(e, task)
	if err != nil {
		return nil, err
	}

	outer := newFuture[T]()
	timer := time.NewTimer(timeout)
	go func() {
		defer timer.Stop()
		select {
		case <-inner.done:
			outer.complete(inner.value, inner.err)
		case <-timer.C:
			outer.complete(def, nil)
		}
	}()
	return outer, nil
}

// SupplyWithFallback converts a failure into def instead of propagating it.
func SupplyWithFallback[T any](e *Executor, task func() (T, error), def T) (*Future[T], error) {
	inner, err := Supply(e, task)
	if err != nil {
		return nil, err
	}

	outer := newFuture[T]()
	go func() {
		v, err := inner.Join()
		if err != nil {
			outer.complete(def, nil)
			return
		}
		outer.complete(v, nil)
	}()
	return outer, nil
}

// SupplyWithFallbackFunc runs fallback on the pool when the primary work
// fails.
func SupplyWithFallbackFunc[T any](e *Executor, task, fallback func() (T, error)) (*Future[T], error) {
	inner, err := Supply(e, task)
	if err != nil {
		return nil, err
	}

	outer := newFuture[T]()
	go func() {
		v, err := inner.Join()
		if err == nil {
			outer.complete(v, nil)
			return
		}
		fb, fbErr := Supply(e, fallback)
		if fbErr != nil {
			var zero T
			outer.complete(zero, fbErr)
			return
		}
		outer.complete(fb.Join())
	}()
	return outer, nil
}
