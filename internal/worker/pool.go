package worker

import (
	"context"
	"fmt"
	"sync"
)

// Pool runs independent units of work with bounded concurrency. A failing or
// panicking unit never affects the others.
type Pool struct {
	sem chan struct{}
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

func (p *Pool) Size() int { return cap(p.sem) }

// Each calls fn for every index in [0, n) and returns the per-index errors.
// Indexes not started because ctx was canceled report ctx.Err().
func (p *Pool) Each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			for j := i; j < n; j++ {
				errs[j] = ctx.Err()
			}
			wg.Wait()
			return errs
		case p.sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-p.sem }()
			errs[i] = run(ctx, i, fn)
		}(i)
	}
	wg.Wait()
	return errs
}

func run(ctx context.Context, i int, fn func(context.Context, int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, i)
}
