// Package batch runs many applicant lookups over a bounded worker pool.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"applicant-registry/internal/common/logger"
	"applicant-registry/internal/lookup"
)

var ErrLookuperRequired = errors.New("batch: lookuper is required")

// Runner fans lookups out over an ants pool. Results keep input order.
type Runner struct {
	next   lookup.Lookuper
	pool   *ants.Pool
	logger logger.Logger
}

// Option configures a Runner.
type Option func(*Runner) error

// WithPoolSize sets the number of concurrent lookups.
// Default is runtime.NumCPU(), with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(r *Runner) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if r.pool != nil {
			r.pool.Release()
		}
		r.pool = pool
		return nil
	}
}

func WithLogger(log logger.Logger) Option {
	return func(r *Runner) error {
		if log != nil {
			r.logger = log
		}
		return nil
	}
}

func NewRunner(next lookup.Lookuper, opts ...Option) (*Runner, error) {
	if next == nil {
		return nil, ErrLookuperRequired
	}

	size := runtime.NumCPU()
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}

	r := &Runner{next: next, pool: pool, logger: logger.NewNoOpLogger()}
	for _, opt := range opts {
		if optErr := opt(r); optErr != nil {
			r.Release()
			return nil, optErr
		}
	}
	return r, nil
}

// Cap reports the pool size.
func (r *Runner) Cap() int {
	return r.pool.Cap()
}

// Run executes every request and returns the responses in input order.
// The first failing request cancels the rest and fails the whole batch.
func (r *Runner) Run(ctx context.Context, reqs []lookup.SearchRequest) ([]*lookup.Response, error) {
	results := make([]*lookup.Response, len(reqs))
	if len(reqs) == 0 {
		return results, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i := range reqs {
		if ctx.Err() != nil {
			break
		}
		i := i
		wg.Add(1)
		submitErr := r.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			resp, err := r.next.Execute(ctx, reqs[i])
			if err != nil {
				fail(fmt.Errorf("request %d (%s): %w", i, reqs[i].Kind, err))
				return
			}
			results[i] = resp
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("submit request %d: %w", i, submitErr))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		r.logger.Warn("batch lookup failed", map[string]interface{}{
			"size":  len(reqs),
			"error": firstErr.Error(),
		})
		return nil, firstErr
	}
	for _, resp := range results {
		if resp == nil {
			// parent context ended before every request ran
			return nil, fmt.Errorf("batch interrupted: %w", context.Cause(ctx))
		}
	}

	r.logger.Debug("batch lookup completed", map[string]interface{}{"size": len(reqs)})
	return results, nil
}

// Release stops the pool. The runner must not be used afterwards.
func (r *Runner) Release() {
	if r.pool != nil {
		r.pool.Release()
	}
}
