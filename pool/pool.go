// Package pool bounds the number of concurrently open store handles.
// Callers block up to an acquire timeout when every slot is taken.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/sublatesublate-design/legal-database/models"
)

// Config holds pool sizing
type Config struct {
	Size           int
	AcquireTimeout time.Duration
	RetryBackoff   time.Duration
}

// DefaultConfig returns the default sizing
func DefaultConfig() Config {
	return Config{Size: 5, AcquireTimeout: 2 * time.Second, RetryBackoff: 50 * time.Millisecond}
}

// Observer receives pool events
type Observer interface {
	SlotAcquired(wait time.Duration)
	SlotExhausted()
	SlotsInUse(n int64)
}

// Pool is a counting semaphore over store handles
type Pool struct {
	sem      *semaphore.Weighted
	cfg      Config
	inUse    int64
	observer Observer
}

// New creates a pool; a nil observer is allowed
func New(cfg Config, observer Observer) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = DefaultConfig().Size
	}
	return &Pool{
		sem:      semaphore.NewWeighted(int64(cfg.Size)),
		cfg:      cfg,
		observer: observer,
	}
}

// Size returns the number of slots
func (p *Pool) Size() int {
	return p.cfg.Size
}

// InUse returns the number of held slots
func (p *Pool) InUse() int64 {
	return atomic.LoadInt64(&p.inUse)
}

// Acquire takes a slot. It returns ErrTimeout when ctx ends first and
// ErrResourceExhausted when the acquire timeout passes. The release function
// is idempotent.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	start := time.Now()

	acquireCtx := ctx
	if p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: waiting for store handle: %v", models.ErrTimeout, ctx.Err())
		}
		if p.observer != nil {
			p.observer.SlotExhausted()
		}
		return nil, fmt.Errorf("%w: no store handle free after %s", models.ErrResourceExhausted, p.cfg.AcquireTimeout)
	}

	n := atomic.AddInt64(&p.inUse, 1)
	if p.observer != nil {
		p.observer.SlotAcquired(time.Since(start))
		p.observer.SlotsInUse(n)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			n := atomic.AddInt64(&p.inUse, -1)
			p.sem.Release(1)
			if p.observer != nil {
				p.observer.SlotsInUse(n)
			}
		})
	}, nil
}

// Do runs fn while holding a slot. ResourceExhausted, and a Timeout that
// did not come from ctx itself, are retried once after a backoff.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.RetryBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(b, 1), ctx)

	var last error
	err := backoff.Retry(func() error {
		err := p.run(ctx, fn)
		last = err
		if err == nil || !transient(ctx, err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)

	if err == nil {
		return nil
	}
	if last != nil {
		return last
	}
	return fmt.Errorf("%w: %v", models.ErrTimeout, err)
}

func (p *Pool) run(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

func transient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return errors.Is(err, models.ErrResourceExhausted) || errors.Is(err, models.ErrTimeout)
}
