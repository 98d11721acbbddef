package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublatesublate-design/legal-database/models"
)

type recorder struct {
	mu        sync.Mutex
	acquired  int
	exhausted int
	peak      int64
}

func (r *recorder) SlotAcquired(time.Duration) {
	r.mu.Lock()
	r.acquired++
	r.mu.Unlock()
}

func (r *recorder) SlotExhausted() {
	r.mu.Lock()
	r.exhausted++
	r.mu.Unlock()
}

func (r *recorder) SlotsInUse(n int64) {
	r.mu.Lock()
	if n > r.peak {
		r.peak = n
	}
	r.mu.Unlock()
}

func TestAcquireBoundsConcurrency(t *testing.T) {
	rec := &recorder{}
	p := New(Config{Size: 3, AcquireTimeout: time.Second}, rec)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := p.Acquire(context.Background())
			require.NoError(t, err)
			time.Sleep(5 * time.Millisecond)
			release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, rec.peak, int64(3))
	assert.Equal(t, 12, rec.acquired)
	assert.Zero(t, p.InUse())
}

func TestAcquireTimesOutWithResourceExhausted(t *testing.T) {
	rec := &recorder{}
	p := New(Config{Size: 1, AcquireTimeout: 10 * time.Millisecond}, rec)

	release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, models.ErrResourceExhausted)
	assert.Equal(t, 1, rec.exhausted)
}

func TestAcquireCancelledContextIsTimeout(t *testing.T) {
	p := New(Config{Size: 1, AcquireTimeout: time.Second}, nil)
	release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, models.ErrTimeout)
}

func TestReleaseIsIdempotent(t *testing.T) {
	p := New(Config{Size: 1, AcquireTimeout: 10 * time.Millisecond}, nil)
	release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	release()
	release()
	assert.Zero(t, p.InUse())

	again, err := p.Acquire(context.Background())
	require.NoError(t, err)
	again()
}

func TestDoReleasesOnError(t *testing.T) {
	p := New(Config{Size: 1, AcquireTimeout: 10 * time.Millisecond}, nil)
	boom := errors.New("boom")

	err := p.Do(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, p.InUse())
}

func TestDoReleasesOnPanic(t *testing.T) {
	p := New(Config{Size: 1, AcquireTimeout: 10 * time.Millisecond}, nil)

	assert.Panics(t, func() {
		_ = p.Do(context.Background(), func(context.Context) error { panic("store driver crashed") })
	})
	assert.Zero(t, p.InUse())

	err := p.Do(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestDoRetriesTransientOnce(t *testing.T) {
	p := New(Config{Size: 2, AcquireTimeout: time.Second, RetryBackoff: time.Millisecond}, nil)

	var calls int32
	err := p.Do(context.Background(), func(context.Context) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return models.ErrResourceExhausted
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, int32(2), calls)

	calls = 0
	err = p.Do(context.Background(), func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return models.ErrTimeout
	})
	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.Equal(t, int32(2), calls)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	p := New(DefaultConfig(), nil)
	var calls int32
	err := p.Do(context.Background(), func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return models.ErrNotFound
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, int32(1), calls)
}

func TestDoSurfacesExhaustionAfterRetry(t *testing.T) {
	p := New(Config{Size: 1, AcquireTimeout: 5 * time.Millisecond, RetryBackoff: time.Millisecond}, nil)
	release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	var calls int32
	err = p.Do(context.Background(), func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	assert.ErrorIs(t, err, models.ErrResourceExhausted)
	assert.Zero(t, calls)
}
