package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type handle struct{ key string }

func countingFactory(calls *int32) Factory[*handle] {
	return func(ctx context.Context, key string) (*handle, error) {
		atomic.AddInt32(calls, 1)
		return &handle{key: key}, nil
	}
}

func TestGetOrCreate_ReusesHandle(t *testing.T) {
	var calls int32
	s := New(countingFactory(&calls), Options{})

	first, created, err := s.GetOrCreate(context.Background(), "test-session-123")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.GetOrCreate(context.Background(), "test-session-123")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrCreate_ConcurrentFirstUseCreatesOnce(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	s := New(func(ctx context.Context, key string) (*handle, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &handle{key: key}, nil
	}, Options{})

	const callers = 50
	results := make([]*handle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, _, err := s.GetOrCreate(context.Background(), "shared")
			assert.NoError(t, err)
			results[i] = h
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, h := range results {
		assert.Same(t, results[0], h)
	}
}

func TestGetOrCreate_DistinctKeys(t *testing.T) {
	var calls int32
	s := New(countingFactory(&calls), Options{})

	for i := 0; i < 5; i++ {
		_, _, err := s.GetOrCreate(context.Background(), fmt.Sprintf("s-%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
	assert.Equal(t, 5, s.Len())
}

func TestGetOrCreate_FactoryErrorNotCached(t *testing.T) {
	var calls int32
	fail := true
	s := New(func(ctx context.Context, key string) (*handle, error) {
		atomic.AddInt32(&calls, 1)
		if fail {
			return nil, errors.New("model unavailable")
		}
		return &handle{key: key}, nil
	}, Options{})

	_, _, err := s.GetOrCreate(context.Background(), "k")
	require.Error(t, err)
	assert.Equal(t, 0, s.Len())

	fail = false
	h, created, err := s.GetOrCreate(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "k", h.key)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetOrCreate_CancelledCallerDoesNotCancelFactory(t *testing.T) {
	s := New(func(ctx context.Context, key string) (*handle, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &handle{key: key}, nil
	}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.GetOrCreate(ctx, "k")
	require.NoError(t, err)
}

func TestTTLExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	var calls int32
	var evicted []string
	s := New(countingFactory(&calls), Options{
		TTL:     time.Minute,
		Now:     clock.Now,
		OnEvict: func(key string) { evicted = append(evicted, key) },
	})

	_, _, err := s.GetOrCreate(context.Background(), "a")
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	_, created, err := s.GetOrCreate(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, created, "use inside the TTL refreshes the entry")

	clock.Advance(61 * time.Second)
	_, created, err = s.GetOrCreate(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"a"}, evicted)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSweep(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	var calls int32
	s := New(countingFactory(&calls), Options{TTL: time.Minute, Now: clock.Now})

	for _, k := range []string{"old-1", "old-2"} {
		_, _, err := s.GetOrCreate(context.Background(), k)
		require.NoError(t, err)
	}
	clock.Advance(45 * time.Second)
	_, _, err := s.GetOrCreate(context.Background(), "fresh")
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	assert.Equal(t, 2, s.Sweep())
	assert.Equal(t, 1, s.Len())

	_, ok := s.Get("fresh")
	assert.True(t, ok)
}

func TestMaxEntriesEvictsLeastRecentlyUsed(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	var calls int32
	var evicted []string
	s := New(countingFactory(&calls), Options{
		MaxEntries: 2,
		Now:        clock.Now,
		OnEvict:    func(key string) { evicted = append(evicted, key) },
	})

	ctx := context.Background()
	_, _, _ = s.GetOrCreate(ctx, "a")
	_, _, _ = s.GetOrCreate(ctx, "b")
	_, _, _ = s.GetOrCreate(ctx, "a") // a is now most recent
	_, _, _ = s.GetOrCreate(ctx, "c")

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"b"}, evicted)
	_, ok := s.Get("a")
	assert.True(t, ok)
}

func TestEvict(t *testing.T) {
	var calls int32
	s := New(countingFactory(&calls), Options{})

	_, _, _ = s.GetOrCreate(context.Background(), "a")
	assert.True(t, s.Evict("a"))
	assert.False(t, s.Evict("a"))
	assert.Equal(t, 0, s.Len())
}

func TestJanitorStopsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls int32
	s := New(countingFactory(&calls), Options{TTL: time.Millisecond})
	_, _, _ = s.GetOrCreate(context.Background(), "a")

	s.StartJanitor(2 * time.Millisecond)
	s.StartJanitor(2 * time.Millisecond)

	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)

	s.Close()
	s.Close()
}
