// Package session caches per-session handles to remote chat contexts.
package session

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Factory builds the handle for a key that is not cached.
type Factory[H any] func(ctx context.Context, key string) (H, error)

type Options struct {
	// TTL is the idle time after which an entry is dropped. Zero keeps
	// entries until they are pushed out by MaxEntries.
	TTL time.Duration
	// MaxEntries bounds the store; the least recently used entry goes first.
	// Zero means unbounded.
	MaxEntries int
	// OnEvict runs after an entry leaves the store for any reason.
	OnEvict func(key string)
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

type entry[H any] struct {
	key      string
	handle   H
	lastUsed time.Time
}

// Store maps session keys to handles with lazy creation, idle expiry and a
// capacity bound. Concurrent misses on the same key share one factory call.
type Store[H any] struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	group   singleflight.Group
	factory Factory[H]
	opts    Options

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type outcome[H any] struct {
	handle  H
	created bool
}

func New[H any](factory Factory[H], opts Options) *Store[H] {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store[H]{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		factory: factory,
		opts:    opts,
		stop:    make(chan struct{}),
	}
}

// GetOrCreate returns the cached handle for key, building it on a miss.
// created is true when the handle was built to serve this call. A factory
// error is returned as is and nothing is cached.
func (s *Store[H]) GetOrCreate(ctx context.Context, key string) (H, bool, error) {
	if h, ok := s.lookup(key); ok {
		return h, false, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		if h, ok := s.lookup(key); ok {
			return outcome[H]{handle: h}, nil
		}
		// One caller giving up must not fail the others waiting on this key.
		h, err := s.factory(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		s.insert(key, h)
		return outcome[H]{handle: h, created: true}, nil
	})
	if err != nil {
		var zero H
		return zero, false, err
	}
	out := v.(outcome[H])
	return out.handle, out.created, nil
}

// Get returns the cached handle without creating one.
func (s *Store[H]) Get(key string) (H, bool) {
	return s.lookup(key)
}

// Evict removes key and reports whether it was present.
func (s *Store[H]) Evict(key string) bool {
	s.mu.Lock()
	elem, ok := s.entries[key]
	if ok {
		s.removeLocked(elem)
	}
	s.mu.Unlock()

	if ok {
		s.notify([]string{key})
	}
	return ok
}

func (s *Store[H]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Sweep drops every expired entry and returns how many were removed.
func (s *Store[H]) Sweep() int {
	if s.opts.TTL <= 0 {
		return 0
	}

	now := s.opts.Now()
	var evicted []string

	s.mu.Lock()
	// Back of the list holds the oldest entries.
	for elem := s.lru.Back(); elem != nil; {
		prev := elem.Prev()
		e := elem.Value.(*entry[H])
		if !s.expired(e, now) {
			break
		}
		s.removeLocked(elem)
		evicted = append(evicted, e.key)
		elem = prev
	}
	s.mu.Unlock()

	s.notify(evicted)
	return len(evicted)
}

// StartJanitor sweeps expired entries every interval until Close.
func (s *Store[H]) StartJanitor(interval time.Duration) {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return
	}
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Close stops the janitor and waits for it to exit.
func (s *Store[H]) Close() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Store[H]) lookup(key string) (H, bool) {
	var zero H
	now := s.opts.Now()

	s.mu.Lock()
	elem, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return zero, false
	}
	e := elem.Value.(*entry[H])
	if s.expired(e, now) {
		s.removeLocked(elem)
		s.mu.Unlock()
		s.notify([]string{key})
		return zero, false
	}
	e.lastUsed = now
	s.lru.MoveToFront(elem)
	h := e.handle
	s.mu.Unlock()
	return h, true
}

func (s *Store[H]) insert(key string, h H) {
	now := s.opts.Now()
	var evicted []string

	s.mu.Lock()
	if elem, ok := s.entries[key]; ok {
		s.removeLocked(elem)
	}
	s.entries[key] = s.lru.PushFront(&entry[H]{key: key, handle: h, lastUsed: now})

	for s.opts.MaxEntries > 0 && s.lru.Len() > s.opts.MaxEntries {
		oldest := s.lru.Back()
		s.removeLocked(oldest)
		evicted = append(evicted, oldest.Value.(*entry[H]).key)
	}
	s.mu.Unlock()

	s.notify(evicted)
}

func (s *Store[H]) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry[H])
	delete(s.entries, e.key)
	s.lru.Remove(elem)
}

func (s *Store[H]) expired(e *entry[H], now time.Time) bool {
	return s.opts.TTL > 0 && now.Sub(e.lastUsed) > s.opts.TTL
}

func (s *Store[H]) notify(keys []string) {
	if s.opts.OnEvict == nil {
		return
	}
	for _, k := range keys {
		s.opts.OnEvict(k)
	}
}
